package mediasite

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// UserByEmail returns the profile whose email equals email ignoring case, or nil.
func (c *Client) UserByEmail(ctx context.Context, email string) (*UserProfile, error) {
	q := filterQuery("endswith(Email, '%s')", EncodeODataString(email))
	users, _, err := getMany[UserProfile](ctx, c, "search user profiles", "UserProfiles", q)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if strings.EqualFold(users[i].Email, email) {
			return &users[i], nil
		}
	}
	return nil, nil
}

func (c *Client) CreateUser(ctx context.Context, u UserProfile) (*UserProfile, error) {
	u.ID = ""
	created, err := getOne[UserProfile](ctx, c, "create user profile", http.MethodPost, c.endpoint("UserProfiles", ""), u)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) GetOrCreateUser(ctx context.Context, u UserProfile) (*UserProfile, error) {
	existing, err := c.UserByEmail(ctx, u.Email)
	if err != nil || existing != nil {
		return existing, err
	}
	return c.CreateUser(ctx, u)
}

// ProfileRoleID returns the id of the personal role every user profile
// carries: the first 32 characters of the profile id read as a UUID.
func ProfileRoleID(profileID string) (string, error) {
	if len(profileID) < 32 {
		return "", fmt.Errorf("%w: %q", ErrInvalidProfileID, profileID)
	}
	id, err := uuid.Parse(profileID[:32])
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidProfileID, profileID, err)
	}
	return id.String(), nil
}
