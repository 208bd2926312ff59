package mediasite

import (
	"context"
	"net/http"
)

// RoleByDirectoryEntry returns the role bound to entry, or nil.
func (c *Client) RoleByDirectoryEntry(ctx context.Context, entry string) (*Role, error) {
	q := filterQuery("DirectoryEntry eq '%s'", EncodeODataString(entry))
	roles, _, err := getMany[Role](ctx, c, "search roles by directory entry", "Roles", q)
	if err != nil {
		return nil, err
	}
	for i := range roles {
		if roles[i].DirectoryEntry == entry {
			return &roles[i], nil
		}
	}
	return nil, nil
}

// RoleByName returns the role named exactly name, or nil.
func (c *Client) RoleByName(ctx context.Context, name string) (*Role, error) {
	q := filterQuery("Name eq '%s'", EncodeODataString(name))
	roles, _, err := getMany[Role](ctx, c, "search roles by name", "Roles", q)
	if err != nil {
		return nil, err
	}
	for i := range roles {
		if roles[i].Name == name {
			return &roles[i], nil
		}
	}
	return nil, nil
}

// FindRole looks a role up by directory entry, then by name. A miss on both
// returns nil without error.
func (c *Client) FindRole(ctx context.Context, name, entry string) (*Role, error) {
	if entry != "" {
		r, err := c.RoleByDirectoryEntry(ctx, entry)
		if err != nil || r != nil {
			return r, err
		}
	}
	if name == "" {
		return nil, nil
	}
	return c.RoleByName(ctx, name)
}

func (c *Client) CreateRole(ctx context.Context, name, entry string) (*Role, error) {
	body := map[string]string{"Name": name, "DirectoryEntry": entry}
	r, err := getOne[Role](ctx, c, "create role", http.MethodPost, c.endpoint("Roles", ""), body)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetOrCreateRole returns the role bound to entry. The directory entry is the
// role's identity; when only the name matches and the existing role is bound
// elsewhere, a *RoleConflictError is returned and nothing is created.
func (c *Client) GetOrCreateRole(ctx context.Context, name, entry string) (*Role, error) {
	r, err := c.RoleByDirectoryEntry(ctx, entry)
	if err != nil || r != nil {
		return r, err
	}

	r, err = c.RoleByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if r != nil {
		if r.DirectoryEntry != entry {
			return nil, &RoleConflictError{Name: name, DirectoryEntry: entry, Existing: *r}
		}
		return r, nil
	}
	return c.CreateRole(ctx, name, entry)
}
