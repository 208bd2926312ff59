package canvas

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"mediasite-provisioning/internal/logging"
)

func (c *Client) ExternalTools(ctx context.Context, courseID int64) ([]ExternalTool, error) {
	return listAll[ExternalTool](ctx, c, "list external tools", fmt.Sprintf("courses/%d/external_tools", courseID), nil)
}

type createToolRequest struct {
	Name             string     `json:"name"`
	URL              string     `json:"url"`
	PrivacyLevel     string     `json:"privacy_level"`
	ConsumerKey      string     `json:"consumer_key"`
	SharedSecret     string     `json:"shared_secret"`
	CourseNavigation Navigation `json:"course_navigation"`
}

func (c *Client) CreateExternalTool(ctx context.Context, courseID int64, link ExternalToolLink) (*ExternalTool, error) {
	visibility := link.Visibility
	if visibility == "" {
		visibility = "members"
	}
	body := createToolRequest{
		Name:         link.Name,
		URL:          link.URL,
		PrivacyLevel: "public",
		ConsumerKey:  link.ConsumerKey,
		SharedSecret: link.SharedSecret,
		CourseNavigation: Navigation{
			Enabled:    true,
			Text:       link.Name,
			Visibility: visibility,
			Default:    "enabled",
		},
	}
	tool, err := getOne[ExternalTool](ctx, c, "create external tool", http.MethodPost,
		c.apiURL(fmt.Sprintf("courses/%d/external_tools", courseID), nil), body)
	if err != nil {
		return nil, err
	}
	return &tool, nil
}

// CreateMediasiteAppExternalLink makes sure the course navigation has a link
// to link.URL. A tool already pointing at the URL under link.Name (or its
// term-qualified variant) is reused. When link.Name is taken by a tool
// pointing elsewhere, the term name is appended to tell the two apart.
func (c *Client) CreateMediasiteAppExternalLink(ctx context.Context, courseID int64, link ExternalToolLink) (*ExternalTool, error) {
	tools, err := c.ExternalTools(ctx, courseID)
	if err != nil {
		return nil, err
	}

	for i := range tools {
		if tools[i].URL == link.URL && strings.HasPrefix(tools[i].Name, link.Name) {
			return &tools[i], nil
		}
	}

	name := LinkDisplayName(tools, link.Name, link.TermName)
	for i := range tools {
		if tools[i].Name == name {
			if tools[i].URL != link.URL {
				logging.OrNop(c.Log).Warn("reusing course link that points elsewhere",
					zap.Int64("course_id", courseID), zap.String("name", name),
					zap.String("url", tools[i].URL), zap.String("want_url", link.URL))
			}
			return &tools[i], nil
		}
	}

	link.Name = name
	return c.CreateExternalTool(ctx, courseID, link)
}

// LinkDisplayName returns base, or "base (term)" when a tool named base exists.
func LinkDisplayName(tools []ExternalTool, base, term string) string {
	if term == "" {
		return base
	}
	for _, t := range tools {
		if t.Name == base {
			return fmt.Sprintf("%s (%s)", base, term)
		}
	}
	return base
}
