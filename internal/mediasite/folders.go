package mediasite

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"mediasite-provisioning/internal/logging"
)

// Folders returns the children of parentID whose name loosely matches
// search. The result is the remote's superset; callers filter it.
func (c *Client) Folders(ctx context.Context, search, parentID string) ([]Folder, error) {
	parentID, err := c.parentOrRoot(ctx, parentID)
	if err != nil {
		return nil, err
	}
	q := filterQuery("ParentFolderId eq '%s' and Name eq '%s'", EncodeODataString(parentID), EncodeODataString(search))
	folders, _, err := getMany[Folder](ctx, c, "search folders", "Folders", q)
	return folders, err
}

// Folder finds the child of parentID named exactly name, or nil.
// The remote is queried with search when given, which lets callers avoid
// the remote's length limit on filter values.
func (c *Client) Folder(ctx context.Context, name, parentID, search string) (*Folder, error) {
	if search == "" {
		search = name
	}
	folders, err := c.Folders(ctx, search, parentID)
	if err != nil {
		return nil, err
	}
	for i := range folders {
		if folders[i].Name == name {
			return &folders[i], nil
		}
	}
	return nil, nil
}

func (c *Client) CreateFolder(ctx context.Context, nf NewFolder) (*Folder, error) {
	parentID, err := c.parentOrRoot(ctx, nf.ParentFolderID)
	if err != nil {
		return nil, err
	}
	body := map[string]any{
		"Name":                       nf.Name,
		"ParentFolderId":             parentID,
		"IsReviewEditApproveEnabled": false,
		"IsCopyDestination":          nf.IsCopyDestination,
		"IsShared":                   nf.IsShared,
	}
	f, err := getOne[Folder](ctx, c, "create folder", http.MethodPost, c.endpoint("Folders", ""), body)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// GetOrCreateFolder returns the child of parentID named name, creating it
// when absent. An empty parentID means the tenant root; if the cached root
// id turns out to be gone (404), it is fetched again and the call retried once.
func (c *Client) GetOrCreateFolder(ctx context.Context, name, parentID, search string) (*Folder, error) {
	f, err := c.getOrCreateFolder(ctx, name, parentID, search)
	var se *ServiceError
	if parentID == "" && c.Root != nil && errors.As(err, &se) && se.NotFound() {
		logging.OrNop(c.Log).Info("mediasite root folder not found, refreshing", zap.String("folder", name))
		c.Root.Refresh()
		return c.getOrCreateFolder(ctx, name, parentID, search)
	}
	return f, err
}

func (c *Client) getOrCreateFolder(ctx context.Context, name, parentID, search string) (*Folder, error) {
	parentID, err := c.parentOrRoot(ctx, parentID)
	if err != nil {
		return nil, err
	}
	f, err := c.Folder(ctx, name, parentID, search)
	if err != nil || f != nil {
		return f, err
	}
	return c.CreateFolder(ctx, NewFolder{Name: name, ParentFolderID: parentID})
}

func (c *Client) parentOrRoot(ctx context.Context, parentID string) (string, error) {
	if parentID != "" {
		return parentID, nil
	}
	return c.RootFolderID(ctx)
}
