package mediasite

import (
	"context"
	"net/http"
)

func (c *Client) ResourcePermissions(ctx context.Context, resourceID string) (*ResourcePermission, error) {
	p, err := getOne[ResourcePermission](ctx, c, "get resource permissions", http.MethodGet,
		c.endpoint(keyPath("ResourcePermissions", resourceID), ""), nil)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FolderPermissions reads the folder's full permission set into a working
// set for Update and AssignPermissions.
func (c *Client) FolderPermissions(ctx context.Context, folderID string) (*FolderPermissions, error) {
	rp, err := c.ResourcePermissions(ctx, folderID)
	if err != nil {
		return nil, err
	}
	fp := &FolderPermissions{Owner: rp.Owner}
	fp.Permissions = append(fp.Permissions, rp.AccessControlList...)
	return fp, nil
}

// AssignPermissions overwrites the folder's permissions with p.
func (c *Client) AssignPermissions(ctx context.Context, folderID string, p *FolderPermissions) error {
	body := FolderPermissions{Owner: p.Owner, Permissions: p.Permissions}
	if body.Permissions == nil {
		body.Permissions = []AccessControl{}
	}
	_, _, err := c.do(ctx, "update folder permissions", http.MethodPost,
		c.endpoint(keyPath("Folders", folderID)+"/UpdatePermissions", ""), body)
	return err
}
