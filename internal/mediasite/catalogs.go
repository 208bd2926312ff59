package mediasite

import (
	"context"
	"net/http"
)

func (c *Client) Catalogs(ctx context.Context, search string) ([]Catalog, error) {
	q := filterQuery("Name eq '%s'", EncodeODataString(search))
	catalogs, _, err := getMany[Catalog](ctx, c, "search catalogs", "Catalogs", q)
	return catalogs, err
}

// Catalog finds the catalog named exactly name that is linked to folderID, or nil.
func (c *Client) Catalog(ctx context.Context, name, folderID, search string) (*Catalog, error) {
	if search == "" {
		search = name
	}
	catalogs, err := c.Catalogs(ctx, search)
	if err != nil {
		return nil, err
	}
	for i := range catalogs {
		if catalogs[i].Name == name && catalogs[i].LinkedFolderID == folderID {
			return &catalogs[i], nil
		}
	}
	return nil, nil
}

func (c *Client) CreateCatalog(ctx context.Context, friendlyName, name, folderID string) (*Catalog, error) {
	body := map[string]any{
		"FriendlyName":   friendlyName,
		"Name":           name,
		"LinkedFolderId": folderID,
	}
	cat, err := getOne[Catalog](ctx, c, "create catalog", http.MethodPost, c.endpoint("Catalogs", ""), body)
	if err != nil {
		return nil, err
	}
	return &cat, nil
}

func (c *Client) GetOrCreateCatalog(ctx context.Context, friendlyName, name, folderID, search string) (*Catalog, error) {
	cat, err := c.Catalog(ctx, name, folderID, search)
	if err != nil || cat != nil {
		return cat, err
	}
	return c.CreateCatalog(ctx, friendlyName, name, folderID)
}

// SetCatalogSettings overwrites the catalog's display settings. Login
// controls are always turned off.
func (c *Client) SetCatalogSettings(ctx context.Context, catalogID string, s CatalogSettings) error {
	_, _, err := c.do(ctx, "set catalog settings", http.MethodPatch, c.endpoint(keyPath("Catalogs", catalogID)+"/Settings", ""), s)
	return err
}
