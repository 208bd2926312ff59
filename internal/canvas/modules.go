package canvas

import (
	"context"
	"fmt"
	"net/http"
)

func (c *Client) Modules(ctx context.Context, courseID int64) ([]Module, error) {
	return listAll[Module](ctx, c, "list modules", fmt.Sprintf("courses/%d/modules", courseID), nil)
}

func (c *Client) CreateModule(ctx context.Context, courseID int64, name string) (*Module, error) {
	body := map[string]any{"module": map[string]any{"name": name}}
	m, err := getOne[Module](ctx, c, "create module", http.MethodPost, c.apiURL(fmt.Sprintf("courses/%d/modules", courseID), nil), body)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) ModuleItems(ctx context.Context, courseID, moduleID int64) ([]ModuleItem, error) {
	return listAll[ModuleItem](ctx, c, "list module items", fmt.Sprintf("courses/%d/modules/%d/items", courseID, moduleID), nil)
}

// CreateExternalURLItem adds an ExternalUrl item opening in a new tab.
func (c *Client) CreateExternalURLItem(ctx context.Context, courseID, moduleID int64, title, externalURL string) (*ModuleItem, error) {
	body := map[string]any{"module_item": map[string]any{
		"title":        title,
		"type":         "ExternalUrl",
		"external_url": externalURL,
		"new_tab":      true,
	}}
	item, err := getOne[ModuleItem](ctx, c, "create module item", http.MethodPost,
		c.apiURL(fmt.Sprintf("courses/%d/modules/%d/items", courseID, moduleID), nil), body)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// GetOrCreateMediasiteModuleItem makes sure moduleName holds an item titled
// itemTitle that links to externalURL. Module and item are matched by exact name.
func (c *Client) GetOrCreateMediasiteModuleItem(ctx context.Context, courseID int64, moduleName, itemTitle, externalURL string) (*ModuleItem, error) {
	modules, err := c.Modules(ctx, courseID)
	if err != nil {
		return nil, err
	}

	var module *Module
	for i := range modules {
		if modules[i].Name == moduleName {
			module = &modules[i]
			break
		}
	}
	if module == nil {
		if module, err = c.CreateModule(ctx, courseID, moduleName); err != nil {
			return nil, err
		}
	}

	items, err := c.ModuleItems(ctx, courseID, module.ID)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].Title == itemTitle {
			return &items[i], nil
		}
	}
	return c.CreateExternalURLItem(ctx, courseID, module.ID, itemTitle, externalURL)
}
