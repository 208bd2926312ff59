package mediasite

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Module fetches a module by its Id. A missing module is not an error.
func (c *Client) Module(ctx context.Context, id string) (*Module, error) {
	m, err := getOne[Module](ctx, c, "get module", http.MethodGet, c.endpoint(keyPath("Modules", id), ""), nil)
	if err != nil {
		var se *ServiceError
		if errors.As(err, &se) && se.NotFound() {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// ModuleByModuleID finds the module whose ModuleId is exactly moduleID.
// It returns nil when none exists and ErrAmbiguousModule when several do.
func (c *Client) ModuleByModuleID(ctx context.Context, moduleID string) (*Module, error) {
	q := filterQuery("ModuleId eq '%s'", EncodeODataString(moduleID))
	modules, count, err := getMany[Module](ctx, c, "search modules", "Modules", q)
	if err != nil {
		return nil, err
	}
	if count == "0" {
		return nil, nil
	}

	var found *Module
	for i := range modules {
		if modules[i].ModuleID != moduleID {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%w: ModuleId %q", ErrAmbiguousModule, moduleID)
		}
		found = &modules[i]
	}
	return found, nil
}

// CreateModule creates a module, associated with catalogID when it is not empty.
func (c *Client) CreateModule(ctx context.Context, moduleID, name, catalogID string) (*Module, error) {
	body := map[string]any{"ModuleId": moduleID, "Name": name}
	if catalogID != "" {
		body["Associations"] = []string{catalogID}
	}
	m, err := getOne[Module](ctx, c, "create module", http.MethodPost, c.endpoint("Modules", ""), body)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) GetOrCreateModule(ctx context.Context, moduleID, name, catalogID string) (*Module, error) {
	m, err := c.ModuleByModuleID(ctx, moduleID)
	if err != nil || m != nil {
		return m, err
	}
	return c.CreateModule(ctx, moduleID, name, catalogID)
}

// AddModuleAssociation associates the module with another resource, usually
// a catalog. Re-adding an existing association succeeds.
func (c *Client) AddModuleAssociation(ctx context.Context, moduleID, mediasiteID string) error {
	body := map[string]string{"MediasiteId": mediasiteID}
	_, _, err := c.do(ctx, "add module association", http.MethodPost,
		c.endpoint(keyPath("Modules", moduleID)+"/AddAssociation", ""), body)
	return err
}
