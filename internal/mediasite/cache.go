package mediasite

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// RootFolderCache holds the tenant's root folder id for the life of the
// process. Concurrent first lookups share one fetch. The id is never
// invalidated on its own; call Refresh if the tenant's root can change.
type RootFolderCache struct {
	mu    sync.RWMutex
	id    string
	group singleflight.Group
}

func NewRootFolderCache() *RootFolderCache {
	return &RootFolderCache{}
}

// Get returns the cached id, populating it with fetch on first use.
// A failed fetch is not cached. The shared fetch is detached from any one
// caller's cancellation; each caller stops waiting when its own ctx is done.
func (c *RootFolderCache) Get(ctx context.Context, fetch func(context.Context) (string, error)) (string, error) {
	c.mu.RLock()
	id := c.id
	c.mu.RUnlock()
	if id != "" {
		return id, nil
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan("root", func() (any, error) {
		c.mu.RLock()
		cached := c.id
		c.mu.RUnlock()
		if cached != "" {
			return cached, nil
		}
		id, err := fetch(fetchCtx)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.id = id
		c.mu.Unlock()
		return id, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Refresh drops the cached id so the next Get fetches it again.
func (c *RootFolderCache) Refresh() {
	c.mu.Lock()
	c.id = ""
	c.mu.Unlock()
}
