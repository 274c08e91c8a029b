package metering

import (
	"context"
	"sync"

	"github.com/calderaops/meterbill/internal/models"
	"github.com/google/uuid"
)

// StaticCatalog is a fixed in-memory ResourceCatalog, loaded from config at
// startup. The real catalog lives in the business backend; this is enough for
// the metering core, which only ever reads id and rate.
type StaticCatalog struct {
	mu        sync.RWMutex
	resources map[uuid.UUID]models.Resource
}

func NewStaticCatalog(resources []models.Resource) *StaticCatalog {
	c := &StaticCatalog{resources: make(map[uuid.UUID]models.Resource, len(resources))}
	for _, r := range resources {
		c.resources[r.ID] = r
	}
	return c
}

func (c *StaticCatalog) GetResource(_ context.Context, id uuid.UUID) (*models.Resource, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.resources[id]
	if !ok {
		return nil, ErrUnknownResource
	}
	return &r, nil
}

// PutResource adds or replaces a resource. Rates are immutable for the
// duration of a session because sessions snapshot the rate at start.
func (c *StaticCatalog) PutResource(r models.Resource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resources[r.ID] = r
}
