// File: internal/catalog/catalog.go
package catalog

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/luminark/rudder/api/schemas"
)

// Catalog is a read-through snapshot of the connector registry's capability
// index. The registry may change between refreshes; callers always see a
// consistent snapshot and must tolerate entries appearing or disappearing
// between invocations.
type Catalog struct {
	registry schemas.ConnectorRegistry
	log      *zap.Logger

	mu         sync.RWMutex
	byID       map[string]schemas.Capability
	byCategory map[schemas.IntentCategory][]schemas.Capability
}

// New builds an empty catalog over the given registry. Call Refresh before
// first use.
func New(registry schemas.ConnectorRegistry, log *zap.Logger) *Catalog {
	return &Catalog{
		registry:   registry,
		log:        log.Named("catalog"),
		byID:       make(map[string]schemas.Capability),
		byCategory: make(map[schemas.IntentCategory][]schemas.Capability),
	}
}

// Refresh replaces the snapshot with the registry's current capability list.
func (c *Catalog) Refresh(ctx context.Context) error {
	caps, err := c.registry.ListCapabilities(ctx, "")
	if err != nil {
		return fmt.Errorf("listing capabilities: %w", err)
	}

	byID := make(map[string]schemas.Capability, len(caps))
	byCategory := make(map[schemas.IntentCategory][]schemas.Capability)
	for _, cap := range caps {
		byID[cap.ID] = cap
		byCategory[cap.Category] = append(byCategory[cap.Category], cap)
	}

	c.mu.Lock()
	c.byID = byID
	c.byCategory = byCategory
	c.mu.Unlock()

	c.log.Debug("Capability catalog refreshed", zap.Int("capabilities", len(caps)))
	return nil
}

// Get returns the capability with the given id, if the snapshot holds it.
func (c *Catalog) Get(id string) (schemas.Capability, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cap, ok := c.byID[id]
	return cap, ok
}

// ByCategory returns a copy of the snapshot's capabilities for a category.
func (c *Catalog) ByCategory(cat schemas.IntentCategory) []schemas.Capability {
	c.mu.RLock()
	defer c.mu.RUnlock()
	src := c.byCategory[cat]
	out := make([]schemas.Capability, len(src))
	copy(out, src)
	return out
}

// KnowledgeSources returns the capabilities in a category that expose a
// retrievable knowledge source.
func (c *Catalog) KnowledgeSources(cat schemas.IntentCategory) []schemas.Capability {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []schemas.Capability
	for _, cap := range c.byCategory[cat] {
		if cap.KnowledgeSource {
			out = append(out, cap)
		}
	}
	return out
}

// All returns a copy of every capability in the snapshot.
func (c *Catalog) All() []schemas.Capability {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]schemas.Capability, 0, len(c.byID))
	for _, cap := range c.byID {
		out = append(out, cap)
	}
	return out
}

// Size returns the number of capabilities in the snapshot.
func (c *Catalog) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}
