package client

import (
	"sort"
	"sync"

	"github.com/mmynk/kriskindle/pkg/api"
)

// Membership is what this device remembers about one group: the name the
// user acts as and, once joined, the last assignee seen.
type Membership struct {
	GroupID   string        `json:"group_id"`
	GroupName string        `json:"group_name"`
	Name      string        `json:"name"`
	Joined    bool          `json:"joined"`
	Assignee  *api.Assignee `json:"assignee,omitempty"`
	UpdatedAt int64         `json:"updated_at"`
}

// Cache stores memberships locally between CLI runs.
type Cache interface {
	Put(m Membership) error
	// Get returns ok=false when the group is unknown.
	Get(groupID string) (m Membership, ok bool, err error)
	// List returns every membership ordered by group ID.
	List() ([]Membership, error)
	Delete(groupID string) error
	Close() error
}

// MemoryCache is a Cache that lives for the process only.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]Membership
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]Membership)}
}

func (c *MemoryCache) Put(m Membership) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[m.GroupID] = m
	return nil
}

func (c *MemoryCache) Get(groupID string) (Membership, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.entries[groupID]
	return m, ok, nil
}

func (c *MemoryCache) List() ([]Membership, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Membership, 0, len(c.entries))
	for _, m := range c.entries {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupID < out[j].GroupID })
	return out, nil
}

func (c *MemoryCache) Delete(groupID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, groupID)
	return nil
}

func (c *MemoryCache) Close() error { return nil }
