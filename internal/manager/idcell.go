package manager

import (
	"sync"

	"midisession/internal/transport"
)

// IDCell persists the unique id of one virtual port between sessions. A nil
// IDCell means the port takes whatever id the transport assigns.
type IDCell interface {
	Load() (transport.UniqueID, bool)
	Store(transport.UniqueID) error
}

// MemoryCell keeps an id for the lifetime of the process.
type MemoryCell struct {
	mu sync.Mutex
	id transport.UniqueID
}

// NewMemoryCell returns a cell preloaded with id; pass InvalidUniqueID for an
// empty cell.
func NewMemoryCell(id transport.UniqueID) *MemoryCell {
	return &MemoryCell{id: id}
}

func (c *MemoryCell) Load() (transport.UniqueID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id, c.id.Valid()
}

func (c *MemoryCell) Store(id transport.UniqueID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.id = id
	return nil
}
