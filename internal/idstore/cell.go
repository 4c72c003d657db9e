package idstore

import (
	"context"
	"time"

	"midisession/internal/logging"
	"midisession/internal/transport"
)

const cellTimeout = 5 * time.Second

// Cell is the persisted id of one virtual port. It satisfies
// manager.IDCell.
type Cell struct {
	store *Store
	tag   string
	dir   transport.Direction
}

// Cell returns the cell for the port tagged tag in direction dir.
func (s *Store) Cell(tag string, dir transport.Direction) *Cell {
	return &Cell{store: s, tag: tag, dir: dir}
}

// Load reports the stored id. Read errors are logged and treated as an
// empty cell so the port still comes up with a fresh id.
func (c *Cell) Load() (transport.UniqueID, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), cellTimeout)
	defer cancel()
	id, ok, err := c.store.Get(ctx, c.tag, c.dir)
	if err != nil {
		logging.WarnWithContext(c.store.logger, "could not read persisted port id", "port_id_read_failed",
			logging.String(logging.FieldTag, c.tag),
			logging.Error(err),
			logging.String(logging.FieldImpact, "the port is created with a new unique id"),
		)
		return transport.InvalidUniqueID, false
	}
	return id, ok
}

// Store writes id.
func (c *Cell) Store(id transport.UniqueID) error {
	ctx, cancel := context.WithTimeout(context.Background(), cellTimeout)
	defer cancel()
	return c.store.Put(ctx, c.tag, c.dir, id)
}
