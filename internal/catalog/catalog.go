// Package catalog loads the set of tracked objects the estimator runs over and keeps
// the current snapshot.
package catalog

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/star/debriswatch/internal/conjunction"
	"github.com/star/debriswatch/internal/tle"
)

// Catalog is an immutable snapshot of tracked objects.
type Catalog struct {
	ID       uuid.UUID                 `json:"id"`
	Source   string                    `json:"source"`
	LoadedAt time.Time                 `json:"loaded_at"`
	Objects  []conjunction.SpaceObject `json:"objects"`

	// Elements is the TLE set the objects were derived from; nil for sources
	// without orbital elements.
	Elements *tle.Set `json:"-"`

	index map[string]int
}

// New builds a snapshot. objects is retained, not copied.
func New(source string, loadedAt time.Time, objects []conjunction.SpaceObject, elements *tle.Set) *Catalog {
	index := make(map[string]int, len(objects))
	for i, o := range objects {
		index[o.ID] = i
	}
	return &Catalog{
		ID:       uuid.New(),
		Source:   source,
		LoadedAt: loadedAt,
		Objects:  objects,
		Elements: elements,
		index:    index,
	}
}

// Object looks an object up by ID.
func (c *Catalog) Object(id string) (conjunction.SpaceObject, bool) {
	i, ok := c.index[id]
	if !ok {
		return conjunction.SpaceObject{}, false
	}
	return c.Objects[i], true
}

// ElementsFor returns the TLE entry backing object id, if the catalog has one.
func (c *Catalog) ElementsFor(id string) (tle.Entry, bool) {
	obj, ok := c.Object(id)
	if !ok || c.Elements == nil || obj.NORADID == 0 {
		return tle.Entry{}, false
	}
	for _, e := range c.Elements.Entries {
		if e.NORADID == obj.NORADID {
			return e, true
		}
	}
	return tle.Entry{}, false
}

// Store holds the current catalog. Readers never block.
type Store struct {
	current atomic.Pointer[Catalog]
	version atomic.Uint64
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Get returns the current catalog, or nil if none has been loaded.
func (s *Store) Get() *Catalog {
	return s.current.Load()
}

// Set replaces the current catalog.
func (s *Store) Set(c *Catalog) {
	s.current.Store(c)
	s.version.Add(1)
}

// Version increments on every Set; zero means never set.
func (s *Store) Version() uint64 {
	return s.version.Load()
}

// AgeSeconds returns the age of the current catalog, or -1 if none is loaded.
func (s *Store) AgeSeconds() float64 {
	c := s.current.Load()
	if c == nil {
		return -1
	}
	return time.Since(c.LoadedAt).Seconds()
}

func objectID(noradID int) string {
	return strconv.Itoa(noradID)
}
