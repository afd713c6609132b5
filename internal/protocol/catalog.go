package protocol

import (
	"errors"
	"fmt"
	"sort"
)

// ErrEmptyCatalog is returned when a stimulus must be resolved but the
// catalog holds no entry that satisfies the request. It is fatal to session
// start: an empty catalog desynchronizes trial numbering from the controller.
var ErrEmptyCatalog = errors.New("stimulus catalog is empty")

// Catalog is the session's set of stimulus definitions grouped by category.
// Entries are added at setup time; Add and Remove must not be called while a
// session is consuming the catalog.
type Catalog struct {
	byCategory map[Category][]*Stimulus
	ids        idAllocator
}

// NewCatalog builds a catalog from specs, assigning each stimulus an id from
// the catalog's free-list in spec order.
func NewCatalog(specs []StimulusSpec) (*Catalog, error) {
	c := &Catalog{byCategory: make(map[Category][]*Stimulus)}
	for i, spec := range specs {
		if _, err := c.Add(spec); err != nil {
			return nil, fmt.Errorf("stimulus %d: %w", i, err)
		}
	}
	return c, nil
}

// Add constructs a stimulus from spec and files it under its category. The
// id comes from the free-list, so ids released by Remove are reused.
func (c *Catalog) Add(spec StimulusSpec) (*Stimulus, error) {
	if !spec.Category.Valid() {
		return nil, fmt.Errorf("unknown category %q", spec.Category)
	}
	s := &Stimulus{
		ID:          c.ids.acquire(),
		Category:    spec.Category,
		Odors:       append([]OdorSource(nil), spec.Odors...),
		Flows:       append([]FlowPair(nil), spec.Flows...),
		Pulses:      append([]LightPulse(nil), spec.Pulses...),
		Description: spec.Description,
	}
	c.byCategory[s.Category] = append(c.byCategory[s.Category], s)
	return s, nil
}

// Remove deletes the stimulus with the given id and releases the id back to
// the free-list. It reports whether an entry was removed.
func (c *Catalog) Remove(id int) bool {
	for cat, list := range c.byCategory {
		for i, s := range list {
			if s.ID == id {
				c.byCategory[cat] = append(list[:i], list[i+1:]...)
				c.ids.release(id)
				return true
			}
		}
	}
	return false
}

// Present returns the first stimulus-present entry, or nil if none exists.
func (c *Catalog) Present() *Stimulus {
	if list := c.byCategory[CategoryOdorOn]; len(list) > 0 {
		return list[0]
	}
	return nil
}

// Absent returns the first stimulus-absent entry, or nil if none exists.
func (c *Catalog) Absent() *Stimulus {
	if list := c.byCategory[CategoryOdorOff]; len(list) > 0 {
		return list[0]
	}
	return nil
}

// Categories returns the catalog's categories in a stable sorted order.
func (c *Catalog) Categories() []Category {
	cats := make([]Category, 0, len(c.byCategory))
	for cat := range c.byCategory {
		cats = append(cats, cat)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
	return cats
}

// All returns every stimulus, flattened in stable category order.
func (c *Catalog) All() []*Stimulus {
	var all []*Stimulus
	for _, cat := range c.Categories() {
		all = append(all, c.byCategory[cat]...)
	}
	return all
}

// Len returns the number of stimuli in the catalog.
func (c *Catalog) Len() int {
	n := 0
	for _, list := range c.byCategory {
		n += len(list)
	}
	return n
}

// idAllocator hands out unique positive stimulus ids. Released ids are
// reused before new ones are minted, smallest first.
type idAllocator struct {
	next int
	free []int
}

func (a *idAllocator) acquire() int {
	if len(a.free) > 0 {
		id := a.free[0]
		a.free = a.free[1:]
		return id
	}
	a.next++
	return a.next
}

func (a *idAllocator) release(id int) {
	i := sort.SearchInts(a.free, id)
	a.free = append(a.free, 0)
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = id
}
