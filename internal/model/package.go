// Package model defines catalog packages and search requests.
package model

import (
	"time"
)

// State is the lifecycle state shared by packages and their extras.
type State string

const (
	StateActive  State = "active"
	StateDeleted State = "deleted"
)

// SpatialKey is the extra key holding a package's GeoJSON geometry.
const SpatialKey = "spatial"

// Extra is a key/value metadata field attached to a package.
type Extra struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
	State State  `json:"state,omitempty" yaml:"state,omitempty"`
}

// Package is a dataset record in the catalog.
type Package struct {
	ID        string    `json:"id" yaml:"id,omitempty"`
	Name      string    `json:"name" yaml:"name"`
	Title     string    `json:"title" yaml:"title"`
	Notes     string    `json:"notes,omitempty" yaml:"notes,omitempty"`
	State     State     `json:"state" yaml:"state,omitempty"`
	Extras    []Extra   `json:"extras" yaml:"extras,omitempty"`
	CreatedAt time.Time `json:"metadata_created" yaml:"-"`
	UpdatedAt time.Time `json:"metadata_modified" yaml:"-"`
}

// Extra returns the value of the first active extra with the given key.
func (p *Package) Extra(key string) (string, bool) {
	for _, e := range p.Extras {
		if e.Key == key && e.IsActive() {
			return e.Value, true
		}
	}
	return "", false
}

// SetExtra sets or adds an active extra.
func (p *Package) SetExtra(key, value string) {
	for i := range p.Extras {
		if p.Extras[i].Key == key {
			p.Extras[i].Value = value
			p.Extras[i].State = StateActive
			return
		}
	}
	p.Extras = append(p.Extras, Extra{Key: key, Value: value, State: StateActive})
}

// DeleteExtra marks every extra with the given key deleted. It reports
// whether any extra matched.
func (p *Package) DeleteExtra(key string) bool {
	found := false
	for i := range p.Extras {
		if p.Extras[i].Key == key {
			p.Extras[i].State = StateDeleted
			found = true
		}
	}
	return found
}

// MarkRemovedExtras appends, as deleted, every active extra of prev whose key
// p no longer carries.
func (p *Package) MarkRemovedExtras(prev *Package) {
	keys := make(map[string]bool, len(p.Extras))
	for _, e := range p.Extras {
		keys[e.Key] = true
	}
	for _, e := range prev.Extras {
		if keys[e.Key] || !e.IsActive() {
			continue
		}
		keys[e.Key] = true
		p.Extras = append(p.Extras, Extra{Key: e.Key, Value: e.Value, State: StateDeleted})
	}
}

// IsActive reports whether the extra is live. An empty state counts as active.
func (e Extra) IsActive() bool {
	return e.State == "" || e.State == StateActive
}

// Normalize fills defaults for states left empty by API callers.
func (p *Package) Normalize() {
	if p.State == "" {
		p.State = StateActive
	}
	for i := range p.Extras {
		if p.Extras[i].State == "" {
			p.Extras[i].State = StateActive
		}
	}
}

// Clone returns a deep copy of the package.
func (p *Package) Clone() *Package {
	c := *p
	c.Extras = append([]Extra(nil), p.Extras...)
	return &c
}
