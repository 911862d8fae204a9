package notifications

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"gopkg.in/yaml.v3"
)

// CatalogEntry describes how a notification type is gated and prioritized
// when AI prioritization is off.
type CatalogEntry struct {
	// Toggle is the preference key that enables or disables the type.
	Toggle          Type     `yaml:"toggle"`
	DefaultPriority Priority `yaml:"default_priority"`
}

var builtinCatalog = map[Type]CatalogEntry{
	TypeTaskDue:          {Toggle: TypeTaskDue, DefaultPriority: PriorityHigh},
	TypeTaskAssigned:     {Toggle: TypeTaskAssigned, DefaultPriority: PriorityMedium},
	TypeEmailImportant:   {Toggle: TypeEmailImportant, DefaultPriority: PriorityHigh},
	TypeCalendarReminder: {Toggle: TypeCalendarReminder, DefaultPriority: PriorityMedium},
	TypeAIInsight:        {Toggle: TypeAIInsight, DefaultPriority: PriorityLow},
	TypeUsageLimit:       {Toggle: TypeUsageLimit, DefaultPriority: PriorityHigh},
}

// TypeCatalog maps notification types to exactly one preference toggle and a
// static default priority. It is read-only after construction.
type TypeCatalog struct {
	entries map[Type]CatalogEntry
}

// DefaultCatalog returns the catalog of built-in types.
func DefaultCatalog() *TypeCatalog {
	return &TypeCatalog{entries: maps.Clone(builtinCatalog)}
}

// NewCatalog builds a catalog from the built-in types plus extra. Entries in
// extra replace built-ins with the same type.
func NewCatalog(extra map[Type]CatalogEntry) (*TypeCatalog, error) {
	c := DefaultCatalog()
	for t, entry := range extra {
		if t == "" {
			return nil, fmt.Errorf("%w: empty type name", ErrInvalidCatalog)
		}
		if entry.Toggle == "" {
			entry.Toggle = t
		}
		if entry.DefaultPriority == "" {
			entry.DefaultPriority = PriorityMedium
		}
		if !entry.DefaultPriority.Valid() {
			return nil, fmt.Errorf("%w: type %q has unknown priority %q", ErrInvalidCatalog, t, entry.DefaultPriority)
		}
		c.entries[t] = entry
	}
	return c, nil
}

type catalogFile struct {
	Types map[Type]CatalogEntry `yaml:"types"`
}

// LoadCatalog reads catalog overrides from YAML:
//
//	types:
//	  task_overdue:
//	    toggle: task_due
//	    default_priority: urgent
func LoadCatalog(r io.Reader) (*TypeCatalog, error) {
	var f catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Join(ErrInvalidCatalog, err)
	}
	return NewCatalog(f.Types)
}

// Lookup returns the entry for t. ok is false for types the catalog doesn't know.
func (c *TypeCatalog) Lookup(t Type) (CatalogEntry, bool) {
	entry, ok := c.entries[t]
	return entry, ok
}

// DefaultPriority returns the static priority for t, medium for unknown types.
func (c *TypeCatalog) DefaultPriority(t Type) Priority {
	if entry, ok := c.entries[t]; ok {
		return entry.DefaultPriority
	}
	return PriorityMedium
}

// Toggles lists the distinct preference keys referenced by the catalog, sorted.
func (c *TypeCatalog) Toggles() []Type {
	seen := make(map[Type]struct{}, len(c.entries))
	for _, entry := range c.entries {
		seen[entry.Toggle] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen))
}
