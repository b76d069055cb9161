// Package schema describes the governed tables: their columns, key and how a
// row is turned into an image and back into driver values.
package schema

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"alumni/internal/audit"
)

// Kind is the storage class of a column.
type Kind string

const (
	KindText    Kind = "text"
	KindInt     Kind = "int"
	KindNumeric Kind = "numeric"
	KindBool    Kind = "bool"
	KindTime    Kind = "time"
	KindBinary  Kind = "binary"
	KindJSON    Kind = "json"
)

// Column is one governed column.
type Column struct {
	Name     string
	Kind     Kind
	Nullable bool
}

// Table is the static description of a governed table.
type Table struct {
	Name    string
	Key     string
	Columns []Column
	// RowKey overrides key extraction for tables whose identity is not a single column.
	RowKey func(audit.Image) (string, error)

	byName map[string]Column
}

// Validate checks the definition and builds the column index.
func (t *Table) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("table without name")
	}
	t.byName = make(map[string]Column, len(t.Columns))
	for _, c := range t.Columns {
		if c.Name == "" {
			return fmt.Errorf("table %s: column without name", t.Name)
		}
		if _, dup := t.byName[c.Name]; dup {
			return fmt.Errorf("table %s: duplicate column %s", t.Name, c.Name)
		}
		t.byName[c.Name] = c
	}
	key, ok := t.byName[t.Key]
	if !ok {
		return fmt.Errorf("table %s: key column %q not declared", t.Name, t.Key)
	}
	if key.Kind != KindInt && key.Kind != KindText {
		return fmt.Errorf("table %s: key column must be int or text, got %s", t.Name, key.Kind)
	}
	return nil
}

// Column looks up a column by name.
func (t *Table) Column(name string) (Column, bool) {
	c, ok := t.byName[name]
	return c, ok
}

// KeyColumn returns the key column.
func (t *Table) KeyColumn() Column {
	return t.byName[t.Key]
}

// ColumnNames returns the declared column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// RowKeyOf extracts the row identity from an image.
func (t *Table) RowKeyOf(img audit.Image) (string, error) {
	if t.RowKey != nil {
		return t.RowKey(img)
	}
	v, ok := img[t.Key]
	if !ok || v == nil {
		return "", fmt.Errorf("%w: %s image has no %s", audit.ErrInvalidRowKey, t.Name, t.Key)
	}
	var s string
	switch x := v.(type) {
	case string:
		s = x
	default:
		s = fmt.Sprint(x)
	}
	if _, err := t.ParseKey(s); err != nil {
		return "", err
	}
	return s, nil
}

// ParseKey converts a row key string to the key column's driver type.
func (t *Table) ParseKey(rowKey string) (any, error) {
	rowKey = strings.TrimSpace(rowKey)
	if rowKey == "" {
		return nil, fmt.Errorf("%w: empty key for %s", audit.ErrInvalidRowKey, t.Name)
	}
	if t.KeyColumn().Kind == KindInt {
		n, err := strconv.ParseInt(rowKey, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s wants an integer, got %q", audit.ErrInvalidRowKey, t.Name, t.Key, rowKey)
		}
		return n, nil
	}
	return rowKey, nil
}

// Registry holds the governed tables by name.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]*Table
}

func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]*Table)}
}

// Register validates and adds a table. Names are unique.
func (r *Registry) Register(t Table) error {
	if err := t.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tables[t.Name]; exists {
		return fmt.Errorf("table %s already registered", t.Name)
	}
	r.tables[t.Name] = &t
	return nil
}

// MustRegister is Register for static definitions.
func (r *Registry) MustRegister(tables ...Table) *Registry {
	for _, t := range tables {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
	return r
}

// Lookup returns the table definition.
func (r *Registry) Lookup(name string) (*Table, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[name]
	return t, ok
}

// Tables returns the registered table names, sorted.
func (r *Registry) Tables() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tables))
	for n := range r.tables {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
