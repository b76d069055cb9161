// Package restore reverses one historical mutation of one governed row.
package restore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"alumni/internal/audit"
	"alumni/internal/audit/schema"
	"alumni/pkg/platform/sqldialect"
)

// Applier writes restored state for one table inside the restore transaction.
type Applier interface {
	Table() *schema.Table
	// Lock takes the row lock and reports whether the row exists.
	Lock(ctx context.Context, q sqldialect.Queryer, key any) (bool, error)
	// RevertUpdate overwrites the live row with the columns present in img.
	RevertUpdate(ctx context.Context, q sqldialect.Queryer, key any, img audit.Image) error
	// Reinsert inserts img, or overwrites the row when the key is occupied.
	Reinsert(ctx context.Context, q sqldialect.Queryer, key any, img audit.Image) error
	// Remove deletes the live row.
	Remove(ctx context.Context, q sqldialect.Queryer, key any) error
}

// TableApplier is the column-driven Applier for a schema table. Columns whose
// image value is an omission marker are left untouched.
type TableApplier struct {
	table   *schema.Table
	dialect sqldialect.Dialect
}

func NewTableApplier(t *schema.Table, dialect sqldialect.Dialect) *TableApplier {
	return &TableApplier{table: t, dialect: dialect}
}

func (a *TableApplier) Table() *schema.Table { return a.table }

func (a *TableApplier) ident(name string) string { return a.dialect.QuoteIdent(name) }

// values coerces the non-key columns present in img, in declaration order.
func (a *TableApplier) values(img audit.Image) ([]string, []any, error) {
	var (
		cols []string
		args []any
	)
	for _, c := range a.table.Columns {
		if c.Name == a.table.Key {
			continue
		}
		raw, ok := img[c.Name]
		if !ok {
			continue
		}
		v, err := schema.Coerce(c, raw)
		if errors.Is(err, schema.ErrOmitted) {
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("restore %s: %w", a.table.Name, err)
		}
		cols = append(cols, c.Name)
		args = append(args, v)
	}
	return cols, args, nil
}

func (a *TableApplier) Lock(ctx context.Context, q sqldialect.Queryer, key any) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, a.dialect.Rebind(fmt.Sprintf("SELECT 1 FROM %s WHERE %s = ?%s",
		a.ident(a.table.Name), a.ident(a.table.Key), a.dialect.ForUpdate())), key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lock %s row: %w", a.table.Name, err)
	}
	return true, nil
}

func (a *TableApplier) RevertUpdate(ctx context.Context, q sqldialect.Queryer, key any, img audit.Image) error {
	cols, args, err := a.values(img)
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		return nil
	}
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = a.ident(c) + " = ?"
	}
	res, err := q.ExecContext(ctx, a.dialect.Rebind(fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		a.ident(a.table.Name), strings.Join(sets, ", "), a.ident(a.table.Key))), append(args, key)...)
	if err != nil {
		return fmt.Errorf("revert %s row: %w", a.table.Name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s row %v does not exist", audit.ErrUnknownTarget, a.table.Name, key)
	}
	return nil
}

func (a *TableApplier) Reinsert(ctx context.Context, q sqldialect.Queryer, key any, img audit.Image) error {
	cols, args, err := a.values(img)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(cols)+1)
	names = append(names, a.ident(a.table.Key))
	updates := make([]string, 0, len(cols))
	for _, c := range cols {
		names = append(names, a.ident(c))
		updates = append(updates, a.ident(c)+" = excluded."+a.ident(c))
	}
	conflict := "DO NOTHING"
	if len(updates) > 0 {
		conflict = "DO UPDATE SET " + strings.Join(updates, ", ")
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) %s",
		a.ident(a.table.Name), strings.Join(names, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", "),
		a.ident(a.table.Key), conflict)
	if _, err := q.ExecContext(ctx, a.dialect.Rebind(query), append([]any{key}, args...)...); err != nil {
		return fmt.Errorf("reinsert %s row: %w", a.table.Name, err)
	}
	return nil
}

func (a *TableApplier) Remove(ctx context.Context, q sqldialect.Queryer, key any) error {
	res, err := q.ExecContext(ctx, a.dialect.Rebind(fmt.Sprintf("DELETE FROM %s WHERE %s = ?",
		a.ident(a.table.Name), a.ident(a.table.Key))), key)
	if err != nil {
		return fmt.Errorf("remove %s row: %w", a.table.Name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s row %v does not exist", audit.ErrUnknownTarget, a.table.Name, key)
	}
	return nil
}

// Registry maps table names to appliers.
type Registry struct {
	mu       sync.RWMutex
	appliers map[string]Applier
}

// NewRegistry builds a TableApplier for every table in tables.
func NewRegistry(tables *schema.Registry, dialect sqldialect.Dialect) *Registry {
	r := &Registry{appliers: make(map[string]Applier)}
	for _, name := range tables.Tables() {
		t, _ := tables.Lookup(name)
		r.appliers[name] = NewTableApplier(t, dialect)
	}
	return r
}

// Register installs or replaces the applier for its table.
func (r *Registry) Register(a Applier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appliers[a.Table().Name] = a
}

// Lookup returns the applier for table or audit.ErrUnknownTarget.
func (r *Registry) Lookup(table string) (Applier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.appliers[table]
	if !ok {
		return nil, fmt.Errorf("%w: no restore handler for table %q", audit.ErrUnknownTarget, table)
	}
	return a, nil
}
