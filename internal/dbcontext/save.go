package dbcontext

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/codefirst/internal/metadata"
	"github.com/roach88/codefirst/internal/migrations"
	"github.com/roach88/codefirst/internal/modelbuilder"
	"github.com/roach88/codefirst/internal/provider/sqlite"
	"github.com/roach88/codefirst/internal/services"
)

// DetectChanges compares tracked entities with their snapshots. SaveChanges
// and Set.State call it.
func (c *Context) DetectChanges() {
	c.tracker.detectChanges()
}

// SaveChanges writes every added, modified and deleted entity in one
// transaction and returns the number of entities written. Entities are
// validated first; nothing is written when validation fails. Foreign keys
// are copied from navigations to tracked principals before writing, and
// store-generated keys are read back after inserts.
func (c *Context) SaveChanges(ctx context.Context) (int, error) {
	c.tracker.detectChanges()
	for _, e := range c.tracker.entries {
		if e.state != Deleted {
			c.fixup(e)
		}
	}
	c.tracker.detectChanges()
	if err := c.tracker.validate(); err != nil {
		return 0, err
	}

	var inserts, deletes []*entry
	pending := 0
	for _, e := range c.tracker.entries {
		switch e.state {
		case Added:
			inserts = append(inserts, e)
		case Deleted:
			deletes = append(deletes, e)
		}
		if e.state != Unchanged {
			pending++
		}
	}
	if pending == 0 {
		return 0, nil
	}
	rank := c.tableRanks()
	byRank := func(es []*entry) {
		sort.SliceStable(es, func(i, j int) bool {
			return rank[es[i].em.Table.QualifiedName()] < rank[es[j].em.Table.QualifiedName()]
		})
	}
	byRank(inserts)
	byRank(deletes)

	db, err := c.open()
	if err != nil {
		return 0, err
	}
	strategy := c.cfg.ExecutionStrategy(c.conn.ProviderName, c.conn.Server)
	handler := c.cfg.TransactionHandler(c.conn.ProviderName, c.conn.Server)
	d := c.dispatcher()

	var updates []*entry
	err = strategy.Execute(ctx, func(ctx context.Context) error {
		tx, err := handler.Begin(ctx, db)
		if err != nil {
			return fmt.Errorf("dbcontext: begin: %w", err)
		}
		var generated []*entry
		generated, updates, err = c.write(ctx, d, tx, inserts, deletes)
		if err == nil {
			err = tx.Commit()
		} else {
			tx.Rollback()
		}
		if err != nil {
			// A retried attempt inserts again; generated keys must be unset.
			for _, e := range generated {
				e.em.Identity.Set(e.ptr, reflect.Zero(e.em.Identity.Type))
			}
			return err
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, e := range inserts {
		e.state = Unchanged
		e.snapshot()
		c.tracker.reindex(e)
	}
	for _, e := range updates {
		e.state = Unchanged
		e.snapshot()
		c.tracker.reindex(e)
	}
	for _, e := range deletes {
		c.tracker.detach(e)
	}
	n := len(inserts) + len(updates) + len(deletes)
	c.logger.Debug("changes saved",
		"context_id", c.id,
		"inserted", len(inserts),
		"updated", len(updates),
		"deleted", len(deletes))
	return n, nil
}

// write runs one attempt's commands: inserts principals first, then
// updates, then deletes dependents first. Foreign keys pointing at freshly
// inserted principals are fixed up before updating. It returns the entries
// whose generated key it set and the entries it updated.
func (c *Context) write(ctx context.Context, d *services.CommandDispatcher, tx *sql.Tx, inserts, deletes []*entry) (generated, updates []*entry, err error) {
	for _, e := range inserts {
		c.fixup(e)
		gen, err := c.insert(ctx, d, tx, e)
		if gen {
			generated = append(generated, e)
		}
		if err != nil {
			return generated, nil, err
		}
		// Push the new key into dependents still waiting to be inserted.
		c.fixup(e)
	}
	for _, e := range c.tracker.entries {
		if e.state != Unchanged && e.state != Modified {
			continue
		}
		c.fixup(e)
		e.detectChanges()
		if e.state == Modified {
			updates = append(updates, e)
		}
	}
	for _, e := range updates {
		if err := c.update(ctx, d, tx, e); err != nil {
			return generated, nil, err
		}
	}
	for i := len(deletes) - 1; i >= 0; i-- {
		if err := c.delete(ctx, d, tx, deletes[i]); err != nil {
			return generated, nil, err
		}
	}
	return generated, updates, nil
}

func (c *Context) insert(ctx context.Context, d *services.CommandDispatcher, tx *sql.Tx, e *entry) (bool, error) {
	var (
		cols []string
		args []any
	)
	for _, cm := range e.em.Columns {
		if cm.Column.Identity || cm.Column.Computed {
			continue
		}
		cols = append(cols, sqlite.Quote(cm.Column.Name))
		args = append(args, columnValue(cm, e.ptr))
	}
	table := sqlite.Quote(e.em.Table.Name)
	q := "INSERT INTO " + table + " DEFAULT VALUES"
	if len(cols) > 0 {
		q = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), placeholders(len(cols)))
	}
	res, err := d.Exec(ctx, tx, q, args...)
	if err != nil {
		return false, fmt.Errorf("dbcontext: insert %s: %w", e.em.EntityType.Name, err)
	}
	if e.em.Identity == nil {
		return false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("dbcontext: insert %s: %w", e.em.EntityType.Name, err)
	}
	v, err := convertValue(id, e.em.Identity.Type)
	if err != nil {
		return false, fmt.Errorf("dbcontext: insert %s: %w", e.em.EntityType.Name, err)
	}
	if err := e.em.Identity.Set(e.ptr, v); err != nil {
		return false, fmt.Errorf("dbcontext: %w", err)
	}
	return true, nil
}

func (c *Context) update(ctx context.Context, d *services.CommandDispatcher, tx *sql.Tx, e *entry) error {
	var (
		sets []string
		args []any
	)
	for _, cm := range e.em.Columns {
		if !e.modified[cm.Path] || cm.Column.Identity || cm.Column.Computed || isKey(e.em, cm) {
			continue
		}
		sets = append(sets, sqlite.Quote(cm.Column.Name)+" = ?")
		args = append(args, columnValue(cm, e.ptr))
	}
	if len(sets) == 0 {
		return nil
	}
	where, wargs := e.whereOriginal()
	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s", sqlite.Quote(e.em.Table.Name), strings.Join(sets, ", "), where)
	return c.execOne(ctx, d, tx, e, q, append(args, wargs...))
}

func (c *Context) delete(ctx context.Context, d *services.CommandDispatcher, tx *sql.Tx, e *entry) error {
	where, args := e.whereOriginal()
	q := fmt.Sprintf("DELETE FROM %s WHERE %s", sqlite.Quote(e.em.Table.Name), where)
	return c.execOne(ctx, d, tx, e, q, args)
}

// execOne runs a command that must affect exactly one row.
func (c *Context) execOne(ctx context.Context, d *services.CommandDispatcher, tx *sql.Tx, e *entry, q string, args []any) error {
	res, err := d.Exec(ctx, tx, q, args...)
	if err != nil {
		return fmt.Errorf("dbcontext: %s %s: %w", strings.ToLower(strings.Fields(q)[0]), e.em.EntityType.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("dbcontext: %w", err)
	}
	if n == 0 {
		return &ConcurrencyError{EntityType: e.em.EntityType.Name, Entity: e.ptr.Interface()}
	}
	return nil
}

// whereOriginal matches the row by key and by the original values of the
// concurrency tokens.
func (e *entry) whereOriginal() (string, []any) {
	var (
		conds []string
		args  []any
	)
	for i, cm := range e.em.Columns {
		if !isKey(e.em, cm) && !cm.Property.ConcurrencyToken {
			continue
		}
		col := sqlite.Quote(cm.Column.Name)
		if e.original[i] == nil {
			conds = append(conds, col+" IS NULL")
			continue
		}
		conds = append(conds, col+" = ?")
		args = append(args, e.original[i])
	}
	return strings.Join(conds, " AND "), args
}

func isKey(em *modelbuilder.EntityMap, cm *modelbuilder.ColumnMap) bool {
	for _, k := range em.Key {
		if k == cm {
			return true
		}
	}
	return false
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// tableRanks orders tables principals first.
func (c *Context) tableRanks() map[string]int {
	tables := migrations.OrderTables(c.compiled.Tables())
	rank := make(map[string]int, len(tables))
	for i, t := range tables {
		rank[t.QualifiedName()] = i
	}
	return rank
}

// fixup copies principal keys into e's foreign key properties for every
// tracked principal e references, and into every tracked dependent e's
// navigations hold.
func (c *Context) fixup(e *entry) {
	name := e.em.EntityType.Name
	for _, a := range c.compiled.Associations() {
		if a.Constraint == nil {
			continue
		}
		principal, dependent, ok := a.Principal()
		if !ok {
			continue
		}
		if dependent.EntityType == name && dependent.Navigation != "" {
			for _, p := range navItems(e.ptr, dependent.Navigation) {
				if pe := c.tracker.lookup(p); pe != nil && pe.state != Deleted {
					copyKey(pe, e, a.Constraint)
				}
			}
		}
		if principal.EntityType == name && principal.Navigation != "" {
			for _, dp := range navItems(e.ptr, principal.Navigation) {
				if de := c.tracker.lookup(dp); de != nil && de.state != Deleted {
					copyKey(e, de, a.Constraint)
				}
			}
		}
	}
}

// copyKey sets d's foreign key properties from p's key, unless p's key is
// still to be generated.
func copyKey(p, d *entry, rc *metadata.ReferentialConstraint) {
	if p.state == Added && isGeneratedKeyUnset(p) {
		return
	}
	for i, pname := range rc.PrincipalProperties {
		if i >= len(rc.DependentProperties) {
			return
		}
		pcm, ok1 := p.em.Column(pname)
		dcm, ok2 := d.em.Column(rc.DependentProperties[i])
		if !ok1 || !ok2 {
			continue
		}
		raw := columnValue(pcm, p.ptr)
		if raw == nil {
			continue
		}
		v, err := convertValue(raw, dcm.Type)
		if err != nil {
			continue
		}
		dcm.Set(d.ptr, v)
	}
}

// trackReachable tracks, in state, every untracked entity reachable from
// ptr through navigations.
func (c *Context) trackReachable(ptr reflect.Value, state EntityState) error {
	e := c.tracker.lookup(ptr)
	if e == nil {
		return nil
	}
	for _, nav := range e.em.EntityType.Navigations {
		for _, item := range navItems(ptr, nav.Name) {
			if c.tracker.lookup(item) != nil {
				continue
			}
			em, ok := c.compiled.Entity(item.Type().Elem())
			if !ok {
				continue
			}
			if _, err := c.tracker.track(item, em, state); err != nil {
				return err
			}
			if err := c.trackReachable(item, state); err != nil {
				return err
			}
		}
	}
	return nil
}

// navItems returns pointers to the entities a navigation field holds: the
// target of a reference, or every element of a collection.
func navItems(ptr reflect.Value, name string) []reflect.Value {
	f, ok := metadata.Field(ptr.Type().Elem(), name)
	if !ok {
		return nil
	}
	v, err := ptr.Elem().FieldByIndexErr(f.Index)
	if err != nil {
		return nil
	}
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() || v.Elem().Kind() != reflect.Struct {
			return nil
		}
		return []reflect.Value{v}
	case reflect.Slice:
		out := make([]reflect.Value, 0, v.Len())
		for i := range v.Len() {
			item := v.Index(i)
			switch {
			case item.Kind() == reflect.Pointer && !item.IsNil():
				out = append(out, item)
			case item.Kind() == reflect.Struct:
				out = append(out, item.Addr())
			}
		}
		return out
	}
	return nil
}
