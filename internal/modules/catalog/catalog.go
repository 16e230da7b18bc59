// Package catalog introspects the live database schema (tables, columns,
// primary keys, foreign keys, indexes) and exposes the cached metadata to
// the rest of the query pipeline. Downstream components consult the
// catalogue instead of hard-coded table lists.
package catalog

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/pricelens/pricelens/internal/database"
)

// Catalog holds the cached schema snapshot. Refresh re-introspects; all
// readers see a consistent snapshot behind the RWMutex.
type Catalog struct {
	db  *database.DB
	log zerolog.Logger

	mu      sync.RWMutex
	byName  map[string]*Table
	names   []string
	checksm string
}

// New creates a schema catalogue. Call Refresh before first use.
func New(db *database.DB, log zerolog.Logger) *Catalog {
	return &Catalog{
		db:     db,
		log:    log.With().Str("component", "catalog").Logger(),
		byName: make(map[string]*Table),
	}
}

// Refresh re-introspects the schema and swaps the cached snapshot.
func (c *Catalog) Refresh(ctx context.Context) error {
	names, err := c.listTables(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tables: %w", err)
	}

	byName := make(map[string]*Table, len(names))
	for _, name := range names {
		table, err := c.introspectTable(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to introspect table %s: %w", name, err)
		}
		byName[name] = table
	}

	checksum := computeChecksum(names, byName)

	c.mu.Lock()
	c.byName = byName
	c.names = names
	c.checksm = checksum
	c.mu.Unlock()

	c.log.Info().Int("tables", len(names)).Str("checksum", checksum[:12]).Msg("Schema catalogue refreshed")
	return nil
}

// Tables returns the sorted set of known table names.
func (c *Catalog) Tables() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Has reports whether a table exists in the snapshot.
func (c *Catalog) Has(table string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.byName[table]
	return ok
}

// Table returns the metadata for one table.
func (c *Catalog) Table(name string) (*Table, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.byName[name]
	return t, ok
}

// Columns returns the column metadata for a table.
func (c *Catalog) Columns(table string) ([]Column, bool) {
	t, ok := c.Table(table)
	if !ok {
		return nil, false
	}
	return t.Columns, true
}

// ForeignKeys returns the FK metadata for a table.
func (c *Catalog) ForeignKeys(table string) ([]ForeignKey, bool) {
	t, ok := c.Table(table)
	if !ok {
		return nil, false
	}
	return t.ForeignKeys, true
}

// Snapshot returns a JSON-ready copy of the full schema.
func (c *Catalog) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tables := make([]Table, 0, len(c.names))
	for _, name := range c.names {
		tables = append(tables, *c.byName[name])
	}
	return Snapshot{Tables: tables, Checksum: c.checksm}
}

// Checksum returns the current schema checksum.
func (c *Catalog) Checksum() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.checksm
}

func (c *Catalog) listTables(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master
		 WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		 ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (c *Catalog) introspectTable(ctx context.Context, name string) (*Table, error) {
	table := &Table{Name: name}

	// Columns and primary key
	rows, err := c.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", name))
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var (
			cid     int
			colName string
			colType string
			notNull int
			dflt    interface{}
			pk      int
		)
		if err := rows.Scan(&cid, &colName, &colType, &notNull, &dflt, &pk); err != nil {
			rows.Close()
			return nil, err
		}
		table.Columns = append(table.Columns, Column{
			Name:     colName,
			Type:     strings.ToUpper(colType),
			Nullable: notNull == 0,
			PK:       pk > 0,
		})
		if pk > 0 {
			table.PrimaryKey = append(table.PrimaryKey, colName)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Foreign keys: group multi-column FKs by their id
	fkRows, err := c.db.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%q)", name))
	if err != nil {
		return nil, err
	}
	fkByID := make(map[int]*ForeignKey)
	var fkOrder []int
	for fkRows.Next() {
		var (
			id, seq                       int
			toTable, from                 string
			to                            sql.NullString
			onUpdate, onDelete, matchMode string
		)
		if err := fkRows.Scan(&id, &seq, &toTable, &from, &to, &onUpdate, &onDelete, &matchMode); err != nil {
			fkRows.Close()
			return nil, err
		}
		fk, ok := fkByID[id]
		if !ok {
			fk = &ForeignKey{ToTable: toTable}
			fkByID[id] = fk
			fkOrder = append(fkOrder, id)
		}
		fk.FromColumns = append(fk.FromColumns, from)
		toCol := to.String
		if toCol == "" {
			toCol = "id" // implicit reference to the parent's primary key
		}
		fk.ToColumns = append(fk.ToColumns, toCol)
	}
	fkRows.Close()
	if err := fkRows.Err(); err != nil {
		return nil, err
	}
	for _, id := range fkOrder {
		table.ForeignKeys = append(table.ForeignKeys, *fkByID[id])
	}

	// Indexes
	idxRows, err := c.db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_list(%q)", name))
	if err != nil {
		return nil, err
	}
	type idxMeta struct {
		name   string
		unique bool
	}
	var idxMetas []idxMeta
	for idxRows.Next() {
		var (
			seq     int
			idxName string
			unique  int
			origin  string
			partial int
		)
		if err := idxRows.Scan(&seq, &idxName, &unique, &origin, &partial); err != nil {
			idxRows.Close()
			return nil, err
		}
		idxMetas = append(idxMetas, idxMeta{name: idxName, unique: unique == 1})
	}
	idxRows.Close()
	if err := idxRows.Err(); err != nil {
		return nil, err
	}

	for _, meta := range idxMetas {
		colRows, err := c.db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_info(%q)", meta.name))
		if err != nil {
			return nil, err
		}
		idx := Index{Name: meta.name, Unique: meta.unique}
		for colRows.Next() {
			var seqno, cid int
			var colName sql.NullString
			if err := colRows.Scan(&seqno, &cid, &colName); err != nil {
				colRows.Close()
				return nil, err
			}
			if colName.Valid {
				idx.Columns = append(idx.Columns, colName.String)
			}
		}
		colRows.Close()
		if err := colRows.Err(); err != nil {
			return nil, err
		}
		table.Indexes = append(table.Indexes, idx)
	}

	// Mark indexed columns
	for i := range table.Columns {
		if table.HasIndexOn(table.Columns[i].Name) {
			table.Columns[i].Indexed = true
		}
	}

	// Row count estimate for the planner's cost model
	var count int64
	if err := c.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %q", name)).Scan(&count); err == nil {
		table.EstimatedRows = count
	}

	return table, nil
}

// computeChecksum hashes the structural parts of the schema so callers can
// detect drift without comparing full snapshots.
func computeChecksum(names []string, byName map[string]*Table) string {
	h := sha256.New()
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)

	for _, name := range sorted {
		t := byName[name]
		fmt.Fprintf(h, "%s|", name)
		for _, col := range t.Columns {
			fmt.Fprintf(h, "%s:%s:%v;", col.Name, col.Type, col.Nullable)
		}
		for _, fk := range t.ForeignKeys {
			fmt.Fprintf(h, "fk:%v->%s.%v;", fk.FromColumns, fk.ToTable, fk.ToColumns)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
