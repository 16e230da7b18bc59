package catalog

// Column describes one column of an introspected table.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	Indexed  bool   `json:"indexed"`
	PK       bool   `json:"pk"`
}

// ForeignKey describes a FK relationship from one table to another.
// FromColumns and ToColumns are parallel slices.
type ForeignKey struct {
	FromColumns []string `json:"from_columns"`
	ToTable     string   `json:"to_table"`
	ToColumns   []string `json:"to_columns"`
}

// Index describes a table index and the columns it covers.
type Index struct {
	Name    string   `json:"name"`
	Unique  bool     `json:"unique"`
	Columns []string `json:"columns"`
}

// Table is the introspected metadata for a single table.
type Table struct {
	Name          string       `json:"name"`
	Columns       []Column     `json:"columns"`
	PrimaryKey    []string     `json:"primary_key,omitempty"`
	ForeignKeys   []ForeignKey `json:"foreign_keys,omitempty"`
	Indexes       []Index      `json:"indexes,omitempty"`
	EstimatedRows int64        `json:"estimated_rows"`
}

// HasIndexOn reports whether any index covers the given column as its
// leading column. Single-column primary keys count as indexed.
func (t *Table) HasIndexOn(column string) bool {
	for _, idx := range t.Indexes {
		if len(idx.Columns) > 0 && idx.Columns[0] == column {
			return true
		}
	}
	if len(t.PrimaryKey) == 1 && t.PrimaryKey[0] == column {
		return true
	}
	return false
}

// Snapshot is the full introspection result, JSON-ready for the
// monitoring endpoints and hashed for staleness detection.
type Snapshot struct {
	Tables   []Table `json:"tables"`
	Checksum string  `json:"checksum"`
}
