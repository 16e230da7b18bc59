// Package embedding maps natural-language queries to relevant tables and
// columns by cosine similarity over synthesised schema descriptions.
//
// Vectors are unit-norm, so cosine similarity reduces to a dot product.
// The full vector set is persisted to disk as a msgpack blob and rebuilt
// when the blob is older than the staleness horizon or the schema checksum
// changed. Per-query lookups are cached in the cache layer for 30 minutes.
package embedding

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"

	"github.com/pricelens/pricelens/internal/cache"
	"github.com/pricelens/pricelens/internal/modules/catalog"
)

// TableHit is one ranked table.
type TableHit struct {
	Table      string  `json:"table" msgpack:"table"`
	Similarity float64 `json:"similarity" msgpack:"similarity"`
}

// ColumnHit is one ranked column within a table.
type ColumnHit struct {
	Column     string  `json:"column" msgpack:"column"`
	Similarity float64 `json:"similarity" msgpack:"similarity"`
}

// JoinSuggestion is a candidate join condition between two tables.
type JoinSuggestion struct {
	From       string  `json:"from"`
	To         string  `json:"to"`
	Condition  string  `json:"condition"`
	Confidence float64 `json:"confidence"`
}

// Index holds the table and column vectors and answers relevance queries.
type Index struct {
	catalog  *catalog.Catalog
	embedder Embedder
	store    *Store
	cache    *cache.Manager
	stale    time.Duration
	log      zerolog.Logger

	mu      sync.RWMutex
	tables  map[string][]float64
	columns map[string]map[string][]float64 // table -> column -> vector
}

// NewIndex creates the embedding index. Call EnsureBuilt before first use.
func NewIndex(cat *catalog.Catalog, embedder Embedder, store *Store, cacheMgr *cache.Manager, staleness time.Duration, log zerolog.Logger) *Index {
	return &Index{
		catalog:  cat,
		embedder: embedder,
		store:    store,
		cache:    cacheMgr,
		stale:    staleness,
		log:      log.With().Str("component", "embedding").Logger(),
		tables:   make(map[string][]float64),
		columns:  make(map[string]map[string][]float64),
	}
}

// EnsureBuilt loads the persisted blob when it is fresh and matches the
// current schema, otherwise rebuilds from scratch and persists.
func (idx *Index) EnsureBuilt(ctx context.Context) error {
	checksum := idx.catalog.Checksum()

	if age, ok := idx.store.Age(); ok && age < idx.stale {
		if blob, ok := idx.store.Load(); ok &&
			blob.SchemaChecksum == checksum &&
			blob.EmbedderName == idx.embedder.Name() {
			idx.install(blob)
			idx.log.Info().
				Int("tables", len(blob.Tables)).
				Dur("age", age).
				Msg("Loaded embedding blob from disk")
			return nil
		}
	}

	return idx.Rebuild(ctx)
}

// Rebuild re-embeds every table and column description and persists the blob.
func (idx *Index) Rebuild(ctx context.Context) error {
	start := time.Now()
	blob := &Blob{
		Version:        blobVersion,
		SchemaChecksum: idx.catalog.Checksum(),
		EmbedderName:   idx.embedder.Name(),
		CreatedAt:      time.Now(),
		Tables:         make(map[string][]float64),
		Columns:        make(map[string][]float64),
	}

	for _, name := range idx.catalog.Tables() {
		table, ok := idx.catalog.Table(name)
		if !ok {
			continue
		}

		vec, err := idx.embedder.Embed(ctx, TableDescription(table))
		if err != nil {
			return fmt.Errorf("failed to embed table %s: %w", name, err)
		}
		blob.Tables[name] = vec

		for _, col := range table.Columns {
			cvec, err := idx.embedder.Embed(ctx, ColumnDescription(table, col))
			if err != nil {
				return fmt.Errorf("failed to embed column %s.%s: %w", name, col.Name, err)
			}
			blob.Columns[name+"."+col.Name] = cvec
		}
	}

	if err := idx.store.Save(blob); err != nil {
		// Persistence failure is not fatal; the in-memory index still works
		idx.log.Warn().Err(err).Msg("Failed to persist embedding blob")
	}

	idx.install(blob)
	idx.log.Info().
		Int("tables", len(blob.Tables)).
		Int("columns", len(blob.Columns)).
		Dur("took", time.Since(start)).
		Msg("Embedding index rebuilt")
	return nil
}

func (idx *Index) install(blob *Blob) {
	tables := make(map[string][]float64, len(blob.Tables))
	for name, vec := range blob.Tables {
		tables[name] = vec
	}
	columns := make(map[string]map[string][]float64)
	for key, vec := range blob.Columns {
		dot := strings.LastIndex(key, ".")
		if dot < 0 {
			continue
		}
		table, col := key[:dot], key[dot+1:]
		if columns[table] == nil {
			columns[table] = make(map[string][]float64)
		}
		columns[table][col] = vec
	}

	idx.mu.Lock()
	idx.tables = tables
	idx.columns = columns
	idx.mu.Unlock()
}

// RelevantTables embeds the query and returns tables whose cosine
// similarity meets the threshold, sorted descending, at most topK.
func (idx *Index) RelevantTables(ctx context.Context, query string, topK int, threshold float64) ([]TableHit, error) {
	cacheKey := cache.HashKey("tables", query, strconv.Itoa(topK), strconv.FormatFloat(threshold, 'f', -1, 64))
	var cached []TableHit
	if idx.cache != nil && idx.cache.GetTableEmbeddings(cacheKey, &cached) {
		return cached, nil
	}

	qvec, err := idx.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	idx.mu.RLock()
	hits := make([]TableHit, 0, len(idx.tables))
	for table, vec := range idx.tables {
		sim := cosine(qvec, vec)
		if sim >= threshold {
			hits = append(hits, TableHit{Table: table, Similarity: sim})
		}
	}
	idx.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].Table < hits[j].Table
	})
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}

	if idx.cache != nil {
		idx.cache.CacheTableEmbeddings(cacheKey, hits)
	}
	return hits, nil
}

// RelevantColumns ranks the columns of the given tables against the query.
func (idx *Index) RelevantColumns(ctx context.Context, query string, tables []string, topK int) (map[string][]ColumnHit, error) {
	qvec, err := idx.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make(map[string][]ColumnHit, len(tables))
	for _, table := range tables {
		cols, ok := idx.columns[table]
		if !ok {
			continue
		}
		hits := make([]ColumnHit, 0, len(cols))
		for col, vec := range cols {
			hits = append(hits, ColumnHit{Column: col, Similarity: cosine(qvec, vec)})
		}
		sort.Slice(hits, func(i, j int) bool {
			if hits[i].Similarity != hits[j].Similarity {
				return hits[i].Similarity > hits[j].Similarity
			}
			return hits[i].Column < hits[j].Column
		})
		if topK > 0 && len(hits) > topK {
			hits = hits[:topK]
		}
		out[table] = hits
	}
	return out, nil
}

// JoinSuggestions proposes join conditions between the given tables using
// FK metadata (confidence 1.0) and a common-column-name heuristic (0.5).
func (idx *Index) JoinSuggestions(tables []string) []JoinSuggestion {
	inSet := make(map[string]bool, len(tables))
	for _, t := range tables {
		inSet[t] = true
	}

	var out []JoinSuggestion
	seen := make(map[string]bool)

	// Direct FK relationships
	for _, from := range tables {
		fks, ok := idx.catalog.ForeignKeys(from)
		if !ok {
			continue
		}
		for _, fk := range fks {
			if !inSet[fk.ToTable] || len(fk.FromColumns) == 0 {
				continue
			}
			cond := fmt.Sprintf("%s.%s = %s.%s", from, fk.FromColumns[0], fk.ToTable, fk.ToColumns[0])
			if seen[cond] {
				continue
			}
			seen[cond] = true
			out = append(out, JoinSuggestion{From: from, To: fk.ToTable, Condition: cond, Confidence: 1.0})
		}
	}

	// Common-name heuristic for pairs without a direct FK
	for i := 0; i < len(tables); i++ {
		for j := i + 1; j < len(tables); j++ {
			a, b := tables[i], tables[j]
			if hasSuggestion(out, a, b) {
				continue
			}
			if col, ok := commonColumn(idx.catalog, a, b); ok {
				cond := fmt.Sprintf("%s.%s = %s.%s", a, col, b, col)
				if !seen[cond] {
					seen[cond] = true
					out = append(out, JoinSuggestion{From: a, To: b, Condition: cond, Confidence: 0.5})
				}
			}
		}
	}

	return out
}

func hasSuggestion(suggestions []JoinSuggestion, a, b string) bool {
	for _, s := range suggestions {
		if (s.From == a && s.To == b) || (s.From == b && s.To == a) {
			return true
		}
	}
	return false
}

// commonColumn finds a shared non-id column name, preferring *_id columns.
func commonColumn(cat *catalog.Catalog, a, b string) (string, bool) {
	colsA, okA := cat.Columns(a)
	colsB, okB := cat.Columns(b)
	if !okA || !okB {
		return "", false
	}
	namesB := make(map[string]bool, len(colsB))
	for _, c := range colsB {
		namesB[c.Name] = true
	}

	var fallback string
	for _, c := range colsA {
		if c.Name == "id" || !namesB[c.Name] {
			continue
		}
		if strings.HasSuffix(c.Name, "_id") {
			return c.Name, true
		}
		if fallback == "" {
			fallback = c.Name
		}
	}
	if fallback != "" {
		return fallback, true
	}
	return "", false
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	// Unit-norm vectors: cosine == dot product
	return floats.Dot(a, b)
}
