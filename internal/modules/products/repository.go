// Package products holds the catalogue repositories plus the comparison
// and price-trend services built on them.
package products

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pricelens/pricelens/internal/database"
)

// Platform is one marketplace.
type Platform struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	IsActive    bool   `json:"is_active"`
}

// Product is one catalogue entry.
type Product struct {
	ID         int64          `json:"id"`
	Name       string         `json:"name"`
	Slug       string         `json:"slug"`
	CategoryID sql.NullInt64  `json:"category_id"`
	BrandID    sql.NullInt64  `json:"brand_id"`
	PackSize   sql.NullString `json:"pack_size"`
}

// PlatformRepository reads the platforms table.
type PlatformRepository struct {
	db  *database.DB
	log zerolog.Logger
}

func NewPlatformRepository(db *database.DB, log zerolog.Logger) *PlatformRepository {
	return &PlatformRepository{db: db, log: log.With().Str("repository", "platforms").Logger()}
}

// Active lists active platforms ordered by name.
func (r *PlatformRepository) Active(ctx context.Context) ([]Platform, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, display_name, is_active FROM platforms WHERE is_active = 1 ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list platforms: %w", err)
	}
	defer rows.Close()

	var out []Platform
	for rows.Next() {
		var p Platform
		if err := rows.Scan(&p.ID, &p.Name, &p.DisplayName, &p.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan platform: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ByName looks a platform up by exact name.
func (r *PlatformRepository) ByName(ctx context.Context, name string) (*Platform, error) {
	var p Platform
	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, display_name, is_active FROM platforms WHERE name = ?", name).
		Scan(&p.ID, &p.Name, &p.DisplayName, &p.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up platform %s: %w", name, err)
	}
	return &p, nil
}

// ProductRepository reads the products table.
type ProductRepository struct {
	db  *database.DB
	log zerolog.Logger
}

func NewProductRepository(db *database.DB, log zerolog.Logger) *ProductRepository {
	return &ProductRepository{db: db, log: log.With().Str("repository", "products").Logger()}
}

// SearchByName finds active products whose name contains the term.
func (r *ProductRepository) SearchByName(ctx context.Context, term string, limit int) ([]Product, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, slug, category_id, brand_id, pack_size
		FROM products
		WHERE is_active = 1 AND LOWER(name) LIKE ?
		ORDER BY name LIMIT ?`,
		"%"+strings.ToLower(term)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search products: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Slug, &p.CategoryID, &p.BrandID, &p.PackSize); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
