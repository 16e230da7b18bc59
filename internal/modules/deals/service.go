// Package deals serves discounted-product listings and promotional
// campaign lookups.
package deals

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pricelens/pricelens/internal/apierror"
	"github.com/pricelens/pricelens/internal/database"
)

// Filter narrows a deals listing.
type Filter struct {
	Platform     string
	Category     string
	MinDiscount  float64
	FeaturedOnly bool
	Limit        int
}

const maxLimit = 100

// Validate checks filter bounds against the known platform set.
func (f *Filter) Validate(knownPlatforms []string) *apierror.Error {
	if f.MinDiscount < 0 || f.MinDiscount > 100 {
		return apierror.Validation("min_discount must be between 0 and 100")
	}
	if f.Limit < 0 || f.Limit > maxLimit {
		return apierror.Validation(fmt.Sprintf("limit must be between 0 and %d", maxLimit))
	}
	if f.Limit == 0 {
		f.Limit = 50
	}
	if f.Platform != "" {
		found := false
		for _, p := range knownPlatforms {
			if strings.EqualFold(p, f.Platform) {
				f.Platform = p
				found = true
				break
			}
		}
		if !found {
			return apierror.Validation(
				fmt.Sprintf("unknown platform %q", f.Platform),
				"known platforms: "+strings.Join(knownPlatforms, ", "))
		}
	}
	return nil
}

// Deal is one discounted offer.
type Deal struct {
	ProductID          int64    `json:"product_id"`
	ProductName        string   `json:"product_name"`
	PlatformName       string   `json:"platform_name"`
	CurrentPrice       float64  `json:"current_price"`
	OriginalPrice      *float64 `json:"original_price,omitempty"`
	DiscountPercentage float64  `json:"discount_percentage"`
	Savings            float64  `json:"savings"`
	IsAvailable        bool     `json:"is_available"`
	LastUpdated        string   `json:"last_updated"`
}

// Campaign is one promotional campaign.
type Campaign struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	PlatformName string `json:"platform_name,omitempty"`
	StartsAt     string `json:"starts_at"`
	EndsAt       string `json:"ends_at"`
	IsFeatured   bool   `json:"is_featured"`
	ProductCount int    `json:"product_count"`
}

// Service answers deals and campaign queries.
type Service struct {
	db  *database.DB
	log zerolog.Logger
}

func NewService(db *database.DB, log zerolog.Logger) *Service {
	return &Service{db: db, log: log.With().Str("component", "deals").Logger()}
}

// List returns discounted items matching the filter, best discount first.
func (s *Service) List(ctx context.Context, filter Filter) ([]Deal, error) {
	sqlText := `
		SELECT p.id, p.name, pl.name, cp.price, cp.original_price,
		       cp.discount_percentage, cp.is_available, cp.last_updated
		FROM current_prices cp
		JOIN products p ON cp.product_id = p.id
		JOIN platforms pl ON cp.platform_id = pl.id
		WHERE pl.is_active = 1
		  AND cp.is_available = 1
		  AND cp.discount_percentage IS NOT NULL
		  AND cp.discount_percentage >= ?`
	args := []any{filter.MinDiscount}

	if filter.Platform != "" {
		sqlText += " AND pl.name = ?"
		args = append(args, filter.Platform)
	}
	if filter.Category != "" {
		sqlText += " AND p.category_id IN (SELECT id FROM categories WHERE LOWER(name) LIKE ?)"
		args = append(args, "%"+strings.ToLower(filter.Category)+"%")
	}
	if filter.FeaturedOnly {
		sqlText += ` AND p.id IN (
			SELECT cp2.product_id FROM campaign_products cp2
			JOIN promotional_campaigns pc ON cp2.campaign_id = pc.id
			WHERE pc.is_featured = 1 AND pc.is_active = 1
			  AND pc.starts_at <= datetime('now') AND pc.ends_at >= datetime('now'))`
	}
	sqlText += " ORDER BY cp.discount_percentage DESC, cp.price ASC LIMIT ?"
	args = append(args, filter.Limit)

	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, apierror.Database("deals query failed", err)
	}
	defer rows.Close()

	var out []Deal
	for rows.Next() {
		var deal Deal
		var original, discount sql.NullFloat64
		if err := rows.Scan(&deal.ProductID, &deal.ProductName, &deal.PlatformName,
			&deal.CurrentPrice, &original, &discount, &deal.IsAvailable, &deal.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan deal: %w", err)
		}
		deal.DiscountPercentage = discount.Float64
		if original.Valid {
			v := original.Float64
			deal.OriginalPrice = &v
			if v > deal.CurrentPrice {
				deal.Savings = v - deal.CurrentPrice
			}
		}
		out = append(out, deal)
	}
	return out, rows.Err()
}

// ActiveCampaigns lists running campaigns with their product counts.
func (s *Service) ActiveCampaigns(ctx context.Context) ([]Campaign, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pc.id, pc.name, COALESCE(pc.description, ''), COALESCE(pl.name, ''),
		       pc.starts_at, pc.ends_at, pc.is_featured,
		       (SELECT COUNT(*) FROM campaign_products cp WHERE cp.campaign_id = pc.id)
		FROM promotional_campaigns pc
		LEFT JOIN platforms pl ON pc.platform_id = pl.id
		WHERE pc.is_active = 1
		  AND pc.starts_at <= datetime('now') AND pc.ends_at >= datetime('now')
		ORDER BY pc.is_featured DESC, pc.ends_at ASC`)
	if err != nil {
		return nil, apierror.Database("campaigns query failed", err)
	}
	defer rows.Close()

	var out []Campaign
	for rows.Next() {
		var c Campaign
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.PlatformName,
			&c.StartsAt, &c.EndsAt, &c.IsFeatured, &c.ProductCount); err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
