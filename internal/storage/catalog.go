package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"quickbite/internal/domain"
	"quickbite/internal/money"
)

// CatalogRepository resolves the read-only reference data order creation
// needs: tables and restaurant settings.
type CatalogRepository struct {
	db *pgxpool.Pool
}

func NewCatalogRepository(db *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// FindTable resolves a table by (restaurant, code). A table code only counts
// when it belongs to the given restaurant.
func (r *CatalogRepository) FindTable(ctx context.Context, restaurantID uuid.UUID, code string) (domain.Table, error) {
	var t domain.Table
	err := r.db.QueryRow(ctx, `
		SELECT id, restaurant_id, code, COALESCE(display_name,'')
		FROM tables WHERE restaurant_id=$1 AND code=$2
	`, restaurantID, code).Scan(&t.ID, &t.RestaurantID, &t.Code, &t.DisplayName)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Table{}, fmt.Errorf("table %q in restaurant %s: %w", code, restaurantID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Table{}, fmt.Errorf("find table: %w", err)
	}
	return t, nil
}

// GetRestaurant loads the restaurant settings. Rates are stored as decimal
// percent strings ("10.00") and converted to basis points here.
func (r *CatalogRepository) GetRestaurant(ctx context.Context, id uuid.UUID) (domain.Restaurant, error) {
	var rest domain.Restaurant
	var taxRate, serviceRate string
	err := r.db.QueryRow(ctx, `
		SELECT id, name, locale_default, tax_rate::text, service_charge::text
		FROM restaurants WHERE id=$1
	`, id).Scan(&rest.ID, &rest.Name, &rest.LocaleDefault, &taxRate, &serviceRate)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Restaurant{}, fmt.Errorf("restaurant %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Restaurant{}, fmt.Errorf("get restaurant: %w", err)
	}
	if rest.TaxRateBps, err = money.ParseRateBps(taxRate); err != nil {
		return domain.Restaurant{}, fmt.Errorf("restaurant %s tax rate: %w", id, err)
	}
	if rest.ServiceRateBps, err = money.ParseRateBps(serviceRate); err != nil {
		return domain.Restaurant{}, fmt.Errorf("restaurant %s service charge: %w", id, err)
	}
	return rest, nil
}
