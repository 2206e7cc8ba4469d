package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	CarAvailable   = "AVAILABLE"
	CarSold        = "SOLD"
	CarUnavailable = "UNAVAILABLE"
)

// CarStatuses lists every valid listing status.
var CarStatuses = []string{CarAvailable, CarSold, CarUnavailable}

// Car is a vehicle listing.
type Car struct {
	ID           string    `json:"id"`
	Make         string    `json:"make"`
	Model        string    `json:"model"`
	Year         int       `json:"year"`
	Price        float64   `json:"price"`
	Mileage      int       `json:"mileage"`
	Color        string    `json:"color"`
	FuelType     string    `json:"fuelType"`
	Transmission string    `json:"transmission"`
	BodyType     string    `json:"bodyType"`
	Seats        int       `json:"seats,omitempty"`
	Description  string    `json:"description"`
	Status       string    `json:"status"`
	Featured     bool      `json:"featured"`
	Images       []string  `json:"images"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

const (
	SortNewest    = "newest"
	SortPriceAsc  = "priceAsc"
	SortPriceDesc = "priceDesc"
)

// CarQuery selects listings. Zero values mean "no constraint".
type CarQuery struct {
	Search       string
	Make         string
	BodyType     string
	FuelType     string
	Transmission string
	MinPrice     *float64
	MaxPrice     *float64
	Status       string
	Featured     *bool
	SortBy       string
	Limit        int
	Offset       int
}

// FilterOptions are the distinct values buyers can filter on.
type FilterOptions struct {
	Makes         []string   `json:"makes"`
	BodyTypes     []string   `json:"bodyTypes"`
	FuelTypes     []string   `json:"fuelTypes"`
	Transmissions []string   `json:"transmissions"`
	PriceRange    PriceRange `json:"priceRange"`
}

type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

const carColumns = `id, make, model, year, price, mileage, color, fuel_type, transmission,
	body_type, seats, description, status, featured, images, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCar(row rowScanner) (*Car, error) {
	var c Car
	var seats sql.NullInt64
	var images string
	err := row.Scan(&c.ID, &c.Make, &c.Model, &c.Year, &c.Price, &c.Mileage, &c.Color,
		&c.FuelType, &c.Transmission, &c.BodyType, &seats, &c.Description, &c.Status,
		&c.Featured, &images, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Seats = int(seats.Int64)
	if err := json.Unmarshal([]byte(images), &c.Images); err != nil {
		return nil, fmt.Errorf("failed to decode images of car %s: %w", c.ID, err)
	}
	if c.Images == nil {
		c.Images = []string{}
	}
	return &c, nil
}

// CreateCar inserts a listing. CreatedAt and UpdatedAt are set by the store.
func (s *SQLiteStore) CreateCar(ctx context.Context, car *Car) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if car.Images == nil {
		car.Images = []string{}
	}
	images, err := json.Marshal(car.Images)
	if err != nil {
		return fmt.Errorf("failed to encode images: %w", err)
	}
	if car.Status == "" {
		car.Status = CarAvailable
	}
	car.CreatedAt = s.now()
	car.UpdatedAt = car.CreatedAt

	var seats sql.NullInt64
	if car.Seats > 0 {
		seats = sql.NullInt64{Int64: int64(car.Seats), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cars (`+carColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, car.ID, car.Make, car.Model, car.Year, car.Price, car.Mileage, car.Color,
		car.FuelType, car.Transmission, car.BodyType, seats, car.Description, car.Status,
		car.Featured, string(images), car.CreatedAt, car.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create car: %w", err)
	}
	return nil
}

// GetCar retrieves a listing by ID. Returns nil, nil if it doesn't exist.
func (s *SQLiteStore) GetCar(ctx context.Context, id string) (*Car, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	car, err := scanCar(s.db.QueryRowContext(ctx, "SELECT "+carColumns+" FROM cars WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query car: %w", err)
	}
	return car, nil
}

func (q CarQuery) where() (string, []any) {
	var conds []string
	var args []any

	if search := strings.ToLower(strings.TrimSpace(q.Search)); search != "" {
		conds = append(conds, "(LOWER(make) LIKE ? OR LOWER(model) LIKE ? OR LOWER(color) LIKE ?)")
		like := "%" + search + "%"
		args = append(args, like, like, like)
	}
	for _, eq := range []struct {
		column, value string
	}{
		{"make", q.Make},
		{"body_type", q.BodyType},
		{"fuel_type", q.FuelType},
		{"transmission", q.Transmission},
	} {
		if eq.value != "" {
			conds = append(conds, "LOWER("+eq.column+") = ?")
			args = append(args, strings.ToLower(eq.value))
		}
	}
	if q.MinPrice != nil {
		conds = append(conds, "price >= ?")
		args = append(args, *q.MinPrice)
	}
	if q.MaxPrice != nil {
		conds = append(conds, "price <= ?")
		args = append(args, *q.MaxPrice)
	}
	if q.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, q.Status)
	}
	if q.Featured != nil {
		conds = append(conds, "featured = ?")
		args = append(args, *q.Featured)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (q CarQuery) orderBy() string {
	switch q.SortBy {
	case SortPriceAsc:
		return " ORDER BY price ASC, created_at DESC"
	case SortPriceDesc:
		return " ORDER BY price DESC, created_at DESC"
	default:
		return " ORDER BY created_at DESC, id"
	}
}

// QueryCars returns the listings matching q and the total number of matches
// ignoring Limit and Offset.
func (s *SQLiteStore) QueryCars(ctx context.Context, q CarQuery) ([]Car, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := q.where()

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cars"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count cars: %w", err)
	}

	query := "SELECT " + carColumns + " FROM cars" + where + q.orderBy()
	if q.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, q.Limit, q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query cars: %w", err)
	}
	defer rows.Close()

	cars := []Car{}
	for rows.Next() {
		car, err := scanCar(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan car: %w", err)
		}
		cars = append(cars, *car)
	}

	return cars, total, rows.Err()
}

// DeleteCar removes a listing. Saved cars and test drives go with it.
func (s *SQLiteStore) DeleteCar(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, "DELETE FROM cars WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete car: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	return rowsAffected > 0, nil
}

// UpdateCarStatus changes the status and/or featured flag of a listing. Nil
// arguments leave the column as is. Returns nil, nil if the car doesn't exist.
func (s *SQLiteStore) UpdateCarStatus(ctx context.Context, id string, status *string, featured *bool) (*Car, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sets := []string{"updated_at = ?"}
	args := []any{s.now()}
	if status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *status)
	}
	if featured != nil {
		sets = append(sets, "featured = ?")
		args = append(args, *featured)
	}
	args = append(args, id)

	result, err := s.db.ExecContext(ctx, "UPDATE cars SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update car: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, nil
	}

	car, err := scanCar(s.db.QueryRowContext(ctx, "SELECT "+carColumns+" FROM cars WHERE id = ?", id))
	if err != nil {
		return nil, fmt.Errorf("failed to reload car: %w", err)
	}
	return car, nil
}

// CarFilterOptions returns the distinct filter values among available cars.
func (s *SQLiteStore) CarFilterOptions(ctx context.Context) (*FilterOptions, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	opts := &FilterOptions{}
	for _, d := range []struct {
		column string
		dst    *[]string
	}{
		{"make", &opts.Makes},
		{"body_type", &opts.BodyTypes},
		{"fuel_type", &opts.FuelTypes},
		{"transmission", &opts.Transmissions},
	} {
		values, err := s.distinct(ctx, d.column)
		if err != nil {
			return nil, err
		}
		*d.dst = values
	}

	var lo, hi sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		"SELECT MIN(price), MAX(price) FROM cars WHERE status = ?", CarAvailable,
	).Scan(&lo, &hi)
	if err != nil {
		return nil, fmt.Errorf("failed to query price range: %w", err)
	}
	opts.PriceRange = PriceRange{Min: lo.Float64, Max: hi.Float64}

	return opts, nil
}

func (s *SQLiteStore) distinct(ctx context.Context, column string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT "+column+" FROM cars WHERE status = ? ORDER BY "+column, CarAvailable)
	if err != nil {
		return nil, fmt.Errorf("failed to query distinct %s: %w", column, err)
	}
	defer rows.Close()

	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", column, err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}
