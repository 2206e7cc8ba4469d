package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/raine/carhunt/internal/storage"
)

const (
	defaultPageSize = 9
	maxPageSize     = 50
	defaultFeatured = 3
)

// CarFilter is a public search request.
type CarFilter struct {
	Search       string
	Make         string
	BodyType     string
	FuelType     string
	Transmission string
	MinPrice     *float64
	MaxPrice     *float64
	SortBy       string
	Page         int
	Limit        int
}

// CarView is a listing as shown to a buyer.
type CarView struct {
	storage.Car
	Wishlisted bool `json:"wishlisted"`
}

type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

type SearchResult struct {
	Cars       []CarView  `json:"cars"`
	Pagination Pagination `json:"pagination"`
}

// CarDetail is a single listing with the viewer's relation to it.
type CarDetail struct {
	CarView
	UpcomingTestDrive *storage.TestDrive `json:"upcomingTestDrive,omitempty"`
}

// SearchCars returns available cars matching the filter. userID may be empty
// for anonymous visitors.
func (s *Service) SearchCars(ctx context.Context, userID string, f CarFilter) (*SearchResult, error) {
	switch f.SortBy {
	case "", storage.SortNewest, storage.SortPriceAsc, storage.SortPriceDesc:
	default:
		return nil, fmt.Errorf("%w: unknown sort %q", ErrInvalidInput, f.SortBy)
	}
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		return nil, fmt.Errorf("%w: minPrice is greater than maxPrice", ErrInvalidInput)
	}

	page := max(f.Page, 1)
	limit := f.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	limit = min(limit, maxPageSize)

	cars, total, err := s.store.QueryCars(ctx, storage.CarQuery{
		Search:       f.Search,
		Make:         f.Make,
		BodyType:     f.BodyType,
		FuelType:     f.FuelType,
		Transmission: f.Transmission,
		MinPrice:     f.MinPrice,
		MaxPrice:     f.MaxPrice,
		Status:       storage.CarAvailable,
		SortBy:       f.SortBy,
		Limit:        limit,
		Offset:       (page - 1) * limit,
	})
	if err != nil {
		return nil, err
	}

	views, err := s.withWishlist(ctx, userID, cars)
	if err != nil {
		return nil, err
	}

	return &SearchResult{
		Cars: views,
		Pagination: Pagination{
			Total: total,
			Page:  page,
			Limit: limit,
			Pages: (total + limit - 1) / limit,
		},
	}, nil
}

func (s *Service) CarFilters(ctx context.Context) (*storage.FilterOptions, error) {
	return s.store.CarFilterOptions(ctx)
}

// FeaturedCars returns up to limit featured, available cars.
func (s *Service) FeaturedCars(ctx context.Context, limit int) ([]storage.Car, error) {
	if limit <= 0 {
		limit = defaultFeatured
	}
	featured := true
	cars, _, err := s.store.QueryCars(ctx, storage.CarQuery{
		Status:   storage.CarAvailable,
		Featured: &featured,
		SortBy:   storage.SortNewest,
		Limit:    limit,
	})
	return cars, err
}

// GetCar returns a listing with the viewer's wishlist flag and their next
// pending or confirmed test drive of it.
func (s *Service) GetCar(ctx context.Context, id, userID string) (*CarDetail, error) {
	car, err := s.store.GetCar(ctx, id)
	if err != nil {
		return nil, err
	}
	if car == nil {
		return nil, ErrNotFound
	}

	views, err := s.withWishlist(ctx, userID, []storage.Car{*car})
	if err != nil {
		return nil, err
	}
	detail := &CarDetail{CarView: views[0]}

	if userID != "" {
		drives, err := s.store.ListTestDrives(ctx, storage.TestDriveQuery{
			UserID:   userID,
			CarID:    id,
			Statuses: storage.ActiveDriveStatuses,
			FromDate: s.now().Format(time.DateOnly),
		})
		if err != nil {
			return nil, err
		}
		// Listed latest first; the upcoming one is the earliest.
		if n := len(drives); n > 0 {
			detail.UpcomingTestDrive = &drives[n-1].TestDrive
		}
	}

	return detail, nil
}

// ToggleSavedCar adds or removes the car from the user's saved cars and
// returns whether it is saved afterwards.
func (s *Service) ToggleSavedCar(ctx context.Context, userID, carID string) (bool, error) {
	car, err := s.store.GetCar(ctx, carID)
	if err != nil {
		return false, err
	}
	if car == nil {
		return false, ErrNotFound
	}
	return s.store.ToggleSavedCar(ctx, userID, carID)
}

func (s *Service) SavedCars(ctx context.Context, userID string) ([]CarView, error) {
	cars, err := s.store.SavedCars(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]CarView, len(cars))
	for i, c := range cars {
		views[i] = CarView{Car: c, Wishlisted: true}
	}
	return views, nil
}

func (s *Service) withWishlist(ctx context.Context, userID string, cars []storage.Car) ([]CarView, error) {
	ids := make([]string, len(cars))
	for i, c := range cars {
		ids[i] = c.ID
	}
	saved, err := s.store.SavedCarIDs(ctx, userID, ids)
	if err != nil {
		return nil, err
	}

	views := make([]CarView, len(cars))
	for i, c := range cars {
		views[i] = CarView{Car: c, Wishlisted: saved[c.ID]}
	}
	return views, nil
}
