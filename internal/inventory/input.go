package inventory

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/raine/carhunt/internal/storage"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("car not found")
)

const (
	minYear           = 1900
	minSeats          = 1
	maxSeats          = 50
	minDescriptionLen = 10
)

// CarInput is the admin-provided listing data, typically pre-filled from an
// extraction result.
type CarInput struct {
	Make         string  `json:"make"`
	Model        string  `json:"model"`
	Year         int     `json:"year"`
	Price        float64 `json:"price"`
	Mileage      int     `json:"mileage"`
	Color        string  `json:"color"`
	FuelType     string  `json:"fuelType"`
	Transmission string  `json:"transmission"`
	BodyType     string  `json:"bodyType"`
	Seats        int     `json:"seats"`
	Description  string  `json:"description"`
	Status       string  `json:"status"`
	Featured     bool    `json:"featured"`
}

func (in *CarInput) normalize() {
	for _, s := range []*string{&in.Make, &in.Model, &in.Color, &in.FuelType, &in.Transmission, &in.BodyType, &in.Description} {
		*s = strings.TrimSpace(*s)
	}
	in.Status = strings.ToUpper(strings.TrimSpace(in.Status))
	if in.Status == "" {
		in.Status = storage.CarAvailable
	}
}

// Validate checks the input against the listing rules. now decides the
// latest accepted model year.
func (in CarInput) Validate(now time.Time) error {
	var problems []string
	for _, f := range []struct {
		name, value string
	}{
		{"make", in.Make},
		{"model", in.Model},
		{"color", in.Color},
		{"fuelType", in.FuelType},
		{"transmission", in.Transmission},
		{"bodyType", in.BodyType},
	} {
		if f.value == "" {
			problems = append(problems, f.name+" is required")
		}
	}

	if maxYear := now.Year() + 1; in.Year < minYear || in.Year > maxYear {
		problems = append(problems, fmt.Sprintf("year must be between %d and %d", minYear, maxYear))
	}
	if in.Price < 0 {
		problems = append(problems, "price must not be negative")
	}
	if in.Mileage < 0 {
		problems = append(problems, "mileage must not be negative")
	}
	if in.Seats != 0 && (in.Seats < minSeats || in.Seats > maxSeats) {
		problems = append(problems, fmt.Sprintf("seats must be between %d and %d", minSeats, maxSeats))
	}
	if len([]rune(in.Description)) < minDescriptionLen {
		problems = append(problems, fmt.Sprintf("description must be at least %d characters", minDescriptionLen))
	}
	if in.Status != "" && !slices.Contains(storage.CarStatuses, in.Status) {
		problems = append(problems, "status must be one of "+strings.Join(storage.CarStatuses, ", "))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}
