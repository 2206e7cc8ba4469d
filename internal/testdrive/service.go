package testdrive

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/raine/carhunt/internal/notify"
	"github.com/raine/carhunt/internal/storage"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrSlotTaken    = errors.New("this time slot is already booked")
)

const timeOfDay = "15:04"

// Store is the persistence used for bookings.
type Store interface {
	GetCar(ctx context.Context, id string) (*storage.Car, error)
	BookTestDrive(ctx context.Context, td *storage.TestDrive) error
	GetTestDrive(ctx context.Context, id string) (*storage.TestDriveDetail, error)
	ListTestDrives(ctx context.Context, q storage.TestDriveQuery) ([]storage.TestDriveDetail, error)
	UpdateTestDriveStatus(ctx context.Context, id, status string) (bool, error)
}

// Service books and manages test drives.
type Service struct {
	store  Store
	events notify.Publisher
	now    func() time.Time
}

func NewService(store Store, events notify.Publisher) *Service {
	return &Service{
		store:  store,
		events: events,
		now:    time.Now,
	}
}

type BookingInput struct {
	CarID       string `json:"carId"`
	BookingDate string `json:"bookingDate"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
	Notes       string `json:"notes"`
}

func (in BookingInput) validate(today string) error {
	if strings.TrimSpace(in.CarID) == "" {
		return fmt.Errorf("%w: carId is required", ErrInvalidInput)
	}
	if _, err := time.Parse(time.DateOnly, in.BookingDate); err != nil {
		return fmt.Errorf("%w: bookingDate must be YYYY-MM-DD", ErrInvalidInput)
	}
	if in.BookingDate < today {
		return fmt.Errorf("%w: bookingDate is in the past", ErrInvalidInput)
	}
	start, err := time.Parse(timeOfDay, in.StartTime)
	if err != nil {
		return fmt.Errorf("%w: startTime must be HH:MM", ErrInvalidInput)
	}
	end, err := time.Parse(timeOfDay, in.EndTime)
	if err != nil {
		return fmt.Errorf("%w: endTime must be HH:MM", ErrInvalidInput)
	}
	if !start.Before(end) {
		return fmt.Errorf("%w: startTime must be before endTime", ErrInvalidInput)
	}
	return nil
}

// Book creates a pending test drive for the user.
func (s *Service) Book(ctx context.Context, userID string, in BookingInput) (*storage.TestDriveDetail, error) {
	if err := in.validate(s.now().Format(time.DateOnly)); err != nil {
		return nil, err
	}

	car, err := s.store.GetCar(ctx, in.CarID)
	if err != nil {
		return nil, err
	}
	if car == nil {
		return nil, fmt.Errorf("%w: car %s", ErrNotFound, in.CarID)
	}
	if car.Status != storage.CarAvailable {
		return nil, fmt.Errorf("%w: car is not available for test drives", ErrInvalidInput)
	}

	td := &storage.TestDrive{
		ID:          uuid.New().String(),
		CarID:       in.CarID,
		UserID:      userID,
		BookingDate: in.BookingDate,
		StartTime:   in.StartTime,
		EndTime:     in.EndTime,
		Status:      storage.DrivePending,
		Notes:       strings.TrimSpace(in.Notes),
	}
	if err := s.store.BookTestDrive(ctx, td); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, ErrSlotTaken
		}
		return nil, err
	}

	detail, err := s.store.GetTestDrive(ctx, td.ID)
	if err != nil {
		return nil, err
	}

	log.Info().Str("testDriveID", td.ID).Str("carID", td.CarID).Str("date", td.BookingDate).Msg("test drive booked")
	if s.events != nil {
		s.events.Publish(notify.Event{Kind: notify.TestDriveBooked, Drive: detail})
	}
	return detail, nil
}

// Reservations are a user's bookings split by whether they are still ahead.
type Reservations struct {
	Upcoming []storage.TestDriveDetail `json:"upcoming"`
	Past     []storage.TestDriveDetail `json:"past"`
}

// UserReservations returns the user's bookings, newest first.
func (s *Service) UserReservations(ctx context.Context, userID string) (*Reservations, error) {
	drives, err := s.store.ListTestDrives(ctx, storage.TestDriveQuery{UserID: userID})
	if err != nil {
		return nil, err
	}

	res := &Reservations{
		Upcoming: []storage.TestDriveDetail{},
		Past:     []storage.TestDriveDetail{},
	}
	for _, d := range drives {
		if slices.Contains(storage.ActiveDriveStatuses, d.Status) {
			res.Upcoming = append(res.Upcoming, d)
		} else {
			res.Past = append(res.Past, d)
		}
	}
	return res, nil
}

// Cancel cancels a booking. Only its owner or an admin may cancel it.
func (s *Service) Cancel(ctx context.Context, userID string, isAdmin bool, id string) (*storage.TestDriveDetail, error) {
	td, err := s.store.GetTestDrive(ctx, id)
	if err != nil {
		return nil, err
	}
	if td == nil {
		return nil, fmt.Errorf("%w: test drive %s", ErrNotFound, id)
	}
	if td.UserID != userID && !isAdmin {
		return nil, ErrForbidden
	}
	switch td.Status {
	case storage.DriveCompleted, storage.DriveCancelled:
		return nil, fmt.Errorf("%w: cannot cancel a %s booking", ErrInvalidInput, strings.ToLower(td.Status))
	}

	if _, err := s.store.UpdateTestDriveStatus(ctx, id, storage.DriveCancelled); err != nil {
		return nil, err
	}
	td.Status = storage.DriveCancelled
	log.Info().Str("testDriveID", id).Bool("byAdmin", isAdmin && td.UserID != userID).Msg("test drive cancelled")
	return td, nil
}

type AdminFilter struct {
	Search string
	Status string
}

// AdminList returns all bookings matching the filter, newest first.
func (s *Service) AdminList(ctx context.Context, f AdminFilter) ([]storage.TestDriveDetail, error) {
	q := storage.TestDriveQuery{Search: f.Search}
	if f.Status != "" {
		status := strings.ToUpper(f.Status)
		if !slices.Contains(storage.DriveStatuses, status) {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, f.Status)
		}
		q.Statuses = []string{status}
	}
	return s.store.ListTestDrives(ctx, q)
}

// UpdateStatus sets the status of a booking.
func (s *Service) UpdateStatus(ctx context.Context, id, status string) (*storage.TestDriveDetail, error) {
	status = strings.ToUpper(strings.TrimSpace(status))
	if !slices.Contains(storage.DriveStatuses, status) {
		return nil, fmt.Errorf("%w: status must be one of %s", ErrInvalidInput, strings.Join(storage.DriveStatuses, ", "))
	}

	ok, err := s.store.UpdateTestDriveStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: test drive %s", ErrNotFound, id)
	}
	return s.store.GetTestDrive(ctx, id)
}

// All returns every booking, for the leaderboard.
func (s *Service) All(ctx context.Context) ([]storage.TestDriveDetail, error) {
	return s.store.ListTestDrives(ctx, storage.TestDriveQuery{})
}
