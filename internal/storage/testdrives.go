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
	DrivePending   = "PENDING"
	DriveConfirmed = "CONFIRMED"
	DriveClaimed   = "CLAIMED"
	DriveCompleted = "COMPLETED"
	DriveCancelled = "CANCELLED"
	DriveNoShow    = "NO_SHOW"
	DriveRevoked   = "REVOKED"
)

// DriveStatuses lists every valid test drive status.
var DriveStatuses = []string{
	DrivePending, DriveConfirmed, DriveClaimed, DriveCompleted,
	DriveCancelled, DriveNoShow, DriveRevoked,
}

// ActiveDriveStatuses hold a slot.
var ActiveDriveStatuses = []string{DrivePending, DriveConfirmed}

// TestDrive is a booking of a car for a time slot.
type TestDrive struct {
	ID          string    `json:"id"`
	CarID       string    `json:"carId"`
	UserID      string    `json:"userId"`
	BookingDate string    `json:"bookingDate"`
	StartTime   string    `json:"startTime"`
	EndTime     string    `json:"endTime"`
	Status      string    `json:"status"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type CarSummary struct {
	ID     string   `json:"id"`
	Make   string   `json:"make"`
	Model  string   `json:"model"`
	Year   int      `json:"year"`
	Price  float64  `json:"price"`
	Images []string `json:"images"`
}

type UserSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	ImageURL string `json:"imageUrl,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// TestDriveDetail is a booking joined with its car and user.
type TestDriveDetail struct {
	TestDrive
	Car  CarSummary  `json:"car"`
	User UserSummary `json:"user"`
}

// TestDriveQuery selects bookings. Zero values mean "no constraint".
type TestDriveQuery struct {
	UserID   string
	CarID    string
	Statuses []string
	// Search matches user name/email and car make/model.
	Search string
	// FromDate keeps bookings on or after the given YYYY-MM-DD date.
	FromDate string
	Limit    int
}

// BookTestDrive inserts a booking unless another active booking already holds
// the same car, date and start time, in which case ErrConflict is returned.
func (s *SQLiteStore) BookTestDrive(ctx context.Context, td *TestDrive) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	args := []any{td.CarID, td.BookingDate, td.StartTime}
	for _, st := range ActiveDriveStatuses {
		args = append(args, st)
	}

	var taken int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM test_drives
		WHERE car_id = ? AND booking_date = ? AND start_time = ? AND status IN (`+placeholders(len(ActiveDriveStatuses))+`)
	`, args...).Scan(&taken)
	if err != nil {
		return fmt.Errorf("failed to check slot: %w", err)
	}
	if taken > 0 {
		return ErrConflict
	}

	if td.Status == "" {
		td.Status = DrivePending
	}
	td.CreatedAt = s.now()
	td.UpdatedAt = td.CreatedAt

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO test_drives (id, car_id, user_id, booking_date, start_time, end_time, status, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, td.ID, td.CarID, td.UserID, td.BookingDate, td.StartTime, td.EndTime, td.Status, td.Notes, td.CreatedAt, td.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create test drive: %w", err)
	}
	return nil
}

const testDriveDetailSelect = `
	SELECT t.id, t.car_id, t.user_id, t.booking_date, t.start_time, t.end_time, t.status,
		t.notes, t.created_at, t.updated_at,
		c.make, c.model, c.year, c.price, c.images,
		u.name, u.email, u.image_url, u.phone
	FROM test_drives t
	JOIN cars c ON c.id = t.car_id
	JOIN users u ON u.id = t.user_id`

func scanTestDriveDetail(row rowScanner) (*TestDriveDetail, error) {
	var d TestDriveDetail
	var notes, name, imageURL, phone sql.NullString
	var images string
	err := row.Scan(&d.ID, &d.CarID, &d.UserID, &d.BookingDate, &d.StartTime, &d.EndTime,
		&d.Status, &notes, &d.CreatedAt, &d.UpdatedAt,
		&d.Car.Make, &d.Car.Model, &d.Car.Year, &d.Car.Price, &images,
		&name, &d.User.Email, &imageURL, &phone)
	if err != nil {
		return nil, err
	}
	d.Notes = notes.String
	d.Car.ID = d.CarID
	if err := json.Unmarshal([]byte(images), &d.Car.Images); err != nil {
		return nil, fmt.Errorf("failed to decode images of car %s: %w", d.CarID, err)
	}
	d.User.ID = d.UserID
	d.User.Name = name.String
	d.User.ImageURL = imageURL.String
	d.User.Phone = phone.String
	return &d, nil
}

// GetTestDrive returns nil, nil if the booking doesn't exist.
func (s *SQLiteStore) GetTestDrive(ctx context.Context, id string) (*TestDriveDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, err := scanTestDriveDetail(s.db.QueryRowContext(ctx, testDriveDetailSelect+" WHERE t.id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query test drive: %w", err)
	}
	return d, nil
}

// ListTestDrives returns bookings matching q, newest booking date first.
func (s *SQLiteStore) ListTestDrives(ctx context.Context, q TestDriveQuery) ([]TestDriveDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var conds []string
	var args []any
	if q.UserID != "" {
		conds = append(conds, "t.user_id = ?")
		args = append(args, q.UserID)
	}
	if q.CarID != "" {
		conds = append(conds, "t.car_id = ?")
		args = append(args, q.CarID)
	}
	if len(q.Statuses) > 0 {
		conds = append(conds, "t.status IN ("+placeholders(len(q.Statuses))+")")
		for _, st := range q.Statuses {
			args = append(args, st)
		}
	}
	if search := strings.ToLower(strings.TrimSpace(q.Search)); search != "" {
		conds = append(conds, "(LOWER(u.name) LIKE ? OR LOWER(u.email) LIKE ? OR LOWER(c.make) LIKE ? OR LOWER(c.model) LIKE ?)")
		like := "%" + search + "%"
		args = append(args, like, like, like, like)
	}
	if q.FromDate != "" {
		conds = append(conds, "t.booking_date >= ?")
		args = append(args, q.FromDate)
	}

	query := testDriveDetailSelect
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY t.booking_date DESC, t.start_time DESC, t.created_at DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query test drives: %w", err)
	}
	defer rows.Close()

	drives := []TestDriveDetail{}
	for rows.Next() {
		d, err := scanTestDriveDetail(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan test drive: %w", err)
		}
		drives = append(drives, *d)
	}
	return drives, rows.Err()
}

// UpdateTestDriveStatus returns false if the booking doesn't exist.
func (s *SQLiteStore) UpdateTestDriveStatus(ctx context.Context, id, status string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx,
		"UPDATE test_drives SET status = ?, updated_at = ? WHERE id = ?", status, s.now(), id)
	if err != nil {
		return false, fmt.Errorf("failed to update test drive: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}
