package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// User is an account known to the marketplace. Identity is owned by the
// external auth provider; AuthSubject is its subject claim.
type User struct {
	ID          string    `json:"id"`
	AuthSubject string    `json:"-"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

const userColumns = "id, auth_subject, email, name, image_url, phone, role, created_at"

func scanUser(row rowScanner) (*User, error) {
	var u User
	var name, imageURL, phone sql.NullString
	if err := row.Scan(&u.ID, &u.AuthSubject, &u.Email, &name, &imageURL, &phone, &u.Role, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Name = name.String
	u.ImageURL = imageURL.String
	u.Phone = phone.String
	return &u, nil
}

// UpsertUser creates the user on first sight and refreshes the profile fields
// afterwards. The stored row is returned.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *User) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Role == "" {
		user.Role = RoleUser
	}
	now := s.now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, auth_subject, email, name, image_url, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(auth_subject) DO UPDATE SET
			email = excluded.email,
			name = COALESCE(NULLIF(excluded.name, ''), users.name),
			image_url = COALESCE(NULLIF(excluded.image_url, ''), users.image_url),
			role = excluded.role,
			updated_at = excluded.updated_at
	`, uuid.New().String(), user.AuthSubject, user.Email, user.Name, user.ImageURL, user.Role, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	stored, err := scanUser(s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE auth_subject = ?", user.AuthSubject))
	if err != nil {
		return nil, fmt.Errorf("failed to reload user: %w", err)
	}
	return stored, nil
}

// GetUserBySubject returns nil, nil if no user has the given auth subject.
func (s *SQLiteStore) GetUserBySubject(ctx context.Context, subject string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, err := scanUser(s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE auth_subject = ?", subject))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return u, nil
}

// ToggleSavedCar saves the car for the user, or unsaves it if it was already
// saved. Returns whether the car is saved afterwards.
func (s *SQLiteStore) ToggleSavedCar(ctx context.Context, userID, carID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM saved_cars WHERE user_id = ? AND car_id = ?", userID, carID)
	if err != nil {
		return false, fmt.Errorf("failed to unsave car: %w", err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		return false, nil
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO saved_cars (user_id, car_id, created_at) VALUES (?, ?, ?)", userID, carID, s.now())
	if err != nil {
		return false, fmt.Errorf("failed to save car: %w", err)
	}
	return true, nil
}

// SavedCarIDs reports which of carIDs the user has saved.
func (s *SQLiteStore) SavedCarIDs(ctx context.Context, userID string, carIDs []string) (map[string]bool, error) {
	saved := make(map[string]bool)
	if userID == "" || len(carIDs) == 0 {
		return saved, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	args := []any{userID}
	for _, id := range carIDs {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT car_id FROM saved_cars WHERE user_id = ? AND car_id IN ("+placeholders(len(carIDs))+")", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query saved cars: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan saved car: %w", err)
		}
		saved[id] = true
	}
	return saved, rows.Err()
}

// SavedCars returns the user's saved listings, most recently saved first.
func (s *SQLiteStore) SavedCars(ctx context.Context, userID string) ([]Car, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.make, c.model, c.year, c.price, c.mileage, c.color, c.fuel_type,
			c.transmission, c.body_type, c.seats, c.description, c.status, c.featured,
			c.images, c.created_at, c.updated_at
		FROM saved_cars s
		JOIN cars c ON c.id = s.car_id
		WHERE s.user_id = ?
		ORDER BY s.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query saved cars: %w", err)
	}
	defer rows.Close()

	cars := []Car{}
	for rows.Next() {
		car, err := scanCar(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan saved car: %w", err)
		}
		cars = append(cars, *car)
	}
	return cars, rows.Err()
}
