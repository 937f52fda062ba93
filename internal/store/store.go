package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"studio-sync-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB

	// Bookings.
	FindBookingByExternalID(ctx context.Context, externalID string) (*model.Booking, error)
	FindBookingByNaturalKey(ctx context.Context, rentalDate time.Time, facility, slots string) (*model.Booking, error)
	SaveBooking(ctx context.Context, booking *model.Booking) error
	ListBookings(ctx context.Context, status model.BookingStatus, limit int) ([]model.Booking, error)

	// Session record (singleton row, the durable tie-breaker on cold start).
	LoadSession(ctx context.Context) (*model.RemoteSession, error)
	SaveSession(ctx context.Context, session *model.RemoteSession) error
	ClearSession(ctx context.Context) error
	TouchSyncTime(ctx context.Context, at time.Time) error
	TouchKeepAliveTime(ctx context.Context, at time.Time) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) FindBookingByExternalID(ctx context.Context, externalID string) (*model.Booking, error) {
	if externalID == "" {
		return nil, nil
	}
	var booking model.Booking
	err := s.db.WithContext(ctx).First(&booking, "external_id = ?", externalID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up booking by external id %q: %w", externalID, err)
	}
	return &booking, nil
}

func (s *gormStore) FindBookingByNaturalKey(ctx context.Context, rentalDate time.Time, facility, slots string) (*model.Booking, error) {
	var booking model.Booking
	err := s.db.WithContext(ctx).
		Where("rental_date = ? AND facility_name = ? AND time_slots = ?", rentalDate, facility, slots).
		First(&booking).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up booking by natural key: %w", err)
	}
	return &booking, nil
}

func (s *gormStore) SaveBooking(ctx context.Context, booking *model.Booking) error {
	if err := s.db.WithContext(ctx).Save(booking).Error; err != nil {
		return fmt.Errorf("failed to save booking %q: %w", booking.ExternalID, err)
	}
	return nil
}

func (s *gormStore) ListBookings(ctx context.Context, status model.BookingStatus, limit int) ([]model.Booking, error) {
	q := s.db.WithContext(ctx).Order("rental_date DESC, time_slots ASC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var bookings []model.Booking
	if err := q.Find(&bookings).Error; err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

func (s *gormStore) LoadSession(ctx context.Context) (*model.RemoteSession, error) {
	var session model.RemoteSession
	err := s.db.WithContext(ctx).First(&session, model.RemoteSessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session record: %w", err)
	}
	return &session, nil
}

func (s *gormStore) SaveSession(ctx context.Context, session *model.RemoteSession) error {
	session.ID = model.RemoteSessionID
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"cookie_jar", "expires_at", "is_logged_in", "updated_at"}),
	}).Create(session).Error
	if err != nil {
		return fmt.Errorf("failed to save session record: %w", err)
	}
	return nil
}

// ClearSession invalidates the durable session without dropping the row, so
// the last-sync and keepalive timestamps survive a logout.
func (s *gormStore) ClearSession(ctx context.Context) error {
	err := s.db.WithContext(ctx).Model(&model.RemoteSession{ID: model.RemoteSessionID}).
		Updates(map[string]any{
			"cookie_jar":   "",
			"is_logged_in": false,
			"expires_at":   time.Unix(0, 0),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to clear session record: %w", err)
	}
	return nil
}

func (s *gormStore) TouchSyncTime(ctx context.Context, at time.Time) error {
	return s.touch(ctx, "last_sync_at", at)
}

func (s *gormStore) TouchKeepAliveTime(ctx context.Context, at time.Time) error {
	return s.touch(ctx, "last_keep_alive_at", at)
}

func (s *gormStore) touch(ctx context.Context, column string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&model.RemoteSession{ID: model.RemoteSessionID}).
		Update(column, at)
	if res.Error != nil {
		return fmt.Errorf("failed to update %s: %w", column, res.Error)
	}
	if res.RowsAffected == 0 {
		// No session row yet; create one so the timestamp is not lost.
		session := &model.RemoteSession{ID: model.RemoteSessionID, ExpiresAt: time.Unix(0, 0)}
		switch column {
		case "last_sync_at":
			session.LastSyncAt = &at
		case "last_keep_alive_at":
			session.LastKeepAliveAt = &at
		}
		if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
			return fmt.Errorf("failed to create session record for %s: %w", column, err)
		}
	}
	return nil
}
