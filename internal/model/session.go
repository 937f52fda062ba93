package model

import "time"

// RemoteSession is the durable copy of the portal session. Exactly one row
// exists (ID = 1); it is the tie-breaker after a cold start.
type RemoteSession struct {
	ID              int64     `gorm:"primaryKey"`
	CookieJar       string    `gorm:"type:text"` // serialized cookies, see remote.Client
	ExpiresAt       time.Time `gorm:"not null"`
	IsLoggedIn      bool      `gorm:"not null"`
	LastSyncAt      *time.Time
	LastKeepAliveAt *time.Time
	UpdatedAt       time.Time
}

// RemoteSessionID is the fixed primary key of the singleton session row.
const RemoteSessionID int64 = 1

// Valid reports whether the persisted session is still usable.
func (s *RemoteSession) Valid(now time.Time) bool {
	return s != nil && s.IsLoggedIn && now.Before(s.ExpiresAt)
}
