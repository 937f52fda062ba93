package model

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Booking is the local copy of a reservation scraped from the portal.
// ExternalID is the portal's record identifier when the list page exposes one;
// the (RentalDate, FacilityName, TimeSlots) triple is the fallback natural key.
type Booking struct {
	ID                int64         `gorm:"primaryKey"`
	ExternalID        string        `gorm:"index;size:64"`
	RowNumber         int
	FacilityName      string        `gorm:"size:128;not null;index:idx_bookings_natural"`
	ParticipantsCount int
	RentalDate        time.Time     `gorm:"not null;index:idx_bookings_natural"`
	TimeSlots         string        `gorm:"size:128;not null;index:idx_bookings_natural"` // e.g. "10,11,14"
	ApplicantName     string        `gorm:"size:128"`
	Organization      string        `gorm:"size:256"`
	Phone             string        `gorm:"size:64"`
	Status            BookingStatus `gorm:"size:32;not null"`
	CancelDate        *time.Time
	SpecialNote       string
	RemoteCreatedAt   *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// EncodeSlots renders an hour-slot sequence as the canonical stored form:
// ascending, comma separated.
func EncodeSlots(slots []int) string {
	sorted := append([]int(nil), slots...)
	sort.Ints(sorted)
	parts := make([]string, len(sorted))
	for i, h := range sorted {
		parts[i] = strconv.Itoa(h)
	}
	return strings.Join(parts, ",")
}

// DecodeSlots parses the stored slot form back into hour integers.
func DecodeSlots(s string) []int {
	if s == "" {
		return nil
	}
	var slots []int
	for _, p := range strings.Split(s, ",") {
		if h, err := strconv.Atoi(strings.TrimSpace(p)); err == nil {
			slots = append(slots, h)
		}
	}
	return slots
}
