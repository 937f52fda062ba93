package parse

import (
	"fmt"
	"time"

	"studio-sync-backend/internal/model"
)

// BookingRecord is one scraped row of the portal's reservation list. A fresh
// snapshot is produced on every scrape and compared against the stored copy.
type BookingRecord struct {
	ExternalID        string
	RowNumber         int
	FacilityName      string
	ParticipantsCount int
	RentalDate        time.Time
	TimeSlots         []int
	ApplicantName     string
	Organization      string
	Phone             string
	Status            model.BookingStatus
	CancelDate        *time.Time
	SpecialNote       string
	CreatedAt         *time.Time
}

// NaturalKey identifies the same underlying reservation across scrapes.
// The portal's record id wins when present; otherwise date + facility +
// slot set.
func (r BookingRecord) NaturalKey() string {
	if r.ExternalID != "" {
		return "id:" + r.ExternalID
	}
	return fmt.Sprintf("nk:%s|%s|%s",
		r.RentalDate.Format("2006-01-02"), r.FacilityName, model.EncodeSlots(r.TimeSlots))
}

// BookingDetail is the per-record detail page content, fetched lazily.
type BookingDetail struct {
	BookingRecord

	ApplicationDate *time.Time
	FullName        string
	FullPhone       string
	Email           string
	CompanyPhone    string
	Purpose         string
	UserType        string
	DiscountRate    int // percent
	RentalFee       int // won
	BankAccount     string
	HasNoShow       bool
	NoShowMemo      string
}

// ListStats counts the diagnostics of one list-page parse. Neither counter is
// fatal to the scrape.
type ListStats struct {
	SkippedRows         int
	UnknownStatusLabels int
}
