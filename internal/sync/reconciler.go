package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"studio-sync-backend/config"
	"studio-sync-backend/internal/model"
	"studio-sync-backend/internal/notification"
	"studio-sync-backend/internal/parse"
	"studio-sync-backend/internal/remote"
	"studio-sync-backend/internal/session"
	"studio-sync-backend/internal/store"
)

// ErrAlreadySyncing is returned when a sync run is requested while another
// one is still in flight. The loser returns immediately; nothing queues.
var ErrAlreadySyncing = errors.New("sync already in progress")

// StatusChange records one booking whose stored copy differed from the
// scraped snapshot. PreviousStatus equals NewStatus when only mutable fields
// changed.
type StatusChange struct {
	Record         parse.BookingRecord `json:"record"`
	PreviousStatus model.BookingStatus `json:"previous_status"`
	NewStatus      model.BookingStatus `json:"new_status"`
}

// SyncResult summarizes one reconciliation run. Partial success is expected:
// per-page and per-record failures land in Errors without aborting the run.
type SyncResult struct {
	Success       bool                  `json:"success"`
	NewBookings   []parse.BookingRecord `json:"new_bookings"`
	StatusChanges []StatusChange        `json:"status_changes"`
	Errors        []string              `json:"errors"`
	SyncedAt      time.Time             `json:"synced_at"`
}

// Reconciler drives a full scrape of the portal's reservation list and diffs
// it against local storage.
type Reconciler struct {
	cfg      *config.Config
	store    store.Store
	sessions *session.Manager
	pool     *notification.WorkerPool // nil disables event dispatch

	mu      sync.Mutex
	syncing bool
}

// NewReconciler creates a reconciler. pool may be nil when no notification
// consumer is wired.
func NewReconciler(cfg *config.Config, s store.Store, sessions *session.Manager, pool *notification.WorkerPool) *Reconciler {
	return &Reconciler{cfg: cfg, store: s, sessions: sessions, pool: pool}
}

// SyncAll scrapes up to maxPages list pages, classifies every record as new,
// changed, or unchanged, and persists the differences. Exactly one run can
// be in flight; concurrent callers get ErrAlreadySyncing in the result.
func (r *Reconciler) SyncAll(ctx context.Context, maxPages int) *SyncResult {
	result := &SyncResult{SyncedAt: time.Now()}

	r.mu.Lock()
	if r.syncing {
		r.mu.Unlock()
		result.Errors = append(result.Errors, ErrAlreadySyncing.Error())
		return result
	}
	r.syncing = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.syncing = false
		r.mu.Unlock()
	}()

	if !r.sessions.EnsureValid(ctx) {
		result.Errors = append(result.Errors, "no valid portal session")
		return result
	}

	records := r.fetchAllPages(ctx, maxPages, result)
	r.reconcile(ctx, records, result)

	if err := r.store.TouchSyncTime(ctx, result.SyncedAt); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to record sync time: %v", err))
	}

	result.Success = len(result.Errors) == 0
	r.dispatchEvents(result)
	log.Printf("sync: finished, %d new, %d changed, %d errors",
		len(result.NewBookings), len(result.StatusChanges), len(result.Errors))
	return result
}

// fetchAllPages walks the list pages in order. A single page failure is
// recorded and skipped; a session expiry aborts the remaining pages since
// every further fetch would fail the same way.
func (r *Reconciler) fetchAllPages(ctx context.Context, maxPages int, result *SyncResult) []parse.BookingRecord {
	client := r.sessions.Client()

	html, err := client.FetchListPage(ctx, 1)
	if errors.Is(err, remote.ErrSessionExpired) {
		r.sessions.MarkExpired(ctx)
		result.Errors = append(result.Errors, "session expired before first page")
		return nil
	}
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("page 1: %v", err))
		return nil
	}

	records, stats, err := parse.BookingList(html)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("page 1: %v", err))
		return nil
	}
	logStats(1, stats)

	totalPages := 1
	if total, err := parse.TotalCount(html); err != nil {
		log.Printf("sync: total count unavailable, assuming a single page: %v", err)
	} else if pageSize := len(records); pageSize > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}
	if totalPages > maxPages {
		log.Printf("sync: clamping %d pages to the configured maximum %d", totalPages, maxPages)
		totalPages = maxPages
	}

	for page := 2; page <= totalPages; page++ {
		select {
		case <-ctx.Done():
			result.Errors = append(result.Errors, ctx.Err().Error())
			return records
		case <-time.After(r.cfg.Sync.PageDelay):
		}

		html, err := client.FetchListPage(ctx, page)
		if errors.Is(err, remote.ErrSessionExpired) {
			r.sessions.MarkExpired(ctx)
			result.Errors = append(result.Errors, fmt.Sprintf("session expired at page %d, remaining pages skipped", page))
			return records
		}
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("page %d: %v", page, err))
			continue
		}

		pageRecords, stats, err := parse.BookingList(html)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("page %d: %v", page, err))
			continue
		}
		logStats(page, stats)
		records = append(records, pageRecords...)
	}

	return records
}

// reconcile matches every scraped record against storage by its natural key.
// When the same key shows up twice within one scrape, the later-seen page
// wins: later pages reflect the portal's freshest default ordering.
func (r *Reconciler) reconcile(ctx context.Context, records []parse.BookingRecord, result *SyncResult) {
	deduped := make(map[string]parse.BookingRecord, len(records))
	order := make([]string, 0, len(records))
	for _, rec := range records {
		key := rec.NaturalKey()
		if _, seen := deduped[key]; !seen {
			order = append(order, key)
		}
		deduped[key] = rec
	}

	for _, key := range order {
		rec := deduped[key]

		existing, err := r.lookup(ctx, rec)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("lookup %s: %v", key, err))
			continue
		}

		if existing == nil {
			booking := recordToModel(rec)
			if err := r.store.SaveBooking(ctx, &booking); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("insert %s: %v", key, err))
				continue
			}
			result.NewBookings = append(result.NewBookings, rec)
			continue
		}

		previous := existing.Status
		if !applyRecord(existing, rec) {
			continue // unchanged, not reported
		}
		if err := r.store.SaveBooking(ctx, existing); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("update %s: %v", key, err))
			continue
		}
		result.StatusChanges = append(result.StatusChanges, StatusChange{
			Record:         rec,
			PreviousStatus: previous,
			NewStatus:      rec.Status,
		})
	}
}

// lookup prefers the portal's record id; the composite key is the fallback
// and also catches records stored before the portal exposed ids.
func (r *Reconciler) lookup(ctx context.Context, rec parse.BookingRecord) (*model.Booking, error) {
	if rec.ExternalID != "" {
		booking, err := r.store.FindBookingByExternalID(ctx, rec.ExternalID)
		if booking != nil || err != nil {
			return booking, err
		}
	}
	return r.store.FindBookingByNaturalKey(ctx, rec.RentalDate, rec.FacilityName, model.EncodeSlots(rec.TimeSlots))
}

func (r *Reconciler) dispatchEvents(result *SyncResult) {
	if r.pool == nil {
		return
	}
	for _, rec := range result.NewBookings {
		r.pool.Dispatch(notification.BookingEvent{
			Kind:         notification.EventNewBooking,
			FacilityName: rec.FacilityName,
			RentalDate:   rec.RentalDate,
			TimeSlots:    rec.TimeSlots,
			Applicant:    rec.ApplicantName,
			NewStatus:    string(rec.Status),
		})
	}
	for _, change := range result.StatusChanges {
		if change.PreviousStatus == change.NewStatus {
			continue // mutable-field-only update, not a status event
		}
		r.pool.Dispatch(notification.BookingEvent{
			Kind:           notification.EventStatusChange,
			FacilityName:   change.Record.FacilityName,
			RentalDate:     change.Record.RentalDate,
			TimeSlots:      change.Record.TimeSlots,
			Applicant:      change.Record.ApplicantName,
			PreviousStatus: string(change.PreviousStatus),
			NewStatus:      string(change.NewStatus),
		})
	}
}

func recordToModel(rec parse.BookingRecord) model.Booking {
	return model.Booking{
		ExternalID:        rec.ExternalID,
		RowNumber:         rec.RowNumber,
		FacilityName:      rec.FacilityName,
		ParticipantsCount: rec.ParticipantsCount,
		RentalDate:        rec.RentalDate,
		TimeSlots:         model.EncodeSlots(rec.TimeSlots),
		ApplicantName:     rec.ApplicantName,
		Organization:      rec.Organization,
		Phone:             rec.Phone,
		Status:            rec.Status,
		CancelDate:        rec.CancelDate,
		SpecialNote:       rec.SpecialNote,
		RemoteCreatedAt:   rec.CreatedAt,
	}
}

// applyRecord copies the scraped snapshot onto the stored booking and reports
// whether anything actually differed.
func applyRecord(b *model.Booking, rec parse.BookingRecord) bool {
	changed := false

	if rec.ExternalID != "" && b.ExternalID != rec.ExternalID {
		b.ExternalID = rec.ExternalID
		changed = true
	}
	if b.Status != rec.Status {
		b.Status = rec.Status
		changed = true
	}
	if b.ParticipantsCount != rec.ParticipantsCount {
		b.ParticipantsCount = rec.ParticipantsCount
		changed = true
	}
	if b.ApplicantName != rec.ApplicantName {
		b.ApplicantName = rec.ApplicantName
		changed = true
	}
	if b.Organization != rec.Organization {
		b.Organization = rec.Organization
		changed = true
	}
	if b.Phone != rec.Phone {
		b.Phone = rec.Phone
		changed = true
	}
	if b.SpecialNote != rec.SpecialNote {
		b.SpecialNote = rec.SpecialNote
		changed = true
	}
	if !equalOptionalDate(b.CancelDate, rec.CancelDate) {
		b.CancelDate = rec.CancelDate
		changed = true
	}

	return changed
}

func equalOptionalDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func logStats(page int, stats parse.ListStats) {
	if stats.SkippedRows > 0 || stats.UnknownStatusLabels > 0 {
		log.Printf("sync: page %d: %d rows skipped, %d unknown status labels",
			page, stats.SkippedRows, stats.UnknownStatusLabels)
	}
}
