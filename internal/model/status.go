package model

// BookingStatus is the closed set of states a booking can be in locally.
// Remote labels outside the translation table fall back to StatusPending.
type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCancelled BookingStatus = "cancelled"
	StatusTentative BookingStatus = "tentative"
	StatusCompleted BookingStatus = "completed"
)

// statusLabels maps the portal's Korean status labels to the internal enum.
var statusLabels = map[string]BookingStatus{
	"대기":   StatusPending,
	"예약대기": StatusPending,
	"승인대기": StatusPending,
	"확정":   StatusConfirmed,
	"예약확정": StatusConfirmed,
	"취소":   StatusCancelled,
	"예약취소": StatusCancelled,
	"가예약":  StatusTentative,
	"이용완료": StatusCompleted,
}

// StatusFromLabel translates a remote status label. Unknown labels return
// StatusPending and ok=false so callers can count them.
func StatusFromLabel(label string) (BookingStatus, bool) {
	if s, ok := statusLabels[label]; ok {
		return s, true
	}
	return StatusPending, false
}
