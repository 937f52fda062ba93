package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"studio-sync-backend/internal/model"
)

// EventKind names the booking events the reconciler produces.
type EventKind string

const (
	EventNewBooking   EventKind = "new_booking"
	EventStatusChange EventKind = "status_change"
)

// BookingEvent is one structured "new booking" / "status changed" event.
type BookingEvent struct {
	Kind           EventKind `json:"kind"`
	FacilityName   string    `json:"facility_name"`
	RentalDate     time.Time `json:"rental_date"`
	TimeSlots      []int     `json:"time_slots"`
	Applicant      string    `json:"applicant"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	NewStatus      string    `json:"new_status"`
}

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool fans booking events out to every push subscription.
type WorkerPool struct {
	size    int
	jobs    chan BookingEvent
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan BookingEvent, size*4),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("notification worker %d started", id)
	for {
		select {
		case event := <-wp.jobs:
			wp.broadcast(ctx, event)
		case <-ctx.Done():
			log.Printf("notification worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues one event for delivery.
func (wp *WorkerPool) Dispatch(event BookingEvent) {
	wp.jobs <- event
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan BookingEvent {
	return wp.jobs
}

// broadcast sends the event to every registered subscription.
func (wp *WorkerPool) broadcast(ctx context.Context, event BookingEvent) {
	var subscriptions []model.PushSubscription
	if err := wp.db.WithContext(ctx).Find(&subscriptions).Error; err != nil {
		log.Printf("Error fetching subscriptions: %v", err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(map[string]string{
		"title": eventTitle(event),
		"body":  eventBody(event),
	})
	if err != nil {
		log.Printf("Error building notification payload: %v", err)
		return
	}

	log.Printf("Sending %d notifications for %s %s", len(subscriptions), event.Kind, event.FacilityName)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

func eventTitle(event BookingEvent) string {
	if event.Kind == EventStatusChange {
		return fmt.Sprintf("예약 상태 변경: %s", event.FacilityName)
	}
	return fmt.Sprintf("신규 예약: %s", event.FacilityName)
}

func eventBody(event BookingEvent) string {
	date := event.RentalDate.Format("2006-01-02")
	if event.Kind == EventStatusChange {
		return fmt.Sprintf("%s %s / %s → %s", date, event.FacilityName, event.PreviousStatus, event.NewStatus)
	}
	return fmt.Sprintf("%s %s / %s", date, event.FacilityName, event.Applicant)
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
