package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"studio-sync-backend/internal/model"
	"studio-sync-backend/internal/parse"
	"studio-sync-backend/internal/remote"
)

// GetBookings lists the locally stored bookings, optionally filtered by
// status.
func (h *Handler) GetBookings(c *gin.Context) {
	status := model.BookingStatus(c.Query("status"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	bookings, err := h.store.ListBookings(c.Request.Context(), status, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings})
}

// GetBookingDetail fetches the portal's detail page for one booking live and
// returns the parsed fields. One remote request per call, on demand only.
func (h *Handler) GetBookingDetail(c *gin.Context) {
	externalID := c.Param("external_id")

	booking, err := h.store.FindBookingByExternalID(c.Request.Context(), externalID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if booking == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
		return
	}

	if !h.sessions.EnsureValid(c.Request.Context()) {
		c.JSON(http.StatusConflict, gin.H{"error": "no valid portal session"})
		return
	}

	html, err := h.sessions.Client().FetchDetailPage(c.Request.Context(), externalID)
	if errors.Is(err, remote.ErrSessionExpired) {
		h.sessions.MarkExpired(c.Request.Context())
		c.JSON(http.StatusConflict, gin.H{"error": "portal session expired"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	base := parse.BookingRecord{
		ExternalID:        booking.ExternalID,
		FacilityName:      booking.FacilityName,
		ParticipantsCount: booking.ParticipantsCount,
		RentalDate:        booking.RentalDate,
		TimeSlots:         model.DecodeSlots(booking.TimeSlots),
		ApplicantName:     booking.ApplicantName,
		Organization:      booking.Organization,
		Phone:             booking.Phone,
		Status:            booking.Status,
		CancelDate:        booking.CancelDate,
		SpecialNote:       booking.SpecialNote,
	}

	detail, err := parse.ParseBookingDetail(html, base)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, detail)
}
