package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"slotkeeper/internal/booking"
	"slotkeeper/internal/database"
	"slotkeeper/internal/models"
	"slotkeeper/internal/reminders"
	"slotkeeper/internal/schedule"
)

// CustomerDTO identifies who the booking is for.
type CustomerDTO struct {
	Name           string `json:"name" validate:"required,max=200"`
	Email          string `json:"email" validate:"omitempty,email"`
	Phone          string `json:"phone" validate:"omitempty,max=32"`
	TelegramChatID int64  `json:"telegram_chat_id"`
}

// CreateBookingRequest is the body of POST /bookings.
type CreateBookingRequest struct {
	BusinessID string      `json:"business_id" validate:"required"`
	ServiceID  string      `json:"service_id" validate:"required"`
	Customer   CustomerDTO `json:"customer"`
	Start      time.Time   `json:"start" validate:"required"`
	End        time.Time   `json:"end" validate:"required,gtfield=Start"`
	Comment    string      `json:"comment" validate:"max=1000"`
}

// StatusRequest is the body of PATCH /bookings/{id}/status.
type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending approved declined cancelled"`
}

// POST /api/v1/bookings
func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req CreateBookingRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	b, err := s.deps.Bookings.Create(r.Context(), booking.CreateRequest{
		BusinessID: req.BusinessID,
		ServiceID:  req.ServiceID,
		Customer: models.Customer{
			Name:           req.Customer.Name,
			Email:          req.Customer.Email,
			Phone:          req.Customer.Phone,
			TelegramChatID: req.Customer.TelegramChatID,
		},
		Start:   req.Start,
		End:     req.End,
		Comment: req.Comment,
	})
	if err != nil {
		s.writeBookingError(w, err, req.BusinessID)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *HTTPServer) writeBookingError(w http.ResponseWriter, err error, businessID string) {
	var rejected *schedule.RejectionError
	switch {
	case errors.As(err, &rejected):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:   err.Error(),
			Details: map[string]string{"reason": string(rejected.Reason)},
		})
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, booking.ErrInactive):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, schedule.ErrValidation), errors.Is(err, booking.ErrWrongBusiness):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.log.Error().Err(err).Str("business_id", businessID).Msg("Booking creation failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// PATCH /api/v1/bookings/{bookingID}/status
func (s *HTTPServer) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "bookingID")

	var req StatusRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.deps.Statuses.UpdateBookingStatus(r.Context(), id, req.Status); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "booking not found")
			return
		}
		s.log.Error().Err(err).Str("booking_id", id).Msg("Booking status update failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.log.Info().Str("booking_id", id).Str("status", req.Status).Msg("Booking status changed")
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": req.Status})
}

// POST /api/v1/reminders/run
func (s *HTTPServer) handleRunReminders(w http.ResponseWriter, r *http.Request) {
	summary, err := s.deps.Reminders.RunOnce(r.Context())
	if errors.Is(err, reminders.ErrScanInProgress) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("Manual reminder scan failed")
		writeError(w, http.StatusInternalServerError, "reminder scan failed")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
