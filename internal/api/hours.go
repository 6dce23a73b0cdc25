package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"slotkeeper/internal/database"
	"slotkeeper/internal/events"
	"slotkeeper/internal/schedule"
	"slotkeeper/internal/weekclock"
)

// BlockDTO is one weekly block on the wire. Day 0 is Sunday.
type BlockDTO struct {
	StartDay    int `json:"start_day" validate:"min=0,max=6"`
	StartHour   int `json:"start_hour" validate:"min=0,max=23"`
	StartMinute int `json:"start_minute" validate:"min=0,max=59"`
	EndDay      int `json:"end_day" validate:"min=0,max=6"`
	EndHour     int `json:"end_hour" validate:"min=0,max=23"`
	EndMinute   int `json:"end_minute" validate:"min=0,max=59"`
}

func toDTO(b schedule.Block) BlockDTO {
	return BlockDTO{
		StartDay: b.Start.Day(), StartHour: b.Start.Hour(), StartMinute: b.Start.Minute(),
		EndDay: b.End.Day(), EndHour: b.End.Hour(), EndMinute: b.End.Minute(),
	}
}

// HoursResponse is returned by GET and PUT /hours. Blocks are Monday first.
type HoursResponse struct {
	BusinessID string     `json:"business_id"`
	NonStop    bool       `json:"operates_non_stop"`
	Blocks     []BlockDTO `json:"blocks"`
}

// ReplaceHoursRequest is the body of PUT /hours.
type ReplaceHoursRequest struct {
	NonStop bool       `json:"operates_non_stop"`
	Blocks  []BlockDTO `json:"blocks" validate:"dive"`
}

// AdmissionRequest is the body of POST /admission.
type AdmissionRequest struct {
	Start time.Time `json:"start" validate:"required"`
	End   time.Time `json:"end" validate:"required,gtfield=Start"`
}

// AdmissionResponse reports the decision and the local readings it used.
type AdmissionResponse struct {
	Admitted   bool   `json:"admitted"`
	Reason     string `json:"reason,omitempty"`
	LocalStart string `json:"local_start,omitempty"`
	LocalEnd   string `json:"local_end,omitempty"`
}

func hoursResponse(businessID string, s schedule.Schedule) HoursResponse {
	resp := HoursResponse{BusinessID: businessID, NonStop: s.NonStop, Blocks: []BlockDTO{}}
	for _, b := range s.Ordered() {
		resp.Blocks = append(resp.Blocks, toDTO(b))
	}
	return resp
}

// GET /api/v1/businesses/{businessID}/hours
func (s *HTTPServer) handleGetHours(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "businessID")
	sched, err := s.deps.Schedules.LoadSchedule(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err, id)
		return
	}
	writeJSON(w, http.StatusOK, hoursResponse(id, sched))
}

// PUT /api/v1/businesses/{businessID}/hours
func (s *HTTPServer) handleReplaceHours(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "businessID")

	var req ReplaceHoursRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	blocks := make([]schedule.Block, 0, len(req.Blocks))
	for i, dto := range req.Blocks {
		b, err := schedule.NewBlock(dto.StartDay, dto.StartHour, dto.StartMinute, dto.EndDay, dto.EndHour, dto.EndMinute)
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
				Error:   err.Error(),
				Details: map[string]int{"index": i},
			})
			return
		}
		blocks = append(blocks, b)
	}

	if err := s.deps.Schedules.ReplaceSchedule(r.Context(), id, req.NonStop, blocks); err != nil {
		var overlap *schedule.OverlapError
		var malformed *schedule.BlockError
		switch {
		case errors.As(err, &overlap):
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
				Error:   err.Error(),
				Details: map[string]int{"i": overlap.I, "j": overlap.J},
			})
		case errors.As(err, &malformed):
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
				Error:   err.Error(),
				Details: map[string]int{"index": malformed.Index},
			})
		default:
			s.writeStoreError(w, err, id)
		}
		return
	}

	if s.deps.Events != nil {
		err := s.deps.Events.PublishJSON(events.ScheduleReplaced, events.SchedulePayload{
			BusinessID: id,
			NonStop:    req.NonStop,
			Blocks:     len(blocks),
		})
		if err != nil {
			s.log.Warn().Err(err).Str("business_id", id).Msg("Failed to publish schedule event")
		}
	}

	writeJSON(w, http.StatusOK, hoursResponse(id, schedule.Schedule{NonStop: req.NonStop, Blocks: blocks}))
}

// POST /api/v1/businesses/{businessID}/admission
func (s *HTTPServer) handleAdmission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "businessID")

	var req AdmissionRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	biz, err := s.deps.Businesses.GetBusiness(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err, id)
		return
	}
	loc, err := biz.Location()
	if err != nil {
		s.log.Error().Err(err).Str("business_id", id).Msg("Business has an unusable timezone")
		writeError(w, http.StatusInternalServerError, "business timezone is invalid")
		return
	}
	sched, err := s.deps.Schedules.LoadSchedule(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err, id)
		return
	}

	d := schedule.Admit(req.Start, req.End, loc, sched)
	writeJSON(w, http.StatusOK, AdmissionResponse{
		Admitted:   d.Admitted,
		Reason:     string(d.Reason),
		LocalStart: weekclock.At(req.Start, loc).String(),
		LocalEnd:   weekclock.At(req.End, loc).String(),
	})
}

func (s *HTTPServer) writeStoreError(w http.ResponseWriter, err error, businessID string) {
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "business not found")
		return
	}
	s.log.Error().Err(err).Str("business_id", businessID).Msg("Store request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}
