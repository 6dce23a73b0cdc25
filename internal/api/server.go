// Package api exposes schedules, admission checks, booking creation and
// manual reminder scans over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"slotkeeper/internal/booking"
	"slotkeeper/internal/config"
	"slotkeeper/internal/models"
	"slotkeeper/internal/reminders"
	"slotkeeper/internal/schedule"
)

// BusinessReader loads tenants.
type BusinessReader interface {
	GetBusiness(ctx context.Context, id string) (*models.Business, error)
}

// ScheduleStore reads and replaces tenant hours.
type ScheduleStore interface {
	LoadSchedule(ctx context.Context, businessID string) (schedule.Schedule, error)
	ReplaceSchedule(ctx context.Context, businessID string, nonStop bool, blocks []schedule.Block) error
}

// BookingCreator creates bookings.
type BookingCreator interface {
	Create(ctx context.Context, req booking.CreateRequest) (*models.Booking, error)
}

// BookingStatusUpdater approves, declines or cancels bookings.
type BookingStatusUpdater interface {
	UpdateBookingStatus(ctx context.Context, id, status string) error
}

// ReminderRunner runs one reminder scan.
type ReminderRunner interface {
	RunOnce(ctx context.Context) (reminders.Summary, error)
}

// EventPublisher publishes domain events.
type EventPublisher interface {
	PublishJSON(eventType string, payload any) error
}

// Deps are the services behind the handlers. Events may be nil.
type Deps struct {
	Businesses BusinessReader
	Schedules  ScheduleStore
	Bookings   BookingCreator
	Statuses   BookingStatusUpdater
	Reminders  ReminderRunner
	Events     EventPublisher
}

// HTTPServer serves the public API.
type HTTPServer struct {
	deps     Deps
	apiKey   string
	validate *validator.Validate
	log      zerolog.Logger
	server   *http.Server
}

func NewHTTPServer(cfg config.APIConfig, port int, deps Deps, logger zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		deps:     deps,
		apiKey:   cfg.APIKey,
		validate: validator.New(),
		log:      logger.With().Str("component", "api").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	if cfg.RequestsPerMinute > 0 {
		r.Use(httprate.LimitByIP(cfg.RequestsPerMinute, time.Minute))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requireAPIKey)

		r.Route("/businesses/{businessID}", func(r chi.Router) {
			r.Get("/hours", s.handleGetHours)
			r.Put("/hours", s.handleReplaceHours)
			r.Post("/admission", s.handleAdmission)
		})
		r.Post("/bookings", s.handleCreateBooking)
		r.Patch("/bookings/{bookingID}/status", s.handleUpdateStatus)
		r.Post("/reminders/run", s.handleRunReminders)
	})

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler.
func (s *HTTPServer) Handler() http.Handler { return s.server.Handler }

// Start serves until ctx is done, then shuts down within timeout.
func (s *HTTPServer) Start(ctx context.Context, timeout time.Duration) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("addr", s.server.Addr).Msg("API server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

func (s *HTTPServer) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("x-api-key") != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

type errorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decode reads a JSON body into v and runs struct validation.
func (s *HTTPServer) decode(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return errors.New("invalid JSON body")
	}
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("field %s failed %q validation", fe.Namespace(), fe.Tag())
		}
		return err
	}
	return nil
}
