package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"slotkeeper/internal/api"
	"slotkeeper/internal/booking"
	"slotkeeper/internal/cache"
	"slotkeeper/internal/config"
	"slotkeeper/internal/database"
	"slotkeeper/internal/events"
	"slotkeeper/internal/logging"
	"slotkeeper/internal/notify"
	"slotkeeper/internal/reminders"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		bootstrap := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
		bootstrap.Fatal().Err(err).Msg("failed to load config")
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Console)

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	var rdb *redis.Client
	var schedules api.ScheduleStore = db
	if cfg.Redis.Enabled() {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		schedules = cache.NewScheduleCache(db, rdb, cfg.Redis.CacheTTL(), logger)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reminderMetrics := reminders.NewMetrics(registry, "slotkeeper")

	bus := events.NewEventBus()
	logEvent := func(e events.Event) error {
		logger.Debug().Int64("event_id", e.ID).Str("type", e.Type).RawJSON("payload", e.Payload).Msg("event")
		return nil
	}
	for _, t := range []string{events.ScheduleReplaced, events.BookingCreated, events.ReminderDispatched} {
		bus.Subscribe(t, logEvent)
	}

	router, mailer, closeNotifiers, err := buildNotifiers(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("notifier setup error")
	}
	defer closeNotifiers()
	if mailer != nil {
		notify.NewBookingMailer(db, mailer, logger).Subscribe(bus)
	}

	dispatcher := reminders.NewDispatcher(router, reminders.DispatcherConfig{
		Rate:  cfg.Reminders.Rate,
		Burst: cfg.Reminders.Burst,
		Retry: reminders.RetryConfig{
			MaxRetries:  cfg.Reminders.MaxRetries,
			RetryDelays: cfg.Reminders.Delays(),
		},
	}, reminderMetrics, logger)

	schedCfg := reminders.DefaultConfig()
	schedCfg.MaxConcurrency = cfg.Reminders.MaxConcurrency
	scheduler := reminders.NewScheduler(schedCfg, db, dispatcher, reminderMetrics, logger)
	scheduler.OnDispatched = publishDispatched(bus, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Reminders.Enabled {
		loc, err := time.LoadLocation(cfg.Reminders.Timezone)
		if err != nil {
			logger.Fatal().Err(err).Str("timezone", cfg.Reminders.Timezone).Msg("invalid reminders timezone")
		}
		trigger, err := reminders.NewTrigger(cfg.Reminders.Schedule, loc, scheduler, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("reminder trigger error")
		}
		if err := trigger.Start(ctx); err != nil {
			logger.Fatal().Err(err).Msg("reminder trigger start error")
		}
		defer trigger.Stop()
		logger.Info().Str("schedule", cfg.Reminders.Schedule).Time("next", trigger.Next()).Msg("Reminder scans scheduled")
	}

	backups := database.NewBackupService(db, cfg.Backup, logger)
	go func() {
		if err := backups.Start(ctx); err != nil {
			logger.Error().Err(err).Msg("backup service error")
		}
	}()

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, &logger)
	if cfg.Monitoring.PrometheusEnabled {
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, registry, &logger)
	}

	logger.Info().Msg("slotkeeper started")

	if !cfg.API.Enabled {
		<-ctx.Done()
		logger.Info().Msg("shutting down")
		return
	}

	server := api.NewHTTPServer(cfg.API, cfg.Server.Port, api.Deps{
		Businesses: db,
		Schedules:  schedules,
		Bookings:   booking.NewService(db, schedules, bus, registry, logger),
		Statuses:   db,
		Reminders:  scheduler,
		Events:     bus,
	}, logger)
	if err := server.Start(ctx, cfg.ShutdownTimeout()); err != nil {
		logger.Error().Err(err).Msg("api server stopped")
	}
	logger.Info().Msg("shutting down")
}

// publishDispatched turns recorded reminder dispatches into events.
func publishDispatched(bus *events.EventBus, logger zerolog.Logger) func(reminders.Dispatched) {
	return func(d reminders.Dispatched) {
		err := bus.PublishJSON(events.ReminderDispatched, events.ReminderPayload{
			RunID:       d.RunID,
			BookingID:   d.BookingID,
			BusinessID:  d.BusinessID,
			LeadMinutes: d.LeadMinutes,
			Channel:     string(d.Channel),
		})
		if err != nil {
			logger.Warn().Err(err).Str("booking_id", d.BookingID).Msg("Failed to publish reminder event")
		}
	}
}

// buildNotifiers registers a sender for every configured channel. E-mail
// goes through RabbitMQ when a queue URL is set and straight to SMTP
// otherwise. The returned mailer is nil when e-mail is not configured.
func buildNotifiers(cfg *config.Config, logger zerolog.Logger) (*notify.Router, notify.Mailer, func(), error) {
	router := notify.NewRouter()
	closeFn := func() {}

	var mailer notify.Mailer
	switch {
	case cfg.MailQueue.Enabled():
		queue, closeQueue, err := notify.DialQueueMailer(cfg.MailQueue)
		if err != nil {
			return nil, nil, nil, err
		}
		closeFn = func() { _ = closeQueue() }
		mailer = queue
	case cfg.SMTP.Enabled():
		mailer = notify.NewSMTPSender(cfg.SMTP)
	}
	if mailer != nil {
		router.Handle(reminders.ChannelEmail, notify.NewEmailChannel(mailer))
	}

	if cfg.Telegram.Enabled() {
		bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
		if err != nil {
			closeFn()
			return nil, nil, nil, fmt.Errorf("telegram bot: %w", err)
		}
		bot.Debug = cfg.Telegram.Debug
		router.Handle(reminders.ChannelTelegram, notify.NewTelegramSender(bot))
	}

	logger.Info().Interface("channels", router.Channels()).Msg("Reminder channels configured")
	return router, mailer, closeFn, nil
}

func startHealthServer(ctx context.Context, port int, db *database.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	serve(ctx, port, mux, "health", logger)
}

func startMetricsServer(ctx context.Context, port int, reg *prometheus.Registry, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	serve(ctx, port, mux, "metrics", logger)
}

func serve(ctx context.Context, port int, handler http.Handler, name string, logger *zerolog.Logger) {
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msgf("%s server error", name)
	}
}
