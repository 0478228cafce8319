package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"microlearning-services/internal/adapters/pubsub"
	"microlearning-services/internal/adapters/repo"
	"microlearning-services/internal/domain"
	"microlearning-services/internal/httpapi"
	"microlearning-services/internal/infra/config"
	"microlearning-services/internal/infra/db"
	httpinfra "microlearning-services/internal/infra/http"
	applog "microlearning-services/internal/infra/log"
	"microlearning-services/internal/infra/metrics"
	"microlearning-services/internal/usecase/analytics"
)

const (
	defaultPort        = 8083
	defaultMetricsAddr = ":9093"
	defaultQueue       = "learning.events.analytics"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("analytics: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)

	svc := analytics.NewService(repoAdapter, logger.With().Str("component", "analytics").Logger())

	events := pubsub.NewRouter(logger.With().Str("component", "events").Logger())
	events.Handle(domain.TopicLessonCompleted, func(ctx context.Context, ev domain.Event) error {
		_, err := svc.RecordLessonCompletion(ctx, *ev.LessonCompleted)
		return err
	})
	events.Handle(domain.TopicQuizCompleted, func(ctx context.Context, ev domain.Event) error {
		_, err := svc.RecordQuizCompletion(ctx, *ev.QuizCompleted)
		return err
	})

	api := httpapi.NewAnalyticsServer(svc, events, cfg.Pubsub.Name, logger.With().Str("component", "http").Logger())

	if cfg.AMQP.URL != "" {
		queue := cfg.AMQP.Queue
		if queue == "" {
			queue = defaultQueue
		}
		sub := pubsub.NewSubscriber(cfg.AMQP.URL, queue, events, logger.With().Str("component", "amqp").Logger())
		go sub.Run(ctx)
	}

	metricsAddr := cfg.MetricsAddr
	if metricsAddr == "" {
		metricsAddr = defaultMetricsAddr
	}
	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), metricsAddr)

	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}
	srv := httpinfra.NewServer(logger, "analytics", fmt.Sprintf(":%d", port), api.Router())
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("analytics: сервер остановлен")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("analytics: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
