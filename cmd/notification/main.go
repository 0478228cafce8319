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
	"github.com/redis/go-redis/v9"

	"microlearning-services/internal/adapters/pubsub"
	"microlearning-services/internal/adapters/repo"
	"microlearning-services/internal/domain"
	"microlearning-services/internal/httpapi"
	"microlearning-services/internal/infra/cache"
	"microlearning-services/internal/infra/config"
	"microlearning-services/internal/infra/db"
	httpinfra "microlearning-services/internal/infra/http"
	applog "microlearning-services/internal/infra/log"
	"microlearning-services/internal/infra/metrics"
	"microlearning-services/internal/usecase/notifications"
)

const (
	defaultPort        = 8082
	defaultMetricsAddr = ":9092"
	defaultQueue       = "learning.events.notifications"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("notification: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)

	publisher, err := pubsub.NewPublisher(cfg.Pubsub.SidecarURL, cfg.Pubsub.Name, pubsub.WithSource("notification-service"))
	if err != nil {
		logger.Fatal().Err(err).Msg("notification: не удалось создать издателя событий")
	}

	svc := notifications.NewService(repoAdapter, logger.With().Str("component", "notifications").Logger(), notifications.WithPublisher(publisher))

	var routerOpts []pubsub.RouterOption
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		routerOpts = append(routerOpts, pubsub.WithDeduper(cache.NewRedis(redisClient), cfg.Pubsub.DedupTTL))
		logger.Info().Str("addr", cfg.RedisAddr).Msg("notification: включена защита от повторных доставок")
	}
	events := pubsub.NewRouter(logger.With().Str("component", "events").Logger(), routerOpts...)
	events.Handle(domain.TopicQuizCompleted, func(ctx context.Context, ev domain.Event) error {
		_, err := svc.NotifyQuizCompleted(ctx, *ev.QuizCompleted)
		return err
	})
	events.Handle(domain.TopicCourseCreated, func(ctx context.Context, ev domain.Event) error {
		_, err := svc.NotifyCourseCreated(ctx, *ev.CourseCreated)
		return err
	})

	api := httpapi.NewNotificationsServer(svc, events, cfg.Pubsub.Name, logger.With().Str("component", "http").Logger())

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
	srv := httpinfra.NewServer(logger, "notification", fmt.Sprintf(":%d", port), api.Router())
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("notification: сервер остановлен")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("notification: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
