package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	registerOnce sync.Once

	EventsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "events_processed_total",
		Help: "Обработанные доставки событий по темам и исходам",
	}, []string{"topic", "outcome"})

	NotificationsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_created_total",
		Help: "Созданные уведомления по категориям",
	}, []string{"category"})

	ProgressUpserts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "progress_upserts_total",
		Help: "Записи прогресса по результату upsert",
	}, []string{"result"})

	StoreRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "store_request_duration_seconds",
		Help:    "Длительность запросов к хранилищу",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table", "status"})

	StoreRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "store_request_total",
		Help: "Количество запросов к хранилищу",
	}, []string{"operation", "table", "status"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})

	httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Общее количество HTTP-запросов",
	}, []string{"component", "method", "path", "status"})

	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Длительность HTTP-запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "method", "path", "status"})

	httpRequestsInFlight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "http_requests_in_flight",
		Help: "Количество текущих HTTP-запросов в обработке",
	}, []string{"component"})
)

// MustRegister регистрирует метрики пакета в переданном реестре.
func MustRegister(registerer prometheus.Registerer) {
	registerOnce.Do(func() {
		registerer.MustRegister(
			EventsProcessed,
			NotificationsCreated,
			ProgressUpserts,
			StoreRequestDuration,
			StoreRequestTotal,
			NetworkRequestDuration,
			NetworkRequestTotal,
			httpRequestsTotal,
			httpRequestDuration,
			httpRequestsInFlight,
		)
	})
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveStoreRequest записывает длительность и статус запроса к хранилищу.
func ObserveStoreRequest(operation, table string, start time.Time, err error) {
	if operation == "" {
		operation = "unknown"
	}
	if table == "" {
		table = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	StoreRequestDuration.WithLabelValues(operation, table, status).Observe(duration)
	StoreRequestTotal.WithLabelValues(operation, table, status).Inc()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// IncEventProcessed увеличивает счётчик обработанных доставок.
func IncEventProcessed(topic, outcome string) {
	if topic == "" {
		topic = "unknown"
	}
	EventsProcessed.WithLabelValues(topic, outcome).Inc()
}

// IncNotificationCreated увеличивает счётчик созданных уведомлений.
func IncNotificationCreated(category string) {
	if category == "" {
		category = "unknown"
	}
	NotificationsCreated.WithLabelValues(category).Inc()
}

// IncProgressUpsert увеличивает счётчик записей прогресса.
func IncProgressUpsert(inserted bool) {
	result := "updated"
	if inserted {
		result = "inserted"
	}
	ProgressUpserts.WithLabelValues(result).Inc()
}

// HTTPMiddleware возвращает middleware для сбора метрик HTTP-запросов.
func HTTPMiddleware(component string) func(http.Handler) http.Handler {
	if component == "" {
		component = "default"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			httpRequestsInFlight.WithLabelValues(component).Inc()
			defer httpRequestsInFlight.WithLabelValues(component).Dec()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			statusCode := ww.Status()
			if statusCode == 0 {
				statusCode = http.StatusOK
			}

			path := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				path = rctx.RoutePattern()
			}

			labels := []string{
				component,
				r.Method,
				path,
				strconv.Itoa(statusCode),
			}

			duration := time.Since(start).Seconds()
			httpRequestDuration.WithLabelValues(labels...).Observe(duration)
			httpRequestsTotal.WithLabelValues(labels...).Inc()
		})
	}
}
