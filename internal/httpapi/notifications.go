package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"microlearning-services/internal/adapters/pubsub"
	"microlearning-services/internal/domain"
	"microlearning-services/internal/usecase/notifications"
)

// NotificationsServer — HTTP-интерфейс сервиса уведомлений: прямой CRUD,
// маршруты подписок брокера и эндпоинт обнаружения подписок.
type NotificationsServer struct {
	svc    *notifications.Service
	events *pubsub.Router
	subs   []domain.Subscription
	log    zerolog.Logger
}

// NewNotificationsServer создаёт сервер уведомлений. Таблица подписок
// статична и не меняется после старта.
func NewNotificationsServer(svc *notifications.Service, events *pubsub.Router, pubsubName string, logger zerolog.Logger) *NotificationsServer {
	if pubsubName == "" {
		pubsubName = "pubsub"
	}
	return &NotificationsServer{
		svc:    svc,
		events: events,
		subs: []domain.Subscription{
			{PubsubName: pubsubName, Topic: domain.TopicQuizCompleted, Route: "/api/notifications/events/quiz-completed"},
			{PubsubName: pubsubName, Topic: domain.TopicCourseCreated, Route: "/api/notifications/events/course-created"},
		},
		log: logger,
	}
}

// Router собирает маршруты сервиса.
func (s *NotificationsServer) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/dapr/subscribe", s.handleSubscriptions)

	r.Route("/api/notifications", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/", s.handleCreate)
		r.Post("/send", s.handleCreate)
		r.Post("/quick", s.handleQuickCreate)
		r.Get("/user/{userID}", s.handleListForUser)
		r.Get("/user/{userID}/unread", s.handleListUnread)
		r.Get("/stats/user/{userID}", s.handleUserStats)
		r.Get("/{id}", s.handleGet)
		r.Put("/{id}/read", s.handleMarkRead)
		r.Delete("/{id}", s.handleDelete)
		r.Post("/test/publish", s.handleTestPublish)
		r.Post("/events/quiz-completed", s.events.ServeTopic(domain.TopicQuizCompleted))
		r.Post("/events/course-created", s.events.ServeTopic(domain.TopicCourseCreated))
	})

	return r
}

type createNotificationRequest struct {
	UserID   string `json:"user_id"`
	Category string `json:"category"`
	Title    string `json:"title"`
	Message  string `json:"message"`
}

func (s *NotificationsServer) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.subs)
}

func (s *NotificationsServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "UP", "service": "notification-service"})
}

func (s *NotificationsServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}
	n, err := s.svc.Create(r.Context(), req.UserID, req.Category, req.Title, req.Message)
	if err != nil {
		s.log.Error().Err(err).Msg("уведомления: не удалось создать")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create notification")
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// handleQuickCreate создаёт уведомление из query-параметров, без JSON-тела.
func (s *NotificationsServer) handleQuickCreate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("user_id") == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}
	n, err := s.svc.Create(r.Context(), q.Get("user_id"), q.Get("category"), q.Get("title"), q.Get("message"))
	if err != nil {
		s.log.Error().Err(err).Msg("уведомления: не удалось создать")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create notification")
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (s *NotificationsServer) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid notification id")
		return
	}
	n, err := s.svc.Notification(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotificationNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "notification not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *NotificationsServer) handleListForUser(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.UserNotifications(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	if list == nil {
		list = []domain.Notification{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *NotificationsServer) handleListUnread(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.UnreadNotifications(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	if list == nil {
		list = []domain.Notification{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *NotificationsServer) handleUserStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.UserStats(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *NotificationsServer) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid notification id")
		return
	}
	n, err := s.svc.MarkRead(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotificationNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "notification not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *NotificationsServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid notification id")
		return
	}
	deleted, err := s.svc.Delete(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "not_found", "notification not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *NotificationsServer) handleTestPublish(w http.ResponseWriter, r *http.Request) {
	ev, err := s.svc.PublishTest(r.Context())
	if err != nil {
		if errors.Is(err, notifications.ErrPublisherDisabled) {
			writeError(w, http.StatusServiceUnavailable, "publisher_disabled", "event publisher is not configured")
			return
		}
		s.log.Error().Err(err).Msg("уведомления: тестовая публикация не удалась")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to publish test event")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "published", "event": ev})
}
