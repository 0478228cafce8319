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
	"microlearning-services/internal/usecase/analytics"
)

// AnalyticsServer — HTTP-интерфейс сервиса аналитики прогресса.
type AnalyticsServer struct {
	svc    *analytics.Service
	events *pubsub.Router
	subs   []domain.Subscription
	log    zerolog.Logger
}

// NewAnalyticsServer создаёт сервер аналитики.
func NewAnalyticsServer(svc *analytics.Service, events *pubsub.Router, pubsubName string, logger zerolog.Logger) *AnalyticsServer {
	if pubsubName == "" {
		pubsubName = "pubsub"
	}
	return &AnalyticsServer{
		svc:    svc,
		events: events,
		subs: []domain.Subscription{
			{PubsubName: pubsubName, Topic: domain.TopicLessonCompleted, Route: "/api/analytics/events/lesson-completed"},
			{PubsubName: pubsubName, Topic: domain.TopicQuizCompleted, Route: "/api/analytics/events/quiz-completed"},
		},
		log: logger,
	}
}

// Router собирает маршруты сервиса.
func (s *AnalyticsServer) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/dapr/subscribe", s.handleSubscriptions)

	r.Route("/api/analytics", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/progress", s.handleRecordProgress)
		r.Post("/record", s.handleRecordQuery)
		r.Get("/progress/{id}", s.handleGet)
		r.Put("/progress/{id}/score", s.handleUpdateScore)
		r.Delete("/progress/{id}", s.handleDelete)
		r.Get("/user/{userID}/progress", s.handleListForUser)
		r.Get("/stats/{userID}", s.handleUserStats)
		r.Post("/events/lesson-completed", s.events.ServeTopic(domain.TopicLessonCompleted))
		r.Post("/events/quiz-completed", s.events.ServeTopic(domain.TopicQuizCompleted))
	})

	return r
}

func (s *AnalyticsServer) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.subs)
}

func (s *AnalyticsServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "UP", "service": "analytics-service"})
}

func (s *AnalyticsServer) handleRecordProgress(w http.ResponseWriter, r *http.Request) {
	var params analytics.RecordParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if params.UserID == "" || params.LessonID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id and lesson_id are required")
		return
	}
	rec, err := s.svc.RecordProgress(r.Context(), params)
	if err != nil {
		s.log.Error().Err(err).Msg("аналитика: не удалось записать прогресс")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to record progress")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleRecordQuery принимает прогресс из query-параметров, без JSON-тела.
func (s *AnalyticsServer) handleRecordQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := analytics.RecordParams{
		UserID:      q.Get("user_id"),
		LessonID:    q.Get("lesson_id"),
		LessonTitle: q.Get("lesson_title"),
	}
	if params.UserID == "" || params.LessonID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id and lesson_id are required")
		return
	}
	if raw := q.Get("completed"); raw != "" {
		completed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid completed value")
			return
		}
		params.Completed = completed
	}
	if raw := q.Get("quiz_score"); raw != "" {
		score, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid quiz_score value")
			return
		}
		params.QuizScore = &score
	}
	rec, err := s.svc.RecordProgress(r.Context(), params)
	if err != nil {
		s.log.Error().Err(err).Msg("аналитика: не удалось записать прогресс")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to record progress")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *AnalyticsServer) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid progress id")
		return
	}
	rec, err := s.svc.Progress(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrProgressNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "progress record not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *AnalyticsServer) handleUpdateScore(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid progress id")
		return
	}
	raw := r.URL.Query().Get("score")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "score is required")
		return
	}
	score, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid score value")
		return
	}
	rec, err := s.svc.UpdateQuizScore(r.Context(), id, score)
	if err != nil {
		if errors.Is(err, domain.ErrProgressNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "progress record not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *AnalyticsServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid progress id")
		return
	}
	deleted, err := s.svc.Delete(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "not_found", "progress record not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *AnalyticsServer) handleListForUser(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.UserProgress(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	if list == nil {
		list = []domain.ProgressRecord{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *AnalyticsServer) handleUserStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.UserStats(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
