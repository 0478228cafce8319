package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"microlearning-services/internal/adapters/pubsub"
	"microlearning-services/internal/domain"
	"microlearning-services/internal/usecase/analytics"
)

type progressRepoStub struct {
	records []domain.ProgressRecord
	nextID  int64
}

func (s *progressRepoStub) UpsertProgress(_ context.Context, rec domain.ProgressRecord) (domain.ProgressRecord, bool, error) {
	for i, existing := range s.records {
		if existing.UserID == rec.UserID && existing.LessonID == rec.LessonID {
			rec.ID = existing.ID
			rec.CompletedAt = existing.CompletedAt
			if rec.Completed && !existing.Completed {
				rec.CompletedAt = time.Now()
			}
			s.records[i] = rec
			return rec, false, nil
		}
	}
	s.nextID++
	rec.ID = s.nextID
	rec.CompletedAt = time.Unix(1_700_000_000+s.nextID*60, 0)
	s.records = append(s.records, rec)
	return rec, true, nil
}

func (s *progressRepoStub) GetProgress(_ context.Context, id int64) (domain.ProgressRecord, error) {
	for _, rec := range s.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return domain.ProgressRecord{}, domain.ErrProgressNotFound
}

func (s *progressRepoStub) ListUserProgress(_ context.Context, userID string) ([]domain.ProgressRecord, error) {
	var res []domain.ProgressRecord
	for _, rec := range s.records {
		if rec.UserID == userID {
			res = append(res, rec)
		}
	}
	return res, nil
}

func (s *progressRepoStub) UpdateQuizScore(_ context.Context, id int64, score int) (domain.ProgressRecord, error) {
	for i, rec := range s.records {
		if rec.ID == id {
			s.records[i].QuizScore = &score
			return s.records[i], nil
		}
	}
	return domain.ProgressRecord{}, domain.ErrProgressNotFound
}

func (s *progressRepoStub) DeleteProgress(_ context.Context, id int64) (bool, error) {
	for i, rec := range s.records {
		if rec.ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *progressRepoStub) CountCompletedLessons(_ context.Context, userID string) (int, error) {
	count := 0
	for _, rec := range s.records {
		if rec.UserID == userID && rec.Completed {
			count++
		}
	}
	return count, nil
}

func newAnalyticsAPI() (*AnalyticsServer, *progressRepoStub) {
	repo := &progressRepoStub{}
	svc := analytics.NewService(repo, zerolog.Nop())
	events := pubsub.NewRouter(zerolog.Nop())
	events.Handle(domain.TopicLessonCompleted, func(ctx context.Context, ev domain.Event) error {
		_, err := svc.RecordLessonCompletion(ctx, *ev.LessonCompleted)
		return err
	})
	events.Handle(domain.TopicQuizCompleted, func(ctx context.Context, ev domain.Event) error {
		_, err := svc.RecordQuizCompletion(ctx, *ev.QuizCompleted)
		return err
	})
	return NewAnalyticsServer(svc, events, "pubsub", zerolog.Nop()), repo
}

func TestLessonEventRecordsProgress(t *testing.T) {
	api, _ := newAnalyticsAPI()
	router := api.Router()

	body := `{"id":"ev-1","topic":"lesson_completed","data":{"user_id":"u-1","lesson_id":"l-1","lesson_title":"Les boucles","completed":true}}`
	rec := doRequest(t, router, http.MethodPost, "/api/analytics/events/lesson-completed", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"SUCCESS"`) {
		t.Fatalf("expected SUCCESS ack, got %s", rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodGet, "/api/analytics/user/u-1/progress", "")
	var list []domain.ProgressRecord
	decodeBody(t, rec, &list)
	if len(list) != 1 {
		t.Fatalf("expected 1 record, got %d", len(list))
	}
	if !list[0].Completed || list[0].LessonTitle != "Les boucles" {
		t.Fatalf("unexpected record: %+v", list[0])
	}
}

func TestEventRedeliveryDoesNotDuplicate(t *testing.T) {
	api, repo := newAnalyticsAPI()
	router := api.Router()

	body := `{"id":"ev-1","topic":"lesson_completed","data":{"user_id":"u-1","lesson_id":"l-1","lesson_title":"Les boucles","completed":true}}`
	for i := 0; i < 2; i++ {
		rec := doRequest(t, router, http.MethodPost, "/api/analytics/events/lesson-completed", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("delivery %d: expected 200, got %d", i+1, rec.Code)
		}
	}
	if len(repo.records) != 1 {
		t.Fatalf("expected single record after redelivery, got %d", len(repo.records))
	}
}

func TestQuizEventRecordsRoundedScore(t *testing.T) {
	api, _ := newAnalyticsAPI()
	router := api.Router()

	body := `{"id":"ev-2","topic":"quiz_completed","data":{"quiz_id":"q-5","user_id":"u-1","score":91.5,"passed":true}}`
	rec := doRequest(t, router, http.MethodPost, "/api/analytics/events/quiz-completed", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodGet, "/api/analytics/user/u-1/progress", "")
	var list []domain.ProgressRecord
	decodeBody(t, rec, &list)
	if len(list) != 1 {
		t.Fatalf("expected 1 record, got %d", len(list))
	}
	if list[0].LessonID != "q-5" {
		t.Fatalf("expected lesson id from quiz id, got %s", list[0].LessonID)
	}
	if list[0].QuizScore == nil || *list[0].QuizScore != 92 {
		t.Fatalf("expected rounded score 92, got %+v", list[0].QuizScore)
	}
}

func TestAnalyticsEventWithoutPayloadDropped(t *testing.T) {
	api, repo := newAnalyticsAPI()

	rec := doRequest(t, api.Router(), http.MethodPost, "/api/analytics/events/lesson-completed", `{"id":"ev-1","topic":"lesson_completed"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"DROP"`) {
		t.Fatalf("expected DROP ack, got %s", rec.Body.String())
	}
	if len(repo.records) != 0 {
		t.Fatalf("expected no records, got %d", len(repo.records))
	}
}

func TestAnalyticsSubscriptions(t *testing.T) {
	api, _ := newAnalyticsAPI()

	rec := doRequest(t, api.Router(), http.MethodGet, "/dapr/subscribe", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var subs []domain.Subscription
	decodeBody(t, rec, &subs)
	if len(subs) != 2 {
		t.Fatalf("expected 2 subscriptions, got %d", len(subs))
	}
	if subs[0].Topic != domain.TopicLessonCompleted || subs[0].Route != "/api/analytics/events/lesson-completed" {
		t.Fatalf("unexpected first subscription: %+v", subs[0])
	}
	if subs[1].Topic != domain.TopicQuizCompleted || subs[1].Route != "/api/analytics/events/quiz-completed" {
		t.Fatalf("unexpected second subscription: %+v", subs[1])
	}
}

func TestRecordProgressUpsertsByNaturalKey(t *testing.T) {
	api, repo := newAnalyticsAPI()
	router := api.Router()

	rec := doRequest(t, router, http.MethodPost, "/api/analytics/progress", `{"user_id":"u-1","lesson_id":"l-1","lesson_title":"Intro"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var first domain.ProgressRecord
	decodeBody(t, rec, &first)

	rec = doRequest(t, router, http.MethodPost, "/api/analytics/progress", `{"user_id":"u-1","lesson_id":"l-1","lesson_title":"Intro","completed":true,"quiz_score":85}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var second domain.ProgressRecord
	decodeBody(t, rec, &second)

	if second.ID != first.ID {
		t.Fatalf("expected same record id, got %d and %d", first.ID, second.ID)
	}
	if len(repo.records) != 1 {
		t.Fatalf("expected single record, got %d", len(repo.records))
	}
	if !second.Completed || second.QuizScore == nil || *second.QuizScore != 85 {
		t.Fatalf("unexpected record after update: %+v", second)
	}
}

func TestRecordProgressValidation(t *testing.T) {
	api, _ := newAnalyticsAPI()
	router := api.Router()

	rec := doRequest(t, router, http.MethodPost, "/api/analytics/progress", `{"user_id":"u-1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without lesson_id, got %d", rec.Code)
	}
	var errResp errorResponse
	decodeBody(t, rec, &errResp)
	if errResp.Code != "invalid_request" {
		t.Fatalf("expected invalid_request code, got %s", errResp.Code)
	}

	rec = doRequest(t, router, http.MethodPost, "/api/analytics/progress", "{не json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad json, got %d", rec.Code)
	}
}

func TestRecordFromQueryParams(t *testing.T) {
	api, _ := newAnalyticsAPI()
	router := api.Router()

	rec := doRequest(t, router, http.MethodPost, "/api/analytics/record?user_id=u-1&lesson_id=l-1&lesson_title=Intro&completed=true&quiz_score=88", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var created domain.ProgressRecord
	decodeBody(t, rec, &created)
	if !created.Completed || created.QuizScore == nil || *created.QuizScore != 88 {
		t.Fatalf("unexpected record: %+v", created)
	}

	rec = doRequest(t, router, http.MethodPost, "/api/analytics/record?user_id=u-1&lesson_id=l-2&completed=banana", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad completed value, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPost, "/api/analytics/record?user_id=u-1&lesson_id=l-2&quiz_score=abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad quiz_score value, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPost, "/api/analytics/record?user_id=u-1", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without lesson_id, got %d", rec.Code)
	}
}

func TestProgressLifecycle(t *testing.T) {
	api, _ := newAnalyticsAPI()
	router := api.Router()

	rec := doRequest(t, router, http.MethodPost, "/api/analytics/progress", `{"user_id":"u-1","lesson_id":"l-1","lesson_title":"Intro"}`)
	var created domain.ProgressRecord
	decodeBody(t, rec, &created)

	rec = doRequest(t, router, http.MethodGet, fmt.Sprintf("/api/analytics/progress/%d", created.ID), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPut, fmt.Sprintf("/api/analytics/progress/%d/score?score=95", created.ID), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var updated domain.ProgressRecord
	decodeBody(t, rec, &updated)
	if updated.QuizScore == nil || *updated.QuizScore != 95 {
		t.Fatalf("expected score 95, got %+v", updated.QuizScore)
	}

	rec = doRequest(t, router, http.MethodDelete, fmt.Sprintf("/api/analytics/progress/%d", created.ID), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"deleted"`) {
		t.Fatalf("expected deleted status, got %s", rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodDelete, fmt.Sprintf("/api/analytics/progress/%d", created.ID), "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for repeated delete, got %d", rec.Code)
	}
}

func TestUpdateScoreValidation(t *testing.T) {
	api, _ := newAnalyticsAPI()
	router := api.Router()

	rec := doRequest(t, router, http.MethodPut, "/api/analytics/progress/1/score", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without score, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPut, "/api/analytics/progress/404/score?score=50", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown record, got %d", rec.Code)
	}
}

func TestAnalyticsStatsEndpoint(t *testing.T) {
	api, _ := newAnalyticsAPI()
	router := api.Router()

	seed := []string{
		`{"user_id":"u-1","lesson_id":"l-1","lesson_title":"Intro","completed":true,"quiz_score":80}`,
		`{"user_id":"u-1","lesson_id":"l-2","lesson_title":"Suite","completed":true,"quiz_score":90}`,
		`{"user_id":"u-1","lesson_id":"l-3","lesson_title":"Brouillon"}`,
	}
	for _, body := range seed {
		rec := doRequest(t, router, http.MethodPost, "/api/analytics/progress", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	}

	rec := doRequest(t, router, http.MethodGet, "/api/analytics/stats/u-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var stats domain.UserStats
	decodeBody(t, rec, &stats)
	if stats.TotalLessonsCompleted != 2 || stats.TotalQuizzesTaken != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.AverageQuizScore != 85 {
		t.Fatalf("expected average 85, got %v", stats.AverageQuizScore)
	}
	if stats.LastLessonCompleted != "Suite" {
		t.Fatalf("expected last lesson Suite, got %q", stats.LastLessonCompleted)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/analytics/stats/nobody", "")
	var empty domain.UserStats
	decodeBody(t, rec, &empty)
	if empty.LastLessonCompleted != "Aucune leçon complétée" {
		t.Fatalf("expected empty stats placeholder, got %q", empty.LastLessonCompleted)
	}
}

func TestAnalyticsHealth(t *testing.T) {
	api, _ := newAnalyticsAPI()

	rec := doRequest(t, api.Router(), http.MethodGet, "/api/analytics/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var health map[string]string
	decodeBody(t, rec, &health)
	if health["status"] != "UP" || health["service"] != "analytics-service" {
		t.Fatalf("unexpected health payload: %+v", health)
	}
}
