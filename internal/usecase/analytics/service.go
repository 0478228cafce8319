package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"microlearning-services/internal/domain"
	"microlearning-services/internal/infra/metrics"
)

// Service агрегирует прогресс пользователей по урокам.
type Service struct {
	repo domain.ProgressRepo
	log  zerolog.Logger
}

// NewService создаёт сервис аналитики.
func NewService(repo domain.ProgressRepo, logger zerolog.Logger) *Service {
	return &Service{repo: repo, log: logger}
}

// RecordParams описывает одну запись прогресса.
type RecordParams struct {
	UserID      string `json:"user_id"`
	LessonID    string `json:"lesson_id"`
	LessonTitle string `json:"lesson_title"`
	Completed   bool   `json:"completed"`
	QuizScore   *int   `json:"quiz_score"`
}

// RecordProgress создаёт или обновляет запись прогресса по паре (user, lesson).
// Повторная запись того же урока перезаписывает поля, а не плодит дубликаты.
func (s *Service) RecordProgress(ctx context.Context, params RecordParams) (domain.ProgressRecord, error) {
	rec, inserted, err := s.repo.UpsertProgress(ctx, domain.ProgressRecord{
		UserID:      params.UserID,
		LessonID:    params.LessonID,
		LessonTitle: params.LessonTitle,
		Completed:   params.Completed,
		QuizScore:   params.QuizScore,
	})
	if err != nil {
		return domain.ProgressRecord{}, fmt.Errorf("сохранение прогресса: %w", err)
	}
	metrics.IncProgressUpsert(inserted)
	s.log.Info().
		Str("user", rec.UserID).
		Str("lesson", rec.LessonID).
		Bool("inserted", inserted).
		Bool("completed", rec.Completed).
		Msg("прогресс записан")
	return rec, nil
}

// RecordLessonCompletion записывает прогресс из события завершения урока.
func (s *Service) RecordLessonCompletion(ctx context.Context, ev domain.LessonCompletedEvent) (domain.ProgressRecord, error) {
	return s.RecordProgress(ctx, RecordParams{
		UserID:      ev.UserID,
		LessonID:    ev.LessonID,
		LessonTitle: ev.LessonTitle,
		Completed:   ev.Completed,
		QuizScore:   ev.QuizScore,
	})
}

// RecordQuizCompletion записывает прогресс из события прохождения квиза.
// Когда событие не несёт идентификатора урока, им становится идентификатор
// квиза; сдача квиза означает завершение урока.
func (s *Service) RecordQuizCompletion(ctx context.Context, ev domain.QuizCompletedEvent) (domain.ProgressRecord, error) {
	lessonID := ev.LessonID
	if lessonID == "" {
		lessonID = ev.QuizID
	}
	score := int(math.Round(ev.Score))
	return s.RecordProgress(ctx, RecordParams{
		UserID:      ev.UserID,
		LessonID:    lessonID,
		LessonTitle: ev.LessonTitle,
		Completed:   ev.Passed,
		QuizScore:   &score,
	})
}

// Progress возвращает запись прогресса по идентификатору.
func (s *Service) Progress(ctx context.Context, id int64) (domain.ProgressRecord, error) {
	return s.repo.GetProgress(ctx, id)
}

// UserProgress возвращает записи прогресса пользователя.
func (s *Service) UserProgress(ctx context.Context, userID string) ([]domain.ProgressRecord, error) {
	return s.repo.ListUserProgress(ctx, userID)
}

// UpdateQuizScore обновляет балл квиза существующей записи.
func (s *Service) UpdateQuizScore(ctx context.Context, id int64, score int) (domain.ProgressRecord, error) {
	return s.repo.UpdateQuizScore(ctx, id, score)
}

// Delete удаляет запись прогресса и сообщает, была ли она.
func (s *Service) Delete(ctx context.Context, id int64) (bool, error) {
	return s.repo.DeleteProgress(ctx, id)
}

// UserStats пересчитывает статистику пользователя по его записям.
// Ничего не кэшируется: каждая выдача отражает текущее содержимое хранилища.
func (s *Service) UserStats(ctx context.Context, userID string) (domain.UserStats, error) {
	records, err := s.repo.ListUserProgress(ctx, userID)
	if err != nil {
		return domain.UserStats{}, fmt.Errorf("получение прогресса: %w", err)
	}
	completed, err := s.repo.CountCompletedLessons(ctx, userID)
	if err != nil {
		return domain.UserStats{}, fmt.Errorf("подсчёт завершённых уроков: %w", err)
	}

	stats := domain.UserStats{
		UserID:                userID,
		TotalLessonsCompleted: completed,
		LastLessonCompleted:   domain.NoLessonCompleted,
	}

	var sum float64
	for _, rec := range records {
		if rec.QuizScore != nil {
			stats.TotalQuizzesTaken++
			sum += float64(*rec.QuizScore)
		}
	}
	if stats.TotalQuizzesTaken > 0 {
		stats.AverageQuizScore = sum / float64(stats.TotalQuizzesTaken)
	}

	var (
		lastAt time.Time
		found  bool
	)
	for _, rec := range records {
		if !rec.Completed {
			continue
		}
		if !found || rec.CompletedAt.After(lastAt) {
			lastAt = rec.CompletedAt
			stats.LastLessonCompleted = rec.LessonTitle
			found = true
		}
	}
	return stats, nil
}
