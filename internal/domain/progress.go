package domain

import (
	"context"
	"errors"
	"time"
)

// ErrProgressNotFound возвращается, когда запись прогресса не найдена.
var ErrProgressNotFound = errors.New("progress record not found")

// NoLessonCompleted — значение последнего урока в статистике,
// когда у пользователя нет ни одного завершённого урока.
const NoLessonCompleted = "Aucune leçon complétée"

// ProgressRecord — прогресс пользователя по одному уроку.
// Пара (UserID, LessonID) уникальна: повторная запись обновляет
// существующую строку, а не создаёт дубликат.
type ProgressRecord struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	LessonID    string    `json:"lesson_id"`
	LessonTitle string    `json:"lesson_title"`
	Completed   bool      `json:"completed"`
	QuizScore   *int      `json:"quiz_score"`
	CompletedAt time.Time `json:"completed_at"`
}

// UserStats — производная статистика пользователя. Не хранится в БД,
// пересчитывается на каждый запрос.
type UserStats struct {
	UserID                string  `json:"user_id"`
	TotalLessonsCompleted int     `json:"total_lessons_completed"`
	TotalQuizzesTaken     int     `json:"total_quizzes_taken"`
	AverageQuizScore      float64 `json:"average_quiz_score"`
	LastLessonCompleted   string  `json:"last_lesson_completed"`
}

// ProgressRepo управляет записями прогресса.
type ProgressRepo interface {
	// UpsertProgress атомарно создаёт или обновляет запись по паре (user, lesson).
	// Возвращает сохранённую запись и признак того, что строка была создана.
	UpsertProgress(ctx context.Context, rec ProgressRecord) (ProgressRecord, bool, error)
	GetProgress(ctx context.Context, id int64) (ProgressRecord, error)
	ListUserProgress(ctx context.Context, userID string) ([]ProgressRecord, error)
	UpdateQuizScore(ctx context.Context, id int64, score int) (ProgressRecord, error)
	// DeleteProgress возвращает false без ошибки, если записи не было.
	DeleteProgress(ctx context.Context, id int64) (bool, error)
	CountCompletedLessons(ctx context.Context, userID string) (int, error)
}
