package domain

import (
	"context"
	"time"
)

// Topic — имя темы брокера.
type Topic string

// Темы, которые понимает платформа. Конверт с другой темой
// считается недекодируемым.
const (
	TopicQuizCompleted   Topic = "quiz_completed"
	TopicLessonCompleted Topic = "lesson_completed"
	TopicCourseCreated   Topic = "course_created"
)

// QuizCompletedEvent публикуется после прохождения квиза.
type QuizCompletedEvent struct {
	QuizID      string  `json:"quiz_id"`
	UserID      string  `json:"user_id"`
	LessonID    string  `json:"lesson_id,omitempty"`
	LessonTitle string  `json:"lesson_title,omitempty"`
	Score       float64 `json:"score"`
	Passed      bool    `json:"passed"`
}

// LessonCompletedEvent публикуется после завершения урока.
type LessonCompletedEvent struct {
	UserID      string `json:"user_id"`
	LessonID    string `json:"lesson_id"`
	LessonTitle string `json:"lesson_title"`
	Completed   bool   `json:"completed"`
	QuizScore   *int   `json:"quiz_score,omitempty"`
}

// CourseCreatedEvent публикуется после преобразования курса в микро-уроки.
type CourseCreatedEvent struct {
	CourseID          string `json:"course_id"`
	TeacherID         string `json:"teacher_id"`
	Title             string `json:"title"`
	MicroLessonsCount int    `json:"micro_lessons_count"`
}

// Event — декодированное событие: тема плюс ровно один ненулевой payload,
// соответствующий теме.
type Event struct {
	Topic           Topic
	QuizCompleted   *QuizCompletedEvent
	LessonCompleted *LessonCompletedEvent
	CourseCreated   *CourseCreatedEvent
}

// Subscription описывает одну подписку сервиса на тему брокера.
type Subscription struct {
	PubsubName string `json:"pubsubname"`
	Topic      Topic  `json:"topic"`
	Route      string `json:"route"`
}

// EventPublisher публикует данные события в тему брокера.
type EventPublisher interface {
	Publish(ctx context.Context, topic Topic, data any) error
}

// Deduper подавляет повторные доставки по ключу.
type Deduper interface {
	// Once выполняет fn, если ключ ещё не встречался, и возвращает признак
	// выполнения. При ошибке fn ключ снимается, чтобы повторная доставка
	// могла обработаться заново.
	Once(key string, ttl time.Duration, fn func() error) (bool, error)
}
