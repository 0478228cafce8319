package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"microlearning-services/internal/domain"
	"microlearning-services/internal/infra/metrics"
)

// ErrPublisherDisabled возвращается, когда издатель событий не сконфигурирован.
var ErrPublisherDisabled = errors.New("event publisher is not configured")

// Французские тексты уведомлений. Студенты и преподаватели видят их как есть.
const (
	quizTitle       = "Résultat du Quiz"
	quizPassedBody  = "✅ Félicitations! Vous avez réussi le quiz avec un score de %.1f%%"
	quizFailedBody  = "⚠️ Quiz terminé avec un score de %.1f%%. Continuez à réviser!"
	courseTitle     = "Cours Transformé"
	courseReadyBody = "Votre cours '%s' a été transformé en %d micro-leçons. Il est maintenant disponible pour les étudiants."
)

// Service создаёт и обслуживает уведомления пользователей.
type Service struct {
	repo      domain.NotificationRepo
	publisher domain.EventPublisher
	log       zerolog.Logger
}

// Option настраивает сервис.
type Option func(*Service)

// WithPublisher включает диагностическую публикацию событий.
func WithPublisher(pub domain.EventPublisher) Option {
	return func(s *Service) {
		s.publisher = pub
	}
}

// NewService создаёт сервис уведомлений.
func NewService(repo domain.NotificationRepo, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{repo: repo, log: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create сохраняет уведомление с произвольным содержимым. Каждый вызов
// создаёт новую запись, дедупликации на этом уровне нет.
func (s *Service) Create(ctx context.Context, userID, category, title, message string) (domain.Notification, error) {
	n, err := s.repo.CreateNotification(ctx, domain.Notification{
		UserID:   userID,
		Category: category,
		Title:    title,
		Message:  message,
	})
	if err != nil {
		return domain.Notification{}, fmt.Errorf("сохранение уведомления: %w", err)
	}
	metrics.IncNotificationCreated(n.Category)
	s.log.Info().Int64("id", n.ID).Str("user", n.UserID).Str("category", n.Category).Msg("уведомление создано")
	return n, nil
}

// NotifyQuizCompleted создаёт уведомление о результате квиза.
func (s *Service) NotifyQuizCompleted(ctx context.Context, ev domain.QuizCompletedEvent) (domain.Notification, error) {
	message := fmt.Sprintf(quizFailedBody, ev.Score)
	if ev.Passed {
		message = fmt.Sprintf(quizPassedBody, ev.Score)
	}
	return s.Create(ctx, ev.UserID, domain.NotificationCategoryQuizResult, quizTitle, message)
}

// NotifyCourseCreated создаёт уведомление преподавателю о готовности курса.
func (s *Service) NotifyCourseCreated(ctx context.Context, ev domain.CourseCreatedEvent) (domain.Notification, error) {
	message := fmt.Sprintf(courseReadyBody, ev.Title, ev.MicroLessonsCount)
	return s.Create(ctx, ev.TeacherID, domain.NotificationCategoryCourseReady, courseTitle, message)
}

// Notification возвращает уведомление по идентификатору.
func (s *Service) Notification(ctx context.Context, id int64) (domain.Notification, error) {
	return s.repo.GetNotification(ctx, id)
}

// UserNotifications возвращает все уведомления пользователя.
func (s *Service) UserNotifications(ctx context.Context, userID string) ([]domain.Notification, error) {
	return s.repo.ListUserNotifications(ctx, userID)
}

// UnreadNotifications возвращает непрочитанные уведомления пользователя.
func (s *Service) UnreadNotifications(ctx context.Context, userID string) ([]domain.Notification, error) {
	return s.repo.ListUnreadNotifications(ctx, userID)
}

// MarkRead помечает уведомление прочитанным.
func (s *Service) MarkRead(ctx context.Context, id int64) (domain.Notification, error) {
	return s.repo.MarkNotificationRead(ctx, id)
}

// Delete удаляет уведомление и сообщает, было ли оно.
func (s *Service) Delete(ctx context.Context, id int64) (bool, error) {
	return s.repo.DeleteNotification(ctx, id)
}

// CountUnread считает непрочитанные уведомления пользователя.
func (s *Service) CountUnread(ctx context.Context, userID string) (int, error) {
	return s.repo.CountUnreadNotifications(ctx, userID)
}

// UserStats пересчитывает счётчики уведомлений пользователя по запросу.
func (s *Service) UserStats(ctx context.Context, userID string) (domain.NotificationStats, error) {
	all, err := s.repo.ListUserNotifications(ctx, userID)
	if err != nil {
		return domain.NotificationStats{}, fmt.Errorf("получение уведомлений: %w", err)
	}
	unread, err := s.repo.CountUnreadNotifications(ctx, userID)
	if err != nil {
		return domain.NotificationStats{}, fmt.Errorf("подсчёт непрочитанных: %w", err)
	}
	return domain.NotificationStats{
		UserID: userID,
		Total:  len(all),
		Unread: unread,
		Read:   len(all) - unread,
	}, nil
}

// PublishTest публикует тестовое событие квиза в брокер. Диагностический
// путь: позволяет проверить цепочку publish-subscribe без продюсеров.
func (s *Service) PublishTest(ctx context.Context) (domain.QuizCompletedEvent, error) {
	if s.publisher == nil {
		return domain.QuizCompletedEvent{}, ErrPublisherDisabled
	}
	ev := domain.QuizCompletedEvent{
		QuizID: "test-quiz-1",
		UserID: "test-user-1",
		Score:  88.5,
		Passed: true,
	}
	if err := s.publisher.Publish(ctx, domain.TopicQuizCompleted, ev); err != nil {
		return domain.QuizCompletedEvent{}, fmt.Errorf("публикация тестового события: %w", err)
	}
	s.log.Info().Str("quiz", ev.QuizID).Msg("тестовое событие опубликовано")
	return ev, nil
}
