package domain

import (
	"context"
	"errors"
	"time"
)

// ErrNotificationNotFound возвращается, когда уведомление не найдено.
var ErrNotificationNotFound = errors.New("notification not found")

// Категории уведомлений, создаваемых обработчиками событий.
// Прямой API принимает и произвольные категории.
const (
	NotificationCategoryQuizResult  = "QUIZ_RESULT"
	NotificationCategoryCourseReady = "COURSE_READY"
)

// Notification — уведомление пользователя платформы.
type Notification struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Category  string    `json:"category"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// NotificationStats агрегирует счётчики уведомлений пользователя.
// Считается по запросу и нигде не хранится.
type NotificationStats struct {
	UserID string `json:"user_id"`
	Total  int    `json:"total_notifications"`
	Unread int    `json:"unread_count"`
	Read   int    `json:"read_count"`
}

// NotificationRepo управляет уведомлениями.
type NotificationRepo interface {
	CreateNotification(ctx context.Context, n Notification) (Notification, error)
	GetNotification(ctx context.Context, id int64) (Notification, error)
	ListUserNotifications(ctx context.Context, userID string) ([]Notification, error)
	ListUnreadNotifications(ctx context.Context, userID string) ([]Notification, error)
	// MarkNotificationRead помечает уведомление прочитанным. Флаг меняется
	// только в сторону read=true, обратного перехода нет.
	MarkNotificationRead(ctx context.Context, id int64) (Notification, error)
	// DeleteNotification возвращает false без ошибки, если записи не было.
	DeleteNotification(ctx context.Context, id int64) (bool, error)
	CountUnreadNotifications(ctx context.Context, userID string) (int, error)
}
