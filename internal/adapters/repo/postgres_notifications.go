package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"microlearning-services/internal/domain"
	"microlearning-services/internal/infra/metrics"
)

// CreateNotification сохраняет новое уведомление. Каждая вставка создаёт
// отдельную строку: повторная доставка события подавляется выше, на уровне роутера.
func (p *Postgres) CreateNotification(ctx context.Context, n domain.Notification) (domain.Notification, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO notifications (user_id, category, title, message)
VALUES ($1, $2, $3, $4)
RETURNING id, user_id, category, title, message, read, created_at
`, n.UserID, n.Category, n.Title, n.Message).Scan(&n.ID, &n.UserID, &n.Category, &n.Title, &n.Message, &n.Read, &n.CreatedAt)
	metrics.ObserveStoreRequest("notifications_insert", "notifications", start, err)
	if err != nil {
		return domain.Notification{}, err
	}
	return n, nil
}

// GetNotification возвращает уведомление по идентификатору.
func (p *Postgres) GetNotification(ctx context.Context, id int64) (domain.Notification, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var n domain.Notification
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, user_id, category, title, message, read, created_at
FROM notifications WHERE id=$1
`, id).Scan(&n.ID, &n.UserID, &n.Category, &n.Title, &n.Message, &n.Read, &n.CreatedAt)
	metrics.ObserveStoreRequest("notifications_get", "notifications", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Notification{}, domain.ErrNotificationNotFound
	}
	if err != nil {
		return domain.Notification{}, err
	}
	return n, nil
}

// ListUserNotifications возвращает все уведомления пользователя, новые первыми.
func (p *Postgres) ListUserNotifications(ctx context.Context, userID string) ([]domain.Notification, error) {
	return p.listNotifications(ctx, userID, false)
}

// ListUnreadNotifications возвращает непрочитанные уведомления пользователя, новые первыми.
func (p *Postgres) ListUnreadNotifications(ctx context.Context, userID string) ([]domain.Notification, error) {
	return p.listNotifications(ctx, userID, true)
}

func (p *Postgres) listNotifications(ctx context.Context, userID string, unreadOnly bool) ([]domain.Notification, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	query := `
SELECT id, user_id, category, title, message, read, created_at
FROM notifications WHERE user_id=$1
ORDER BY created_at DESC
`
	operation := "notifications_list"
	if unreadOnly {
		query = `
SELECT id, user_id, category, title, message, read, created_at
FROM notifications WHERE user_id=$1 AND read=false
ORDER BY created_at DESC
`
		operation = "notifications_list_unread"
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, query, userID)
	metrics.ObserveStoreRequest(operation, "notifications", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var notifications []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Category, &n.Title, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// MarkNotificationRead помечает уведомление прочитанным.
func (p *Postgres) MarkNotificationRead(ctx context.Context, id int64) (domain.Notification, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var n domain.Notification
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
UPDATE notifications SET read=true WHERE id=$1
RETURNING id, user_id, category, title, message, read, created_at
`, id).Scan(&n.ID, &n.UserID, &n.Category, &n.Title, &n.Message, &n.Read, &n.CreatedAt)
	metrics.ObserveStoreRequest("notifications_mark_read", "notifications", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Notification{}, domain.ErrNotificationNotFound
	}
	if err != nil {
		return domain.Notification{}, err
	}
	return n, nil
}

// DeleteNotification удаляет уведомление и сообщает, была ли строка.
func (p *Postgres) DeleteNotification(ctx context.Context, id int64) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `DELETE FROM notifications WHERE id=$1`, id)
	metrics.ObserveStoreRequest("notifications_delete", "notifications", start, err)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CountUnreadNotifications считает непрочитанные уведомления пользователя.
func (p *Postgres) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var count int
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id=$1 AND read=false`, userID).Scan(&count)
	metrics.ObserveStoreRequest("notifications_count_unread", "notifications", start, err)
	return count, err
}
