package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"microlearning-services/internal/domain"
	"microlearning-services/internal/infra/metrics"
)

// UpsertProgress атомарно создаёт или обновляет запись прогресса по паре
// (user_id, lesson_id). Поля всегда перезаписываются значениями из rec;
// completed_at обновляется только при переходе completed из false в true.
func (p *Postgres) UpsertProgress(ctx context.Context, rec domain.ProgressRecord) (domain.ProgressRecord, bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var score sql.NullInt64
	if rec.QuizScore != nil {
		score = sql.NullInt64{Int64: int64(*rec.QuizScore), Valid: true}
	}

	var (
		saved    domain.ProgressRecord
		scoreOut sql.NullInt64
		inserted bool
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO user_progress (user_id, lesson_id, lesson_title, completed, quiz_score, completed_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (user_id, lesson_id) DO UPDATE
    SET lesson_title = EXCLUDED.lesson_title,
        completed = EXCLUDED.completed,
        quiz_score = EXCLUDED.quiz_score,
        completed_at = CASE
            WHEN EXCLUDED.completed AND NOT user_progress.completed THEN now()
            ELSE user_progress.completed_at
        END
RETURNING id, user_id, lesson_id, lesson_title, completed, quiz_score, completed_at, (xmax = 0) AS inserted
`, rec.UserID, rec.LessonID, rec.LessonTitle, rec.Completed, score).Scan(
		&saved.ID, &saved.UserID, &saved.LessonID, &saved.LessonTitle, &saved.Completed, &scoreOut, &saved.CompletedAt, &inserted)
	metrics.ObserveStoreRequest("user_progress_upsert", "user_progress", start, err)
	if err != nil {
		return domain.ProgressRecord{}, false, err
	}
	if scoreOut.Valid {
		v := int(scoreOut.Int64)
		saved.QuizScore = &v
	}
	return saved, inserted, nil
}

// GetProgress возвращает запись прогресса по идентификатору.
func (p *Postgres) GetProgress(ctx context.Context, id int64) (domain.ProgressRecord, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var (
		rec   domain.ProgressRecord
		score sql.NullInt64
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, user_id, lesson_id, lesson_title, completed, quiz_score, completed_at
FROM user_progress WHERE id=$1
`, id).Scan(&rec.ID, &rec.UserID, &rec.LessonID, &rec.LessonTitle, &rec.Completed, &score, &rec.CompletedAt)
	metrics.ObserveStoreRequest("user_progress_get", "user_progress", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ProgressRecord{}, domain.ErrProgressNotFound
	}
	if err != nil {
		return domain.ProgressRecord{}, err
	}
	if score.Valid {
		v := int(score.Int64)
		rec.QuizScore = &v
	}
	return rec, nil
}

// ListUserProgress возвращает записи прогресса пользователя, свежие первыми.
func (p *Postgres) ListUserProgress(ctx context.Context, userID string) ([]domain.ProgressRecord, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, user_id, lesson_id, lesson_title, completed, quiz_score, completed_at
FROM user_progress WHERE user_id=$1
ORDER BY completed_at DESC
`, userID)
	metrics.ObserveStoreRequest("user_progress_list", "user_progress", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []domain.ProgressRecord
	for rows.Next() {
		var (
			rec   domain.ProgressRecord
			score sql.NullInt64
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.LessonID, &rec.LessonTitle, &rec.Completed, &score, &rec.CompletedAt); err != nil {
			return nil, err
		}
		if score.Valid {
			v := int(score.Int64)
			rec.QuizScore = &v
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// UpdateQuizScore обновляет балл квиза существующей записи.
func (p *Postgres) UpdateQuizScore(ctx context.Context, id int64, score int) (domain.ProgressRecord, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var (
		rec      domain.ProgressRecord
		scoreOut sql.NullInt64
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
UPDATE user_progress SET quiz_score=$2 WHERE id=$1
RETURNING id, user_id, lesson_id, lesson_title, completed, quiz_score, completed_at
`, id, score).Scan(&rec.ID, &rec.UserID, &rec.LessonID, &rec.LessonTitle, &rec.Completed, &scoreOut, &rec.CompletedAt)
	metrics.ObserveStoreRequest("user_progress_update_score", "user_progress", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ProgressRecord{}, domain.ErrProgressNotFound
	}
	if err != nil {
		return domain.ProgressRecord{}, err
	}
	if scoreOut.Valid {
		v := int(scoreOut.Int64)
		rec.QuizScore = &v
	}
	return rec, nil
}

// DeleteProgress удаляет запись прогресса и сообщает, была ли строка.
func (p *Postgres) DeleteProgress(ctx context.Context, id int64) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `DELETE FROM user_progress WHERE id=$1`, id)
	metrics.ObserveStoreRequest("user_progress_delete", "user_progress", start, err)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CountCompletedLessons считает завершённые уроки пользователя.
func (p *Postgres) CountCompletedLessons(ctx context.Context, userID string) (int, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var count int
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM user_progress WHERE user_id=$1 AND completed=true`, userID).Scan(&count)
	metrics.ObserveStoreRequest("user_progress_count_completed", "user_progress", start, err)
	return count, err
}
