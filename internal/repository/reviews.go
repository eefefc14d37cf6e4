package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/coursemart/internal/apperr"
	"github.com/mmeshcher/coursemart/internal/model"
)

const reviewColumns = `r.id, r.course_id, r.user_id, r.rating, r.comment, r.is_approved, r.helpful_count,
	r.created_at, r.updated_at`

func scanReview(row pgx.Row, extra ...any) (*model.Review, error) {
	var rv model.Review
	dst := append([]any{&rv.ID, &rv.CourseID, &rv.UserID, &rv.Rating, &rv.Comment, &rv.IsApproved,
		&rv.HelpfulCount, &rv.CreatedAt, &rv.UpdatedAt}, extra...)
	if err := row.Scan(dst...); err != nil {
		return nil, err
	}
	return &rv, nil
}

// recomputeRating пересчитывает среднюю оценку и число одобренных отзывов курса.
func recomputeRating(ctx context.Context, tx pgx.Tx, courseID int64) error {
	_, err := tx.Exec(ctx,
		`UPDATE courses c
		 SET rating_average = s.average, rating_count = s.count, updated_at = NOW()
		 FROM (
		     SELECT COALESCE(ROUND(AVG(rating)::numeric, 1), 0)::float8 AS average, COUNT(*) AS count
		     FROM reviews
		     WHERE course_id = $1 AND is_approved
		 ) s
		 WHERE c.id = $1`,
		courseID,
	)
	if err != nil {
		return fmt.Errorf("recompute rating: %w", err)
	}
	return nil
}

// CreateReview сохраняет отзыв и пересчитывает рейтинг курса в одной транзакции.
func (r *PostgresRepository) CreateReview(ctx context.Context, rv *model.Review) (*model.Review, error) {
	var created *model.Review

	err := r.inTx(ctx, "create review",
		step{"insert review", func(ctx context.Context, tx pgx.Tx) error {
			var err error
			created, err = scanReview(tx.QueryRow(ctx,
				`INSERT INTO reviews AS r (course_id, user_id, rating, comment, is_approved)
				 VALUES ($1, $2, $3, $4, $5)
				 RETURNING `+reviewColumns,
				rv.CourseID, rv.UserID, rv.Rating, rv.Comment, rv.IsApproved,
			))
			if err != nil {
				if isUniqueViolation(err, "reviews_course_user_key") {
					return fmt.Errorf("%w: course already reviewed", apperr.ErrConflict)
				}
				if isForeignKeyViolation(err) {
					return fmt.Errorf("%w: course %d", apperr.ErrNotFound, rv.CourseID)
				}
				return fmt.Errorf("insert review: %w", err)
			}
			return nil
		}},
		step{"recompute rating", func(ctx context.Context, tx pgx.Tx) error {
			return recomputeRating(ctx, tx, rv.CourseID)
		}},
	)
	if err != nil {
		return nil, err
	}

	return created, nil
}

// UpdateReview меняет оценку и комментарий отзыва и пересчитывает рейтинг курса.
func (r *PostgresRepository) UpdateReview(ctx context.Context, rv *model.Review) (*model.Review, error) {
	var updated *model.Review

	err := r.inTx(ctx, "update review",
		step{"update review", func(ctx context.Context, tx pgx.Tx) error {
			var err error
			updated, err = scanReview(tx.QueryRow(ctx,
				`UPDATE reviews AS r
				 SET rating = $2, comment = $3, updated_at = NOW()
				 WHERE r.id = $1
				 RETURNING `+reviewColumns,
				rv.ID, rv.Rating, rv.Comment,
			))
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: review %d", apperr.ErrNotFound, rv.ID)
			}
			if err != nil {
				return fmt.Errorf("update review: %w", err)
			}
			return nil
		}},
		step{"recompute rating", func(ctx context.Context, tx pgx.Tx) error {
			return recomputeRating(ctx, tx, updated.CourseID)
		}},
	)
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// DeleteReview удаляет отзыв и пересчитывает рейтинг курса. Возвращает удалённый отзыв.
func (r *PostgresRepository) DeleteReview(ctx context.Context, id int64) (*model.Review, error) {
	var deleted *model.Review

	err := r.inTx(ctx, "delete review",
		step{"delete review", func(ctx context.Context, tx pgx.Tx) error {
			var err error
			deleted, err = scanReview(tx.QueryRow(ctx,
				`DELETE FROM reviews AS r WHERE r.id = $1 RETURNING `+reviewColumns,
				id,
			))
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: review %d", apperr.ErrNotFound, id)
			}
			if err != nil {
				return fmt.Errorf("delete review: %w", err)
			}
			return nil
		}},
		step{"recompute rating", func(ctx context.Context, tx pgx.Tx) error {
			return recomputeRating(ctx, tx, deleted.CourseID)
		}},
	)
	if err != nil {
		return nil, err
	}

	return deleted, nil
}

// GetReview возвращает отзыв по идентификатору.
func (r *PostgresRepository) GetReview(ctx context.Context, id int64) (*model.Review, error) {
	rv, err := scanReview(r.pool.QueryRow(ctx,
		`SELECT `+reviewColumns+` FROM reviews r WHERE r.id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: review %d", apperr.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get review: %w", err)
	}
	return rv, nil
}

// ListReviewsByCourse возвращает страницу одобренных отзывов курса, сначала самые полезные.
func (r *PostgresRepository) ListReviewsByCourse(ctx context.Context, courseID int64, f model.ReviewFilter) (*model.ReviewPage, error) {
	cond := `r.course_id = $1 AND r.is_approved AND ($2 = 0 OR r.rating = $2)`

	page := &model.ReviewPage{Page: f.Page, Limit: f.Limit}
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM reviews r WHERE `+cond,
		courseID, f.Rating,
	).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("count reviews: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+reviewColumns+`, u.first_name, u.last_name
		 FROM reviews r
		 JOIN users u ON u.id = r.user_id
		 WHERE `+cond+`
		 ORDER BY r.helpful_count DESC, r.created_at DESC
		 LIMIT $3 OFFSET $4`,
		courseID, f.Rating, f.Limit, f.Offset(),
	)
	if err != nil {
		return nil, fmt.Errorf("select reviews: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var first, last string
		rv, err := scanReview(rows, &first, &last)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		rv.AuthorFirstName, rv.AuthorLastName = first, last
		page.Reviews = append(page.Reviews, *rv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return page, nil
}

// ListReviewsByUser возвращает отзывы пользователя вместе с названиями курсов.
func (r *PostgresRepository) ListReviewsByUser(ctx context.Context, userID int64) ([]model.Review, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+reviewColumns+`, c.title, c.thumbnail
		 FROM reviews r
		 JOIN courses c ON c.id = r.course_id
		 WHERE r.user_id = $1
		 ORDER BY r.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select reviews: %w", err)
	}
	defer rows.Close()

	var res []model.Review
	for rows.Next() {
		var title, thumbnail string
		rv, err := scanReview(rows, &title, &thumbnail)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		rv.CourseTitle, rv.CourseThumbnail = title, thumbnail
		res = append(res, *rv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ToggleReviewHelpful ставит или снимает отметку «полезно» от пользователя
// и обновляет счётчик отзыва.
func (r *PostgresRepository) ToggleReviewHelpful(ctx context.Context, reviewID, userID int64) (*model.HelpfulVote, error) {
	vote := &model.HelpfulVote{}

	err := r.inTx(ctx, "toggle review helpful",
		step{"toggle vote", func(ctx context.Context, tx pgx.Tx) error {
			vote.IsHelpful = false
			tag, err := tx.Exec(ctx,
				`DELETE FROM review_helpful WHERE review_id = $1 AND user_id = $2`,
				reviewID, userID,
			)
			if err != nil {
				return fmt.Errorf("delete vote: %w", err)
			}
			if tag.RowsAffected() == 1 {
				return nil
			}

			if _, err := tx.Exec(ctx,
				`INSERT INTO review_helpful (review_id, user_id) VALUES ($1, $2)`,
				reviewID, userID,
			); err != nil {
				if isForeignKeyViolation(err) {
					return fmt.Errorf("%w: review %d", apperr.ErrNotFound, reviewID)
				}
				return fmt.Errorf("insert vote: %w", err)
			}
			vote.IsHelpful = true
			return nil
		}},
		step{"count votes", func(ctx context.Context, tx pgx.Tx) error {
			err := tx.QueryRow(ctx,
				`UPDATE reviews
				 SET helpful_count = (SELECT COUNT(*) FROM review_helpful WHERE review_id = $1)
				 WHERE id = $1
				 RETURNING helpful_count`,
				reviewID,
			).Scan(&vote.HelpfulCount)
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: review %d", apperr.ErrNotFound, reviewID)
			}
			if err != nil {
				return fmt.Errorf("count votes: %w", err)
			}
			return nil
		}},
	)
	if err != nil {
		return nil, err
	}

	return vote, nil
}
