package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/coursemart/internal/apperr"
	"github.com/mmeshcher/coursemart/internal/model"
)

const courseColumns = `id, title, description, thumbnail, category, level, price, instructor, duration,
	total_minutes, featured, is_active, students_count, students_active, rating_average, rating_count,
	created_at, updated_at`

func scanCourse(row pgx.Row) (*model.Course, error) {
	var (
		c               model.Course
		category, level string
	)
	err := row.Scan(&c.ID, &c.Title, &c.Description, &c.Thumbnail, &category, &level, &c.PriceCents,
		&c.Instructor, &c.Duration, &c.TotalMinutes, &c.Featured, &c.IsActive,
		&c.StudentsCount, &c.StudentsActive, &c.RatingAverage, &c.RatingCount, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Category = model.CourseCategory(category)
	c.Level = model.CourseLevel(level)
	return &c, nil
}

// CreateCourse сохраняет новый курс.
func (r *PostgresRepository) CreateCourse(ctx context.Context, c *model.Course) (*model.Course, error) {
	created, err := scanCourse(r.pool.QueryRow(ctx,
		`INSERT INTO courses (title, description, thumbnail, category, level, price, instructor,
		                      duration, total_minutes, featured, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING `+courseColumns,
		c.Title, c.Description, c.Thumbnail, string(c.Category), string(c.Level), c.PriceCents,
		c.Instructor, c.Duration, c.TotalMinutes, c.Featured, c.IsActive,
	))
	if err != nil {
		return nil, fmt.Errorf("create course: %w", err)
	}
	return created, nil
}

// UpdateCourse перезаписывает редактируемые поля курса. Счётчики студентов не меняются.
func (r *PostgresRepository) UpdateCourse(ctx context.Context, c *model.Course) (*model.Course, error) {
	updated, err := scanCourse(r.pool.QueryRow(ctx,
		`UPDATE courses
		 SET title = $2, description = $3, thumbnail = $4, category = $5, level = $6, price = $7,
		     instructor = $8, duration = $9, total_minutes = $10, featured = $11, is_active = $12,
		     updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+courseColumns,
		c.ID, c.Title, c.Description, c.Thumbnail, string(c.Category), string(c.Level), c.PriceCents,
		c.Instructor, c.Duration, c.TotalMinutes, c.Featured, c.IsActive,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: course %d", apperr.ErrNotFound, c.ID)
		}
		return nil, fmt.Errorf("update course: %w", err)
	}
	return updated, nil
}

// DeactivateCourse скрывает курс из каталога.
func (r *PostgresRepository) DeactivateCourse(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE courses SET is_active = FALSE, updated_at = NOW() WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deactivate course: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: course %d", apperr.ErrNotFound, id)
	}
	return nil
}

// GetCourse возвращает курс по идентификатору, включая неактивные.
func (r *PostgresRepository) GetCourse(ctx context.Context, id int64) (*model.Course, error) {
	c, err := scanCourse(r.pool.QueryRow(ctx,
		`SELECT `+courseColumns+` FROM courses WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: course %d", apperr.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get course: %w", err)
	}
	return c, nil
}

// ListCourses возвращает активные курсы по фильтру, новые первыми.
func (r *PostgresRepository) ListCourses(ctx context.Context, f model.CourseFilter) ([]model.Course, error) {
	var (
		where = []string{"is_active"}
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.Category != "" {
		add("category = $%d", string(f.Category))
	}
	if f.Level != "" {
		add("level = $%d", string(f.Level))
	}
	if f.Featured != nil {
		add("featured = $%d", *f.Featured)
	}
	if f.MinPriceCents != nil {
		add("price >= $%d", *f.MinPriceCents)
	}
	if f.MaxPriceCents != nil {
		add("price <= $%d", *f.MaxPriceCents)
	}
	if f.Search != "" {
		add("to_tsvector('simple', title || ' ' || description) @@ plainto_tsquery('simple', $%d)", f.Search)
	}

	query := `SELECT ` + courseColumns + ` FROM courses WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select courses: %w", err)
	}
	defer rows.Close()

	var res []model.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan course: %w", err)
		}
		res = append(res, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// countStudent увеличивает оба счётчика студентов курса.
func countStudent(ctx context.Context, tx pgx.Tx, courseID int64) error {
	_, err := tx.Exec(ctx,
		`UPDATE courses
		 SET students_count = students_count + 1, students_active = students_active + 1
		 WHERE id = $1`,
		courseID,
	)
	if err != nil {
		return fmt.Errorf("increment students: %w", err)
	}
	return nil
}

// releaseStudent уменьшает число активных студентов. students_count не уменьшается.
func releaseStudent(ctx context.Context, tx pgx.Tx, courseID int64) error {
	_, err := tx.Exec(ctx,
		`UPDATE courses SET students_active = GREATEST(students_active - 1, 0) WHERE id = $1`,
		courseID,
	)
	if err != nil {
		return fmt.Errorf("decrement active students: %w", err)
	}
	return nil
}
