package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/coursemart/internal/apperr"
	"github.com/mmeshcher/coursemart/internal/model"
)

// CreateUser создаёт нового пользователя и возвращает его идентификатор.
func (r *PostgresRepository) CreateUser(ctx context.Context, u *model.User) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (first_name, last_name, email, password_hash, phone, role, newsletter)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		u.FirstName, u.LastName, u.Email, u.PasswordHash, u.Phone, string(u.Role), u.Newsletter,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err, "users_email_key") {
			return 0, fmt.Errorf("%w: email %s is already registered", apperr.ErrConflict, u.Email)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

const userColumns = `id, first_name, last_name, email, password_hash, phone, role, newsletter, is_active, last_login, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u    model.User
		role string
	)
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &u.Phone,
		&role, &u.Newsletter, &u.IsActive, &u.LastLogin, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	return &u, nil
}

// GetUserByEmail возвращает пользователя по email без списка зачислений.
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		email,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %s", apperr.ErrNotFound, email)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetUserByID возвращает пользователя вместе со списком зачислений.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %d", apperr.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT course_id, enrolled_at, progress, completed
		 FROM enrollments
		 WHERE user_id = $1
		 ORDER BY enrolled_at`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("select enrollments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e model.Enrollment
		if err := rows.Scan(&e.CourseID, &e.EnrolledAt, &e.Progress, &e.Completed); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		u.EnrolledCourses = append(u.EnrolledCourses, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return u, nil
}

// UpdateUserProfile перезаписывает имя, телефон и подписку пользователя.
func (r *PostgresRepository) UpdateUserProfile(ctx context.Context, u *model.User) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users
		 SET first_name = $2, last_name = $3, phone = $4, newsletter = $5, updated_at = NOW()
		 WHERE id = $1`,
		u.ID, u.FirstName, u.LastName, u.Phone, u.Newsletter,
	)
	if err != nil {
		return fmt.Errorf("update user profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: user %d", apperr.ErrNotFound, u.ID)
	}
	return nil
}

// TouchLastLogin фиксирует время последнего входа пользователя.
func (r *PostgresRepository) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET last_login = $2, updated_at = NOW() WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// GetEnrolledCourses возвращает зачисления пользователя с данными курсов.
func (r *PostgresRepository) GetEnrolledCourses(ctx context.Context, userID int64) ([]model.EnrolledCourse, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT e.course_id, e.enrolled_at, e.progress, e.completed, c.title, c.thumbnail, c.category
		 FROM enrollments e
		 JOIN courses c ON c.id = e.course_id
		 WHERE e.user_id = $1
		 ORDER BY e.enrolled_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select enrolled courses: %w", err)
	}
	defer rows.Close()

	var res []model.EnrolledCourse
	for rows.Next() {
		var (
			ec       model.EnrolledCourse
			category string
		)
		if err := rows.Scan(&ec.CourseID, &ec.EnrolledAt, &ec.Progress, &ec.Completed,
			&ec.Title, &ec.Thumbnail, &category); err != nil {
			return nil, fmt.Errorf("scan enrolled course: %w", err)
		}
		ec.Category = model.CourseCategory(category)
		res = append(res, ec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// enroll добавляет зачисление, если его ещё нет, и сообщает, была ли вставлена строка.
func enroll(ctx context.Context, tx pgx.Tx, userID, courseID int64, at time.Time) (bool, error) {
	tag, err := tx.Exec(ctx,
		`INSERT INTO enrollments (user_id, course_id, enrolled_at, progress, completed)
		 VALUES ($1, $2, $3, 0, FALSE)
		 ON CONFLICT (user_id, course_id) DO NOTHING`,
		userID, courseID, at,
	)
	if err != nil {
		return false, fmt.Errorf("insert enrollment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// unenroll удаляет зачисление и сообщает, была ли удалена строка.
func unenroll(ctx context.Context, tx pgx.Tx, userID, courseID int64) (bool, error) {
	tag, err := tx.Exec(ctx,
		`DELETE FROM enrollments WHERE user_id = $1 AND course_id = $2`,
		userID, courseID,
	)
	if err != nil {
		return false, fmt.Errorf("delete enrollment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
