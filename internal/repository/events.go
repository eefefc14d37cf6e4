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

const eventColumns = `id, title, description, date, speaker, speaker_bio, category, max_capacity,
	registrations, is_free, price, meeting_link, status, is_active, created_at`

func scanEvent(row pgx.Row) (*model.Event, error) {
	var (
		e                model.Event
		category, status string
	)
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Date, &e.Speaker, &e.SpeakerBio, &category,
		&e.MaxCapacity, &e.Registrations, &e.IsFree, &e.PriceCents, &e.MeetingLink, &status,
		&e.IsActive, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.Category = model.EventCategory(category)
	e.Status = model.EventStatus(status)
	return &e, nil
}

// CreateEvent сохраняет новое событие.
func (r *PostgresRepository) CreateEvent(ctx context.Context, e *model.Event) (*model.Event, error) {
	created, err := scanEvent(r.pool.QueryRow(ctx,
		`INSERT INTO events (title, description, date, speaker, speaker_bio, category, max_capacity,
		                     is_free, price, meeting_link, status, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING `+eventColumns,
		e.Title, e.Description, e.Date, e.Speaker, e.SpeakerBio, string(e.Category), e.MaxCapacity,
		e.IsFree, e.PriceCents, e.MeetingLink, string(e.Status), e.IsActive,
	))
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return created, nil
}

// GetEvent возвращает событие по идентификатору.
func (r *PostgresRepository) GetEvent(ctx context.Context, id int64) (*model.Event, error) {
	e, err := scanEvent(r.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: event %d", apperr.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// UpdateEvent перезаписывает редактируемые поля события. Вместимость нельзя опустить
// ниже числа занятых мест.
func (r *PostgresRepository) UpdateEvent(ctx context.Context, e *model.Event) (*model.Event, error) {
	updated, err := scanEvent(r.pool.QueryRow(ctx,
		`UPDATE events
		 SET title = $2, description = $3, date = $4, speaker = $5, speaker_bio = $6, category = $7,
		     max_capacity = $8, is_free = $9, price = $10, meeting_link = $11, status = $12,
		     updated_at = NOW()
		 WHERE id = $1 AND registrations <= $8
		 RETURNING `+eventColumns,
		e.ID, e.Title, e.Description, e.Date, e.Speaker, e.SpeakerBio, string(e.Category), e.MaxCapacity,
		e.IsFree, e.PriceCents, e.MeetingLink, string(e.Status),
	))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update event: %w", err)
	}

	var registrations int
	err = r.pool.QueryRow(ctx, `SELECT registrations FROM events WHERE id = $1`, e.ID).Scan(&registrations)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: event %d", apperr.ErrNotFound, e.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("select event: %w", err)
	}
	return nil, fmt.Errorf("%w: max capacity %d is below %d registrations", apperr.ErrConflict, e.MaxCapacity, registrations)
}

// DeactivateEvent скрывает событие из списков. Регистрации сохраняются.
func (r *PostgresRepository) DeactivateEvent(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE events SET is_active = FALSE, updated_at = NOW() WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deactivate event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: event %d", apperr.ErrNotFound, id)
	}
	return nil
}

// ListEventsByUser возвращает события, на которые пользователь зарегистрирован
// под своей учётной записью или своим email. Отменённые регистрации не учитываются.
func (r *PostgresRepository) ListEventsByUser(ctx context.Context, userID int64) ([]model.Event, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+eventColumns+`
		 FROM events
		 WHERE id IN (
		     SELECT event_id FROM event_registrations
		     WHERE status <> $2
		       AND (user_id = $1 OR email = (SELECT email FROM users WHERE id = $1))
		 )
		 ORDER BY date`,
		userID, string(model.RegistrationStatusCancelled),
	)
	if err != nil {
		return nil, fmt.Errorf("select user events: %w", err)
	}
	defer rows.Close()

	var res []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		res = append(res, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ListEvents возвращает активные события по дате. При upcomingAfter != nil возвращаются только
// предстоящие события после указанного момента.
func (r *PostgresRepository) ListEvents(ctx context.Context, upcomingAfter *time.Time) ([]model.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE is_active`
	var args []any
	if upcomingAfter != nil {
		query += ` AND status = $1 AND date > $2`
		args = append(args, string(model.EventStatusUpcoming), *upcomingAfter)
	}
	query += ` ORDER BY date`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}
	defer rows.Close()

	var res []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		res = append(res, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

const registrationColumns = `id, event_id, first_name, last_name, email, phone, company, role, motivation,
	newsletter, status, attended, user_id, created_at`

func scanRegistration(row pgx.Row) (*model.EventRegistration, error) {
	var (
		reg    model.EventRegistration
		status string
	)
	a := &reg.Attendee
	err := row.Scan(&reg.ID, &reg.EventID, &a.FirstName, &a.LastName, &a.Email, &a.Phone, &a.Company,
		&a.Role, &a.Motivation, &a.Newsletter, &status, &reg.Attended, &a.UserID, &reg.CreatedAt)
	if err != nil {
		return nil, err
	}
	reg.Status = model.RegistrationStatus(status)
	return &reg, nil
}

// RegisterForEvent занимает место на событии и сохраняет регистрацию в одной транзакции.
// Место занимается условным инкрементом, поэтому registrations никогда не превышает max_capacity.
func (r *PostgresRepository) RegisterForEvent(ctx context.Context, eventID int64, a model.Attendee) (*model.EventRegistration, error) {
	var reg *model.EventRegistration

	err := r.inTx(ctx, "register for event",
		step{"reserve seat", func(ctx context.Context, tx pgx.Tx) error {
			tag, err := tx.Exec(ctx,
				`UPDATE events
				 SET registrations = registrations + 1, updated_at = NOW()
				 WHERE id = $1 AND is_active AND registrations < max_capacity`,
				eventID,
			)
			if err != nil {
				return fmt.Errorf("reserve seat: %w", err)
			}
			if tag.RowsAffected() == 1 {
				return nil
			}
			return classifyEventMiss(ctx, tx, eventID)
		}},
		step{"insert registration", func(ctx context.Context, tx pgx.Tx) error {
			var err error
			reg, err = scanRegistration(tx.QueryRow(ctx,
				`INSERT INTO event_registrations (event_id, first_name, last_name, email, phone, company,
				                                  role, motivation, newsletter, user_id)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				 RETURNING `+registrationColumns,
				eventID, a.FirstName, a.LastName, a.Email, a.Phone, a.Company, a.Role, a.Motivation,
				a.Newsletter, a.UserID,
			))
			if err != nil {
				if isUniqueViolation(err, "event_registrations_event_email_key") {
					return fmt.Errorf("%w: %s is already registered for this event", apperr.ErrConflict, a.Email)
				}
				return fmt.Errorf("insert registration: %w", err)
			}
			return nil
		}},
	)
	if err != nil {
		return nil, err
	}

	return reg, nil
}

func classifyEventMiss(ctx context.Context, tx pgx.Tx, eventID int64) error {
	var active bool
	err := tx.QueryRow(ctx, `SELECT is_active FROM events WHERE id = $1`, eventID).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && !active) {
		return fmt.Errorf("%w: event %d", apperr.ErrNotFound, eventID)
	}
	if err != nil {
		return fmt.Errorf("select event: %w", err)
	}
	return fmt.Errorf("%w: event is full", apperr.ErrConflict)
}

// CancelEventRegistration отменяет регистрацию и освобождает место, не опуская счётчик ниже нуля.
func (r *PostgresRepository) CancelEventRegistration(ctx context.Context, id int64) (*model.EventRegistration, error) {
	var reg *model.EventRegistration

	err := r.inTx(ctx, "cancel event registration",
		step{"cancel", func(ctx context.Context, tx pgx.Tx) error {
			var err error
			reg, err = scanRegistration(tx.QueryRow(ctx,
				`UPDATE event_registrations
				 SET status = $2, updated_at = NOW()
				 WHERE id = $1 AND status <> $2
				 RETURNING `+registrationColumns,
				id, string(model.RegistrationStatusCancelled),
			))
			if errors.Is(err, pgx.ErrNoRows) {
				var exists bool
				if err := tx.QueryRow(ctx,
					`SELECT EXISTS (SELECT 1 FROM event_registrations WHERE id = $1)`, id,
				).Scan(&exists); err != nil {
					return fmt.Errorf("select registration: %w", err)
				}
				if !exists {
					return fmt.Errorf("%w: registration %d", apperr.ErrNotFound, id)
				}
				return fmt.Errorf("%w: registration is already cancelled", apperr.ErrInvalidState)
			}
			if err != nil {
				return fmt.Errorf("cancel registration: %w", err)
			}
			return nil
		}},
		step{"release seat", func(ctx context.Context, tx pgx.Tx) error {
			_, err := tx.Exec(ctx,
				`UPDATE events
				 SET registrations = GREATEST(registrations - 1, 0), updated_at = NOW()
				 WHERE id = $1`,
				reg.EventID,
			)
			if err != nil {
				return fmt.Errorf("release seat: %w", err)
			}
			return nil
		}},
	)
	if err != nil {
		return nil, err
	}

	return reg, nil
}

// ListRegistrationsByEvent возвращает регистрации на событие.
func (r *PostgresRepository) ListRegistrationsByEvent(ctx context.Context, eventID int64) ([]model.EventRegistration, error) {
	return r.listRegistrations(ctx, `event_id = $1`, eventID)
}

// ListRegistrationsByEmail возвращает регистрации участника по email.
func (r *PostgresRepository) ListRegistrationsByEmail(ctx context.Context, email string) ([]model.EventRegistration, error) {
	return r.listRegistrations(ctx, `email = $1`, email)
}

func (r *PostgresRepository) listRegistrations(ctx context.Context, cond string, arg any) ([]model.EventRegistration, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+registrationColumns+` FROM event_registrations WHERE `+cond+` ORDER BY created_at DESC`,
		arg,
	)
	if err != nil {
		return nil, fmt.Errorf("select registrations: %w", err)
	}
	defer rows.Close()

	var res []model.EventRegistration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		res = append(res, *reg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
