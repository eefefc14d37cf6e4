package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/coursemart/internal/apperr"
	"github.com/mmeshcher/coursemart/internal/metrics"
	"github.com/mmeshcher/coursemart/internal/model"
)

// ListEvents возвращает активные события по дате.
func (s *Service) ListEvents(ctx context.Context) ([]model.Event, error) {
	return s.repo.ListEvents(ctx, nil)
}

// GetUpcomingEvents возвращает предстоящие события.
func (s *Service) GetUpcomingEvents(ctx context.Context) ([]model.Event, error) {
	now := s.now()
	return s.repo.ListEvents(ctx, &now)
}

// GetEvent возвращает активное событие.
func (s *Service) GetEvent(ctx context.Context, id int64) (*model.Event, error) {
	e, err := s.repo.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.IsActive {
		return nil, fmt.Errorf("%w: event %d", apperr.ErrNotFound, id)
	}
	return e, nil
}

// CreateEvent создаёт событие.
func (s *Service) CreateEvent(ctx context.Context, actor model.Actor, e *model.Event) (*model.Event, error) {
	if !actor.Can(model.CapManageEvents) {
		return nil, fmt.Errorf("%w: only admins can create events", apperr.ErrForbidden)
	}

	if e.Status == "" {
		e.Status = model.EventStatusUpcoming
	}
	e.IsActive = true

	if err := prepareEvent(e); err != nil {
		return nil, err
	}

	return s.repo.CreateEvent(ctx, e)
}

// EventUpdate содержит изменяемые поля события. nil означает «не менять».
type EventUpdate struct {
	Title       *string
	Description *string
	Date        *time.Time
	Speaker     *string
	SpeakerBio  *string
	Category    *model.EventCategory
	MaxCapacity *int
	IsFree      *bool
	PriceCents  *int64
	MeetingLink *string
	Status      *model.EventStatus
}

// UpdateEvent изменяет указанные поля события. Число регистраций не меняется.
func (s *Service) UpdateEvent(ctx context.Context, actor model.Actor, id int64, upd EventUpdate) (*model.Event, error) {
	if !actor.Can(model.CapManageEvents) {
		return nil, fmt.Errorf("%w: only admins can update events", apperr.ErrForbidden)
	}

	e, err := s.repo.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}

	applyEventUpdate(e, upd)
	if err := prepareEvent(e); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateEvent(ctx, e)
	if err != nil {
		return nil, err
	}

	s.logger.Info("event updated", zap.Int64("eventID", id), zap.Int64("adminID", actor.UserID))
	return updated, nil
}

// DeleteEvent скрывает событие из списков.
func (s *Service) DeleteEvent(ctx context.Context, actor model.Actor, id int64) error {
	if !actor.Can(model.CapManageEvents) {
		return fmt.Errorf("%w: only admins can delete events", apperr.ErrForbidden)
	}

	if err := s.repo.DeactivateEvent(ctx, id); err != nil {
		return err
	}

	s.logger.Info("event deactivated", zap.Int64("eventID", id), zap.Int64("adminID", actor.UserID))
	return nil
}

// GetMyEvents возвращает события, на которые зарегистрирован пользователь.
func (s *Service) GetMyEvents(ctx context.Context, actor model.Actor) ([]model.Event, error) {
	return s.repo.ListEventsByUser(ctx, actor.UserID)
}

func applyEventUpdate(e *model.Event, upd EventUpdate) {
	if upd.Title != nil {
		e.Title = *upd.Title
	}
	if upd.Description != nil {
		e.Description = *upd.Description
	}
	if upd.Date != nil {
		e.Date = *upd.Date
	}
	if upd.Speaker != nil {
		e.Speaker = *upd.Speaker
	}
	if upd.SpeakerBio != nil {
		e.SpeakerBio = *upd.SpeakerBio
	}
	if upd.Category != nil {
		e.Category = *upd.Category
	}
	if upd.MaxCapacity != nil {
		e.MaxCapacity = *upd.MaxCapacity
	}
	if upd.IsFree != nil {
		e.IsFree = *upd.IsFree
	}
	if upd.PriceCents != nil {
		e.PriceCents = *upd.PriceCents
	}
	if upd.MeetingLink != nil {
		e.MeetingLink = *upd.MeetingLink
	}
	if upd.Status != nil {
		e.Status = *upd.Status
	}
}

// prepareEvent проверяет поля события. Для бесплатного события цена обнуляется.
func prepareEvent(e *model.Event) error {
	if e.IsFree {
		e.PriceCents = 0
	}
	e.Title = strings.TrimSpace(e.Title)

	switch {
	case e.Title == "" || strings.TrimSpace(e.Description) == "" || strings.TrimSpace(e.Speaker) == "":
		return fmt.Errorf("%w: title, description and speaker are required", apperr.ErrValidation)
	case e.Date.IsZero():
		return fmt.Errorf("%w: date is required", apperr.ErrValidation)
	case e.MaxCapacity < 1:
		return fmt.Errorf("%w: max capacity must be at least 1", apperr.ErrValidation)
	case e.PriceCents < 0:
		return fmt.Errorf("%w: price must not be negative", apperr.ErrValidation)
	case !e.Category.Valid():
		return fmt.Errorf("%w: unknown category %q", apperr.ErrValidation, e.Category)
	case !e.Status.Valid():
		return fmt.Errorf("%w: unknown status %q", apperr.ErrValidation, e.Status)
	}
	return nil
}

// RegisterForEvent регистрирует участника на событие, если есть свободное место
// и участник с таким email ещё не зарегистрирован.
func (s *Service) RegisterForEvent(ctx context.Context, eventID int64, a model.Attendee) (*model.EventRegistration, error) {
	a.Email = normalizeEmail(a.Email)
	a.FirstName = strings.TrimSpace(a.FirstName)
	a.LastName = strings.TrimSpace(a.LastName)
	if a.Email == "" || a.FirstName == "" || a.LastName == "" {
		return nil, fmt.Errorf("%w: first name, last name and email are required", apperr.ErrValidation)
	}

	reg, err := s.repo.RegisterForEvent(ctx, eventID, a)
	if err != nil {
		result := "error"
		if errors.Is(err, apperr.ErrConflict) {
			result = "rejected"
		}
		metrics.EventRegistrations.WithLabelValues(result).Inc()
		return nil, err
	}

	metrics.EventRegistrations.WithLabelValues("registered").Inc()
	s.logger.Info("event registration created",
		zap.Int64("eventID", eventID),
		zap.Int64("registrationID", reg.ID),
	)

	s.notify(ctx, model.Notification{
		Kind:    model.NotificationEventRegistration,
		Email:   a.Email,
		Name:    a.FirstName,
		EventID: eventID,
		Status:  string(reg.Status),
	})

	return reg, nil
}

// CancelEventRegistration отменяет регистрацию и освобождает место.
func (s *Service) CancelEventRegistration(ctx context.Context, id int64) (*model.EventRegistration, error) {
	reg, err := s.repo.CancelEventRegistration(ctx, id)
	if err != nil {
		return nil, err
	}

	metrics.EventRegistrations.WithLabelValues("cancelled").Inc()
	s.logger.Info("event registration cancelled",
		zap.Int64("eventID", reg.EventID),
		zap.Int64("registrationID", id),
	)

	return reg, nil
}

// GetEventRegistrations возвращает регистрации на событие.
func (s *Service) GetEventRegistrations(ctx context.Context, actor model.Actor, eventID int64) ([]model.EventRegistration, error) {
	if !actor.Can(model.CapViewRegistrations) {
		return nil, fmt.Errorf("%w: only admins can view event registrations", apperr.ErrForbidden)
	}
	return s.repo.ListRegistrationsByEvent(ctx, eventID)
}

// GetRegistrationsByEmail возвращает регистрации участника.
func (s *Service) GetRegistrationsByEmail(ctx context.Context, email string) ([]model.EventRegistration, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", apperr.ErrValidation)
	}
	return s.repo.ListRegistrationsByEmail(ctx, email)
}
