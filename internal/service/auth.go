package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/coursemart/internal/apperr"
	"github.com/mmeshcher/coursemart/internal/model"
)

const minPasswordLen = 8

// Registration содержит данные, указанные при регистрации пользователя.
type Registration struct {
	FirstName  string
	LastName   string
	Email      string
	Password   string
	Phone      string
	Newsletter bool
}

// RegisterUser регистрирует нового студента.
func (s *Service) RegisterUser(ctx context.Context, reg Registration) (*model.User, error) {
	email := normalizeEmail(reg.Email)
	if email == "" || strings.TrimSpace(reg.FirstName) == "" || strings.TrimSpace(reg.LastName) == "" {
		return nil, fmt.Errorf("%w: first name, last name and email are required", apperr.ErrValidation)
	}
	if len(reg.Password) < minPasswordLen {
		return nil, fmt.Errorf("%w: password must be at least %d characters", apperr.ErrValidation, minPasswordLen)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &model.User{
		FirstName:    strings.TrimSpace(reg.FirstName),
		LastName:     strings.TrimSpace(reg.LastName),
		Email:        email,
		PasswordHash: hash,
		Phone:        reg.Phone,
		Role:         model.RoleStudent,
		Newsletter:   reg.Newsletter,
		IsActive:     true,
		CreatedAt:    s.now(),
	}

	u.ID, err = s.repo.CreateUser(ctx, u)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, model.Notification{
		Kind:  model.NotificationWelcome,
		Email: u.Email,
		Name:  u.FirstName,
	})

	return u, nil
}

// AuthenticateUser проверяет email и пароль и возвращает пользователя.
func (s *Service) AuthenticateUser(ctx context.Context, email, password string) (*model.User, error) {
	u, err := s.repo.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("%w: invalid credentials", apperr.ErrUnauthorized)
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, fmt.Errorf("%w: invalid credentials", apperr.ErrUnauthorized)
	}

	if !u.IsActive {
		return nil, fmt.Errorf("%w: account is disabled", apperr.ErrUnauthorized)
	}

	now := s.now()
	if err := s.repo.TouchLastLogin(ctx, u.ID, now); err != nil {
		s.logger.Warn("update last login failed", zap.Error(err), zap.Int64("userID", u.ID))
	} else {
		u.LastLogin = &now
	}

	return u, nil
}

// GetProfile возвращает профиль пользователя вместе с зачислениями.
func (s *Service) GetProfile(ctx context.Context, actor model.Actor) (*model.User, error) {
	return s.repo.GetUserByID(ctx, actor.UserID)
}

// GetMyCourses возвращает курсы, на которые зачислен пользователь.
func (s *Service) GetMyCourses(ctx context.Context, actor model.Actor) ([]model.EnrolledCourse, error) {
	return s.repo.GetEnrolledCourses(ctx, actor.UserID)
}

// ProfileUpdate содержит изменяемые поля профиля. nil означает «не менять».
type ProfileUpdate struct {
	FirstName  *string
	LastName   *string
	Phone      *string
	Newsletter *bool
}

// UpdateProfile изменяет профиль пользователя. Пустые имя и фамилия игнорируются.
func (s *Service) UpdateProfile(ctx context.Context, actor model.Actor, upd ProfileUpdate) (*model.User, error) {
	u, err := s.repo.GetUserByID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}

	if upd.FirstName != nil && strings.TrimSpace(*upd.FirstName) != "" {
		u.FirstName = strings.TrimSpace(*upd.FirstName)
	}
	if upd.LastName != nil && strings.TrimSpace(*upd.LastName) != "" {
		u.LastName = strings.TrimSpace(*upd.LastName)
	}
	if upd.Phone != nil {
		u.Phone = strings.TrimSpace(*upd.Phone)
	}
	if upd.Newsletter != nil {
		u.Newsletter = *upd.Newsletter
	}

	if err := s.repo.UpdateUserProfile(ctx, u); err != nil {
		return nil, err
	}

	s.logger.Info("profile updated", zap.Int64("userID", u.ID))
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
