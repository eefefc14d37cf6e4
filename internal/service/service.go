// Package service реализует бизнес-логику сервиса coursemart.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/coursemart/internal/metrics"
	"github.com/mmeshcher/coursemart/internal/model"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateUser(ctx context.Context, u *model.User) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error
	UpdateUserProfile(ctx context.Context, u *model.User) error
	GetEnrolledCourses(ctx context.Context, userID int64) ([]model.EnrolledCourse, error)

	CreateCourse(ctx context.Context, c *model.Course) (*model.Course, error)
	UpdateCourse(ctx context.Context, c *model.Course) (*model.Course, error)
	DeactivateCourse(ctx context.Context, id int64) error
	GetCourse(ctx context.Context, id int64) (*model.Course, error)
	ListCourses(ctx context.Context, f model.CourseFilter) ([]model.Course, error)

	CreatePurchase(ctx context.Context, p *model.Purchase) (*model.PurchaseOutcome, error)
	VerifyPurchase(ctx context.Context, id int64, decision model.PurchaseStatus, v model.Verification) (*model.PurchaseOutcome, error)
	RefundPurchase(ctx context.Context, id, buyerID int64, reason string, at time.Time) (*model.Purchase, error)
	GetPurchase(ctx context.Context, id int64) (*model.Purchase, error)
	ListPurchasesByUser(ctx context.Context, userID int64) ([]model.Purchase, error)
	ListPendingPurchases(ctx context.Context) ([]model.PendingPurchase, error)

	CreateEvent(ctx context.Context, e *model.Event) (*model.Event, error)
	UpdateEvent(ctx context.Context, e *model.Event) (*model.Event, error)
	DeactivateEvent(ctx context.Context, id int64) error
	GetEvent(ctx context.Context, id int64) (*model.Event, error)
	ListEvents(ctx context.Context, upcomingAfter *time.Time) ([]model.Event, error)
	RegisterForEvent(ctx context.Context, eventID int64, a model.Attendee) (*model.EventRegistration, error)
	CancelEventRegistration(ctx context.Context, id int64) (*model.EventRegistration, error)
	ListRegistrationsByEvent(ctx context.Context, eventID int64) ([]model.EventRegistration, error)
	ListRegistrationsByEmail(ctx context.Context, email string) ([]model.EventRegistration, error)
	ListEventsByUser(ctx context.Context, userID int64) ([]model.Event, error)

	CreateReview(ctx context.Context, rv *model.Review) (*model.Review, error)
	UpdateReview(ctx context.Context, rv *model.Review) (*model.Review, error)
	DeleteReview(ctx context.Context, id int64) (*model.Review, error)
	GetReview(ctx context.Context, id int64) (*model.Review, error)
	ListReviewsByCourse(ctx context.Context, courseID int64, f model.ReviewFilter) (*model.ReviewPage, error)
	ListReviewsByUser(ctx context.Context, userID int64) ([]model.Review, error)
	ToggleReviewHelpful(ctx context.Context, reviewID, userID int64) (*model.HelpfulVote, error)
}

// Notifier отправляет уведомления после зафиксированных изменений.
type Notifier interface {
	SendConfirmation(ctx context.Context, n model.Notification) error
	SendVerificationResult(ctx context.Context, n model.Notification) error
}

// Cache хранит результаты чтения каталога.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

// Service содержит бизнес-логику сервиса coursemart.
type Service struct {
	repo     Repository
	notifier Notifier
	cache    Cache
	cacheTTL time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// Option настраивает необязательные зависимости сервиса.
type Option func(*Service)

// WithNotifier подключает отправку уведомлений.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithCache подключает кэш каталога с указанным временем жизни записей.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService создаёт новый сервис с указанным репозиторием.
func NewService(repo Repository, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Ping проверяет доступность хранилища, если репозиторий это поддерживает.
func (s *Service) Ping(ctx context.Context) error {
	if p, ok := s.repo.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// notify отправляет уведомление. Ошибка отправки только логируется:
// изменение, о котором сообщается, уже зафиксировано.
func (s *Service) notify(ctx context.Context, n model.Notification) {
	if s.notifier == nil || n.Email == "" {
		return
	}

	n.OccurredAt = s.now()

	var err error
	if n.Kind == model.NotificationPurchaseVerified {
		err = s.notifier.SendVerificationResult(ctx, n)
	} else {
		err = s.notifier.SendConfirmation(ctx, n)
	}

	if err != nil {
		metrics.NotificationFailures.WithLabelValues(string(n.Kind)).Inc()
		s.logger.Warn("send notification failed",
			zap.Error(err),
			zap.String("kind", string(n.Kind)),
			zap.String("email", n.Email),
		)
	}
}

// notifyBuyer дополняет уведомление данными покупателя и отправляет его.
func (s *Service) notifyBuyer(ctx context.Context, userID int64, n model.Notification) {
	if s.notifier == nil {
		return
	}

	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		s.logger.Warn("load buyer for notification failed", zap.Error(err), zap.Int64("userID", userID))
		return
	}

	n.Email = u.Email
	n.Name = u.FirstName
	s.notify(ctx, n)
}
