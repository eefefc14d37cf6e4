// Package handler содержит HTTP-обработчики API сервиса coursemart.
package handler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"
	"go.uber.org/zap"

	"github.com/mmeshcher/coursemart/internal/apperr"
	"github.com/mmeshcher/coursemart/internal/middleware"
	"github.com/mmeshcher/coursemart/internal/model"
	"github.com/mmeshcher/coursemart/internal/service"
	"github.com/mmeshcher/coursemart/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Ping(ctx context.Context) error

	RegisterUser(ctx context.Context, reg service.Registration) (*model.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (*model.User, error)
	GetProfile(ctx context.Context, actor model.Actor) (*model.User, error)
	GetMyCourses(ctx context.Context, actor model.Actor) ([]model.EnrolledCourse, error)
	UpdateProfile(ctx context.Context, actor model.Actor, upd service.ProfileUpdate) (*model.User, error)
	GetMyEvents(ctx context.Context, actor model.Actor) ([]model.Event, error)

	ListCourses(ctx context.Context, f model.CourseFilter) ([]model.Course, error)
	GetCourse(ctx context.Context, id int64) (*model.Course, error)
	CreateCourse(ctx context.Context, actor model.Actor, c *model.Course) (*model.Course, error)
	UpdateCourse(ctx context.Context, actor model.Actor, id int64, upd service.CourseUpdate) (*model.Course, error)
	DeleteCourse(ctx context.Context, actor model.Actor, id int64) error

	CreatePurchase(ctx context.Context, actor model.Actor, req service.PurchaseRequest) (*model.PurchaseOutcome, error)
	VerifyPurchase(ctx context.Context, actor model.Actor, id int64, decision, notes string) (*model.PurchaseOutcome, error)
	RefundPurchase(ctx context.Context, actor model.Actor, id int64, reason string) (*model.Purchase, error)
	GetPurchase(ctx context.Context, actor model.Actor, id int64) (*model.Purchase, error)
	GetMyPurchases(ctx context.Context, actor model.Actor) ([]model.Purchase, error)
	GetPendingPurchases(ctx context.Context, actor model.Actor) ([]model.PendingPurchase, error)

	ListEvents(ctx context.Context) ([]model.Event, error)
	GetUpcomingEvents(ctx context.Context) ([]model.Event, error)
	GetEvent(ctx context.Context, id int64) (*model.Event, error)
	CreateEvent(ctx context.Context, actor model.Actor, e *model.Event) (*model.Event, error)
	UpdateEvent(ctx context.Context, actor model.Actor, id int64, upd service.EventUpdate) (*model.Event, error)
	DeleteEvent(ctx context.Context, actor model.Actor, id int64) error
	RegisterForEvent(ctx context.Context, eventID int64, a model.Attendee) (*model.EventRegistration, error)
	CancelEventRegistration(ctx context.Context, id int64) (*model.EventRegistration, error)
	GetEventRegistrations(ctx context.Context, actor model.Actor, eventID int64) ([]model.EventRegistration, error)
	GetRegistrationsByEmail(ctx context.Context, email string) ([]model.EventRegistration, error)

	ListCourseReviews(ctx context.Context, courseID int64, f model.ReviewFilter) (*model.ReviewPage, error)
	GetUserReviews(ctx context.Context, actor model.Actor, userID int64) ([]model.Review, error)
	CreateReview(ctx context.Context, actor model.Actor, courseID int64, in service.ReviewInput) (*model.Review, error)
	UpdateReview(ctx context.Context, actor model.Actor, id int64, in service.ReviewInput) (*model.Review, error)
	DeleteReview(ctx context.Context, actor model.Actor, id int64) error
	MarkReviewHelpful(ctx context.Context, actor model.Actor, id int64) (*model.HelpfulVote, error)
}

// Handler реализует HTTP-обработчики API сервиса coursemart.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	validate       *validator.Validate
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		validate:       validation.New(),
	}
}

type errorResponse struct {
	Message string `json:"message"`
}

type stepErrorResponse struct {
	Message   string   `json:"message"`
	Operation string   `json:"operation"`
	Step      string   `json:"step"`
	Completed []string `json:"completed"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// respondError переводит ошибку сервиса в HTTP-статус и тело {"message": ...}.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var stepErr *apperr.StepError
	if errors.As(err, &stepErr) {
		h.logger.Error("storage step failed",
			zap.String("op", stepErr.Op),
			zap.String("step", stepErr.Step),
			zap.Strings("completed", stepErr.Completed),
			zap.String("requestID", chimiddleware.GetReqID(r.Context())),
			zap.Error(stepErr.Err),
		)
		completed := stepErr.Completed
		if completed == nil {
			completed = []string{}
		}
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, stepErrorResponse{
			Message:   "storage temporarily unavailable, retry the request",
			Operation: stepErr.Op,
			Step:      stepErr.Step,
			Completed: completed,
		})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, apperr.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, apperr.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrInvalidState), errors.Is(err, apperr.ErrConflict):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("requestID", chimiddleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		h.respondMessage(w, r, status, http.StatusText(status))
		return
	}

	h.respondMessage(w, r, status, apperr.Message(err))
}

func (h *Handler) respondMessage(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Message: msg})
}

// decodeAndValidate читает JSON-тело запроса и проверяет его тегами validate.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := render.DecodeJSON(r.Body, dst); err != nil {
		h.respondMessage(w, r, http.StatusBadRequest, "invalid request body")
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			h.respondMessage(w, r, http.StatusBadRequest, validation.Describe(verrs))
			return false
		}
		h.respondMessage(w, r, http.StatusBadRequest, err.Error())
		return false
	}

	return true
}

// actor возвращает пользователя, которого положил в контекст AuthMiddleware.
func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	actor, ok := middleware.GetActorFromContext(r.Context())
	if !ok {
		h.respondMessage(w, r, http.StatusUnauthorized, "authentication required")
	}
	return actor, ok
}

func (h *Handler) idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		h.respondMessage(w, r, http.StatusBadRequest, fmt.Sprintf("invalid %s", name))
		return 0, false
	}
	return id, true
}

// maxAmount ограничивает суммы в запросах, чтобы перевод в центы не переполнял int64.
// Совпадает с max= в тегах validate.
const maxAmount = 1_000_000

func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func fromCents(cents int64) float64 {
	return float64(cents) / 100
}

// Health сообщает, что сервис принимает запросы и хранилище доступно.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, map[string]string{"status": "unavailable"})
		return
	}
	render.JSON(w, r, map[string]string{"status": "ok"})
}
