package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/mmeshcher/coursemart/internal/model"
	"github.com/mmeshcher/coursemart/internal/service"
)

type registerRequest struct {
	FirstName  string `json:"firstName" validate:"required,max=50"`
	LastName   string `json:"lastName" validate:"required,max=50"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=8"`
	Phone      string `json:"phone" validate:"omitempty,pe_phone"`
	Newsletter bool   `json:"newsletter"`
}

type profileRequest struct {
	FirstName  *string `json:"firstName" validate:"omitempty,max=50"`
	LastName   *string `json:"lastName" validate:"omitempty,max=50"`
	Phone      *string `json:"phone" validate:"omitempty,pe_phone"`
	Newsletter *bool   `json:"newsletter"`
}

type profileResponse struct {
	Message string       `json:"message"`
	User    userResponse `json:"user"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type enrollmentResponse struct {
	CourseID   int64     `json:"courseId"`
	EnrolledAt time.Time `json:"enrolledAt"`
	Progress   int       `json:"progress"`
	Completed  bool      `json:"completed"`
}

type userResponse struct {
	ID              int64                `json:"id"`
	FirstName       string               `json:"firstName"`
	LastName        string               `json:"lastName"`
	Email           string               `json:"email"`
	Phone           string               `json:"phone,omitempty"`
	Role            model.Role           `json:"role"`
	Newsletter      bool                 `json:"newsletter"`
	LastLogin       *time.Time           `json:"lastLogin,omitempty"`
	EnrolledCourses []enrollmentResponse `json:"enrolledCourses"`
	CreatedAt       time.Time            `json:"createdAt"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type enrolledCourseResponse struct {
	enrollmentResponse
	Title     string               `json:"title"`
	Thumbnail string               `json:"thumbnail,omitempty"`
	Category  model.CourseCategory `json:"category"`
}

func newEnrollmentResponse(e model.Enrollment) enrollmentResponse {
	return enrollmentResponse{
		CourseID:   e.CourseID,
		EnrolledAt: e.EnrolledAt,
		Progress:   e.Progress,
		Completed:  e.Completed,
	}
}

func newUserResponse(u *model.User) userResponse {
	enrolled := make([]enrollmentResponse, 0, len(u.EnrolledCourses))
	for _, e := range u.EnrolledCourses {
		enrolled = append(enrolled, newEnrollmentResponse(e))
	}

	return userResponse{
		ID:              u.ID,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		Email:           u.Email,
		Phone:           u.Phone,
		Role:            u.Role,
		Newsletter:      u.Newsletter,
		LastLogin:       u.LastLogin,
		EnrolledCourses: enrolled,
		CreatedAt:       u.CreatedAt,
	}
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	u, err := h.service.RegisterUser(r.Context(), service.Registration{
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Email:      req.Email,
		Password:   req.Password,
		Phone:      req.Phone,
		Newsletter: req.Newsletter,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondWithToken(w, r, http.StatusCreated, u)
}

// Login выполняет аутентификацию пользователя и выдаёт токен.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	u, err := h.service.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondWithToken(w, r, http.StatusOK, u)
}

func (h *Handler) respondWithToken(w http.ResponseWriter, r *http.Request, status int, u *model.User) {
	token, err := h.authMiddleware.IssueToken(model.Actor{UserID: u.ID, Role: u.Role})
	if err != nil {
		h.logger.Error("issue token error", zap.Error(err), zap.Int64("userID", u.ID))
		h.respondMessage(w, r, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	h.authMiddleware.SetAuthCookie(w, token)
	render.Status(r, status)
	render.JSON(w, r, authResponse{Token: token, User: newUserResponse(u)})
}

// Me возвращает профиль текущего пользователя.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	u, err := h.service.GetProfile(r.Context(), actor)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	render.JSON(w, r, newUserResponse(u))
}

// MyCourses возвращает курсы, на которые зачислен текущий пользователь.
func (h *Handler) MyCourses(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	courses, err := h.service.GetMyCourses(r.Context(), actor)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	resp := make([]enrolledCourseResponse, 0, len(courses))
	for _, c := range courses {
		resp = append(resp, enrolledCourseResponse{
			enrollmentResponse: newEnrollmentResponse(c.Enrollment),
			Title:              c.Title,
			Thumbnail:          c.Thumbnail,
			Category:           c.Category,
		})
	}

	render.JSON(w, r, resp)
}

// UpdateProfile изменяет имя, телефон и подписку текущего пользователя.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req profileRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	u, err := h.service.UpdateProfile(r.Context(), actor, service.ProfileUpdate{
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Phone:      req.Phone,
		Newsletter: req.Newsletter,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	render.JSON(w, r, profileResponse{Message: "profile updated", User: newUserResponse(u)})
}

// MyEvents возвращает события, на которые зарегистрирован текущий пользователь.
func (h *Handler) MyEvents(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	events, err := h.service.GetMyEvents(r.Context(), actor)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondEvents(w, r, events)
}
