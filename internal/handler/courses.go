package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/render"

	"github.com/mmeshcher/coursemart/internal/model"
	"github.com/mmeshcher/coursemart/internal/service"
)

type courseRequest struct {
	Title       string  `json:"title" validate:"required,max=200"`
	Description string  `json:"description" validate:"required"`
	Thumbnail   string  `json:"thumbnail" validate:"omitempty,url"`
	Category    string  `json:"category" validate:"required,oneof=programacion diseno negocios marketing data otro"`
	Level       string  `json:"level" validate:"omitempty,oneof=principiante intermedio avanzado"`
	Price       float64 `json:"price" validate:"min=0,max=1000000"`
	Instructor  string  `json:"instructor" validate:"required"`
	Duration    string  `json:"duration" validate:"omitempty,course_duration"`
	Featured    bool    `json:"featured"`
}

type courseUpdateRequest struct {
	Title       *string  `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string  `json:"description" validate:"omitempty,min=1"`
	Thumbnail   *string  `json:"thumbnail"`
	Category    *string  `json:"category" validate:"omitempty,oneof=programacion diseno negocios marketing data otro"`
	Level       *string  `json:"level" validate:"omitempty,oneof=principiante intermedio avanzado"`
	Price       *float64 `json:"price" validate:"omitempty,min=0,max=1000000"`
	Instructor  *string  `json:"instructor" validate:"omitempty,min=1"`
	Duration    *string  `json:"duration" validate:"omitempty,course_duration"`
	Featured    *bool    `json:"featured"`
	IsActive    *bool    `json:"isActive"`
}

type courseResponse struct {
	ID             int64                `json:"id"`
	Title          string               `json:"title"`
	Description    string               `json:"description"`
	Thumbnail      string               `json:"thumbnail,omitempty"`
	Category       model.CourseCategory `json:"category"`
	Level          model.CourseLevel    `json:"level"`
	Price          float64              `json:"price"`
	Instructor     string               `json:"instructor"`
	Duration       string               `json:"duration"`
	TotalMinutes   int                  `json:"totalMinutes"`
	Featured       bool                 `json:"featured"`
	IsActive       bool                 `json:"isActive"`
	StudentsCount  int                  `json:"students"`
	StudentsActive int                  `json:"studentsActive"`
	Rating         ratingResponse       `json:"rating"`
	CreatedAt      time.Time            `json:"createdAt"`
	UpdatedAt      time.Time            `json:"updatedAt"`
}

type ratingResponse struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

func newCourseResponse(c *model.Course) courseResponse {
	return courseResponse{
		ID:             c.ID,
		Title:          c.Title,
		Description:    c.Description,
		Thumbnail:      c.Thumbnail,
		Category:       c.Category,
		Level:          c.Level,
		Price:          fromCents(c.PriceCents),
		Instructor:     c.Instructor,
		Duration:       c.Duration,
		TotalMinutes:   c.TotalMinutes,
		Featured:       c.Featured,
		IsActive:       c.IsActive,
		StudentsCount:  c.StudentsCount,
		StudentsActive: c.StudentsActive,
		Rating:         ratingResponse{Average: c.RatingAverage, Count: c.RatingCount},
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

// parseCourseFilter собирает фильтр каталога из query-параметров.
func parseCourseFilter(r *http.Request) (model.CourseFilter, string) {
	q := r.URL.Query()
	f := model.CourseFilter{
		Category: model.CourseCategory(q.Get("category")),
		Level:    model.CourseLevel(q.Get("level")),
		Search:   strings.TrimSpace(q.Get("search")),
	}

	if f.Category != "" && !f.Category.Valid() {
		return f, "unknown category"
	}
	if f.Level != "" && !f.Level.Valid() {
		return f, "unknown level"
	}

	for name, dst := range map[string]**int64{"minPrice": &f.MinPriceCents, "maxPrice": &f.MaxPriceCents} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > maxAmount {
			return f, "invalid " + name
		}
		cents := toCents(v)
		*dst = &cents
	}

	if raw := q.Get("featured"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return f, "invalid featured"
		}
		f.Featured = &v
	}

	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return f, "invalid limit"
		}
		f.Limit = v
	}

	return f, ""
}

// ListCourses возвращает активные курсы каталога с учётом фильтров.
func (h *Handler) ListCourses(w http.ResponseWriter, r *http.Request) {
	filter, problem := parseCourseFilter(r)
	if problem != "" {
		h.respondMessage(w, r, http.StatusBadRequest, problem)
		return
	}

	courses, err := h.service.ListCourses(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	resp := make([]courseResponse, 0, len(courses))
	for i := range courses {
		resp = append(resp, newCourseResponse(&courses[i]))
	}

	render.JSON(w, r, resp)
}

// GetCourse возвращает курс по идентификатору.
func (h *Handler) GetCourse(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}

	c, err := h.service.GetCourse(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	render.JSON(w, r, newCourseResponse(c))
}

// CreateCourse добавляет курс в каталог.
func (h *Handler) CreateCourse(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req courseRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	c, err := h.service.CreateCourse(r.Context(), actor, &model.Course{
		Title:       req.Title,
		Description: req.Description,
		Thumbnail:   req.Thumbnail,
		Category:    model.CourseCategory(req.Category),
		Level:       model.CourseLevel(req.Level),
		PriceCents:  toCents(req.Price),
		Instructor:  req.Instructor,
		Duration:    req.Duration,
		Featured:    req.Featured,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, newCourseResponse(c))
}

// UpdateCourse изменяет переданные поля курса.
func (h *Handler) UpdateCourse(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}

	var req courseUpdateRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	upd := service.CourseUpdate{
		Title:       req.Title,
		Description: req.Description,
		Thumbnail:   req.Thumbnail,
		Instructor:  req.Instructor,
		Duration:    req.Duration,
		Featured:    req.Featured,
		IsActive:    req.IsActive,
	}
	if req.Category != nil {
		category := model.CourseCategory(*req.Category)
		upd.Category = &category
	}
	if req.Level != nil {
		level := model.CourseLevel(*req.Level)
		upd.Level = &level
	}
	if req.Price != nil {
		cents := toCents(*req.Price)
		upd.PriceCents = &cents
	}

	c, err := h.service.UpdateCourse(r.Context(), actor, id, upd)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	render.JSON(w, r, newCourseResponse(c))
}

// DeleteCourse снимает курс с публикации.
func (h *Handler) DeleteCourse(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteCourse(r.Context(), actor, id); err != nil {
		h.respondError(w, r, err)
		return
	}

	render.JSON(w, r, messageResponse{Message: "course deleted"})
}
