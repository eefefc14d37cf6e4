package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/render"

	"github.com/mmeshcher/coursemart/internal/model"
	"github.com/mmeshcher/coursemart/internal/service"
)

type reviewRequest struct {
	CourseID int64  `json:"courseId" validate:"required,min=1"`
	Rating   int    `json:"rating" validate:"required,min=1,max=5"`
	Comment  string `json:"comment" validate:"max=1000"`
}

type reviewUpdateRequest struct {
	Rating  *int    `json:"rating" validate:"omitempty,min=1,max=5"`
	Comment *string `json:"comment" validate:"omitempty,max=1000"`
}

type reviewAuthorResponse struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

type reviewCourseResponse struct {
	ID        int64  `json:"id"`
	Title     string `json:"title,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

type reviewResponse struct {
	ID           int64                `json:"id"`
	Course       reviewCourseResponse `json:"course"`
	User         reviewAuthorResponse `json:"user"`
	Rating       int                  `json:"rating"`
	Comment      string               `json:"comment"`
	HelpfulCount int                  `json:"helpfulCount"`
	CreatedAt    time.Time            `json:"createdAt"`
	UpdatedAt    time.Time            `json:"updatedAt"`
}

type paginationResponse struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type reviewPageResponse struct {
	Reviews    []reviewResponse   `json:"reviews"`
	Pagination paginationResponse `json:"pagination"`
}

type helpfulResponse struct {
	HelpfulCount int  `json:"helpfulCount"`
	IsHelpful    bool `json:"isHelpful"`
}

func newReviewResponse(rv *model.Review) reviewResponse {
	return reviewResponse{
		ID: rv.ID,
		Course: reviewCourseResponse{
			ID:        rv.CourseID,
			Title:     rv.CourseTitle,
			Thumbnail: rv.CourseThumbnail,
		},
		User: reviewAuthorResponse{
			ID:        rv.UserID,
			FirstName: rv.AuthorFirstName,
			LastName:  rv.AuthorLastName,
		},
		Rating:       rv.Rating,
		Comment:      rv.Comment,
		HelpfulCount: rv.HelpfulCount,
		CreatedAt:    rv.CreatedAt,
		UpdatedAt:    rv.UpdatedAt,
	}
}

func newReviewsResponse(reviews []model.Review) []reviewResponse {
	resp := make([]reviewResponse, 0, len(reviews))
	for i := range reviews {
		resp = append(resp, newReviewResponse(&reviews[i]))
	}
	return resp
}

// parseReviewFilter читает page, limit и rating. Диапазоны проверяет сервис.
func parseReviewFilter(r *http.Request) (model.ReviewFilter, string) {
	var f model.ReviewFilter
	q := r.URL.Query()

	for name, dst := range map[string]*int{"page": &f.Page, "limit": &f.Limit, "rating": &f.Rating} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return f, "invalid " + name
		}
		*dst = v
	}

	return f, ""
}

// CourseReviews возвращает страницу отзывов курса.
func (h *Handler) CourseReviews(w http.ResponseWriter, r *http.Request) {
	courseID, ok := h.idParam(w, r, "courseId")
	if !ok {
		return
	}

	f, msg := parseReviewFilter(r)
	if msg != "" {
		h.respondMessage(w, r, http.StatusBadRequest, msg)
		return
	}

	page, err := h.service.ListCourseReviews(r.Context(), courseID, f)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	render.JSON(w, r, reviewPageResponse{
		Reviews: newReviewsResponse(page.Reviews),
		Pagination: paginationResponse{
			Page:  page.Page,
			Limit: page.Limit,
			Total: page.Total,
			Pages: page.Pages(),
		},
	})
}

// UserReviews возвращает отзывы пользователя.
func (h *Handler) UserReviews(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	userID, ok := h.idParam(w, r, "userId")
	if !ok {
		return
	}

	reviews, err := h.service.GetUserReviews(r.Context(), actor, userID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	render.JSON(w, r, newReviewsResponse(reviews))
}

// CreateReview сохраняет отзыв о курсе.
func (h *Handler) CreateReview(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req reviewRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	rv, err := h.service.CreateReview(r.Context(), actor, req.CourseID, service.ReviewInput{
		Rating:  &req.Rating,
		Comment: &req.Comment,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, newReviewResponse(rv))
}

// UpdateReview изменяет оценку или комментарий отзыва.
func (h *Handler) UpdateReview(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}

	var req reviewUpdateRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	rv, err := h.service.UpdateReview(r.Context(), actor, id, service.ReviewInput{
		Rating:  req.Rating,
		Comment: req.Comment,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	render.JSON(w, r, newReviewResponse(rv))
}

// DeleteReview удаляет отзыв.
func (h *Handler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteReview(r.Context(), actor, id); err != nil {
		h.respondError(w, r, err)
		return
	}

	render.JSON(w, r, messageResponse{Message: "review deleted"})
}

// MarkReviewHelpful переключает отметку «полезно» текущего пользователя.
func (h *Handler) MarkReviewHelpful(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}

	vote, err := h.service.MarkReviewHelpful(r.Context(), actor, id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	render.JSON(w, r, helpfulResponse{HelpfulCount: vote.HelpfulCount, IsHelpful: vote.IsHelpful})
}
