package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/mmeshcher/coursemart/internal/apperr"
	"github.com/mmeshcher/coursemart/internal/model"
)

const (
	defaultReviewPageSize = 10
	maxReviewPageSize     = 50
)

// ReviewInput содержит оценку и комментарий отзыва. nil означает «не менять».
type ReviewInput struct {
	Rating  *int
	Comment *string
}

// ListCourseReviews возвращает страницу одобренных отзывов курса.
func (s *Service) ListCourseReviews(ctx context.Context, courseID int64, f model.ReviewFilter) (*model.ReviewPage, error) {
	if f.Page == 0 {
		f.Page = 1
	}
	if f.Limit == 0 {
		f.Limit = defaultReviewPageSize
	}

	switch {
	case f.Page < 1:
		return nil, fmt.Errorf("%w: page must be at least 1", apperr.ErrValidation)
	case f.Limit < 1 || f.Limit > maxReviewPageSize:
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", apperr.ErrValidation, maxReviewPageSize)
	case f.Rating != 0 && !validRating(f.Rating):
		return nil, fmt.Errorf("%w: rating must be between %d and %d", apperr.ErrValidation, model.MinRating, model.MaxRating)
	}

	return s.repo.ListReviewsByCourse(ctx, courseID, f)
}

// GetUserReviews возвращает отзывы пользователя ему самому или администратору.
func (s *Service) GetUserReviews(ctx context.Context, actor model.Actor, userID int64) ([]model.Review, error) {
	if actor.UserID != userID && !actor.Can(model.CapModerateReviews) {
		return nil, fmt.Errorf("%w: reviews of another user", apperr.ErrForbidden)
	}
	return s.repo.ListReviewsByUser(ctx, userID)
}

// CreateReview сохраняет отзыв о курсе. Повторный отзыв того же пользователя
// завершается apperr.ErrConflict.
func (s *Service) CreateReview(ctx context.Context, actor model.Actor, courseID int64, in ReviewInput) (*model.Review, error) {
	if in.Rating == nil {
		return nil, fmt.Errorf("%w: rating is required", apperr.ErrValidation)
	}

	rv := &model.Review{
		CourseID:   courseID,
		UserID:     actor.UserID,
		Rating:     *in.Rating,
		IsApproved: true,
	}
	if in.Comment != nil {
		rv.Comment = *in.Comment
	}
	if err := prepareReview(rv); err != nil {
		return nil, err
	}

	c, err := s.repo.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if !c.IsActive {
		return nil, fmt.Errorf("%w: course %d", apperr.ErrNotFound, courseID)
	}

	created, err := s.repo.CreateReview(ctx, rv)
	if err != nil {
		return nil, err
	}

	s.invalidateCourse(ctx, courseID)
	s.logger.Info("review created",
		zap.Int64("reviewID", created.ID),
		zap.Int64("courseID", courseID),
		zap.Int64("userID", actor.UserID),
		zap.Int("rating", created.Rating),
	)

	return created, nil
}

// UpdateReview изменяет отзыв. Изменить отзыв может только его автор.
func (s *Service) UpdateReview(ctx context.Context, actor model.Actor, id int64, in ReviewInput) (*model.Review, error) {
	rv, err := s.repo.GetReview(ctx, id)
	if err != nil {
		return nil, err
	}
	if rv.UserID != actor.UserID {
		return nil, fmt.Errorf("%w: review %d belongs to another user", apperr.ErrForbidden, id)
	}

	if in.Rating != nil {
		rv.Rating = *in.Rating
	}
	if in.Comment != nil {
		rv.Comment = *in.Comment
	}
	if err := prepareReview(rv); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateReview(ctx, rv)
	if err != nil {
		return nil, err
	}

	s.invalidateCourse(ctx, updated.CourseID)
	return updated, nil
}

// DeleteReview удаляет отзыв. Удалить отзыв может автор или администратор.
func (s *Service) DeleteReview(ctx context.Context, actor model.Actor, id int64) error {
	rv, err := s.repo.GetReview(ctx, id)
	if err != nil {
		return err
	}
	if rv.UserID != actor.UserID && !actor.Can(model.CapModerateReviews) {
		return fmt.Errorf("%w: review %d belongs to another user", apperr.ErrForbidden, id)
	}

	if _, err := s.repo.DeleteReview(ctx, id); err != nil {
		return err
	}

	s.invalidateCourse(ctx, rv.CourseID)
	s.logger.Info("review deleted",
		zap.Int64("reviewID", id),
		zap.Int64("courseID", rv.CourseID),
		zap.Int64("actorID", actor.UserID),
	)
	return nil
}

// MarkReviewHelpful ставит или снимает отметку «полезно» от пользователя.
func (s *Service) MarkReviewHelpful(ctx context.Context, actor model.Actor, id int64) (*model.HelpfulVote, error) {
	return s.repo.ToggleReviewHelpful(ctx, id, actor.UserID)
}

func validRating(r int) bool {
	return r >= model.MinRating && r <= model.MaxRating
}

func prepareReview(rv *model.Review) error {
	rv.Comment = strings.TrimSpace(rv.Comment)

	switch {
	case !validRating(rv.Rating):
		return fmt.Errorf("%w: rating must be between %d and %d", apperr.ErrValidation, model.MinRating, model.MaxRating)
	case utf8.RuneCountInString(rv.Comment) > model.MaxReviewComment:
		return fmt.Errorf("%w: comment must be at most %d characters", apperr.ErrValidation, model.MaxReviewComment)
	}
	return nil
}
