package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/coursemart/internal/apperr"
	"github.com/mmeshcher/coursemart/internal/model"
	"github.com/mmeshcher/coursemart/internal/validation"
)

const (
	catalogCacheKey = "courses:all"
	defaultDuration = "10h"
)

func courseCacheKey(id int64) string {
	return fmt.Sprintf("course:%d", id)
}

// CourseUpdate содержит изменяемые поля курса. nil означает «не менять».
type CourseUpdate struct {
	Title       *string
	Description *string
	Thumbnail   *string
	Category    *model.CourseCategory
	Level       *model.CourseLevel
	PriceCents  *int64
	Instructor  *string
	Duration    *string
	Featured    *bool
	IsActive    *bool
}

// ListCourses возвращает активные курсы по фильтру. Выборка без фильтров кэшируется.
func (s *Service) ListCourses(ctx context.Context, f model.CourseFilter) ([]model.Course, error) {
	cacheable := f == (model.CourseFilter{})

	if cacheable {
		var cached []model.Course
		if s.cacheGet(ctx, catalogCacheKey, &cached) {
			return cached, nil
		}
	}

	courses, err := s.repo.ListCourses(ctx, f)
	if err != nil {
		return nil, err
	}

	if cacheable {
		s.cacheSet(ctx, catalogCacheKey, courses)
	}

	return courses, nil
}

// GetCourse возвращает активный курс.
func (s *Service) GetCourse(ctx context.Context, id int64) (*model.Course, error) {
	var cached model.Course
	if s.cacheGet(ctx, courseCacheKey(id), &cached) {
		return &cached, nil
	}

	c, err := s.repo.GetCourse(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.IsActive {
		return nil, fmt.Errorf("%w: course %d", apperr.ErrNotFound, id)
	}

	s.cacheSet(ctx, courseCacheKey(id), c)
	return c, nil
}

// CreateCourse добавляет курс в каталог.
func (s *Service) CreateCourse(ctx context.Context, actor model.Actor, c *model.Course) (*model.Course, error) {
	if !actor.Can(model.CapManageCourses) {
		return nil, fmt.Errorf("%w: only admins and instructors can create courses", apperr.ErrForbidden)
	}

	if c.Level == "" {
		c.Level = model.CourseLevelIntermediate
	}
	if c.Duration == "" {
		c.Duration = defaultDuration
	}
	c.IsActive = true

	if err := prepareCourse(c); err != nil {
		return nil, err
	}

	created, err := s.repo.CreateCourse(ctx, c)
	if err != nil {
		return nil, err
	}

	s.invalidateCourse(ctx, created.ID)
	return created, nil
}

// UpdateCourse изменяет указанные поля курса. Счётчики студентов не меняются.
func (s *Service) UpdateCourse(ctx context.Context, actor model.Actor, id int64, upd CourseUpdate) (*model.Course, error) {
	if !actor.Can(model.CapManageCourses) {
		return nil, fmt.Errorf("%w: only admins and instructors can update courses", apperr.ErrForbidden)
	}

	c, err := s.repo.GetCourse(ctx, id)
	if err != nil {
		return nil, err
	}

	applyCourseUpdate(c, upd)
	if err := prepareCourse(c); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateCourse(ctx, c)
	if err != nil {
		return nil, err
	}

	s.invalidateCourse(ctx, id)
	return updated, nil
}

// DeleteCourse скрывает курс из каталога.
func (s *Service) DeleteCourse(ctx context.Context, actor model.Actor, id int64) error {
	if !actor.Can(model.CapDeleteCourses) {
		return fmt.Errorf("%w: only admins can delete courses", apperr.ErrForbidden)
	}

	if err := s.repo.DeactivateCourse(ctx, id); err != nil {
		return err
	}

	s.invalidateCourse(ctx, id)
	return nil
}

func applyCourseUpdate(c *model.Course, upd CourseUpdate) {
	if upd.Title != nil {
		c.Title = *upd.Title
	}
	if upd.Description != nil {
		c.Description = *upd.Description
	}
	if upd.Thumbnail != nil {
		c.Thumbnail = *upd.Thumbnail
	}
	if upd.Category != nil {
		c.Category = *upd.Category
	}
	if upd.Level != nil {
		c.Level = *upd.Level
	}
	if upd.PriceCents != nil {
		c.PriceCents = *upd.PriceCents
	}
	if upd.Instructor != nil {
		c.Instructor = *upd.Instructor
	}
	if upd.Duration != nil {
		c.Duration = *upd.Duration
	}
	if upd.Featured != nil {
		c.Featured = *upd.Featured
	}
	if upd.IsActive != nil {
		c.IsActive = *upd.IsActive
	}
}

// prepareCourse проверяет поля курса и вычисляет длительность в минутах.
func prepareCourse(c *model.Course) error {
	c.Title = strings.TrimSpace(c.Title)
	c.Instructor = strings.TrimSpace(c.Instructor)

	switch {
	case c.Title == "" || strings.TrimSpace(c.Description) == "" || c.Instructor == "":
		return fmt.Errorf("%w: title, description and instructor are required", apperr.ErrValidation)
	case c.PriceCents < 0:
		return fmt.Errorf("%w: price must not be negative", apperr.ErrValidation)
	case !c.Category.Valid():
		return fmt.Errorf("%w: unknown category %q", apperr.ErrValidation, c.Category)
	case !c.Level.Valid():
		return fmt.Errorf("%w: unknown level %q", apperr.ErrValidation, c.Level)
	}

	minutes, err := validation.DurationMinutes(c.Duration)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	c.TotalMinutes = minutes

	return nil
}

func (s *Service) cacheGet(ctx context.Context, key string, dst any) bool {
	if s.cache == nil {
		return false
	}

	found, err := s.cache.Get(ctx, key, dst)
	if err != nil {
		s.logger.Warn("cache get failed", zap.Error(err), zap.String("key", key))
		return false
	}
	return found
}

func (s *Service) cacheSet(ctx context.Context, key string, value any) {
	if s.cache == nil {
		return
	}

	if err := s.cache.Set(ctx, key, value, s.cacheTTL); err != nil {
		s.logger.Warn("cache set failed", zap.Error(err), zap.String("key", key))
	}
}

// invalidateCourse сбрасывает кэш курса и каталога после изменения курса или его счётчиков.
func (s *Service) invalidateCourse(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}

	if err := s.cache.Invalidate(ctx, courseCacheKey(id), catalogCacheKey); err != nil {
		s.logger.Warn("cache invalidate failed", zap.Error(err), zap.Int64("courseID", id))
	}
}
