package model

import (
	"math"
	"time"
)

const (
	MinRating        = 1
	MaxRating        = 5
	MaxReviewComment = 1000
)

// Review описывает отзыв пользователя о курсе. На курс допускается один отзыв от пользователя.
type Review struct {
	ID           int64
	CourseID     int64
	UserID       int64
	Rating       int
	Comment      string
	IsApproved   bool
	HelpfulCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time

	AuthorFirstName string
	AuthorLastName  string
	CourseTitle     string
	CourseThumbnail string
}

// ReviewFilter задаёт страницу отзывов курса. Rating == 0 означает любую оценку.
type ReviewFilter struct {
	Rating int
	Page   int
	Limit  int
}

// Offset возвращает число пропускаемых отзывов.
func (f ReviewFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// ReviewPage содержит страницу отзывов и общее число отзывов по фильтру.
type ReviewPage struct {
	Reviews []Review
	Page    int
	Limit   int
	Total   int
}

// Pages возвращает число страниц.
func (p ReviewPage) Pages() int {
	if p.Limit <= 0 {
		return 0
	}
	return int(math.Ceil(float64(p.Total) / float64(p.Limit)))
}

// HelpfulVote описывает результат отметки «полезно».
type HelpfulVote struct {
	HelpfulCount int
	IsHelpful    bool
}

// AverageRating возвращает среднюю оценку, округлённую до одного знака. Для пустого списка 0.
func AverageRating(ratings []int) float64 {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	return math.Round(float64(sum)/float64(len(ratings))*10) / 10
}
