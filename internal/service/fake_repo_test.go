package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mmeshcher/coursemart/internal/apperr"
	"github.com/mmeshcher/coursemart/internal/model"
)

// fakeRepo хранит данные в памяти и соблюдает те же гарантии, что и PostgresRepository:
// условный переход статуса, единственное зачисление и места на событии.
type fakeRepo struct {
	mu sync.Mutex

	users         map[int64]*model.User
	courses       map[int64]*model.Course
	purchases     map[int64]*model.Purchase
	events        map[int64]*model.Event
	registrations map[int64]*model.EventRegistration
	reviews       map[int64]*model.Review
	helpful       map[[2]int64]bool

	nextID int64

	failGetUser  error
	failPurchase error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:         make(map[int64]*model.User),
		courses:       make(map[int64]*model.Course),
		purchases:     make(map[int64]*model.Purchase),
		events:        make(map[int64]*model.Event),
		registrations: make(map[int64]*model.EventRegistration),
		reviews:       make(map[int64]*model.Review),
		helpful:       make(map[[2]int64]bool),
	}
}

func (r *fakeRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *fakeRepo) Close() error { return nil }

func (r *fakeRepo) CreateUser(_ context.Context, u *model.User) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if existing.Email == u.Email {
			return 0, fmt.Errorf("%w: email %s is already registered", apperr.ErrConflict, u.Email)
		}
	}
	cp := *u
	cp.ID = r.id()
	r.users[cp.ID] = &cp
	return cp.ID, nil
}

func (r *fakeRepo) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: user %s", apperr.ErrNotFound, email)
}

func (r *fakeRepo) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failGetUser != nil {
		return nil, r.failGetUser
	}
	u, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %d", apperr.ErrNotFound, id)
	}
	cp := *u
	cp.EnrolledCourses = append([]model.Enrollment(nil), u.EnrolledCourses...)
	return &cp, nil
}

func (r *fakeRepo) TouchLastLogin(_ context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.users[id]; ok {
		u.LastLogin = &at
	}
	return nil
}

func (r *fakeRepo) UpdateUserProfile(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.users[u.ID]
	if !ok {
		return fmt.Errorf("%w: user %d", apperr.ErrNotFound, u.ID)
	}
	existing.FirstName = u.FirstName
	existing.LastName = u.LastName
	existing.Phone = u.Phone
	existing.Newsletter = u.Newsletter
	return nil
}

func (r *fakeRepo) GetEnrolledCourses(_ context.Context, userID int64) ([]model.EnrolledCourse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return nil, nil
	}
	var res []model.EnrolledCourse
	for _, e := range u.EnrolledCourses {
		c := r.courses[e.CourseID]
		res = append(res, model.EnrolledCourse{Enrollment: e, Title: c.Title, Category: c.Category})
	}
	return res, nil
}

func (r *fakeRepo) CreateCourse(_ context.Context, c *model.Course) (*model.Course, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *c
	cp.ID = r.id()
	r.courses[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r *fakeRepo) UpdateCourse(_ context.Context, c *model.Course) (*model.Course, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.courses[c.ID]
	if !ok {
		return nil, fmt.Errorf("%w: course %d", apperr.ErrNotFound, c.ID)
	}
	cp := *c
	cp.StudentsCount = existing.StudentsCount
	cp.StudentsActive = existing.StudentsActive
	r.courses[c.ID] = &cp
	out := cp
	return &out, nil
}

func (r *fakeRepo) DeactivateCourse(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.courses[id]
	if !ok {
		return fmt.Errorf("%w: course %d", apperr.ErrNotFound, id)
	}
	c.IsActive = false
	return nil
}

func (r *fakeRepo) GetCourse(_ context.Context, id int64) (*model.Course, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.courses[id]
	if !ok {
		return nil, fmt.Errorf("%w: course %d", apperr.ErrNotFound, id)
	}
	cp := *c
	return &cp, nil
}

func (r *fakeRepo) ListCourses(_ context.Context, f model.CourseFilter) ([]model.Course, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.Course
	for _, c := range r.courses {
		if !c.IsActive || (f.Category != "" && c.Category != f.Category) {
			continue
		}
		res = append(res, *c)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID > res[j].ID })
	return res, nil
}

// enroll повторяет ON CONFLICT DO NOTHING: возвращает true, только если зачисление добавлено.
func (r *fakeRepo) enroll(userID, courseID int64, at time.Time) bool {
	u := r.users[userID]
	if u.IsEnrolled(courseID) {
		return false
	}
	u.EnrolledCourses = append(u.EnrolledCourses, model.Enrollment{CourseID: courseID, EnrolledAt: at})
	c := r.courses[courseID]
	c.StudentsCount++
	c.StudentsActive++
	return true
}

func (r *fakeRepo) CreatePurchase(_ context.Context, p *model.Purchase) (*model.PurchaseOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failPurchase != nil {
		return nil, r.failPurchase
	}

	for _, existing := range r.purchases {
		if existing.UserID != p.UserID || existing.CourseID != p.CourseID {
			continue
		}
		switch existing.Status {
		case model.PurchaseStatusPending:
			return nil, fmt.Errorf("%w: purchase already pending verification", apperr.ErrConflict)
		case model.PurchaseStatusCompleted:
			return nil, fmt.Errorf("%w: course already purchased", apperr.ErrConflict)
		}
	}

	cp := *p
	cp.ID = r.id()
	r.purchases[cp.ID] = &cp

	out := &model.PurchaseOutcome{}
	if cp.Status == model.PurchaseStatusCompleted {
		out.Enrolled = r.enroll(cp.UserID, cp.CourseID, *cp.CompletedAt)
	}
	res := cp
	out.Purchase = &res
	return out, nil
}

func (r *fakeRepo) VerifyPurchase(_ context.Context, id int64, decision model.PurchaseStatus, v model.Verification) (*model.PurchaseOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.purchases[id]
	if !ok {
		return nil, fmt.Errorf("%w: purchase %d", apperr.ErrNotFound, id)
	}
	if p.Status != model.PurchaseStatusPending {
		return nil, fmt.Errorf("%w: purchase is not pending (status %s)", apperr.ErrInvalidState, p.Status)
	}

	p.Status = decision
	p.Verification = &v
	out := &model.PurchaseOutcome{}
	if decision == model.PurchaseStatusCompleted {
		at := v.VerifiedAt
		p.PaymentDate = &at
		p.CompletedAt = &at
		out.Enrolled = r.enroll(p.UserID, p.CourseID, at)
	}
	res := *p
	out.Purchase = &res
	return out, nil
}

func (r *fakeRepo) RefundPurchase(_ context.Context, id, buyerID int64, reason string, at time.Time) (*model.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.purchases[id]
	if !ok {
		return nil, fmt.Errorf("%w: purchase %d", apperr.ErrNotFound, id)
	}
	if p.UserID != buyerID {
		return nil, fmt.Errorf("%w: purchase %d belongs to another user", apperr.ErrForbidden, id)
	}
	if p.Status != model.PurchaseStatusCompleted {
		return nil, fmt.Errorf("%w: purchase is not completed (status %s)", apperr.ErrInvalidState, p.Status)
	}

	p.Status = model.PurchaseStatusRefunded
	p.RefundDate = &at
	p.RefundReason = reason

	u := r.users[p.UserID]
	for i, e := range u.EnrolledCourses {
		if e.CourseID == p.CourseID {
			u.EnrolledCourses = append(u.EnrolledCourses[:i], u.EnrolledCourses[i+1:]...)
			if c := r.courses[p.CourseID]; c.StudentsActive > 0 {
				c.StudentsActive--
			}
			break
		}
	}

	res := *p
	return &res, nil
}

func (r *fakeRepo) GetPurchase(_ context.Context, id int64) (*model.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.purchases[id]
	if !ok {
		return nil, fmt.Errorf("%w: purchase %d", apperr.ErrNotFound, id)
	}
	cp := *p
	return &cp, nil
}

func (r *fakeRepo) ListPurchasesByUser(_ context.Context, userID int64) ([]model.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.Purchase
	for _, p := range r.purchases {
		if p.UserID == userID {
			res = append(res, *p)
		}
	}
	return res, nil
}

func (r *fakeRepo) ListPendingPurchases(_ context.Context) ([]model.PendingPurchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.PendingPurchase
	for _, p := range r.purchases {
		if p.Status == model.PurchaseStatusPending {
			res = append(res, model.PendingPurchase{Purchase: *p, CourseTitle: r.courses[p.CourseID].Title})
		}
	}
	return res, nil
}

func (r *fakeRepo) CreateEvent(_ context.Context, e *model.Event) (*model.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *e
	cp.ID = r.id()
	r.events[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r *fakeRepo) UpdateEvent(_ context.Context, e *model.Event) (*model.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.events[e.ID]
	if !ok {
		return nil, fmt.Errorf("%w: event %d", apperr.ErrNotFound, e.ID)
	}
	if e.MaxCapacity < existing.Registrations {
		return nil, fmt.Errorf("%w: max capacity %d is below %d registrations", apperr.ErrConflict, e.MaxCapacity, existing.Registrations)
	}
	cp := *e
	cp.Registrations = existing.Registrations
	cp.IsActive = existing.IsActive
	r.events[e.ID] = &cp
	out := cp
	return &out, nil
}

func (r *fakeRepo) DeactivateEvent(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.events[id]
	if !ok {
		return fmt.Errorf("%w: event %d", apperr.ErrNotFound, id)
	}
	e.IsActive = false
	return nil
}

func (r *fakeRepo) GetEvent(_ context.Context, id int64) (*model.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.events[id]
	if !ok {
		return nil, fmt.Errorf("%w: event %d", apperr.ErrNotFound, id)
	}
	cp := *e
	return &cp, nil
}

func (r *fakeRepo) ListEvents(_ context.Context, upcomingAfter *time.Time) ([]model.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.Event
	for _, e := range r.events {
		if !e.IsActive {
			continue
		}
		if upcomingAfter != nil && (e.Status != model.EventStatusUpcoming || !e.Date.After(*upcomingAfter)) {
			continue
		}
		res = append(res, *e)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Date.Before(res[j].Date) })
	return res, nil
}

func (r *fakeRepo) RegisterForEvent(_ context.Context, eventID int64, a model.Attendee) (*model.EventRegistration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.events[eventID]
	if !ok || !e.IsActive {
		return nil, fmt.Errorf("%w: event %d", apperr.ErrNotFound, eventID)
	}
	if e.IsFull() {
		return nil, fmt.Errorf("%w: event is full", apperr.ErrConflict)
	}
	for _, reg := range r.registrations {
		if reg.EventID == eventID && reg.Attendee.Email == a.Email {
			return nil, fmt.Errorf("%w: %s is already registered for this event", apperr.ErrConflict, a.Email)
		}
	}

	e.Registrations++
	reg := &model.EventRegistration{
		ID:       r.id(),
		EventID:  eventID,
		Attendee: a,
		Status:   model.RegistrationStatusRegistered,
	}
	r.registrations[reg.ID] = reg
	cp := *reg
	return &cp, nil
}

func (r *fakeRepo) CancelEventRegistration(_ context.Context, id int64) (*model.EventRegistration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.registrations[id]
	if !ok {
		return nil, fmt.Errorf("%w: registration %d", apperr.ErrNotFound, id)
	}
	if reg.Status == model.RegistrationStatusCancelled {
		return nil, fmt.Errorf("%w: registration is already cancelled", apperr.ErrInvalidState)
	}

	reg.Status = model.RegistrationStatusCancelled
	if e := r.events[reg.EventID]; e.Registrations > 0 {
		e.Registrations--
	}
	cp := *reg
	return &cp, nil
}

func (r *fakeRepo) ListRegistrationsByEvent(_ context.Context, eventID int64) ([]model.EventRegistration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.EventRegistration
	for _, reg := range r.registrations {
		if reg.EventID == eventID {
			res = append(res, *reg)
		}
	}
	return res, nil
}

func (r *fakeRepo) ListRegistrationsByEmail(_ context.Context, email string) ([]model.EventRegistration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.EventRegistration
	for _, reg := range r.registrations {
		if reg.Attendee.Email == email {
			res = append(res, *reg)
		}
	}
	return res, nil
}

func (r *fakeRepo) ListEventsByUser(_ context.Context, userID int64) ([]model.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := r.users[userID]
	seen := make(map[int64]bool)
	var res []model.Event
	for _, reg := range r.registrations {
		if reg.Status == model.RegistrationStatusCancelled || seen[reg.EventID] {
			continue
		}
		own := reg.Attendee.UserID != nil && *reg.Attendee.UserID == userID
		if !own && (u == nil || reg.Attendee.Email != u.Email) {
			continue
		}
		seen[reg.EventID] = true
		res = append(res, *r.events[reg.EventID])
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Date.Before(res[j].Date) })
	return res, nil
}

// recomputeRating повторяет пересчёт рейтинга курса в транзакции записи отзыва.
func (r *fakeRepo) recomputeRating(courseID int64) {
	var ratings []int
	for _, rv := range r.reviews {
		if rv.CourseID == courseID && rv.IsApproved {
			ratings = append(ratings, rv.Rating)
		}
	}
	c := r.courses[courseID]
	c.RatingAverage = model.AverageRating(ratings)
	c.RatingCount = len(ratings)
}

func (r *fakeRepo) CreateReview(_ context.Context, rv *model.Review) (*model.Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.courses[rv.CourseID]; !ok {
		return nil, fmt.Errorf("%w: course %d", apperr.ErrNotFound, rv.CourseID)
	}
	for _, existing := range r.reviews {
		if existing.CourseID == rv.CourseID && existing.UserID == rv.UserID {
			return nil, fmt.Errorf("%w: course already reviewed", apperr.ErrConflict)
		}
	}

	cp := *rv
	cp.ID = r.id()
	r.reviews[cp.ID] = &cp
	r.recomputeRating(cp.CourseID)
	out := cp
	return &out, nil
}

func (r *fakeRepo) UpdateReview(_ context.Context, rv *model.Review) (*model.Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.reviews[rv.ID]
	if !ok {
		return nil, fmt.Errorf("%w: review %d", apperr.ErrNotFound, rv.ID)
	}
	existing.Rating = rv.Rating
	existing.Comment = rv.Comment
	r.recomputeRating(existing.CourseID)
	out := *existing
	return &out, nil
}

func (r *fakeRepo) DeleteReview(_ context.Context, id int64) (*model.Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rv, ok := r.reviews[id]
	if !ok {
		return nil, fmt.Errorf("%w: review %d", apperr.ErrNotFound, id)
	}
	delete(r.reviews, id)
	r.recomputeRating(rv.CourseID)
	return rv, nil
}

func (r *fakeRepo) GetReview(_ context.Context, id int64) (*model.Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rv, ok := r.reviews[id]
	if !ok {
		return nil, fmt.Errorf("%w: review %d", apperr.ErrNotFound, id)
	}
	cp := *rv
	return &cp, nil
}

func (r *fakeRepo) ListReviewsByCourse(_ context.Context, courseID int64, f model.ReviewFilter) (*model.ReviewPage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []model.Review
	for _, rv := range r.reviews {
		if rv.CourseID != courseID || !rv.IsApproved || (f.Rating != 0 && rv.Rating != f.Rating) {
			continue
		}
		all = append(all, *rv)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].HelpfulCount != all[j].HelpfulCount {
			return all[i].HelpfulCount > all[j].HelpfulCount
		}
		return all[i].ID > all[j].ID
	})

	page := &model.ReviewPage{Page: f.Page, Limit: f.Limit, Total: len(all)}
	from := min(f.Offset(), len(all))
	to := min(from+f.Limit, len(all))
	page.Reviews = all[from:to]
	return page, nil
}

func (r *fakeRepo) ListReviewsByUser(_ context.Context, userID int64) ([]model.Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.Review
	for _, rv := range r.reviews {
		if rv.UserID == userID {
			cp := *rv
			cp.CourseTitle = r.courses[rv.CourseID].Title
			res = append(res, cp)
		}
	}
	return res, nil
}

func (r *fakeRepo) ToggleReviewHelpful(_ context.Context, reviewID, userID int64) (*model.HelpfulVote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rv, ok := r.reviews[reviewID]
	if !ok {
		return nil, fmt.Errorf("%w: review %d", apperr.ErrNotFound, reviewID)
	}
	key := [2]int64{reviewID, userID}
	if r.helpful[key] {
		delete(r.helpful, key)
		rv.HelpfulCount--
	} else {
		r.helpful[key] = true
		rv.HelpfulCount++
	}
	return &model.HelpfulVote{HelpfulCount: rv.HelpfulCount, IsHelpful: r.helpful[key]}, nil
}

type stubNotifier struct {
	mu  sync.Mutex
	err error
	got []model.Notification
}

func (n *stubNotifier) SendConfirmation(_ context.Context, msg model.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, msg)
	return n.err
}

func (n *stubNotifier) SendVerificationResult(_ context.Context, msg model.Notification) error {
	return n.SendConfirmation(context.Background(), msg)
}

func (n *stubNotifier) kinds() []model.NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	var res []model.NotificationKind
	for _, msg := range n.got {
		res = append(res, msg.Kind)
	}
	return res
}

type memCache struct {
	mu          sync.Mutex
	items       map[string]any
	invalidated []string
	err         error
}

func newMemCache() *memCache {
	return &memCache{items: make(map[string]any)}
}

func (c *memCache) Get(_ context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return false, c.err
	}
	v, ok := c.items[key]
	if !ok {
		return false, nil
	}
	switch d := dst.(type) {
	case *model.Course:
		*d = *(v.(*model.Course))
	case *[]model.Course:
		*d = v.([]model.Course)
	default:
		return false, errors.New("unsupported cache type")
	}
	return true, nil
}

func (c *memCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return c.err
	}
	c.items[key] = value
	return nil
}

func (c *memCache) Invalidate(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, k := range keys {
		delete(c.items, k)
		c.invalidated = append(c.invalidated, k)
	}
	return c.err
}
