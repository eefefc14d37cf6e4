package service

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/coursemart/internal/apperr"
	"github.com/mmeshcher/coursemart/internal/model"
)

var fixedNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	svc      *Service
	repo     *fakeRepo
	notifier *stubNotifier
	cache    *memCache

	admin  model.Actor
	buyer  model.Actor
	course *model.Course
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo := newFakeRepo()
	notifier := &stubNotifier{}
	cache := newMemCache()
	svc := NewService(repo, nil,
		WithNotifier(notifier),
		WithCache(cache, time.Hour),
		WithClock(func() time.Time { return fixedNow }),
	)

	ctx := context.Background()
	adminID, err := repo.CreateUser(ctx, &model.User{Email: "admin@example.com", FirstName: "Admin", Role: model.RoleAdmin, IsActive: true})
	require.NoError(t, err)
	buyerID, err := repo.CreateUser(ctx, &model.User{Email: "ana@example.com", FirstName: "Ana", Role: model.RoleStudent, IsActive: true})
	require.NoError(t, err)

	course, err := svc.CreateCourse(ctx, model.Actor{UserID: adminID, Role: model.RoleAdmin}, &model.Course{
		Title:       "Go desde cero",
		Description: "Curso de Go",
		Category:    model.CourseCategoryProgramming,
		PriceCents:  5000,
		Instructor:  "Luis",
	})
	require.NoError(t, err)

	return &testEnv{
		svc:      svc,
		repo:     repo,
		notifier: notifier,
		cache:    cache,
		admin:    model.Actor{UserID: adminID, Role: model.RoleAdmin},
		buyer:    model.Actor{UserID: buyerID, Role: model.RoleStudent},
		course:   course,
	}
}

func (e *testEnv) enrollments(t *testing.T) []model.Enrollment {
	t.Helper()
	u, err := e.repo.GetUserByID(context.Background(), e.buyer.UserID)
	require.NoError(t, err)
	return u.EnrolledCourses
}

func (e *testEnv) counters(t *testing.T) (int, int) {
	t.Helper()
	c, err := e.repo.GetCourse(context.Background(), e.course.ID)
	require.NoError(t, err)
	return c.StudentsCount, c.StudentsActive
}

func TestCreatePurchase_YapeThenVerifyIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	out, err := env.svc.CreatePurchase(ctx, env.buyer, PurchaseRequest{
		CourseID:      env.course.ID,
		PaymentMethod: "yape",
		Proof:         model.PaymentProof{Phone: "987654321", TransactionCode: "123456"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseStatusPending, out.Purchase.Status)
	assert.Equal(t, int64(5000), out.Purchase.AmountCents)
	assert.False(t, out.Enrolled)
	assert.Empty(t, env.enrollments(t))

	verified, err := env.svc.VerifyPurchase(ctx, env.admin, out.Purchase.ID, "completed", "ok")
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseStatusCompleted, verified.Purchase.Status)
	assert.True(t, verified.Enrolled)
	require.NotNil(t, verified.Purchase.Verification)
	assert.Equal(t, env.admin.UserID, verified.Purchase.Verification.VerifiedBy)

	enrollments := env.enrollments(t)
	require.Len(t, enrollments, 1)
	assert.Equal(t, 0, enrollments[0].Progress)
	assert.False(t, enrollments[0].Completed)

	count, active := env.counters(t)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, active)

	_, err = env.svc.VerifyPurchase(ctx, env.admin, out.Purchase.ID, "completed", "otra vez")
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	assert.Len(t, env.enrollments(t), 1)
	count, _ = env.counters(t)
	assert.Equal(t, 1, count)
}

func TestCreatePurchase_CreditCardEnrollsDirectly(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.svc.CreatePurchase(context.Background(), env.buyer, PurchaseRequest{
		CourseID:      env.course.ID,
		PaymentMethod: "credit_card",
	})
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseStatusCompleted, out.Purchase.Status)
	assert.True(t, out.Enrolled)
	require.NotNil(t, out.Purchase.CompletedAt)
	assert.Equal(t, fixedNow, *out.Purchase.CompletedAt)

	assert.Len(t, env.enrollments(t), 1)
	count, active := env.counters(t)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, active)
}

func TestCreatePurchase_DefaultsToCreditCard(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.svc.CreatePurchase(context.Background(), env.buyer, PurchaseRequest{CourseID: env.course.ID})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentMethodCreditCard, out.Purchase.PaymentMethod)
	assert.Equal(t, "USD", out.Purchase.Currency)
}

func TestCreatePurchase_GeneratesTransactionID(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.svc.CreatePurchase(context.Background(), env.buyer, PurchaseRequest{CourseID: env.course.ID})
	require.NoError(t, err)

	re := regexp.MustCompile(`^TXN-\d+-[A-Z0-9]{9}$`)
	assert.Regexp(t, re, out.Purchase.TransactionID)
	assert.Contains(t, out.Purchase.TransactionID, "TXN-1773482400000-")
}

func TestCreatePurchase_Validation(t *testing.T) {
	env := newTestEnv(t)
	negative := int64(-1)

	tests := []struct {
		name    string
		req     PurchaseRequest
		wantErr error
	}{
		{
			name:    "unknown method",
			req:     PurchaseRequest{CourseID: env.course.ID, PaymentMethod: "bitcoin"},
			wantErr: apperr.ErrValidation,
		},
		{
			name:    "negative amount",
			req:     PurchaseRequest{CourseID: env.course.ID, AmountCents: &negative},
			wantErr: apperr.ErrValidation,
		},
		{
			name: "bad yape phone",
			req: PurchaseRequest{
				CourseID:      env.course.ID,
				PaymentMethod: "yape",
				Proof:         model.PaymentProof{Phone: "123"},
			},
			wantErr: apperr.ErrValidation,
		},
		{
			name:    "missing course",
			req:     PurchaseRequest{CourseID: 404},
			wantErr: apperr.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.CreatePurchase(context.Background(), env.buyer, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCreatePurchase_InactiveCourse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.svc.DeleteCourse(ctx, env.admin, env.course.ID))

	_, err := env.svc.CreatePurchase(ctx, env.buyer, PurchaseRequest{CourseID: env.course.ID})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCreatePurchase_DuplicateConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.CreatePurchase(ctx, env.buyer, PurchaseRequest{CourseID: env.course.ID})
	require.NoError(t, err)

	_, err = env.svc.CreatePurchase(ctx, env.buyer, PurchaseRequest{CourseID: env.course.ID, PaymentMethod: "yape"})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Len(t, env.enrollments(t), 1)
}

func TestVerifyPurchase_Failed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	out, err := env.svc.CreatePurchase(ctx, env.buyer, PurchaseRequest{CourseID: env.course.ID, PaymentMethod: "plin"})
	require.NoError(t, err)

	verified, err := env.svc.VerifyPurchase(ctx, env.admin, out.Purchase.ID, "failed", "código inválido")
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseStatusFailed, verified.Purchase.Status)
	assert.False(t, verified.Enrolled)
	assert.Empty(t, env.enrollments(t))

	_, err = env.svc.VerifyPurchase(ctx, env.admin, out.Purchase.ID, "completed", "")
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestVerifyPurchase_Rules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	out, err := env.svc.CreatePurchase(ctx, env.buyer, PurchaseRequest{CourseID: env.course.ID, PaymentMethod: "yape"})
	require.NoError(t, err)

	_, err = env.svc.VerifyPurchase(ctx, env.buyer, out.Purchase.ID, "completed", "")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = env.svc.VerifyPurchase(ctx, env.admin, out.Purchase.ID, "refunded", "")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = env.svc.VerifyPurchase(ctx, env.admin, 999, "completed", "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	instructor := model.Actor{UserID: 77, Role: model.RoleInstructor}
	_, err = env.svc.VerifyPurchase(ctx, instructor, out.Purchase.ID, "completed", "")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestVerifyPurchase_ConcurrentCallsEnrollOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	out, err := env.svc.CreatePurchase(ctx, env.buyer, PurchaseRequest{CourseID: env.course.ID, PaymentMethod: "yape"})
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.svc.VerifyPurchase(ctx, env.admin, out.Purchase.ID, "completed", ""); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Len(t, env.enrollments(t), 1)
	count, _ := env.counters(t)
	assert.Equal(t, 1, count)
}

func TestRefundPurchase(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	out, err := env.svc.CreatePurchase(ctx, env.buyer, PurchaseRequest{CourseID: env.course.ID})
	require.NoError(t, err)

	other := model.Actor{UserID: 999, Role: model.RoleStudent}
	_, err = env.svc.RefundPurchase(ctx, other, out.Purchase.ID, "no")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	refunded, err := env.svc.RefundPurchase(ctx, env.buyer, out.Purchase.ID, " cambio de planes ")
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseStatusRefunded, refunded.Status)
	assert.Equal(t, "cambio de planes", refunded.RefundReason)
	require.NotNil(t, refunded.RefundDate)
	assert.Empty(t, env.enrollments(t))

	count, active := env.counters(t)
	assert.Equal(t, 1, count, "students count is never decremented")
	assert.Equal(t, 0, active)

	_, err = env.svc.RefundPurchase(ctx, env.buyer, out.Purchase.ID, "otra vez")
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	assert.Equal(t, []model.NotificationKind{
		model.NotificationPurchaseCreated,
		model.NotificationPurchaseRefunded,
	}, env.notifier.kinds(), "failed refunds send nothing")

	last := env.notifier.got[len(env.notifier.got)-1]
	assert.Equal(t, "ana@example.com", last.Email)
	assert.Equal(t, out.Purchase.ID, last.PurchaseID)
	assert.Equal(t, string(model.PurchaseStatusRefunded), last.Status)
	assert.Equal(t, "cambio de planes", last.Notes)
}

func TestRefundPurchase_PendingIsInvalidState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	out, err := env.svc.CreatePurchase(ctx, env.buyer, PurchaseRequest{CourseID: env.course.ID, PaymentMethod: "yape"})
	require.NoError(t, err)

	_, err = env.svc.RefundPurchase(ctx, env.buyer, out.Purchase.ID, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	p, err := env.repo.GetPurchase(ctx, out.Purchase.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseStatusPending, p.Status)
}

func TestPurchase_RebuyAfterRefund(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.svc.CreatePurchase(ctx, env.buyer, PurchaseRequest{CourseID: env.course.ID})
	require.NoError(t, err)
	_, err = env.svc.RefundPurchase(ctx, env.buyer, first.Purchase.ID, "")
	require.NoError(t, err)

	second, err := env.svc.CreatePurchase(ctx, env.buyer, PurchaseRequest{CourseID: env.course.ID})
	require.NoError(t, err)
	assert.True(t, second.Enrolled)
	assert.Len(t, env.enrollments(t), 1)

	count, active := env.counters(t)
	assert.Equal(t, 2, count)
	assert.Equal(t, 1, active)
}

func TestNotificationFailureDoesNotFailOperation(t *testing.T) {
	env := newTestEnv(t)
	env.notifier.err = errors.New("smtp down")
	ctx := context.Background()

	out, err := env.svc.CreatePurchase(ctx, env.buyer, PurchaseRequest{CourseID: env.course.ID, PaymentMethod: "yape"})
	require.NoError(t, err)

	verified, err := env.svc.VerifyPurchase(ctx, env.admin, out.Purchase.ID, "completed", "")
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseStatusCompleted, verified.Purchase.Status)
	assert.Len(t, env.enrollments(t), 1)

	assert.Equal(t, []model.NotificationKind{
		model.NotificationPurchaseCreated,
		model.NotificationPurchaseVerified,
	}, env.notifier.kinds())
}

func TestBuyerLookupFailureSkipsNotification(t *testing.T) {
	env := newTestEnv(t)
	env.repo.failGetUser = errors.New("db down")

	_, err := env.svc.CreatePurchase(context.Background(), env.buyer, PurchaseRequest{CourseID: env.course.ID})
	require.NoError(t, err)
	assert.Empty(t, env.notifier.kinds())
}

func TestStorageFailureIsReturned(t *testing.T) {
	env := newTestEnv(t)
	stepErr := &apperr.StepError{Op: "create purchase", Step: "enroll", Completed: []string{"check existing", "insert purchase"}, Err: errors.New("connection reset")}
	env.repo.failPurchase = stepErr

	_, err := env.svc.CreatePurchase(context.Background(), env.buyer, PurchaseRequest{CourseID: env.course.ID})

	var got *apperr.StepError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, "enroll", got.Step)
	assert.Empty(t, env.notifier.kinds())
}

func TestGetPurchase_Access(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	out, err := env.svc.CreatePurchase(ctx, env.buyer, PurchaseRequest{CourseID: env.course.ID})
	require.NoError(t, err)

	_, err = env.svc.GetPurchase(ctx, env.buyer, out.Purchase.ID)
	assert.NoError(t, err)

	_, err = env.svc.GetPurchase(ctx, env.admin, out.Purchase.ID)
	assert.NoError(t, err)

	_, err = env.svc.GetPurchase(ctx, model.Actor{UserID: 555, Role: model.RoleStudent}, out.Purchase.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestGetPendingPurchases(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.CreatePurchase(ctx, env.buyer, PurchaseRequest{CourseID: env.course.ID, PaymentMethod: "yape"})
	require.NoError(t, err)

	pending, err := env.svc.GetPendingPurchases(ctx, env.admin)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, env.course.Title, pending[0].CourseTitle)

	_, err = env.svc.GetPendingPurchases(ctx, env.buyer)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestEnrollmentInvalidatesCourseCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.GetCourse(ctx, env.course.ID)
	require.NoError(t, err)
	env.cache.invalidated = nil

	_, err = env.svc.CreatePurchase(ctx, env.buyer, PurchaseRequest{CourseID: env.course.ID})
	require.NoError(t, err)
	assert.Contains(t, env.cache.invalidated, courseCacheKey(env.course.ID))

	c, err := env.svc.GetCourse(ctx, env.course.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, c.StudentsCount)
}

func TestPing_WithoutPingerRepository(t *testing.T) {
	env := newTestEnv(t)
	assert.NoError(t, env.svc.Ping(context.Background()))
}
