package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/coursemart/internal/apperr"
	"github.com/mmeshcher/coursemart/internal/metrics"
	"github.com/mmeshcher/coursemart/internal/model"
	"github.com/mmeshcher/coursemart/internal/validation"
)

const (
	defaultCurrency      = "USD"
	transactionSuffixLen = 9
)

// PurchaseRequest содержит данные новой покупки.
type PurchaseRequest struct {
	CourseID      int64
	PaymentMethod string
	// AmountCents равен nil, если сумма не указана: тогда используется цена курса.
	AmountCents   *int64
	Currency      string
	TransactionID string
	Proof         model.PaymentProof
}

// CreatePurchase оформляет покупку курса. Yape и Plin создают покупку в статусе pending,
// остальные способы оплаты завершают её сразу и зачисляют покупателя.
func (s *Service) CreatePurchase(ctx context.Context, actor model.Actor, req PurchaseRequest) (*model.PurchaseOutcome, error) {
	method, err := model.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}

	if err := validateProof(req.Proof); err != nil {
		return nil, err
	}

	course, err := s.repo.GetCourse(ctx, req.CourseID)
	if err != nil {
		return nil, err
	}
	if !course.IsActive {
		return nil, fmt.Errorf("%w: course %d", apperr.ErrNotFound, req.CourseID)
	}

	amount := course.PriceCents
	if req.AmountCents != nil {
		amount = *req.AmountCents
	}
	if amount < 0 {
		return nil, fmt.Errorf("%w: amount must not be negative", apperr.ErrValidation)
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = defaultCurrency
	}

	txID := strings.TrimSpace(req.TransactionID)
	if txID == "" {
		txID = s.newTransactionID()
	}

	now := s.now()
	p := &model.Purchase{
		UserID:        actor.UserID,
		CourseID:      course.ID,
		AmountCents:   amount,
		Currency:      currency,
		PaymentMethod: method,
		Status:        method.InitialStatus(),
		TransactionID: txID,
		Proof:         req.Proof,
	}
	if p.Status == model.PurchaseStatusCompleted {
		p.PaymentDate = &now
		p.CompletedAt = &now
	}

	out, err := s.repo.CreatePurchase(ctx, p)
	if err != nil {
		return nil, err
	}

	metrics.PurchasesCreated.WithLabelValues(string(method), string(out.Purchase.Status)).Inc()
	s.afterEnrollment(ctx, out)

	s.logger.Info("purchase created",
		zap.Int64("purchaseID", out.Purchase.ID),
		zap.Int64("userID", actor.UserID),
		zap.Int64("courseID", course.ID),
		zap.String("status", string(out.Purchase.Status)),
		zap.Bool("enrolled", out.Enrolled),
	)

	s.notifyBuyer(ctx, actor.UserID, model.Notification{
		Kind:       model.NotificationPurchaseCreated,
		PurchaseID: out.Purchase.ID,
		CourseID:   course.ID,
		Status:     string(out.Purchase.Status),
	})

	return out, nil
}

// VerifyPurchase фиксирует решение администратора по ожидающей покупке.
// Повторная проверка той же покупки завершается apperr.ErrInvalidState без побочных эффектов.
func (s *Service) VerifyPurchase(ctx context.Context, actor model.Actor, id int64, decision, notes string) (*model.PurchaseOutcome, error) {
	if !actor.Can(model.CapVerifyPayments) {
		return nil, fmt.Errorf("%w: only admins can verify payments", apperr.ErrForbidden)
	}

	status, err := model.ParseVerificationDecision(decision)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}

	out, err := s.repo.VerifyPurchase(ctx, id, status, model.Verification{
		VerifiedBy: actor.UserID,
		VerifiedAt: s.now(),
		Notes:      notes,
	})
	if err != nil {
		return nil, err
	}

	metrics.PurchaseTransitions.WithLabelValues(string(model.PurchaseStatusPending), string(status)).Inc()
	s.afterEnrollment(ctx, out)

	s.logger.Info("purchase verified",
		zap.Int64("purchaseID", id),
		zap.Int64("adminID", actor.UserID),
		zap.String("status", string(status)),
		zap.Bool("enrolled", out.Enrolled),
	)

	s.notifyBuyer(ctx, out.Purchase.UserID, model.Notification{
		Kind:       model.NotificationPurchaseVerified,
		PurchaseID: id,
		CourseID:   out.Purchase.CourseID,
		Status:     string(status),
		Notes:      notes,
	})

	return out, nil
}

// RefundPurchase возвращает завершённую покупку. Вернуть покупку может только её покупатель.
func (s *Service) RefundPurchase(ctx context.Context, actor model.Actor, id int64, reason string) (*model.Purchase, error) {
	p, err := s.repo.RefundPurchase(ctx, id, actor.UserID, strings.TrimSpace(reason), s.now())
	if err != nil {
		return nil, err
	}

	metrics.PurchaseTransitions.WithLabelValues(string(model.PurchaseStatusCompleted), string(model.PurchaseStatusRefunded)).Inc()
	s.invalidateCourse(ctx, p.CourseID)

	s.logger.Info("purchase refunded",
		zap.Int64("purchaseID", id),
		zap.Int64("userID", actor.UserID),
		zap.Int64("courseID", p.CourseID),
	)

	s.notifyBuyer(ctx, p.UserID, model.Notification{
		Kind:       model.NotificationPurchaseRefunded,
		PurchaseID: p.ID,
		CourseID:   p.CourseID,
		Status:     string(p.Status),
		Notes:      p.RefundReason,
	})

	return p, nil
}

// GetPurchase возвращает покупку её владельцу или администратору.
func (s *Service) GetPurchase(ctx context.Context, actor model.Actor, id int64) (*model.Purchase, error) {
	p, err := s.repo.GetPurchase(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.UserID != actor.UserID && !actor.Can(model.CapViewAnyPurchase) {
		return nil, fmt.Errorf("%w: purchase %d belongs to another user", apperr.ErrForbidden, id)
	}

	return p, nil
}

// GetMyPurchases возвращает историю покупок пользователя.
func (s *Service) GetMyPurchases(ctx context.Context, actor model.Actor) ([]model.Purchase, error) {
	return s.repo.ListPurchasesByUser(ctx, actor.UserID)
}

// GetPendingPurchases возвращает очередь покупок, ожидающих проверки.
func (s *Service) GetPendingPurchases(ctx context.Context, actor model.Actor) ([]model.PendingPurchase, error) {
	if !actor.Can(model.CapVerifyPayments) {
		return nil, fmt.Errorf("%w: only admins can view pending payments", apperr.ErrForbidden)
	}
	return s.repo.ListPendingPurchases(ctx)
}

func (s *Service) afterEnrollment(ctx context.Context, out *model.PurchaseOutcome) {
	if !out.Enrolled {
		return
	}
	metrics.Enrollments.Inc()
	s.invalidateCourse(ctx, out.Purchase.CourseID)
}

// newTransactionID формирует идентификатор вида TXN-<unix millis>-<9 символов A-Z0-9>.
func (s *Service) newTransactionID() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:transactionSuffixLen]
	return fmt.Sprintf("TXN-%d-%s", s.now().UnixMilli(), suffix)
}

func validateProof(p model.PaymentProof) error {
	if p.Phone != "" && !validation.IsYapePhone(p.Phone) {
		return fmt.Errorf("%w: yape phone must contain 9 digits", apperr.ErrValidation)
	}
	if p.TransactionCode != "" && !validation.IsOperationCode(p.TransactionCode) {
		return fmt.Errorf("%w: transaction code must contain 6 digits", apperr.ErrValidation)
	}
	return nil
}
