package model

import (
	"fmt"
	"time"
)

// PaymentMethod описывает способ оплаты покупки.
type PaymentMethod string

const (
	PaymentMethodCreditCard PaymentMethod = "credit_card"
	PaymentMethodDebitCard  PaymentMethod = "debit_card"
	PaymentMethodPayPal     PaymentMethod = "paypal"
	PaymentMethodStripe     PaymentMethod = "stripe"
	PaymentMethodYape       PaymentMethod = "yape"
	PaymentMethodPlin       PaymentMethod = "plin"
	PaymentMethodOther      PaymentMethod = "other"
)

// ParsePaymentMethod проверяет способ оплаты. Пустое значение означает credit_card.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	if s == "" {
		return PaymentMethodCreditCard, nil
	}
	m := PaymentMethod(s)
	switch m {
	case PaymentMethodCreditCard, PaymentMethodDebitCard, PaymentMethodPayPal,
		PaymentMethodStripe, PaymentMethodYape, PaymentMethodPlin, PaymentMethodOther:
		return m, nil
	}
	return "", fmt.Errorf("unknown payment method %q", s)
}

// RequiresVerification сообщает, что оплата подтверждается администратором вручную.
func (m PaymentMethod) RequiresVerification() bool {
	return m == PaymentMethodYape || m == PaymentMethodPlin
}

// InitialStatus возвращает статус, с которым создаётся покупка.
func (m PaymentMethod) InitialStatus() PurchaseStatus {
	if m.RequiresVerification() {
		return PurchaseStatusPending
	}
	return PurchaseStatusCompleted
}

// PurchaseStatus описывает состояние покупки.
type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "pending"
	PurchaseStatusCompleted PurchaseStatus = "completed"
	PurchaseStatusFailed    PurchaseStatus = "failed"
	PurchaseStatusRefunded  PurchaseStatus = "refunded"
)

// purchaseTransitions перечисляет все допустимые переходы. Остальные запрещены.
var purchaseTransitions = map[PurchaseStatus][]PurchaseStatus{
	PurchaseStatusPending:   {PurchaseStatusCompleted, PurchaseStatusFailed},
	PurchaseStatusCompleted: {PurchaseStatusRefunded},
	PurchaseStatusFailed:    nil,
	PurchaseStatusRefunded:  nil,
}

// CanTransitionTo сообщает, разрешён ли переход в состояние next.
func (s PurchaseStatus) CanTransitionTo(next PurchaseStatus) bool {
	for _, to := range purchaseTransitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// Terminal сообщает, что из состояния нет переходов.
func (s PurchaseStatus) Terminal() bool {
	return len(purchaseTransitions[s]) == 0
}

// ParseVerificationDecision проверяет решение администратора. Допустимы только completed и failed.
func ParseVerificationDecision(s string) (PurchaseStatus, error) {
	status := PurchaseStatus(s)
	if !PurchaseStatusPending.CanTransitionTo(status) {
		return "", fmt.Errorf("invalid verification status %q", s)
	}
	return status, nil
}

// PaymentProof содержит данные перевода Yape/Plin, указанные покупателем.
type PaymentProof struct {
	Phone           string
	TransactionCode string
	ProofURL        string
}

// Verification содержит данные проверки платежа администратором.
type Verification struct {
	VerifiedBy int64
	VerifiedAt time.Time
	Notes      string
}

// Purchase описывает покупку курса. Сумма хранится в центах.
type Purchase struct {
	ID            int64
	UserID        int64
	CourseID      int64
	AmountCents   int64
	Currency      string
	PaymentMethod PaymentMethod
	Status        PurchaseStatus
	TransactionID string
	Proof         PaymentProof
	Verification  *Verification
	PaymentDate   *time.Time
	CompletedAt   *time.Time
	RefundDate    *time.Time
	RefundReason  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PurchaseOutcome описывает результат операции над покупкой.
// Enrolled выставляется, только если зачисление действительно было добавлено.
type PurchaseOutcome struct {
	Purchase *Purchase
	Enrolled bool
}

// PendingPurchase дополняет покупку данными покупателя и курса для очереди проверки.
type PendingPurchase struct {
	Purchase
	BuyerName   string
	BuyerEmail  string
	CourseTitle string
	CoursePrice int64
}
