package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/mmeshcher/coursemart/internal/model"
	"github.com/mmeshcher/coursemart/internal/service"
)

type purchaseRequest struct {
	CourseID            int64    `json:"courseId" validate:"required,min=1"`
	PaymentMethod       string   `json:"paymentMethod" validate:"omitempty,oneof=credit_card debit_card paypal stripe yape plin other"`
	Amount              *float64 `json:"amount" validate:"omitempty,min=0,max=1000000"`
	Currency            string   `json:"currency" validate:"omitempty,len=3"`
	TransactionID       string   `json:"transactionId" validate:"omitempty,max=64"`
	YapePhone           string   `json:"yapePhone" validate:"omitempty,yape_phone"`
	YapeTransactionCode string   `json:"yapeTransactionCode" validate:"omitempty,op_code"`
	PaymentProofURL     string   `json:"paymentProofUrl" validate:"omitempty,url"`
}

type verifyRequest struct {
	Status string `json:"status" validate:"required,oneof=completed failed"`
	Notes  string `json:"notes" validate:"max=500"`
}

type refundRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type verificationResponse struct {
	VerifiedBy int64     `json:"verifiedBy"`
	VerifiedAt time.Time `json:"verifiedAt"`
	Notes      string    `json:"notes,omitempty"`
}

type purchaseResponse struct {
	ID                  int64                 `json:"id"`
	UserID              int64                 `json:"userId"`
	CourseID            int64                 `json:"courseId"`
	Amount              float64               `json:"amount"`
	Currency            string                `json:"currency"`
	PaymentMethod       model.PaymentMethod   `json:"paymentMethod"`
	Status              model.PurchaseStatus  `json:"status"`
	TransactionID       string                `json:"transactionId"`
	YapePhone           string                `json:"yapePhone,omitempty"`
	YapeTransactionCode string                `json:"yapeTransactionCode,omitempty"`
	PaymentProofURL     string                `json:"paymentProofUrl,omitempty"`
	Verification        *verificationResponse `json:"verification,omitempty"`
	PaymentDate         *time.Time            `json:"paymentDate,omitempty"`
	CompletedAt         *time.Time            `json:"completedAt,omitempty"`
	RefundDate          *time.Time            `json:"refundDate,omitempty"`
	RefundReason        string                `json:"refundReason,omitempty"`
	CreatedAt           time.Time             `json:"createdAt"`
}

type purchaseOutcomeResponse struct {
	Message  string           `json:"message"`
	Purchase purchaseResponse `json:"purchase"`
	Enrolled bool             `json:"enrolled"`
}

type pendingPurchaseResponse struct {
	purchaseResponse
	BuyerName   string  `json:"buyerName"`
	BuyerEmail  string  `json:"buyerEmail"`
	CourseTitle string  `json:"courseTitle"`
	CoursePrice float64 `json:"coursePrice"`
}

func newPurchaseResponse(p *model.Purchase) purchaseResponse {
	resp := purchaseResponse{
		ID:                  p.ID,
		UserID:              p.UserID,
		CourseID:            p.CourseID,
		Amount:              fromCents(p.AmountCents),
		Currency:            p.Currency,
		PaymentMethod:       p.PaymentMethod,
		Status:              p.Status,
		TransactionID:       p.TransactionID,
		YapePhone:           p.Proof.Phone,
		YapeTransactionCode: p.Proof.TransactionCode,
		PaymentProofURL:     p.Proof.ProofURL,
		PaymentDate:         p.PaymentDate,
		CompletedAt:         p.CompletedAt,
		RefundDate:          p.RefundDate,
		RefundReason:        p.RefundReason,
		CreatedAt:           p.CreatedAt,
	}
	if v := p.Verification; v != nil {
		resp.Verification = &verificationResponse{
			VerifiedBy: v.VerifiedBy,
			VerifiedAt: v.VerifiedAt,
			Notes:      v.Notes,
		}
	}
	return resp
}

func newPurchaseOutcomeResponse(out *model.PurchaseOutcome) purchaseOutcomeResponse {
	msg := "purchase completed"
	switch out.Purchase.Status {
	case model.PurchaseStatusPending:
		msg = "purchase pending verification"
	case model.PurchaseStatusFailed:
		msg = "payment rejected"
	}

	return purchaseOutcomeResponse{
		Message:  msg,
		Purchase: newPurchaseResponse(out.Purchase),
		Enrolled: out.Enrolled,
	}
}

// CreatePurchase оформляет покупку курса текущим пользователем.
func (h *Handler) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req purchaseRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	sreq := service.PurchaseRequest{
		CourseID:      req.CourseID,
		PaymentMethod: req.PaymentMethod,
		Currency:      req.Currency,
		TransactionID: req.TransactionID,
		Proof: model.PaymentProof{
			Phone:           req.YapePhone,
			TransactionCode: req.YapeTransactionCode,
			ProofURL:        req.PaymentProofURL,
		},
	}
	if req.Amount != nil {
		cents := toCents(*req.Amount)
		sreq.AmountCents = &cents
	}

	out, err := h.service.CreatePurchase(r.Context(), actor, sreq)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, newPurchaseOutcomeResponse(out))
}

// MyPurchases возвращает покупки текущего пользователя.
func (h *Handler) MyPurchases(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	purchases, err := h.service.GetMyPurchases(r.Context(), actor)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	resp := make([]purchaseResponse, 0, len(purchases))
	for i := range purchases {
		resp = append(resp, newPurchaseResponse(&purchases[i]))
	}

	render.JSON(w, r, resp)
}

// GetPurchase возвращает покупку владельцу или администратору.
func (h *Handler) GetPurchase(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}

	p, err := h.service.GetPurchase(r.Context(), actor, id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	render.JSON(w, r, newPurchaseResponse(p))
}

// RefundPurchase оформляет возврат завершённой покупки.
func (h *Handler) RefundPurchase(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}

	var req refundRequest
	if r.ContentLength != 0 {
		if !h.decodeAndValidate(w, r, &req) {
			return
		}
	}

	p, err := h.service.RefundPurchase(r.Context(), actor, id, req.Reason)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	render.JSON(w, r, newPurchaseResponse(p))
}

// PendingPurchases возвращает очередь покупок, ожидающих проверки.
func (h *Handler) PendingPurchases(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	pending, err := h.service.GetPendingPurchases(r.Context(), actor)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	resp := make([]pendingPurchaseResponse, 0, len(pending))
	for i := range pending {
		p := &pending[i]
		resp = append(resp, pendingPurchaseResponse{
			purchaseResponse: newPurchaseResponse(&p.Purchase),
			BuyerName:        p.BuyerName,
			BuyerEmail:       p.BuyerEmail,
			CourseTitle:      p.CourseTitle,
			CoursePrice:      fromCents(p.CoursePrice),
		})
	}

	render.JSON(w, r, resp)
}

// VerifyPurchase применяет решение администратора к ожидающей покупке.
func (h *Handler) VerifyPurchase(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}

	var req verifyRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	out, err := h.service.VerifyPurchase(r.Context(), actor, id, req.Status, req.Notes)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	render.JSON(w, r, newPurchaseOutcomeResponse(out))
}
