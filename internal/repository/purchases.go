package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/coursemart/internal/apperr"
	"github.com/mmeshcher/coursemart/internal/model"
)

const purchaseColumns = `id, user_id, course_id, amount, currency, payment_method, status, transaction_id,
	yape_phone, yape_transaction_code, payment_proof_url, verified_by, verified_at, verification_notes,
	payment_date, completed_at, refund_date, refund_reason, created_at, updated_at`

func scanPurchase(row pgx.Row) (*model.Purchase, error) {
	var (
		p              model.Purchase
		method, status string
		verifiedBy     *int64
		verifiedAt     *time.Time
		notes          string
	)
	err := row.Scan(&p.ID, &p.UserID, &p.CourseID, &p.AmountCents, &p.Currency, &method, &status,
		&p.TransactionID, &p.Proof.Phone, &p.Proof.TransactionCode, &p.Proof.ProofURL,
		&verifiedBy, &verifiedAt, &notes, &p.PaymentDate, &p.CompletedAt, &p.RefundDate,
		&p.RefundReason, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.PaymentMethod = model.PaymentMethod(method)
	p.Status = model.PurchaseStatus(status)
	if verifiedBy != nil && verifiedAt != nil {
		p.Verification = &model.Verification{
			VerifiedBy: *verifiedBy,
			VerifiedAt: *verifiedAt,
			Notes:      notes,
		}
	}
	return &p, nil
}

// CreatePurchase сохраняет покупку. Если покупка создаётся завершённой, в той же транзакции
// выполняется зачисление и, если оно добавлено, увеличиваются счётчики курса.
func (r *PostgresRepository) CreatePurchase(ctx context.Context, p *model.Purchase) (*model.PurchaseOutcome, error) {
	var out model.PurchaseOutcome

	err := r.inTx(ctx, "create purchase",
		step{"check existing", func(ctx context.Context, tx pgx.Tx) error {
			var status string
			err := tx.QueryRow(ctx,
				`SELECT status FROM purchases
				 WHERE user_id = $1 AND course_id = $2 AND status IN ($3, $4)`,
				p.UserID, p.CourseID,
				string(model.PurchaseStatusPending), string(model.PurchaseStatusCompleted),
			).Scan(&status)
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("select existing purchase: %w", err)
			}
			return existingPurchaseConflict(model.PurchaseStatus(status))
		}},
		step{"insert purchase", func(ctx context.Context, tx pgx.Tx) error {
			created, err := scanPurchase(tx.QueryRow(ctx,
				`INSERT INTO purchases (user_id, course_id, amount, currency, payment_method, status,
				                        transaction_id, yape_phone, yape_transaction_code, payment_proof_url,
				                        payment_date, completed_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
				 RETURNING `+purchaseColumns,
				p.UserID, p.CourseID, p.AmountCents, p.Currency, string(p.PaymentMethod), string(p.Status),
				p.TransactionID, p.Proof.Phone, p.Proof.TransactionCode, p.Proof.ProofURL,
				p.PaymentDate, p.CompletedAt,
			))
			if err != nil {
				switch {
				case isUniqueViolation(err, "purchases_active_uniq"):
					return fmt.Errorf("%w: course already purchased or pending verification", apperr.ErrConflict)
				case isUniqueViolation(err, "purchases_transaction_id_key"):
					return fmt.Errorf("%w: transaction id %s already used", apperr.ErrConflict, p.TransactionID)
				case isForeignKeyViolation(err):
					return fmt.Errorf("%w: course %d or user %d", apperr.ErrNotFound, p.CourseID, p.UserID)
				}
				return fmt.Errorf("insert purchase: %w", err)
			}
			out.Purchase = created
			return nil
		}},
		step{"enroll", func(ctx context.Context, tx pgx.Tx) error {
			if out.Purchase.Status != model.PurchaseStatusCompleted {
				return nil
			}
			var err error
			out.Enrolled, err = enroll(ctx, tx, p.UserID, p.CourseID, out.Purchase.CreatedAt)
			return err
		}},
		step{"count student", func(ctx context.Context, tx pgx.Tx) error {
			if !out.Enrolled {
				return nil
			}
			return countStudent(ctx, tx, p.CourseID)
		}},
	)
	if err != nil {
		return nil, err
	}

	return &out, nil
}

func existingPurchaseConflict(status model.PurchaseStatus) error {
	if status == model.PurchaseStatusPending {
		return fmt.Errorf("%w: purchase already pending verification", apperr.ErrConflict)
	}
	return fmt.Errorf("%w: course already purchased", apperr.ErrConflict)
}

// VerifyPurchase переводит ожидающую покупку в completed или failed.
// Переход выполняется первым и условно (WHERE status = 'pending'), поэтому повторный или
// параллельный вызов не находит строку и завершается с apperr.ErrInvalidState без побочных эффектов.
func (r *PostgresRepository) VerifyPurchase(ctx context.Context, id int64, decision model.PurchaseStatus, v model.Verification) (*model.PurchaseOutcome, error) {
	if !model.PurchaseStatusPending.CanTransitionTo(decision) {
		return nil, fmt.Errorf("%w: invalid verification status %q", apperr.ErrValidation, decision)
	}

	var out model.PurchaseOutcome

	err := r.inTx(ctx, "verify purchase",
		step{"transition", func(ctx context.Context, tx pgx.Tx) error {
			p, err := scanPurchase(tx.QueryRow(ctx,
				`UPDATE purchases
				 SET status = $3,
				     verified_by = $4,
				     verified_at = $5,
				     verification_notes = $6,
				     payment_date = CASE WHEN $3 = $7 THEN $5 ELSE payment_date END,
				     completed_at = CASE WHEN $3 = $7 THEN $5 ELSE completed_at END,
				     updated_at = NOW()
				 WHERE id = $1 AND status = $2
				 RETURNING `+purchaseColumns,
				id, string(model.PurchaseStatusPending), string(decision),
				v.VerifiedBy, v.VerifiedAt, v.Notes, string(model.PurchaseStatusCompleted),
			))
			if errors.Is(err, pgx.ErrNoRows) {
				return classifyPurchaseMiss(ctx, tx, id, 0, model.PurchaseStatusPending)
			}
			if err != nil {
				return fmt.Errorf("update purchase status: %w", err)
			}
			out.Purchase = p
			return nil
		}},
		step{"enroll", func(ctx context.Context, tx pgx.Tx) error {
			if decision != model.PurchaseStatusCompleted {
				return nil
			}
			var err error
			out.Enrolled, err = enroll(ctx, tx, out.Purchase.UserID, out.Purchase.CourseID, v.VerifiedAt)
			return err
		}},
		step{"count student", func(ctx context.Context, tx pgx.Tx) error {
			if !out.Enrolled {
				return nil
			}
			return countStudent(ctx, tx, out.Purchase.CourseID)
		}},
	)
	if err != nil {
		return nil, err
	}

	return &out, nil
}

// RefundPurchase возвращает завершённую покупку её покупателю и удаляет зачисление.
func (r *PostgresRepository) RefundPurchase(ctx context.Context, id, buyerID int64, reason string, at time.Time) (*model.Purchase, error) {
	var (
		p        *model.Purchase
		released bool
	)

	err := r.inTx(ctx, "refund purchase",
		step{"transition", func(ctx context.Context, tx pgx.Tx) error {
			var err error
			p, err = scanPurchase(tx.QueryRow(ctx,
				`UPDATE purchases
				 SET status = $4, refund_date = $5, refund_reason = $6, updated_at = NOW()
				 WHERE id = $1 AND user_id = $2 AND status = $3
				 RETURNING `+purchaseColumns,
				id, buyerID, string(model.PurchaseStatusCompleted), string(model.PurchaseStatusRefunded),
				at, reason,
			))
			if errors.Is(err, pgx.ErrNoRows) {
				return classifyPurchaseMiss(ctx, tx, id, buyerID, model.PurchaseStatusCompleted)
			}
			if err != nil {
				return fmt.Errorf("update purchase status: %w", err)
			}
			return nil
		}},
		step{"unenroll", func(ctx context.Context, tx pgx.Tx) error {
			var err error
			released, err = unenroll(ctx, tx, p.UserID, p.CourseID)
			return err
		}},
		step{"release student", func(ctx context.Context, tx pgx.Tx) error {
			if !released {
				return nil
			}
			return releaseStudent(ctx, tx, p.CourseID)
		}},
	)
	if err != nil {
		return nil, err
	}

	return p, nil
}

// classifyPurchaseMiss объясняет, почему условный переход не нашёл строку.
// buyerID == 0 отключает проверку владельца.
func classifyPurchaseMiss(ctx context.Context, tx pgx.Tx, id, buyerID int64, want model.PurchaseStatus) error {
	var (
		owner  int64
		status string
	)
	err := tx.QueryRow(ctx, `SELECT user_id, status FROM purchases WHERE id = $1`, id).Scan(&owner, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: purchase %d", apperr.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("select purchase: %w", err)
	}

	if buyerID != 0 && owner != buyerID {
		return fmt.Errorf("%w: purchase %d belongs to another user", apperr.ErrForbidden, id)
	}

	return fmt.Errorf("%w: purchase is not %s (status %s)", apperr.ErrInvalidState, want, status)
}

// GetPurchase возвращает покупку по идентификатору.
func (r *PostgresRepository) GetPurchase(ctx context.Context, id int64) (*model.Purchase, error) {
	p, err := scanPurchase(r.pool.QueryRow(ctx,
		`SELECT `+purchaseColumns+` FROM purchases WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: purchase %d", apperr.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get purchase: %w", err)
	}
	return p, nil
}

// ListPurchasesByUser возвращает историю покупок пользователя, новые первыми.
func (r *PostgresRepository) ListPurchasesByUser(ctx context.Context, userID int64) ([]model.Purchase, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+purchaseColumns+`
		 FROM purchases
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select purchases: %w", err)
	}
	defer rows.Close()

	var res []model.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		res = append(res, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ListPendingPurchases возвращает очередь покупок, ожидающих проверки, новые первыми.
func (r *PostgresRepository) ListPendingPurchases(ctx context.Context) ([]model.PendingPurchase, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT p.id, p.user_id, p.course_id, p.amount, p.currency, p.payment_method, p.status,
		        p.transaction_id, p.yape_phone, p.yape_transaction_code, p.payment_proof_url,
		        p.created_at, u.first_name || ' ' || u.last_name, u.email, c.title, c.price
		 FROM purchases p
		 JOIN users u ON u.id = p.user_id
		 JOIN courses c ON c.id = p.course_id
		 WHERE p.status = $1
		 ORDER BY p.created_at DESC`,
		string(model.PurchaseStatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("select pending purchases: %w", err)
	}
	defer rows.Close()

	var res []model.PendingPurchase
	for rows.Next() {
		var (
			pp             model.PendingPurchase
			method, status string
		)
		if err := rows.Scan(&pp.ID, &pp.UserID, &pp.CourseID, &pp.AmountCents, &pp.Currency, &method, &status,
			&pp.TransactionID, &pp.Proof.Phone, &pp.Proof.TransactionCode, &pp.Proof.ProofURL,
			&pp.CreatedAt, &pp.BuyerName, &pp.BuyerEmail, &pp.CourseTitle, &pp.CoursePrice); err != nil {
			return nil, fmt.Errorf("scan pending purchase: %w", err)
		}
		pp.PaymentMethod = model.PaymentMethod(method)
		pp.Status = model.PurchaseStatus(status)
		res = append(res, pp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
