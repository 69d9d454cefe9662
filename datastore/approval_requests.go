package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/coreybb/signet/models"
	"github.com/coreybb/signet/whitelist"
	"github.com/google/uuid"
)

// ApprovalRequestRepository handles database operations for the approval_requests table.
type ApprovalRequestRepository struct {
	db *sql.DB
}

func NewApprovalRequestRepository(db *sql.DB) *ApprovalRequestRepository {
	return &ApprovalRequestRepository{db: db}
}

const approvalRequestColumns = `id, created_at, signature_id, user_id, email, message, status, decided_at`

func scanApprovalRequest(row interface{ Scan(...any) error }) (models.ApprovalRequest, error) {
	var req models.ApprovalRequest
	var status string
	err := row.Scan(&req.ID, &req.CreatedAt, &req.SignatureID, &req.UserID, &req.Email, &req.Message, &status, &req.DecidedAt)
	req.Status = models.ApprovalRequestStatus(status)
	return req, err
}

func (r *ApprovalRequestRepository) CreateApprovalRequest(ctx context.Context, req *models.ApprovalRequest) error {
	if _, err := uuid.Parse(req.ID); err != nil {
		return fmt.Errorf("invalid approval request ID format: %w", err)
	}
	if _, err := uuid.Parse(req.SignatureID); err != nil {
		return fmt.Errorf("invalid signature ID format: %w", err)
	}
	if _, err := uuid.Parse(req.UserID); err != nil {
		return fmt.Errorf("invalid user ID format: %w", err)
	}
	if req.Email == "" {
		return fmt.Errorf("approval request email cannot be empty")
	}

	query := `
		INSERT INTO approval_requests (` + approvalRequestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		req.ID, req.CreatedAt, req.SignatureID, req.UserID, req.Email, req.Message, string(req.Status), req.DecidedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert approval request: %w", classifyWriteError(err))
	}
	return nil
}

func (r *ApprovalRequestRepository) GetApprovalRequestByID(ctx context.Context, requestID string) (*models.ApprovalRequest, error) {
	if _, err := uuid.Parse(requestID); err != nil {
		return nil, fmt.Errorf("invalid approval request ID format: %w", err)
	}

	query := `SELECT ` + approvalRequestColumns + ` FROM approval_requests WHERE id = $1`
	req, err := scanApprovalRequest(r.db.QueryRowContext(ctx, query, requestID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("approval request not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get approval request by ID: %w", err)
	}
	return &req, nil
}

// GetApprovalRequestsBySignatureID lists requests against a CCLA, newest first.
func (r *ApprovalRequestRepository) GetApprovalRequestsBySignatureID(ctx context.Context, signatureID string) ([]models.ApprovalRequest, error) {
	if _, err := uuid.Parse(signatureID); err != nil {
		return nil, fmt.Errorf("invalid signature ID format: %w", err)
	}

	query := `SELECT ` + approvalRequestColumns + ` FROM approval_requests WHERE signature_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, signatureID)
	if err != nil {
		return nil, fmt.Errorf("failed to query approval requests for signature %s: %w", signatureID, err)
	}
	defer rows.Close()

	reqs := []models.ApprovalRequest{}
	for rows.Next() {
		req, err := scanApprovalRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval request row: %w", err)
		}
		reqs = append(reqs, req)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating approval request rows: %w", err)
	}
	return reqs, nil
}

// DecideApprovalRequest moves a pending request to approved or rejected
// without touching the approval list. Use ApproveApprovalRequest to approve
// and add the address in one step.
func (r *ApprovalRequestRepository) DecideApprovalRequest(ctx context.Context, requestID string, status models.ApprovalRequestStatus, decidedAt time.Time) error {
	if _, err := uuid.Parse(requestID); err != nil {
		return fmt.Errorf("invalid approval request ID format: %w", err)
	}
	if status != models.ApprovalRequestStatusApproved && status != models.ApprovalRequestStatusRejected {
		return fmt.Errorf("invalid approval decision: %s", status)
	}

	query := `UPDATE approval_requests SET status = $2, decided_at = $3 WHERE id = $1 AND status = 'pending'`
	result, err := r.db.ExecContext(ctx, query, requestID, string(status), decidedAt)
	if err != nil {
		return fmt.Errorf("failed to update approval request %s: %w", requestID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for approval request %s: %w", requestID, err)
	}
	if rowsAffected == 0 {
		return r.notPendingError(ctx, r.db, requestID)
	}
	return nil
}

// ApproveApprovalRequest approves a pending request and adds its address to
// the CCLA approval list as a literal entry. Both writes share a transaction,
// so a failed list edit leaves the request pending. Returns the updated
// signature.
func (r *ApprovalRequestRepository) ApproveApprovalRequest(ctx context.Context, requestID string, decidedAt time.Time) (*models.Signature, error) {
	if _, err := uuid.Parse(requestID); err != nil {
		return nil, fmt.Errorf("invalid approval request ID format: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var signatureID, email string
	lock := `SELECT signature_id, email FROM approval_requests WHERE id = $1 AND status = 'pending' FOR UPDATE`
	if err := tx.QueryRowContext(ctx, lock, requestID).Scan(&signatureID, &email); err != nil {
		if err == sql.ErrNoRows {
			return nil, r.notPendingError(ctx, tx, requestID)
		}
		return nil, fmt.Errorf("failed to lock approval request %s: %w", requestID, err)
	}

	entry := whitelist.Literal(email)
	sig, err := modifyApprovalListTx(ctx, tx, signatureID, func(sig *models.Signature) error {
		if !sig.ApprovalList.Contains(entry) {
			sig.ApprovalList = append(sig.ApprovalList, entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add %s to approval list of %s: %w", email, signatureID, err)
	}

	update := `UPDATE approval_requests SET status = $2, decided_at = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, update, requestID, string(models.ApprovalRequestStatusApproved), decidedAt); err != nil {
		return nil, fmt.Errorf("failed to update approval request %s: %w", requestID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit approval of request %s: %w", requestID, err)
	}
	return sig, nil
}

// notPendingError tells a missing request (sql.ErrNoRows) from one that was
// already decided (ErrNotPending).
func (r *ApprovalRequestRepository) notPendingError(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, requestID string) error {
	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM approval_requests WHERE id = $1)`, requestID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check approval request %s: %w", requestID, err)
	}
	if !exists {
		return fmt.Errorf("approval request not found (ID: %s): %w", requestID, sql.ErrNoRows)
	}
	return fmt.Errorf("approval request %s: %w", requestID, ErrNotPending)
}
