package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/coreybb/signet/models"
	"github.com/coreybb/signet/whitelist"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// SignatureRepository handles database operations for ICLA and CCLA signatures.
type SignatureRepository struct {
	db *sql.DB
}

func NewSignatureRepository(db *sql.DB) *SignatureRepository {
	return &SignatureRepository{db: db}
}

const signatureColumns = `id, created_at, updated_at, project_id, signature_type, reference_id,
	signed, approved, signed_at, document_path, approval_list, github_usernames`

func scanSignature(row interface{ Scan(...any) error }) (models.Signature, error) {
	var (
		sig       models.Signature
		sigType   string
		usernames pq.StringArray
	)
	err := row.Scan(&sig.ID, &sig.CreatedAt, &sig.UpdatedAt, &sig.ProjectID, &sigType, &sig.ReferenceID,
		&sig.Signed, &sig.Approved, &sig.SignedAt, &sig.DocumentPath, &sig.ApprovalList, &usernames)
	if err != nil {
		return sig, err
	}
	sig.Type = models.SignatureType(sigType)
	sig.GitHubUsernames = []string(usernames)
	if sig.GitHubUsernames == nil {
		sig.GitHubUsernames = []string{}
	}
	return sig, nil
}

func (r *SignatureRepository) CreateSignature(ctx context.Context, sig *models.Signature) error {
	if _, err := uuid.Parse(sig.ID); err != nil {
		return fmt.Errorf("invalid signature ID format: %w", err)
	}
	if _, err := uuid.Parse(sig.ProjectID); err != nil {
		return fmt.Errorf("invalid project ID format: %w", err)
	}
	if _, err := uuid.Parse(sig.ReferenceID); err != nil {
		return fmt.Errorf("invalid reference ID format: %w", err)
	}
	if _, ok := models.IsValidSignatureType(string(sig.Type)); !ok {
		return fmt.Errorf("invalid signature type: %s. Must be one of: %s, %s",
			sig.Type, models.SignatureTypeICLA, models.SignatureTypeCCLA)
	}
	if sig.UpdatedAt.IsZero() {
		sig.UpdatedAt = sig.CreatedAt
	}

	query := `
		INSERT INTO signatures (` + signatureColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.ExecContext(ctx, query,
		sig.ID, sig.CreatedAt, sig.UpdatedAt, sig.ProjectID, string(sig.Type), sig.ReferenceID,
		sig.Signed, sig.Approved, sig.SignedAt, sig.DocumentPath, sig.ApprovalList, pq.Array(sig.GitHubUsernames),
	)
	if err != nil {
		return fmt.Errorf("failed to insert signature: %w", classifyWriteError(err))
	}
	return nil
}

func (r *SignatureRepository) GetSignatureByID(ctx context.Context, signatureID string) (*models.Signature, error) {
	if _, err := uuid.Parse(signatureID); err != nil {
		return nil, fmt.Errorf("invalid signature ID format: %w", err)
	}

	query := `SELECT ` + signatureColumns + ` FROM signatures WHERE id = $1`
	sig, err := scanSignature(r.db.QueryRowContext(ctx, query, signatureID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("signature not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get signature by ID: %w", err)
	}
	return &sig, nil
}

// GetSignaturesByProjectID retrieves every signature filed against a project.
func (r *SignatureRepository) GetSignaturesByProjectID(ctx context.Context, projectID string) ([]models.Signature, error) {
	if _, err := uuid.Parse(projectID); err != nil {
		return nil, fmt.Errorf("invalid project ID format: %w", err)
	}

	query := `SELECT ` + signatureColumns + ` FROM signatures WHERE project_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query signatures for project %s: %w", projectID, err)
	}
	defer rows.Close()

	sigs := []models.Signature{}
	for rows.Next() {
		sig, err := scanSignature(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signature row for project %s: %w", projectID, err)
		}
		sigs = append(sigs, sig)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signature rows for project %s: %w", projectID, err)
	}
	return sigs, nil
}

// GetSignature finds the signature of the given type that referenceID
// (a user for ICLAs, a company for CCLAs) holds on a project.
func (r *SignatureRepository) GetSignature(ctx context.Context, projectID string, sigType models.SignatureType, referenceID string) (*models.Signature, error) {
	if _, err := uuid.Parse(projectID); err != nil {
		return nil, fmt.Errorf("invalid project ID format: %w", err)
	}
	if _, err := uuid.Parse(referenceID); err != nil {
		return nil, fmt.Errorf("invalid reference ID format: %w", err)
	}

	query := `SELECT ` + signatureColumns + `
		FROM signatures
		WHERE project_id = $1 AND signature_type = $2 AND reference_id = $3`
	sig, err := scanSignature(r.db.QueryRowContext(ctx, query, projectID, string(sigType), referenceID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("signature not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get %s signature for %s: %w", sigType, referenceID, err)
	}
	return &sig, nil
}

// MarkSigned records that the signatory completed the agreement. Signing an
// already signed agreement fails with ErrAlreadySigned and keeps the
// original signed_at.
func (r *SignatureRepository) MarkSigned(ctx context.Context, signatureID string, signedAt time.Time) error {
	if _, err := uuid.Parse(signatureID); err != nil {
		return fmt.Errorf("invalid signature ID format: %w", err)
	}

	query := `UPDATE signatures SET signed = TRUE, signed_at = $2, updated_at = $2 WHERE id = $1 AND signed = FALSE`
	result, err := r.db.ExecContext(ctx, query, signatureID, signedAt)
	if err != nil {
		return fmt.Errorf("failed to mark signature %s signed: %w", signatureID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for signature %s: %w", signatureID, err)
	}
	if rowsAffected == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM signatures WHERE id = $1)`, signatureID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check signature %s: %w", signatureID, err)
	}
	if !exists {
		return fmt.Errorf("signature not found (ID: %s): %w", signatureID, sql.ErrNoRows)
	}
	return fmt.Errorf("signature %s: %w", signatureID, ErrAlreadySigned)
}

// SetDocumentPath stores where the signed document was saved.
func (r *SignatureRepository) SetDocumentPath(ctx context.Context, signatureID string, path string) error {
	if _, err := uuid.Parse(signatureID); err != nil {
		return fmt.Errorf("invalid signature ID format: %w", err)
	}

	query := `UPDATE signatures SET document_path = $2, updated_at = $3 WHERE id = $1`
	return r.execOne(ctx, signatureID, query, signatureID, path, time.Now().UTC())
}

// ModifyApprovalList loads a CCLA under a row lock, lets modify edit its
// approval list and GitHub usernames, and writes the result back in the
// same transaction. Concurrent edits to one list are serialized.
func (r *SignatureRepository) ModifyApprovalList(ctx context.Context, signatureID string, modify func(sig *models.Signature) error) (*models.Signature, error) {
	if _, err := uuid.Parse(signatureID); err != nil {
		return nil, fmt.Errorf("invalid signature ID format: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sig, err := modifyApprovalListTx(ctx, tx, signatureID, modify)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit approval list update: %w", err)
	}
	return sig, nil
}

// modifyApprovalListTx is the body of ModifyApprovalList, run inside tx so
// other writes can commit or roll back together with the list edit.
func modifyApprovalListTx(ctx context.Context, tx *sql.Tx, signatureID string, modify func(sig *models.Signature) error) (*models.Signature, error) {
	query := `SELECT ` + signatureColumns + ` FROM signatures WHERE id = $1 FOR UPDATE`
	sig, err := scanSignature(tx.QueryRowContext(ctx, query, signatureID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("signature not found: %w", err)
		}
		return nil, fmt.Errorf("failed to lock signature %s: %w", signatureID, err)
	}
	if sig.Type != models.SignatureTypeCCLA {
		return nil, fmt.Errorf("signature %s: %w", signatureID, ErrNotCorporate)
	}

	if err := modify(&sig); err != nil {
		return nil, err
	}
	if sig.ApprovalList == nil {
		sig.ApprovalList = whitelist.Entries{}
	}
	sig.UpdatedAt = time.Now().UTC()

	update := `UPDATE signatures SET approval_list = $2, github_usernames = $3, updated_at = $4 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, update, sig.ID, sig.ApprovalList, pq.Array(sig.GitHubUsernames), sig.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to update approval list for signature %s: %w", signatureID, err)
	}
	return &sig, nil
}

func (r *SignatureRepository) execOne(ctx context.Context, signatureID, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update signature %s: %w", signatureID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for signature %s: %w", signatureID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("signature not found (ID: %s): %w", signatureID, sql.ErrNoRows)
	}
	return nil
}
