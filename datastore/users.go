package datastore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/coreybb/signet/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

type UserRepository struct {
	db *sql.DB // The actual database connection pool
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, created_at, name, emails, github_id, github_username, company_id`

func scanUser(row interface{ Scan(...any) error }) (models.User, error) {
	var (
		user      models.User
		emails    pq.StringArray
		githubID  sql.NullInt64
		companyID sql.NullString
	)
	err := row.Scan(&user.ID, &user.CreatedAt, &user.Name, &emails, &githubID, &user.GitHubUsername, &companyID)
	if err != nil {
		return user, err
	}
	user.Emails = []string(emails)
	if user.Emails == nil {
		user.Emails = []string{}
	}
	if githubID.Valid {
		id := githubID.Int64
		user.GitHubID = &id
	}
	if companyID.Valid {
		id := companyID.String
		user.CompanyID = &id
	}
	return user, nil
}

func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	if _, err := uuid.Parse(user.ID); err != nil {
		return fmt.Errorf("invalid user ID format: %w", err)
	}
	if user.CompanyID != nil {
		if _, err := uuid.Parse(*user.CompanyID); err != nil {
			return fmt.Errorf("invalid company ID format: %w", err)
		}
	}
	if len(user.Emails) == 0 && user.GitHubID == nil {
		return fmt.Errorf("user needs at least one email or a GitHub ID")
	}

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.CreatedAt, user.Name, pq.Array(user.Emails),
		user.GitHubID, user.GitHubUsername, user.CompanyID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", classifyWriteError(err))
	}
	return nil
}

// GetUserByID retrieves a user by their ID.
func (r *UserRepository) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("invalid user ID format: %w", err)
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}
	return &user, nil
}

// GetUserByGitHubID retrieves the user linked to a GitHub account.
func (r *UserRepository) GetUserByGitHubID(ctx context.Context, githubID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE github_id = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, githubID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get user by GitHub ID %d: %w", githubID, err)
	}
	return &user, nil
}

// GetUserByEmail retrieves the user owning an email address. The comparison
// is exact, matching how approval lists treat addresses.
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	if email == "" {
		return nil, fmt.Errorf("email cannot be empty")
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE emails @> ARRAY[$1]::TEXT[] ORDER BY created_at ASC LIMIT 1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) GetUsers(ctx context.Context) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, user)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}

	return users, nil
}
