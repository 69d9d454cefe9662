package datastore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/coreybb/signet/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

type CompanyRepository struct {
	db *sql.DB
}

func NewCompanyRepository(db *sql.DB) *CompanyRepository {
	return &CompanyRepository{db: db}
}

const companyColumns = `id, created_at, name, signatory_email, manager_emails`

func scanCompany(row interface{ Scan(...any) error }) (models.Company, error) {
	var c models.Company
	var managers pq.StringArray
	err := row.Scan(&c.ID, &c.CreatedAt, &c.Name, &c.SignatoryEmail, &managers)
	c.ManagerEmails = []string(managers)
	if c.ManagerEmails == nil {
		c.ManagerEmails = []string{}
	}
	return c, err
}

func (r *CompanyRepository) CreateCompany(ctx context.Context, company *models.Company) error {
	if _, err := uuid.Parse(company.ID); err != nil {
		return fmt.Errorf("invalid company ID format: %w", err)
	}
	if company.Name == "" {
		return fmt.Errorf("company name cannot be empty")
	}
	if company.SignatoryEmail == "" {
		return fmt.Errorf("company signatory email cannot be empty")
	}

	query := `
		INSERT INTO companies (` + companyColumns + `)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query,
		company.ID, company.CreatedAt, company.Name, company.SignatoryEmail, pq.Array(company.ManagerEmails),
	)
	if err != nil {
		return fmt.Errorf("failed to insert company: %w", classifyWriteError(err))
	}
	return nil
}

func (r *CompanyRepository) GetCompanyByID(ctx context.Context, companyID string) (*models.Company, error) {
	if _, err := uuid.Parse(companyID); err != nil {
		return nil, fmt.Errorf("invalid company ID format: %w", err)
	}

	query := `SELECT ` + companyColumns + ` FROM companies WHERE id = $1`
	company, err := scanCompany(r.db.QueryRowContext(ctx, query, companyID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("company not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get company by ID: %w", err)
	}
	return &company, nil
}

func (r *CompanyRepository) GetCompanies(ctx context.Context) ([]models.Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies ORDER BY name ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query companies: %w", err)
	}
	defer rows.Close()

	companies := []models.Company{}
	for rows.Next() {
		company, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan company row: %w", err)
		}
		companies = append(companies, company)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating company rows: %w", err)
	}
	return companies, nil
}
