package routehandlers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/coreybb/signet/models"
	"github.com/coreybb/signet/webutil"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type CompanyStore interface {
	CreateCompany(ctx context.Context, company *models.Company) error
	GetCompanies(ctx context.Context) ([]models.Company, error)
	GetCompanyByID(ctx context.Context, companyID string) (*models.Company, error)
}

type CompanyHandler struct {
	Repo   CompanyStore
	Events EventRecorder
}

func NewCompanyHandler(repo CompanyStore, events EventRecorder) *CompanyHandler {
	return &CompanyHandler{Repo: repo, Events: events}
}

type createCompanyRequest struct {
	Name           string   `json:"name"`
	SignatoryEmail string   `json:"signatory_email"`
	ManagerEmails  []string `json:"manager_emails"`
}

// HandleCreateCompany registers a company that can sign corporate CLAs.
// Example route: POST /api/companies
func (h *CompanyHandler) HandleCreateCompany(w http.ResponseWriter, r *http.Request) error {
	var req createCompanyRequest
	if err := webutil.DecodeJSON(r, &req); err != nil {
		return err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return webutil.ErrBadRequest("Name is required")
	}
	signatory := strings.TrimSpace(req.SignatoryEmail)
	if !looksLikeEmail(signatory) {
		return webutil.ErrBadRequest("A valid signatory_email is required")
	}
	managers, err := normalizeEmails(req.ManagerEmails)
	if err != nil {
		return err
	}

	company := models.Company{
		ID:             uuid.NewString(),
		CreatedAt:      time.Now().UTC(),
		Name:           name,
		SignatoryEmail: signatory,
		ManagerEmails:  managers,
	}
	if err := h.Repo.CreateCompany(r.Context(), &company); err != nil {
		return fmt.Errorf("failed to create company %s: %w", name, err)
	}

	recordEvent(r.Context(), h.Events, models.EventCompanyCreated,
		eventRefs{CompanyID: company.ID},
		fmt.Sprintf("Company %s created", company.Name))

	log.Printf("INFO: Company created: %s (%s)", company.Name, company.ID)
	webutil.RespondWithJSON(w, http.StatusCreated, company)
	return nil
}

func (h *CompanyHandler) HandleGetCompanies(w http.ResponseWriter, r *http.Request) error {
	companies, err := h.Repo.GetCompanies(r.Context())
	if err != nil {
		return fmt.Errorf("failed to retrieve companies: %w", err)
	}
	if companies == nil {
		companies = []models.Company{}
	}
	webutil.RespondWithJSON(w, http.StatusOK, companies)
	return nil
}

func (h *CompanyHandler) HandleGetCompany(w http.ResponseWriter, r *http.Request) error {
	companyID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(companyID); err != nil {
		return webutil.ErrBadRequest("Invalid company ID format")
	}

	company, err := h.Repo.GetCompanyByID(r.Context(), companyID)
	if err != nil {
		return fmt.Errorf("failed to retrieve company %s: %w", companyID, err)
	}
	webutil.RespondWithJSON(w, http.StatusOK, company)
	return nil
}
