package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	rh "github.com/coreybb/signet/route-handlers"
	"github.com/coreybb/signet/webhooks"
	"github.com/coreybb/signet/webutil"
)

const (
	apiBasePath              = "/api"
	projectsBasePath         = "/projects"
	companiesBasePath        = "/companies"
	usersBasePath            = "/users"
	signaturesBasePath       = "/signatures"
	approvalRequestsBasePath = "/approval-requests"
	eventsBasePath           = "/events"
	webhooksGitHubPath       = "/webhooks/github"
)

const (
	repositoriesSubPath     = "/repositories"
	signaturesSubPath       = "/signatures"
	signSubPath             = "/sign"
	documentSubPath         = "/document"
	approvalListSubPath     = "/approval-list"
	approvalCheckSubPath    = "/approval-list/check"
	approvalRequestsSubPath = "/approval-requests"
	approveSubPath          = "/approve"
	rejectSubPath           = "/reject"
)

const (
	paramID = "id" // General parameter name for resource IDs

	requestTimeout = 60 * time.Second
)

// Handlers groups every HTTP handler the router serves.
type Handlers struct {
	Projects         *rh.ProjectHandler
	Companies        *rh.CompanyHandler
	Users            *rh.UserHandler
	Signatures       *rh.SignatureHandler
	ApprovalLists    *rh.ApprovalListHandler
	ApprovalRequests *rh.ApprovalRequestHandler
	Events           *rh.EventHandler
	GitHub           *webhooks.GitHubHandler
}

// SetupRoutes builds the router. Everything under /api requires adminToken
// when one is set; the GitHub webhook authenticates by payload signature.
func SetupRoutes(h Handlers, adminToken string) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)                                                 // Log every request
	r.Use(middleware.Recoverer)                                              // Recover from panics
	r.Use(middleware.Timeout(requestTimeout))                                // Set a timeout context for requests
	r.Use(SetHeader(webutil.HeaderContentType, webutil.ContentTypeJSONUTF8)) // Default Content-Type

	r.Route(apiBasePath, func(r chi.Router) {
		r.Use(RequireBearerToken(adminToken))

		configureProjectRoutes(r, h.Projects)
		configureCompanyRoutes(r, h.Companies)
		configureUserRoutes(r, h.Users)
		configureSignatureRoutes(r, h.Signatures, h.ApprovalLists, h.ApprovalRequests)
		configureApprovalRequestRoutes(r, h.ApprovalRequests)
		r.Get(eventsBasePath, webutil.MakeHandler(h.Events.HandleGetEvents))
	})

	if h.GitHub != nil {
		r.Post(webhooksGitHubPath, webutil.MakeHandler(h.GitHub.HandleEvent))
	}

	// Health check endpoint
	r.Get("/healthz", handleHealthCheck)

	return r
}

// Helper for constructing paths with a parameter
func pathWithParam(basePath string, paramName string) string {
	if basePath == "" {
		return "/{" + paramName + "}"
	}
	return basePath + "/{" + paramName + "}"
}

// --- Project Routes ---
func configureProjectRoutes(r chi.Router, handler *rh.ProjectHandler) {
	r.Route(projectsBasePath, func(r chi.Router) {
		r.Get("/", webutil.MakeHandler(handler.HandleGetProjects))
		r.Post("/", webutil.MakeHandler(handler.HandleCreateProject))
		r.Route(pathWithParam("", paramID), func(r chi.Router) {
			r.Get("/", webutil.MakeHandler(handler.HandleGetProject))
			r.Delete("/", webutil.MakeHandler(handler.HandleDeleteProject))
			r.Get(repositoriesSubPath, webutil.MakeHandler(handler.HandleGetRepositories))    // GET /projects/{id}/repositories
			r.Post(repositoriesSubPath, webutil.MakeHandler(handler.HandleCreateRepository))  // POST /projects/{id}/repositories
			r.Get(signaturesSubPath, webutil.MakeHandler(handler.HandleGetProjectSignatures)) // GET /projects/{id}/signatures
		})
	})
}

// --- Company Routes ---
func configureCompanyRoutes(r chi.Router, handler *rh.CompanyHandler) {
	r.Route(companiesBasePath, func(r chi.Router) {
		r.Get("/", webutil.MakeHandler(handler.HandleGetCompanies))
		r.Post("/", webutil.MakeHandler(handler.HandleCreateCompany))
		r.Get(pathWithParam("", paramID), webutil.MakeHandler(handler.HandleGetCompany))
	})
}

// --- User Routes ---
func configureUserRoutes(r chi.Router, handler *rh.UserHandler) {
	r.Route(usersBasePath, func(r chi.Router) {
		r.Get("/", webutil.MakeHandler(handler.HandleGetUsers))
		r.Post("/", webutil.MakeHandler(handler.HandleCreateUser))
		r.Get(pathWithParam("", paramID), webutil.MakeHandler(handler.HandleGetUser))
	})
}

// --- Signature Routes, including approval lists and requests ---
func configureSignatureRoutes(r chi.Router, sigs *rh.SignatureHandler, lists *rh.ApprovalListHandler, requests *rh.ApprovalRequestHandler) {
	r.Route(signaturesBasePath, func(r chi.Router) {
		r.Post("/", webutil.MakeHandler(sigs.HandleCreateSignature))
		r.Route(pathWithParam("", paramID), func(r chi.Router) {
			r.Get("/", webutil.MakeHandler(sigs.HandleGetSignature))
			r.Post(signSubPath, webutil.MakeHandler(sigs.HandleSignSignature))        // POST /signatures/{id}/sign
			r.Put(documentSubPath, webutil.MakeHandler(sigs.HandleUploadDocument))    // PUT /signatures/{id}/document
			r.Get(documentSubPath, webutil.MakeHandler(sigs.HandleDownloadDocument))  // GET /signatures/{id}/document

			r.Get(approvalListSubPath, webutil.MakeHandler(lists.HandleGetApprovalList))
			r.Post(approvalListSubPath, webutil.MakeHandler(lists.HandleAddApprovalListEntry))
			r.Delete(approvalListSubPath, webutil.MakeHandler(lists.HandleRemoveApprovalListEntry))
			r.Post(approvalCheckSubPath, webutil.MakeHandler(lists.HandleCheckApprovalList))

			r.Get(approvalRequestsSubPath, webutil.MakeHandler(requests.HandleGetApprovalRequests))
			r.Post(approvalRequestsSubPath, webutil.MakeHandler(requests.HandleCreateApprovalRequest))
		})
	})
}

// --- Approval Request Decisions ---
func configureApprovalRequestRoutes(r chi.Router, handler *rh.ApprovalRequestHandler) {
	r.Route(approvalRequestsBasePath+pathWithParam("", paramID), func(r chi.Router) {
		r.Post(approveSubPath, webutil.MakeHandler(handler.HandleApproveRequest)) // POST /approval-requests/{id}/approve
		r.Post(rejectSubPath, webutil.MakeHandler(handler.HandleRejectRequest))   // POST /approval-requests/{id}/reject
	})
}

// --- Utility Functions ---

// handleHealthCheck responds to a health check request.
func handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(webutil.HeaderContentType, webutil.ContentTypeTextPlainUTF8)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
