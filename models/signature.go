package models

import (
	"strings"
	"time"

	"github.com/coreybb/signet/whitelist"
)

// SignatureType distinguishes individual from corporate agreements.
type SignatureType string

const (
	SignatureTypeICLA SignatureType = "icla"
	SignatureTypeCCLA SignatureType = "ccla"
)

// Signature records an ICLA (ReferenceID is a user) or a CCLA (ReferenceID
// is a company) for a project. Only CCLAs carry an approval list.
type Signature struct {
	ID              string            `json:"id"`
	CreatedAt       time.Time         `json:"created_at"`
	ProjectID       string            `json:"project_id"`
	Type            SignatureType     `json:"type"`
	ReferenceID     string            `json:"reference_id"`
	Signed          bool              `json:"signed"`
	Approved        bool              `json:"approved"`
	SignedAt        *time.Time        `json:"signed_at,omitempty"`
	DocumentPath    string            `json:"document_path,omitempty"`
	ApprovalList    whitelist.Entries `json:"approval_list"`
	GitHubUsernames []string          `json:"github_usernames"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Active reports whether the signature currently grants coverage.
func (s *Signature) Active() bool {
	return s.Signed && s.Approved
}

// IsValidSignatureType returns the typed SignatureType and true if typeStr
// names one, otherwise an empty type and false.
func IsValidSignatureType(typeStr string) (SignatureType, bool) {
	st := SignatureType(strings.ToLower(typeStr))
	switch st {
	case SignatureTypeICLA, SignatureTypeCCLA:
		return st, true
	default:
		return "", false
	}
}
