package notify

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/microcosm-cc/bluemonday"
)

// Requesters may format their note; anything beyond basic user-generated
// markup is stripped.
var messagePolicy = bluemonday.UGCPolicy()

func sanitizeMessage(msg string) template.HTML {
	return template.HTML(messagePolicy.Sanitize(msg))
}

type approvalRequestedData struct {
	ProjectName string
	CompanyName string
	Email       string
	Message     template.HTML
	ReviewURL   string
}

type approvalDecidedData struct {
	ProjectName string
	CompanyName string
	Approved    bool
}

var (
	approvalRequestedTmpl = template.Must(template.New("approval_requested").Parse(`<p>Hello {{.CompanyName}} CLA managers,</p>
<p><strong>{{.Email}}</strong> asked to be added to the approval list of your corporate CLA for <strong>{{.ProjectName}}</strong>.</p>
{{if .Message}}<blockquote>{{.Message}}</blockquote>{{end}}
<p>Review the request: <a href="{{.ReviewURL}}">{{.ReviewURL}}</a></p>`))

	approvalDecidedTmpl = template.Must(template.New("approval_decided").Parse(`<p>Hello,</p>
{{if .Approved}}<p>{{.CompanyName}} added you to its corporate CLA approval list for <strong>{{.ProjectName}}</strong>. Your contributions are now covered.</p>
{{else}}<p>{{.CompanyName}} declined your request to be added to its corporate CLA approval list for <strong>{{.ProjectName}}</strong>.</p>
{{end}}`))
)

func renderApprovalRequested(data approvalRequestedData) (string, error) {
	var buf bytes.Buffer
	if err := approvalRequestedTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render approval request email: %w", err)
	}
	return buf.String(), nil
}

func renderApprovalDecided(data approvalDecidedData) (string, error) {
	var buf bytes.Buffer
	if err := approvalDecidedTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render approval decision email: %w", err)
	}
	return buf.String(), nil
}
