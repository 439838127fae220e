package domain

import "strings"

// MaxApplicantsUnlimited disables the applicant-count cap.
const MaxApplicantsUnlimited = 0

// Policy is the per-tenant pipeline configuration, built once at run start
// and immutable afterward. Nothing in the pipeline reads ambient state.
type Policy struct {
	TenantID string

	SearchQuery string
	MaxPages    int

	MaxDaysPosted     int
	MaxApplicants     int // MaxApplicantsUnlimited means no cap
	MinDescriptionLen int
	ExcludedCompanies []string

	SendThreshold  float64
	PromptTemplate string
	ResumeText     string

	SenderName   string
	SenderEmail  string
	EmailSubject string
	AttachResume bool
}

// ExcludesCompany does a case-insensitive match against the excluded set.
func (p Policy) ExcludesCompany(company string) bool {
	c := strings.ToLower(strings.TrimSpace(company))
	for _, e := range p.ExcludedCompanies {
		if strings.ToLower(strings.TrimSpace(e)) == c {
			return true
		}
	}
	return false
}

// Credentials holds per-tenant secrets, resolved from the keyring at run
// start and passed explicitly alongside the policy.
type Credentials struct {
	OracleAPIKey   string
	ResolverAPIKey string
	SMTPPassword   string
	SessionCookie  string // listing source session token, optional
}
