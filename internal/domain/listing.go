package domain

// ApplicantsUnknown marks a listing whose applicant count could not be
// scraped. Unknown counts pass the applicant filter.
const ApplicantsUnknown = -1

// Listing is one scraped posting. ID is the sole identity key: two listings
// with the same ID are the same posting regardless of other field drift
// across runs.
type Listing struct {
	ID             string
	Title          string
	Company        string
	LocationRaw    string
	PostedDaysAgo  int
	ApplicantCount int // ApplicantsUnknown if not scraped
	SalaryMin      int
	SalaryMax      int
	DetailURL      string
	Description    string
	Source         string // linkedin/greenhouse/alerts
}

// HasDescription reports whether the description was already fetched.
// Sources may defer the detail fetch until the listing survives filtering.
func (l Listing) HasDescription() bool {
	return l.Description != ""
}
