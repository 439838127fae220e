package filter

import (
	"fmt"

	"applypilot-engine/internal/domain"
)

// Accepts decides whether a listing is worth scoring at all. Pure: no
// network, no ledger. The returned reason is empty iff keep is true.
func Accepts(listing domain.Listing, policy domain.Policy) (keep bool, reason string) {
	// 1) Posting age (biggest filter). Boundary is inclusive: a listing
	// posted exactly max_days_posted days ago still passes.
	if listing.PostedDaysAgo > policy.MaxDaysPosted {
		return false, fmt.Sprintf("posted %d days ago (>%d)", listing.PostedDaysAgo, policy.MaxDaysPosted)
	}

	// 2) Competition level. Unknown counts pass.
	if policy.MaxApplicants != domain.MaxApplicantsUnlimited &&
		listing.ApplicantCount != domain.ApplicantsUnknown &&
		listing.ApplicantCount > policy.MaxApplicants {
		return false, fmt.Sprintf("%d applicants (>%d)", listing.ApplicantCount, policy.MaxApplicants)
	}

	// 3) Excluded companies (case-insensitive exact match)
	if policy.ExcludesCompany(listing.Company) {
		return false, fmt.Sprintf("excluded company: %s", listing.Company)
	}

	// 4) Minimum viable posting — skip listings too thin to score
	if listing.Title == "" {
		return false, "missing title"
	}
	if listing.Company == "" {
		return false, "missing company"
	}
	if policy.MinDescriptionLen > 0 && listing.HasDescription() &&
		len(listing.Description) < policy.MinDescriptionLen {
		return false, fmt.Sprintf("description too short (<%d chars)", policy.MinDescriptionLen)
	}

	return true, ""
}
