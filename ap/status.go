package ap

import "fmt"

// =============================================================================
// INVOICE STATUS - Closed set, see CanTransition for the allowed edges
// =============================================================================

type Status string

const (
	StatusIngested                Status = "ingested"
	StatusMatching                Status = "matching"
	StatusNeedsReview             Status = "needs_review"
	StatusMatched                 Status = "matched"
	StatusRejected                Status = "rejected"
	StatusPendingVendorResponse   Status = "pending_vendor_response"
	StatusPendingInternalResponse Status = "pending_internal_response"
	StatusPendingPayment          Status = "pending_payment"
	StatusPaid                    Status = "paid"
)

// AllStatuses lists every valid status in lifecycle order.
var AllStatuses = []Status{
	StatusIngested,
	StatusMatching,
	StatusNeedsReview,
	StatusMatched,
	StatusRejected,
	StatusPendingVendorResponse,
	StatusPendingInternalResponse,
	StatusPendingPayment,
	StatusPaid,
}

// ParseStatus rejects anything outside the closed set. Matching is exact:
// surrounding whitespace or a different case is an invalid status.
func ParseStatus(s string) (Status, error) {
	candidate := Status(s)
	for _, st := range AllStatuses {
		if st == candidate {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

var transitions = map[Status][]Status{
	StatusIngested:                {StatusMatching},
	StatusMatching:                {StatusNeedsReview, StatusMatched},
	StatusNeedsReview:             {StatusMatched, StatusRejected, StatusPendingVendorResponse, StatusPendingInternalResponse},
	StatusPendingVendorResponse:   {StatusNeedsReview, StatusMatched, StatusRejected},
	StatusPendingInternalResponse: {StatusNeedsReview, StatusMatched, StatusRejected},
	StatusMatched:                 {StatusPendingPayment},
	StatusPendingPayment:          {StatusPaid},
}

// CanTransition reports whether from -> to is a legal edge. Any status may be
// forced back to matching by a re-match request.
func CanTransition(from, to Status) bool {
	if to == StatusMatching {
		return true
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsApproved reports whether the invoice has cleared review, for duplicate detection.
func (s Status) IsApproved() bool {
	return s == StatusMatched || s == StatusPendingPayment || s == StatusPaid
}

// =============================================================================
// REVIEW CATEGORY
// =============================================================================

// ReviewCategory explains why an invoice needs attention. Empty means unset.
type ReviewCategory string

const (
	CategoryMissingDocument ReviewCategory = "missing_document"
	CategoryPolicyViolation ReviewCategory = "policy_violation"
	CategoryDataMismatch    ReviewCategory = "data_mismatch"
)

func ParseReviewCategory(s string) (ReviewCategory, error) {
	switch c := ReviewCategory(s); c {
	case CategoryMissingDocument, CategoryPolicyViolation, CategoryDataMismatch:
		return c, nil
	}
	return "", fmt.Errorf("%w: unknown review category %q", ErrInvalidInput, s)
}
