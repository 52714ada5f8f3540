package domain

// TaxonomyKind classifies a failure for user-facing surfaces
type TaxonomyKind string

const (
	TaxonomyNetwork    TaxonomyKind = "NETWORK"
	TaxonomyHTTP4xx    TaxonomyKind = "HTTP_4XX"
	TaxonomyHTTP5xx    TaxonomyKind = "HTTP_5XX"
	TaxonomyValidation TaxonomyKind = "VALIDATION"
	TaxonomyAuth       TaxonomyKind = "AUTH"
	TaxonomyUnknown    TaxonomyKind = "UNKNOWN"

	// Handshake-specific kinds
	TaxonomyPopupBlocked TaxonomyKind = "POPUP_BLOCKED"
	TaxonomyTimedOut     TaxonomyKind = "TIMED_OUT"
	TaxonomyCancelled    TaxonomyKind = "CANCELLED"
)

// ErrorTaxonomyEntry is the classified, user-facing description of a
// failure. Every surfaced failure carries a deterministic message and
// a non-empty list of suggested actions - never a raw transport error.
type ErrorTaxonomyEntry struct {
	Kind             TaxonomyKind `json:"kind"`
	IsRetryable      bool         `json:"is_retryable"`
	UserMessage      string       `json:"user_message"`
	SuggestedActions []string     `json:"suggested_actions"`
}
