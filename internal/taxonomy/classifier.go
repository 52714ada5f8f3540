// Package taxonomy maps transport failures to user-facing taxonomy
// entries. Classification is a pure function: same failure in, same
// entry out, no I/O, no side effects.
package taxonomy

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ravitejakamalapuram/copytradepro/internal/domain"
)

// Canonical user messages. Known statuses always use these; a message
// carried in the response body only overrides the generic text for
// statuses outside the known table (422 and friends).
const (
	msgNetworkRetryable = "Unable to reach the broker service. Check your connection and try again."
	msgNetworkAborted   = "The request was interrupted before it completed."
	msgBadRequest       = "The request was rejected as invalid. Review the order details."
	msgUnauthorized     = "Your broker session has expired or is not authorized. Re-activate the account."
	msgNotFound         = "The requested resource was not found at the broker."
	msgRequestTimeout   = "The broker service timed out while processing the request."
	msgConflict         = "The request conflicts with the broker's current state."
	msgRateLimited      = "Too many requests. The broker is rate-limiting this account."
	msgServerError      = "The broker service encountered an internal error."
	msgUnknown          = "An unexpected error occurred while talking to the broker."
)

// retryableNetworkCodes are the transport-level failures worth
// re-issuing; anything else (e.g. a client-side abort) is final.
var retryableNetworkCodes = map[domain.NetworkCode]bool{
	domain.NetworkConnectionRefused: true,
	domain.NetworkTimedOut:          true,
	domain.NetworkNameNotResolved:   true,
	domain.NetworkUnreachable:       true,
}

// Classify maps a transport failure to a taxonomy entry. Input is
// either a network-level failure (no response received) or an
// application-level failure (non-2xx status). Anything that is not a
// TransportFailure classifies as UNKNOWN.
func Classify(err error) domain.ErrorTaxonomyEntry {
	var failure *domain.TransportFailure
	if !errors.As(err, &failure) {
		return domain.ErrorTaxonomyEntry{
			Kind:             domain.TaxonomyUnknown,
			IsRetryable:      false,
			UserMessage:      msgUnknown,
			SuggestedActions: actionsFor(domain.TaxonomyUnknown),
		}
	}

	if failure.IsNetwork() {
		return classifyNetwork(failure)
	}
	return classifyStatus(failure)
}

// classifyNetwork handles failures where no response was received
func classifyNetwork(failure *domain.TransportFailure) domain.ErrorTaxonomyEntry {
	if retryableNetworkCodes[failure.Code] {
		return domain.ErrorTaxonomyEntry{
			Kind:             domain.TaxonomyNetwork,
			IsRetryable:      true,
			UserMessage:      msgNetworkRetryable,
			SuggestedActions: actionsFor(domain.TaxonomyNetwork),
		}
	}
	return domain.ErrorTaxonomyEntry{
		Kind:             domain.TaxonomyNetwork,
		IsRetryable:      false,
		UserMessage:      msgNetworkAborted,
		SuggestedActions: actionsFor(domain.TaxonomyNetwork),
	}
}

// classifyStatus handles failures where a non-2xx response came back
func classifyStatus(failure *domain.TransportFailure) domain.ErrorTaxonomyEntry {
	status := failure.StatusCode

	switch status {
	case 400:
		return entry(domain.TaxonomyValidation, false, msgBadRequest)
	case 401, 403:
		return entry(domain.TaxonomyAuth, false, msgUnauthorized)
	case 404:
		return entry(domain.TaxonomyValidation, false, msgNotFound)
	case 408:
		return entry(domain.TaxonomyHTTP4xx, true, msgRequestTimeout)
	case 409:
		return entry(domain.TaxonomyValidation, false, msgConflict)
	case 429:
		return entry(domain.TaxonomyHTTP4xx, true, msgRateLimited)
	case 500, 502, 503, 504:
		return entry(domain.TaxonomyHTTP5xx, true, msgServerError)
	}

	// Unknown status: the body's own message, when present, beats the
	// generic text. This is the only place the body is consulted -
	// known statuses always use the canonical message.
	message := msgUnknown
	if bodyMsg := bodyMessage(failure.Body); bodyMsg != "" {
		message = bodyMsg
	}
	return entry(domain.TaxonomyUnknown, false, message)
}

// bodyMessage extracts a "message" field from a JSON response body,
// returning "" when the body is absent, malformed, or messageless
func bodyMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Message
}

func entry(kind domain.TaxonomyKind, retryable bool, message string) domain.ErrorTaxonomyEntry {
	return domain.ErrorTaxonomyEntry{
		Kind:             kind,
		IsRetryable:      retryable,
		UserMessage:      message,
		SuggestedActions: actionsFor(kind),
	}
}

// actionsFor returns the suggested actions for a taxonomy kind.
// Every kind maps to a non-empty list.
func actionsFor(kind domain.TaxonomyKind) []string {
	switch kind {
	case domain.TaxonomyNetwork:
		return []string{"Check your internet connection", "Retry the request"}
	case domain.TaxonomyValidation:
		return []string{"Review the order details", "Correct the request and resubmit"}
	case domain.TaxonomyAuth:
		return []string{"Re-activate the broker account", "Re-link the account if the problem persists"}
	case domain.TaxonomyHTTP4xx:
		return []string{"Wait a moment and retry"}
	case domain.TaxonomyHTTP5xx:
		return []string{"Retry the request", "Contact support if the problem persists"}
	default:
		return []string{"Retry the request", "Contact support if the problem persists"}
	}
}

// HandshakeEntry builds the taxonomy entry for a handshake-specific
// failure (popup blocked, timed out, cancelled). Kept here so all
// user-facing failure text lives in one package.
func HandshakeEntry(kind domain.TaxonomyKind) domain.ErrorTaxonomyEntry {
	switch kind {
	case domain.TaxonomyPopupBlocked:
		return domain.ErrorTaxonomyEntry{
			Kind:             domain.TaxonomyPopupBlocked,
			IsRetryable:      false,
			UserMessage:      "The authentication window could not be opened.",
			SuggestedActions: []string{"Allow popups for this site", "Try linking the account again"},
		}
	case domain.TaxonomyTimedOut:
		return domain.ErrorTaxonomyEntry{
			Kind:             domain.TaxonomyTimedOut,
			IsRetryable:      false,
			UserMessage:      "The authentication attempt timed out.",
			SuggestedActions: []string{"Try linking the account again"},
		}
	case domain.TaxonomyCancelled:
		return domain.ErrorTaxonomyEntry{
			Kind:             domain.TaxonomyCancelled,
			IsRetryable:      false,
			UserMessage:      "The authentication attempt was cancelled.",
			SuggestedActions: []string{"Try linking the account again"},
		}
	default:
		return domain.ErrorTaxonomyEntry{
			Kind:             domain.TaxonomyUnknown,
			IsRetryable:      false,
			UserMessage:      fmt.Sprintf("Authentication failed (%s).", kind),
			SuggestedActions: []string{"Try linking the account again"},
		}
	}
}
