package httputil

import (
	"errors"
	"net/http"
)

// Denial is an expected policy outcome: a stable machine-readable code plus
// the details a client needs to render an actionable message.
type Denial interface {
	error
	DenialCode() string
	DenialDetails() map[string]any
}

var denialStatus = map[string]int{
	"tenant_required":       http.StatusBadRequest,
	"tenant_lookup_failed":  http.StatusServiceUnavailable,
	"tenant_inactive":       http.StatusForbidden,
	"tenant_mismatch":       http.StatusForbidden,
	"subscription_inactive": http.StatusPaymentRequired,
	"trial_expired":         http.StatusPaymentRequired,
	"plan_upgrade_required": http.StatusForbidden,
	"billing_required":      http.StatusPaymentRequired,
	"seat_limit_reached":    http.StatusForbidden,
	"usage_limit_exceeded":  http.StatusTooManyRequests,
	"permission_denied":     http.StatusForbidden,
}

// AsDenial unwraps err to a Denial.
func AsDenial(err error) (Denial, bool) {
	var d Denial
	if errors.As(err, &d) {
		return d, true
	}
	return nil, false
}

// StatusForDenial returns the HTTP status for a denial code. Unknown codes
// are treated as forbidden.
func StatusForDenial(code string) int {
	if s, ok := denialStatus[code]; ok {
		return s
	}
	return http.StatusForbidden
}

// WriteDenial writes err as a structured denial. Errors that are not
// denials become a 500 and WriteDenial returns false so the caller can log
// them.
func WriteDenial(w http.ResponseWriter, err error) bool {
	d, ok := AsDenial(err)
	if !ok {
		WriteInternalError(w)
		return false
	}
	_ = WriteJSON(w, StatusForDenial(d.DenialCode()), ErrorResponse{
		Error:   d.Error(),
		Code:    d.DenialCode(),
		Details: d.DenialDetails(),
	})
	return true
}
