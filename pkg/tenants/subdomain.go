package tenants

import (
	"fmt"
	"regexp"
)

var subdomainPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,61}[a-z0-9]$`)

// reservedSubdomains can never be claimed by a tenant.
var reservedSubdomains = map[string]struct{}{
	"www":       {},
	"api":       {},
	"app":       {},
	"admin":     {},
	"mail":      {},
	"ftp":       {},
	"localhost": {},
	"staging":   {},
	"dev":       {},
	"test":      {},
	"demo":      {},
}

// nonTenantLabels are leading host labels the resolver never treats as a
// tenant subdomain.
var nonTenantLabels = map[string]struct{}{
	"www":       {},
	"api":       {},
	"app":       {},
	"admin":     {},
	"localhost": {},
}

// ValidateSubdomain checks that s may be claimed as a tenant subdomain.
func ValidateSubdomain(s string) error {
	if !subdomainPattern.MatchString(s) {
		return fmt.Errorf("%w: %q must be 3-63 lowercase letters, digits or hyphens and may not start or end with a hyphen", ErrInvalidSubdomain, s)
	}
	if IsReservedSubdomain(s) {
		return fmt.Errorf("%w: %q", ErrReservedSubdomain, s)
	}
	return nil
}

// IsReservedSubdomain reports whether s is on the reserved list.
func IsReservedSubdomain(s string) bool {
	_, ok := reservedSubdomains[s]
	return ok
}
