package scheduling

import (
	"fmt"
	"strings"

	"github.com/roudayn-kouka/App4Doctors/internal/platform/apperr"
)

// StatusPolicy decides which appointment status changes are accepted.
type StatusPolicy string

const (
	// PolicyPermissive accepts any change and flags reverse moves.
	PolicyPermissive StatusPolicy = "permissive"
	// PolicyForwardOnly accepts only scheduled -> completed, cancelled or no-show.
	PolicyForwardOnly StatusPolicy = "forward-only"
)

func ParseStatusPolicy(s string) (StatusPolicy, error) {
	switch p := StatusPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", PolicyPermissive:
		return PolicyPermissive, nil
	case PolicyForwardOnly:
		return PolicyForwardOnly, nil
	default:
		return "", fmt.Errorf("unknown appointment status policy %q", s)
	}
}

// Check returns whether from -> to is suspicious (a move out of a final
// status) and an InvalidState error when the policy forbids it.
// Same-status writes always pass.
func (p StatusPolicy) Check(from, to string) (suspicious bool, err error) {
	if from == to {
		return false, nil
	}
	forward := from == StatusScheduled
	if p == PolicyForwardOnly && !forward {
		return true, apperr.InvalidState("cannot change appointment status from %s to %s", from, to)
	}
	return !forward, nil
}
