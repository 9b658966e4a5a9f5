package policy

import (
	"fmt"

	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
)

// OneWay is a monotonic, privileged-only state flip from From to To.
// Parcel verification, user verification, document verification and
// transaction approval are all instances.
type OneWay[S comparable] struct {
	Name string
	From S
	To   S
}

// Apply decides the outcome of applying the transition to a record in state
// current. It never writes; callers persist next only when changed is true,
// and must do so conditionally on current.
//
//   - unprivileged actor: Forbidden (Unauthorized when anonymous)
//   - current == To: no-op success
//   - current != From: InvalidState
func (t OneWay[S]) Apply(actor id.Actor, current S) (next S, changed bool, err error) {
	if err := RequirePrivileged(actor); err != nil {
		return current, false, err
	}
	if current == t.To {
		return current, false, nil
	}
	if current != t.From {
		return current, false, dErrors.New(dErrors.CodeInvalidState,
			fmt.Sprintf("cannot %s: current state is %v", t.Name, current))
	}
	return t.To, true, nil
}
