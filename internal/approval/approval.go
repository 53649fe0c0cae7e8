// Package approval holds the administrator account lifecycle.
package approval

import (
	"fmt"

	"github.com/parisxmas/OxiDB/OxiForms/internal/apperr"
)

type State string

const (
	Pending  State = "pending"
	Approved State = "approved"
	Rejected State = "rejected"
)

type Event string

const (
	Approve Event = "approve"
	Reject  Event = "reject"
)

func (s State) Valid() bool {
	return s == Pending || s == Approved || s == Rejected
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == Approved || s == Rejected }

// CanLogin reports whether an admin in state s may obtain a token.
func (s State) CanLogin() bool { return s == Approved }

// Transition returns the state reached by applying ev to from.
func Transition(from State, ev Event) (State, error) {
	if from == Pending {
		switch ev {
		case Approve:
			return Approved, nil
		case Reject:
			return Rejected, nil
		}
	}
	return from, apperr.Conflict(apperr.CodeInvalidTransition,
		fmt.Sprintf("cannot %s an account that is %s", ev, from)).
		With("from", string(from)).With("event", string(ev))
}

// LoginError explains why state s blocks login; nil when login is allowed.
func LoginError(s State) error {
	switch s {
	case Approved:
		return nil
	case Rejected:
		return apperr.Forbidden(apperr.CodeRejected, "account registration was rejected")
	default:
		return apperr.Forbidden(apperr.CodePendingApproval, "account is waiting for approval")
	}
}
