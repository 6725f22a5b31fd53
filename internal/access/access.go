// Package access decides whether a caller may run a content-mutating
// operation. Decisions are pure; callers execute or abort the operation.
package access

import (
	"errors"

	"github.com/alphabot-ai/inkpost/internal/model"
)

var (
	ErrAccessDenied = errors.New("access denied")
	// ErrLoginRequired asks an anonymous caller to log in and try again.
	ErrLoginRequired = errors.New("login required")
)

type Operation int

const (
	CreatePost Operation = iota + 1
	EditPost
	DeletePost
	CreateComment
)

func (o Operation) String() string {
	switch o {
	case CreatePost:
		return "create_post"
	case EditPost:
		return "edit_post"
	case DeletePost:
		return "delete_post"
	case CreateComment:
		return "create_comment"
	default:
		return "unknown"
	}
}

type Policy int

const (
	AdminOnly Policy = iota + 1
	AuthenticatedOnly
)

// PolicyFor returns the policy guarding op. Unknown operations get AdminOnly.
func PolicyFor(op Operation) Policy {
	if op == CreateComment {
		return AuthenticatedOnly
	}
	return AdminOnly
}

type Reason int

const (
	ReasonNone Reason = iota
	ReasonAnonymous
	ReasonNotAdmin
)

func (r Reason) String() string {
	switch r {
	case ReasonAnonymous:
		return "anonymous"
	case ReasonNotAdmin:
		return "not_admin"
	default:
		return "none"
	}
}

type Decision struct {
	Permit bool
	Op     Operation
	Reason Reason
}

// Decide evaluates op for caller; a nil caller is anonymous.
func Decide(op Operation, caller *model.Identity) Decision {
	if caller == nil {
		return Decision{Op: op, Reason: ReasonAnonymous}
	}
	if PolicyFor(op) == AdminOnly && !caller.IsAdmin {
		return Decision{Op: op, Reason: ReasonNotAdmin}
	}
	return Decision{Permit: true, Op: op}
}

// Err maps a denial to ErrAccessDenied, or to ErrLoginRequired when an
// anonymous caller tried an operation any logged-in identity may run.
func (d Decision) Err() error {
	switch {
	case d.Permit:
		return nil
	case d.Reason == ReasonAnonymous && PolicyFor(d.Op) == AuthenticatedOnly:
		return ErrLoginRequired
	default:
		return ErrAccessDenied
	}
}

// Guard runs fn only when caller may perform op.
func Guard(op Operation, caller *model.Identity, fn func() error) error {
	if err := Decide(op, caller).Err(); err != nil {
		return err
	}
	return fn()
}
