// Package access decides whether a principal may perform an action on a
// resource. It is the only place role and approval flags are interpreted.
package access

import (
	"fmt"

	"github.com/parisxmas/OxiDB/OxiForms/internal/apperr"
)

type Role int

const (
	Anonymous Role = iota
	RegularUser
	Admin
	SuperAdmin
)

func (r Role) String() string {
	switch r {
	case RegularUser:
		return "user"
	case Admin:
		return "admin"
	case SuperAdmin:
		return "super_admin"
	default:
		return "anonymous"
	}
}

// ParseRole maps the stored role name to a Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "user":
		return RegularUser, nil
	case "admin":
		return Admin, nil
	case "super_admin":
		return SuperAdmin, nil
	case "", "anonymous":
		return Anonymous, nil
	}
	return Anonymous, fmt.Errorf("access: unknown role %q", s)
}

// Principal is the actor behind a request.
type Principal struct {
	ID       string
	Role     Role
	Approved bool
}

// AnonymousPrincipal is the actor of unauthenticated requests.
var AnonymousPrincipal = Principal{Role: Anonymous}

type Action string

const (
	FormCreate Action = "form:create"
	FormList   Action = "form:list"
	FormRead   Action = "form:read"
	FormUpdate Action = "form:update"
	FormDelete Action = "form:delete"

	SubmissionList   Action = "submission:list"
	SubmissionRead   Action = "submission:read"
	SubmissionDelete Action = "submission:delete"
	FileDownload     Action = "file:download"

	UserList   Action = "user:list"
	UserRead   Action = "user:read"
	UserCreate Action = "user:create"
	UserUpdate Action = "user:update"
	UserDelete Action = "user:delete"

	DashboardView Action = "dashboard:view"

	AdminListPending Action = "admin:list_pending"
	AdminApprove     Action = "admin:approve"
	AdminReject      Action = "admin:reject"

	PublicSubmit Action = "public:submit"
)

var adminActions = map[Action]bool{
	FormCreate: true, FormList: true, FormRead: true, FormUpdate: true, FormDelete: true,
	SubmissionList: true, SubmissionRead: true, SubmissionDelete: true, FileDownload: true,
	UserList: true, UserRead: true, UserCreate: true, UserUpdate: true, UserDelete: true,
	DashboardView: true,
}

// AdminOnly reports whether an approved admin may perform a on own resources.
func AdminOnly(a Action) bool { return adminActions[a] }

// Resource identifies what an action targets. An empty OwnerID marks a scope
// owned by the acting admin, such as "my forms" or a form being created.
type Resource struct {
	Kind    string
	ID      string
	OwnerID string
}

// Owned builds a resource owned by ownerID.
func Owned(kind, id, ownerID string) Resource {
	return Resource{Kind: kind, ID: id, OwnerID: ownerID}
}

// Scope builds an ownerless resource for create and list actions.
func Scope(kind string) Resource { return Resource{Kind: kind} }

type Reason string

const (
	ReasonNone            Reason = ""
	ReasonPendingApproval Reason = apperr.CodePendingApproval
	ReasonNotOwner        Reason = apperr.CodeNotOwner
	ReasonUnauthorized    Reason = apperr.CodeUnauthorized
)

type Decision struct {
	Allowed bool
	Reason  Reason
}

var allowed = Decision{Allowed: true}

func deny(r Reason) Decision { return Decision{Reason: r} }

// Err converts a denial into an authorization error; nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	switch d.Reason {
	case ReasonPendingApproval:
		return apperr.Forbidden(apperr.CodePendingApproval, "account is waiting for approval")
	case ReasonNotOwner:
		return apperr.Forbidden(apperr.CodeNotOwner, "resource belongs to another administrator")
	default:
		return apperr.Forbidden(apperr.CodeUnauthorized, "not allowed")
	}
}

// Authorize evaluates the rules in priority order.
func Authorize(p Principal, a Action, r Resource) Decision {
	if p.Role == SuperAdmin {
		return allowed
	}
	if p.Role == Admin && AdminOnly(a) {
		if !p.Approved {
			return deny(ReasonPendingApproval)
		}
		if r.OwnerID != "" && r.OwnerID != p.ID {
			return deny(ReasonNotOwner)
		}
		return allowed
	}
	if a == PublicSubmit {
		return allowed
	}
	return deny(ReasonUnauthorized)
}

// Check is Authorize returning an error.
func Check(p Principal, a Action, r Resource) error {
	return Authorize(p, a, r).Err()
}
