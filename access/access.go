/*
Package access maps roles to the workflow steps and actions they may take.

AUTHORITY TABLE:
  role      steps          scope        permissions
  admin     manager, hr    any dept     all
  manager   manager        own dept     submit, view own, view dept, decide
  employee  (none)         self         submit, view own, withdraw own

The role set is closed (timeoff.Role); there is no string-keyed permission
map to drift out of sync with the workflow.
*/
package access

import (
	"github.com/warp/leave-workflow/timeoff"
)

// =============================================================================
// PERMISSIONS
// =============================================================================

type Permission int

const (
	PermSubmit Permission = iota + 1
	PermViewOwn
	PermViewDepartment
	PermViewAll
	PermDecide
	PermManageHolidays
	PermManageAllocations
)

var permissionNames = map[Permission]string{
	PermSubmit:            "submit",
	PermViewOwn:           "view-own",
	PermViewDepartment:    "view-department",
	PermViewAll:           "view-all",
	PermDecide:            "decide",
	PermManageHolidays:    "manage-holidays",
	PermManageAllocations: "manage-allocations",
}

func (p Permission) String() string { return permissionNames[p] }

// Authority is what a role may do. It is derived, never persisted.
type Authority struct {
	Role        timeoff.Role
	Steps       map[timeoff.Step]bool
	IsAdmin     bool
	Permissions map[Permission]bool
}

func (a Authority) CanActOn(step timeoff.Step) bool { return a.Steps[step] }

func (a Authority) Has(p Permission) bool { return a.Permissions[p] }

func steps(s ...timeoff.Step) map[timeoff.Step]bool {
	m := make(map[timeoff.Step]bool, len(s))
	for _, step := range s {
		m[step] = true
	}
	return m
}

func perms(p ...Permission) map[Permission]bool {
	m := make(map[Permission]bool, len(p))
	for _, perm := range p {
		m[perm] = true
	}
	return m
}

// AuthorityFor returns the authority of role. Unknown roles get nothing.
func AuthorityFor(role timeoff.Role) Authority {
	switch role {
	case timeoff.RoleAdmin:
		return Authority{
			Role:    role,
			Steps:   steps(timeoff.StepManager, timeoff.StepHR),
			IsAdmin: true,
			Permissions: perms(PermSubmit, PermViewOwn, PermViewDepartment, PermViewAll,
				PermDecide, PermManageHolidays, PermManageAllocations),
		}
	case timeoff.RoleManager:
		return Authority{
			Role:        role,
			Steps:       steps(timeoff.StepManager),
			Permissions: perms(PermSubmit, PermViewOwn, PermViewDepartment, PermDecide),
		}
	case timeoff.RoleEmployee:
		return Authority{
			Role:        role,
			Steps:       steps(),
			Permissions: perms(PermSubmit, PermViewOwn),
		}
	default:
		return Authority{Role: role, Steps: steps(), Permissions: perms()}
	}
}

// =============================================================================
// CHECKS
// =============================================================================

// Actor is the identity acting on a request, as resolved by the directory.
type Actor struct {
	ID         string
	Role       timeoff.Role
	Department string
}

func ActorOf(e timeoff.Employee) Actor {
	return Actor{ID: e.ID, Role: e.Role, Department: e.Department}
}

// Authorize checks that actor may decide step of a request whose employee
// is subject. Managers are scoped to their own department; admins are not.
func Authorize(actor Actor, step timeoff.Step, subject timeoff.Employee, requestID string) error {
	auth := AuthorityFor(actor.Role)
	deny := func(reason string) error {
		return &timeoff.UnauthorizedError{ActorID: actor.ID, Role: actor.Role, Step: step, RequestID: requestID, Reason: reason}
	}
	if !auth.Has(PermDecide) {
		return deny("role has no approval authority")
	}
	if !auth.CanActOn(step) {
		return deny("role has no authority over this step")
	}
	if auth.IsAdmin {
		return nil
	}
	if actor.ID == subject.ID {
		return deny("cannot decide own request")
	}
	if actor.Department == "" || actor.Department != subject.Department {
		return deny("request is outside the actor's department")
	}
	return nil
}

// CanView reports whether actor may read requests of subject.
func CanView(actor Actor, subject timeoff.Employee) bool {
	auth := AuthorityFor(actor.Role)
	switch {
	case auth.Has(PermViewAll):
		return true
	case actor.ID == subject.ID:
		return auth.Has(PermViewOwn)
	case auth.Has(PermViewDepartment):
		return actor.Department != "" && actor.Department == subject.Department
	}
	return false
}

// CanWithdraw checks that actor owns the request it is withdrawing.
func CanWithdraw(actor Actor, r *timeoff.TimeOffRequest) error {
	if actor.ID != r.EmployeeID {
		return &timeoff.UnauthorizedError{
			ActorID: actor.ID, Role: actor.Role, Step: r.CurrentStep, RequestID: r.ID,
			Reason: "only the requesting employee may withdraw",
		}
	}
	return nil
}

// Require checks a non-workflow permission such as managing holidays.
func Require(actor Actor, p Permission) error {
	if AuthorityFor(actor.Role).Has(p) {
		return nil
	}
	return &timeoff.UnauthorizedError{ActorID: actor.ID, Role: actor.Role, Reason: "missing permission " + p.String()}
}
