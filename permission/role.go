// Package permission implements the declarative role/permission model and
// its pure evaluator. The evaluator never queries external state: all
// context needed for conditional grants is supplied by the caller.
package permission

import "fmt"

// Role is the closed set of roles known to the application. The
// permission table is keyed by Role, so an unknown role can never match
// a grant.
type Role string

// Roles.
const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
	RoleParent  Role = "parent"
	RoleStaff   Role = "staff"
)

// roles lists every valid role for parsing and validation.
var roles = map[Role]struct{}{
	RoleAdmin:   {},
	RoleTeacher: {},
	RoleStudent: {},
	RoleParent:  {},
	RoleStaff:   {},
}

// Valid reports whether the role is a known role.
func (r Role) Valid() bool {
	_, ok := roles[r]
	return ok
}

// String returns the role name.
func (r Role) String() string {
	return string(r)
}

// ParseRole converts a raw role string into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role: %q", s)
	}
	return r, nil
}

// Resource identifies a protected object class. ResourceAll is the
// wildcard: a role granted ResourceAll is globally privileged and
// short-circuits all other checks.
type Resource string

// Resources.
const (
	ResourceAll        Resource = "*"
	ResourceUsers      Resource = "users"
	ResourceCourses    Resource = "courses"
	ResourceGrades     Resource = "grades"
	ResourceAttendance Resource = "attendance"
	ResourcePayments   Resource = "payments"
	ResourceReports    Resource = "reports"
)

// Action is the operation attempted on a resource. ActionManage subsumes
// every other action on the same resource.
type Action string

// Actions.
const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
	ActionManage Action = "manage"
)
