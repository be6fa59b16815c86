package permission

import "fmt"

// Condition is the closed set of predicates that can narrow a grant.
// Conditions compose as a logical AND: ConditionOwnAndClass requires both
// the ownership and the class-membership predicate to pass.
type Condition uint8

// Condition variants.
const (
	// Unconditional grants apply without further checks.
	Unconditional Condition = iota

	// OwnOnly requires the principal to own the resource.
	OwnOnly

	// ClassOnly requires the resource's class to be one of the
	// principal's classes.
	ClassOnly

	// OwnAndClass requires both OwnOnly and ClassOnly to pass.
	OwnAndClass
)

// String returns the condition name as used in table configuration.
func (c Condition) String() string {
	switch c {
	case Unconditional:
		return ""
	case OwnOnly:
		return "ownOnly"
	case ClassOnly:
		return "classOnly"
	case OwnAndClass:
		return "ownAndClass"
	default:
		return fmt.Sprintf("condition(%d)", uint8(c))
	}
}

// ParseCondition converts a condition name into a Condition.
func ParseCondition(s string) (Condition, error) {
	switch s {
	case "":
		return Unconditional, nil
	case "ownOnly":
		return OwnOnly, nil
	case "classOnly":
		return ClassOnly, nil
	case "ownAndClass":
		return OwnAndClass, nil
	default:
		return Unconditional, fmt.Errorf("unknown condition: %q", s)
	}
}

// ConditionContext carries the request-scoped facts a conditional grant
// is evaluated against.
type ConditionContext struct {
	// UserID is the principal's identifier.
	UserID string

	// ResourceOwnerID is the identifier of the resource's owner.
	ResourceOwnerID string

	// UserClassIDs are the classes the principal belongs to or teaches.
	UserClassIDs []string

	// ResourceClassID is the class the resource belongs to.
	ResourceClassID string
}

// Evaluate dispatches the condition against the supplied context. A nil
// context satisfies only Unconditional grants.
func (c Condition) Evaluate(cctx *ConditionContext) bool {
	switch c {
	case Unconditional:
		return true
	case OwnOnly:
		return cctx != nil && ownSatisfied(cctx)
	case ClassOnly:
		return cctx != nil && classSatisfied(cctx)
	case OwnAndClass:
		return cctx != nil && ownSatisfied(cctx) && classSatisfied(cctx)
	default:
		return false
	}
}

// ownSatisfied requires both identifiers present and equal.
func ownSatisfied(cctx *ConditionContext) bool {
	return cctx.UserID != "" && cctx.ResourceOwnerID != "" && cctx.UserID == cctx.ResourceOwnerID
}

// classSatisfied requires the resource's class among the principal's.
func classSatisfied(cctx *ConditionContext) bool {
	if cctx.ResourceClassID == "" {
		return false
	}
	for _, id := range cctx.UserClassIDs {
		if id == cctx.ResourceClassID {
			return true
		}
	}
	return false
}

// Permission is a single grant: an action on a resource, optionally
// narrowed by a condition.
type Permission struct {
	Resource  Resource
	Action    Action
	Condition Condition
}

// matches reports whether this grant qualifies for the given resource
// and action. A wildcard resource subsumes everything; ActionManage
// subsumes all actions on its resource. Matches are monotonic — there
// are no deny entries — so the first qualifying grant wins.
func (p Permission) matches(resource Resource, action Action) bool {
	if p.Resource == ResourceAll {
		return true
	}
	if p.Resource != resource {
		return false
	}
	return p.Action == action || p.Action == ActionManage
}
