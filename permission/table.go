package permission

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Table maps each role to its ordered grants. Static: loaded at process
// start and never mutated at runtime.
type Table map[Role][]Permission

// Validate checks every role and grant in the table.
func (t Table) Validate() error {
	for role, perms := range t {
		if !role.Valid() {
			return fmt.Errorf("invalid role in table: %q", role)
		}
		for _, p := range perms {
			switch p.Action {
			case ActionRead, ActionWrite, ActionDelete, ActionManage:
			default:
				return fmt.Errorf("role %s: invalid action %q on %q", role, p.Action, p.Resource)
			}
			if p.Resource == "" {
				return fmt.Errorf("role %s: empty resource", role)
			}
		}
	}
	return nil
}

// DefaultTable returns the built-in school permission matrix.
func DefaultTable() Table {
	return Table{
		RoleAdmin: {
			{Resource: ResourceAll, Action: ActionManage},
		},
		RoleTeacher: {
			{Resource: ResourceCourses, Action: ActionRead},
			{Resource: ResourceCourses, Action: ActionWrite, Condition: ClassOnly},
			{Resource: ResourceGrades, Action: ActionRead, Condition: ClassOnly},
			{Resource: ResourceGrades, Action: ActionWrite, Condition: ClassOnly},
			{Resource: ResourceAttendance, Action: ActionManage, Condition: ClassOnly},
			{Resource: ResourceUsers, Action: ActionRead, Condition: ClassOnly},
			{Resource: ResourceReports, Action: ActionRead, Condition: ClassOnly},
		},
		RoleStudent: {
			{Resource: ResourceCourses, Action: ActionRead},
			{Resource: ResourceGrades, Action: ActionRead, Condition: OwnOnly},
			{Resource: ResourceAttendance, Action: ActionRead, Condition: OwnOnly},
			{Resource: ResourcePayments, Action: ActionRead, Condition: OwnOnly},
		},
		RoleParent: {
			{Resource: ResourceCourses, Action: ActionRead},
			{Resource: ResourceGrades, Action: ActionRead, Condition: OwnOnly},
			{Resource: ResourceAttendance, Action: ActionRead, Condition: OwnOnly},
			{Resource: ResourcePayments, Action: ActionRead, Condition: OwnOnly},
			{Resource: ResourcePayments, Action: ActionWrite, Condition: OwnOnly},
		},
		RoleStaff: {
			{Resource: ResourceUsers, Action: ActionRead},
			{Resource: ResourcePayments, Action: ActionManage},
			{Resource: ResourceReports, Action: ActionRead},
		},
	}
}

// tableEntry is the YAML form of a single grant.
type tableEntry struct {
	Resource  string `yaml:"resource"`
	Action    string `yaml:"action"`
	Condition string `yaml:"condition,omitempty"`
}

// LoadTable parses a permission table from YAML of the form:
//
//	teacher:
//	  - resource: grades
//	    action: write
//	    condition: classOnly
func LoadTable(data []byte) (Table, error) {
	var raw map[string][]tableEntry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse permission table: %w", err)
	}

	table := make(Table, len(raw))
	for roleName, entries := range raw {
		role, err := ParseRole(roleName)
		if err != nil {
			return nil, err
		}

		perms := make([]Permission, 0, len(entries))
		for _, e := range entries {
			cond, err := ParseCondition(e.Condition)
			if err != nil {
				return nil, fmt.Errorf("role %s: %w", role, err)
			}
			perms = append(perms, Permission{
				Resource:  Resource(e.Resource),
				Action:    Action(e.Action),
				Condition: cond,
			})
		}
		table[role] = perms
	}

	if err := table.Validate(); err != nil {
		return nil, err
	}

	return table, nil
}
