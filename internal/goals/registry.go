package goals

import (
	"fmt"
	"strings"

	"goalpace/internal/domain"
)

// Definition is one row of the goal table as written in configuration.
type Definition struct {
	Category     string   `yaml:"category"`
	WeeklyTarget int      `yaml:"weekly_target"`
	Members      []string `yaml:"members,omitempty"`
}

// Registry is the read-only category -> weekly target table.
type Registry struct {
	order  []domain.GoalDefinition
	byName map[string]int
	owner  map[string]string
}

// Default is the built-in goal table.
func Default() []Definition {
	return []Definition{
		{Category: "exercise", WeeklyTarget: 4, Members: []string{"run", "lift"}},
		{Category: "reading", WeeklyTarget: 5},
		{Category: "meditation", WeeklyTarget: 7},
		{Category: "journaling", WeeklyTarget: 3},
		{Category: "routines", WeeklyTarget: 7},
	}
}

// New validates defs and builds a registry preserving declaration order.
func New(defs []Definition) (*Registry, error) {
	if len(defs) == 0 {
		return nil, domain.ConfigurationError{Field: "goals", Reason: "at least one goal is required"}
	}
	r := &Registry{
		byName: make(map[string]int, len(defs)),
		owner:  make(map[string]string),
	}
	for i, def := range defs {
		field := fmt.Sprintf("goals[%d]", i)
		name := normalize(def.Category)
		if name == "" {
			return nil, domain.ConfigurationError{Field: field + ".category", Reason: "is required"}
		}
		if _, dup := r.byName[name]; dup {
			return nil, domain.ConfigurationError{Field: field + ".category", Reason: "duplicated: " + name}
		}
		if def.WeeklyTarget < 1 || def.WeeklyTarget > domain.WindowLength {
			return nil, domain.ConfigurationError{Field: field + ".weekly_target", Reason: fmt.Sprintf("must be between 1 and %d, got %d", domain.WindowLength, def.WeeklyTarget)}
		}
		if prev, ok := r.owner[name]; ok {
			return nil, domain.ConfigurationError{Field: field + ".category", Reason: fmt.Sprintf("%s is already a member of %s", name, prev)}
		}
		r.owner[name] = name
		var members []string
		for _, m := range def.Members {
			m = normalize(m)
			if m == "" || m == name {
				continue
			}
			if prev, ok := r.owner[m]; ok {
				return nil, domain.ConfigurationError{Field: field + ".members", Reason: fmt.Sprintf("%s already belongs to %s", m, prev)}
			}
			r.owner[m] = name
			members = append(members, m)
		}
		r.byName[name] = len(r.order)
		r.order = append(r.order, domain.GoalDefinition{
			Category:     name,
			WeeklyTarget: def.WeeklyTarget,
			Passable:     def.WeeklyTarget < domain.WindowLength,
			Members:      members,
		})
	}
	return r, nil
}

// Lookup returns the goal for category or wraps domain.ErrUnknownCategory.
// Callers must not treat a miss as a zero target.
func (r *Registry) Lookup(category string) (domain.GoalDefinition, error) {
	idx, ok := r.byName[normalize(category)]
	if !ok {
		return domain.GoalDefinition{}, domain.UnknownCategory(category)
	}
	return r.order[idx], nil
}

// All returns goals in declaration order.
func (r *Registry) All() []domain.GoalDefinition {
	out := make([]domain.GoalDefinition, len(r.order))
	copy(out, r.order)
	return out
}

// Qualifies reports whether a raw record category counts toward goal.
func Qualifies(goal domain.GoalDefinition, category string) bool {
	category = normalize(category)
	if category == goal.Category {
		return true
	}
	for _, m := range goal.Members {
		if m == category {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
