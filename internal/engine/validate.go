package engine

import (
	"fmt"

	"dealflow/internal/domain"
)

// Decision is the outcome of evaluating gate rules for a transition. A
// blocked decision carries a user-facing reason.
type Decision struct {
	Allowed bool
	Reason  string
}

func Allow() Decision { return Decision{Allowed: true} }

func Block(reason string) Decision { return Decision{Reason: reason} }

// GateRule inspects a proposed transition and either allows it or blocks it.
// Rules are pure: no I/O, no clock, no mutation of their inputs.
type GateRule func(d domain.Deal, from, to domain.Stage) Decision

// RuleSet maps a target stage role to the gate rules that guard entry into
// it. Roles without an entry are unguarded.
type RuleSet map[domain.StageRole][]GateRule

// Evaluate runs the rules guarding the target stage's role in order and
// returns the first blocking decision, or an allow when none block.
func (rs RuleSet) Evaluate(d domain.Deal, from, to domain.Stage) Decision {
	for _, rule := range rs[to.Role] {
		if dec := rule(d, from, to); !dec.Allowed {
			return dec
		}
	}
	return Allow()
}

// DefaultRules guards proposal and win stages behind a defined deal value.
// Loss stages are always reachable so a dead deal can be closed out no
// matter what shape it is in.
func DefaultRules() RuleSet {
	requireValue := func(d domain.Deal, _, to domain.Stage) Decision {
		if d.Value <= 0 {
			return Block(fmt.Sprintf("não é possível mover para %s sem valor definido", to.Name))
		}
		return Allow()
	}
	return RuleSet{
		domain.RoleProposal: {requireValue},
		domain.RoleWin:      {requireValue},
	}
}
