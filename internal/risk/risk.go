// Package risk derives risk flags for deals. Flags are computed on read
// and never stored; changing the thresholds changes every answer at once.
package risk

import (
	"time"

	"dealflow/internal/domain"
)

// Thresholds control when a deal is flagged.
type Thresholds struct {
	StagnationDays int
	HighValueFloor float64
}

// DefaultThresholds flags deals parked for more than two weeks worth more
// than 1000.
func DefaultThresholds() Thresholds {
	return Thresholds{StagnationDays: 14, HighValueFloor: 1000}
}

// Flag is the derived risk assessment of one deal.
type Flag struct {
	DealID      string `json:"deal_id"`
	DaysInStage int    `json:"days_in_stage"`
	Stagnant    bool   `json:"stagnant"`
	HighValue   bool   `json:"high_value"`
	// AtRisk is set only when the deal is both stagnant and high value.
	AtRisk bool `json:"at_risk"`
}

// Evaluate computes the flag for one deal. Deals sitting in a terminal
// stage are never at risk; they are done.
func Evaluate(d domain.Deal, stageRole domain.StageRole, now time.Time, t Thresholds) Flag {
	f := Flag{DealID: d.ID}
	entered, err := time.Parse(time.RFC3339, d.StageUpdatedAt)
	if err != nil {
		return f
	}
	f.DaysInStage = int(now.Sub(entered).Hours() / 24)
	if stageRole.Terminal() {
		return f
	}
	f.Stagnant = f.DaysInStage > t.StagnationDays
	f.HighValue = d.Value > t.HighValueFloor
	f.AtRisk = f.Stagnant && f.HighValue
	return f
}

// EvaluateAll flags every deal against its stage's role. Deals whose stage
// is missing from the map are treated as normal stages.
func EvaluateAll(deals []domain.Deal, stagesByID map[string]domain.Stage, now time.Time, t Thresholds) []Flag {
	flags := make([]Flag, 0, len(deals))
	for _, d := range deals {
		role := domain.RoleNormal
		if s, ok := stagesByID[d.StageID]; ok {
			role = s.Role
		}
		flags = append(flags, Evaluate(d, role, now, t))
	}
	return flags
}
