// Package stats aggregates pipeline numbers from a snapshot of deals and
// stages. Pure computation, single pass over the deals.
package stats

import (
	"time"

	"dealflow/internal/domain"
	"dealflow/internal/risk"
)

// StageStats is the per-stage rollup, ordered like the pipeline.
type StageStats struct {
	StageID    string  `json:"stage_id"`
	StageName  string  `json:"stage_name"`
	Role       string  `json:"role"`
	Count      int     `json:"count"`
	TotalValue float64 `json:"total_value"`
}

// PipelineStats is the full pipeline rollup. The open, won and lost
// splits partition the totals: TotalCount and TotalValue always equal
// the sum of the three.
type PipelineStats struct {
	PipelineID string       `json:"pipeline_id"`
	Stages     []StageStats `json:"stages"`
	TotalCount int          `json:"total_count"`
	TotalValue float64      `json:"total_value"`
	OpenCount  int          `json:"open_count"`
	OpenValue  float64      `json:"open_value"`
	WonCount   int          `json:"won_count"`
	WonValue   float64      `json:"won_value"`
	LostCount  int          `json:"lost_count"`
	LostValue  float64      `json:"lost_value"`
	AtRisk     int          `json:"at_risk"`
}

// Aggregate rolls up deals into per-stage and pipeline totals. Deals in
// stages missing from the stage list are ignored.
func Aggregate(pipelineID string, stages []domain.Stage, deals []domain.Deal, now time.Time, t risk.Thresholds) PipelineStats {
	out := PipelineStats{PipelineID: pipelineID}
	index := make(map[string]int, len(stages))
	byID := make(map[string]domain.Stage, len(stages))
	for i, s := range stages {
		index[s.ID] = i
		byID[s.ID] = s
		out.Stages = append(out.Stages, StageStats{
			StageID:   s.ID,
			StageName: s.Name,
			Role:      string(s.Role),
		})
	}
	for _, d := range deals {
		i, ok := index[d.StageID]
		if !ok {
			continue
		}
		out.Stages[i].Count++
		out.Stages[i].TotalValue += d.Value
		out.TotalCount++
		out.TotalValue += d.Value
		switch byID[d.StageID].Role {
		case domain.RoleWin:
			out.WonCount++
			out.WonValue += d.Value
		case domain.RoleLoss:
			out.LostCount++
			out.LostValue += d.Value
		default:
			out.OpenCount++
			out.OpenValue += d.Value
			if risk.Evaluate(d, byID[d.StageID].Role, now, t).AtRisk {
				out.AtRisk++
			}
		}
	}
	return out
}
