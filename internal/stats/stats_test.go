package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"dealflow/internal/domain"
	"dealflow/internal/risk"
)

func TestAggregate(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fresh := now.AddDate(0, 0, -2).Format(time.RFC3339)
	stale := now.AddDate(0, 0, -30).Format(time.RFC3339)

	stages := []domain.Stage{
		{ID: "s1", Name: "Qualificação", Position: 0, Role: domain.RoleNormal},
		{ID: "s2", Name: "Proposta", Position: 1, Role: domain.RoleProposal},
		{ID: "s3", Name: "Ganho", Position: 2, Role: domain.RoleWin},
		{ID: "s4", Name: "Perdido", Position: 3, Role: domain.RoleLoss},
	}
	deals := []domain.Deal{
		{ID: "d1", StageID: "s1", Value: 100, StageUpdatedAt: fresh},
		{ID: "d2", StageID: "s1", Value: 5000, StageUpdatedAt: stale}, // at risk
		{ID: "d3", StageID: "s2", Value: 2000, StageUpdatedAt: fresh},
		{ID: "d4", StageID: "s3", Value: 8000, StageUpdatedAt: stale},
		{ID: "d5", StageID: "s4", Value: 300, StageUpdatedAt: fresh},
		{ID: "d6", StageID: "ghost", Value: 999, StageUpdatedAt: fresh}, // ignored
	}

	agg := Aggregate("pipe1", stages, deals, now, risk.DefaultThresholds())

	assert.Equal(t, "pipe1", agg.PipelineID)
	assert.Len(t, agg.Stages, 4)
	assert.Equal(t, 2, agg.Stages[0].Count)
	assert.Equal(t, 5100.0, agg.Stages[0].TotalValue)
	assert.Equal(t, 1, agg.Stages[1].Count)

	assert.Equal(t, 5, agg.TotalCount)
	assert.Equal(t, 15400.0, agg.TotalValue)
	assert.Equal(t, 3, agg.OpenCount)
	assert.Equal(t, 7100.0, agg.OpenValue)
	assert.Equal(t, 1, agg.WonCount)
	assert.Equal(t, 8000.0, agg.WonValue)
	assert.Equal(t, 1, agg.LostCount)
	assert.Equal(t, 300.0, agg.LostValue)
	assert.Equal(t, 1, agg.AtRisk)
}

// The open/won/lost splits partition the totals no matter how deals are
// spread across stages.
func TestAggregateTotalsPartition(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ts := now.AddDate(0, 0, -1).Format(time.RFC3339)

	stages := []domain.Stage{
		{ID: "s1", Name: "Qualificação", Position: 0, Role: domain.RoleNormal},
		{ID: "s2", Name: "Ganho", Position: 1, Role: domain.RoleWin},
		{ID: "s3", Name: "Perdido", Position: 2, Role: domain.RoleLoss},
	}
	deals := []domain.Deal{
		{ID: "d1", StageID: "s1", Value: 10, StageUpdatedAt: ts},
		{ID: "d2", StageID: "s2", Value: 20, StageUpdatedAt: ts},
		{ID: "d3", StageID: "s2", Value: 30, StageUpdatedAt: ts},
		{ID: "d4", StageID: "s3", Value: 40, StageUpdatedAt: ts},
	}

	agg := Aggregate("pipe1", stages, deals, now, risk.DefaultThresholds())

	assert.Equal(t, agg.TotalCount, agg.OpenCount+agg.WonCount+agg.LostCount)
	assert.Equal(t, agg.TotalValue, agg.OpenValue+agg.WonValue+agg.LostValue)
	assert.Equal(t, 4, agg.TotalCount)
	assert.Equal(t, 100.0, agg.TotalValue)
	perStage := 0.0
	for _, s := range agg.Stages {
		perStage += s.TotalValue
	}
	assert.Equal(t, agg.TotalValue, perStage)
}

func TestAggregateEmpty(t *testing.T) {
	agg := Aggregate("pipe1", nil, nil, time.Now().UTC(), risk.DefaultThresholds())
	assert.Empty(t, agg.Stages)
	assert.Zero(t, agg.OpenCount)
	assert.Zero(t, agg.OpenValue)
}
