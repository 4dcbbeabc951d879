package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"dealflow/internal/db"
	"dealflow/internal/domain"
	"dealflow/internal/migrate"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(conn)
}

func seedPipeline(t *testing.T, r *Repo) (domain.Pipeline, []domain.Stage) {
	t.Helper()
	now := time.Now().UTC().Format(time.RFC3339)
	p := domain.Pipeline{ID: "pipe1", Name: "Vendas", Version: 1, CreatedAt: now}
	stages := []domain.Stage{
		{ID: "s1", PipelineID: p.ID, Name: "Qualificação", Position: 0, Color: "blue", Role: domain.RoleNormal},
		{ID: "s2", PipelineID: p.ID, Name: "Proposta", Position: 1, Color: "amber", Role: domain.RoleProposal},
		{ID: "s3", PipelineID: p.ID, Name: "Ganho", Position: 2, Color: "green", Role: domain.RoleWin},
	}
	mut := Mutation{Type: "pipeline.created", ActorID: "test"}
	if err := r.InsertPipeline(context.Background(), p, stages, mut); err != nil {
		t.Fatalf("insert pipeline: %v", err)
	}
	return p, stages
}

func seedDeal(t *testing.T, r *Repo, stageID string) domain.Deal {
	t.Helper()
	now := time.Now().UTC().Format(time.RFC3339)
	d := domain.Deal{
		ID: "deal1", PipelineID: "pipe1", StageID: stageID, LeadName: "Acme",
		Value: 1000, Version: 1, StageUpdatedAt: now, CreatedAt: now, UpdatedAt: now,
	}
	if err := r.InsertDeal(context.Background(), d, Mutation{Type: "deal.created", ActorID: "test"}); err != nil {
		t.Fatalf("insert deal: %v", err)
	}
	return d
}

func TestPipelineRoundTrip(t *testing.T) {
	r := newTestRepo(t)
	p, stages := seedPipeline(t, r)
	ctx := context.Background()

	got, err := r.GetPipeline(ctx, p.ID)
	if err != nil {
		t.Fatalf("get pipeline: %v", err)
	}
	if got.Name != p.Name || got.Version != 1 {
		t.Fatalf("got %+v", got)
	}

	listed, err := r.ListStages(ctx, p.ID)
	if err != nil {
		t.Fatalf("list stages: %v", err)
	}
	if len(listed) != len(stages) {
		t.Fatalf("have %d stages, want %d", len(listed), len(stages))
	}
	for i, s := range listed {
		if s.Position != i {
			t.Fatalf("stage %s at position %d", s.Name, s.Position)
		}
	}

	if _, err := r.GetPipeline(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestApplyTransitionAtomic(t *testing.T) {
	r := newTestRepo(t)
	_, stages := seedPipeline(t, r)
	d := seedDeal(t, r, stages[0].ID)
	ctx := context.Background()

	now := time.Now().UTC().Format(time.RFC3339)
	updated := d
	updated.StageID = stages[1].ID
	updated.StageUpdatedAt = now
	updated.UpdatedAt = now
	rec := domain.TransitionRecord{
		ID: "rec1", DealID: d.ID, FromStageID: stages[0].ID, ToStageID: stages[1].ID,
		ActorKind: domain.ActorHuman, ActorID: "alice", CreatedAt: now,
	}
	if err := r.ApplyTransition(ctx, updated, d.Version, rec); err != nil {
		t.Fatalf("apply transition: %v", err)
	}

	got, _ := r.GetDeal(ctx, d.ID)
	if got.StageID != stages[1].ID || got.Version != d.Version+1 {
		t.Fatalf("deal after transition: %+v", got)
	}
	recs, err := r.ListTransitionRecords(ctx, d.ID)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != "rec1" {
		t.Fatalf("records: %+v", recs)
	}

	// stale version fails and writes nothing
	err = r.ApplyTransition(ctx, updated, d.Version, domain.TransitionRecord{
		ID: "rec2", DealID: d.ID, FromStageID: stages[1].ID, ToStageID: stages[2].ID,
		ActorKind: domain.ActorHuman, ActorID: "alice", CreatedAt: now,
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	recs, _ = r.ListTransitionRecords(ctx, d.ID)
	if len(recs) != 1 {
		t.Fatalf("conflicted transition wrote a record")
	}

	events, err := r.LatestEvents(ctx, 10, "pipe1", "deal.transitioned", "", "")
	if err != nil {
		t.Fatalf("latest events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("have %d deal.transitioned events, want 1", len(events))
	}
}

func TestSaveDealVersionGuard(t *testing.T) {
	r := newTestRepo(t)
	_, stages := seedPipeline(t, r)
	d := seedDeal(t, r, stages[0].ID)
	ctx := context.Background()

	d.Value = 2500
	mut := Mutation{Type: "deal.value_updated", ActorID: "test"}
	if err := r.SaveDeal(ctx, d, 1, mut); err != nil {
		t.Fatalf("save deal: %v", err)
	}
	if err := r.SaveDeal(ctx, d, 1, mut); !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	ghost := d
	ghost.ID = "nope"
	if err := r.SaveDeal(ctx, ghost, 1, mut); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteStageGuards(t *testing.T) {
	r := newTestRepo(t)
	p, stages := seedPipeline(t, r)
	seedDeal(t, r, stages[0].ID)
	ctx := context.Background()
	mut := Mutation{Type: "stage.deleted", ActorID: "test"}

	if err := r.DeleteStage(ctx, stages[0].ID, p.Version, mut); !errors.Is(err, ErrStageInUse) {
		t.Fatalf("err = %v, want ErrStageInUse", err)
	}

	// middle stage is empty; removing it renumbers the tail
	if err := r.DeleteStage(ctx, stages[1].ID, p.Version, mut); err != nil {
		t.Fatalf("delete stage: %v", err)
	}
	left, _ := r.ListStages(ctx, p.ID)
	if len(left) != 2 {
		t.Fatalf("have %d stages", len(left))
	}
	for i, s := range left {
		if s.Position != i {
			t.Fatalf("stage %s at position %d after delete", s.Name, s.Position)
		}
	}

	got, _ := r.GetPipeline(ctx, p.ID)
	if got.Version != p.Version+1 {
		t.Fatalf("pipeline version = %d", got.Version)
	}
	// stale pipeline version now conflicts
	if err := r.DeleteStage(ctx, stages[2].ID, p.Version, mut); !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestSaveStageOrder(t *testing.T) {
	r := newTestRepo(t)
	p, stages := seedPipeline(t, r)
	ctx := context.Background()
	mut := Mutation{Type: "stages.reordered", ActorID: "test"}

	order := []string{stages[2].ID, stages[0].ID, stages[1].ID}
	if err := r.SaveStageOrder(ctx, p.ID, order, p.Version, mut); err != nil {
		t.Fatalf("save order: %v", err)
	}
	got, _ := r.ListStages(ctx, p.ID)
	for i, s := range got {
		if s.ID != order[i] {
			t.Fatalf("position %d holds %s, want %s", i, s.ID, order[i])
		}
	}
}

func TestEventsCursor(t *testing.T) {
	r := newTestRepo(t)
	p, stages := seedPipeline(t, r)
	seedDeal(t, r, stages[0].ID)
	ctx := context.Background()

	latest, err := r.LatestEventID(ctx, p.ID)
	if err != nil {
		t.Fatalf("latest event id: %v", err)
	}
	if latest == 0 {
		t.Fatal("no events recorded")
	}
	after, err := r.EventsAfter(ctx, 10, 0, p.ID)
	if err != nil {
		t.Fatalf("events after: %v", err)
	}
	if len(after) != 2 {
		t.Fatalf("have %d events, want 2", len(after))
	}
	if after[0].ID >= after[1].ID {
		t.Fatal("events not ascending")
	}
	none, _ := r.EventsAfter(ctx, 10, latest, p.ID)
	if len(none) != 0 {
		t.Fatalf("cursor at head returned %d events", len(none))
	}
}

func TestAPIKeys(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Format(time.RFC3339)

	raw := "secret-key"
	key := domain.APIKey{ID: "k1", ActorID: "alice", Name: "ci", KeyHash: HashAPIKey(raw), CreatedAt: now}
	if err := r.InsertAPIKey(ctx, key); err != nil {
		t.Fatalf("insert key: %v", err)
	}
	got, err := r.GetAPIKeyByHash(ctx, HashAPIKey(raw))
	if err != nil {
		t.Fatalf("get key: %v", err)
	}
	if got.ActorID != "alice" {
		t.Fatalf("key actor = %s", got.ActorID)
	}
	if _, err := r.GetAPIKeyByHash(ctx, HashAPIKey("wrong")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
