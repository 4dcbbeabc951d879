package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"dealflow/internal/config"
	"dealflow/internal/domain"
	"dealflow/internal/repo"
)

type testEnv struct {
	engine   Engine
	mem      *repo.Memory
	pipeline domain.Pipeline
	stages   []domain.Stage
	actor    domain.Actor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := repo.NewMemory()
	cfg := config.Default("pipe1")
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := New(mem, cfg, log)
	e.Now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	actor := domain.Actor{Kind: domain.ActorHuman, ID: "alice", DisplayName: "Alice"}
	p, stages, err := e.CreatePipeline(context.Background(), cfg, actor)
	if err != nil {
		t.Fatalf("create pipeline: %v", err)
	}
	return &testEnv{engine: e, mem: mem, pipeline: p, stages: stages, actor: actor}
}

func (env *testEnv) stage(t *testing.T, name string) domain.Stage {
	t.Helper()
	for _, s := range env.stages {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("no stage named %s", name)
	return domain.Stage{}
}

func (env *testEnv) createDeal(t *testing.T, lead string, value float64) domain.Deal {
	t.Helper()
	d, err := env.engine.CreateDeal(context.Background(), CreateDealOptions{
		PipelineID: env.pipeline.ID,
		LeadName:   lead,
		Value:      value,
		Actor:      env.actor,
	})
	if err != nil {
		t.Fatalf("create deal: %v", err)
	}
	return d
}

func TestCreateDealEntersFirstStage(t *testing.T) {
	env := newTestEnv(t)
	d := env.createDeal(t, "Acme", 500)
	if d.StageID != env.stage(t, "Qualificação").ID {
		t.Fatalf("deal entered stage %s, want first stage", d.StageID)
	}
	if d.Version != 1 {
		t.Fatalf("new deal version = %d, want 1", d.Version)
	}
}

func TestTransitionRecordsHistory(t *testing.T) {
	env := newTestEnv(t)
	d := env.createDeal(t, "Acme", 500)
	target := env.stage(t, "Negociação")

	res, err := env.engine.Transition(context.Background(), TransitionOptions{
		DealID:    d.ID,
		ToStageID: target.ID,
		Actor:     env.actor,
		Comments:  "warm intro",
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if res.NoOp {
		t.Fatal("transition reported no-op")
	}
	if res.Deal.StageID != target.ID {
		t.Fatalf("deal in stage %s, want %s", res.Deal.StageID, target.ID)
	}
	if res.Deal.Version != d.Version+1 {
		t.Fatalf("version = %d, want %d", res.Deal.Version, d.Version+1)
	}

	recs, err := env.engine.History(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("history has %d records, want 1", len(recs))
	}
	rec := recs[0]
	if rec.FromStageID != d.StageID || rec.ToStageID != target.ID {
		t.Fatalf("record moves %s -> %s, want %s -> %s", rec.FromStageID, rec.ToStageID, d.StageID, target.ID)
	}
	if rec.ActorKind != domain.ActorHuman || rec.ActorID != "alice" {
		t.Fatalf("record actor = %s/%s", rec.ActorKind, rec.ActorID)
	}
	if rec.Comments != "warm intro" {
		t.Fatalf("record comments = %q", rec.Comments)
	}
}

func TestTransitionSameStageIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	d := env.createDeal(t, "Acme", 500)

	res, err := env.engine.Transition(context.Background(), TransitionOptions{
		DealID:    d.ID,
		ToStageID: d.StageID,
		Actor:     env.actor,
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if !res.NoOp {
		t.Fatal("expected no-op")
	}
	if res.Record != nil {
		t.Fatal("no-op produced a record")
	}
	recs, _ := env.engine.History(context.Background(), d.ID)
	if len(recs) != 0 {
		t.Fatalf("history has %d records after no-op, want 0", len(recs))
	}
	got, _ := env.mem.GetDeal(context.Background(), d.ID)
	if got.Version != d.Version {
		t.Fatalf("no-op bumped version to %d", got.Version)
	}
}

func TestProposalRequiresValue(t *testing.T) {
	env := newTestEnv(t)
	d := env.createDeal(t, "Acme", 0)
	target := env.stage(t, "Proposta")

	_, err := env.engine.Transition(context.Background(), TransitionOptions{
		DealID:    d.ID,
		ToStageID: target.ID,
		Actor:     env.actor,
	})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	got, _ := env.mem.GetDeal(context.Background(), d.ID)
	if got.StageID != d.StageID || got.Version != d.Version {
		t.Fatal("rejected transition mutated the deal")
	}
	recs, _ := env.engine.History(context.Background(), d.ID)
	if len(recs) != 0 {
		t.Fatalf("rejected transition wrote %d records", len(recs))
	}

	// setting the value unlocks the move
	if _, err := env.engine.UpdateDealValue(context.Background(), d.ID, 2500, env.actor); err != nil {
		t.Fatalf("update value: %v", err)
	}
	if _, err := env.engine.Transition(context.Background(), TransitionOptions{
		DealID:    d.ID,
		ToStageID: target.ID,
		Actor:     env.actor,
	}); err != nil {
		t.Fatalf("transition after value set: %v", err)
	}
}

func TestWinRequiresKnownReason(t *testing.T) {
	env := newTestEnv(t)
	d := env.createDeal(t, "Acme", 9000)
	win := env.stage(t, "Ganho")

	_, err := env.engine.Transition(context.Background(), TransitionOptions{
		DealID:    d.ID,
		ToStageID: win.ID,
		Actor:     env.actor,
	})
	var mre *MissingReasonError
	if !errors.As(err, &mre) {
		t.Fatalf("err = %v, want MissingReasonError", err)
	}

	_, err = env.engine.Transition(context.Background(), TransitionOptions{
		DealID:    d.ID,
		ToStageID: win.ID,
		Actor:     env.actor,
		Reason:    "because",
	})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError for unknown reason", err)
	}

	res, err := env.engine.Transition(context.Background(), TransitionOptions{
		DealID:    d.ID,
		ToStageID: win.ID,
		Actor:     env.actor,
		Reason:    "best_fit",
	})
	if err != nil {
		t.Fatalf("transition with catalog reason: %v", err)
	}
	if res.Record.Reason != "best_fit" {
		t.Fatalf("record reason = %q", res.Record.Reason)
	}
}

func TestLossAlwaysReachable(t *testing.T) {
	env := newTestEnv(t)
	d := env.createDeal(t, "Acme", 0)
	loss := env.stage(t, "Perdido")

	res, err := env.engine.Transition(context.Background(), TransitionOptions{
		DealID:    d.ID,
		ToStageID: loss.ID,
		Actor:     env.actor,
		Reason:    "no_budget",
	})
	if err != nil {
		t.Fatalf("transition to loss: %v", err)
	}
	if res.Deal.StageID != loss.ID {
		t.Fatal("deal not in loss stage")
	}
}

func TestTransitionRetriesOnceOnConflict(t *testing.T) {
	env := newTestEnv(t)
	d := env.createDeal(t, "Acme", 500)
	target := env.stage(t, "Negociação")

	env.mem.BeforeDealWrite = func(stored *domain.Deal) {
		env.mem.BeforeDealWrite = nil
		stored.Version++
	}
	res, err := env.engine.Transition(context.Background(), TransitionOptions{
		DealID:    d.ID,
		ToStageID: target.ID,
		Actor:     env.actor,
	})
	if err != nil {
		t.Fatalf("transition with one conflict: %v", err)
	}
	if res.Deal.StageID != target.ID {
		t.Fatal("retried transition did not land")
	}
	recs, _ := env.engine.History(context.Background(), d.ID)
	if len(recs) != 1 {
		t.Fatalf("history has %d records, want 1", len(recs))
	}
}

func TestConcurrentTransitionsSerialize(t *testing.T) {
	env := newTestEnv(t)
	d := env.createDeal(t, "Acme", 500)
	target := env.stage(t, "Negociação")

	// two goroutines race the same move; exactly one applies, the other
	// lands on the idempotent same-stage path (directly or after a retry)
	var wg sync.WaitGroup
	results := make([]TransitionResult, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.engine.Transition(context.Background(), TransitionOptions{
				DealID:    d.ID,
				ToStageID: target.ID,
				Actor:     env.actor,
			})
		}(i)
	}
	wg.Wait()

	applied := 0
	for i := 0; i < 2; i++ {
		if errs[i] != nil {
			t.Fatalf("transition %d: %v", i, errs[i])
		}
		if !results[i].NoOp {
			applied++
		}
	}
	if applied != 1 {
		t.Fatalf("%d transitions applied, want exactly 1", applied)
	}
	got, _ := env.mem.GetDeal(context.Background(), d.ID)
	if got.StageID != target.ID {
		t.Fatalf("deal in stage %s, want %s", got.StageID, target.ID)
	}
	if got.Version != d.Version+1 {
		t.Fatalf("version = %d, want %d", got.Version, d.Version+1)
	}
	recs, _ := env.engine.History(context.Background(), d.ID)
	if len(recs) != 1 {
		t.Fatalf("history has %d records, want 1", len(recs))
	}
}

func TestTransitionSurfacesPersistentConflict(t *testing.T) {
	env := newTestEnv(t)
	d := env.createDeal(t, "Acme", 500)
	target := env.stage(t, "Negociação")

	env.mem.BeforeDealWrite = func(stored *domain.Deal) {
		stored.Version++
	}
	_, err := env.engine.Transition(context.Background(), TransitionOptions{
		DealID:    d.ID,
		ToStageID: target.ID,
		Actor:     env.actor,
	})
	if !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestTransitionUnknownStage(t *testing.T) {
	env := newTestEnv(t)
	d := env.createDeal(t, "Acme", 500)

	_, err := env.engine.Transition(context.Background(), TransitionOptions{
		DealID:    d.ID,
		ToStageID: "nope",
		Actor:     env.actor,
	})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestReorderStages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	order := make([]string, len(env.stages))
	for i, s := range env.stages {
		order[i] = s.ID
	}
	// swap the first two
	order[0], order[1] = order[1], order[0]

	stages, err := env.engine.ReorderStages(ctx, env.pipeline.ID, order, env.actor)
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	for i, s := range stages {
		if s.ID != order[i] {
			t.Fatalf("position %d holds %s, want %s", i, s.ID, order[i])
		}
		if s.Position != i {
			t.Fatalf("stage %s position = %d, want %d", s.Name, s.Position, i)
		}
	}
}

func TestReorderRejectsBadPermutations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ids := make([]string, len(env.stages))
	for i, s := range env.stages {
		ids[i] = s.ID
	}

	cases := map[string][]string{
		"missing stage": ids[:len(ids)-1],
		"duplicate":     append([]string{ids[0], ids[0]}, ids[2:]...),
		"unknown":       append([]string{"ghost"}, ids[1:]...),
	}
	for name, order := range cases {
		_, err := env.engine.ReorderStages(ctx, env.pipeline.ID, order, env.actor)
		var re *ReorderError
		if !errors.As(err, &re) {
			t.Fatalf("%s: err = %v, want ReorderError", name, err)
		}
	}
	// nothing moved
	stages, _ := env.mem.ListStages(ctx, env.pipeline.ID)
	for i, s := range stages {
		if s.ID != ids[i] {
			t.Fatalf("rejected reorder changed positions")
		}
	}
}

func TestDeleteStageBlockedWhileReferenced(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	d := env.createDeal(t, "Acme", 500)
	first := env.stage(t, "Qualificação")

	err := env.engine.DeleteStage(ctx, first.ID, env.actor)
	if !errors.Is(err, repo.ErrStageInUse) {
		t.Fatalf("err = %v, want ErrStageInUse", err)
	}

	// move the deal away, then deletion succeeds and positions close up
	neg := env.stage(t, "Negociação")
	if _, err := env.engine.Transition(ctx, TransitionOptions{DealID: d.ID, ToStageID: neg.ID, Actor: env.actor}); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if err := env.engine.DeleteStage(ctx, first.ID, env.actor); err != nil {
		t.Fatalf("delete stage: %v", err)
	}
	stages, _ := env.mem.ListStages(ctx, env.pipeline.ID)
	if len(stages) != len(env.stages)-1 {
		t.Fatalf("have %d stages, want %d", len(stages), len(env.stages)-1)
	}
	for i, s := range stages {
		if s.Position != i {
			t.Fatalf("positions not contiguous after delete: %s at %d", s.Name, s.Position)
		}
	}
}

func TestCreateStageRejectsDuplicateRole(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.CreateStage(context.Background(), env.pipeline.ID, "Fechado", "green", domain.RoleWin, env.actor)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	s, err := env.engine.CreateStage(context.Background(), env.pipeline.ID, "Em Espera", "", domain.RoleNormal, env.actor)
	if err != nil {
		t.Fatalf("create normal stage: %v", err)
	}
	if s.Position != len(env.stages) {
		t.Fatalf("new stage position = %d, want %d", s.Position, len(env.stages))
	}
}

func TestAddDealNoteAppends(t *testing.T) {
	env := newTestEnv(t)
	d := env.createDeal(t, "Acme", 100)
	ctx := context.Background()

	if _, err := env.engine.AddDealNote(ctx, d.ID, "first", env.actor); err != nil {
		t.Fatalf("note: %v", err)
	}
	got, err := env.engine.AddDealNote(ctx, d.ID, "second", env.actor)
	if err != nil {
		t.Fatalf("note: %v", err)
	}
	if got.Notes != "first\nsecond" {
		t.Fatalf("notes = %q", got.Notes)
	}
}
