// Package engine holds the pipeline transition engine: every deal mutation
// goes through here so gate rules, version checks and the audit log stay
// consistent no matter which surface (API, CLI, agent bridge) asked.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"dealflow/internal/config"
	"dealflow/internal/domain"
	"dealflow/internal/metrics"
	"dealflow/internal/notify"
	"dealflow/internal/repo"
)

type Engine struct {
	Store    repo.Store
	Config   *config.Config
	Rules    RuleSet
	Notifier notify.Notifier
	Log      *slog.Logger
	Now      func() time.Time
}

// New wires an engine with the default gate rules.
func New(store repo.Store, cfg *config.Config, log *slog.Logger) Engine {
	return Engine{
		Store:  store,
		Config: cfg,
		Rules:  DefaultRules(),
		Log:    log,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e Engine) nowRFC3339() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) logger() *slog.Logger {
	if e.Log == nil {
		return slog.Default()
	}
	return e.Log
}

// TransitionOptions describes one requested stage move.
type TransitionOptions struct {
	DealID    string
	ToStageID string
	Actor     domain.Actor
	// Reason is required when the target stage is terminal (win or loss)
	// and must come from the configured close-reason catalog.
	Reason   string
	Comments string
	// ConversationID and StepName attribute agent-driven moves back to the
	// conversation and workflow step that caused them.
	ConversationID *string
	StepName       *string
}

// TransitionResult reports what happened. NoOp means the deal was already
// in the target stage; nothing was written and Record is nil.
type TransitionResult struct {
	Deal   domain.Deal
	Record *domain.TransitionRecord
	NoOp   bool
}

// Transition moves a deal to another stage. The write is guarded by the
// deal's version; on a lost race the engine re-reads and re-validates once
// before giving up with repo.ErrConflict.
func (e Engine) Transition(ctx context.Context, opts TransitionOptions) (TransitionResult, error) {
	res, err := e.transitionOnce(ctx, opts)
	if errors.Is(err, repo.ErrConflict) {
		e.logger().Debug("transition lost a version race, retrying", "deal_id", opts.DealID)
		res, err = e.transitionOnce(ctx, opts)
	}
	switch {
	case err == nil && res.NoOp:
		metrics.TransitionsTotal.WithLabelValues("noop").Inc()
	case err == nil:
		metrics.TransitionsTotal.WithLabelValues("applied").Inc()
	case errors.Is(err, repo.ErrConflict):
		metrics.TransitionsTotal.WithLabelValues("conflict").Inc()
	default:
		metrics.TransitionsTotal.WithLabelValues("rejected").Inc()
	}
	return res, err
}

func (e Engine) transitionOnce(ctx context.Context, opts TransitionOptions) (TransitionResult, error) {
	deal, err := e.Store.GetDeal(ctx, opts.DealID)
	if err != nil {
		return TransitionResult{}, err
	}
	if deal.StageID == opts.ToStageID {
		return TransitionResult{Deal: deal, NoOp: true}, nil
	}
	from, err := e.Store.GetStage(ctx, deal.StageID)
	if err != nil {
		return TransitionResult{}, &PersistenceError{Op: "load current stage", Err: err}
	}
	to, err := e.Store.GetStage(ctx, opts.ToStageID)
	if err != nil {
		return TransitionResult{}, err
	}
	if to.PipelineID != deal.PipelineID {
		return TransitionResult{}, &ValidationError{Reason: fmt.Sprintf("stage %s belongs to another pipeline", to.Name)}
	}
	if dec := e.Rules.Evaluate(deal, from, to); !dec.Allowed {
		return TransitionResult{}, &ValidationError{Reason: dec.Reason}
	}
	if to.Role.Terminal() {
		if opts.Reason == "" {
			return TransitionResult{}, &MissingReasonError{Role: to.Role}
		}
		if e.Config != nil && !e.Config.KnownReason(to.Role, opts.Reason) {
			return TransitionResult{}, &ValidationError{Reason: fmt.Sprintf("motivo %q não está no catálogo de %s", opts.Reason, to.Name)}
		}
	}

	now := e.nowRFC3339()
	updated := deal
	updated.StageID = to.ID
	updated.StageUpdatedAt = now
	updated.UpdatedAt = now
	rec := domain.TransitionRecord{
		ID:             uuid.NewString(),
		DealID:         deal.ID,
		FromStageID:    from.ID,
		ToStageID:      to.ID,
		ActorKind:      opts.Actor.Kind,
		ActorID:        opts.Actor.ID,
		ActorName:      opts.Actor.DisplayName,
		Reason:         opts.Reason,
		Comments:       opts.Comments,
		ConversationID: opts.ConversationID,
		StepName:       opts.StepName,
		CreatedAt:      now,
	}
	if err := e.Store.ApplyTransition(ctx, updated, deal.Version, rec); err != nil {
		if errors.Is(err, repo.ErrConflict) || errors.Is(err, repo.ErrNotFound) {
			return TransitionResult{}, err
		}
		return TransitionResult{}, &PersistenceError{Op: "apply transition", Err: err}
	}
	updated.Version = deal.Version + 1

	if e.Notifier != nil {
		e.Notifier.DealTransitioned(ctx, notify.DealTransition{Deal: updated, From: from, To: to, Record: rec})
	}
	return TransitionResult{Deal: updated, Record: &rec}, nil
}

// History returns a deal's transition records in chronological order. The
// deal must exist even when it has never moved.
func (e Engine) History(ctx context.Context, dealID string) ([]domain.TransitionRecord, error) {
	if _, err := e.Store.GetDeal(ctx, dealID); err != nil {
		return nil, err
	}
	return e.Store.ListTransitionRecords(ctx, dealID)
}

// CreatePipeline seeds a pipeline and its stage set from config.
func (e Engine) CreatePipeline(ctx context.Context, cfg *config.Config, actor domain.Actor) (domain.Pipeline, []domain.Stage, error) {
	if err := cfg.Validate(); err != nil {
		return domain.Pipeline{}, nil, &ValidationError{Reason: err.Error()}
	}
	now := e.nowRFC3339()
	p := domain.Pipeline{
		ID:        cfg.Pipeline.ID,
		Name:      cfg.Pipeline.Name,
		Owner:     cfg.Pipeline.Owner,
		Version:   1,
		CreatedAt: now,
	}
	if p.Name == "" {
		p.Name = p.ID
	}
	stages := make([]domain.Stage, 0, len(cfg.Stages))
	for i, def := range cfg.Stages {
		role := def.Role
		if role == "" {
			role = domain.RoleNormal
		}
		color := def.Color
		if color == "" {
			color = "slate"
		}
		stages = append(stages, domain.Stage{
			ID:         uuid.NewString(),
			PipelineID: p.ID,
			Name:       def.Name,
			Position:   i,
			Color:      color,
			Role:       role,
		})
	}
	mut := repo.Mutation{Type: "pipeline.created", ActorID: actor.ID, Payload: map[string]any{"name": p.Name, "stages": len(stages)}}
	if err := e.Store.InsertPipeline(ctx, p, stages, mut); err != nil {
		return domain.Pipeline{}, nil, &PersistenceError{Op: "create pipeline", Err: err}
	}
	return p, stages, nil
}

// CreateDealOptions carries the fields for a new deal. StageID defaults to
// the pipeline's first stage.
type CreateDealOptions struct {
	PipelineID string
	StageID    string
	LeadName   string
	LeadID     *string
	Value      float64
	Notes      string
	AssignedTo *string
	Actor      domain.Actor
}

func (e Engine) CreateDeal(ctx context.Context, opts CreateDealOptions) (domain.Deal, error) {
	if strings.TrimSpace(opts.LeadName) == "" {
		return domain.Deal{}, &ValidationError{Reason: "lead_name is required"}
	}
	if opts.Value < 0 {
		return domain.Deal{}, &ValidationError{Reason: "value must not be negative"}
	}
	if _, err := e.Store.GetPipeline(ctx, opts.PipelineID); err != nil {
		return domain.Deal{}, err
	}
	stageID := opts.StageID
	if stageID == "" {
		stages, err := e.Store.ListStages(ctx, opts.PipelineID)
		if err != nil {
			return domain.Deal{}, &PersistenceError{Op: "list stages", Err: err}
		}
		if len(stages) == 0 {
			return domain.Deal{}, &ValidationError{Reason: "pipeline has no stages"}
		}
		stageID = stages[0].ID
	} else {
		s, err := e.Store.GetStage(ctx, stageID)
		if err != nil {
			return domain.Deal{}, err
		}
		if s.PipelineID != opts.PipelineID {
			return domain.Deal{}, &ValidationError{Reason: "stage belongs to another pipeline"}
		}
	}
	now := e.nowRFC3339()
	d := domain.Deal{
		ID:             uuid.NewString(),
		PipelineID:     opts.PipelineID,
		StageID:        stageID,
		LeadID:         opts.LeadID,
		LeadName:       strings.TrimSpace(opts.LeadName),
		Value:          opts.Value,
		Notes:          opts.Notes,
		AssignedTo:     opts.AssignedTo,
		Version:        1,
		StageUpdatedAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	mut := repo.Mutation{Type: "deal.created", ActorID: opts.Actor.ID, Payload: map[string]any{"lead_name": d.LeadName, "value": d.Value}}
	if err := e.Store.InsertDeal(ctx, d, mut); err != nil {
		return domain.Deal{}, &PersistenceError{Op: "create deal", Err: err}
	}
	return d, nil
}

// updateDeal re-reads and reapplies a field mutation once after a lost
// version race, mirroring Transition's retry discipline.
func (e Engine) updateDeal(ctx context.Context, dealID string, mutType string, actor domain.Actor, apply func(*domain.Deal) error, payload map[string]any) (domain.Deal, error) {
	attempt := func() (domain.Deal, error) {
		d, err := e.Store.GetDeal(ctx, dealID)
		if err != nil {
			return domain.Deal{}, err
		}
		expected := d.Version
		if err := apply(&d); err != nil {
			return domain.Deal{}, err
		}
		d.UpdatedAt = e.nowRFC3339()
		mut := repo.Mutation{Type: mutType, ActorID: actor.ID, Payload: payload}
		if err := e.Store.SaveDeal(ctx, d, expected, mut); err != nil {
			return domain.Deal{}, err
		}
		d.Version = expected + 1
		return d, nil
	}
	d, err := attempt()
	if errors.Is(err, repo.ErrConflict) {
		d, err = attempt()
	}
	return d, err
}

func (e Engine) UpdateDealValue(ctx context.Context, dealID string, value float64, actor domain.Actor) (domain.Deal, error) {
	if value < 0 {
		return domain.Deal{}, &ValidationError{Reason: "value must not be negative"}
	}
	return e.updateDeal(ctx, dealID, "deal.value_updated", actor, func(d *domain.Deal) error {
		d.Value = value
		return nil
	}, map[string]any{"value": value})
}

// AddDealNote appends a note line to the deal's notes.
func (e Engine) AddDealNote(ctx context.Context, dealID, note string, actor domain.Actor) (domain.Deal, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return domain.Deal{}, &ValidationError{Reason: "note must not be empty"}
	}
	return e.updateDeal(ctx, dealID, "deal.note_added", actor, func(d *domain.Deal) error {
		if d.Notes == "" {
			d.Notes = note
		} else {
			d.Notes = d.Notes + "\n" + note
		}
		return nil
	}, map[string]any{"note": note})
}

func (e Engine) AssignDeal(ctx context.Context, dealID, assignee string, actor domain.Actor) (domain.Deal, error) {
	return e.updateDeal(ctx, dealID, "deal.assigned", actor, func(d *domain.Deal) error {
		if assignee == "" {
			d.AssignedTo = nil
		} else {
			d.AssignedTo = &assignee
		}
		return nil
	}, map[string]any{"assigned_to": assignee})
}

// ScheduleTask attaches a follow-up task to a deal.
func (e Engine) ScheduleTask(ctx context.Context, dealID, title, dueAt string, actor domain.Actor) (domain.FollowUpTask, error) {
	if strings.TrimSpace(title) == "" {
		return domain.FollowUpTask{}, &ValidationError{Reason: "task title must not be empty"}
	}
	if _, err := time.Parse(time.RFC3339, dueAt); err != nil {
		return domain.FollowUpTask{}, &ValidationError{Reason: "due_at must be an RFC3339 timestamp"}
	}
	if _, err := e.Store.GetDeal(ctx, dealID); err != nil {
		return domain.FollowUpTask{}, err
	}
	t := domain.FollowUpTask{
		ID:        uuid.NewString(),
		DealID:    dealID,
		Title:     strings.TrimSpace(title),
		DueAt:     dueAt,
		CreatedBy: actor.ID,
		CreatedAt: e.nowRFC3339(),
	}
	mut := repo.Mutation{Type: "task.created", ActorID: actor.ID, Payload: map[string]any{"title": t.Title, "due_at": t.DueAt}}
	if err := e.Store.InsertFollowUpTask(ctx, t, mut); err != nil {
		return domain.FollowUpTask{}, &PersistenceError{Op: "schedule task", Err: err}
	}
	return t, nil
}

// CreateStage appends a stage at the end of the pipeline. Proposal, win and
// loss roles stay unique within a pipeline.
func (e Engine) CreateStage(ctx context.Context, pipelineID, name, color string, role domain.StageRole, actor domain.Actor) (domain.Stage, error) {
	if strings.TrimSpace(name) == "" {
		return domain.Stage{}, &ValidationError{Reason: "stage name must not be empty"}
	}
	if color == "" {
		color = "slate"
	}
	if !domain.ValidStageColor(color) {
		return domain.Stage{}, &ValidationError{Reason: fmt.Sprintf("unknown stage color %s", color)}
	}
	if role == "" {
		role = domain.RoleNormal
	}
	p, err := e.Store.GetPipeline(ctx, pipelineID)
	if err != nil {
		return domain.Stage{}, err
	}
	stages, err := e.Store.ListStages(ctx, pipelineID)
	if err != nil {
		return domain.Stage{}, &PersistenceError{Op: "list stages", Err: err}
	}
	if role != domain.RoleNormal {
		for _, s := range stages {
			if s.Role == role {
				return domain.Stage{}, &ValidationError{Reason: fmt.Sprintf("pipeline already has a %s stage (%s)", role, s.Name)}
			}
		}
	}
	s := domain.Stage{
		ID:         uuid.NewString(),
		PipelineID: pipelineID,
		Name:       strings.TrimSpace(name),
		Position:   len(stages),
		Color:      color,
		Role:       role,
	}
	mut := repo.Mutation{Type: "stage.created", ActorID: actor.ID, Payload: map[string]any{"name": s.Name, "role": string(role)}}
	if err := e.Store.InsertStage(ctx, s, p.Version, mut); err != nil {
		if errors.Is(err, repo.ErrConflict) || errors.Is(err, repo.ErrNotFound) {
			return domain.Stage{}, err
		}
		return domain.Stage{}, &PersistenceError{Op: "create stage", Err: err}
	}
	return s, nil
}

// DeleteStage removes a stage that no deal references.
func (e Engine) DeleteStage(ctx context.Context, stageID string, actor domain.Actor) error {
	s, err := e.Store.GetStage(ctx, stageID)
	if err != nil {
		return err
	}
	p, err := e.Store.GetPipeline(ctx, s.PipelineID)
	if err != nil {
		return err
	}
	mut := repo.Mutation{Type: "stage.deleted", ActorID: actor.ID, Payload: map[string]any{"name": s.Name}}
	if err := e.Store.DeleteStage(ctx, stageID, p.Version, mut); err != nil {
		if errors.Is(err, repo.ErrStageInUse) || errors.Is(err, repo.ErrConflict) || errors.Is(err, repo.ErrNotFound) {
			return err
		}
		return &PersistenceError{Op: "delete stage", Err: err}
	}
	return nil
}

// ReorderStages replaces the pipeline's stage order. The requested order
// must be an exact permutation of the current stage set; anything else is
// rejected without writing.
func (e Engine) ReorderStages(ctx context.Context, pipelineID string, orderedIDs []string, actor domain.Actor) ([]domain.Stage, error) {
	p, err := e.Store.GetPipeline(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	current, err := e.Store.ListStages(ctx, pipelineID)
	if err != nil {
		return nil, &PersistenceError{Op: "list stages", Err: err}
	}
	if len(orderedIDs) != len(current) {
		return nil, &ReorderError{Reason: fmt.Sprintf("order lists %d stages, pipeline has %d", len(orderedIDs), len(current))}
	}
	known := make(map[string]bool, len(current))
	for _, s := range current {
		known[s.ID] = true
	}
	seen := make(map[string]bool, len(orderedIDs))
	for _, id := range orderedIDs {
		if !known[id] {
			return nil, &ReorderError{Reason: fmt.Sprintf("unknown stage %s", id)}
		}
		if seen[id] {
			return nil, &ReorderError{Reason: fmt.Sprintf("stage %s listed twice", id)}
		}
		seen[id] = true
	}
	mut := repo.Mutation{Type: "stages.reordered", ActorID: actor.ID, Payload: map[string]any{"order": orderedIDs}}
	if err := e.Store.SaveStageOrder(ctx, pipelineID, orderedIDs, p.Version, mut); err != nil {
		if errors.Is(err, repo.ErrConflict) || errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
		return nil, &PersistenceError{Op: "save stage order", Err: err}
	}
	return e.Store.ListStages(ctx, pipelineID)
}
