// Package bridge executes pipeline actions on behalf of conversational
// agents. Every action returns a Result instead of an error so the calling
// agent always gets something it can relay to the user.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"dealflow/internal/domain"
	"dealflow/internal/engine"
	"dealflow/internal/metrics"
	"dealflow/internal/repo"
)

// Action is one of the closed set of operations an agent may request.
// Anything outside the enumerated values is rejected, not guessed at.
type Action string

const (
	ActionMoveStage    Action = "move_stage"
	ActionCreateDeal   Action = "create_deal"
	ActionUpdateValue  Action = "update_value"
	ActionAddNote      Action = "add_note"
	ActionScheduleTask Action = "schedule_task"
)

// Request is one agent action. Stage references resolve by role first
// (proposal, win, loss) and then by case-insensitive name, so renaming a
// stage in the UI does not break agent workflows.
type Request struct {
	Action         Action  `json:"action" enum:"move_stage,create_deal,update_value,add_note,schedule_task"`
	PipelineID     string  `json:"pipeline_id,omitempty"`
	DealID         string  `json:"deal_id,omitempty"`
	Stage          string  `json:"stage,omitempty"`
	LeadName       string  `json:"lead_name,omitempty"`
	Value          float64 `json:"value,omitempty"`
	Reason         string  `json:"reason,omitempty"`
	Note           string  `json:"note,omitempty"`
	TaskTitle      string  `json:"task_title,omitempty"`
	DueAt          string  `json:"due_at,omitempty"`
	AgentID        string  `json:"agent_id,omitempty"`
	AgentName      string  `json:"agent_name,omitempty"`
	ConversationID string  `json:"conversation_id,omitempty"`
	StepName       string  `json:"step_name,omitempty"`
}

// Result is what the agent sees. Success false plus Error, never a thrown
// failure.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	DealID  string `json:"deal_id,omitempty"`
}

type Bridge struct {
	Engine engine.Engine
	Store  repo.Store
	Log    *slog.Logger
}

func (b Bridge) logger() *slog.Logger {
	if b.Log == nil {
		return slog.Default()
	}
	return b.Log
}

// Execute runs one action. Engine rejections come back as failed Results
// with the engine's user-facing message.
func (b Bridge) Execute(ctx context.Context, req Request) Result {
	var res Result
	switch req.Action {
	case ActionMoveStage:
		res = b.moveStage(ctx, req)
	case ActionCreateDeal:
		res = b.createDeal(ctx, req)
	case ActionUpdateValue:
		res = b.updateValue(ctx, req)
	case ActionAddNote:
		res = b.addNote(ctx, req)
	case ActionScheduleTask:
		res = b.scheduleTask(ctx, req)
	default:
		res = Result{Error: fmt.Sprintf("unknown action %q", req.Action)}
	}
	outcome := "ok"
	if !res.Success {
		outcome = "failed"
		b.logger().Warn("agent action failed", "action", req.Action, "agent", req.AgentName, "error", res.Error)
	}
	metrics.AgentActionsTotal.WithLabelValues(string(req.Action), outcome).Inc()
	return res
}

// actor builds the audit identity for an agent request. The stable agent
// ID is the actor ID; the display name is just a label.
func (b Bridge) actor(req Request) domain.Actor {
	id := req.AgentID
	if id == "" {
		id = req.AgentName
	}
	if id == "" {
		id = "agent"
	}
	name := req.AgentName
	if name == "" {
		name = id
	}
	return domain.Actor{Kind: domain.ActorAgent, ID: id, DisplayName: name}
}

func fail(err error) Result {
	return Result{Error: err.Error()}
}

func (b Bridge) pipelineID(ctx context.Context, req Request) (string, error) {
	if req.PipelineID != "" {
		return req.PipelineID, nil
	}
	p, err := b.Store.SinglePipeline(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve pipeline: %w", err)
	}
	return p.ID, nil
}

// resolveStage finds a stage by role keyword or display name.
func (b Bridge) resolveStage(ctx context.Context, pipelineID, ref string) (domain.Stage, error) {
	stages, err := b.Store.ListStages(ctx, pipelineID)
	if err != nil {
		return domain.Stage{}, err
	}
	switch domain.StageRole(strings.ToLower(ref)) {
	case domain.RoleProposal, domain.RoleWin, domain.RoleLoss:
		for _, s := range stages {
			if s.Role == domain.StageRole(strings.ToLower(ref)) {
				return s, nil
			}
		}
	}
	for _, s := range stages {
		if strings.EqualFold(s.Name, ref) {
			return s, nil
		}
	}
	return domain.Stage{}, fmt.Errorf("no stage matches %q", ref)
}

func (b Bridge) moveStage(ctx context.Context, req Request) Result {
	if req.DealID == "" {
		return Result{Error: "deal_id is required"}
	}
	if req.Stage == "" {
		return Result{Error: "stage is required"}
	}
	deal, err := b.Store.GetDeal(ctx, req.DealID)
	if err != nil {
		return fail(err)
	}
	to, err := b.resolveStage(ctx, deal.PipelineID, req.Stage)
	if err != nil {
		return fail(err)
	}
	if to.Role.Terminal() && req.Reason == "" {
		return Result{Error: fmt.Sprintf("closing a deal as %s requires a reason", to.Role), DealID: deal.ID}
	}
	actor := b.actor(req)
	comments := fmt.Sprintf("moved automatically by agent %s", actor.DisplayName)
	if req.StepName != "" {
		comments += fmt.Sprintf(" during step %s", req.StepName)
	}
	opts := engine.TransitionOptions{
		DealID:    deal.ID,
		ToStageID: to.ID,
		Actor:     actor,
		Reason:    req.Reason,
		Comments:  comments,
	}
	if req.ConversationID != "" {
		opts.ConversationID = &req.ConversationID
	}
	if req.StepName != "" {
		opts.StepName = &req.StepName
	}
	res, err := b.Engine.Transition(ctx, opts)
	if err != nil {
		return Result{Error: err.Error(), DealID: deal.ID}
	}
	if res.NoOp {
		return Result{Success: true, Message: fmt.Sprintf("deal already in %s", to.Name), DealID: deal.ID}
	}
	return Result{Success: true, Message: fmt.Sprintf("deal moved to %s", to.Name), DealID: deal.ID}
}

func (b Bridge) createDeal(ctx context.Context, req Request) Result {
	pipelineID, err := b.pipelineID(ctx, req)
	if err != nil {
		return fail(err)
	}
	opts := engine.CreateDealOptions{
		PipelineID: pipelineID,
		LeadName:   req.LeadName,
		Value:      req.Value,
		Actor:      b.actor(req),
	}
	if req.Stage != "" {
		s, err := b.resolveStage(ctx, pipelineID, req.Stage)
		if err != nil {
			return fail(err)
		}
		opts.StageID = s.ID
	}
	d, err := b.Engine.CreateDeal(ctx, opts)
	if err != nil {
		return fail(err)
	}
	return Result{Success: true, Message: fmt.Sprintf("deal created for %s", d.LeadName), DealID: d.ID}
}

func (b Bridge) updateValue(ctx context.Context, req Request) Result {
	if req.DealID == "" {
		return Result{Error: "deal_id is required"}
	}
	d, err := b.Engine.UpdateDealValue(ctx, req.DealID, req.Value, b.actor(req))
	if err != nil {
		return Result{Error: err.Error(), DealID: req.DealID}
	}
	return Result{Success: true, Message: fmt.Sprintf("deal value set to %.2f", d.Value), DealID: d.ID}
}

func (b Bridge) addNote(ctx context.Context, req Request) Result {
	if req.DealID == "" {
		return Result{Error: "deal_id is required"}
	}
	d, err := b.Engine.AddDealNote(ctx, req.DealID, req.Note, b.actor(req))
	if err != nil {
		return Result{Error: err.Error(), DealID: req.DealID}
	}
	return Result{Success: true, Message: "note added", DealID: d.ID}
}

func (b Bridge) scheduleTask(ctx context.Context, req Request) Result {
	if req.DealID == "" {
		return Result{Error: "deal_id is required"}
	}
	t, err := b.Engine.ScheduleTask(ctx, req.DealID, req.TaskTitle, req.DueAt, b.actor(req))
	if err != nil {
		return Result{Error: err.Error(), DealID: req.DealID}
	}
	return Result{Success: true, Message: fmt.Sprintf("task %q scheduled for %s", t.Title, t.DueAt), DealID: req.DealID}
}
