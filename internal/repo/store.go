package repo

import (
	"context"
	"errors"

	"dealflow/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict means a version-conditioned write lost a race; the caller
	// must re-read before retrying.
	ErrConflict = errors.New("version conflict")
	// ErrStageInUse blocks stage deletion while deals still reference it.
	ErrStageInUse = errors.New("stage referenced by deals")
)

type DealFilters struct {
	PipelineID string
	StageID    string
	AssignedTo string
	Limit      int
}

// Mutation carries actor attribution and payload for the event-log entry a
// store writes atomically with the mutation itself.
type Mutation struct {
	Type    string
	ActorID string
	Payload map[string]any
}

// Store is the persistence port for the transition engine. Writes that
// change versioned rows take the version observed at read time and fail
// with ErrConflict when it is stale. Implementations must honor the
// caller's context deadline on every call.
type Store interface {
	InsertPipeline(ctx context.Context, p domain.Pipeline, stages []domain.Stage, mut Mutation) error
	GetPipeline(ctx context.Context, id string) (domain.Pipeline, error)
	ListPipelines(ctx context.Context) ([]domain.Pipeline, error)
	SinglePipeline(ctx context.Context) (domain.Pipeline, error)

	ListStages(ctx context.Context, pipelineID string) ([]domain.Stage, error)
	GetStage(ctx context.Context, id string) (domain.Stage, error)
	InsertStage(ctx context.Context, s domain.Stage, expectedVersion int64, mut Mutation) error
	DeleteStage(ctx context.Context, id string, expectedVersion int64, mut Mutation) error
	SaveStageOrder(ctx context.Context, pipelineID string, orderedIDs []string, expectedVersion int64, mut Mutation) error

	InsertDeal(ctx context.Context, d domain.Deal, mut Mutation) error
	GetDeal(ctx context.Context, id string) (domain.Deal, error)
	ListDeals(ctx context.Context, f DealFilters) ([]domain.Deal, error)
	SaveDeal(ctx context.Context, d domain.Deal, expectedVersion int64, mut Mutation) error
	// ApplyTransition persists the deal's new stage and appends the audit
	// record in one atomic write; the transition is not durable until both
	// succeed.
	ApplyTransition(ctx context.Context, d domain.Deal, expectedVersion int64, rec domain.TransitionRecord) error

	ListTransitionRecords(ctx context.Context, dealID string) ([]domain.TransitionRecord, error)

	InsertFollowUpTask(ctx context.Context, t domain.FollowUpTask, mut Mutation) error
	ListFollowUpTasks(ctx context.Context, dealID string) ([]domain.FollowUpTask, error)

	LatestEvents(ctx context.Context, limit int, pipelineID, evtType, entityKind, entityID string) ([]domain.Event, error)
	EventsAfter(ctx context.Context, limit int, cursor int64, pipelineID string) ([]domain.Event, error)
	LatestEventID(ctx context.Context, pipelineID string) (int64, error)

	GetAPIKeyByHash(ctx context.Context, hash string) (domain.APIKey, error)
	InsertAPIKey(ctx context.Context, k domain.APIKey) error
}
