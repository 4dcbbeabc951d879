package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"dealflow/internal/domain"
)

// Memory is an in-process Store used by tests and by callers that want the
// engine without a database. It enforces the same version discipline as the
// SQLite adapter.
type Memory struct {
	mu          sync.Mutex
	pipelines   map[string]domain.Pipeline
	stages      map[string]domain.Stage
	deals       map[string]domain.Deal
	transitions map[string][]domain.TransitionRecord
	tasks       map[string][]domain.FollowUpTask
	events      []domain.Event
	apiKeys     map[string]domain.APIKey
	nextEventID int64

	// BeforeDealWrite runs before every guarded deal write with the stored
	// deal; tests mutate it to simulate a concurrent writer.
	BeforeDealWrite func(d *domain.Deal)
}

func NewMemory() *Memory {
	return &Memory{
		pipelines:   map[string]domain.Pipeline{},
		stages:      map[string]domain.Stage{},
		deals:       map[string]domain.Deal{},
		transitions: map[string][]domain.TransitionRecord{},
		tasks:       map[string][]domain.FollowUpTask{},
		apiKeys:     map[string]domain.APIKey{},
	}
}

var _ Store = (*Memory)(nil)

func (m *Memory) appendEvent(evtType, pipelineID, entityKind, entityID, actorID string, payload map[string]any) {
	m.nextEventID++
	data, _ := json.Marshal(payload)
	if payload == nil {
		data = []byte("{}")
	}
	m.events = append(m.events, domain.Event{
		ID:         m.nextEventID,
		TS:         time.Now().UTC().Format(time.RFC3339),
		Type:       evtType,
		PipelineID: pipelineID,
		EntityKind: entityKind,
		EntityID:   entityID,
		ActorID:    actorID,
		Payload:    string(data),
	})
}

func (m *Memory) InsertPipeline(_ context.Context, p domain.Pipeline, stages []domain.Stage, mut Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pipelines[p.ID] = p
	for _, s := range stages {
		m.stages[s.ID] = s
	}
	m.appendEvent(mut.Type, p.ID, "pipeline", p.ID, mut.ActorID, mut.Payload)
	return nil
}

func (m *Memory) GetPipeline(_ context.Context, id string) (domain.Pipeline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pipelines[id]
	if !ok {
		return domain.Pipeline{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) ListPipelines(_ context.Context) ([]domain.Pipeline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []domain.Pipeline
	for _, p := range m.pipelines {
		res = append(res, p)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt > res[j].CreatedAt })
	return res, nil
}

func (m *Memory) SinglePipeline(ctx context.Context) (domain.Pipeline, error) {
	pipelines, err := m.ListPipelines(ctx)
	if err != nil {
		return domain.Pipeline{}, err
	}
	if len(pipelines) == 0 {
		return domain.Pipeline{}, ErrNotFound
	}
	if len(pipelines) > 1 {
		return domain.Pipeline{}, fmt.Errorf("multiple pipelines exist; specify --pipeline")
	}
	return pipelines[0], nil
}

func (m *Memory) ListStages(_ context.Context, pipelineID string) ([]domain.Stage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []domain.Stage
	for _, s := range m.stages {
		if s.PipelineID == pipelineID {
			res = append(res, s)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Position < res[j].Position })
	return res, nil
}

func (m *Memory) GetStage(_ context.Context, id string) (domain.Stage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stages[id]
	if !ok {
		return domain.Stage{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) bumpPipeline(pipelineID string, expectedVersion int64) error {
	p, ok := m.pipelines[pipelineID]
	if !ok {
		return ErrNotFound
	}
	if p.Version != expectedVersion {
		return ErrConflict
	}
	p.Version++
	m.pipelines[pipelineID] = p
	return nil
}

func (m *Memory) InsertStage(_ context.Context, s domain.Stage, expectedVersion int64, mut Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.bumpPipeline(s.PipelineID, expectedVersion); err != nil {
		return err
	}
	m.stages[s.ID] = s
	m.appendEvent(mut.Type, s.PipelineID, "stage", s.ID, mut.ActorID, mut.Payload)
	return nil
}

func (m *Memory) DeleteStage(_ context.Context, id string, expectedVersion int64, mut Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stages[id]
	if !ok {
		return ErrNotFound
	}
	for _, d := range m.deals {
		if d.StageID == id {
			return ErrStageInUse
		}
	}
	if err := m.bumpPipeline(s.PipelineID, expectedVersion); err != nil {
		return err
	}
	delete(m.stages, id)
	for sid, other := range m.stages {
		if other.PipelineID == s.PipelineID && other.Position > s.Position {
			other.Position--
			m.stages[sid] = other
		}
	}
	m.appendEvent(mut.Type, s.PipelineID, "stage", id, mut.ActorID, mut.Payload)
	return nil
}

func (m *Memory) SaveStageOrder(_ context.Context, pipelineID string, orderedIDs []string, expectedVersion int64, mut Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.bumpPipeline(pipelineID, expectedVersion); err != nil {
		return err
	}
	for i, id := range orderedIDs {
		s, ok := m.stages[id]
		if !ok || s.PipelineID != pipelineID {
			return fmt.Errorf("stage %s: %w", id, ErrNotFound)
		}
		s.Position = i
		m.stages[id] = s
	}
	m.appendEvent(mut.Type, pipelineID, "pipeline", pipelineID, mut.ActorID, mut.Payload)
	return nil
}

func (m *Memory) InsertDeal(_ context.Context, d domain.Deal, mut Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deals[d.ID] = d
	m.appendEvent(mut.Type, d.PipelineID, "deal", d.ID, mut.ActorID, mut.Payload)
	return nil
}

func (m *Memory) GetDeal(_ context.Context, id string) (domain.Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deals[id]
	if !ok {
		return domain.Deal{}, ErrNotFound
	}
	return d, nil
}

func (m *Memory) ListDeals(_ context.Context, f DealFilters) ([]domain.Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []domain.Deal
	for _, d := range m.deals {
		if f.PipelineID != "" && d.PipelineID != f.PipelineID {
			continue
		}
		if f.StageID != "" && d.StageID != f.StageID {
			continue
		}
		if f.AssignedTo != "" && (d.AssignedTo == nil || *d.AssignedTo != f.AssignedTo) {
			continue
		}
		res = append(res, d)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt != res[j].CreatedAt {
			return res[i].CreatedAt > res[j].CreatedAt
		}
		return res[i].ID > res[j].ID
	})
	if f.Limit > 0 && len(res) > f.Limit {
		res = res[:f.Limit]
	}
	return res, nil
}

func (m *Memory) writeDealGuarded(d domain.Deal, expectedVersion int64) error {
	cur, ok := m.deals[d.ID]
	if !ok {
		return ErrNotFound
	}
	if m.BeforeDealWrite != nil {
		m.BeforeDealWrite(&cur)
		m.deals[d.ID] = cur
	}
	if cur.Version != expectedVersion {
		return ErrConflict
	}
	d.Version = expectedVersion + 1
	m.deals[d.ID] = d
	return nil
}

func (m *Memory) SaveDeal(_ context.Context, d domain.Deal, expectedVersion int64, mut Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeDealGuarded(d, expectedVersion); err != nil {
		return err
	}
	m.appendEvent(mut.Type, d.PipelineID, "deal", d.ID, mut.ActorID, mut.Payload)
	return nil
}

func (m *Memory) ApplyTransition(_ context.Context, d domain.Deal, expectedVersion int64, rec domain.TransitionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeDealGuarded(d, expectedVersion); err != nil {
		return err
	}
	m.transitions[d.ID] = append(m.transitions[d.ID], rec)
	m.appendEvent("deal.transitioned", d.PipelineID, "deal", d.ID, rec.ActorID, map[string]any{
		"from":       rec.FromStageID,
		"to":         rec.ToStageID,
		"actor_kind": rec.ActorKind,
	})
	return nil
}

func (m *Memory) ListTransitionRecords(_ context.Context, dealID string) ([]domain.TransitionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.transitions[dealID]
	out := make([]domain.TransitionRecord, len(recs))
	copy(out, recs)
	return out, nil
}

func (m *Memory) InsertFollowUpTask(_ context.Context, t domain.FollowUpTask, mut Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.DealID] = append(m.tasks[t.DealID], t)
	pipelineID := ""
	if d, ok := m.deals[t.DealID]; ok {
		pipelineID = d.PipelineID
	}
	m.appendEvent(mut.Type, pipelineID, "task", t.ID, mut.ActorID, mut.Payload)
	return nil
}

func (m *Memory) ListFollowUpTasks(_ context.Context, dealID string) ([]domain.FollowUpTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tasks := m.tasks[dealID]
	out := make([]domain.FollowUpTask, len(tasks))
	copy(out, tasks)
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt < out[j].DueAt })
	return out, nil
}

func (m *Memory) LatestEvents(_ context.Context, limit int, pipelineID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []domain.Event
	for i := len(m.events) - 1; i >= 0 && len(res) < limit; i-- {
		e := m.events[i]
		if pipelineID != "" && e.PipelineID != pipelineID {
			continue
		}
		if evtType != "" && e.Type != evtType {
			continue
		}
		if entityKind != "" && e.EntityKind != entityKind {
			continue
		}
		if entityID != "" && e.EntityID != entityID {
			continue
		}
		res = append(res, e)
	}
	return res, nil
}

func (m *Memory) EventsAfter(_ context.Context, limit int, cursor int64, pipelineID string) ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	var res []domain.Event
	for _, e := range m.events {
		if e.ID <= cursor {
			continue
		}
		if pipelineID != "" && e.PipelineID != pipelineID {
			continue
		}
		res = append(res, e)
		if len(res) == limit {
			break
		}
	}
	return res, nil
}

func (m *Memory) LatestEventID(_ context.Context, pipelineID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.events) - 1; i >= 0; i-- {
		if pipelineID == "" || m.events[i].PipelineID == pipelineID {
			return m.events[i].ID, nil
		}
	}
	return 0, nil
}

func (m *Memory) GetAPIKeyByHash(_ context.Context, hash string) (domain.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.apiKeys[hash]
	if !ok {
		return domain.APIKey{}, ErrNotFound
	}
	return k, nil
}

func (m *Memory) InsertAPIKey(_ context.Context, k domain.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apiKeys[k.KeyHash] = k
	return nil
}
