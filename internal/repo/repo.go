package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"dealflow/internal/domain"
	"dealflow/internal/events"
)

// Repo is the SQLite-backed Store. Every mutation runs in a transaction and
// appends its event-log entry before committing.
type Repo struct {
	DB     *sql.DB
	Events events.Writer
}

func New(db *sql.DB) *Repo {
	return &Repo{DB: db, Events: events.Writer{Now: time.Now}}
}

var _ Store = (*Repo)(nil)

func (r *Repo) InsertPipeline(ctx context.Context, p domain.Pipeline, stages []domain.Stage, mut Mutation) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `INSERT INTO pipelines(id,name,owner,version,created_at) VALUES (?,?,?,?,?)`,
		p.ID, p.Name, nullable(p.Owner), p.Version, p.CreatedAt); err != nil {
		return fmt.Errorf("insert pipeline: %w", err)
	}
	for _, s := range stages {
		if _, err := tx.ExecContext(ctx, `INSERT INTO stages(id,pipeline_id,name,position,color,role) VALUES (?,?,?,?,?,?)`,
			s.ID, s.PipelineID, s.Name, s.Position, s.Color, string(s.Role)); err != nil {
			return fmt.Errorf("insert stage %s: %w", s.Name, err)
		}
	}
	if err := r.Events.Append(ctx, tx, mut.Type, p.ID, "pipeline", p.ID, mut.ActorID, mut.Payload); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repo) GetPipeline(ctx context.Context, id string) (domain.Pipeline, error) {
	var p domain.Pipeline
	var owner sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,owner,version,created_at FROM pipelines WHERE id=?`, id).
		Scan(&p.ID, &p.Name, &owner, &p.Version, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if owner.Valid {
		p.Owner = owner.String
	}
	return p, err
}

func (r *Repo) ListPipelines(ctx context.Context) ([]domain.Pipeline, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(owner,''),version,created_at FROM pipelines ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Pipeline
	for rows.Next() {
		var p domain.Pipeline
		if err := rows.Scan(&p.ID, &p.Name, &p.Owner, &p.Version, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r *Repo) SinglePipeline(ctx context.Context) (domain.Pipeline, error) {
	pipelines, err := r.ListPipelines(ctx)
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

func (r *Repo) ListStages(ctx context.Context, pipelineID string) ([]domain.Stage, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,pipeline_id,name,position,color,role FROM stages WHERE pipeline_id=? ORDER BY position ASC`, pipelineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Stage
	for rows.Next() {
		var s domain.Stage
		if err := rows.Scan(&s.ID, &s.PipelineID, &s.Name, &s.Position, &s.Color, &s.Role); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r *Repo) GetStage(ctx context.Context, id string) (domain.Stage, error) {
	var s domain.Stage
	err := r.DB.QueryRowContext(ctx, `SELECT id,pipeline_id,name,position,color,role FROM stages WHERE id=?`, id).
		Scan(&s.ID, &s.PipelineID, &s.Name, &s.Position, &s.Color, &s.Role)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

// bumpPipelineVersion is the optimistic guard shared by every stage-set
// mutation: it fails with ErrConflict when the caller's version is stale.
func (r *Repo) bumpPipelineVersion(ctx context.Context, tx *sql.Tx, pipelineID string, expectedVersion int64) error {
	res, err := tx.ExecContext(ctx, `UPDATE pipelines SET version=version+1 WHERE id=? AND version=?`, pipelineID, expectedVersion)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM pipelines WHERE id=?`, pipelineID).Scan(&exists); err == sql.ErrNoRows {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

func (r *Repo) InsertStage(ctx context.Context, s domain.Stage, expectedVersion int64, mut Mutation) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := r.bumpPipelineVersion(ctx, tx, s.PipelineID, expectedVersion); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO stages(id,pipeline_id,name,position,color,role) VALUES (?,?,?,?,?,?)`,
		s.ID, s.PipelineID, s.Name, s.Position, s.Color, string(s.Role)); err != nil {
		return fmt.Errorf("insert stage: %w", err)
	}
	if err := r.Events.Append(ctx, tx, mut.Type, s.PipelineID, "stage", s.ID, mut.ActorID, mut.Payload); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repo) DeleteStage(ctx context.Context, id string, expectedVersion int64, mut Mutation) error {
	s, err := r.GetStage(ctx, id)
	if err != nil {
		return err
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	var refs int
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM deals WHERE stage_id=?`, id).Scan(&refs); err != nil {
		return err
	}
	if refs > 0 {
		return ErrStageInUse
	}
	if err := r.bumpPipelineVersion(ctx, tx, s.PipelineID, expectedVersion); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM stages WHERE id=?`, id); err != nil {
		return err
	}
	// close the gap so positions stay contiguous; park in negative space
	// first so the UNIQUE(pipeline_id, position) constraint never trips
	if _, err := tx.ExecContext(ctx, `UPDATE stages SET position=-position WHERE pipeline_id=? AND position>?`, s.PipelineID, s.Position); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE stages SET position=-position-1 WHERE pipeline_id=? AND position<0`, s.PipelineID); err != nil {
		return err
	}
	if err := r.Events.Append(ctx, tx, mut.Type, s.PipelineID, "stage", id, mut.ActorID, mut.Payload); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repo) SaveStageOrder(ctx context.Context, pipelineID string, orderedIDs []string, expectedVersion int64, mut Mutation) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := r.bumpPipelineVersion(ctx, tx, pipelineID, expectedVersion); err != nil {
		return err
	}
	// two passes: park positions in negative space first so the
	// UNIQUE(pipeline_id, position) constraint never trips mid-shuffle
	for i, id := range orderedIDs {
		res, err := tx.ExecContext(ctx, `UPDATE stages SET position=? WHERE id=? AND pipeline_id=?`, -(i + 1), id, pipelineID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("stage %s: %w", id, ErrNotFound)
		}
	}
	for i, id := range orderedIDs {
		if _, err := tx.ExecContext(ctx, `UPDATE stages SET position=? WHERE id=? AND pipeline_id=?`, i, id, pipelineID); err != nil {
			return err
		}
	}
	if err := r.Events.Append(ctx, tx, mut.Type, pipelineID, "pipeline", pipelineID, mut.ActorID, mut.Payload); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repo) InsertDeal(ctx context.Context, d domain.Deal, mut Mutation) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `INSERT INTO deals(id,pipeline_id,stage_id,lead_id,lead_name,value,notes,assigned_to,version,stage_updated_at,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.PipelineID, d.StageID, nullableStringPtr(d.LeadID), d.LeadName, d.Value, nullable(d.Notes),
		nullableStringPtr(d.AssignedTo), d.Version, d.StageUpdatedAt, d.CreatedAt, d.UpdatedAt); err != nil {
		return fmt.Errorf("insert deal: %w", err)
	}
	if err := r.Events.Append(ctx, tx, mut.Type, d.PipelineID, "deal", d.ID, mut.ActorID, mut.Payload); err != nil {
		return err
	}
	return tx.Commit()
}

func scanDeal(scan func(dest ...any) error) (domain.Deal, error) {
	var d domain.Deal
	var leadID, notes, assignedTo sql.NullString
	err := scan(&d.ID, &d.PipelineID, &d.StageID, &leadID, &d.LeadName, &d.Value, &notes, &assignedTo,
		&d.Version, &d.StageUpdatedAt, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	if leadID.Valid {
		d.LeadID = &leadID.String
	}
	if notes.Valid {
		d.Notes = notes.String
	}
	if assignedTo.Valid {
		d.AssignedTo = &assignedTo.String
	}
	return d, nil
}

const dealColumns = `id,pipeline_id,stage_id,lead_id,lead_name,value,notes,assigned_to,version,stage_updated_at,created_at,updated_at`

func (r *Repo) GetDeal(ctx context.Context, id string) (domain.Deal, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+dealColumns+` FROM deals WHERE id=?`, id)
	return scanDeal(row.Scan)
}

func (r *Repo) ListDeals(ctx context.Context, f DealFilters) ([]domain.Deal, error) {
	var clauses []string
	var args []any
	if f.PipelineID != "" {
		clauses = append(clauses, "pipeline_id=?")
		args = append(args, f.PipelineID)
	}
	if f.StageID != "" {
		clauses = append(clauses, "stage_id=?")
		args = append(args, f.StageID)
	}
	if f.AssignedTo != "" {
		clauses = append(clauses, "assigned_to=?")
		args = append(args, f.AssignedTo)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + dealColumns + ` FROM deals ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Deal
	for rows.Next() {
		d, err := scanDeal(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// updateDealGuarded writes the deal conditioned on the version read by the
// caller; zero rows affected means either the deal vanished or the version
// is stale.
func (r *Repo) updateDealGuarded(ctx context.Context, tx *sql.Tx, d domain.Deal, expectedVersion int64) error {
	res, err := tx.ExecContext(ctx, `UPDATE deals SET stage_id=?, lead_id=?, lead_name=?, value=?, notes=?, assigned_to=?, version=version+1, stage_updated_at=?, updated_at=? WHERE id=? AND version=?`,
		d.StageID, nullableStringPtr(d.LeadID), d.LeadName, d.Value, nullable(d.Notes), nullableStringPtr(d.AssignedTo),
		d.StageUpdatedAt, d.UpdatedAt, d.ID, expectedVersion)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM deals WHERE id=?`, d.ID).Scan(&exists); err == sql.ErrNoRows {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

func (r *Repo) SaveDeal(ctx context.Context, d domain.Deal, expectedVersion int64, mut Mutation) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := r.updateDealGuarded(ctx, tx, d, expectedVersion); err != nil {
		return err
	}
	if err := r.Events.Append(ctx, tx, mut.Type, d.PipelineID, "deal", d.ID, mut.ActorID, mut.Payload); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repo) ApplyTransition(ctx context.Context, d domain.Deal, expectedVersion int64, rec domain.TransitionRecord) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := r.updateDealGuarded(ctx, tx, d, expectedVersion); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO transition_records(id,deal_id,from_stage_id,to_stage_id,actor_kind,actor_id,actor_name,reason,comments,conversation_id,step_name,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.ID, rec.DealID, rec.FromStageID, rec.ToStageID, string(rec.ActorKind), rec.ActorID, nullable(rec.ActorName),
		nullable(rec.Reason), nullable(rec.Comments), nullableStringPtr(rec.ConversationID), nullableStringPtr(rec.StepName), rec.CreatedAt); err != nil {
		return fmt.Errorf("append transition record: %w", err)
	}
	if err := r.Events.Append(ctx, tx, "deal.transitioned", d.PipelineID, "deal", d.ID, rec.ActorID, events.EventPayload{
		"from":       rec.FromStageID,
		"to":         rec.ToStageID,
		"actor_kind": rec.ActorKind,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repo) ListTransitionRecords(ctx context.Context, dealID string) ([]domain.TransitionRecord, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,deal_id,from_stage_id,to_stage_id,actor_kind,actor_id,actor_name,reason,comments,conversation_id,step_name,created_at
FROM transition_records WHERE deal_id=? ORDER BY created_at ASC, id ASC`, dealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TransitionRecord
	for rows.Next() {
		var rec domain.TransitionRecord
		var actorName, reason, comments, conversationID, stepName sql.NullString
		if err := rows.Scan(&rec.ID, &rec.DealID, &rec.FromStageID, &rec.ToStageID, &rec.ActorKind, &rec.ActorID,
			&actorName, &reason, &comments, &conversationID, &stepName, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if actorName.Valid {
			rec.ActorName = actorName.String
		}
		if reason.Valid {
			rec.Reason = reason.String
		}
		if comments.Valid {
			rec.Comments = comments.String
		}
		if conversationID.Valid {
			rec.ConversationID = &conversationID.String
		}
		if stepName.Valid {
			rec.StepName = &stepName.String
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

func (r *Repo) InsertFollowUpTask(ctx context.Context, t domain.FollowUpTask, mut Mutation) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	done := 0
	if t.Done {
		done = 1
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO followup_tasks(id,deal_id,title,due_at,created_by,done,created_at) VALUES (?,?,?,?,?,?,?)`,
		t.ID, t.DealID, t.Title, t.DueAt, t.CreatedBy, done, t.CreatedAt); err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	var pipelineID string
	_ = tx.QueryRowContext(ctx, `SELECT pipeline_id FROM deals WHERE id=?`, t.DealID).Scan(&pipelineID)
	if err := r.Events.Append(ctx, tx, mut.Type, pipelineID, "task", t.ID, mut.ActorID, mut.Payload); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repo) ListFollowUpTasks(ctx context.Context, dealID string) ([]domain.FollowUpTask, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,deal_id,title,due_at,created_by,done,created_at FROM followup_tasks WHERE deal_id=? ORDER BY due_at ASC`, dealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.FollowUpTask
	for rows.Next() {
		var t domain.FollowUpTask
		var done int
		if err := rows.Scan(&t.ID, &t.DealID, &t.Title, &t.DueAt, &t.CreatedBy, &done, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Done = done != 0
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r *Repo) LatestEvents(ctx context.Context, limit int, pipelineID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if pipelineID != "" {
		clauses = append(clauses, "pipeline_id=?")
		args = append(args, pipelineID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,pipeline_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r *Repo) EventsAfter(ctx context.Context, limit int, cursor int64, pipelineID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if pipelineID != "" {
		clauses = append(clauses, "pipeline_id=?")
		args = append(args, pipelineID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,pipeline_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id ASC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

func (r *Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var pipelineID, entityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &pipelineID, &e.EntityKind, &entityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if pipelineID.Valid {
			e.PipelineID = pipelineID.String
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the most recent event ID for a pipeline.
func (r *Repo) LatestEventID(ctx context.Context, pipelineID string) (int64, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events WHERE pipeline_id=?`, pipelineID)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
