package server

import (
	"dealflow/internal/domain"
)

type StageDefRequest struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty" enum:"slate,red,orange,amber,green,teal,blue,violet"`
	Role  string `json:"role,omitempty" enum:"normal,proposal,win,loss"`
}

type CreatePipelineRequest struct {
	ID     string            `json:"id"`
	Name   string            `json:"name,omitempty"`
	Owner  string            `json:"owner,omitempty"`
	Stages []StageDefRequest `json:"stages"`
}

type PipelineResponse struct {
	Pipeline domain.Pipeline `json:"pipeline"`
	Stages   []domain.Stage  `json:"stages,omitempty"`
}

type CreateStageRequest struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty" enum:"slate,red,orange,amber,green,teal,blue,violet"`
	Role  string `json:"role,omitempty" enum:"normal,proposal,win,loss"`
}

type ReorderStagesRequest struct {
	Order []string `json:"order"`
}

type CreateDealRequest struct {
	PipelineID string  `json:"pipeline_id"`
	StageID    string  `json:"stage_id,omitempty"`
	LeadName   string  `json:"lead_name"`
	LeadID     *string `json:"lead_id,omitempty"`
	Value      float64 `json:"value,omitempty"`
	Notes      string  `json:"notes,omitempty"`
	AssignedTo *string `json:"assigned_to,omitempty"`
}

type TransitionRequest struct {
	ToStageID string `json:"to_stage_id"`
	Reason    string `json:"reason,omitempty"`
	Comments  string `json:"comments,omitempty"`
}

type TransitionResponse struct {
	Deal   domain.Deal              `json:"deal"`
	Record *domain.TransitionRecord `json:"record,omitempty"`
	NoOp   bool                     `json:"no_op"`
}

type UpdateValueRequest struct {
	Value float64 `json:"value"`
}

type AddNoteRequest struct {
	Note string `json:"note"`
}

type AssignRequest struct {
	AssignedTo string `json:"assigned_to"`
}

type ScheduleTaskRequest struct {
	Title string `json:"title"`
	DueAt string `json:"due_at" format:"date-time"`
}
