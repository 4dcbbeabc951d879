package domain

// StageRole classifies what a stage means to the pipeline, independent of
// its user-editable display name. Gatekeeper rules and the agent bridge
// resolve stages by role, never by name.
type StageRole string

const (
	RoleNormal   StageRole = "normal"
	RoleProposal StageRole = "proposal"
	RoleWin      StageRole = "win"
	RoleLoss     StageRole = "loss"
)

// Terminal reports whether a deal entering this role ends its life.
func (r StageRole) Terminal() bool {
	return r == RoleWin || r == RoleLoss
}

// ActorKind distinguishes human-driven from agent-driven mutations.
type ActorKind string

const (
	ActorHuman ActorKind = "human"
	ActorAgent ActorKind = "agent"
)

// Actor identifies who caused a transition.
type Actor struct {
	Kind        ActorKind `json:"kind" enum:"human,agent"`
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name,omitempty"`
}

type Pipeline struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Owner     string `json:"owner,omitempty"`
	Version   int64  `json:"version"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Stage struct {
	ID         string    `json:"id"`
	PipelineID string    `json:"pipeline_id"`
	Name       string    `json:"name"`
	Position   int       `json:"position"`
	Color      string    `json:"color" enum:"slate,red,orange,amber,green,teal,blue,violet"`
	Role       StageRole `json:"role" enum:"normal,proposal,win,loss"`
}

type Deal struct {
	ID             string  `json:"id"`
	PipelineID     string  `json:"pipeline_id"`
	StageID        string  `json:"stage_id"`
	LeadID         *string `json:"lead_id,omitempty"`
	LeadName       string  `json:"lead_name"`
	Value          float64 `json:"value"`
	Notes          string  `json:"notes,omitempty"`
	AssignedTo     *string `json:"assigned_to,omitempty"`
	Version        int64   `json:"version"`
	StageUpdatedAt string  `json:"stage_updated_at" format:"date-time"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
	UpdatedAt      string  `json:"updated_at" format:"date-time"`
}

// TransitionRecord is one append-only audit entry for a successful stage
// transition. Records are never updated or deleted.
type TransitionRecord struct {
	ID             string    `json:"id"`
	DealID         string    `json:"deal_id"`
	FromStageID    string    `json:"from_stage_id"`
	ToStageID      string    `json:"to_stage_id"`
	ActorKind      ActorKind `json:"actor_kind" enum:"human,agent"`
	ActorID        string    `json:"actor_id"`
	ActorName      string    `json:"actor_name,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	Comments       string    `json:"comments,omitempty"`
	ConversationID *string   `json:"conversation_id,omitempty"`
	StepName       *string   `json:"step_name,omitempty"`
	CreatedAt      string    `json:"created_at" format:"date-time"`
}

// FollowUpTask is a scheduled reminder attached to a deal, created by
// operators or by the agent's schedule_task action.
type FollowUpTask struct {
	ID        string `json:"id"`
	DealID    string `json:"deal_id"`
	Title     string `json:"title"`
	DueAt     string `json:"due_at" format:"date-time"`
	CreatedBy string `json:"created_by"`
	Done      bool   `json:"done"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	PipelineID string `json:"pipeline_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// StageColors is the accepted palette for stage display colors.
var StageColors = []string{"slate", "red", "orange", "amber", "green", "teal", "blue", "violet"}

// ValidStageColor reports whether c is in the accepted palette.
func ValidStageColor(c string) bool {
	for _, v := range StageColors {
		if v == c {
			return true
		}
	}
	return false
}
