package models

import "time"

// Priority levels accepted for tasks.
const (
	PriorityLow  = "low"
	PriorityMed  = "med"
	PriorityHigh = "high"
)

// ValidPriorities enumerates the priorities a task may carry.
var ValidPriorities = map[string]struct{}{
	PriorityLow:  {},
	PriorityMed:  {},
	PriorityHigh: {},
}

// Stage is a single workflow column a task can occupy. Built-in stages come
// from the methodology catalog; custom stages carry the owning team id.
type Stage struct {
	ID          string    `json:"id"`
	TeamID      *int64    `json:"team_id,omitempty"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Icon        string    `json:"icon,omitempty"`
	Color       string    `json:"color"`
	OrderIndex  int       `json:"order_index"`
	IsInitial   bool      `json:"is_initial"`
	IsFinal     bool      `json:"is_final"`
	Custom      bool      `json:"custom"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// Methodology is a named, ordered set of workflow stages.
type Methodology struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Stages      []Stage `json:"stages"`
}

// Task represents a single card on a board.
type Task struct {
	ID           int64      `json:"id"`
	OwnerUserID  int64      `json:"owner_user_id"`
	TeamID       *int64     `json:"team_id,omitempty"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Priority     string     `json:"priority"`
	Status       string     `json:"status"`
	Assignee     *int64     `json:"assignee,omitempty"`
	AssigneeName string     `json:"assignee_name,omitempty"`
	MilestoneID  *int64     `json:"milestone_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// TaskFilter narrows task listings. A nil TeamID selects personal tasks.
type TaskFilter struct {
	TeamID      *int64
	Status      string
	Priority    string
	MilestoneID *int64
}

// Milestone groups tasks under a due date with an optional handoff rule.
type Milestone struct {
	ID            int64      `json:"id"`
	TeamID        *int64     `json:"team_id,omitempty"`
	OwnerUserID   int64      `json:"owner_user_id"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	HandoffTo     *int64     `json:"handoff_to,omitempty"`
	HandoffToName string     `json:"handoff_to_name,omitempty"`
	HandoffStage  string     `json:"handoff_stage,omitempty"`
	TaskCount     int        `json:"task_count"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Team is a group of users sharing tasks, stages and milestones.
type Team struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	OwnerID     int64     `json:"owner_id"`
	Methodology string    `json:"methodology"`
	UserRole    string    `json:"user_role,omitempty"`
	MemberCount int       `json:"member_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Member is a user's membership in a team.
type Member struct {
	TeamID   int64     `json:"team_id"`
	UserID   int64     `json:"user_id"`
	Username string    `json:"username"`
	Name     string    `json:"name"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// User mirrors the principal supplied by the auth collaborator.
type User struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	Name        string `json:"name"`
	Methodology string `json:"methodology"`
}

// Principal is the verified caller of a request.
type Principal struct {
	UserID   int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// Activity actions written to the log.
const (
	ActionCreated       = "created"
	ActionUpdated       = "updated"
	ActionStatusChanged = "status_changed"
	ActionCompleted     = "completed"
	ActionDeleted       = "deleted"
)

// ActivityEntry is an append-only record of a task lifecycle event.
type ActivityEntry struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	TaskID    int64     `json:"task_id"`
	TaskTitle string    `json:"task_title"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}
