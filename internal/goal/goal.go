// Package goal turns commands into structured goals, decomposes them into subgoals and
// schedules those subgoals over a dependency graph.
package goal

// Type is the detected intent of a command.
type Type string

const (
	TypeSearch      Type = "search"
	TypeExtraction  Type = "extraction"
	TypeNavigation  Type = "navigation"
	TypeComparison  Type = "comparison"
	TypeAnalysis    Type = "analysis"
	TypeInteraction Type = "interaction"
	TypeMonitoring  Type = "monitoring"
)

// Priority of a goal. Interpreted goals are always medium priority.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Goal is the measurable interpretation of a command. It is not modified after creation.
type Goal struct {
	ID               string   `json:"id"`
	OriginalCommand  string   `json:"original_command"`
	Statement        string   `json:"goal_statement"`
	SuccessCondition string   `json:"success_condition"`
	Type             Type     `json:"goal_type"`
	Priority         Priority `json:"priority"`
	EstimatedSteps   int      `json:"estimated_steps"`
	Domain           string   `json:"domain"`
}

// Status of a subgoal within a graph.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Subgoal is one step toward a goal.
type Subgoal struct {
	ID               string   `json:"id"`
	Description      string   `json:"description"`
	Dependencies     []string `json:"dependencies"`
	SuccessCriteria  string   `json:"success_criteria"`
	EstimatedActions int      `json:"estimated_actions"`
	Status           Status   `json:"status"`
}
