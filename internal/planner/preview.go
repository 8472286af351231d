package planner

import (
	"github.com/xkilldash9x/goalpilot/internal/action"
	"github.com/xkilldash9x/goalpilot/internal/goal"
)

// Step is the dry-run plan of one subgoal.
type Step struct {
	Subgoal goal.Subgoal    `json:"subgoal"`
	Actions []action.Action `json:"actions"`
	Error   string          `json:"error,omitempty"`
}

// Preview plans every subgoal in order without executing anything. The page is assumed
// to stay wherever the last planned openUrl left it.
func (p *Planner) Preview(g goal.Goal, subgoals []goal.Subgoal) []Step {
	steps := make([]Step, 0, len(subgoals))
	current := ""
	for _, sg := range subgoals {
		actions, err := p.ActionsFor(Request{Instruction: sg.Description, Goal: g.Statement, CurrentURL: current})
		step := Step{Subgoal: sg, Actions: actions}
		if err != nil {
			step.Error = err.Error()
		}
		if step.Actions == nil {
			step.Actions = []action.Action{}
		}
		for _, a := range actions {
			if a.Kind == action.KindOpenURL {
				current = a.URL
			}
		}
		steps = append(steps, step)
	}
	return steps
}
