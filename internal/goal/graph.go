package goal

import (
	"errors"
	"fmt"
)

var (
	ErrDependencyCycle   = errors.New("dependency cycle")
	ErrUnknownDependency = errors.New("unknown dependency")
	ErrDuplicateSubgoal  = errors.New("duplicate subgoal id")
	ErrUnknownSubgoal    = errors.New("unknown subgoal")
)

// Graph schedules subgoals in dependency order. A graph belongs to a single goal
// execution and is not safe for concurrent use.
//
// A failed subgoal never joins the completed set, so once anything fails IsComplete can
// no longer become true. Callers that keep going past a failure stop on IsTerminal.
type Graph struct {
	subgoals  map[string]*Subgoal
	ids       []string
	order     []string
	completed []string
	done      map[string]bool
	current   string
}

// Progress is a snapshot of a graph's state.
type Progress struct {
	Total      int     `json:"total_subgoals"`
	Completed  int     `json:"completed"`
	Failed     int     `json:"failed"`
	Remaining  int     `json:"remaining"`
	Percentage float64 `json:"progress_percentage"`
	Current    string  `json:"current_subgoal,omitempty"`
}

// NewGraph validates subgoals and computes their execution order. Duplicate ids,
// dependencies on ids outside the set and dependency cycles are rejected.
func NewGraph(subgoals []Subgoal) (*Graph, error) {
	g := &Graph{
		subgoals: make(map[string]*Subgoal, len(subgoals)),
		ids:      make([]string, 0, len(subgoals)),
		done:     make(map[string]bool, len(subgoals)),
	}
	for _, sg := range subgoals {
		if _, dup := g.subgoals[sg.ID]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateSubgoal, sg.ID)
		}
		sg.Dependencies = append([]string(nil), sg.Dependencies...)
		if sg.Status == "" {
			sg.Status = StatusPending
		}
		g.subgoals[sg.ID] = &sg
		g.ids = append(g.ids, sg.ID)
	}
	for _, id := range g.ids {
		for _, dep := range g.subgoals[id].Dependencies {
			if _, ok := g.subgoals[dep]; !ok {
				return nil, fmt.Errorf("%w: %q depends on %q", ErrUnknownDependency, id, dep)
			}
		}
	}

	order, err := g.topoSort()
	if err != nil {
		return nil, err
	}
	g.order = order
	return g, nil
}

// topoSort is a depth-first post-order walk in insertion order, so independent subgoals
// keep the order they were given in.
func (g *Graph) topoSort() ([]string, error) {
	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[string]int, len(g.ids))
	order := make([]string, 0, len(g.ids))

	var visit func(id string, path []string) error
	visit = func(id string, path []string) error {
		switch state[id] {
		case visited:
			return nil
		case visiting:
			return fmt.Errorf("%w: %v", ErrDependencyCycle, append(path, id))
		}
		state[id] = visiting
		for _, dep := range g.subgoals[id].Dependencies {
			if err := visit(dep, append(path, id)); err != nil {
				return err
			}
		}
		state[id] = visited
		order = append(order, id)
		return nil
	}

	for _, id := range g.ids {
		if err := visit(id, nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Next returns the first subgoal in execution order that is neither completed nor failed
// and whose dependencies are all completed. It marks that subgoal in progress.
func (g *Graph) Next() (Subgoal, bool) {
	for _, id := range g.order {
		sg := g.subgoals[id]
		if g.done[id] || sg.Status == StatusFailed {
			continue
		}
		if g.ready(sg) {
			sg.Status = StatusInProgress
			g.current = id
			return g.copyOf(sg), true
		}
	}
	return Subgoal{}, false
}

// HasEligible reports whether Next would return a subgoal, without side effects.
func (g *Graph) HasEligible() bool {
	for _, id := range g.order {
		sg := g.subgoals[id]
		if !g.done[id] && sg.Status != StatusFailed && g.ready(sg) {
			return true
		}
	}
	return false
}

func (g *Graph) ready(sg *Subgoal) bool {
	for _, dep := range sg.Dependencies {
		if !g.done[dep] {
			return false
		}
	}
	return true
}

// MarkCompleted records id as completed. Completing an id twice is a no-op.
func (g *Graph) MarkCompleted(id string) error {
	sg, ok := g.subgoals[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSubgoal, id)
	}
	sg.Status = StatusCompleted
	if !g.done[id] {
		g.done[id] = true
		g.completed = append(g.completed, id)
	}
	return nil
}

// MarkFailed records id as failed. A completed subgoal stays completed.
func (g *Graph) MarkFailed(id string) error {
	sg, ok := g.subgoals[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSubgoal, id)
	}
	if !g.done[id] {
		sg.Status = StatusFailed
	}
	return nil
}

// IsComplete is true once every subgoal has been completed.
func (g *Graph) IsComplete() bool {
	return len(g.completed) == len(g.subgoals)
}

// IsTerminal is true when the graph is complete or nothing further can be scheduled.
// Time and step budgets are the caller's to check.
func (g *Graph) IsTerminal() bool {
	return g.IsComplete() || !g.HasEligible()
}

// FailedCount is the number of subgoals currently marked failed.
func (g *Graph) FailedCount() int {
	n := 0
	for _, sg := range g.subgoals {
		if sg.Status == StatusFailed {
			n++
		}
	}
	return n
}

func (g *Graph) Progress() Progress {
	total := len(g.subgoals)
	p := Progress{
		Total:     total,
		Completed: len(g.completed),
		Failed:    g.FailedCount(),
		Current:   g.current,
	}
	p.Remaining = p.Total - p.Completed - p.Failed
	if total > 0 {
		p.Percentage = float64(p.Completed) / float64(total) * 100
	}
	return p
}

// Order returns the execution order.
func (g *Graph) Order() []string {
	return append([]string(nil), g.order...)
}

// Completed returns completed ids in completion order.
func (g *Graph) Completed() []string {
	return append([]string(nil), g.completed...)
}

func (g *Graph) Len() int { return len(g.subgoals) }

// Subgoal returns a copy of the subgoal with the given id.
func (g *Graph) Subgoal(id string) (Subgoal, bool) {
	sg, ok := g.subgoals[id]
	if !ok {
		return Subgoal{}, false
	}
	return g.copyOf(sg), true
}

// Subgoals returns copies of all subgoals in the order they were given.
func (g *Graph) Subgoals() []Subgoal {
	out := make([]Subgoal, 0, len(g.ids))
	for _, id := range g.ids {
		out = append(out, g.copyOf(g.subgoals[id]))
	}
	return out
}

func (g *Graph) copyOf(sg *Subgoal) Subgoal {
	c := *sg
	c.Dependencies = append([]string(nil), sg.Dependencies...)
	return c
}
