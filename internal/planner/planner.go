// internal/planner/planner.go
package planner

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/goalpilot/internal/action"
	"github.com/xkilldash9x/goalpilot/internal/executor"
	"github.com/xkilldash9x/goalpilot/internal/goal"
	"github.com/xkilldash9x/goalpilot/internal/rules"
	"github.com/xkilldash9x/goalpilot/internal/site"
)

var (
	// ErrUnsafeCommand is returned for commands naming an operation the planner refuses to automate.
	ErrUnsafeCommand = errors.New("unsafe command")
	// ErrEmptyCommand is returned for blank commands.
	ErrEmptyCommand = errors.New("empty command")
)

// Intent is what a subgoal description asks the browser to do.
type Intent string

const (
	IntentNavigate     Intent = "navigate"
	IntentExtract      Intent = "extract"
	IntentLocateSearch Intent = "locate_search"
	IntentSearch       Intent = "search"
	IntentLocate       Intent = "locate"
	IntentNone         Intent = "none"
)

// DefaultUnsafeKeywords are refused wherever they occur in a command or goal.
var DefaultUnsafeKeywords = []string{
	"delete account",
	"purchase",
	"payment",
	"password",
	"transfer money",
	"shutdown",
	"delete system32",
	"restart laptop",
}

// DefaultIntentRules maps subgoal descriptions to intents. Descriptions that only
// reshape data already collected (format, validate, present...) fall to IntentNone.
func DefaultIntentRules() rules.Table[Intent] {
	return rules.Table[Intent]{
		Default: IntentNone,
		Rules: []rules.Rule[Intent]{
			{Any: []string{"navigate", "open "}, Result: IntentNavigate},
			{Any: []string{"extract", "gather", "collect"}, Result: IntentExtract},
			{All: []string{"search"}, Any: []string{"locate", "find", " bar"}, Result: IntentLocateSearch},
			{Any: []string{"search for", "execute search", "search query"}, Result: IntentSearch},
			{Any: []string{"locate", "find"}, Result: IntentLocate},
		},
	}
}

// planKey is where the planner keeps a run's action list between turns.
const planKey = "planner.actions"

var (
	urlRe        = regexp.MustCompile(`(?i)https?://[^\s"'<>]+`)
	bareDomainRe = regexp.MustCompile(`(?i)\b[a-z0-9][a-z0-9-]*(?:\.[a-z0-9-]+)*\.(?:com|org|net|io|dev|in|co)\b`)
	openTargetRe = regexp.MustCompile(`(?i)^(?:open|kholo|chalo|go to)\s+([a-z0-9-]+)[.!]?$`)
	searchTailRe = regexp.MustCompile(`(?i)search\s+for(?:\s+jobs)?\s*:\s*(.+)$`)
)

// Request is everything the planner reads to turn one instruction into actions.
type Request struct {
	// Instruction is the subgoal description, or the raw command outside a goal.
	Instruction string `json:"instruction"`
	// Goal is the goal statement the instruction belongs to.
	Goal string `json:"goal"`
	// CurrentURL is the page the browser is on, if any.
	CurrentURL string `json:"current_url,omitempty"`
}

// Planner is a rule-driven planner. It has no per-run state of its own and is safe
// for concurrent use.
type Planner struct {
	logger  *zap.Logger
	sites   []site.Site
	intents rules.Table[Intent]
	unsafe  []string
}

// Option configures a Planner.
type Option func(*Planner)

// WithSites replaces the known-site table. An empty list keeps the defaults.
func WithSites(sites []site.Site) Option {
	return func(p *Planner) {
		if len(sites) > 0 {
			p.sites = sites
		}
	}
}

// WithIntentRules replaces DefaultIntentRules. A table without rules keeps the defaults.
func WithIntentRules(t rules.Table[Intent]) Option {
	return func(p *Planner) {
		if len(t.Rules) > 0 {
			if t.Default == "" {
				t.Default = IntentNone
			}
			p.intents = t
		}
	}
}

// WithUnsafeKeywords replaces DefaultUnsafeKeywords. An empty list keeps the defaults.
func WithUnsafeKeywords(keywords []string) Option {
	return func(p *Planner) {
		if len(keywords) > 0 {
			p.unsafe = keywords
		}
	}
}

// New creates a planner.
func New(logger *zap.Logger, opts ...Option) (*Planner, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	p := &Planner{
		logger:  logger.Named("planner"),
		sites:   site.Defaults(),
		intents: DefaultIntentRules(),
		unsafe:  DefaultUnsafeKeywords,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Plan implements executor.Planner. The action list for a run is computed on the first
// turn and stored in the run context; later turns hand out the entry at CurrentStep.
// A failed last action ends the run since the list has no alternatives to offer.
func (p *Planner) Plan(ctx context.Context, command string, rc *executor.RunContext) (executor.Plan, error) {
	if err := ctx.Err(); err != nil {
		return executor.Plan{}, err
	}
	if rc.LastOutcome != nil && !rc.LastOutcome.OK {
		return executor.Plan{Status: executor.PlanError, Message: "Action failed: " + rc.LastOutcome.Error}, nil
	}

	actions, ok := rc.Values[planKey].([]action.Action)
	if !ok {
		req := Request{Instruction: command, Goal: command, CurrentURL: rc.CurrentURL}
		if sub := rc.String("current_subgoal"); sub != "" {
			req.Instruction = sub
		}
		if g := rc.String("goal"); g != "" {
			req.Goal = g
		}

		var err error
		actions, err = p.ActionsFor(req)
		if err != nil {
			p.logger.Warn("Refusing to plan", zap.String("command", command), zap.Error(err))
			return executor.Plan{Status: executor.PlanError, Message: err.Error()}, nil
		}
		if rc.Values == nil {
			rc.Values = make(map[string]any)
		}
		rc.Values[planKey] = actions
		p.logger.Debug("Planned actions",
			zap.String("instruction", req.Instruction),
			zap.Int("count", len(actions)))
	}

	if rc.CurrentStep >= len(actions) {
		msg := "All planned actions executed"
		if len(actions) == 0 {
			msg = "No action needed"
		}
		return executor.Plan{Status: executor.PlanCompleted, Message: msg}, nil
	}
	next := actions[rc.CurrentStep]
	return executor.Plan{Status: executor.PlanInProgress, NextAction: &next}, nil
}

// Actions plans a standalone command from a blank page.
func (p *Planner) Actions(command string) ([]action.Action, error) {
	return p.ActionsFor(Request{Instruction: command, Goal: command})
}

// ActionsFor returns the full action list for req. Every returned action has passed
// validation.
func (p *Planner) ActionsFor(req Request) ([]action.Action, error) {
	if strings.TrimSpace(req.Instruction) == "" {
		return nil, ErrEmptyCommand
	}
	for _, text := range []string{req.Instruction, req.Goal} {
		if kw, unsafe := p.unsafeKeyword(text); unsafe {
			return nil, fmt.Errorf("%w: %q", ErrUnsafeCommand, kw)
		}
	}

	target := p.siteFor(req)
	intent := p.intents.Resolve(req.Instruction)

	var actions []action.Action
	switch intent {
	case IntentNavigate:
		open := action.OpenURL(navigationURL(req, target))
		open.Description = req.Instruction
		actions = append(actions, open)
	case IntentLocateSearch:
		wait := action.WaitForElement(target.SearchSelector)
		wait.Description = "Wait for the search box"
		actions = append(actions, wait)
	case IntentSearch:
		typed := action.TypeText(target.SearchSelector, searchQuery(req))
		typed.Description = "Type the search query"
		enter := action.KeyPress("Enter")
		enter.Description = "Submit the search"
		actions = append(actions, typed, enter)
	case IntentExtract:
		extract := action.Extract(target.ResultSelector)
		extract.Description = req.Instruction
		actions = append(actions, extract)
	case IntentLocate:
		wait := action.WaitForElement(target.ResultSelector)
		wait.Description = req.Instruction
		actions = append(actions, wait)
	}

	if len(actions) > 0 && intent != IntentNavigate && !pageLoaded(req.CurrentURL) {
		open := action.OpenURL(navigationURL(req, target))
		open.Description = "Open the target site first"
		actions = append([]action.Action{open}, actions...)
	}

	for i, a := range actions {
		if err := a.Validate(); err != nil {
			return nil, fmt.Errorf("planned action %d: %w", i, err)
		}
	}
	return actions, nil
}

// Sites returns the known-site table.
func (p *Planner) Sites() []site.Site {
	return append([]site.Site(nil), p.sites...)
}

func (p *Planner) unsafeKeyword(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, kw := range p.unsafe {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return kw, true
		}
	}
	return "", false
}

// siteFor picks the site named by the goal or instruction, then the site of the current
// page, then a host spelled out in the text, then the default search engine.
func (p *Planner) siteFor(req Request) site.Site {
	if s, ok := site.Lookup(p.sites, req.Goal+" "+req.Instruction); ok {
		return s
	}
	if pageLoaded(req.CurrentURL) {
		if s, ok := site.ForURL(p.sites, req.CurrentURL); ok {
			return s
		}
		if u, err := url.Parse(req.CurrentURL); err == nil && u.Host != "" {
			return site.Generic(strings.ToLower(u.Host))
		}
	}
	if host := explicitHost(req); host != "" {
		return site.Generic(host)
	}
	if s, ok := site.ByName(p.sites, site.DefaultName); ok {
		return s
	}
	return p.sites[0]
}

// navigationURL prefers a full URL written in the text over the site's home page.
func navigationURL(req Request, target site.Site) string {
	if u := urlRe.FindString(req.Goal + " " + req.Instruction); u != "" {
		return strings.TrimRight(u, ".,;)")
	}
	return target.URL
}

// explicitHost finds a host in a URL, a bare domain, or a single-word open command
// ("open reddit" means www.reddit.com).
func explicitHost(req Request) string {
	text := req.Goal + " " + req.Instruction
	if raw := urlRe.FindString(text); raw != "" {
		if u, err := url.Parse(strings.TrimRight(raw, ".,;)")); err == nil && u.Host != "" {
			return strings.ToLower(u.Host)
		}
	}
	if d := bareDomainRe.FindString(text); d != "" {
		return strings.ToLower(d)
	}
	if m := openTargetRe.FindStringSubmatch(strings.TrimSpace(req.Goal)); m != nil {
		return "www." + strings.ToLower(m[1]) + ".com"
	}
	return ""
}

// searchQuery prefers the term spelled out in the instruction ("Search for: x") over
// the one parsed from the goal.
func searchQuery(req Request) string {
	if m := searchTailRe.FindStringSubmatch(req.Instruction); m != nil {
		if q := strings.TrimSpace(m[1]); q != "" {
			return q
		}
	}
	return goal.SearchTerm(req.Goal)
}

func pageLoaded(raw string) bool {
	return raw != "" && raw != "about:blank"
}
