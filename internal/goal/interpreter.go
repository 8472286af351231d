package goal

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/xkilldash9x/goalpilot/internal/rules"
)

// DomainGeneral is the domain of commands that name no known site.
const DomainGeneral = "general"

// MaxEstimatedSteps caps the complexity estimate.
const MaxEstimatedSteps = 10

type intent struct {
	goalType Type
	patterns []*regexp.Regexp
}

// intents are tested in order; the first type with a matching pattern wins.
var intents = []intent{
	{TypeSearch, compileAll(
		`\bsearch\s+(?:for\s+)?(.+)`,
		`\bfind\s+(.+)`,
		`\blook\s+for\s+(.+)`,
		`\bkhojo\s+(.+)`,
		`\bdhundho\s+(.+)`,
	)},
	{TypeExtraction, compileAll(
		`\bextract\s+(.+)`,
		`\bget\s+(.+)`,
		`\bcollect\s+(.+)`,
		`\bgather\s+(.+)`,
		`\blist\s+(.+)`,
	)},
	{TypeComparison, compileAll(
		`\bcompare\s+(.+)`,
		`\bwhich\s+is\s+(.+)`,
		`\bbest\s+(.+)`,
		`\bcheapest\s+(.+)`,
	)},
	{TypeAnalysis, compileAll(
		`\banalyze\s+(.+)`,
		`\bsummarize\s+(.+)`,
		`\breview\s+(.+)`,
	)},
}

var (
	fillerRe = regexp.MustCompile(`(?i)\b(?:please|can you|could you|i want to|help me)\b`)
	topNRe   = regexp.MustCompile(`top\s+(\d+)`)
)

var successTemplates = map[Type]string{
	TypeSearch:      "Search results found and relevant information extracted",
	TypeExtraction:  "Required data extracted and structured",
	TypeComparison:  "Comparison completed and best option identified",
	TypeAnalysis:    "Analysis performed and summary generated",
	TypeNavigation:  "Target page reached and key information accessed",
	TypeInteraction: "Interaction completed successfully",
	TypeMonitoring:  "Monitoring data collected and trends identified",
}

var baseComplexity = map[Type]int{
	TypeSearch:      3,
	TypeExtraction:  4,
	TypeComparison:  6,
	TypeAnalysis:    5,
	TypeNavigation:  2,
	TypeInteraction: 3,
	TypeMonitoring:  4,
}

type complexityBump struct {
	keyword string
	steps   int
}

var complexityBumps = []complexityBump{
	{"compare", 2},
	{"analyze", 2},
	{"summarize", 1},
	{"list", 1},
	{"multiple", 2},
	{"all", 1},
	{"detailed", 1},
}

// DefaultDomainRules maps site keywords found in a command to a domain name.
func DefaultDomainRules() rules.Table[string] {
	return rules.Table[string]{
		Default: DomainGeneral,
		Rules: []rules.Rule[string]{
			{Any: []string{"youtube"}, Words: []string{"yt"}, Result: "youtube"},
			{Any: []string{"linkedin"}, Result: "linkedin"},
			{Any: []string{"amazon"}, Result: "amazon"},
			{Any: []string{"google"}, Result: "google"},
			{Any: []string{"github"}, Result: "github"},
			{Any: []string{"twitter", "x.com"}, Result: "twitter"},
			{Any: []string{"facebook"}, Words: []string{"fb"}, Result: "facebook"},
			{Any: []string{"instagram"}, Words: []string{"ig"}, Result: "instagram"},
		},
	}
}

// Interpreter turns a natural-language command into a Goal. It holds no mutable state
// and is safe for concurrent use.
type Interpreter struct {
	domains rules.Table[string]
	newID   func() string
}

// InterpreterOption configures an Interpreter.
type InterpreterOption func(*Interpreter)

// WithDomainRules replaces the built-in domain table.
func WithDomainRules(t rules.Table[string]) InterpreterOption {
	return func(i *Interpreter) {
		if len(t.Rules) == 0 {
			return
		}
		if t.Default == "" {
			t.Default = DomainGeneral
		}
		i.domains = t
	}
}

// WithIDGenerator overrides goal ID generation.
func WithIDGenerator(fn func() string) InterpreterOption {
	return func(i *Interpreter) { i.newID = fn }
}

func NewInterpreter(opts ...InterpreterOption) *Interpreter {
	i := &Interpreter{
		domains: DefaultDomainRules(),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Interpret extracts a Goal from command. It never fails; unrecognized commands become
// navigation goals on the general domain.
func (i *Interpreter) Interpret(command string) Goal {
	goalType := DetectType(command)
	statement := Statement(command, goalType)
	return Goal{
		ID:               i.newID(),
		OriginalCommand:  command,
		Statement:        statement,
		SuccessCondition: SuccessCondition(statement, goalType),
		Type:             goalType,
		Priority:         PriorityMedium,
		EstimatedSteps:   EstimateSteps(statement, goalType),
		Domain:           i.domains.Resolve(command),
	}
}

// DetectType returns the first goal type whose intent patterns match command.
func DetectType(command string) Type {
	lower := strings.ToLower(command)
	for _, in := range intents {
		for _, re := range in.patterns {
			if re.MatchString(lower) {
				return in.goalType
			}
		}
	}
	return TypeNavigation
}

// Statement strips conversational filler from command, capitalizes it and prefixes the
// canonical verb for search and extraction goals.
func Statement(command string, goalType Type) string {
	cleaned := strings.Join(strings.Fields(fillerRe.ReplaceAllString(command, "")), " ")
	cleaned = capitalize(cleaned)

	switch goalType {
	case TypeSearch:
		if !strings.HasPrefix(cleaned, "Search") {
			cleaned = "Search for " + cleaned
		}
	case TypeExtraction:
		if !strings.HasPrefix(cleaned, "Extract") {
			cleaned = "Extract " + cleaned
		}
	}
	return cleaned
}

// SuccessCondition renders the per-type template, adding the target count when the
// statement asks for the top N results.
func SuccessCondition(statement string, goalType Type) string {
	cond, ok := successTemplates[goalType]
	if !ok {
		cond = "Goal completed successfully"
	}
	if m := topNRe.FindStringSubmatch(strings.ToLower(statement)); m != nil {
		cond += fmt.Sprintf(" (top %s results obtained)", m[1])
	}
	return cond
}

// EstimateSteps is the per-type base complexity plus keyword bumps, capped at MaxEstimatedSteps.
func EstimateSteps(statement string, goalType Type) int {
	steps, ok := baseComplexity[goalType]
	if !ok {
		steps = 3
	}
	lower := strings.ToLower(statement)
	for _, b := range complexityBumps {
		if strings.Contains(lower, b.keyword) {
			steps += b.steps
		}
	}
	return min(steps, MaxEstimatedSteps)
}

// capitalize upper-cases the first rune and lower-cases the rest.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}
