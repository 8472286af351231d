// internal/action/action.go
package action

import (
	"math"
	"time"
)

// Kind is the closed vocabulary of primitive browser operations.
type Kind string

const (
	// -- Navigation --
	KindOpenURL           Kind = "openUrl"           // Loads a URL in the current page.
	KindWaitForNavigation Kind = "waitForNavigation" // Waits for an in-flight navigation to settle.

	// -- Element interaction --
	KindTypeText     Kind = "typeText"     // Types text into an input.
	KindClickElement Kind = "clickElement" // Clicks an element.
	KindKeyPress     Kind = "keyPress"     // Presses a key, optionally on a focused element.
	KindHoverElement Kind = "hoverElement" // Moves the pointer over an element.
	KindFocusInput   Kind = "focusInput"   // Focuses an input without typing.

	// -- Page movement and timing --
	KindScrollPage       Kind = "scrollPage"       // Scrolls by Amount pixels in Direction.
	KindScrollUntilFound Kind = "scrollUntilFound" // Scrolls until Selector is present.
	KindWaitForElement   Kind = "waitForElement"   // Waits until Selector is present.
	KindWait             Kind = "wait"             // Sleeps for DurationMs. Used as a recovery prefix.

	// -- Extraction --
	KindExtractContent Kind = "extractContent" // Returns the text of elements matching Selector.
	KindExtractLinks   Kind = "extractLinks"   // Returns the links on the page.
	KindScreenshot     Kind = "screenshot"     // Captures the viewport.

	// -- Media --
	KindPlayVideo  Kind = "playVideo"
	KindPauseVideo Kind = "pauseVideo"
)

var knownKinds = map[Kind]struct{}{
	KindOpenURL: {}, KindWaitForNavigation: {}, KindTypeText: {}, KindClickElement: {},
	KindKeyPress: {}, KindHoverElement: {}, KindFocusInput: {}, KindScrollPage: {},
	KindScrollUntilFound: {}, KindWaitForElement: {}, KindWait: {}, KindExtractContent: {},
	KindExtractLinks: {}, KindScreenshot: {}, KindPlayVideo: {}, KindPauseVideo: {},
}

// Valid reports whether k belongs to the vocabulary.
func (k Kind) Valid() bool {
	_, ok := knownKinds[k]
	return ok
}

// SelectorStrategy says how Selector is interpreted.
type SelectorStrategy string

const (
	StrategyCSS   SelectorStrategy = "css"
	StrategyXPath SelectorStrategy = "xpath"
	StrategyText  SelectorStrategy = "text"
)

// Defaults applied by New.
const (
	DefaultTimeoutMs    = 5000
	DefaultMaxRetries   = 3
	DefaultRetryDelayMs = 1000
	DefaultScrollAmount = 500
	DirectionDown       = "down"
	DirectionUp         = "up"
)

// Action is one primitive operation produced by a planner.
// It is a value: recovery never mutates a caller's Action, it derives a new one.
type Action struct {
	Kind        Kind   `json:"kind"`
	Description string `json:"description,omitempty"`

	Selector  string                      `json:"selector,omitempty"`
	Strategy  SelectorStrategy            `json:"selector_strategy,omitempty"`
	Fallbacks map[SelectorStrategy]string `json:"fallback_selectors,omitempty"`

	Text       string `json:"text,omitempty"`
	URL        string `json:"url,omitempty"`
	Key        string `json:"key,omitempty"`
	Direction  string `json:"direction,omitempty"`
	Amount     int    `json:"amount,omitempty"`
	DurationMs int    `json:"duration_ms,omitempty"`

	TimeoutMs    int    `json:"timeout_ms"`
	MaxRetries   int    `json:"max_retries"`
	RetryDelayMs int    `json:"retry_delay_ms"`
	DependsOn    string `json:"depends_on,omitempty"`

	// Recovery metadata, set only on actions derived by the recovery policy.
	RecoveryReason   string   `json:"recovery_reason,omitempty"`
	OriginalSelector string   `json:"original_selector,omitempty"`
	Alternatives     []string `json:"alternative_selectors,omitempty"`
}

// New returns an action of the given kind with default budgets.
func New(kind Kind) Action {
	a := Action{
		Kind:         kind,
		Strategy:     StrategyCSS,
		TimeoutMs:    DefaultTimeoutMs,
		MaxRetries:   DefaultMaxRetries,
		RetryDelayMs: DefaultRetryDelayMs,
	}
	if kind == KindScrollPage {
		a.Direction = DirectionDown
		a.Amount = DefaultScrollAmount
	}
	return a
}

func OpenURL(url string) Action {
	a := New(KindOpenURL)
	a.URL = url
	return a
}

func TypeText(selector, text string) Action {
	a := New(KindTypeText)
	a.Selector, a.Text = selector, text
	return a
}

func Click(selector string) Action {
	a := New(KindClickElement)
	a.Selector = selector
	return a
}

func KeyPress(key string) Action {
	a := New(KindKeyPress)
	a.Key = key
	return a
}

func Scroll(direction string, amount int) Action {
	a := New(KindScrollPage)
	a.Direction, a.Amount = direction, amount
	return a
}

func Wait(d time.Duration) Action {
	a := New(KindWait)
	a.DurationMs = int(d / time.Millisecond)
	return a
}

func WaitForElement(selector string) Action {
	a := New(KindWaitForElement)
	a.Selector = selector
	return a
}

func Extract(selector string) Action {
	a := New(KindExtractContent)
	a.Selector = selector
	return a
}

// Clone returns a deep copy; maps and slices are not shared with a.
func (a Action) Clone() Action {
	out := a
	if a.Fallbacks != nil {
		out.Fallbacks = make(map[SelectorStrategy]string, len(a.Fallbacks))
		for k, v := range a.Fallbacks {
			out.Fallbacks[k] = v
		}
	}
	if a.Alternatives != nil {
		out.Alternatives = append([]string(nil), a.Alternatives...)
	}
	return out
}

// WithScaledTimeout returns a copy whose timeout is multiplied by factor.
func (a Action) WithScaledTimeout(factor float64) Action {
	out := a.Clone()
	base := a.TimeoutMs
	if base <= 0 {
		base = DefaultTimeoutMs
	}
	out.TimeoutMs = int(math.Round(float64(base) * factor))
	return out
}

// Timeout returns the action timeout, falling back to the default.
func (a Action) Timeout() time.Duration {
	if a.TimeoutMs <= 0 {
		return DefaultTimeoutMs * time.Millisecond
	}
	return time.Duration(a.TimeoutMs) * time.Millisecond
}

// Retries returns the action's retry budget, or fallback when unset.
func (a Action) Retries(fallback int) int {
	if a.MaxRetries > 0 {
		return a.MaxRetries
	}
	return fallback
}
