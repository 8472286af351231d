package action

import (
	"errors"
	"fmt"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/xpath"
)

var (
	// ErrInvalidAction is returned for actions missing kind-specific parameters.
	ErrInvalidAction = errors.New("invalid action")
	// ErrInvalidSelector is returned when a selector does not parse under its strategy.
	ErrInvalidSelector = errors.New("invalid selector")
)

// selectorKinds require a selector to be meaningful.
var selectorKinds = map[Kind]bool{
	KindTypeText:         true,
	KindClickElement:     true,
	KindHoverElement:     true,
	KindFocusInput:       true,
	KindWaitForElement:   true,
	KindScrollUntilFound: true,
}

// Validate checks kind-specific parameters and selector syntax.
func (a Action) Validate() error {
	if !a.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidAction, a.Kind)
	}

	switch a.Kind {
	case KindOpenURL:
		if a.URL == "" {
			return fmt.Errorf("%w: %s requires a url", ErrInvalidAction, a.Kind)
		}
	case KindTypeText:
		if a.Text == "" {
			return fmt.Errorf("%w: %s requires text", ErrInvalidAction, a.Kind)
		}
	case KindKeyPress:
		if a.Key == "" {
			return fmt.Errorf("%w: %s requires a key", ErrInvalidAction, a.Kind)
		}
	case KindScrollPage:
		if a.Direction != DirectionUp && a.Direction != DirectionDown {
			return fmt.Errorf("%w: scroll direction must be up or down, got %q", ErrInvalidAction, a.Direction)
		}
	case KindWait:
		if a.DurationMs < 0 {
			return fmt.Errorf("%w: negative wait duration", ErrInvalidAction)
		}
	}

	if selectorKinds[a.Kind] && a.Selector == "" {
		return fmt.Errorf("%w: %s requires a selector", ErrInvalidAction, a.Kind)
	}
	if a.Selector != "" {
		if err := ValidateSelector(a.Strategy, a.Selector); err != nil {
			return err
		}
	}
	for strategy, sel := range a.Fallbacks {
		if err := ValidateSelector(strategy, sel); err != nil {
			return fmt.Errorf("fallback selector: %w", err)
		}
	}
	return nil
}

// ValidateSelector parses selector under strategy. An empty strategy means css.
func ValidateSelector(strategy SelectorStrategy, selector string) error {
	switch strategy {
	case StrategyCSS, "":
		if _, err := cascadia.Compile(selector); err != nil {
			return fmt.Errorf("%w: css %q: %v", ErrInvalidSelector, selector, err)
		}
	case StrategyXPath:
		if _, err := xpath.Compile(selector); err != nil {
			return fmt.Errorf("%w: xpath %q: %v", ErrInvalidSelector, selector, err)
		}
	case StrategyText:
		if selector == "" {
			return fmt.Errorf("%w: empty text selector", ErrInvalidSelector)
		}
	default:
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidSelector, strategy)
	}
	return nil
}
