package model

import (
	"fmt"
	"strings"
)

// ValidationError reports a malformed content definition.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid content: %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Validate checks that the declared kind has a matching body or assets.
func (c Content) Validate() error {
	switch c.Kind {
	case KindText:
		if strings.TrimSpace(c.Text) == "" {
			return invalid("text", "text content requires a body")
		}
	case KindPhoto, KindVideo:
		if len(c.Assets) == 0 && strings.TrimSpace(c.Text) == "" {
			return invalid("assets", string(c.Kind)+" content requires an asset or caption")
		}
	case KindAlbum:
		if len(c.Assets) < 2 {
			return invalid("assets", "album requires at least two assets")
		}
	default:
		return invalid("kind", fmt.Sprintf("unknown content kind %q", c.Kind))
	}
	for i, b := range c.Buttons {
		if strings.TrimSpace(b.Label) == "" {
			return invalid(fmt.Sprintf("buttons[%d].text", i), "label is required")
		}
		switch b.Action {
		case ActionURL, ActionCallback:
		default:
			return invalid(fmt.Sprintf("buttons[%d].action", i), fmt.Sprintf("unknown action %q", b.Action))
		}
		if strings.TrimSpace(b.Value) == "" {
			return invalid(fmt.Sprintf("buttons[%d].value", i), "value is required")
		}
		if b.Row < 0 {
			return invalid(fmt.Sprintf("buttons[%d].row", i), "row must be >= 0")
		}
	}
	return nil
}
