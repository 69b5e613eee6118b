package content

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"funnelbot/internal/model"
	"funnelbot/internal/storage"
	kit "funnelbot/internal/transport"
	logx "funnelbot/pkg/logx"
	"funnelbot/pkg/tgui"
)

const tokenPrefix = "btn"

// StepSource loads live step definitions for tap resolution.
type StepSource interface {
	Step(ctx context.Context, stepID int64) (model.Step, error)
}

// Keyboards builds inline keyboards from button definitions and maps
// callback tokens back to the button they came from.
type Keyboards struct {
	steps StepSource
	log   logx.Logger
}

func NewKeyboards(steps StepSource, log logx.Logger) *Keyboards {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Keyboards{steps: steps, log: log}
}

// Token encodes a callback button position as "btn:<step>:<row>:<index>".
func Token(stepID int64, row, index int) (string, error) {
	return tgui.CheckedData(tokenPrefix, strconv.FormatInt(stepID, 10), strconv.Itoa(row)+":"+strconv.Itoa(index))
}

// IsToken reports whether data carries the button token prefix. Data
// without it belongs to some other keyboard and is not ours to resolve.
func IsToken(data string) bool {
	return strings.HasPrefix(strings.TrimSpace(data), tokenPrefix+":")
}

// ParseToken is the inverse of Token.
func ParseToken(token string) (stepID int64, row, index int, ok bool) {
	prefix, key, payload, ok := tgui.Split(strings.TrimSpace(token))
	if !ok || prefix != tokenPrefix {
		return 0, 0, 0, false
	}
	stepID, err := strconv.ParseInt(key, 10, 64)
	if err != nil || stepID <= 0 {
		return 0, 0, 0, false
	}
	rs, is, found := strings.Cut(payload, ":")
	if !found {
		return 0, 0, 0, false
	}
	row, err1 := strconv.Atoi(rs)
	index, err2 := strconv.Atoi(is)
	if err1 != nil || err2 != nil || row < 0 || index < 0 {
		return 0, 0, 0, false
	}
	return stepID, row, index, true
}

type buttonRow struct {
	row     int
	buttons []model.Button
}

// groupRows groups buttons by declared row, rows ascending, keeping
// declaration order inside a row.
func groupRows(buttons []model.Button) []buttonRow {
	idx := map[int]int{}
	var rows []buttonRow
	for _, b := range buttons {
		i, ok := idx[b.Row]
		if !ok {
			i = len(rows)
			idx[b.Row] = i
			rows = append(rows, buttonRow{row: b.Row})
		}
		rows[i].buttons = append(rows[i].buttons, b)
	}
	slices.SortStableFunc(rows, func(a, b buttonRow) int { return a.row - b.row })
	return rows
}

// Build returns the keyboard for buttons, or nil when there is nothing to
// show. Callback buttons need a positive stepID; a button whose token would
// exceed the platform limit is dropped.
func (k *Keyboards) Build(buttons []model.Button, stepID int64) *kit.Keyboard {
	if len(buttons) == 0 {
		return nil
	}
	kb := &kit.Keyboard{}
	for _, r := range groupRows(buttons) {
		row := make([]kit.Button, 0, len(r.buttons))
		for i, b := range r.buttons {
			switch b.Action {
			case model.ActionURL:
				row = append(row, kit.Button{Text: b.Label, URL: b.Value})
			case model.ActionCallback:
				if stepID <= 0 {
					k.log.Warn("callback button without step dropped", logx.String("label", b.Label))
					continue
				}
				tok, err := Token(stepID, r.row, i)
				if err != nil {
					k.log.Warn("callback token too long; button dropped", logx.Int64("step_id", stepID), logx.Err(err))
					continue
				}
				row = append(row, kit.Button{Text: b.Label, Data: tok})
			default:
				k.log.Warn("unknown button action dropped", logx.String("action", string(b.Action)))
			}
		}
		if len(row) > 0 {
			kb.Rows = append(kb.Rows, row)
		}
	}
	if kb.Empty() {
		return nil
	}
	return kb
}

// Resolve maps a token to the button at that position in the live step.
// It returns ErrButtonNotFound when the token is malformed, the step is gone
// or owned by another tenant, or the position no longer exists.
func (k *Keyboards) Resolve(ctx context.Context, tenantID int64, token string) (model.Button, error) {
	stepID, row, index, ok := ParseToken(token)
	if !ok {
		return model.Button{}, ErrButtonNotFound
	}
	st, err := k.steps.Step(ctx, stepID)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Button{}, ErrButtonNotFound
	}
	if err != nil {
		return model.Button{}, fmt.Errorf("load step %d: %w", stepID, err)
	}
	if st.TenantID != tenantID {
		return model.Button{}, ErrButtonNotFound
	}
	for _, r := range groupRows(st.Content.Buttons) {
		if r.row != row {
			continue
		}
		if index < len(r.buttons) {
			return r.buttons[index], nil
		}
		break
	}
	return model.Button{}, ErrButtonNotFound
}
