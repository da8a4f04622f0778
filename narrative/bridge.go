package narrative

import (
	"context"
	"fmt"

	"github.com/wfunc/trailparty/dice"
	"github.com/wfunc/trailparty/logger"
	"github.com/wfunc/trailparty/models"
)

// Result is a parsed generator reply, ready to merge.
type Result struct {
	Narrative string
	Delta     map[string]any
}

// Bridge turns a room snapshot into a prompt, calls the generator and parses
// the answer.
type Bridge struct {
	gen    Generator
	roller dice.Roller
}

func NewBridge(gen Generator, roller dice.Roller) *Bridge {
	return &Bridge{gen: gen, roller: roller}
}

func (b *Bridge) Generate(ctx context.Context, req Request) (*Result, error) {
	system, user, err := BuildPrompt(req)
	if err != nil {
		return nil, err
	}

	raw, err := b.gen.Complete(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneratorFailed, err)
	}
	logger.Log.Debugf("generator output for room %s (%s): %s", req.RoomID, req.Kind, raw)

	text, delta, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	text = b.resolveRisk(text, delta)

	return &Result{Narrative: text, Delta: delta}, nil
}

// resolveRisk rolls for a declared risk action that has no outcome yet.
// 1-3 fails, 4-6 succeeds.
func (b *Bridge) resolveRisk(text string, delta map[string]any) string {
	action, _ := delta[models.KeyRiskAction].(string)
	if action == "" {
		return text
	}
	if outcome, exists := delta[models.KeyRiskOutcome]; exists && outcome != nil {
		return text
	}

	roll := b.roller.Roll(dice.D6)
	outcome := "success"
	if roll <= 3 {
		outcome = "failure"
	}
	delta[models.KeyRiskOutcome] = outcome
	return fmt.Sprintf("%s\n\n🎲 Risk roll for \"%s\": %d, %s!", text, action, roll, outcome)
}
