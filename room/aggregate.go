package room

import (
	"fmt"
	"strings"

	"github.com/wfunc/trailparty/dice"
)

type response struct {
	userID string
	text   string
}

// TieBreak records a dice-resolved split between two decisions.
type TieBreak struct {
	First  string
	Second string
	Roll   int
	Winner string
}

// Announcement is the narrative line sent to the room for the tie.
func (t *TieBreak) Announcement() string {
	return fmt.Sprintf("🎲 The party is split between %q and %q! Rolled a %d: the party goes with %q.",
		t.First, t.Second, t.Roll, t.Winner)
}

// Aggregate is the compiled form of one decision phase.
type Aggregate struct {
	Text     string
	TieBreak *TieBreak
}

// aggregate compiles responses (in submission order) into the text handed to
// the narrator. members are the current member user ids in join order and
// name resolves a user id to its display name.
//
// When the responses split evenly across exactly two distinct decisions a
// d6 settles it: 1-3 picks the decision submitted first, 4-6 the other.
func aggregate(responses []response, members []string, name func(string) string, roller dice.Roller) Aggregate {
	var b strings.Builder
	var agg Aggregate

	type option struct {
		text  string
		count int
	}
	var options []*option
	byKey := make(map[string]*option)
	for _, resp := range responses {
		key := normalize(resp.text)
		if key == "" {
			continue
		}
		if o, ok := byKey[key]; ok {
			o.count++
			continue
		}
		o := &option{text: strings.TrimSpace(resp.text), count: 1}
		byKey[key] = o
		options = append(options, o)
	}

	if len(options) == 2 && options[0].count == options[1].count {
		roll := roller.Roll(dice.D6)
		tb := &TieBreak{First: options[0].text, Second: options[1].text, Roll: roll, Winner: options[0].text}
		if roll > dice.D6/2 {
			tb.Winner = options[1].text
		}
		agg.TieBreak = tb
		fmt.Fprintf(&b, "The party is evenly split between %q and %q. A d6 roll of %d (1-3 picks the first, 4-6 the second) chose: %q.\n",
			tb.First, tb.Second, tb.Roll, tb.Winner)
	}

	responded := make(map[string]bool, len(responses))
	awake := make([]string, 0, len(responses))
	for _, resp := range responses {
		responded[resp.userID] = true
		awake = append(awake, name(resp.userID))
		fmt.Fprintf(&b, "[%s]: %s\n", name(resp.userID), strings.TrimSpace(resp.text))
	}

	var asleep []string
	for _, id := range members {
		if !responded[id] {
			asleep = append(asleep, name(id))
		}
	}

	if len(awake) == 0 {
		b.WriteString("Awake: None\n")
	} else {
		fmt.Fprintf(&b, "Awake: %s\n", strings.Join(awake, ", "))
	}
	if len(asleep) > 0 {
		fmt.Fprintf(&b, "Asleep: %s\n", strings.Join(asleep, ", "))
	}
	agg.Text = b.String()
	return agg
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
