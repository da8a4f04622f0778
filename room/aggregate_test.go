package room

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/trailparty/dice"
)

func upper(id string) string { return strings.ToUpper(id) }

func TestAggregate(t *testing.T) {
	tests := []struct {
		name      string
		responses []response
		members   []string
		roll      int
		want      string
		tie       bool
	}{
		{
			name:      "single decision",
			responses: []response{{"a", "Hunt"}, {"b", " hunt "}},
			members:   []string{"a", "b"},
			want:      "[A]: Hunt\n[B]: hunt\nAwake: A, B\n",
		},
		{
			name:      "three distinct decisions are listed",
			responses: []response{{"a", "hunt"}, {"b", "rest"}, {"c", "trade"}},
			members:   []string{"a", "b", "c"},
			want:      "[A]: hunt\n[B]: rest\n[C]: trade\nAwake: A, B, C\n",
		},
		{
			name:      "uneven split is listed",
			responses: []response{{"a", "hunt"}, {"b", "rest"}, {"c", "HUNT"}},
			members:   []string{"a", "b", "c", "d"},
			want:      "[A]: hunt\n[B]: rest\n[C]: HUNT\nAwake: A, B, C\nAsleep: D\n",
		},
		{
			name:      "even split low roll picks first",
			responses: []response{{"a", "ford"}, {"b", "caulk"}},
			members:   []string{"a", "b"},
			roll:      3,
			tie:       true,
			want: "The party is evenly split between \"ford\" and \"caulk\". A d6 roll of 3 (1-3 picks the first, 4-6 the second) chose: \"ford\".\n" +
				"[A]: ford\n[B]: caulk\nAwake: A, B\n",
		},
		{
			name:      "nobody answered",
			responses: nil,
			members:   []string{"a"},
			want:      "Awake: None\nAsleep: A\n",
		},
		{
			name:      "past member still counts as awake",
			responses: []response{{"gone", "wait"}},
			members:   []string{"a"},
			want:      "[GONE]: wait\nAwake: GONE\nAsleep: A\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			roller := dice.NewSequence(tt.roll)
			agg := aggregate(tt.responses, tt.members, upper, roller)
			assert.Equal(t, tt.want, agg.Text)
			assert.Equal(t, tt.tie, agg.TieBreak != nil)
		})
	}
}

func TestAggregate_HighRollPicksSecond(t *testing.T) {
	agg := aggregate([]response{{"a", "ford"}, {"b", "ford"}, {"c", "caulk"}, {"d", "Caulk"}},
		[]string{"a", "b", "c", "d"}, upper, dice.NewSequence(4))

	require.NotNil(t, agg.TieBreak)
	assert.Equal(t, "ford", agg.TieBreak.First)
	assert.Equal(t, "caulk", agg.TieBreak.Second)
	assert.Equal(t, 4, agg.TieBreak.Roll)
	assert.Equal(t, "caulk", agg.TieBreak.Winner)
	assert.Equal(t, `🎲 The party is split between "ford" and "caulk"! Rolled a 4: the party goes with "caulk".`,
		agg.TieBreak.Announcement())
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "ford the river", normalize("  Ford   the\tRIVER "))
	assert.Equal(t, "", normalize("   "))
}
