package narrative

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wfunc/trailparty/models"
)

// Kind selects which prompt is built.
type Kind string

const (
	KindIntro    Kind = "intro"
	KindDecision Kind = "decision"
)

// Request is everything the bridge needs from a room. It is a copy taken
// under the room lock, so the bridge can work without holding it.
type Request struct {
	RoomID    string
	Kind      Kind
	State     models.GameState
	Roster    []string
	Players   []models.PlayerProfile
	Aggregate string
}

const styleGuide = `Gameplay style guidelines:
- The narrative MUST be full of emojis (🎲, 😱, ⚠️, 😎, ...).
- Include detailed dice roll outcomes on this scale: 1-3 poor 😞, 4-5 mediocre 😐, 6-7 good 😃, 8-10 spectacular 🤩.
- The narrative should feel dangerous, creative and realistic, full of peril and adventure.
- Only the active players (those with proper names, never "Unnamed") form the decision-making team. Address them as the "main characters" and weave their attributes (name, skills, extra info) into the story.
- Do not refer to any player as "Guest"; always use their chosen names.`

const outputContract = `Respond in two parts separated by the delimiter "\n===JSON===\n".
The first part is the narrative; the second part is valid JSON representing the updated game state.
If a risky decision is involved (for example "shoot"), include the key "riskAction" (string) and leave "riskOutcome" as null.`

const introSystemTemplate = `You are an interactive narrative engine for an Oregon Trail game.
The current game state is:
%s
The party consists of: %s
Include detailed character attributes (name, skills, extra info) for each active player to create a personal and engaging narrative.

%s
- Introduce each pioneer with their unique strengths, skills and background details.
- Then set the scene for the journey and present a major challenge ending with a moral dilemma or actionable question.

%s`

const introUserTemplate = `Welcome to room %s! Your journey is about to begin.
Your active pioneers, %s, are setting out on the Oregon Trail. Their wagon is loaded with essential supplies, and every detail of their character (skills, experience and personal quirks) will shape their adventure. Introduce the crew personally, highlighting each pioneer's unique attributes and strengths, and set the stage for the perils and wonders of the journey ahead. Then present your first major challenge, ending with a moral dilemma or actionable question for the entire team.`

const decisionSystemTemplate = `You are an interactive narrative engine for an Oregon Trail game.
The current game state is:
%s
The party consists of: %s
Detailed character attributes of the active players:
%s
The aggregated responses from the players in this decision phase are:
%s

%s
- When conflicting decisions are present, discuss each player's decision with their character details, then narrate how the party resolves them. Decisions that can happen at the same time are narrated separately, each with its own effectiveness roll.
- Note any logical limitations of an action (for example an item that only affects its holder).
- Structure: first analyse the decisions, then describe the resolution with its dice rolls, and end with an actionable question for the crew.

%s`

// BuildPrompt returns the system instruction and the optional seed user
// message for a request.
func BuildPrompt(req Request) (system string, user string, err error) {
	stateJSON, err := req.State.JSON()
	if err != nil {
		return "", "", fmt.Errorf("encode state: %w", err)
	}
	roster := req.Roster
	if roster == nil {
		roster = []string{}
	}
	rosterJSON, err := json.Marshal(roster)
	if err != nil {
		return "", "", fmt.Errorf("encode roster: %w", err)
	}

	switch req.Kind {
	case KindIntro:
		system = fmt.Sprintf(introSystemTemplate, stateJSON, rosterJSON, styleGuide, outputContract)
		user = fmt.Sprintf(introUserTemplate, req.RoomID, describePlayers(req.Players, ", "))
		return system, user, nil
	case KindDecision:
		system = fmt.Sprintf(decisionSystemTemplate, stateJSON, rosterJSON,
			describePlayers(req.Players, "\n"), req.Aggregate, styleGuide, outputContract)
		return system, "", nil
	default:
		return "", "", fmt.Errorf("unknown prompt kind %q", req.Kind)
	}
}

// describePlayers renders "Name ({...attributes})" per active player.
func describePlayers(players []models.PlayerProfile, sep string) string {
	parts := make([]string, 0, len(players))
	for _, p := range players {
		if p.IsPlaceholder() {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", p.Name, AttributesJSON(p.Info)))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, sep)
}

// AttributesJSON renders free-form player attributes, "{}" when empty.
func AttributesJSON(info map[string]any) string {
	if len(info) == 0 {
		return "{}"
	}
	b, err := json.Marshal(info)
	if err != nil {
		return "{}"
	}
	return string(b)
}
