// models/models.go
package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Top-level GameState keys. The generator prompt and the browser client both
// depend on these exact spellings.
const (
	KeyOccupation    = "occupation"
	KeyPartyNames    = "partyNames"
	KeyCurrentDate   = "currentDate"
	KeyRouteProgress = "routeProgress"
	KeyInventory     = "inventory"
	KeyPace          = "pace"
	KeyRations       = "rations"
	KeyEventFlags    = "eventFlags"
	KeyGameStarted   = "gameStarted"
	KeyRiskAction    = "riskAction"
	KeyRiskOutcome   = "riskOutcome"
)

// PlaceholderName marks a player that has not picked a name yet. Such players
// never appear in the party roster.
const PlaceholderName = "unnamed"

// GameState is the authoritative shared game document of a room. It is an
// open JSON object: the generator may add keys the server knows nothing about.
type GameState map[string]any

// NewGameState returns the state every room starts from.
func NewGameState() GameState {
	return GameState{
		KeyOccupation:    "Pioneer",
		KeyPartyNames:    []string{},
		KeyCurrentDate:   map[string]any{"day": 1, "month": "April"},
		KeyRouteProgress: map[string]any{"miles": 0, "landmarks": []any{}},
		KeyInventory: map[string]any{
			"oxen":       4,
			"food":       500,
			"clothes":    50,
			"bullets":    100,
			"wagonParts": 3,
			"money":      800,
		},
		KeyPace:        "steady",
		KeyRations:     "normal",
		KeyEventFlags:  map[string]any{},
		KeyGameStarted: false,
	}
}

// Started reports the started flag. Any non-bool value counts as not started.
func (s GameState) Started() bool {
	v, _ := s[KeyGameStarted].(bool)
	return v
}

func (s GameState) SetStarted(started bool) {
	s[KeyGameStarted] = started
}

func (s GameState) SetRoster(names []string) {
	roster := make([]string, len(names))
	copy(roster, names)
	s[KeyPartyNames] = roster
}

// Roster returns the party names as stored, tolerating generator-written
// []any values.
func (s GameState) Roster() []string {
	switch v := s[KeyPartyNames].(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if name, ok := item.(string); ok {
				out = append(out, name)
			}
		}
		return out
	}
	return nil
}

// Clone returns a deep copy so callers outside the room lock can read it.
func (s GameState) Clone() GameState {
	if s == nil {
		return nil
	}
	out := make(GameState, len(s))
	for k, v := range s {
		out[k] = deepCopy(v)
	}
	return out
}

// JSON serializes the state. Keys are emitted in sorted order, so two equal
// states always produce identical bytes.
func (s GameState) JSON() ([]byte, error) {
	return json.Marshal(map[string]any(s))
}

// ProgressView is the journey subset rendered by the progress panel.
type ProgressView struct {
	CurrentDate   any `json:"currentDate"`
	RouteProgress any `json:"routeProgress"`
	Pace          any `json:"pace"`
	Rations       any `json:"rations"`
}

func (s GameState) Progress() ProgressView {
	return ProgressView{
		CurrentDate:   deepCopy(s[KeyCurrentDate]),
		RouteProgress: deepCopy(s[KeyRouteProgress]),
		Pace:          deepCopy(s[KeyPace]),
		Rations:       deepCopy(s[KeyRations]),
	}
}

// Inventory returns a copy of the inventory counters, or nil when the key
// was overwritten with something that is not an object.
func (s GameState) Inventory() map[string]any {
	inv, ok := s[KeyInventory].(map[string]any)
	if !ok {
		return nil
	}
	return deepCopy(inv).(map[string]any)
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = deepCopy(item)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}

// PlayerProfile is one entry of a room's player directory.
type PlayerProfile struct {
	UserID    string         `json:"userId"`
	Name      string         `json:"name"`
	Info      map[string]any `json:"info"`
	Inventory map[string]any `json:"inventory"`
	Active    bool           `json:"active"`
}

// IsPlaceholder reports whether the profile is excluded from the roster.
func (p PlayerProfile) IsPlaceholder() bool {
	name := strings.TrimSpace(p.Name)
	return name == "" || strings.ToLower(name) == PlaceholderName
}

func (p PlayerProfile) clone() PlayerProfile {
	out := p
	if p.Info != nil {
		out.Info = deepCopy(p.Info).(map[string]any)
	}
	if p.Inventory != nil {
		out.Inventory = deepCopy(p.Inventory).(map[string]any)
	}
	return out
}

// Directory maps stable user ids to profiles and remembers insertion order.
type Directory struct {
	order    []string
	profiles map[string]*PlayerProfile
}

func NewDirectory() *Directory {
	return &Directory{profiles: make(map[string]*PlayerProfile)}
}

// Upsert creates or replaces the profile for userID. A blank name falls back
// to the user id. The per-player inventory of an existing entry is kept
// unless inventory is non-nil. New entries start inactive; membership
// decides activity through SetActive.
func (d *Directory) Upsert(userID, name string, info, inventory map[string]any) *PlayerProfile {
	if strings.TrimSpace(name) == "" {
		name = userID
	}
	if info == nil {
		info = map[string]any{}
	}
	p, ok := d.profiles[userID]
	if !ok {
		p = &PlayerProfile{UserID: userID, Inventory: map[string]any{}}
		d.profiles[userID] = p
		d.order = append(d.order, userID)
	}
	p.Name = name
	p.Info = info
	if inventory != nil {
		p.Inventory = inventory
	}
	return p
}

func (d *Directory) Get(userID string) (PlayerProfile, bool) {
	p, ok := d.profiles[userID]
	if !ok {
		return PlayerProfile{}, false
	}
	return p.clone(), true
}

func (d *Directory) Has(userID string) bool {
	_, ok := d.profiles[userID]
	return ok
}

func (d *Directory) SetActive(userID string, active bool) {
	if p, ok := d.profiles[userID]; ok {
		p.Active = active
	}
}

// DisplayName falls back to the user id for unknown users.
func (d *Directory) DisplayName(userID string) string {
	if p, ok := d.profiles[userID]; ok {
		return p.Name
	}
	return userID
}

// Profiles returns copies of all entries in insertion order.
func (d *Directory) Profiles() []PlayerProfile {
	out := make([]PlayerProfile, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.profiles[id].clone())
	}
	return out
}

// ActivePlayers returns active, non-placeholder entries in insertion order.
func (d *Directory) ActivePlayers() []PlayerProfile {
	var out []PlayerProfile
	for _, id := range d.order {
		p := d.profiles[id]
		if p.Active && !p.IsPlaceholder() {
			out = append(out, p.clone())
		}
	}
	return out
}

// Roster is the list of names the party roster must equal.
func (d *Directory) Roster() []string {
	names := []string{}
	for _, p := range d.ActivePlayers() {
		names = append(names, p.Name)
	}
	return names
}

// Snapshot keys the directory by user id for the player_stats_update event.
func (d *Directory) Snapshot() map[string]PlayerProfile {
	out := make(map[string]PlayerProfile, len(d.profiles))
	for id, p := range d.profiles {
		out[id] = p.clone()
	}
	return out
}

func (d *Directory) Len() int {
	return len(d.order)
}

// TurnRecord describes one successful narrative generation.
type TurnRecord struct {
	RoomID    string         `json:"room_id"`
	Kind      string         `json:"kind"`
	Aggregate string         `json:"aggregate"`
	Narrative string         `json:"narrative"`
	Delta     map[string]any `json:"delta"`
	Players   []string       `json:"players"`
	CreatedAt time.Time      `json:"created_at"`
}
