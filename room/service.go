package room

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wfunc/trailparty/dice"
	"github.com/wfunc/trailparty/logger"
	"github.com/wfunc/trailparty/models"
	"github.com/wfunc/trailparty/narrative"
	"github.com/wfunc/trailparty/network"
	"github.com/wfunc/trailparty/state"
)

const (
	DefaultMaxPlayers        = 8
	DefaultDecisionDuration  = 60 * time.Second
	DefaultGenerationTimeout = 90 * time.Second

	displayGenerating  = "Generating..."
	displayCompiling   = "Generating Response..."
	displayStartTimer  = "Start Timer"
	minPausedRemainder = time.Millisecond
)

// Options bounds a room service.
type Options struct {
	MaxPlayers        int
	DecisionDuration  time.Duration
	GenerationTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxPlayers <= 0 {
		o.MaxPlayers = DefaultMaxPlayers
	}
	if o.DecisionDuration <= 0 {
		o.DecisionDuration = DefaultDecisionDuration
	}
	if o.GenerationTimeout <= 0 {
		o.GenerationTimeout = DefaultGenerationTimeout
	}
	return o
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSpawner replaces the goroutine launcher used for narrative generation.
func WithSpawner(spawn func(func())) Option {
	return func(s *Service) { s.spawn = spawn }
}

func WithArchive(a Archive) Option {
	return func(s *Service) { s.archive = a }
}

func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithMergePolicy(p narrative.MergePolicy) Option {
	return func(s *Service) { s.merge = p }
}

// Service runs every room operation. Each operation locks exactly one room;
// generator calls run with no room lock held.
type Service struct {
	rooms     *Manager
	notifier  Notifier
	scheduler Scheduler
	narrator  Narrator
	roller    dice.Roller
	opts      Options

	merge   narrative.MergePolicy
	archive Archive
	metrics Metrics
	now     func() time.Time
	spawn   func(func())
}

func NewService(rooms *Manager, notifier Notifier, scheduler Scheduler, narrator Narrator, roller dice.Roller, opts Options, options ...Option) *Service {
	s := &Service{
		rooms:     rooms,
		notifier:  notifier,
		scheduler: scheduler,
		narrator:  narrator,
		roller:    roller,
		opts:      opts.withDefaults(),
		merge:     narrative.ShallowMerge{},
		archive:   nopArchive{},
		metrics:   nopMetrics{},
		now:       time.Now,
		spawn:     func(f func()) { go f() },
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Rooms exposes the registry for read-only callers.
func (s *Service) Rooms() *Manager {
	return s.rooms
}

// Join adds connID to roomID, creating the room with connID as leader when
// it does not exist yet. Joining a room the connection already belongs to
// only refreshes the player's profile.
func (s *Service) Join(roomID, connID, userID, chosenName string, info map[string]any) error {
	if roomID == "" || userID == "" {
		return ErrInvalidRequest
	}
	for {
		r, created := s.rooms.GetOrCreate(roomID, connID)
		r.mu.Lock()
		if r.closed {
			// lost a race with the last member leaving
			r.mu.Unlock()
			continue
		}
		if created {
			s.metrics.RoomOpened()
			logger.Log.Infof("room %s created by %s", roomID, connID)
		}
		err := s.joinLocked(r, connID, userID, chosenName, info)
		if err != nil && len(r.members) == 0 {
			s.closeLocked(r)
		}
		r.mu.Unlock()
		return err
	}
}

func (s *Service) joinLocked(r *Room, connID, userID, chosenName string, info map[string]any) error {
	name := strings.TrimSpace(chosenName)
	if name == "" {
		name = userID
	}

	if i := r.memberIndex(connID); i >= 0 {
		prev := r.members[i].userID
		r.members[i].userID = userID
		if prev != userID && !r.hasUser(prev) {
			r.directory.SetActive(prev, false)
		}
		r.directory.Upsert(userID, name, info, nil)
		r.directory.SetActive(userID, true)
		r.refreshRoster()
		s.notifyRoom(r, network.EventPlayerStatsUpdate, network.PlayerStatsPayload{Directory: r.directory.Snapshot()})
		return nil
	}

	if len(r.members) >= s.opts.MaxPlayers {
		s.notifyOne(connID, network.EventNarrative, network.NarrativePayload{
			Text: fmt.Sprintf("Room %s is full (%d players).", r.ID, s.opts.MaxPlayers),
		})
		return ErrRoomFull
	}

	r.members = append(r.members, member{connID: connID, userID: userID})
	s.notifier.Subscribe(r.ID, connID)
	r.directory.Upsert(userID, name, info, nil)
	r.directory.SetActive(userID, true)
	r.refreshRoster()
	logger.Log.Infof("player %s (%s) joined room %s, members=%d", userID, connID, r.ID, len(r.members))

	s.notifyRoom(r, network.EventPlayerStatsUpdate, network.PlayerStatsPayload{Directory: r.directory.Snapshot()})
	members := network.RoomMembersPayload{RoomID: r.ID, Members: len(r.members)}
	if r.state.Started() {
		s.notifyOne(connID, network.EventNarrative, network.NarrativePayload{
			Text: fmt.Sprintf("%s stumbled upon the wagon as a hitchhiker!", name),
		})
		s.snapshot(r)
		return nil
	}
	if r.leader == connID {
		s.notifyOne(connID, network.EventRoomLeader, members)
	}
	s.notifyOne(connID, network.EventNarrative, network.NarrativePayload{
		Text: fmt.Sprintf("Welcome to room %s! Your journey is about to begin.", r.ID),
	})
	// room_info goes out with the snapshot
	s.snapshot(r)
	return nil
}

// UpdateProfile replaces the profile of userID. The name comes from
// info["name"] and falls back to the user id.
func (s *Service) UpdateProfile(roomID, userID string, info map[string]any) error {
	r, ok := s.rooms.GetRoom(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRoomNotFound
	}

	name, _ := info["name"].(string)
	if strings.TrimSpace(name) == "" {
		name = userID
	}
	r.directory.Upsert(userID, name, info, nil)
	r.directory.SetActive(userID, r.hasUser(userID))
	r.refreshRoster()
	s.notifyRoom(r, network.EventPlayerStatsUpdate, network.PlayerStatsPayload{Directory: r.directory.Snapshot()})
	return nil
}

// StartPhase opens a decision phase. Leader only.
func (s *Service) StartPhase(roomID, connID string) error {
	r, err := s.leaderRoom(roomID, connID, "Only the room leader can start the decision phase.")
	if err != nil {
		return err
	}
	defer r.mu.Unlock()

	if r.generating {
		s.notifyOne(connID, network.EventNarrative, network.NarrativePayload{Text: "The story is still being written. Please wait."})
		return ErrGenerationInFlight
	}
	if r.decision.active {
		return ErrPhaseActive
	}
	if err := r.machine.ChangeState(state.PhaseDecisionPending); err != nil {
		return err
	}

	r.decision = decisionPhase{
		active:    true,
		responses: make(map[string]string),
		token:     r.decision.token,
	}
	s.scheduleLocked(r, s.opts.DecisionDuration)
	logger.Log.Infof("room %s decision phase started, deadline %s", r.ID, r.decision.deadline.Format(time.RFC3339))

	s.notifyRoom(r, network.EventNarrative, network.NarrativePayload{Text: "Decision phase started. Please submit your responses."})
	s.notifyRoom(r, network.EventStartTimer, network.TimerPayload{Remaining: seconds(s.opts.DecisionDuration)})
	return nil
}

// SubmitResponse records a response. Once every current member has
// responded the phase compiles without waiting for the deadline.
func (s *Service) SubmitResponse(roomID, userID, text string) error {
	r, ok := s.rooms.GetRoom(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRoomNotFound
	}
	if !r.decision.active {
		r.mu.Unlock()
		return ErrPhaseInactive
	}
	if !r.directory.Has(userID) {
		r.mu.Unlock()
		return ErrNotMember
	}

	if _, seen := r.decision.responses[userID]; !seen {
		r.decision.order = append(r.decision.order, userID)
	}
	r.decision.responses[userID] = text

	var job func()
	if s.everyoneRespondedLocked(r) {
		job = s.compileLocked(r)
	}
	r.mu.Unlock()

	if job != nil {
		s.spawn(job)
	}
	return nil
}

func (s *Service) everyoneRespondedLocked(r *Room) bool {
	users := r.memberUsers()
	if len(users) == 0 {
		return false
	}
	for _, id := range users {
		if _, ok := r.decision.responses[id]; !ok {
			return false
		}
	}
	return true
}

// Pause stops the running decision timer and remembers what was left.
func (s *Service) Pause(roomID, connID string) error {
	r, err := s.leaderRoom(roomID, connID, "Only the room leader can pause the timer.")
	if err != nil {
		return err
	}
	defer r.mu.Unlock()

	if !r.decision.active || r.decision.timerID == 0 {
		return ErrNoTimer
	}
	remaining := r.decision.deadline.Sub(s.now())
	if remaining < minPausedRemainder {
		remaining = minPausedRemainder
	}
	s.cancelTimerLocked(r)
	r.decision.remaining = remaining
	logger.Log.Infof("room %s timer paused with %s left", r.ID, remaining)
	s.notifyRoom(r, network.EventPauseTimer, network.TimerPayload{Remaining: seconds(remaining)})
	return nil
}

// Resume reschedules a paused timer with the remembered remainder.
func (s *Service) Resume(roomID, connID string) error {
	r, err := s.leaderRoom(roomID, connID, "Only the room leader can resume the timer.")
	if err != nil {
		return err
	}
	defer r.mu.Unlock()

	if !r.decision.active || r.decision.remaining <= 0 {
		return ErrNotPaused
	}
	remaining := r.decision.remaining
	s.scheduleLocked(r, remaining)
	r.decision.remaining = 0
	logger.Log.Infof("room %s timer resumed with %s left", r.ID, remaining)
	s.notifyRoom(r, network.EventResumeTimer, network.TimerPayload{Remaining: seconds(remaining)})
	return nil
}

// StartGame marks the room started and asks the narrator for an intro.
// Leader only.
func (s *Service) StartGame(roomID, connID string) error {
	r, err := s.leaderRoom(roomID, connID, "Only the room leader can start the game.")
	if err != nil {
		return err
	}
	if r.generating {
		r.mu.Unlock()
		s.notifyOne(connID, network.EventNarrative, network.NarrativePayload{Text: "The story is still being written. Please wait."})
		return ErrGenerationInFlight
	}
	if r.decision.active {
		r.mu.Unlock()
		s.notifyOne(connID, network.EventNarrative, network.NarrativePayload{Text: "A decision phase is in progress. Wait for it to finish."})
		return ErrPhaseActive
	}

	r.state.SetStarted(true)
	if r.machine.GetCurrentState() == state.PhaseLobby {
		if err := r.machine.ChangeState(state.PhaseActive); err != nil {
			r.mu.Unlock()
			return err
		}
	}
	s.notifyRoom(r, network.EventUpdateTimerDisplay, network.TimerDisplayPayload{Text: displayGenerating})
	r.generating = true
	req := s.requestLocked(r, narrative.KindIntro, "")
	r.mu.Unlock()

	logger.Log.Infof("room %s game started by %s", roomID, connID)
	s.spawn(func() { s.generate(r, req) })
	return nil
}

// Chat relays a message to the whole room.
func (s *Service) Chat(roomID, userID, message string) error {
	r, ok := s.rooms.GetRoom(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRoomNotFound
	}
	s.notifyRoom(r, network.EventUserChatUpdate, network.ChatUpdatePayload{UserID: userID, Message: message})
	return nil
}

// Leave removes connID from every room it belongs to. An emptied room is
// deleted together with its timer.
func (s *Service) Leave(connID string) {
	for _, r := range s.rooms.Rooms() {
		r.mu.Lock()
		if !r.closed {
			if i := r.memberIndex(connID); i >= 0 {
				s.leaveLocked(r, i)
			}
		}
		r.mu.Unlock()
	}
}

func (s *Service) leaveLocked(r *Room, i int) {
	gone := r.members[i]
	r.members = append(r.members[:i], r.members[i+1:]...)
	s.notifier.Unsubscribe(r.ID, gone.connID)
	if !r.hasUser(gone.userID) {
		r.directory.SetActive(gone.userID, false)
	}
	r.refreshRoster()
	logger.Log.Infof("player %s (%s) left room %s, members=%d", gone.userID, gone.connID, r.ID, len(r.members))

	if len(r.members) == 0 {
		s.closeLocked(r)
		return
	}

	members := network.RoomMembersPayload{RoomID: r.ID, Members: len(r.members)}
	if r.leader == gone.connID {
		r.leader = r.members[0].connID
		logger.Log.Infof("room %s leader is now %s", r.ID, r.leader)
		s.notifyOne(r.leader, network.EventRoomLeader, members)
	}
	s.notifyRoom(r, network.EventRoomInfo, members)
	s.notifyRoom(r, network.EventPlayerStatsUpdate, network.PlayerStatsPayload{Directory: r.directory.Snapshot()})
}

func (s *Service) closeLocked(r *Room) {
	s.cancelTimerLocked(r)
	r.decision.active = false
	r.closed = true
	s.rooms.removeIf(r.ID, r)
	s.metrics.RoomClosed()
	logger.Log.Infof("room %s deleted", r.ID)
}

// leaderRoom returns roomID locked when connID leads it. On error the room
// is not locked.
func (s *Service) leaderRoom(roomID, connID, denied string) (*Room, error) {
	r, ok := s.rooms.GetRoom(roomID)
	if !ok {
		s.notifyOne(connID, network.EventNarrative, network.NarrativePayload{Text: fmt.Sprintf("Room %s does not exist.", roomID)})
		return nil, ErrRoomNotFound
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRoomNotFound
	}
	if r.leader != connID {
		r.mu.Unlock()
		s.notifyOne(connID, network.EventNarrative, network.NarrativePayload{Text: denied})
		return nil, ErrPermissionDenied
	}
	return r, nil
}

// --- timer ---

func (s *Service) scheduleLocked(r *Room, d time.Duration) {
	s.cancelTimerLocked(r)
	token := r.decision.token
	r.decision.deadline = s.now().Add(d)
	r.decision.timerID = s.scheduler.AddTimer(d, 0, func() { s.onDeadline(r, token) })
}

func (s *Service) cancelTimerLocked(r *Room) {
	if r.decision.timerID != 0 {
		s.scheduler.RemoveTimer(r.decision.timerID)
		r.decision.timerID = 0
	}
	// a callback already in flight sees a stale token
	r.decision.token++
}

func (s *Service) onDeadline(r *Room, token uint64) {
	r.mu.Lock()
	if r.closed || !r.decision.active || r.decision.token != token {
		r.mu.Unlock()
		return
	}
	r.decision.timerID = 0
	logger.Log.Infof("room %s decision deadline reached", r.ID)
	job := s.compileLocked(r)
	r.mu.Unlock()
	if job != nil {
		s.spawn(job)
	}
}

// --- compilation and generation ---

// compileLocked closes the active phase and returns the generation job to
// run once the lock is released.
func (s *Service) compileLocked(r *Room) func() {
	if !r.decision.active {
		return nil
	}
	s.cancelTimerLocked(r)
	r.decision.active = false
	r.decision.remaining = 0

	back := state.PhaseLobby
	if r.state.Started() {
		back = state.PhaseActive
	}
	if err := r.machine.ChangeState(back); err != nil {
		logger.Log.Errorf("room %s: %v", r.ID, err)
	}

	responses := make([]response, 0, len(r.decision.order))
	for _, id := range r.decision.order {
		responses = append(responses, response{userID: id, text: r.decision.responses[id]})
	}
	agg := aggregate(responses, r.memberUsers(), r.directory.DisplayName, s.roller)
	if agg.TieBreak != nil {
		s.notifyRoom(r, network.EventNarrative, network.NarrativePayload{Text: agg.TieBreak.Announcement()})
	}
	s.metrics.PhaseCompiled()
	logger.Log.Infof("room %s decision phase compiled with %d responses", r.ID, len(responses))

	s.notifyRoom(r, network.EventUpdateTimerDisplay, network.TimerDisplayPayload{Text: displayCompiling})
	r.generating = true
	req := s.requestLocked(r, narrative.KindDecision, agg.Text)
	return func() { s.generate(r, req) }
}

func (s *Service) requestLocked(r *Room, kind narrative.Kind, aggregate string) narrative.Request {
	return narrative.Request{
		RoomID:    r.ID,
		Kind:      kind,
		State:     r.state.Clone(),
		Roster:    r.directory.Roster(),
		Players:   r.directory.ActivePlayers(),
		Aggregate: aggregate,
	}
}

func (s *Service) generate(r *Room, req narrative.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.GenerationTimeout)
	defer cancel()

	start := s.now()
	res, err := s.narrator.Generate(ctx, req)
	s.metrics.ObserveGeneration(string(req.Kind), s.now().Sub(start), err)

	r.mu.Lock()
	r.generating = false
	if cur, ok := s.rooms.GetRoom(r.ID); r.closed || !ok || cur != r {
		r.mu.Unlock()
		logger.Log.Infof("room %s is gone, discarding %s narrative", req.RoomID, req.Kind)
		return
	}
	if err != nil {
		logger.Log.Errorf("room %s %s generation failed: %v", r.ID, req.Kind, err)
		s.notifyRoom(r, network.EventNarrative, network.NarrativePayload{Text: errorNarrative(req.Kind, err)})
		r.mu.Unlock()
		return
	}

	s.merge.Merge(r.state, res.Delta)
	s.notifyRoom(r, network.EventNarrative, network.NarrativePayload{Text: res.Narrative})
	s.snapshot(r)
	s.notifyRoom(r, network.EventUpdateTimerDisplay, network.TimerDisplayPayload{Text: displayStartTimer})
	rec := models.TurnRecord{
		RoomID:    r.ID,
		Kind:      string(req.Kind),
		Aggregate: req.Aggregate,
		Narrative: res.Narrative,
		Delta:     res.Delta,
		Players:   req.Roster,
		CreatedAt: s.now(),
	}
	r.mu.Unlock()

	if err := s.archive.SaveTurn(ctx, rec); err != nil {
		logger.Log.Warnf("room %s: archive turn: %v", rec.RoomID, err)
	}
}

func errorNarrative(kind narrative.Kind, err error) string {
	switch {
	case errors.Is(err, narrative.ErrMalformedOutput):
		return "Error: Response format incorrect."
	case errors.Is(err, narrative.ErrInvalidDelta):
		return "Error parsing JSON: " + err.Error()
	case kind == narrative.KindIntro:
		return "Error starting game."
	default:
		return "Error processing decision phase."
	}
}

// --- delivery ---

func (s *Service) notifyRoom(r *Room, event string, payload any) {
	if err := s.notifier.NotifyRoom(r.ID, event, payload); err != nil {
		logger.Log.Warnf("room %s: notify %s: %v", r.ID, event, err)
	}
}

func (s *Service) notifyOne(connID, event string, payload any) {
	if err := s.notifier.NotifyOne(connID, event, payload); err != nil {
		logger.Log.Warnf("conn %s: notify %s: %v", connID, event, err)
	}
}

func (s *Service) snapshot(r *Room) {
	if err := s.notifier.Snapshot(r.ID, r.state.Clone(), len(r.members)); err != nil {
		logger.Log.Warnf("room %s: snapshot: %v", r.ID, err)
	}
}

func seconds(d time.Duration) int {
	return int(d / time.Second)
}
