package room

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/wfunc/trailparty/dice"
	"github.com/wfunc/trailparty/models"
	"github.com/wfunc/trailparty/narrative"
	"github.com/wfunc/trailparty/network"
)

// --- notifier ---

type sentEvent struct {
	toRoom  bool
	target  string
	name    string
	payload any
}

const snapshotEvent = "snapshot"

// snapshotPayload is what the recorder keeps for a Snapshot call.
type snapshotPayload struct {
	State   models.GameState
	Members int
}

// recordingNotifier is a test double for the Notifier interface.
type recordingNotifier struct {
	mu     sync.Mutex
	events []sentEvent
	subs   map[string]map[string]bool
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{subs: make(map[string]map[string]bool)}
}

func (n *recordingNotifier) Subscribe(roomID, connID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs[roomID] == nil {
		n.subs[roomID] = make(map[string]bool)
	}
	n.subs[roomID][connID] = true
}

func (n *recordingNotifier) Unsubscribe(roomID, connID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.subs[roomID], connID)
}

func (n *recordingNotifier) NotifyRoom(roomID, event string, payload any) error {
	n.record(sentEvent{toRoom: true, target: roomID, name: event, payload: payload})
	return nil
}

func (n *recordingNotifier) NotifyOne(connID, event string, payload any) error {
	n.record(sentEvent{target: connID, name: event, payload: payload})
	return nil
}

func (n *recordingNotifier) Snapshot(roomID string, st models.GameState, members int) error {
	n.record(sentEvent{toRoom: true, target: roomID, name: snapshotEvent, payload: snapshotPayload{State: st, Members: members}})
	return nil
}

func (n *recordingNotifier) record(e sentEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = nil
}

func (n *recordingNotifier) subscribers(roomID string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for id := range n.subs[roomID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// find returns the events named name sent to target.
func (n *recordingNotifier) find(target, name string) []sentEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentEvent
	for _, e := range n.events {
		if e.target == target && e.name == name {
			out = append(out, e)
		}
	}
	return out
}

// narratives returns the narrative texts sent to target.
func (n *recordingNotifier) narratives(target string) []string {
	var out []string
	for _, e := range n.find(target, network.EventNarrative) {
		out = append(out, e.payload.(network.NarrativePayload).Text)
	}
	return out
}

func (n *recordingNotifier) displays(roomID string) []string {
	var out []string
	for _, e := range n.find(roomID, network.EventUpdateTimerDisplay) {
		out = append(out, e.payload.(network.TimerDisplayPayload).Text)
	}
	return out
}

// --- scheduler ---

type fakeTimer struct {
	delay    time.Duration
	callback func()
}

// fakeScheduler only fires when told to.
type fakeScheduler struct {
	mu     sync.Mutex
	nextID int64
	timers map[int64]fakeTimer
	added  []time.Duration
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{timers: make(map[int64]fakeTimer)}
}

func (f *fakeScheduler) AddTimer(delay time.Duration, interval time.Duration, callback func()) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.timers[f.nextID] = fakeTimer{delay: delay, callback: callback}
	f.added = append(f.added, delay)
	return f.nextID
}

func (f *fakeScheduler) RemoveTimer(timerID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.timers[timerID]
	delete(f.timers, timerID)
	return ok
}

func (f *fakeScheduler) pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

// callbacks returns the pending callbacks without removing them.
func (f *fakeScheduler) callbacks() []func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int64, 0, len(f.timers))
	for id := range f.timers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]func(), 0, len(ids))
	for _, id := range ids {
		out = append(out, f.timers[id].callback)
	}
	return out
}

// fireAll runs and removes every pending timer.
func (f *fakeScheduler) fireAll() {
	f.mu.Lock()
	var due []func()
	for id, t := range f.timers {
		due = append(due, t.callback)
		delete(f.timers, id)
	}
	f.mu.Unlock()
	for _, cb := range due {
		cb()
	}
}

func (f *fakeScheduler) lastDelay() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.added) == 0 {
		return 0
	}
	return f.added[len(f.added)-1]
}

// --- clock ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- generator ---

type reply struct {
	text string
	err  error
}

// scriptedGenerator answers with queued replies; the last one repeats.
type scriptedGenerator struct {
	mu      sync.Mutex
	replies []reply
	systems []string
}

func (g *scriptedGenerator) push(text string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replies = append(g.replies, reply{text: text, err: err})
}

func (g *scriptedGenerator) Complete(ctx context.Context, system, user string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.systems = append(g.systems, system)
	if len(g.replies) == 0 {
		return "The trail goes on." + narrative.Separator + "{}", nil
	}
	r := g.replies[0]
	if len(g.replies) > 1 {
		g.replies = g.replies[1:]
	}
	return r.text, r.err
}

func (g *scriptedGenerator) calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.systems...)
}

// --- metrics and archive ---

type countingMetrics struct {
	mu                    sync.Mutex
	opened, closed        int
	compiled              int
	generations, failures int
}

func (m *countingMetrics) RoomOpened()    { m.mu.Lock(); m.opened++; m.mu.Unlock() }
func (m *countingMetrics) RoomClosed()    { m.mu.Lock(); m.closed++; m.mu.Unlock() }
func (m *countingMetrics) PhaseCompiled() { m.mu.Lock(); m.compiled++; m.mu.Unlock() }
func (m *countingMetrics) ObserveGeneration(kind string, elapsed time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generations++
	if err != nil {
		m.failures++
	}
}

type memArchive struct {
	mu      sync.Mutex
	records []models.TurnRecord
}

func (a *memArchive) SaveTurn(ctx context.Context, rec models.TurnRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
	return nil
}

func (a *memArchive) all() []models.TurnRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.TurnRecord(nil), a.records...)
}

// --- fixture ---

type fixture struct {
	svc     *Service
	rooms   *Manager
	notes   *recordingNotifier
	sched   *fakeScheduler
	clock   *fakeClock
	gen     *scriptedGenerator
	roller  *dice.Sequence
	metrics *countingMetrics
	archive *memArchive

	// deferred holds generation jobs when holdJobs is set.
	holdJobs bool
	deferred []func()
}

func newFixture(t *testing.T, rolls ...int) *fixture {
	t.Helper()
	if len(rolls) == 0 {
		rolls = []int{1}
	}
	f := &fixture{
		rooms:   NewRoomManager(),
		notes:   newRecordingNotifier(),
		sched:   newFakeScheduler(),
		clock:   &fakeClock{now: time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)},
		gen:     &scriptedGenerator{},
		roller:  dice.NewSequence(rolls...),
		metrics: &countingMetrics{},
		archive: &memArchive{},
	}
	bridge := narrative.NewBridge(f.gen, f.roller)
	f.svc = NewService(f.rooms, f.notes, f.sched, bridge, f.roller, Options{},
		WithClock(f.clock.Now),
		WithSpawner(f.run),
		WithMetrics(f.metrics),
		WithArchive(f.archive),
	)
	return f
}

func (f *fixture) run(job func()) {
	if f.holdJobs {
		f.deferred = append(f.deferred, job)
		return
	}
	job()
}

func (f *fixture) runDeferred() {
	jobs := f.deferred
	f.deferred = nil
	for _, job := range jobs {
		job()
	}
}

// join adds conn-<user> as user with the user id as display name.
func (f *fixture) join(t *testing.T, roomID, userID string) string {
	t.Helper()
	connID := "conn-" + userID
	if err := f.svc.Join(roomID, connID, userID, userID, map[string]any{"skill": "scout"}); err != nil {
		t.Fatalf("join %s: %v", userID, err)
	}
	return connID
}

func (f *fixture) room(t *testing.T, roomID string) *Room {
	t.Helper()
	r, ok := f.rooms.GetRoom(roomID)
	if !ok {
		t.Fatalf("room %s not found", roomID)
	}
	return r
}

func scriptReply(text string, delta string) string {
	return text + narrative.Separator + delta
}
