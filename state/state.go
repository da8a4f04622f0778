package state

import (
	"errors"
	"fmt"
	"sync"
)

// Phase identifies where a room is in its lifecycle.
type Phase string

const (
	PhaseLobby           Phase = "LOBBY"
	PhaseActive          Phase = "ACTIVE"
	PhaseDecisionPending Phase = "DECISION_PENDING"
)

func (p Phase) String() string {
	return string(p)
}

// 状态机接口
type StateMachine interface {
	ChangeState(to Phase) error
	GetCurrentState() Phase
	AddTransition(from, to Phase, condition func() bool) error
	CanTransition(to Phase) bool
}

// ErrTransitionNotAllowed is returned when a state transition is not allowed.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// Listener observes every successful transition.
type Listener func(from, to Phase)

// BaseStateMachine only permits transitions that were registered with
// AddTransition and whose condition, if any, holds.
type BaseStateMachine struct {
	currentState Phase
	transitions  map[Phase]map[Phase]func() bool // fromState -> toState -> condition
	listeners    []Listener
	mutex        sync.RWMutex
}

func NewBaseStateMachine(initial Phase) *BaseStateMachine {
	return &BaseStateMachine{
		currentState: initial,
		transitions:  make(map[Phase]map[Phase]func() bool),
	}
}

// NewRoomStateMachine returns the lifecycle every room follows:
// LOBBY -> ACTIVE -> DECISION_PENDING -> ACTIVE. A decision phase may also be
// opened from the lobby, and then closes back into it.
func NewRoomStateMachine() *BaseStateMachine {
	sm := NewBaseStateMachine(PhaseLobby)
	_ = sm.AddTransition(PhaseLobby, PhaseActive, nil)
	_ = sm.AddTransition(PhaseLobby, PhaseDecisionPending, nil)
	_ = sm.AddTransition(PhaseActive, PhaseDecisionPending, nil)
	_ = sm.AddTransition(PhaseDecisionPending, PhaseActive, nil)
	_ = sm.AddTransition(PhaseDecisionPending, PhaseLobby, nil)
	return sm
}

func (sm *BaseStateMachine) ChangeState(to Phase) error {
	sm.mutex.Lock()
	from := sm.currentState
	if !sm.allowedLocked(to) {
		sm.mutex.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrTransitionNotAllowed, from, to)
	}
	sm.currentState = to
	listeners := append([]Listener(nil), sm.listeners...)
	sm.mutex.Unlock()

	for _, l := range listeners {
		l(from, to)
	}
	return nil
}

func (sm *BaseStateMachine) CanTransition(to Phase) bool {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.allowedLocked(to)
}

func (sm *BaseStateMachine) allowedLocked(to Phase) bool {
	conditions, exists := sm.transitions[sm.currentState]
	if !exists {
		return false
	}
	condition, exists := conditions[to]
	if !exists {
		return false
	}
	return condition == nil || condition()
}

func (sm *BaseStateMachine) GetCurrentState() Phase {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.currentState
}

func (sm *BaseStateMachine) AddTransition(from, to Phase, condition func() bool) error {
	if from == "" || to == "" {
		return errors.New("state: empty phase in transition")
	}
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if _, exists := sm.transitions[from]; !exists {
		sm.transitions[from] = make(map[Phase]func() bool)
	}
	sm.transitions[from][to] = condition
	return nil
}

// OnTransition registers a listener. Listeners run after the lock is released.
func (sm *BaseStateMachine) OnTransition(l Listener) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()
	sm.listeners = append(sm.listeners, l)
}
