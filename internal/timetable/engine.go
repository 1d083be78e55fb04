package timetable

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidInput is returned when the sections or rooms cannot be scheduled
// at all because the input itself is malformed.
var ErrInvalidInput = errors.New("invalid timetable input")

// State describes where a generation run stands.
type State string

const (
	StateReady     State = "READY"
	StatePlacing   State = "PLACING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
)

// Result is the outcome of one run. A failed run carries no entries and
// points at the first section that could not be placed.
type Result struct {
	State    State
	Entries  []Entry
	Unplaced *Section
	Placed   int
}

// Feasible reports whether every section was placed.
func (r *Result) Feasible() bool {
	return r != nil && r.State == StateCompleted
}

// Scheduler runs the greedy placement. It is not safe for concurrent use;
// create one per run or use Generate.
type Scheduler struct {
	rooms    []Room
	sections []Section
	state    State
	next     int
	occ      *Occupancy
	entries  []Entry
}

// NewScheduler validates the input and prepares a run in the Ready state.
func NewScheduler(sections []Section, rooms []Room) (*Scheduler, error) {
	if err := validateInput(sections, rooms); err != nil {
		return nil, err
	}
	ordered := make([]Section, len(sections))
	copy(ordered, sections)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreditHours > ordered[j].CreditHours
	})
	roomCopy := make([]Room, len(rooms))
	copy(roomCopy, rooms)

	return &Scheduler{
		rooms:    roomCopy,
		sections: ordered,
		state:    StateReady,
		occ:      NewOccupancy(roomCopy),
		entries:  make([]Entry, 0, len(ordered)),
	}, nil
}

// State returns the current run state.
func (s *Scheduler) State() State {
	return s.state
}

// Step places the next section in priority order. It returns false once the
// run has reached a terminal state.
func (s *Scheduler) Step() bool {
	switch s.state {
	case StateCompleted, StateFailed:
		return false
	case StateReady:
		s.state = StatePlacing
	}
	if s.next >= len(s.sections) {
		s.state = StateCompleted
		return false
	}

	section := s.sections[s.next]
	entry, ok := FindSlot(section, s.rooms, Days(), Hours(), s.occ)
	if !ok {
		s.state = StateFailed
		return false
	}
	s.entries = append(s.entries, entry)
	s.next++
	if s.next == len(s.sections) {
		s.state = StateCompleted
		return false
	}
	return true
}

// Result reports the outcome. Calling it before the run is terminal returns
// the partial state without entries.
func (s *Scheduler) Result() *Result {
	switch s.state {
	case StateCompleted:
		entries := make([]Entry, len(s.entries))
		copy(entries, s.entries)
		return &Result{State: StateCompleted, Entries: entries, Placed: len(entries)}
	case StateFailed:
		unplaced := s.sections[s.next]
		return &Result{State: StateFailed, Unplaced: &unplaced, Placed: s.next}
	default:
		return &Result{State: s.state, Placed: s.next}
	}
}

// Generate schedules every section or none. Sections are tried from the
// highest credit load down, keeping the supplied order among equals; the first
// section without a slot fails the whole run.
func Generate(sections []Section, rooms []Room) (*Result, error) {
	s, err := NewScheduler(sections, rooms)
	if err != nil {
		return nil, err
	}
	for s.Step() {
	}
	return s.Result(), nil
}

func validateInput(sections []Section, rooms []Room) error {
	if len(rooms) == 0 {
		return fmt.Errorf("%w: no rooms available", ErrInvalidInput)
	}
	seen := make(map[string]struct{}, len(rooms))
	for i, room := range rooms {
		id := strings.TrimSpace(room.RoomID)
		if id == "" {
			return fmt.Errorf("%w: room %d has no id", ErrInvalidInput, i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate room id %q", ErrInvalidInput, id)
		}
		seen[id] = struct{}{}
	}
	for i, section := range sections {
		if strings.TrimSpace(section.SectionID) == "" {
			return fmt.Errorf("%w: section %d has no id", ErrInvalidInput, i)
		}
		if strings.TrimSpace(section.ProfessorID) == "" {
			return fmt.Errorf("%w: section %s has no professor", ErrInvalidInput, section.SectionID)
		}
		if section.CreditHours <= 0 {
			return fmt.Errorf("%w: section %s has %d credit hours", ErrInvalidInput, section.SectionID, section.CreditHours)
		}
	}
	return nil
}
