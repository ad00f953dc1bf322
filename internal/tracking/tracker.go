package tracking

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Handle refers to one tracked state. It stays valid until the state is
// evicted or changes class; after that Lookup reports why it went away.
// The zero Handle refers to nothing.
type Handle struct {
	slot uint32
	gen  uint32
}

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool {
	return h.gen == 0
}

// String implements fmt.Stringer.
func (h Handle) String() string {
	if h.IsZero() {
		return "none"
	}
	return fmt.Sprintf("%d#%d", h.slot, h.gen)
}

// Status is the result of resolving a Handle.
type Status int

const (
	StatusInvalid      Status = iota // zero or unknown handle
	StatusLive                       // state exists with the same class
	StatusReclassified               // state still exists but its class changed
	StatusEvicted                    // state was not seen for longer than the TTL
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case StatusLive:
		return "Live"
	case StatusReclassified:
		return "Reclassified"
	case StatusEvicted:
		return "Evicted"
	default:
		return "Invalid"
	}
}

// TrackedState is a detection that persists across frames.
type TrackedState struct {
	Handle Handle
	Box    DetectionBox
	// LastSeen is the time in seconds since a detection last matched.
	LastSeen float64
}

// Visible reports whether the state matched a detection this frame.
func (s TrackedState) Visible() bool {
	return s.LastSeen <= 0
}

// EventKind classifies what happened to a state during Update.
type EventKind int

const (
	EventCreated EventKind = iota
	EventMatched
	EventReclassified
	EventEvicted
)

// String returns the string representation of the event kind
func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "Created"
	case EventMatched:
		return "Matched"
	case EventReclassified:
		return "Reclassified"
	case EventEvicted:
		return "Evicted"
	default:
		return "Unknown"
	}
}

// Event reports one state change. For EventReclassified, Previous is the
// retired handle and Handle the one that replaces it.
type Event struct {
	Kind     EventKind
	Handle   Handle
	Previous Handle
}

// Config tunes a Tracker.
type Config struct {
	// TTL is how long, in seconds, a state survives without a match.
	TTL float64
	// MatchThreshold is the IsSimilar ratio used to match detections to states.
	MatchThreshold float64
	// DedupThreshold is the IsSimilar ratio used to merge raw detections.
	DedupThreshold float64
}

// DefaultConfig returns the tracker defaults.
func DefaultConfig() Config {
	return Config{
		TTL:            5.0,
		MatchThreshold: DefaultSimilarity,
		DedupThreshold: DefaultSimilarity,
	}
}

type slot struct {
	gen   uint32
	live  bool
	state TrackedState

	// Generations in [reclassFrom, reclassTo) were retired by an unbroken
	// run of class changes ending in generation reclassTo. Zero means none.
	reclassFrom uint32
	reclassTo   uint32
}

// Tracker owns every tracked state. Consumers keep Handles and resolve them
// each frame with Lookup.
//
// Not safe for concurrent use; it runs on the frame loop.
type Tracker struct {
	cfg   Config
	log   zerolog.Logger
	slots []slot
	free  []uint32
	order []uint32 // live slots, oldest first
}

// NewTracker creates an empty tracker. Zero config fields take defaults.
func NewTracker(cfg Config, log zerolog.Logger) *Tracker {
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.MatchThreshold <= 0 {
		cfg.MatchThreshold = def.MatchThreshold
	}
	if cfg.DedupThreshold <= 0 {
		cfg.DedupThreshold = def.DedupThreshold
	}
	return &Tracker{
		cfg: cfg,
		log: log.With().Str("component", "tracker").Logger(),
	}
}

// Config returns the active configuration.
func (t *Tracker) Config() Config {
	return t.cfg
}

// Update folds one frame of detections into the tracked states, dt seconds
// after the previous frame.
//
// Detections are deduplicated first. Every state then ages by dt and states
// older than the TTL are evicted. Finally each detection updates the first
// state, in list order, it is similar to, or starts a new state. A match with
// a different class retires the old handle and issues a new one.
func (t *Tracker) Update(detections []DetectionBox, dt float64) []Event {
	var events []Event

	boxes := Dedup(detections, t.cfg.DedupThreshold)

	kept := t.order[:0]
	for _, idx := range t.order {
		s := &t.slots[idx]
		s.state.LastSeen += dt
		if s.state.LastSeen > t.cfg.TTL {
			events = append(events, Event{Kind: EventEvicted, Handle: s.state.Handle})
			t.log.Debug().Stringer("handle", s.state.Handle).Stringer("box", s.state.Box).Msg("state evicted")
			s.live = false
			t.free = append(t.free, idx)
			continue
		}
		kept = append(kept, idx)
	}
	t.order = kept

	for _, box := range boxes {
		idx, ok := t.match(box)
		if !ok {
			h := t.alloc(box)
			events = append(events, Event{Kind: EventCreated, Handle: h})
			continue
		}

		s := &t.slots[idx]
		prevClass := s.state.Box.ClassID
		s.state.Box = box
		s.state.LastSeen = 0

		if prevClass == box.ClassID {
			events = append(events, Event{Kind: EventMatched, Handle: s.state.Handle})
			continue
		}

		old := s.state.Handle
		if s.reclassTo != old.gen {
			s.reclassFrom = old.gen
		}
		s.gen++
		s.reclassTo = s.gen
		s.state.Handle = Handle{slot: idx, gen: s.gen}
		events = append(events, Event{Kind: EventReclassified, Handle: s.state.Handle, Previous: old})
		t.log.Debug().
			Stringer("old", old).
			Stringer("new", s.state.Handle).
			Int("from", prevClass).
			Int("to", box.ClassID).
			Msg("state reclassified")
	}

	return events
}

// Lookup resolves h. For StatusLive the state is returned. For
// StatusReclassified the state now occupying the same object is returned,
// when it is still alive. A handle that went through several class changes,
// even within one Update, stays StatusReclassified. Other statuses return the zero state.
func (t *Tracker) Lookup(h Handle) (TrackedState, Status) {
	if h.IsZero() || int(h.slot) >= len(t.slots) {
		return TrackedState{}, StatusInvalid
	}

	s := &t.slots[h.slot]
	if s.live && s.gen == h.gen {
		return s.state, StatusLive
	}
	if h.gen > s.gen {
		return TrackedState{}, StatusInvalid
	}
	if h.gen >= s.reclassFrom && h.gen < s.reclassTo {
		if s.live && s.gen == s.reclassTo {
			return s.state, StatusReclassified
		}
		return TrackedState{}, StatusReclassified
	}
	return TrackedState{}, StatusEvicted
}

// States returns a snapshot of every live state in list order.
func (t *Tracker) States() []TrackedState {
	out := make([]TrackedState, 0, len(t.order))
	for _, idx := range t.order {
		out = append(out, t.slots[idx].state)
	}
	return out
}

// Visible returns the live states of classID that matched this frame.
func (t *Tracker) Visible(classID int) []TrackedState {
	var out []TrackedState
	for _, idx := range t.order {
		st := t.slots[idx].state
		if st.Box.ClassID == classID && st.Visible() {
			out = append(out, st)
		}
	}
	return out
}

// Len returns the number of live states.
func (t *Tracker) Len() int {
	return len(t.order)
}

// Reset evicts every state.
func (t *Tracker) Reset() {
	for _, idx := range t.order {
		t.slots[idx].live = false
		t.free = append(t.free, idx)
	}
	t.order = t.order[:0]
}

func (t *Tracker) match(box DetectionBox) (uint32, bool) {
	for _, idx := range t.order {
		if t.slots[idx].state.Box.IsSimilar(box, t.cfg.MatchThreshold) {
			return idx, true
		}
	}
	return 0, false
}

func (t *Tracker) alloc(box DetectionBox) Handle {
	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		idx = uint32(len(t.slots))
		t.slots = append(t.slots, slot{})
	}

	s := &t.slots[idx]
	s.gen++
	s.live = true
	s.state = TrackedState{
		Handle: Handle{slot: idx, gen: s.gen},
		Box:    box,
	}
	t.order = append(t.order, idx)
	return s.state.Handle
}
