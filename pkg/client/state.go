package client

import (
	"sync"

	"examboard/pkg/protocol"
	"examboard/pkg/types"
)

// Transfer outcomes as recorded in the local state.
const (
	OutcomeInFlight  = "in-flight"
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// Outcome is the terminal result of one transfer as seen locally.
type Outcome struct {
	Status string
	Reason string
}

// seenLimit bounds the duplicate-receipt fingerprint window. Old fingerprints
// age out in arrival order; a duplicate older than the window would re-count,
// which is acceptable for a UI badge.
const seenLimit = 512

// State is the local mirror of server-side truth plus per-connection UI
// counters. Every method is synchronous and touches no I/O; the transport
// layer feeds it and view code reads it.
//
// The roster is replaced wholesale from each snapshot, never patched. It is
// marked stale on reconnect and trusted again only after the next snapshot.
type State struct {
	mu          sync.RWMutex
	roster      []types.Device
	rosterFresh bool
	progress    map[string]int
	outcomes    map[string]Outcome
	unread      int
	seen        *protocol.SeenSet
	token       string
}

func NewState() *State {
	return &State{
		progress: make(map[string]int),
		outcomes: make(map[string]Outcome),
		seen:     protocol.NewSeenSet(seenLimit),
	}
}

// ApplyRosterSnapshot replaces the cached roster with the snapshot. A nil
// snapshot is an empty roster, not an error.
func (s *State) ApplyRosterSnapshot(devices []types.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roster = append([]types.Device(nil), devices...)
	s.rosterFresh = true
}

// MarkRosterStale flags the cached roster as untrusted until the next
// snapshot arrives. Called on every reconnect.
func (s *State) MarkRosterStale() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rosterFresh = false
}

// Roster returns a copy of the cached roster and whether it has been
// refreshed since the last reconnect.
func (s *State) Roster() ([]types.Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.Device(nil), s.roster...), s.rosterFresh
}

// ApplyProgress records a progress tick for a transfer. Values regress only
// on screen, never in state: a tick below the recorded value is dropped, and
// ticks after the receipt are dropped too.
func (s *State) ApplyProgress(filename string, percent int) {
	if !types.IsValidProgress(percent) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, done := s.outcomes[filename]; done {
		return
	}
	if percent <= s.progress[filename] {
		return
	}
	s.progress[filename] = percent
}

// Progress returns the recorded percentage for a transfer, or 0 with false
// when none is in flight.
func (s *State) Progress(filename string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.progress[filename]
	return p, ok
}

// ApplyReceipt records the terminal outcome of a transfer and clears its
// progress. Duplicate deliveries are detected by filename+timestamp
// fingerprint and ignored; the return value reports whether this delivery
// was the first. The unread counter increments once per distinct receipt.
func (s *State) ApplyReceipt(receipt types.ReceiptPayload) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	fp := protocol.Fingerprint(receipt.Filename, receipt.Timestamp)
	if !s.seen.Add(fp) {
		return false
	}

	outcome := Outcome{Status: OutcomeSucceeded}
	if receipt.Error != "" {
		outcome = Outcome{Status: OutcomeFailed, Reason: receipt.Error}
	}
	s.outcomes[receipt.Filename] = outcome
	delete(s.progress, receipt.Filename)
	s.unread++
	return true
}

// FailLocally records a failed outcome decided on this side, such as a
// receipt timeout. Unlike ApplyReceipt it leaves the unread badge alone; no
// file arrived anywhere.
func (s *State) FailLocally(filename, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[filename] = Outcome{Status: OutcomeFailed, Reason: reason}
	delete(s.progress, filename)
}

// Outcome returns the recorded terminal state for a transfer.
func (s *State) Outcome(filename string) (Outcome, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.outcomes[filename]
	return o, ok
}

// ClearOutcome drops the recorded outcome so the same filename can be
// uploaded again.
func (s *State) ClearOutcome(filename string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.outcomes, filename)
}

// Unread returns the notification badge count.
func (s *State) Unread() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread
}

// ClearUnread resets the badge, called when the owning surface is opened.
func (s *State) ClearUnread() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unread = 0
}

// SetToken caches the authentication token for replay across reconnects.
func (s *State) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// Token returns the cached authentication token, empty when logged out.
func (s *State) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}
