package feed

import (
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Kind selects a notice slot.
type Kind int

const (
	// Toast is a short, dismissible notice about the user's own action.
	Toast Kind = iota
	// Banner is a prominent server-sent message.
	Banner
)

func (k Kind) String() string {
	if k == Banner {
		return "banner"
	}
	return "toast"
}

// Notice is the text currently shown in one slot.
type Notice struct {
	Kind  Kind
	Text  string
	Shown time.Time
}

// NoticeFunc observes slot changes. n is nil when the slot is cleared.
type NoticeFunc func(kind Kind, n *Notice)

type slot struct {
	notice *Notice
	timer  *time.Timer
	seq    uint64
	ttl    time.Duration
}

// Notices holds one toast and one banner, each cleared after its TTL. Showing
// a new notice replaces the one in the same slot and restarts its timer.
type Notices struct {
	// notifyMu is held while watchers run so Stop can wait them out.
	notifyMu sync.Mutex
	mu       sync.Mutex
	slots    [2]slot
	watchers []NoticeFunc
	stopped  bool
	logger   zerolog.Logger
}

// NewNotices creates a notice holder with the given lifetimes.
func NewNotices(toastTTL, bannerTTL time.Duration, logger zerolog.Logger) *Notices {
	n := &Notices{logger: logger.With().Str("component", "notices").Logger()}
	n.slots[Toast].ttl = toastTTL
	n.slots[Banner].ttl = bannerTTL
	return n
}

// OnChange registers a watcher called on every show and clear.
func (n *Notices) OnChange(fn NoticeFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.watchers = append(n.watchers, fn)
}

// Show displays text in the kind slot.
func (n *Notices) Show(kind Kind, text string) {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return
	}
	s := &n.slots[kind]
	if s.timer != nil {
		s.timer.Stop()
	}
	s.seq++
	seq := s.seq
	notice := &Notice{Kind: kind, Text: text, Shown: time.Now()}
	s.notice = notice
	s.timer = time.AfterFunc(s.ttl, func() { n.expire(kind, seq) })
	cp := *notice
	n.mu.Unlock()

	n.logger.Debug().Str("kind", kind.String()).Str("text", text).Msg("notice shown")
	n.notify(kind, &cp)
}

// Dismiss clears the kind slot immediately.
func (n *Notices) Dismiss(kind Kind) {
	n.mu.Lock()
	s := &n.slots[kind]
	if n.stopped || s.notice == nil {
		n.mu.Unlock()
		return
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.seq++
	n.clearLocked(kind)
}

func (n *Notices) expire(kind Kind, seq uint64) {
	n.mu.Lock()
	if n.stopped || n.slots[kind].seq != seq {
		n.mu.Unlock()
		return
	}
	n.slots[kind].timer = nil
	n.clearLocked(kind)
}

// clearLocked empties the slot, releases the lock and notifies watchers.
func (n *Notices) clearLocked(kind Kind) {
	n.slots[kind].notice = nil
	n.mu.Unlock()
	n.notify(kind, nil)
}

// notify runs the watchers unless Stop has been called in the meantime.
func (n *Notices) notify(kind Kind, notice *Notice) {
	n.notifyMu.Lock()
	defer n.notifyMu.Unlock()
	n.mu.Lock()
	stopped := n.stopped
	watchers := slices.Clone(n.watchers)
	n.mu.Unlock()
	if stopped {
		return
	}
	for _, fn := range watchers {
		fn(kind, notice)
	}
}

// Current returns the notice shown in the kind slot.
func (n *Notices) Current(kind Kind) (Notice, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.slots[kind].notice == nil {
		return Notice{}, false
	}
	return *n.slots[kind].notice, true
}

// Stop cancels pending timers and waits for running watchers. No watcher is
// called after Stop returns. Watchers must not call Show, Dismiss or Stop.
func (n *Notices) Stop() {
	n.notifyMu.Lock()
	defer n.notifyMu.Unlock()
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopped = true
	for i := range n.slots {
		if n.slots[i].timer != nil {
			n.slots[i].timer.Stop()
			n.slots[i].timer = nil
		}
	}
}
