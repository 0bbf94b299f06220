package unread

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"huddle/pkg/logger"
	"huddle/pkg/models"
	"huddle/pkg/store"
	"huddle/pkg/stream"
)

var recomputes = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "huddle_unread_recomputes_total",
	Help: "Unread-state recomputations triggered by cursor or latest-message updates.",
})

func init() {
	prometheus.MustRegister(recomputes)
}

// Compute is the unread rule for a single channel: unread when the newest
// message is past the viewer's cursor and was written by someone else. The
// active channel is always read. Ordering of the two inputs' arrival does
// not matter; callers recompute from both captured values on every update.
func Compute(latest models.LatestMeta, cursorTS int64, uid, channelID, activeID string) bool {
	if channelID == activeID {
		return false
	}
	if latest.TS == 0 {
		return false
	}
	return latest.TS > cursorTS && latest.Author != uid
}

type entry struct {
	latest    models.LatestMeta
	cursorTS  int64
	latestSub *stream.Sub
	cursorSub *stream.Sub
}

// Aggregator maintains a live channelID -> unread mapping for one viewer.
// Each tracked channel holds two independent subscriptions: the viewer's
// read cursor and the newest message's metadata. Either update triggers a
// recompute from both captured values.
type Aggregator struct {
	mu       sync.Mutex
	uid      string
	active   string
	channels []string
	entries  map[string]*entry
	updates  chan map[string]bool
	closed   bool
}

// New returns an aggregator tracking the given channels. No subscriptions
// are established until SetUser provides an identity.
func New(channels []string) *Aggregator {
	return &Aggregator{
		channels: append([]string(nil), channels...),
		entries:  map[string]*entry{},
		updates:  make(chan map[string]bool, 1),
	}
}

// Updates delivers full unread-map snapshots, latest-wins.
func (a *Aggregator) Updates() <-chan map[string]bool { return a.updates }

// SetUser switches the viewer identity. All prior per-channel subscriptions
// are dropped and the map reset to empty before resubscribing, so state
// never leaks across an identity change. An empty uid just tears down.
func (a *Aggregator) SetUser(uid string) {
	a.mu.Lock()
	a.teardownLocked()
	a.uid = uid
	if uid == "" || a.closed {
		a.mu.Unlock()
		a.push()
		return
	}
	for _, ch := range a.channels {
		a.subscribeLocked(ch)
	}
	a.mu.Unlock()
	a.push()
}

// SetActive marks a channel as the one currently shown. Its entry is
// cleared immediately; it does not wait for a cursor write.
func (a *Aggregator) SetActive(channelID string) {
	a.mu.Lock()
	a.active = channelID
	a.mu.Unlock()
	a.push()
}

// Snapshot returns the current channelID -> unread mapping.
func (a *Aggregator) Snapshot() map[string]bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// Close cancels every subscription and empties the map.
func (a *Aggregator) Close() {
	a.mu.Lock()
	a.teardownLocked()
	a.closed = true
	a.mu.Unlock()
}

func (a *Aggregator) snapshotLocked() map[string]bool {
	out := make(map[string]bool, len(a.entries))
	for ch, e := range a.entries {
		out[ch] = Compute(e.latest, e.cursorTS, a.uid, ch, a.active)
	}
	return out
}

func (a *Aggregator) teardownLocked() {
	for _, e := range a.entries {
		e.latestSub.Cancel()
		e.cursorSub.Cancel()
	}
	a.entries = map[string]*entry{}
}

// subscribeLocked establishes both subscriptions for one channel under the
// current identity and seeds the captured values from the store so the
// first snapshot is correct before any publish arrives.
func (a *Aggregator) subscribeLocked(ch string) {
	ref := store.Channel(ch)
	e := &entry{
		latestSub: store.WatchLatest(ref),
		cursorSub: store.WatchCursor(a.uid, ref),
	}
	if meta, ok, err := store.LatestMessage(ref); err == nil && ok {
		e.latest = meta
	}
	if c, err := store.GetCursor(a.uid, ref); err == nil {
		e.cursorTS = c.TS
	}
	a.entries[ch] = e

	go func() {
		for {
			select {
			case v, ok := <-e.latestSub.C:
				if !ok {
					return
				}
				meta, ok2 := v.(models.LatestMeta)
				if !ok2 {
					continue
				}
				a.apply(ch, e, func() { e.latest = meta })
			case v, ok := <-e.cursorSub.C:
				if !ok {
					return
				}
				c, ok2 := v.(models.ReadCursor)
				if !ok2 {
					continue
				}
				a.apply(ch, e, func() { e.cursorTS = c.TS })
			}
		}
	}()
}

// apply mutates one entry under the lock, ignoring stale goroutines that
// survived an identity switch, then pushes a fresh snapshot.
func (a *Aggregator) apply(ch string, e *entry, mutate func()) {
	a.mu.Lock()
	if a.entries[ch] != e {
		a.mu.Unlock()
		return
	}
	mutate()
	recomputes.Inc()
	a.mu.Unlock()
	a.push()
}

// push publishes the current snapshot on the updates channel, replacing an
// unconsumed one.
func (a *Aggregator) push() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	snap := a.snapshotLocked()
	a.mu.Unlock()
	select {
	case a.updates <- snap:
	default:
		select {
		case <-a.updates:
		default:
		}
		select {
		case a.updates <- snap:
		default:
		}
	}
	logger.Debug("unread_snapshot", "channels", len(snap))
}
