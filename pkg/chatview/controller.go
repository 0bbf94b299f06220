package chatview

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"huddle/pkg/badges"
	"huddle/pkg/config"
	"huddle/pkg/logger"
	"huddle/pkg/models"
	"huddle/pkg/store"
	"huddle/pkg/stream"
)

// BottomThreshold is the distance from the newest message, in pixels,
// within which the viewer still counts as "at the bottom".
const BottomThreshold = 90

// State classifies one mounted stream view.
type State int

const (
	// Loading means the subscription is established but no snapshot has
	// arrived yet.
	Loading State = iota
	// ActiveAtBottom means the viewer is within BottomThreshold of the
	// newest message; incoming messages advance the read cursor.
	ActiveAtBottom
	// ActiveScrolledUp means the viewer scrolled away; incoming messages
	// from others place an unread marker and the cursor does not advance.
	ActiveScrolledUp
	// Inactive means the stream is no longer the one shown.
	Inactive
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case ActiveAtBottom:
		return "active_at_bottom"
	case ActiveScrolledUp:
		return "active_scrolled_up"
	case Inactive:
		return "inactive"
	}
	return "unknown"
}

// Validation failures on user actions. These surface directly to the
// caller and are never retried.
var (
	ErrNoUser       = errors.New("no authenticated user")
	ErrNoStream     = errors.New("no stream selected")
	ErrEmptyMessage = errors.New("message text is empty")
	ErrTimedOut     = errors.New("user is under a timeout")
	ErrReadOnly     = errors.New("channel is read-only")
	ErrSelfReaction = errors.New("cannot react to your own message")
	ErrNotAllowed   = errors.New("not allowed")
)

// Controller owns the live message list for one channel or DM thread and
// keeps the viewer's read cursor consistent with what they have actually
// seen. Snapshots are folded into state by a single reducer; user actions
// (scroll, send, react, pin, delete) mutate through the store and come
// back around as new snapshots.
type Controller struct {
	mu  sync.Mutex
	cfg *config.ChatConfig
	uid string

	ref    store.StreamRef
	bound  bool
	sub    *stream.Sub
	state  State
	msgs   []models.Message
	lastTS int64

	// Transient per-view flags, reset on every stream switch.
	initialScrollDone bool
	unreadMarkerID    string
	jumpVisible       bool
	notice            string
}

// NewController returns a controller for one viewer. No stream is bound
// until Open.
func NewController(cfg *config.ChatConfig, uid string) *Controller {
	return &Controller{cfg: cfg, uid: uid, state: Inactive}
}

// NewActions returns a controller bound to a stream without a live
// subscription, for callers that only need the mutation paths (send,
// react, pin, delete).
func NewActions(cfg *config.ChatConfig, uid string, ref store.StreamRef) *Controller {
	return &Controller{cfg: cfg, uid: uid, ref: ref, bound: true, state: Inactive}
}

// Open binds the controller to a stream, resetting all transient flags
// before resubscribing, and enters Loading until the first snapshot.
func (c *Controller) Open(ref store.StreamRef) {
	c.mu.Lock()
	c.teardownLocked()
	c.ref = ref
	c.bound = true
	c.state = Loading
	c.msgs = nil
	c.lastTS = 0
	c.initialScrollDone = false
	c.unreadMarkerID = ""
	c.jumpVisible = false
	c.notice = ""
	sub := store.WatchMessages(ref)
	c.sub = sub
	c.mu.Unlock()

	if cur, err := store.GetCursor(c.uid, ref); err == nil {
		c.mu.Lock()
		if c.sub == sub {
			c.lastTS = cur.TS
		}
		c.mu.Unlock()
	}
	go func() {
		for v := range sub.C {
			msgs, ok := v.([]models.Message)
			if !ok {
				continue
			}
			c.applySnapshot(sub, msgs)
		}
	}()

	// Seed from the store so the view is populated before the first
	// publish arrives.
	if msgs, err := store.ListMessages(ref, 0); err == nil && len(msgs) > 0 {
		c.applySnapshot(sub, msgs)
	}
}

// Close drops the subscription. If the view was active with the newest
// message visible, the cursor is advanced first, best-effort.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.state == ActiveAtBottom {
		c.advanceCursorLocked()
	}
	c.teardownLocked()
	c.bound = false
	c.mu.Unlock()
}

func (c *Controller) teardownLocked() {
	if c.sub != nil {
		c.sub.Cancel()
		c.sub = nil
	}
}

// applySnapshot is the reducer folding a full message-list snapshot into
// view state. Snapshots are not guaranteed sorted, so order is restored
// here by timestamp.
func (c *Controller) applySnapshot(sub *stream.Sub, msgs []models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub != sub {
		return
	}
	sorted := append([]models.Message(nil), msgs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TS < sorted[j].TS })
	c.msgs = sorted

	var newest models.Message
	if len(sorted) > 0 {
		newest = sorted[len(sorted)-1]
	}

	switch c.state {
	case Loading:
		// First snapshot: scroll to end without animation, the newest
		// message counts as seen.
		c.state = ActiveAtBottom
		c.initialScrollDone = true
		c.advanceCursorLocked()
	case ActiveAtBottom:
		c.advanceCursorLocked()
	case ActiveScrolledUp:
		if newest.TS > c.lastTS && newest.Author == c.uid {
			// Own outgoing message forces the view back to the bottom.
			c.state = ActiveAtBottom
			c.unreadMarkerID = ""
			c.jumpVisible = false
			c.advanceCursorLocked()
			break
		}
		if newest.TS > c.lastTS && newest.Author != c.uid {
			if c.unreadMarkerID == "" {
				c.unreadMarkerID = c.firstUnreadLocked()
			}
			c.jumpVisible = true
		}
	case Inactive:
		// Snapshots still arrive while inactive; nothing moves.
	}
}

// firstUnreadLocked returns the id of the oldest message past the cursor,
// where the unread marker is placed.
func (c *Controller) firstUnreadLocked() string {
	for _, m := range c.msgs {
		if m.TS > c.lastTS && m.Author != c.uid {
			return m.ID
		}
	}
	return ""
}

// advanceCursorLocked writes the read cursor at the newest message. Cursor
// writes are last-write-wins upserts; nothing enforces monotonicity.
func (c *Controller) advanceCursorLocked() {
	if len(c.msgs) == 0 || c.uid == "" {
		return
	}
	newest := c.msgs[len(c.msgs)-1]
	if err := store.SaveCursor(c.uid, c.ref, models.ReadCursor{MessageID: newest.ID, TS: newest.TS}); err != nil {
		logger.Warn("cursor_advance_failed", "user", c.uid, "stream", c.ref.ID, "error", err)
		return
	}
	c.lastTS = newest.TS
}

// HandleScroll reclassifies the view from a scroll event carrying the
// viewer's distance from the newest message in pixels.
func (c *Controller) HandleScroll(distanceFromBottom float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != ActiveAtBottom && c.state != ActiveScrolledUp {
		return
	}
	if distanceFromBottom <= BottomThreshold {
		c.state = ActiveAtBottom
		c.unreadMarkerID = ""
		c.jumpVisible = false
		c.advanceCursorLocked()
		return
	}
	c.state = ActiveScrolledUp
}

// JumpToLatest is the "jump to latest" affordance: animated scroll back to
// the bottom, cursor advanced.
func (c *Controller) JumpToLatest() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != ActiveScrolledUp {
		return
	}
	c.state = ActiveAtBottom
	c.unreadMarkerID = ""
	c.jumpVisible = false
	c.advanceCursorLocked()
}

// Deactivate marks the stream as no longer shown. The newest message, if
// any, counts as read on the way out.
func (c *Controller) Deactivate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Inactive {
		return
	}
	c.advanceCursorLocked()
	c.state = Inactive
}

// Activate returns an inactive view to the bottom of the stream.
func (c *Controller) Activate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Inactive {
		return
	}
	c.state = ActiveAtBottom
	c.unreadMarkerID = ""
	c.jumpVisible = false
	c.advanceCursorLocked()
}

// State returns the current view state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Messages returns a copy of the current ascending message list.
func (c *Controller) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Message(nil), c.msgs...)
}

// UnreadMarker returns the message id the unread marker sits above, or ""
// when no marker is shown.
func (c *Controller) UnreadMarker() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unreadMarkerID
}

// JumpVisible reports whether the jump-to-latest affordance is shown.
func (c *Controller) JumpVisible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.jumpVisible
}

// Notice returns and clears the transient inline notice, if any.
func (c *Controller) Notice() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.notice
	c.notice = ""
	return n
}

// Send validates and appends a message to the bound stream. Rejections are
// immediate and never retried. On success the XP award runs fire-and-forget
// and neither blocks the caller nor rolls back the message on failure.
func (c *Controller) Send(text string) (models.Message, error) {
	return c.send(text, false)
}

// ShareSplit posts a workout split through the approved split-sharing flow,
// which is the one path allowed to write into a read-only channel. The
// split list itself is replaced wholesale on the sender's profile.
func (c *Controller) ShareSplit(sp models.Split, caption string) (models.Message, error) {
	text := strings.TrimSpace(caption)
	if text == "" {
		text = "Shared a split: " + sp.Title
	}
	msg, err := c.send(text, true)
	if err != nil {
		return models.Message{}, err
	}
	if splits, lerr := store.ListSplits(c.uid); lerr == nil {
		if err := store.ReplaceSplits(c.uid, append(splits, sp)); err != nil {
			logger.Warn("split_save_failed", "user", c.uid, "error", err)
		}
	}
	return msg, nil
}

func (c *Controller) send(text string, viaSplitFlow bool) (models.Message, error) {
	c.mu.Lock()
	ref := c.ref
	bound := c.bound
	c.mu.Unlock()

	if c.uid == "" {
		return models.Message{}, ErrNoUser
	}
	if !bound {
		return models.Message{}, ErrNoStream
	}
	if strings.TrimSpace(text) == "" {
		return models.Message{}, ErrEmptyMessage
	}
	u, err := store.GetUser(c.uid)
	if err != nil {
		return models.Message{}, err
	}
	if u.TimedOut(time.Now().UTC().UnixNano()) {
		return models.Message{}, ErrTimedOut
	}
	if ref.Kind == store.ChannelStream {
		if ch, ok := c.cfg.Channel(ref.ID); ok {
			if ch.ReadOnly && !viaSplitFlow {
				return models.Message{}, ErrReadOnly
			}
			if ch.ModOnly && !c.cfg.IsModerator(c.uid) {
				return models.Message{}, ErrNotAllowed
			}
		}
	}

	msg := models.Message{Author: c.uid, Text: text}
	saved, err := store.SaveMessage(ref, msg)
	if err != nil {
		return models.Message{}, err
	}
	go badges.AwardChatXP(c.uid, c.cfg.XPPerMessageOrDefault())
	return saved, nil
}

// ToggleReaction applies toggle semantics for one (reactor, emoji) pair:
// no prior reaction appends, the same emoji removes, a different emoji
// replaces in place. A reactor never has more than one reaction per
// message. The read-modify-write is a plain document overwrite, so two
// concurrent reactors can race and one write can be lost.
func (c *Controller) ToggleReaction(msgID, emoji string) error {
	if c.uid == "" {
		return ErrNoUser
	}
	msg, key, err := store.GetMessage(msgID)
	if err != nil {
		return err
	}
	if msg.Author == c.uid {
		return ErrSelfReaction
	}
	idx := msg.ReactionBy(c.uid)
	switch {
	case idx < 0:
		msg.Reactions = append(msg.Reactions, models.Reaction{Emoji: emoji, UserID: c.uid})
	case msg.Reactions[idx].Emoji == emoji:
		msg.Reactions = append(msg.Reactions[:idx], msg.Reactions[idx+1:]...)
	default:
		msg.Reactions[idx].Emoji = emoji
	}
	c.mu.Lock()
	ref := c.ref
	c.mu.Unlock()
	return store.UpdateMessage(ref, key, msg)
}

// PinLimitNotice is the transient inline message shown when the pin cap
// is already reached.
const PinLimitNotice = "Pin limit reached. Unpin a message first."

// Pin marks a message pinned. Moderators only; at most the configured
// number of messages may be pinned at once, and hitting the cap surfaces
// a transient notice instead of an error.
func (c *Controller) Pin(msgID string) error {
	if c.uid == "" {
		return ErrNoUser
	}
	if !c.cfg.IsModerator(c.uid) {
		return ErrNotAllowed
	}
	msg, key, err := store.GetMessage(msgID)
	if err != nil {
		return err
	}
	if msg.Pinned {
		return nil
	}
	c.mu.Lock()
	ref := c.ref
	c.mu.Unlock()
	n, err := store.PinnedCount(ref)
	if err != nil {
		return err
	}
	if n >= c.cfg.PinLimitOrDefault() {
		c.mu.Lock()
		c.notice = PinLimitNotice
		c.mu.Unlock()
		return nil
	}
	msg.Pinned = true
	msg.PinnedTS = time.Now().UTC().UnixNano()
	return store.UpdateMessage(ref, key, msg)
}

// Unpin clears a message's pinned flag. Moderators only.
func (c *Controller) Unpin(msgID string) error {
	if c.uid == "" {
		return ErrNoUser
	}
	if !c.cfg.IsModerator(c.uid) {
		return ErrNotAllowed
	}
	msg, key, err := store.GetMessage(msgID)
	if err != nil {
		return err
	}
	if !msg.Pinned {
		return nil
	}
	msg.Pinned = false
	msg.PinnedTS = 0
	c.mu.Lock()
	ref := c.ref
	c.mu.Unlock()
	return store.UpdateMessage(ref, key, msg)
}

// Delete physically removes a message. Allowed for the message owner and
// for moderators.
func (c *Controller) Delete(msgID string) error {
	if c.uid == "" {
		return ErrNoUser
	}
	msg, _, err := store.GetMessage(msgID)
	if err != nil {
		return err
	}
	if msg.Author != c.uid && !c.cfg.IsModerator(c.uid) {
		return ErrNotAllowed
	}
	c.mu.Lock()
	ref := c.ref
	c.mu.Unlock()
	return store.DeleteMessage(ref, msgID)
}
