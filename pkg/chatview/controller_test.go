package chatview

import (
	"errors"
	"testing"
	"time"

	"huddle/pkg/config"
	"huddle/pkg/models"
	"huddle/pkg/store"
	"huddle/pkg/stream"
)

func testChatCfg() *config.ChatConfig {
	return &config.ChatConfig{
		Channels: []models.Channel{
			{ID: "general", Name: "General"},
			{ID: "splits", Name: "Splits", ReadOnly: true},
			{ID: "modhq", Name: "Mod HQ", ModOnly: true},
		},
		Moderators: []string{"mod"},
		PinLimit:   2,
	}
}

func openTestStore(t *testing.T) {
	t.Helper()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	store.SetHub(stream.NewHub())
	t.Cleanup(func() {
		store.SetHub(nil)
		_ = store.Close()
	})
}

func waitState(t *testing.T, c *Controller, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %v, want %v", c.State(), want)
}

func waitCond(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestOpenLandsAtBottomAndAdvancesCursor(t *testing.T) {
	openTestStore(t)
	ref := store.Channel("general")
	newest, _ := store.SaveMessage(ref, models.Message{Author: "bob", Text: "hello"})

	c := NewController(testChatCfg(), "alice")
	c.Open(ref)
	defer c.Close()

	waitState(t, c, ActiveAtBottom)
	waitCond(t, "cursor at newest", func() bool {
		cur, err := store.GetCursor("alice", ref)
		return err == nil && cur.TS == newest.TS
	})
	if len(c.Messages()) != 1 {
		t.Fatalf("expected 1 message, got %d", len(c.Messages()))
	}
}

func TestScrolledUpGetsMarkerAndJump(t *testing.T) {
	openTestStore(t)
	ref := store.Channel("general")
	_, _ = store.SaveMessage(ref, models.Message{Author: "bob", Text: "first"})

	c := NewController(testChatCfg(), "alice")
	c.Open(ref)
	defer c.Close()
	waitState(t, c, ActiveAtBottom)

	c.HandleScroll(BottomThreshold + 1)
	if c.State() != ActiveScrolledUp {
		t.Fatalf("expected scrolled-up state, got %v", c.State())
	}
	cursorBefore, _ := store.GetCursor("alice", ref)

	incoming, _ := store.SaveMessage(ref, models.Message{Author: "bob", Text: "while away"})
	waitCond(t, "unread marker", func() bool { return c.UnreadMarker() == incoming.ID })
	if !c.JumpVisible() {
		t.Fatalf("jump affordance should be visible")
	}
	if cur, _ := store.GetCursor("alice", ref); cur.TS != cursorBefore.TS {
		t.Fatalf("cursor advanced while scrolled up")
	}

	// the marker pins to the first unseen message even as more arrive
	_, _ = store.SaveMessage(ref, models.Message{Author: "bob", Text: "another"})
	waitCond(t, "third message", func() bool { return len(c.Messages()) == 3 })
	if c.UnreadMarker() != incoming.ID {
		t.Fatalf("marker moved: %q", c.UnreadMarker())
	}

	c.JumpToLatest()
	if c.State() != ActiveAtBottom || c.UnreadMarker() != "" || c.JumpVisible() {
		t.Fatalf("jump did not restore bottom state")
	}
	cur, _ := store.GetCursor("alice", ref)
	msgs := c.Messages()
	if cur.TS != msgs[len(msgs)-1].TS {
		t.Fatalf("jump did not advance cursor")
	}
}

func TestOwnMessageForcesBackToBottom(t *testing.T) {
	openTestStore(t)
	ref := store.Channel("general")
	_, _ = store.SaveMessage(ref, models.Message{Author: "bob", Text: "first"})

	c := NewController(testChatCfg(), "alice")
	c.Open(ref)
	defer c.Close()
	waitState(t, c, ActiveAtBottom)

	c.HandleScroll(500)
	if _, err := c.Send("my reply"); err != nil {
		t.Fatalf("send: %v", err)
	}
	waitState(t, c, ActiveAtBottom)
	if c.UnreadMarker() != "" || c.JumpVisible() {
		t.Fatalf("own message should clear marker and jump")
	}
}

func TestScrollBackWithinThreshold(t *testing.T) {
	openTestStore(t)
	ref := store.Channel("general")
	_, _ = store.SaveMessage(ref, models.Message{Author: "bob", Text: "first"})

	c := NewController(testChatCfg(), "alice")
	c.Open(ref)
	defer c.Close()
	waitState(t, c, ActiveAtBottom)

	c.HandleScroll(500)
	if c.State() != ActiveScrolledUp {
		t.Fatalf("expected scrolled up")
	}
	// exactly at the threshold still counts as bottom
	c.HandleScroll(BottomThreshold)
	if c.State() != ActiveAtBottom {
		t.Fatalf("threshold scroll should return to bottom")
	}
}

func TestDeactivateActivate(t *testing.T) {
	openTestStore(t)
	ref := store.Channel("general")
	_, _ = store.SaveMessage(ref, models.Message{Author: "bob", Text: "first"})

	c := NewController(testChatCfg(), "alice")
	c.Open(ref)
	defer c.Close()
	waitState(t, c, ActiveAtBottom)

	c.Deactivate()
	if c.State() != Inactive {
		t.Fatalf("expected inactive")
	}
	// snapshots while inactive do not move the cursor
	cursorBefore, _ := store.GetCursor("alice", ref)
	newest, _ := store.SaveMessage(ref, models.Message{Author: "bob", Text: "while hidden"})
	waitCond(t, "snapshot while inactive", func() bool { return len(c.Messages()) == 2 })
	if cur, _ := store.GetCursor("alice", ref); cur.TS != cursorBefore.TS {
		t.Fatalf("cursor advanced while inactive")
	}

	c.Activate()
	if c.State() != ActiveAtBottom {
		t.Fatalf("expected active at bottom")
	}
	if cur, _ := store.GetCursor("alice", ref); cur.TS != newest.TS {
		t.Fatalf("activate should advance cursor to newest")
	}
}

func TestCloseWhileAtBottomAdvancesCursor(t *testing.T) {
	openTestStore(t)
	ref := store.Channel("general")

	c := NewController(testChatCfg(), "alice")
	c.Open(ref)
	newest, _ := store.SaveMessage(ref, models.Message{Author: "bob", Text: "hello"})
	waitState(t, c, ActiveAtBottom)
	c.Close()

	cur, _ := store.GetCursor("alice", ref)
	if cur.TS != newest.TS {
		t.Fatalf("close at bottom should write the cursor")
	}
}

func TestSendValidation(t *testing.T) {
	openTestStore(t)
	cfg := testChatCfg()
	ref := store.Channel("general")

	if _, err := NewActions(cfg, "", ref).Send("hi"); !errors.Is(err, ErrNoUser) {
		t.Fatalf("expected ErrNoUser, got %v", err)
	}
	if _, err := NewController(cfg, "alice").Send("hi"); !errors.Is(err, ErrNoStream) {
		t.Fatalf("expected ErrNoStream, got %v", err)
	}
	if _, err := NewActions(cfg, "alice", ref).Send("   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if _, err := NewActions(cfg, "alice", store.Channel("splits")).Send("hi"); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
	if _, err := NewActions(cfg, "alice", store.Channel("modhq")).Send("hi"); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed, got %v", err)
	}
	if _, err := NewActions(cfg, "mod", store.Channel("modhq")).Send("hi"); err != nil {
		t.Fatalf("moderator send in mod-only channel: %v", err)
	}

	timedOut := models.User{ID: "muted", TimeoutUntil: time.Now().UTC().Add(time.Hour).UnixNano()}
	if err := store.SaveUser(timedOut); err != nil {
		t.Fatalf("save user: %v", err)
	}
	if _, err := NewActions(cfg, "muted", ref).Send("hi"); !errors.Is(err, ErrTimedOut) {
		t.Fatalf("expected ErrTimedOut, got %v", err)
	}
}

func TestSendAwardsXP(t *testing.T) {
	openTestStore(t)
	c := NewActions(testChatCfg(), "alice", store.Channel("general"))
	if _, err := c.Send("hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	waitCond(t, "xp credit", func() bool {
		u, err := store.GetUser("alice")
		return err == nil && u.ChatXP > 0
	})
}

func TestShareSplitBypassesReadOnlyAndAppends(t *testing.T) {
	openTestStore(t)
	c := NewActions(testChatCfg(), "alice", store.Channel("splits"))

	if err := store.ReplaceSplits("alice", []models.Split{{ID: "old", Title: "PPL"}}); err != nil {
		t.Fatalf("seed splits: %v", err)
	}
	msg, err := c.ShareSplit(models.Split{ID: "new", Title: "Upper/Lower"}, "")
	if err != nil {
		t.Fatalf("share split: %v", err)
	}
	if msg.Text != "Shared a split: Upper/Lower" {
		t.Fatalf("unexpected caption: %q", msg.Text)
	}
	splits, _ := store.ListSplits("alice")
	if len(splits) != 2 || splits[1].ID != "new" {
		t.Fatalf("split list not appended: %+v", splits)
	}
}

func TestToggleReaction(t *testing.T) {
	openTestStore(t)
	ref := store.Channel("general")
	msg, _ := store.SaveMessage(ref, models.Message{Author: "bob", Text: "react to me"})
	c := NewActions(testChatCfg(), "alice", ref)

	if err := c.ToggleReaction(msg.ID, "🔥"); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, _, _ := store.GetMessage(msg.ID)
	if len(got.Reactions) != 1 || got.Reactions[0].Emoji != "🔥" || got.Reactions[0].UserID != "alice" {
		t.Fatalf("unexpected reactions: %+v", got.Reactions)
	}

	// a different emoji replaces in place, never stacking a second entry
	if err := c.ToggleReaction(msg.ID, "💪"); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, _, _ = store.GetMessage(msg.ID)
	if len(got.Reactions) != 1 || got.Reactions[0].Emoji != "💪" {
		t.Fatalf("replace failed: %+v", got.Reactions)
	}

	// the same emoji toggles it off
	if err := c.ToggleReaction(msg.ID, "💪"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	got, _, _ = store.GetMessage(msg.ID)
	if len(got.Reactions) != 0 {
		t.Fatalf("toggle-off failed: %+v", got.Reactions)
	}

	// odd repeats land present, even repeats land absent
	for i := 0; i < 3; i++ {
		if err := c.ToggleReaction(msg.ID, "🔥"); err != nil {
			t.Fatalf("toggle %d: %v", i, err)
		}
	}
	got, _, _ = store.GetMessage(msg.ID)
	if len(got.Reactions) != 1 {
		t.Fatalf("three toggles should end present: %+v", got.Reactions)
	}

	if err := NewActions(testChatCfg(), "bob", ref).ToggleReaction(msg.ID, "🔥"); !errors.Is(err, ErrSelfReaction) {
		t.Fatalf("expected ErrSelfReaction, got %v", err)
	}
}

func TestReactionsFromTwoUsersCoexist(t *testing.T) {
	openTestStore(t)
	ref := store.Channel("general")
	msg, _ := store.SaveMessage(ref, models.Message{Author: "carol", Text: "hi"})

	if err := NewActions(testChatCfg(), "alice", ref).ToggleReaction(msg.ID, "🔥"); err != nil {
		t.Fatalf("alice: %v", err)
	}
	if err := NewActions(testChatCfg(), "bob", ref).ToggleReaction(msg.ID, "💪"); err != nil {
		t.Fatalf("bob: %v", err)
	}
	got, _, _ := store.GetMessage(msg.ID)
	if len(got.Reactions) != 2 {
		t.Fatalf("expected both reactions: %+v", got.Reactions)
	}
}

func TestPinCapAndPermissions(t *testing.T) {
	openTestStore(t)
	cfg := testChatCfg() // PinLimit 2
	ref := store.Channel("general")
	var ids []string
	for i := 0; i < 3; i++ {
		m, _ := store.SaveMessage(ref, models.Message{Author: "bob", Text: "m"})
		ids = append(ids, m.ID)
	}

	if err := NewActions(cfg, "alice", ref).Pin(ids[0]); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("non-moderator pin: %v", err)
	}

	mod := NewActions(cfg, "mod", ref)
	if err := mod.Pin(ids[0]); err != nil {
		t.Fatalf("pin 1: %v", err)
	}
	if err := mod.Pin(ids[1]); err != nil {
		t.Fatalf("pin 2: %v", err)
	}
	// cap reached: not an error, a transient notice, and nothing pinned
	if err := mod.Pin(ids[2]); err != nil {
		t.Fatalf("pin at cap should not error: %v", err)
	}
	if n := mod.Notice(); n != PinLimitNotice {
		t.Fatalf("expected pin limit notice, got %q", n)
	}
	if n := mod.Notice(); n != "" {
		t.Fatalf("notice should clear after read, got %q", n)
	}
	if got, _, _ := store.GetMessage(ids[2]); got.Pinned {
		t.Fatalf("third message pinned past the cap")
	}
	if n, _ := store.PinnedCount(ref); n != 2 {
		t.Fatalf("pinned count = %d, want 2", n)
	}

	if err := mod.Unpin(ids[0]); err != nil {
		t.Fatalf("unpin: %v", err)
	}
	if err := mod.Pin(ids[2]); err != nil {
		t.Fatalf("pin after unpin: %v", err)
	}
	if got, _, _ := store.GetMessage(ids[2]); !got.Pinned {
		t.Fatalf("pin after freeing a slot failed")
	}
}

func TestDeletePermissions(t *testing.T) {
	openTestStore(t)
	cfg := testChatCfg()
	ref := store.Channel("general")

	mine, _ := store.SaveMessage(ref, models.Message{Author: "alice", Text: "mine"})
	theirs, _ := store.SaveMessage(ref, models.Message{Author: "bob", Text: "theirs"})

	alice := NewActions(cfg, "alice", ref)
	if err := alice.Delete(theirs.ID); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("deleting someone else's message: %v", err)
	}
	if err := alice.Delete(mine.ID); err != nil {
		t.Fatalf("deleting own message: %v", err)
	}
	if err := NewActions(cfg, "mod", ref).Delete(theirs.ID); err != nil {
		t.Fatalf("moderator delete: %v", err)
	}
	if msgs, _ := store.ListMessages(ref, 0); len(msgs) != 0 {
		t.Fatalf("messages remain after delete: %+v", msgs)
	}
}
