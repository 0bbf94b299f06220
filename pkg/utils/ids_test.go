package utils

import "testing"

func TestGenMsgIDUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		id := GenMsgID()
		if seen[id] {
			t.Fatalf("duplicate id: %s", id)
		}
		seen[id] = true
	}
}

func TestDMThreadIDCanonical(t *testing.T) {
	if DMThreadID("alice", "bob") != DMThreadID("bob", "alice") {
		t.Fatalf("thread id must not depend on argument order")
	}
	if got := DMThreadID("bob", "alice"); got != "alice__bob" {
		t.Fatalf("unexpected thread id: %s", got)
	}
}

func TestDMThreadHasParticipant(t *testing.T) {
	th := DMThreadID("alice", "bob")
	if !DMThreadHasParticipant(th, "alice") || !DMThreadHasParticipant(th, "bob") {
		t.Fatalf("participants not recognized")
	}
	if DMThreadHasParticipant(th, "carol") {
		t.Fatalf("outsider recognized as participant")
	}
	if DMThreadHasParticipant("not-a-thread", "alice") {
		t.Fatalf("malformed thread id accepted")
	}
}
