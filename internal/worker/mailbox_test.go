package worker

import "testing"

func TestMailboxLatestWins(t *testing.T) {
	var m Mailbox

	if _, ok := m.TryTake(); ok {
		t.Fatal("empty mailbox must not yield a result")
	}

	id1 := m.Publish(FrameResult{Frame: 1})
	id2 := m.Publish(FrameResult{Frame: 2})
	if id2 <= id1 {
		t.Fatalf("IDs must increase: %d then %d", id1, id2)
	}

	r, ok := m.TryTake()
	if !ok || r.Frame != 2 || r.ID != id2 || !r.Ready {
		t.Fatalf("expected frame 2 with id %d, got %+v", id2, r)
	}
	if _, ok := m.TryTake(); ok {
		t.Error("a taken result must not be returned twice")
	}
	if m.Drops() != 1 {
		t.Errorf("expected 1 drop, got %d", m.Drops())
	}
	if m.LastID() != id2 {
		t.Errorf("expected last id %d, got %d", id2, m.LastID())
	}
}

func TestMailboxIgnoresCallerID(t *testing.T) {
	var m Mailbox
	id := m.Publish(FrameResult{ID: 99})
	if id != 1 {
		t.Errorf("mailbox must assign its own IDs, got %d", id)
	}
}
