package chat

import (
	"fmt"
	"sync"
	"testing"
)

// recordingSink captures membership notifications for assertions.
type recordingSink struct {
	mu     sync.Mutex
	joined []sinkEvent
	left   []sinkEvent
}

type sinkEvent struct {
	room    string
	members []string
	label   string
}

func (s *recordingSink) MemberJoined(room string, members []string, label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joined = append(s.joined, sinkEvent{room, members, label})
}

func (s *recordingSink) MemberLeft(room string, members []string, label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.left = append(s.left, sinkEvent{room, members, label})
}

func newTestRooms(t *testing.T, connIDs ...string) (*Registry, *Rooms, *recordingSink) {
	t.Helper()
	reg := NewRegistry()
	sink := &recordingSink{}
	rooms := NewRooms(reg, sink)
	for _, id := range connIDs {
		if err := reg.Register(id, Identity{Label: id + "@example.com"}); err != nil {
			t.Fatalf("Register(%s): %v", id, err)
		}
	}
	return reg, rooms, sink
}

func TestRooms_JoinPresence(t *testing.T) {
	_, rooms, _ := newTestRooms(t, "c1", "c2")

	if n := rooms.Join("3542519", "c1"); n != 1 {
		t.Errorf("first Join() count = %d, want 1", n)
	}
	if n := rooms.Join("3542519", "c2"); n != 2 {
		t.Errorf("second Join() count = %d, want 2", n)
	}

	members := rooms.MembersOf("3542519")
	if len(members) != rooms.PresenceCount("3542519") {
		t.Errorf("len(MembersOf) = %d, PresenceCount = %d; want equal",
			len(members), rooms.PresenceCount("3542519"))
	}
	found := false
	for _, m := range members {
		if m == "c1" {
			found = true
		}
	}
	if !found {
		t.Errorf("MembersOf() = %v, want to contain c1", members)
	}
}

func TestRooms_JoinIdempotent(t *testing.T) {
	_, rooms, sink := newTestRooms(t, "c1", "c2")
	rooms.Join("3542519", "c1")
	rooms.Join("3542519", "c2")

	before := rooms.PresenceCount("3542519")
	if n := rooms.Join("3542519", "c1"); n != before {
		t.Errorf("repeat Join() count = %d, want %d", n, before)
	}

	// Only the genuine join of c2 should have notified anyone
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.joined) != 1 {
		t.Errorf("joined notifications = %d, want 1", len(sink.joined))
	}
}

func TestRooms_LeaveRoundTrip(t *testing.T) {
	_, rooms, _ := newTestRooms(t, "c1", "c2")

	rooms.Join("99942", "c1")
	rooms.Join("99942", "c2")

	n, deleted := rooms.Leave("99942", "c2")
	if n != 1 || deleted {
		t.Errorf("Leave() = (%d, %v), want (1, false)", n, deleted)
	}

	// Last member out deletes the room
	n, deleted = rooms.Leave("99942", "c1")
	if n != 0 || !deleted {
		t.Errorf("last Leave() = (%d, %v), want (0, true)", n, deleted)
	}
	if got := rooms.PresenceCount("99942"); got != 0 {
		t.Errorf("PresenceCount(deleted room) = %d, want 0", got)
	}
	if _, ok := rooms.Snapshot()["99942"]; ok {
		t.Error("Snapshot() still lists the deleted room")
	}
}

func TestRooms_LeaveNonMemberIsNoop(t *testing.T) {
	_, rooms, sink := newTestRooms(t, "c1", "c2")
	rooms.Join("3542519", "c1")

	n, deleted := rooms.Leave("3542519", "c2")
	if n != 1 || deleted {
		t.Errorf("Leave(non-member) = (%d, %v), want (1, false)", n, deleted)
	}
	n, deleted = rooms.Leave("no-such-room", "c1")
	if n != 0 || deleted {
		t.Errorf("Leave(absent room) = (%d, %v), want (0, false)", n, deleted)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.left) != 0 {
		t.Errorf("left notifications = %d, want 0", len(sink.left))
	}
}

func TestRooms_SinkNotifications(t *testing.T) {
	_, rooms, sink := newTestRooms(t, "c1", "c2")

	rooms.Join("3542519", "c1") // no one to notify
	rooms.Join("3542519", "c2") // notifies c1

	sink.mu.Lock()
	if len(sink.joined) != 1 {
		t.Fatalf("joined notifications = %d, want 1", len(sink.joined))
	}
	ev := sink.joined[0]
	sink.mu.Unlock()
	if ev.room != "3542519" || ev.label != "c2@example.com" {
		t.Errorf("joined event = %+v, want room 3542519 label c2@example.com", ev)
	}
	if len(ev.members) != 1 || ev.members[0] != "c1" {
		t.Errorf("joined event members = %v, want [c1]", ev.members)
	}

	rooms.Leave("3542519", "c2") // notifies c1
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.left) != 1 {
		t.Fatalf("left notifications = %d, want 1", len(sink.left))
	}
	if lv := sink.left[0]; lv.label != "c2@example.com" || len(lv.members) != 1 || lv.members[0] != "c1" {
		t.Errorf("left event = %+v, want label c2@example.com members [c1]", lv)
	}
}

func TestRooms_DisconnectCleansEverything(t *testing.T) {
	reg, rooms, _ := newTestRooms(t, "c1", "c2")

	rooms.Join("A", "c1")
	rooms.Join("B", "c1")
	rooms.Join("A", "c2")

	keys := reg.Deregister("c1")
	rooms.LeaveAll("c1", keys)

	if got := rooms.PresenceCount("A"); got != 1 {
		t.Errorf("PresenceCount(A) = %d, want 1", got)
	}
	// c1 was the sole member of B, so B is gone
	if got := rooms.PresenceCount("B"); got != 0 {
		t.Errorf("PresenceCount(B) = %d, want 0", got)
	}
	if _, ok := rooms.Snapshot()["B"]; ok {
		t.Error("Snapshot() still lists room B")
	}
}

func TestRooms_NextSeqRequiresMembership(t *testing.T) {
	_, rooms, _ := newTestRooms(t, "c1", "c2")
	rooms.Join("3542519", "c1")

	if _, err := rooms.NextSeq("3542519", "c2"); err != ErrNotAMember {
		t.Errorf("NextSeq(non-member) error = %v, want ErrNotAMember", err)
	}
	if _, err := rooms.NextSeq("absent", "c1"); err != ErrNotAMember {
		t.Errorf("NextSeq(absent room) error = %v, want ErrNotAMember", err)
	}

	var prev uint64
	for i := 0; i < 5; i++ {
		seq, err := rooms.NextSeq("3542519", "c1")
		if err != nil {
			t.Fatalf("NextSeq() unexpected error: %v", err)
		}
		if seq != prev+1 {
			t.Fatalf("NextSeq() = %d after %d, want gap-free increase", seq, prev)
		}
		prev = seq
	}
}

func TestRooms_CrossRoomIndependence(t *testing.T) {
	reg := NewRegistry()
	rooms := NewRooms(reg, nil)

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("c%d", i)
		if err := reg.Register(id, Identity{}); err != nil {
			t.Fatalf("Register(%s): %v", id, err)
		}
	}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", i)
			room := fmt.Sprintf("r%d", i%4)
			rooms.Join(room, id)
		}(i)
	}
	wg.Wait()

	total := 0
	for _, count := range rooms.Snapshot() {
		total += count
	}
	if total != n {
		t.Errorf("total presence = %d, want %d", total, n)
	}
	for i := 0; i < 4; i++ {
		if got := rooms.PresenceCount(fmt.Sprintf("r%d", i)); got != n/4 {
			t.Errorf("PresenceCount(r%d) = %d, want %d", i, got, n/4)
		}
	}
}
