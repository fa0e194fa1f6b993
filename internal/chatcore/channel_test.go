package chatcore

import (
	"testing"

	"github.com/google/uuid"

	"github.com/Takeiteasyeh/chatd/internal/options"
)

func TestChannelAddRemoveMember(t *testing.T) {
	ch := NewChannel("room-1", uuid.Nil, false, 0, "")
	c := NewClient("127.0.0.1", &fakeSink{})

	if !ch.AddMember(c, c.Name()) {
		t.Fatalf("AddMember should succeed the first time")
	}
	if ch.AddMember(c, c.Name()) {
		t.Fatalf("AddMember should fail for an existing member")
	}
	if !ch.HasMember(c.ID()) {
		t.Fatalf("expected member present")
	}
	if ch.MemberCount() != 1 {
		t.Fatalf("MemberCount = %d, want 1", ch.MemberCount())
	}
	if !ch.RemoveMember(c.ID()) {
		t.Fatalf("RemoveMember should succeed for an existing member")
	}
	if ch.RemoveMember(c.ID()) {
		t.Fatalf("RemoveMember should fail once already removed")
	}
}

func TestChannelTopicEscapedOnce(t *testing.T) {
	ch := NewChannel("room-1", uuid.Nil, false, 0, "")
	ch.SetTopic("<script>hi</script>")
	want := "&lt;script&gt;hi&lt;/script&gt;"
	if got := ch.Topic(); got != want {
		t.Fatalf("Topic() = %q, want %q", got, want)
	}
}

func TestChannelOptionMutation(t *testing.T) {
	ch := NewChannel("room-1", uuid.Nil, false, options.ChannelSaveHistory, "")
	if !ch.HasOption(options.ChannelSaveHistory) {
		t.Fatalf("expected SaveHistory set")
	}
	ch.AddOption(options.ChannelPersist)
	if !ch.HasOption(options.ChannelPersist) {
		t.Fatalf("expected Persist set after AddOption")
	}
	ch.RemoveOption(options.ChannelSaveHistory)
	if ch.HasOption(options.ChannelSaveHistory) {
		t.Fatalf("expected SaveHistory cleared after RemoveOption")
	}
	if !ch.HasOption(options.ChannelPersist) {
		t.Fatalf("RemoveOption should not disturb unrelated bits")
	}
}

func TestChannelSendToOneAndAll(t *testing.T) {
	ch := NewChannel("room-1", uuid.Nil, false, 0, "")
	sinkA, sinkB := &fakeSink{}, &fakeSink{}
	a := NewClient("10.0.0.1", sinkA)
	b := NewClient("10.0.0.2", sinkB)
	ch.AddMember(a, "a")
	ch.AddMember(b, "b")

	ch.SendToOne(a.ID(), []byte("hi a"))
	if len(sinkA.frames) != 1 || len(sinkB.frames) != 0 {
		t.Fatalf("SendToOne delivered to the wrong target")
	}

	ch.SendToAll([]byte("hi all"))
	if len(sinkA.frames) != 2 || len(sinkB.frames) != 1 {
		t.Fatalf("SendToAll did not reach every member")
	}

	ch.SendToAllButOne(a.ID(), []byte("hi not-a"))
	if len(sinkA.frames) != 2 || len(sinkB.frames) != 2 {
		t.Fatalf("SendToAllButOne should have skipped a")
	}
}

func TestChannelVisibleMembersHiddenMemberList(t *testing.T) {
	owner := uuid.New()
	ch := NewChannel("room-1", owner, false, options.ChannelHiddenMemberList, "")
	member := NewClient("10.0.0.1", &fakeSink{})
	ch.AddMember(member, member.Name())

	requester := NewClient("10.0.0.2", &fakeSink{})
	if got := ch.VisibleMembers(requester); got != nil {
		t.Fatalf("expected nil member list for a non-privileged requester, got %v", got)
	}

	requester.SetType(TypeAgent)
	if got := ch.VisibleMembers(requester); len(got) != 1 {
		t.Fatalf("expected agent requester to see 1 member, got %d", len(got))
	}
}
