package bot

import (
	"context"
	"errors"
	"testing"

	"github.com/jkfujinami/linepy/internal/dispatch"
	"github.com/jkfujinami/linepy/internal/facade"
	"github.com/jkfujinami/linepy/internal/thrift"
)

type fakeMarker struct {
	calls   int
	lastMid string
	lastMsg string
	err     error
}

func (f *fakeMarker) MarkAsRead(ctx context.Context, chatMid, messageID, threadMid string) error {
	f.calls++
	f.lastMid = chatMid
	f.lastMsg = messageID
	return f.err
}

func eventWithMessageID(id string) facade.Event {
	st := &thrift.Struct{}
	st.Set(messageIDField, thrift.String(id))
	return facade.Event{Raw: st}
}

func TestReadCheckerMarksReadWhenMessageIDPresent(t *testing.T) {
	marker := &fakeMarker{}
	rc := NewReadChecker(marker, nil, "self-mid", nil)

	err := rc.Handle(dispatch.Event{
		ChatMid: "chat-1",
		Payload: eventWithMessageID("msg-1"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if marker.calls != 1 {
		t.Fatalf("expected 1 MarkAsRead call, got %d", marker.calls)
	}
	if marker.lastMid != "chat-1" || marker.lastMsg != "msg-1" {
		t.Fatalf("unexpected call args: %+v", marker)
	}
}

func TestReadCheckerSkipsEventWithoutMessageID(t *testing.T) {
	marker := &fakeMarker{}
	rc := NewReadChecker(marker, nil, "self-mid", nil)

	st := &thrift.Struct{}
	err := rc.Handle(dispatch.Event{ChatMid: "chat-1", Payload: facade.Event{Raw: st}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if marker.calls != 0 {
		t.Fatal("expected no MarkAsRead call for event without a message id")
	}
}

func TestReadCheckerSkipsNonFacadeEvent(t *testing.T) {
	marker := &fakeMarker{}
	rc := NewReadChecker(marker, nil, "self-mid", nil)

	err := rc.Handle(dispatch.Event{ChatMid: "chat-1", Payload: "not-a-facade-event"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if marker.calls != 0 {
		t.Fatal("expected no MarkAsRead call for a non-facade.Event payload")
	}
}

func TestReadCheckerPropagatesMarkAsReadError(t *testing.T) {
	marker := &fakeMarker{err: errors.New("upstream failure")}
	rc := NewReadChecker(marker, nil, "self-mid", nil)

	err := rc.Handle(dispatch.Event{
		ChatMid: "chat-1",
		Payload: eventWithMessageID("msg-1"),
	})
	if err == nil {
		t.Fatal("expected error to propagate")
	}
}
