package bot

import (
	"context"
	"testing"

	"github.com/jkfujinami/linepy/internal/dispatch"
	"github.com/jkfujinami/linepy/internal/facade"
	"github.com/jkfujinami/linepy/internal/thrift"
)

type fakeReplier struct {
	calls int
	text  string
}

func (f *fakeReplier) SendMessage(ctx context.Context, chatMid, text string) (string, error) {
	f.calls++
	f.text = text
	return "msg-id", nil
}

func commandEvent(sender, text string) facade.Event {
	st := &thrift.Struct{}
	st.Set(senderMidField, thrift.String(sender))
	st.Set(textField, thrift.String(text))
	return facade.Event{Raw: st}
}

func TestAdminDispatcherRunsRegisteredCommandForAdmin(t *testing.T) {
	replier := &fakeReplier{}
	d := NewAdminDispatcher(replier, []string{"admin-1"}, nil)

	var gotArgs []string
	d.Register("ping", func(ctx context.Context, chatMid string, args []string) (string, error) {
		gotArgs = args
		return "pong", nil
	})

	err := d.Handle(dispatch.Event{
		ChatMid: "chat-1",
		Payload: commandEvent("admin-1", "!ping a b"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if replier.calls != 1 || replier.text != "pong" {
		t.Fatalf("expected reply %q sent once, got calls=%d text=%q", "pong", replier.calls, replier.text)
	}
	if len(gotArgs) != 2 || gotArgs[0] != "a" || gotArgs[1] != "b" {
		t.Fatalf("unexpected args: %v", gotArgs)
	}
}

func TestAdminDispatcherIgnoresNonAdminSender(t *testing.T) {
	replier := &fakeReplier{}
	d := NewAdminDispatcher(replier, []string{"admin-1"}, nil)
	d.Register("ping", func(ctx context.Context, chatMid string, args []string) (string, error) {
		return "pong", nil
	})

	err := d.Handle(dispatch.Event{
		ChatMid: "chat-1",
		Payload: commandEvent("someone-else", "!ping"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if replier.calls != 0 {
		t.Fatal("expected no reply for a non-admin sender")
	}
}

func TestAdminDispatcherIgnoresNonCommandText(t *testing.T) {
	replier := &fakeReplier{}
	d := NewAdminDispatcher(replier, []string{"admin-1"}, nil)
	d.Register("ping", func(ctx context.Context, chatMid string, args []string) (string, error) {
		return "pong", nil
	})

	err := d.Handle(dispatch.Event{
		ChatMid: "chat-1",
		Payload: commandEvent("admin-1", "just chatting"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if replier.calls != 0 {
		t.Fatal("expected no reply for text without the command prefix")
	}
}

func TestAdminDispatcherIgnoresUnknownCommand(t *testing.T) {
	replier := &fakeReplier{}
	d := NewAdminDispatcher(replier, []string{"admin-1"}, nil)

	err := d.Handle(dispatch.Event{
		ChatMid: "chat-1",
		Payload: commandEvent("admin-1", "!unknown"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if replier.calls != 0 {
		t.Fatal("expected no reply for an unregistered command")
	}
}

func TestAdminDispatcherRepliesWithErrorMessageOnCommandFailure(t *testing.T) {
	replier := &fakeReplier{}
	d := NewAdminDispatcher(replier, []string{"admin-1"}, nil)
	d.Register("boom", func(ctx context.Context, chatMid string, args []string) (string, error) {
		return "", context.DeadlineExceeded
	})

	err := d.Handle(dispatch.Event{
		ChatMid: "chat-1",
		Payload: commandEvent("admin-1", "!boom"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if replier.calls != 1 {
		t.Fatal("expected one reply carrying the failure message")
	}
}
