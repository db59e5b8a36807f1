package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jkfujinami/linepy/internal/dispatch"
	"github.com/jkfujinami/linepy/internal/facade"
)

// CommandFunc handles one admin command. args is the command line split on
// whitespace with the leading command word removed.
type CommandFunc func(ctx context.Context, chatMid string, args []string) (reply string, err error)

// Replier is the subset of facade.Client an AdminDispatcher needs to post a
// command's reply back to the chat it came from.
type Replier interface {
	SendMessage(ctx context.Context, chatMid, text string) (string, error)
}

// AdminDispatcher routes "!"-prefixed text messages from an allow-listed
// set of sender mids to registered CommandFuncs, then posts the result back
// to the originating chat. This mirrors the request/response-by-name shape
// of internal/control's Server (a named action, dispatched to a plain Go
// function, returning a plain result) applied to chat text instead of RPC.
type AdminDispatcher struct {
	replier  Replier
	admins   map[string]bool
	commands map[string]CommandFunc
	logger   *slog.Logger
}

// NewAdminDispatcher builds an AdminDispatcher. admins lists the sender
// mids allowed to issue commands; every other sender's messages are
// ignored.
func NewAdminDispatcher(replier Replier, admins []string, logger *slog.Logger) *AdminDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	adminSet := make(map[string]bool, len(admins))
	for _, a := range admins {
		adminSet[a] = true
	}
	return &AdminDispatcher{
		replier:  replier,
		admins:   adminSet,
		commands: make(map[string]CommandFunc),
		logger:   logger,
	}
}

// Register binds name (without the "!" prefix) to fn. Registering the same
// name twice replaces the previous binding.
func (d *AdminDispatcher) Register(name string, fn CommandFunc) {
	d.commands[name] = fn
}

// senderMidField is the field id carrying the sending mid on a square chat
// message event, mirrored from the same inner message struct SendMessage
// builds (square.go: field 2 is squareChatMid; sender identity for an
// inbound event lives alongside it at field 1 in the source's receive
// notification).
const senderMidField = 1

// textField is the field id carrying the message text, mirrored from
// SendMessage's own outbound layout (square.go: field 10).
const textField = 10

// Handle implements dispatch.Handler. Non-text events, events from a
// non-admin sender, or text not starting with "!" are ignored without
// error.
func (d *AdminDispatcher) Handle(ev dispatch.Event) error {
	if ev.ChatMid == "" {
		return nil
	}
	event, ok := ev.Payload.(facade.Event)
	if !ok {
		return nil
	}

	senderField, ok := event.Field(senderMidField)
	if !ok {
		return nil
	}
	sender := senderField.AsString()
	if !d.admins[sender] {
		return nil
	}

	textVal, ok := event.Field(textField)
	if !ok {
		return nil
	}
	text := strings.TrimSpace(textVal.AsString())
	if !strings.HasPrefix(text, "!") {
		return nil
	}

	fields := strings.Fields(strings.TrimPrefix(text, "!"))
	if len(fields) == 0 {
		return nil
	}
	name, args := fields[0], fields[1:]

	fn, ok := d.commands[name]
	if !ok {
		return nil
	}

	ctx := context.Background()
	reply, err := fn(ctx, ev.ChatMid, args)
	if err != nil {
		d.logger.Warn("admin command failed", "command", name, "chat_mid", ev.ChatMid, "error", err)
		reply = fmt.Sprintf("command %q failed: %v", name, err)
	}
	if reply == "" {
		return nil
	}
	if _, err := d.replier.SendMessage(ctx, ev.ChatMid, reply); err != nil {
		return fmt.Errorf("bot: reply to admin command: %w", err)
	}
	return nil
}
