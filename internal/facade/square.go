package facade

import (
	"context"

	"github.com/jkfujinami/linepy/internal/lineerr"
	"github.com/jkfujinami/linepy/internal/thrift"
)

// Event is one square-chat (or talk) event as delivered by fetchMyEvents /
// fetchSquareChatEvents. The server's per-event struct layout is large and
// service-specific; this keeps only the generic field-id map (the "fallback
// map[int16]any for unknown fields" the response-typing design note calls
// for) rather than guessing at a full typed struct the examples don't
// define. Callers that need a specific field read it by id.
type Event struct {
	Raw *thrift.Struct
}

// Field reads one field of the underlying event struct by Thrift field id.
func (e Event) Field(id int16) (thrift.Value, bool) {
	return e.Raw.Get(id)
}

// FetchEventsResult is the common shape of fetchMyEvents and
// fetchSquareChatEvents: a cursor pair plus the events delivered this call.
// ContinuationToken is empty once the backlog for this syncToken is fully
// drained.
type FetchEventsResult struct {
	SyncToken         string
	ContinuationToken string
	Events            []Event
}

// FetchMyEvents pulls the account-wide event stream (new chats, invites,
// settings changes) starting from syncToken. continuationToken resumes an
// in-progress backlog page; pass "" to start a fresh sync.
//
// Grounded on linepy/square.py's SquareService.fetchMyEvents: param struct
// {1:subscriptionId(i64), 2:syncToken(string), 3:limit(i32),
// 4:continuationToken(string)}.
func (c *Client) FetchMyEvents(ctx context.Context, subscriptionID int64, syncToken, continuationToken string, limit int32) (*FetchEventsResult, error) {
	inner := &thrift.Struct{}
	inner.Set(1, thrift.I64(subscriptionID))
	if syncToken != "" {
		inner.Set(2, thrift.String(syncToken))
	}
	inner.Set(3, thrift.I32(limit))
	if continuationToken != "" {
		inner.Set(4, thrift.String(continuationToken))
	}
	args := &thrift.Struct{}
	args.Set(1, thrift.Struc(inner))

	v, err := c.callCompact(ctx, squareEndpoint, "fetchMyEvents", args, false)
	if err != nil {
		return nil, err
	}
	return decodeFetchEventsResult(v)
}

// FetchChatEvents pulls one square chat's event stream. prefetchProfiles
// asks the server to inline sender profile data with each event so the
// fetcher doesn't need a separate lookup per unfamiliar sender.
//
// Grounded on linepy/square.py's SquareService.fetchSquareChatEvents: param
// struct {1:subscriptionId, 2:squareChatMid, 3:syncToken, 4:limit,
// 5:direction=1, 6:inclusive=1, 7:continuationToken, 8:fetchType}.
// fetchType toggles prefetch (2 = with sender profiles, 1 = without),
// inferred from the field's role in the source rather than an explicit
// enum definition.
func (c *Client) FetchChatEvents(ctx context.Context, chatMid, syncToken, continuationToken string, limit int32, prefetchProfiles bool) (*FetchEventsResult, error) {
	fetchType := int32(1)
	if prefetchProfiles {
		fetchType = 2
	}
	inner := &thrift.Struct{}
	inner.Set(1, thrift.I64(0))
	inner.Set(2, thrift.String(chatMid))
	if syncToken != "" {
		inner.Set(3, thrift.String(syncToken))
	}
	inner.Set(4, thrift.I32(limit))
	inner.Set(5, thrift.I32(1))
	inner.Set(6, thrift.I32(1))
	if continuationToken != "" {
		inner.Set(7, thrift.String(continuationToken))
	}
	inner.Set(8, thrift.I32(fetchType))
	args := &thrift.Struct{}
	args.Set(1, thrift.Struc(inner))

	v, err := c.callCompact(ctx, squareEndpoint, "fetchSquareChatEvents", args, false)
	if err != nil {
		return nil, err
	}
	return decodeFetchEventsResult(v)
}

func decodeFetchEventsResult(v thrift.Value) (*FetchEventsResult, error) {
	if v.Type != thrift.TypeStruct || v.Struct == nil {
		return nil, lineerr.New(lineerr.KindCodec, "fetch events response: empty body")
	}
	r := &FetchEventsResult{}
	if f, ok := v.Struct.Get(1); ok {
		r.SyncToken = f.AsString()
	}
	if f, ok := v.Struct.Get(2); ok && f.Type == thrift.TypeString {
		r.ContinuationToken = f.AsString()
	}
	if f, ok := v.Struct.Get(3); ok && f.Type == thrift.TypeList && f.List != nil {
		r.Events = make([]Event, 0, len(f.List.Elems))
		for _, ev := range f.List.Elems {
			if ev.Type == thrift.TypeStruct && ev.Struct != nil {
				r.Events = append(r.Events, Event{Raw: ev.Struct})
			}
		}
	}
	return r, nil
}

// SendMessage posts a text message to a square chat. Returns the
// server-assigned message id.
//
// Grounded on linepy/square.py's sendSquareMessage: outer param struct
// {1:reqSeq=0, 2:squareChatMid, 3:message{1:innerMessage{2:squareChatMid,
// 10:text, 15:contentType=0}, 3:flags=4}}.
func (c *Client) SendMessage(ctx context.Context, chatMid, text string) (string, error) {
	innerMessage := &thrift.Struct{}
	innerMessage.Set(2, thrift.String(chatMid))
	innerMessage.Set(10, thrift.String(text))
	innerMessage.Set(15, thrift.I32(0))

	message := &thrift.Struct{}
	message.Set(1, thrift.Struc(innerMessage))
	message.Set(3, thrift.I32(4))

	inner := &thrift.Struct{}
	inner.Set(1, thrift.I32(0))
	inner.Set(2, thrift.String(chatMid))
	inner.Set(3, thrift.Struc(message))

	args := &thrift.Struct{}
	args.Set(1, thrift.Struc(inner))

	v, err := c.callCompact(ctx, squareEndpoint, "sendMessage", args, false)
	if err != nil {
		return "", err
	}
	if v.Type != thrift.TypeStruct || v.Struct == nil {
		return "", lineerr.New(lineerr.KindCodec, "send message response: empty body")
	}
	if f, ok := v.Struct.Get(1); ok && f.Type == thrift.TypeStruct && f.Struct != nil {
		if id, ok := f.Struct.Get(1); ok {
			return id.AsString(), nil
		}
	}
	return "", nil
}

// MarkAsRead acknowledges delivery up to messageID in a square chat. threadMid
// is optional (empty for the chat's main thread).
//
// Grounded on linepy/square.py's markAsRead: param struct
// {2:squareChatMid, 4:messageId, 5:threadMid(optional)}.
func (c *Client) MarkAsRead(ctx context.Context, chatMid, messageID, threadMid string) error {
	inner := &thrift.Struct{}
	inner.Set(2, thrift.String(chatMid))
	inner.Set(4, thrift.String(messageID))
	if threadMid != "" {
		inner.Set(5, thrift.String(threadMid))
	}
	args := &thrift.Struct{}
	args.Set(1, thrift.Struc(inner))

	_, err := c.callCompact(ctx, squareEndpoint, "markAsRead", args, false)
	return err
}

// ReactToMessage reacts to a square chat message. reactionType follows the
// source's enum: 0=ALL(clear) 1=UNDO 2=NICE 3=LOVE 4=FUN 5=AMAZING 6=SAD
// 7=OMG.
func (c *Client) ReactToMessage(ctx context.Context, chatMid, messageID string, reactionType int32, threadMid string) error {
	inner := &thrift.Struct{}
	inner.Set(1, thrift.I32(0))
	inner.Set(2, thrift.String(chatMid))
	inner.Set(3, thrift.String(messageID))
	inner.Set(4, thrift.I32(reactionType))
	if threadMid != "" {
		inner.Set(5, thrift.String(threadMid))
	}
	args := &thrift.Struct{}
	args.Set(1, thrift.Struc(inner))

	_, err := c.callCompact(ctx, squareEndpoint, "reactToMessage", args, false)
	return err
}
