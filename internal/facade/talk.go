package facade

import (
	"context"

	"github.com/jkfujinami/linepy/internal/lineerr"
	"github.com/jkfujinami/linepy/internal/thrift"
)

// TalkSendMessage posts a text message to a 1:1 or legacy group chat over
// the Talk RPC surface (`/S4`), as distinct from Square's sendMessage
// (`/SQ1`). The message struct reuses the same field layout Square's
// sendSquareMessage builds (`2:to, 10:text, 15:contentType`) — linepy
// defines no separate Talk-specific struct for this, and the two surfaces
// share the same underlying `Message` wire shape in the reference client.
func (c *Client) TalkSendMessage(ctx context.Context, toMid, text string) (string, error) {
	message := &thrift.Struct{}
	message.Set(2, thrift.String(toMid))
	message.Set(10, thrift.String(text))
	message.Set(15, thrift.I32(0))

	inner := &thrift.Struct{}
	inner.Set(1, thrift.I32(0)) // reqSeq
	inner.Set(2, thrift.Struc(message))

	args := &thrift.Struct{}
	args.Set(1, thrift.Struc(inner))

	v, err := c.callCompact(ctx, talkEndpoint, "sendMessage", args, false)
	if err != nil {
		return "", err
	}
	if v.Type != thrift.TypeStruct || v.Struct == nil {
		return "", lineerr.New(lineerr.KindCodec, "talk send message response: empty body")
	}
	if f, ok := v.Struct.Get(10); ok {
		return f.AsString(), nil
	}
	return "", nil
}
