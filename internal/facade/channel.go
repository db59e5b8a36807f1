package facade

import (
	"context"

	"github.com/jkfujinami/linepy/internal/lineerr"
	"github.com/jkfujinami/linepy/internal/thrift"
)

// timelineChannelIDChromeOS and timelineChannelIDDefault are the well-known channel ids
// Timeline uses, branched on device kind the way linepy/timeline.py's
// _get_channel_id does (CHROMEOS gets a distinct id).
const (
	timelineChannelIDChromeOS = "1341209850"
	timelineChannelIDDefault  = "1341209950"
)

// IssueChannelToken approves and issues a channel access token for
// channelID, used by the Timeline facade to authenticate against the
// Timeline REST API.
//
// Grounded on linepy/channel.py's ChannelService.approveChannelAndIssueChannelToken:
// param struct {1:channelId(string)}; response carries the token at field 5
// (CHRLINE-Patch convention) falling back to field 1.
func (c *Client) IssueChannelToken(ctx context.Context, channelID string) (string, error) {
	args := &thrift.Struct{}
	args.Set(1, thrift.String(channelID))

	v, err := c.callCompact(ctx, channelEndpoint, "approveChannelAndIssueChannelToken", args, false)
	if err != nil {
		return "", err
	}
	if v.Type != thrift.TypeStruct || v.Struct == nil {
		return "", lineerr.New(lineerr.KindCodec, "issue channel token response: empty body")
	}
	if f, ok := v.Struct.Get(5); ok && f.Type == thrift.TypeString {
		return f.AsString(), nil
	}
	if f, ok := v.Struct.Get(1); ok && f.Type == thrift.TypeString {
		return f.AsString(), nil
	}
	return "", lineerr.New(lineerr.KindCodec, "issue channel token response: no token field")
}

// TimelineChannelID returns the channel id Timeline should use for the
// given device kind.
func TimelineChannelID(kind string) string {
	if kind == "CHROMEOS" {
		return timelineChannelIDChromeOS
	}
	return timelineChannelIDDefault
}
