package auth

import (
	"context"

	"github.com/jkfujinami/linepy/internal/thrift"
)

// callBinary issues one binary-protocol Thrift call (used by the email
// login surface, which speaks the legacy wire format).
func (c *Client) callBinary(ctx context.Context, path, method string, args *thrift.Struct, isAuth bool) (thrift.Value, error) {
	return c.transport.ThriftCall(ctx, c.scheme, c.host, path, thrift.BinaryProtocol{}, method, c.nextSeq(), args, isAuth)
}

// callCompact issues one compact-protocol Thrift call (used by the QR login
// surface).
func (c *Client) callCompact(ctx context.Context, path, method string, args *thrift.Struct, isAuth bool) (thrift.Value, error) {
	return c.transport.ThriftCall(ctx, c.scheme, c.host, path, thrift.CompactProtocol{}, method, c.nextSeq(), args, isAuth)
}
