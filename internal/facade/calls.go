package facade

import (
	"context"

	"github.com/jkfujinami/linepy/internal/thrift"
)

// callCompact issues one compact-protocol Thrift call against path. Nearly
// every facade surface (Square, Talk, Channel) speaks compact; binary
// survives only on the legacy login endpoints in the auth package.
func (c *Client) callCompact(ctx context.Context, path, method string, args *thrift.Struct, isAuth bool) (thrift.Value, error) {
	do := func(ctx context.Context) (thrift.Value, error) {
		return c.transport.ThriftCall(ctx, c.scheme, c.host, path, thrift.CompactProtocol{}, method, c.nextSeq(), args, isAuth)
	}
	if c.breaker == nil {
		return do(ctx)
	}

	result, err := c.breaker.ExecuteContext(ctx, func(ctx context.Context) (interface{}, error) {
		return do(ctx)
	})
	if err != nil {
		if result == nil {
			return thrift.Value{}, err
		}
		return result.(thrift.Value), err
	}
	return result.(thrift.Value), nil
}
