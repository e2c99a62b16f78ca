package cache

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/redis/rueidis"
	"github.com/redis/rueidis/rueidiscompat"
)

// client adapts a rueidis connection to the go-redis commands the cache
// issues, so the shared tier reuses the store's Redis client.
type client struct {
	cmd rueidiscompat.Cmdable
}

func newClient(conn rueidis.Client) *client {
	return &client{cmd: rueidiscompat.NewAdapter(conn)}
}

func (c *client) Set(ctx context.Context, key string, value any, ttl time.Duration) *goredis.StatusCmd {
	res := c.cmd.Set(ctx, key, value, ttl)

	cmd := goredis.NewStatusCmd(ctx)
	cmd.SetVal(res.Val())
	cmd.SetErr(res.Err())

	return cmd
}

func (c *client) SetXX(ctx context.Context, key string, value any, ttl time.Duration) *goredis.BoolCmd {
	res := c.cmd.SetXX(ctx, key, value, ttl)

	return boolCmd(ctx, res.Val(), res.Err())
}

func (c *client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) *goredis.BoolCmd {
	res := c.cmd.SetNX(ctx, key, value, ttl)

	return boolCmd(ctx, res.Val(), res.Err())
}

func (c *client) Get(ctx context.Context, key string) *goredis.StringCmd {
	res := c.cmd.Get(ctx, key)

	cmd := goredis.NewStringCmd(ctx)
	cmd.SetVal(res.Val())
	cmd.SetErr(nilErr(res.Err()))

	return cmd
}

func (c *client) Del(ctx context.Context, keys ...string) *goredis.IntCmd {
	res := c.cmd.Del(ctx, keys...)

	cmd := goredis.NewIntCmd(ctx)
	cmd.SetVal(res.Val())
	cmd.SetErr(res.Err())

	return cmd
}

func boolCmd(ctx context.Context, val bool, err error) *goredis.BoolCmd {
	cmd := goredis.NewBoolCmd(ctx)
	cmd.SetVal(val)
	cmd.SetErr(nilErr(err))

	return cmd
}

// nilErr maps a rueidis miss to goredis.Nil, which the cache treats as a miss.
func nilErr(err error) error {
	if rueidis.IsRedisNil(err) {
		return goredis.Nil
	}

	return err
}
