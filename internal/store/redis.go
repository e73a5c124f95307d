package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var compareAndDelete = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// guardedIncr applies KEYS[2..] += ARGV[2..] only while KEYS[1] == ARGV[1].
// Every counter is validated before the first write so a bad key changes nothing.
var guardedIncr = redis.NewScript(`
if redis.call("get", KEYS[1]) ~= ARGV[1] then
	return false
end
for i = 2, #KEYS do
	local v = redis.call("get", KEYS[i])
	if v and not string.match(v, "^-?%d+$") then
		return redis.error_reply("ERR value is not an integer or out of range")
	end
end
local out = {}
for i = 2, #KEYS do
	out[i - 1] = redis.call("incrby", KEYS[i], ARGV[i])
end
return out
`)

// RedisConnector opens dedicated connections from a go-redis pool.
type RedisConnector struct {
	rdb *redis.Client
}

// NewRedisConnector wraps an existing client.
func NewRedisConnector(rdb *redis.Client) *RedisConnector {
	return &RedisConnector{rdb: rdb}
}

// Connect checks out a single pooled connection and verifies it is alive.
func (c *RedisConnector) Connect(ctx context.Context) (Conn, error) {
	conn := c.rdb.Conn()
	if err := conn.Ping(ctx).Err(); err != nil {
		_ = conn.Close()
		return nil, &Error{Op: "connect", Err: err}
	}
	return &redisConn{conn: conn}, nil
}

type redisConn struct {
	conn *redis.Conn
}

func (r *redisConn) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.conn.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &Error{Op: "get", Key: key, Err: err}
	}
	return val, true, nil
}

func (r *redisConn) Set(ctx context.Context, key, value string) error {
	if err := r.conn.Set(ctx, key, value, 0).Err(); err != nil {
		return &Error{Op: "set", Key: key, Err: err}
	}
	return nil
}

func (r *redisConn) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	created, err := r.conn.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, &Error{Op: "setnx", Key: key, Err: err}
	}
	return created, nil
}

func (r *redisConn) Delete(ctx context.Context, key string) error {
	if err := r.conn.Del(ctx, key).Err(); err != nil {
		return &Error{Op: "del", Key: key, Err: err}
	}
	return nil
}

func (r *redisConn) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	n, err := compareAndDelete.Run(ctx, r.conn, []string{key}, value).Int64()
	if err != nil {
		return false, &Error{Op: "cad", Key: key, Err: err}
	}
	return n == 1, nil
}

func (r *redisConn) Exec(ctx context.Context, ops ...Op) ([]int64, error) {
	cmds := make([]*redis.IntCmd, 0, len(ops))
	_, err := r.conn.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range ops {
			if op.Delta < 0 {
				cmds = append(cmds, pipe.DecrBy(ctx, op.Key, -op.Delta))
			} else {
				cmds = append(cmds, pipe.IncrBy(ctx, op.Key, op.Delta))
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			err = ErrTxFailed
		}
		return nil, &Error{Op: "exec", Err: err}
	}

	results := make([]int64, len(cmds))
	for i, cmd := range cmds {
		results[i] = cmd.Val()
	}
	return results, nil
}

func (r *redisConn) ExecIf(ctx context.Context, guard Guard, ops ...Op) ([]int64, error) {
	keys := make([]string, 0, len(ops)+1)
	args := make([]interface{}, 0, len(ops)+1)
	keys = append(keys, guard.Key)
	args = append(args, guard.Value)
	for _, op := range ops {
		keys = append(keys, op.Key)
		args = append(args, op.Delta)
	}

	results, err := guardedIncr.Run(ctx, r.conn, keys, args...).Int64Slice()
	if errors.Is(err, redis.Nil) {
		return nil, &Error{Op: "exec", Key: guard.Key, Err: ErrGuardFailed}
	}
	if err != nil {
		return nil, &Error{Op: "exec", Err: err}
	}
	return results, nil
}

func (r *redisConn) Close() error {
	return r.conn.Close()
}
