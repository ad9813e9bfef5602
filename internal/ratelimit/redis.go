package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// spendWindowTTLSeconds keeps counter keys alive past their window so a
// slightly skewed replica still sees them.
const spendWindowTTLSeconds = 2

var takeScript = redis.NewScript(`
local taken = redis.call("INCR", KEYS[1])
if taken == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return taken
`)

// redisBackend counts spend attempts in Redis so limits hold across replicas.
type redisBackend struct {
	client *redis.Client
	prefix string
}

func newRedisBackend(client *redis.Client, prefix string) *redisBackend {
	return &redisBackend{client: client, prefix: strings.TrimSpace(prefix)}
}

// Take consumes one attempt from the subject's current window.
func (b *redisBackend) Take(ctx context.Context, subject string, limit int, now time.Time) (Decision, error) {
	if limit <= 0 || subject == "" || b == nil || b.client == nil {
		return Decision{Allowed: true}, nil
	}
	sec := now.Unix()
	retryAt := time.Unix(sec+1, 0).UTC()

	res, errEval := takeScript.Run(ctx, b.client, []string{b.windowKey(subject, sec)}, spendWindowTTLSeconds).Result()
	if errEval != nil {
		return Decision{}, errEval
	}
	taken, ok := res.(int64)
	if !ok {
		return Decision{}, fmt.Errorf("rate limit redis: unexpected response type %T", res)
	}
	if taken > int64(limit) {
		return Decision{Allowed: false, RetryAt: retryAt}, nil
	}
	remaining := limit - int(taken)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Remaining: remaining, RetryAt: retryAt}, nil
}

func (b *redisBackend) windowKey(subject string, sec int64) string {
	key := "spend:" + subject + ":" + strconv.FormatInt(sec, 10)
	if b.prefix == "" {
		return key
	}
	return b.prefix + ":" + key
}
