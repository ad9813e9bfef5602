package ratelimit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// redisBreakerDuration is how long the Redis backend sits out after a failure.
const redisBreakerDuration = 30 * time.Second

// SettingsProvider supplies the latest settings snapshot.
type SettingsProvider func() Settings

// RedisClientFactory constructs a Redis client for the given options.
type RedisClientFactory func(options *redis.Options) *redis.Client

type redisTarget struct {
	addr     string
	password string
	prefix   string
	db       int
}

// Manager throttles spend attempts per account subject. It resolves the
// limit from settings on every check and prefers the Redis backend when
// configured, falling back to the in-process one behind a breaker.
type Manager struct {
	provider       SettingsProvider
	nowFn          func() time.Time
	memory         *memoryBackend
	newRedisClient RedisClientFactory

	mu           sync.Mutex
	redis        *redisBackend
	target       redisTarget
	breakerUntil time.Time
}

// NewManager constructs a Manager with default dependencies when nil.
func NewManager(provider SettingsProvider, nowFn func() time.Time, newRedisClient RedisClientFactory) *Manager {
	if provider == nil {
		provider = LoadSettings
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if newRedisClient == nil {
		newRedisClient = redis.NewClient
	}
	return &Manager{
		provider:       provider,
		nowFn:          nowFn,
		memory:         newMemoryBackend(),
		newRedisClient: newRedisClient,
	}
}

// AllowSpend reports whether the subject may attempt another spend right now.
func (m *Manager) AllowSpend(ctx context.Context, subject string) (Decision, error) {
	if m == nil {
		return Decision{Allowed: true}, nil
	}
	subject = strings.TrimSpace(subject)
	cfg := m.provider()
	if cfg.Limit <= 0 || subject == "" {
		return Decision{Allowed: true}, nil
	}
	now := m.nowFn()

	if cfg.RedisEnabled {
		if decision, ok := m.takeRedis(ctx, subject, cfg, now); ok {
			return decision, nil
		}
	}
	return m.memory.Take(ctx, subject, cfg.Limit, now)
}

func (m *Manager) takeRedis(ctx context.Context, subject string, cfg Settings, now time.Time) (Decision, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	if m.isBreakerActive(now) {
		return Decision{}, false
	}
	b, errEnsure := m.ensureRedis(ctx, cfg)
	if errEnsure != nil {
		m.tripBreaker(errEnsure, now)
		return Decision{}, false
	}
	decision, errTake := b.Take(ctx, subject, cfg.Limit, now)
	if errTake != nil {
		m.tripBreaker(errTake, now)
		return Decision{}, false
	}
	return decision, true
}

func (m *Manager) isBreakerActive(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.breakerUntil.IsZero() {
		return false
	}
	if now.Before(m.breakerUntil) {
		return true
	}
	m.breakerUntil = time.Time{}
	return false
}

func (m *Manager) tripBreaker(err error, now time.Time) {
	if err == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.breakerUntil.IsZero() && now.Before(m.breakerUntil) {
		return
	}
	m.breakerUntil = now.Add(redisBreakerDuration)
	log.WithError(err).Warn("rate limit: redis unavailable, counting in memory")
}

func (m *Manager) ensureRedis(ctx context.Context, cfg Settings) (*redisBackend, error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis: missing address")
	}

	next := redisTarget{
		addr:     addr,
		password: strings.TrimSpace(cfg.RedisPassword),
		prefix:   strings.TrimSpace(cfg.RedisPrefix),
		db:       cfg.RedisDB,
	}
	if next.db < 0 {
		next.db = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.redis != nil && m.target == next {
		return m.redis, nil
	}
	if m.redis != nil {
		_ = m.redis.client.Close()
		m.redis = nil
	}

	client := m.newRedisClient(&redis.Options{
		Addr:     next.addr,
		Password: next.password,
		DB:       next.db,
	})
	ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if errPing := client.Ping(ctxPing).Err(); errPing != nil {
		_ = client.Close()
		return nil, errPing
	}
	m.redis = newRedisBackend(client, next.prefix)
	m.target = next
	return m.redis, nil
}
