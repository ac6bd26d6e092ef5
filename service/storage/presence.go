package storage

import (
	"context"
	"time"

	"Messenger/logger"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Presence mirrors online state into Redis so anything outside this
// process (ops tooling, a future mobile push worker) can read it. The
// in-memory registry stays authoritative; every call here is best effort
// and a nil Presence is a valid no-op collaborator.
type Presence struct {
	rdb *redis.Client
}

type Config struct {
	Addr     string
	Password string
	DB       int
}

// presence key: im:presence:<user>; last seen key: im:lastseen:<user>
func presenceKey(user string) string { return "im:presence:" + user }
func lastSeenKey(user string) string { return "im:lastseen:" + user }

const presenceTTL = 2 * time.Minute

func Open(c Config) (*Presence, error) {
	if c.Addr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "redis ping")
	}
	return &Presence{rdb: rdb}, nil
}

func (p *Presence) Close() error {
	if p == nil || p.rdb == nil {
		return nil
	}
	return p.rdb.Close()
}

// MarkOnline sets the user online and refreshes the TTL.
func (p *Presence) MarkOnline(userID string) {
	if p == nil || p.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.rdb.Set(ctx, presenceKey(userID), "1", presenceTTL).Err(); err != nil {
		logger.Warnf("[presence] mark online user=%s: %v", userID, err)
	}
}

// MarkOffline deletes the presence key and records last seen.
func (p *Presence) MarkOffline(userID string) {
	if p == nil || p.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pipe := p.rdb.Pipeline()
	pipe.Del(ctx, presenceKey(userID))
	pipe.Set(ctx, lastSeenKey(userID), time.Now().UTC().Format(time.RFC3339), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warnf("[presence] mark offline user=%s: %v", userID, err)
	}
}

// LastSeen reads the recorded last-seen timestamp, zero time when unknown.
func (p *Presence) LastSeen(userID string) (time.Time, bool) {
	if p == nil || p.rdb == nil {
		return time.Time{}, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	val, err := p.rdb.Get(ctx, lastSeenKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false
	}
	if err != nil {
		logger.Warnf("[presence] last seen user=%s: %v", userID, err)
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
