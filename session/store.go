package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrRedisUnavailable = errors.New("redis unavailable")
)

const minSlidingTTL = time.Second

// deleteSessionScript removes the session value and its entry in the
// account index in one step. Returns 1 when the session existed.
const deleteSessionScript = `
local existed = redis.call("EXISTS", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
if existed == 1 then
  redis.call("DEL", KEYS[1])
end
return existed
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// Store is a Redis-backed session store with optional sliding idle expiry
// capped by each session's absolute ExpiresAt.
type Store struct {
	redis       redis.UniversalClient
	prefix      string
	idleTTL     time.Duration
	sliding     bool
	jitterRange time.Duration
	now         func() time.Time
}

func NewStore(rdb redis.UniversalClient, prefix string, idleTTL time.Duration, sliding bool, jitterRange time.Duration) *Store {
	if prefix == "" {
		prefix = "mss"
	}
	return &Store{
		redis:       rdb,
		prefix:      prefix,
		idleTTL:     idleTTL,
		sliding:     sliding,
		jitterRange: jitterRange,
		now:         time.Now,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *Store) accountKey(accountID string) string {
	return s.prefix + "a:" + accountID
}

// Save writes sess and indexes it under its account. The key lives until
// the idle TTL or the absolute expiry, whichever comes first. The account
// index follows the newest session's absolute expiry.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}
	ttl := s.initialTTL(sess)
	if ttl <= 0 {
		return errors.New("session already expired")
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.ID), data, ttl)
		pipe.SAdd(ctx, s.accountKey(sess.AccountID), sess.ID)
		pipe.Expire(ctx, s.accountKey(sess.AccountID), time.Unix(sess.ExpiresAt, 0).Sub(s.now()))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Replace overwrites an existing session value without changing its
// remaining lifetime. A missing session yields ErrSessionNotFound.
func (s *Store) Replace(ctx context.Context, sess *Session) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}
	ok, err := s.redis.SetArgs(ctx, s.key(sess.ID), data, redis.SetArgs{Mode: "XX", KeepTTL: true}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if ok != "OK" {
		return ErrSessionNotFound
	}
	return nil
}

// Get loads a session, dropping it when its absolute expiry has passed and
// extending the idle window when sliding is enabled.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	key := s.key(sessionID)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.ID = sessionID

	remaining := time.Unix(sess.ExpiresAt, 0).Sub(s.now())
	if remaining <= 0 {
		if err := s.deleteSessionAndIndex(ctx, sess.AccountID, sessionID); err != nil {
			return nil, err
		}
		return nil, ErrSessionNotFound
	}

	if s.sliding && s.idleTTL > 0 {
		next, err := s.nextSlidingTTL(remaining)
		if err != nil {
			return nil, err
		}
		if err := s.redis.Expire(ctx, key, next).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return sess, nil
}

// Delete removes one session. Deleting a missing session is not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	sess, err := Decode(data)
	if err != nil {
		if delErr := s.redis.Del(ctx, s.key(sessionID)).Err(); delErr != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, delErr)
		}
		return nil
	}
	return s.deleteSessionAndIndex(ctx, sess.AccountID, sessionID)
}

// DeleteAllForAccount revokes every session indexed under accountID. A
// session saved concurrently with this call may survive it.
func (s *Store) DeleteAllForAccount(ctx context.Context, accountID string) error {
	ids, err := s.ActiveSessionIDs(ctx, accountID)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.key(id))
	}
	keys = append(keys, s.accountKey(accountID))

	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *Store) ActiveSessionIDs(ctx context.Context, accountID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.accountKey(accountID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// Ping reports Redis round-trip latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := s.now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *Store) deleteSessionAndIndex(ctx context.Context, accountID, sessionID string) error {
	err := deleteSessionLua.Run(ctx, s.redis, []string{s.key(sessionID), s.accountKey(accountID)}, sessionID).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *Store) initialTTL(sess *Session) time.Duration {
	remaining := time.Unix(sess.ExpiresAt, 0).Sub(s.now())
	if s.idleTTL > 0 && s.idleTTL < remaining {
		return s.idleTTL
	}
	return remaining
}

func (s *Store) nextSlidingTTL(remainingAbsolute time.Duration) (time.Duration, error) {
	next := s.idleTTL
	if s.jitterRange > 0 {
		jitter, err := randomJitter(s.jitterRange)
		if err != nil {
			return 0, err
		}
		next += jitter
	}
	if next > remainingAbsolute {
		next = remainingAbsolute
	}

	floor := minSlidingTTL
	if remainingAbsolute < floor {
		floor = remainingAbsolute
	}
	if next < floor {
		next = floor
	}
	return next, nil
}

func randomJitter(jitterRange time.Duration) (time.Duration, error) {
	if jitterRange <= 0 {
		return 0, nil
	}
	max := jitterRange.Nanoseconds()
	if max > (math.MaxInt64-1)/2 {
		return 0, errors.New("jitter range too large")
	}
	n, err := rand.Int(rand.Reader, big.NewInt(max*2+1))
	if err != nil {
		return 0, err
	}
	return time.Duration(n.Int64() - max), nil
}
