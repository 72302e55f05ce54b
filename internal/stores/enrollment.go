package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrEnrollmentNotFound = errors.New("pending enrollment not found")
	ErrEnrollmentBackend  = errors.New("enrollment backend unavailable")
)

// EnrollmentStore holds a sealed TOTP secret between setup and confirmation.
type EnrollmentStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewEnrollmentStore(redisClient redis.UniversalClient, prefix string) *EnrollmentStore {
	if prefix == "" {
		prefix = "mpe"
	}
	return &EnrollmentStore{redis: redisClient, prefix: prefix}
}

func (s *EnrollmentStore) key(userID string) string {
	return s.prefix + ":" + userID
}

// Save replaces any pending secret for the user.
func (s *EnrollmentStore) Save(ctx context.Context, userID string, sealed []byte, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.key(userID), sealed, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrEnrollmentBackend, err)
	}
	return nil
}

func (s *EnrollmentStore) Get(ctx context.Context, userID string) ([]byte, error) {
	data, err := s.redis.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrEnrollmentBackend, err)
	}
	return data, nil
}

func (s *EnrollmentStore) Delete(ctx context.Context, userID string) error {
	if err := s.redis.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrEnrollmentBackend, err)
	}
	return nil
}

var claimEnrollmentLua = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Claim deletes the pending secret only if it still holds sealed. Exactly one
// of several concurrent confirmations of the same secret wins.
func (s *EnrollmentStore) Claim(ctx context.Context, userID string, sealed []byte) (bool, error) {
	n, err := claimEnrollmentLua.Run(ctx, s.redis, []string{s.key(userID)}, sealed).Int()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrEnrollmentBackend, err)
	}
	return n == 1, nil
}
