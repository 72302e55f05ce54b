package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	challengeRecordVersion1 = 1
	maxTxRetries            = 4
)

var (
	ErrChallengeNotFound = errors.New("challenge not found")
	ErrChallengeExpired  = errors.New("challenge expired")
	ErrChallengeBackend  = errors.New("challenge backend unavailable")
	ErrChallengeConflict = errors.New("challenge update contention")
)

// Method bits carried by a challenge.
const (
	MethodTOTP  uint8 = 1 << 0
	MethodEmail uint8 = 1 << 1
)

// Challenge states.
const (
	StateAwaitingMethod uint8 = 1
	StateAwaitingCode   uint8 = 2
	// StateExhausted marks a challenge that ran out of attempts. It reads as
	// not found, but Delete still reports it as present so an attempt that
	// was admitted before the last failure can complete.
	StateExhausted uint8 = 3
)

// Challenge is the server-side half of a login challenge token.
type Challenge struct {
	UserID      string
	Methods     uint8
	State       uint8
	Selected    string
	EmailIssued bool
	Attempts    uint16
	ExpiresAt   int64
}

type ChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewChallengeStore(redisClient redis.UniversalClient, prefix string, now func() time.Time) *ChallengeStore {
	if prefix == "" {
		prefix = "mch"
	}
	if now == nil {
		now = time.Now
	}
	return &ChallengeStore{redis: redisClient, prefix: prefix, now: now}
}

func (s *ChallengeStore) key(id string) string {
	return s.prefix + ":" + id
}

func (s *ChallengeStore) Save(ctx context.Context, id string, record *Challenge, ttl time.Duration) error {
	encoded, err := encodeChallenge(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(id), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return nil
}

func (s *ChallengeStore) Get(ctx context.Context, id string) (*Challenge, error) {
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}

	record, err := decodeChallenge(data)
	if err != nil {
		return nil, err
	}
	if record.State == StateExhausted {
		return nil, ErrChallengeNotFound
	}
	if s.now().Unix() > record.ExpiresAt {
		_, _ = s.redis.Del(ctx, s.key(id)).Result()
		return nil, ErrChallengeExpired
	}
	return record, nil
}

// Delete removes the challenge and reports whether it still existed.
func (s *ChallengeStore) Delete(ctx context.Context, id string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return n > 0, nil
}

// Update applies mutate to the stored record under WATCH and writes it back
// with its remaining TTL. mutate errors abort the update unchanged.
func (s *ChallengeStore) Update(ctx context.Context, id string, mutate func(*Challenge) error) (*Challenge, error) {
	key := s.key(id)

	for i := 0; i < maxTxRetries; i++ {
		var updated *Challenge
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			record, ttl, err := s.load(ctx, tx, key)
			if err != nil {
				return err
			}
			if err := mutate(record); err != nil {
				return mutateErr{err}
			}
			encoded, err := encodeChallenge(record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, ttl)
				return nil
			})
			if err == nil {
				updated = record
			}
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, s.mapErr(err)
		}
		return updated, nil
	}
	return nil, ErrChallengeConflict
}

// RecordFailure increments the attempt counter. When maxAttempts is reached
// the challenge is marked exhausted and exceeded is true.
func (s *ChallengeStore) RecordFailure(ctx context.Context, id string, maxAttempts int) (bool, error) {
	key := s.key(id)

	for i := 0; i < maxTxRetries; i++ {
		var exceeded bool
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			record, ttl, err := s.load(ctx, tx, key)
			if err != nil {
				return err
			}

			record.Attempts++
			if int(record.Attempts) >= maxAttempts {
				exceeded = true
				record.State = StateExhausted
			}

			encoded, err := encodeChallenge(record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, ttl)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return false, s.mapErr(err)
		}
		return exceeded, nil
	}
	return false, ErrChallengeConflict
}

// load reads the record inside a WATCH, deleting it when it has expired.
func (s *ChallengeStore) load(ctx context.Context, tx *redis.Tx, key string) (*Challenge, time.Duration, error) {
	data, err := tx.Get(ctx, key).Bytes()
	if err != nil {
		return nil, 0, err
	}
	record, err := decodeChallenge(data)
	if err != nil {
		return nil, 0, err
	}
	if record.State == StateExhausted {
		return nil, 0, ErrChallengeNotFound
	}

	ttl := time.Unix(record.ExpiresAt, 0).Sub(s.now())
	if ttl <= 0 {
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		if err != nil {
			return nil, 0, err
		}
		return nil, 0, ErrChallengeExpired
	}
	return record, ttl, nil
}

// mutateErr marks errors returned by an Update callback so they surface
// unchanged instead of as backend failures.
type mutateErr struct{ err error }

func (m mutateErr) Error() string { return m.err.Error() }

func (s *ChallengeStore) mapErr(err error) error {
	var m mutateErr
	switch {
	case errors.As(err, &m):
		return m.err
	case errors.Is(err, redis.Nil):
		return ErrChallengeNotFound
	case errors.Is(err, ErrChallengeNotFound), errors.Is(err, ErrChallengeExpired), errors.Is(err, errCorruptChallenge):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
}

var errCorruptChallenge = errors.New("invalid challenge record")

func encodeChallenge(record *Challenge) ([]byte, error) {
	if len(record.UserID) > 255 || len(record.Selected) > 255 {
		return nil, errors.New("challenge field length exceeded")
	}

	var buf bytes.Buffer
	buf.WriteByte(challengeRecordVersion1)
	buf.WriteByte(record.Methods)
	buf.WriteByte(record.State)
	if record.EmailIssued {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	buf.WriteByte(byte(len(record.UserID)))
	buf.WriteString(record.UserID)
	buf.WriteByte(byte(len(record.Selected)))
	buf.WriteString(record.Selected)

	return buf.Bytes(), nil
}

func decodeChallenge(data []byte) (*Challenge, error) {
	reader := bytes.NewReader(data)

	header := make([]byte, 4)
	if _, err := io.ReadFull(reader, header); err != nil {
		return nil, errCorruptChallenge
	}
	if header[0] != challengeRecordVersion1 {
		return nil, errCorruptChallenge
	}

	record := &Challenge{
		Methods:     header[1],
		State:       header[2],
		EmailIssued: header[3] == 1,
	}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, errCorruptChallenge
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, errCorruptChallenge
	}

	userID, err := readShortString(reader)
	if err != nil {
		return nil, errCorruptChallenge
	}
	selected, err := readShortString(reader)
	if err != nil {
		return nil, errCorruptChallenge
	}
	record.UserID = userID
	record.Selected = selected

	return record, nil
}

func readShortString(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
