// Package otp stores one-time-passcode challenges in Redis. At most one
// unconsumed challenge exists per account: storing a new one replaces any
// prior challenge, and consumption is atomic so two concurrent
// verifications cannot both succeed against the same code.
package otp

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const challengeRecordVersion1 = 1

var (
	// ErrNotFound means no active challenge exists for the account. A
	// previously consumed challenge reports the same way, which makes
	// consumption single-use by construction.
	ErrNotFound = errors.New("otp challenge not found")
	// ErrExpired means the challenge TTL elapsed. Expiry is checked
	// strictly before code equality.
	ErrExpired = errors.New("otp challenge expired")
	// ErrMismatch means the submitted code differs from the stored one.
	// The challenge is kept; only success or expiry deletes it.
	ErrMismatch = errors.New("otp code mismatch")
	// ErrBackend wraps Redis failures.
	ErrBackend = errors.New("otp backend unavailable")
)

// Challenge is one stored OTP record, keyed by account. ID identifies the
// issuance for logging and is not part of the verification check.
type Challenge struct {
	ID          string
	AccountID   string
	Code        string
	Channel     string
	Destination string
	ExpiresAt   int64
}

// Store persists challenges in Redis under a configurable prefix.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore returns a challenge store using the given client and key prefix.
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "ink"
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *Store) key(accountID string) string {
	return s.prefix + ":otp:" + accountID
}

// Put stores a challenge with the given TTL, replacing any prior challenge
// for the same account.
func (s *Store) Put(ctx context.Context, ch *Challenge, ttl time.Duration) error {
	encoded, err := encodeChallenge(ch)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(ch.AccountID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}

// Get returns the active challenge for an account, deleting it if the
// stored expiry has passed.
func (s *Store) Get(ctx context.Context, accountID string) (*Challenge, error) {
	data, err := s.redis.Get(ctx, s.key(accountID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}

	ch, err := decodeChallenge(data)
	if err != nil {
		return nil, err
	}
	if time.Now().Unix() > ch.ExpiresAt {
		_, _ = s.redis.Del(ctx, s.key(accountID)).Result()
		return nil, ErrExpired
	}
	return ch, nil
}

// Consume verifies code against the active challenge and deletes it on
// match. The check-and-delete runs under an optimistic WATCH transaction so
// a challenge can be consumed exactly once.
func (s *Store) Consume(ctx context.Context, accountID, code string) error {
	const maxRetries = 4
	key := s.key(accountID)

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			ch, err := decodeChallenge(data)
			if err != nil {
				return err
			}
			if time.Now().Unix() > ch.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrExpired
			}

			if subtle.ConstantTimeCompare([]byte(ch.Code), []byte(code)) != 1 {
				// Mismatches leave the challenge in place; no write means
				// no transaction conflict either.
				return ErrMismatch
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			if errors.Is(err, ErrExpired) || errors.Is(err, ErrMismatch) {
				return err
			}
			return fmt.Errorf("%w: %v", ErrBackend, err)
		}
		return nil
	}

	// Every retry lost the race to another consumer, so the challenge is
	// gone either way.
	return ErrNotFound
}

// Invalidate removes any active challenge for the account.
func (s *Store) Invalidate(ctx context.Context, accountID string) error {
	if err := s.redis.Del(ctx, s.key(accountID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}

func encodeChallenge(ch *Challenge) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(challengeRecordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, ch.ExpiresAt); err != nil {
		return nil, err
	}

	for _, field := range []string{ch.ID, ch.AccountID, ch.Code, ch.Channel, ch.Destination} {
		if len(field) > 65535 {
			return nil, errors.New("otp challenge field length exceeded")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	return buf.Bytes(), nil
}

func decodeChallenge(data []byte) (*Challenge, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != challengeRecordVersion1 {
		return nil, errors.New("invalid otp challenge version")
	}

	ch := &Challenge{}
	if err := binary.Read(reader, binary.BigEndian, &ch.ExpiresAt); err != nil {
		return nil, err
	}

	for _, field := range []*string{&ch.ID, &ch.AccountID, &ch.Code, &ch.Channel, &ch.Destination} {
		var length uint16
		if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
			return nil, err
		}
		raw := make([]byte, length)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, err
		}
		*field = string(raw)
	}

	return ch, nil
}
