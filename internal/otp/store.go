// Package otp keeps signups that are waiting for their one-time code.
//
// A pending signup holds everything needed to create the account once the
// code is confirmed (the PIN is already hashed) plus the per-signup OTP
// secret. Entries expire on their own; a confirmed or abandoned signup
// leaves nothing behind.
package otp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound means no pending signup exists (never started or expired).
var ErrNotFound = errors.New("otp: pending signup not found")

// Kind separates member and business signups that share a mobile number.
type Kind string

const (
	KindMember   Kind = "member"
	KindBusiness Kind = "business"
)

// Pending is a signup waiting for OTP confirmation.
type Pending struct {
	Kind         Kind      `json:"kind"`
	MobileNumber string    `json:"mobileNumber"`
	FullName     string    `json:"fullName"`
	Email        string    `json:"email,omitempty"`
	PINHash      string    `json:"pinHash"`
	ReferredBy   string    `json:"referredBy,omitempty"`
	IsInstitute  bool      `json:"isInstitute,omitempty"`
	Secret       string    `json:"secret"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Store persists pending signups with a TTL.
type Store interface {
	Put(ctx context.Context, p *Pending, ttl time.Duration) error
	Get(ctx context.Context, kind Kind, mobile string) (*Pending, error)
	Delete(ctx context.Context, kind Kind, mobile string) error
	// Attempt records one verification attempt and returns the running
	// count for the current pending signup.
	Attempt(ctx context.Context, kind Kind, mobile string) (int64, error)
}

// RedisStore implements Store on Redis.
type RedisStore struct {
	rdb *redis.Client
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func pendingKey(kind Kind, mobile string) string {
	return fmt.Sprintf("signup:%s:%s", kind, mobile)
}

func attemptsKey(kind Kind, mobile string) string {
	return fmt.Sprintf("signup:%s:%s:attempts", kind, mobile)
}

// Put stores p, replacing any earlier pending signup for the same mobile
// and resetting its attempt counter.
func (s *RedisStore) Put(ctx context.Context, p *Pending, ttl time.Duration) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("otp: encoding pending signup: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, pendingKey(p.Kind, p.MobileNumber), data, ttl)
		pipe.Del(ctx, attemptsKey(p.Kind, p.MobileNumber))
		return nil
	})
	if err != nil {
		return fmt.Errorf("otp: storing pending signup for %s: %w", p.MobileNumber, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, kind Kind, mobile string) (*Pending, error) {
	data, err := s.rdb.Get(ctx, pendingKey(kind, mobile)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("otp: reading pending signup for %s: %w", mobile, err)
	}

	var p Pending
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("otp: decoding pending signup for %s: %w", mobile, err)
	}
	return &p, nil
}

func (s *RedisStore) Delete(ctx context.Context, kind Kind, mobile string) error {
	if err := s.rdb.Del(ctx, pendingKey(kind, mobile), attemptsKey(kind, mobile)).Err(); err != nil {
		return fmt.Errorf("otp: deleting pending signup for %s: %w", mobile, err)
	}
	return nil
}

// Attempt increments the counter and gives it the pending entry's remaining
// lifetime, so the counter never outlives the signup it guards.
func (s *RedisStore) Attempt(ctx context.Context, kind Kind, mobile string) (int64, error) {
	key := attemptsKey(kind, mobile)

	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("otp: counting attempt for %s: %w", mobile, err)
	}

	if n == 1 {
		ttl, err := s.rdb.TTL(ctx, pendingKey(kind, mobile)).Result()
		if err != nil {
			return 0, fmt.Errorf("otp: reading ttl for %s: %w", mobile, err)
		}
		if ttl <= 0 {
			ttl = time.Minute
		}
		if err := s.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("otp: expiring attempt counter for %s: %w", mobile, err)
		}
	}

	return n, nil
}
