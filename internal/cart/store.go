// Package cart holds customers' carts between selection and payment.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"vending-backend/internal/clock"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("cart not found or expired")

// Line is a priced cart line. The price is the one seen when the cart was
// submitted; checkout charges the current price.
type Line struct {
	ProductID   uint            `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	Total       decimal.Decimal `json:"total"`
}

type Cart struct {
	Token      string          `json:"token"`
	CustomerID string          `json:"customer_id"`
	Lines      []Line          `json:"lines"`
	Total      decimal.Decimal `json:"total"`
	ExpiresAt  time.Time       `json:"expires_at"`
}

// Store keeps carts in redis under a random token until they expire or are
// checked out.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func (s *Store) TTL() time.Duration { return s.ttl }

func (s *Store) key(token string) string {
	return fmt.Sprintf("vending:cart:%s", token)
}

// Save stores c, assigning a token if it has none, and restarts its expiry.
func (s *Store) Save(ctx context.Context, c *Cart) error {
	if c.Token == "" {
		c.Token = uuid.NewString()
	}
	c.ExpiresAt = clock.Now().Add(s.ttl)

	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(c.Token), data, s.ttl).Err()
}

// Get returns the cart for token or ErrNotFound.
func (s *Store) Get(ctx context.Context, token string) (*Cart, error) {
	if _, err := uuid.Parse(token); err != nil {
		return nil, ErrNotFound
	}

	result, err := s.client.Get(ctx, s.key(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var c Cart
	if err := json.Unmarshal([]byte(result), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Claim atomically reads and removes the cart so that only one checkout can
// hold it. It also returns the expiry left, for Restore.
func (s *Store) Claim(ctx context.Context, token string) (*Cart, time.Duration, error) {
	if _, err := uuid.Parse(token); err != nil {
		return nil, 0, ErrNotFound
	}

	key := s.key(token)
	var get *redis.StringCmd
	var ttl *redis.DurationCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.Get(ctx, key)
		ttl = pipe.PTTL(ctx, key)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, err
	}

	var c Cart
	if err := json.Unmarshal([]byte(get.Val()), &c); err != nil {
		return nil, 0, err
	}
	return &c, ttl.Val(), nil
}

// Restore puts back a claimed cart with the expiry it had left, or the full
// TTL when the key carried none.
func (s *Store) Restore(ctx context.Context, c *Cart, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.ttl
	}
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(c.Token), data, ttl).Err()
}

// Delete drops the cart. Deleting a missing cart returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, token string) error {
	if _, err := uuid.Parse(token); err != nil {
		return ErrNotFound
	}
	n, err := s.client.Del(ctx, s.key(token)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
