package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eshaffer321/receipt-desk/internal/domain/session"
)

// record is the JSON form kept in Redis. session.State hides the token from
// JSON, so it is carried explicitly here.
type record struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	Username  string    `json:"username,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
	ReturnTo  string    `json:"return_to,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Redis stores sessions as JSON strings with an idle TTL that is refreshed on
// every save and touch.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis returns a store using client. Keys are prefix+id.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "receipt-desk:session:"
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

// Key returns the Redis key of a session id.
func (r *Redis) Key(id string) string {
	return r.prefix + id
}

func (r *Redis) Load(ctx context.Context, id string) (session.State, error) {
	data, err := r.client.Get(ctx, r.Key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return session.State{}, ErrNotFound
	}
	if err != nil {
		return session.State{}, fmt.Errorf("failed to load session: %w", err)
	}
	return decode(data)
}

func (r *Redis) Save(ctx context.Context, st session.State) error {
	data, err := encode(st)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.Key(st.ID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.Key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Touch refreshes the idle TTL. The stored updated_at is left alone.
func (r *Redis) Touch(ctx context.Context, id string, _ time.Time) error {
	if r.ttl <= 0 {
		return nil
	}
	if err := r.client.Expire(ctx, r.Key(id), r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

func encode(st session.State) ([]byte, error) {
	data, err := json.Marshal(record{
		ID:        st.ID,
		Token:     st.Token,
		Username:  st.Username,
		ExpiresAt: st.ExpiresAt,
		ReturnTo:  st.ReturnTo,
		CreatedAt: st.CreatedAt,
		UpdatedAt: st.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}
	return data, nil
}

func decode(data []byte) (session.State, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return session.State{}, fmt.Errorf("failed to decode session: %w", err)
	}
	return session.State{
		ID:        rec.ID,
		Token:     rec.Token,
		Username:  rec.Username,
		ExpiresAt: rec.ExpiresAt,
		ReturnTo:  rec.ReturnTo,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}
