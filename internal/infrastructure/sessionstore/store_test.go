package sessionstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/receipt-desk/internal/domain/session"
	"github.com/eshaffer321/receipt-desk/internal/infrastructure/storage"
)

var now = time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)

func exercise(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	id := uuid.NewString()

	_, err := store.Load(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	st := session.New(id, now).SignIn("staff", "secret-token", now, time.Hour)
	require.NoError(t, store.Save(ctx, st))

	got, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "secret-token", got.Token)
	assert.Equal(t, "staff", got.Username)
	assert.True(t, st.ExpiresAt.Equal(got.ExpiresAt))

	require.NoError(t, store.Touch(ctx, id, now.Add(time.Minute)))
	got, err = store.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "secret-token", got.Token, "touch keeps the row")

	require.NoError(t, store.Delete(ctx, id))
	_, err = store.Load(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQL(t *testing.T) {
	exercise(t, NewSQL(storage.NewMockRepository()))
}

func TestSQL_LoadError(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.GetSessionErr = assert.AnError

	_, err := NewSQL(repo).Load(context.Background(), "x")
	assert.ErrorIs(t, err, assert.AnError)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestSQL_Purge(t *testing.T) {
	repo := storage.NewMockRepository()
	store := NewSQL(repo)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, session.New("idle", now.Add(-48*time.Hour))))
	require.NoError(t, store.Save(ctx, session.New("fresh", now)))

	n, err := store.Purge(ctx, now, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSQL_TouchKeepsActiveSessionsFromPurge(t *testing.T) {
	repo := storage.NewMockRepository()
	store := NewSQL(repo)
	ctx := context.Background()

	signedIn := now.Add(-10 * 24 * time.Hour)
	require.NoError(t, store.Save(ctx, session.New("active", signedIn).SignIn("staff", "tok", signedIn, 0)))
	require.NoError(t, store.Save(ctx, session.New("abandoned", signedIn)))
	require.NoError(t, store.Touch(ctx, "active", now.Add(-time.Hour)))

	n, err := store.Purge(ctx, now, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := store.Load(ctx, "active")
	require.NoError(t, err)
	assert.Equal(t, "tok", got.Token)
	_, err = store.Load(ctx, "abandoned")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisEncoding_KeepsToken(t *testing.T) {
	st := session.New("sid", now).SignIn("staff", "tok", now, time.Minute).Remember("/customers", now)

	data, err := encode(st)
	require.NoError(t, err)
	got, err := decode(data)
	require.NoError(t, err)

	assert.Equal(t, "tok", got.Token)
	assert.Equal(t, "/customers", got.ReturnTo)
	assert.True(t, st.ExpiresAt.Equal(got.ExpiresAt))
}

func TestRedis_Key(t *testing.T) {
	assert.Equal(t, "receipt-desk:session:abc", NewRedis(nil, "", time.Hour).Key("abc"))
	assert.Equal(t, "p:abc", NewRedis(nil, "p:", time.Hour).Key("abc"))
}

// TestRedis runs against a live server when REDIS_ADDR is set.
func TestRedis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	require.NoError(t, client.Ping(context.Background()).Err())

	exercise(t, NewRedis(client, "receipt-desk-test:", time.Minute))
}
