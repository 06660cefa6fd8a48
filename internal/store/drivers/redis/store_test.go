package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/graphconnect/internal/store"
	"github.com/aussiebroadwan/graphconnect/pkg/graphsdk"
	"github.com/aussiebroadwan/graphconnect/pkg/slogx"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := NewStore(context.Background(), Config{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisRoundTripWithTTL(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)

	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	_, err := s.Load(ctx, "fb1")
	require.ErrorIs(t, err, store.ErrNotFound)

	in := graphsdk.Credentials{AccessToken: "tok", ExpiresAt: now.Add(time.Hour), Permissions: []string{"email"}}
	require.NoError(t, s.Save(ctx, "fb1", in))

	require.True(t, mr.Exists(DefaultPrefix+"fb1"))
	require.Equal(t, time.Hour, mr.TTL(DefaultPrefix+"fb1"))

	out, err := s.Load(ctx, "fb1")
	require.NoError(t, err)
	require.Equal(t, "tok", out.AccessToken)
	require.True(t, in.ExpiresAt.Equal(out.ExpiresAt))
	require.Equal(t, []string{"email"}, out.Permissions)

	mr.FastForward(time.Hour + time.Second)
	_, err = s.Load(ctx, "fb1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRedisNoExpiryMeansNoTTL(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)

	require.NoError(t, s.Save(ctx, "fb1", graphsdk.Credentials{AccessToken: "tok"}))
	require.Equal(t, time.Duration(0), mr.TTL(DefaultPrefix+"fb1"))
}

func TestRedisExpiredOrEmptyDeletes(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)

	require.NoError(t, s.Save(ctx, "fb1", graphsdk.Credentials{AccessToken: "tok"}))
	require.NoError(t, s.Save(ctx, "fb1", graphsdk.Credentials{
		AccessToken: "old", ExpiresAt: time.Now().Add(-time.Minute),
	}))
	require.False(t, mr.Exists(DefaultPrefix+"fb1"))

	require.NoError(t, s.Save(ctx, "fb2", graphsdk.Credentials{AccessToken: "tok"}))
	require.NoError(t, s.Save(ctx, "fb2", graphsdk.Credentials{}))
	require.False(t, mr.Exists(DefaultPrefix+"fb2"))
}

func TestRedisPingAndBadURL(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Ping(context.Background()))

	_, err := NewStore(context.Background(), Config{URL: "://nope"})
	require.Error(t, err)
}

func TestBindFailsWhenRedisGoesAway(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Close()

	sess, err := graphsdk.NewSession("123")
	require.NoError(t, err)
	err = store.Bind(context.Background(), sess, s, slogx.Discard())
	require.ErrorContains(t, err, "store unreachable")
}
