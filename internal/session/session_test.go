package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bob-Light1/school-management-system-frontend-sub000/model"
)

func newTestSession(t *testing.T) (*Session, *MemoryStore, *RecordingNavigator) {
	t.Helper()
	store := NewMemoryStore()
	nav := &RecordingNavigator{}
	return New(store, nav, Options{LoginRoute: "/login"}), store, nav
}

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func TestSession_TokenRoundTrip(t *testing.T) {
	s, _, _ := newTestSession(t)
	ctx := context.Background()

	tok, err := s.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, tok)

	require.NoError(t, s.SetToken(ctx, "abc"))
	tok, err = s.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)
}

func TestSession_Profile(t *testing.T) {
	s, _, _ := newTestSession(t)
	ctx := context.Background()

	profile, err := s.Profile(ctx)
	require.NoError(t, err)
	assert.Nil(t, profile)

	require.NoError(t, s.SaveProfile(ctx, map[string]any{"firstName": "Ada", "role": "CAMPUS_MANAGER"}))
	profile, err = s.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Ada", profile["firstName"])
}

func TestSession_Claims(t *testing.T) {
	s, _, _ := newTestSession(t)
	ctx := context.Background()

	_, err := s.Claims(ctx)
	var ee *model.ErrorEnvelope
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, model.ErrUnauthorized, ee.Code)

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	require.NoError(t, s.SetToken(ctx, signedToken(t, jwt.MapClaims{
		"sub":  "user-42",
		"role": "CAMPUS_MANAGER",
		"exp":  exp.Unix(),
	})))

	c, err := s.Claims(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user-42", c.Subject)
	assert.Equal(t, "CAMPUS_MANAGER", c.Role)
	assert.True(t, c.ExpiresAt.Equal(exp))
	assert.False(t, c.Expired(time.Now()))
	assert.True(t, c.Expired(exp.Add(time.Minute)))
}

func TestSession_Claims_malformed(t *testing.T) {
	s, _, _ := newTestSession(t)
	require.NoError(t, s.SetToken(context.Background(), "not-a-jwt"))
	_, err := s.Claims(context.Background())
	assert.Error(t, err)
}

func TestRefresh_success(t *testing.T) {
	s, store, nav := newTestSession(t)
	ctx := context.Background()

	tok, err := s.Refresh(ctx, func(context.Context) (string, error) { return "fresh", nil })
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok)

	stored, _ := store.Get(ctx, KeyToken)
	assert.Equal(t, "fresh", stored)
	assert.Equal(t, StateIdle, s.State())
	assert.Empty(t, nav.Pending())
}

func TestRefresh_failureExpiresSession(t *testing.T) {
	s, store, nav := newTestSession(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, KeyToken, "stale"))
	require.NoError(t, store.Set(ctx, KeyUser, `{"name":"Ada"}`))

	_, err := s.Refresh(ctx, func(context.Context) (string, error) { return "", errors.New("refresh cookie missing") })

	var ee *model.ErrorEnvelope
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, model.ErrSessionExpired, ee.Code)

	tok, _ := store.Get(ctx, KeyToken)
	assert.Empty(t, tok, "token should be cleared")
	user, _ := store.Get(ctx, KeyUser)
	assert.NotEmpty(t, user, "expiry keeps the cached profile")
	assert.Equal(t, "/login?session=expired", nav.Pending())
	assert.Equal(t, StateIdle, s.State())
}

func TestRefresh_emptyTokenIsFailure(t *testing.T) {
	s, _, nav := newTestSession(t)
	_, err := s.Refresh(context.Background(), func(context.Context) (string, error) { return "", nil })
	require.Error(t, err)
	assert.Equal(t, "/login?session=expired", nav.Take())
	assert.Empty(t, nav.Pending(), "Take consumes the redirect")
}

func TestRefresh_concurrentCallersShareOneRefresh(t *testing.T) {
	s, _, _ := newTestSession(t)

	var calls atomic.Int32
	release := make(chan struct{})
	fn := func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "shared", nil
	}

	const n = 5
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = s.Refresh(context.Background(), fn)
	}()
	require.Eventually(t, func() bool { return s.State() == StateRefreshing }, time.Second, time.Millisecond)

	for i := 1; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.Refresh(context.Background(), fn)
		}(i)
	}
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.waiters) == n-1
	}, time.Second, time.Millisecond)

	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(), "refresh endpoint called once")
	for i := 0; i < n; i++ {
		assert.NoError(t, errs[i])
		assert.Equal(t, "shared", results[i])
	}
	assert.Equal(t, StateIdle, s.State())
}

func TestRefresh_failureRejectsQueuedCallers(t *testing.T) {
	s, _, _ := newTestSession(t)

	release := make(chan struct{})
	fn := func(context.Context) (string, error) {
		<-release
		return "", errors.New("401 from refresh")
	}

	var wg sync.WaitGroup
	var leaderErr, waiterErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, leaderErr = s.Refresh(context.Background(), fn)
	}()
	require.Eventually(t, func() bool { return s.State() == StateRefreshing }, time.Second, time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, waiterErr = s.Refresh(context.Background(), fn)
	}()
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.waiters) == 1
	}, time.Second, time.Millisecond)

	close(release)
	wg.Wait()

	for _, err := range []error{leaderErr, waiterErr} {
		var ee *model.ErrorEnvelope
		require.ErrorAs(t, err, &ee)
		assert.Equal(t, model.ErrSessionExpired, ee.Code)
	}
}

func TestRefresh_waiterContextCancelled(t *testing.T) {
	s, _, _ := newTestSession(t)

	release := make(chan struct{})
	defer close(release)
	go s.Refresh(context.Background(), func(context.Context) (string, error) {
		<-release
		return "late", nil
	})
	require.Eventually(t, func() bool { return s.State() == StateRefreshing }, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Refresh(ctx, func(context.Context) (string, error) { return "unused", nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTeardown_clearsTokenAndProfile(t *testing.T) {
	s, store, _ := newTestSession(t)
	ctx := context.Background()
	require.NoError(t, s.SetToken(ctx, "abc"))
	require.NoError(t, s.SaveProfile(ctx, map[string]any{"name": "Ada"}))

	require.NoError(t, s.Teardown(ctx))

	tok, _ := store.Get(ctx, KeyToken)
	user, _ := store.Get(ctx, KeyUser)
	assert.Empty(t, tok)
	assert.Empty(t, user)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "IDLE", StateIdle.String())
	assert.Equal(t, "REFRESHING", StateRefreshing.String())
}
