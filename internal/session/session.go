// Package session owns the process-wide authentication session: the persisted
// access token, the cached user profile, and the refresh state machine shared
// by every outgoing request.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/observability"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/model"
)

// State is the refresh state of the session.
type State int

const (
	StateIdle State = iota
	StateRefreshing
)

func (s State) String() string {
	if s == StateRefreshing {
		return "REFRESHING"
	}
	return "IDLE"
}

// RefreshFunc obtains a new access token from the backend.
type RefreshFunc func(ctx context.Context) (string, error)

// Options configures a Session.
type Options struct {
	LoginRoute string
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// Claims are the unverified claims of the current access token.
type Claims struct {
	Subject   string
	Role      string
	ExpiresAt time.Time
}

// Expired reports whether the token expiry lies before now. Tokens without
// an expiry never expire.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && c.ExpiresAt.Before(now)
}

type refreshOutcome struct {
	token string
	err   error
}

// Session is the auth session. Create one at start-up with New and tear it
// down at logout.
type Session struct {
	id         string
	store      TokenStore
	navigator  Navigator
	loginRoute string
	logger     *zap.Logger
	metrics    *observability.Metrics

	mu      sync.Mutex
	state   State
	waiters []chan refreshOutcome
}

// New creates a session over the given store and navigator.
func New(store TokenStore, navigator Navigator, opts Options) *Session {
	if opts.LoginRoute == "" {
		opts.LoginRoute = "/login"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	id := uuid.NewString()
	return &Session{
		id:         id,
		store:      store,
		navigator:  navigator,
		loginRoute: opts.LoginRoute,
		logger:     opts.Logger.With(zap.String("session_id", id)),
		metrics:    opts.Metrics,
	}
}

// ID returns the process-local session identifier used in logs.
func (s *Session) ID() string { return s.id }

// State returns the current refresh state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Token returns the persisted access token, or "" if none.
func (s *Session) Token(ctx context.Context) (string, error) {
	return s.store.Get(ctx, KeyToken)
}

// SetToken persists a new access token.
func (s *Session) SetToken(ctx context.Context, token string) error {
	return s.store.Set(ctx, KeyToken, token)
}

// Profile returns the cached user profile, or nil if none is stored.
func (s *Session) Profile(ctx context.Context) (map[string]any, error) {
	raw, err := s.store.Get(ctx, KeyUser)
	if err != nil || raw == "" {
		return nil, err
	}
	var profile map[string]any
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		return nil, fmt.Errorf("session: decoding cached profile: %w", err)
	}
	return profile, nil
}

// SaveProfile caches the user profile.
func (s *Session) SaveProfile(ctx context.Context, profile map[string]any) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("session: encoding profile: %w", err)
	}
	return s.store.Set(ctx, KeyUser, string(data))
}

// Claims decodes the current token without verifying its signature. The
// backend remains the authority; claims are used for display and logging.
func (s *Session) Claims(ctx context.Context) (Claims, error) {
	token, err := s.Token(ctx)
	if err != nil {
		return Claims{}, err
	}
	if token == "" {
		return Claims{}, model.NewUnauthorizedError("Not signed in")
	}

	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return Claims{}, fmt.Errorf("session: parsing token: %w", err)
	}

	var c Claims
	c.Subject, _ = mc.GetSubject()
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	if role, ok := mc["role"].(string); ok {
		c.Role = role
	}
	return c, nil
}

// Refresh runs the two-state refresh machine. The first caller in IDLE moves
// the session to REFRESHING and calls fn; callers arriving while REFRESHING
// wait for that outcome. On success the new token is persisted and returned
// to every caller. On failure every caller receives SESSION_EXPIRED and the
// session is expired.
func (s *Session) Refresh(ctx context.Context, fn RefreshFunc) (string, error) {
	s.mu.Lock()
	if s.state == StateRefreshing {
		ch := make(chan refreshOutcome, 1)
		s.waiters = append(s.waiters, ch)
		s.mu.Unlock()

		s.logger.Debug("request queued behind token refresh")
		select {
		case out := <-ch:
			return out.token, out.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	s.state = StateRefreshing
	s.mu.Unlock()

	// The refresh outlives the caller that triggered it: queued requests
	// depend on its outcome.
	rctx := context.WithoutCancel(ctx)

	token, err := fn(rctx)
	if err == nil && token == "" {
		err = errors.New("refresh response carried no access token")
	}
	if err == nil {
		err = s.SetToken(rctx, token)
	}

	s.mu.Lock()
	waiters := s.waiters
	s.waiters = nil
	s.state = StateIdle
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("token refresh failed", zap.Error(err), zap.Int("queued", len(waiters)))
		s.metrics.RecordTokenRefresh("failure")
		expired := model.NewSessionExpiredError()
		for _, w := range waiters {
			w <- refreshOutcome{err: expired}
		}
		s.Expire(rctx)
		return "", expired
	}

	s.logger.Info("token refreshed", zap.Int("released", len(waiters)))
	s.metrics.RecordTokenRefresh("success")
	for _, w := range waiters {
		w <- refreshOutcome{token: token}
	}
	return token, nil
}

// ExpiredLocation is the login location used after a forced expiry.
func (s *Session) ExpiredLocation() string {
	return s.loginRoute + "?" + url.Values{"session": {"expired"}}.Encode()
}

// Expire clears the persisted token and navigates to the login location with
// the session-expired indicator.
func (s *Session) Expire(ctx context.Context) {
	if err := s.store.Delete(ctx, KeyToken); err != nil {
		s.logger.Error("clearing token after expiry", zap.Error(err))
	}
	s.metrics.RecordSessionExpiry()
	if s.navigator != nil {
		s.navigator.Navigate(ctx, s.ExpiredLocation())
	}
}

// Teardown ends the session at logout by clearing the token and profile.
func (s *Session) Teardown(ctx context.Context) error {
	return errors.Join(
		s.store.Delete(ctx, KeyToken),
		s.store.Delete(ctx, KeyUser),
	)
}
