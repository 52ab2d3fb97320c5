package provider

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type tokenFetcher func(ctx context.Context) (token string, ttl time.Duration, err error)

// tokenSource caches the OAuth access token until expiry minus skew and
// collapses concurrent refreshes into a single upstream call.
type tokenSource struct {
	fetch tokenFetcher
	skew  time.Duration
	now   func() time.Time

	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	group singleflight.Group
}

func newTokenSource(fetch tokenFetcher, skew time.Duration) *tokenSource {
	if skew < 0 {
		skew = 0
	}
	return &tokenSource{
		fetch: fetch,
		skew:  skew,
		now:   time.Now,
	}
}

func (s *tokenSource) Token(ctx context.Context) (string, error) {
	if token, ok := s.cached(); ok {
		return token, nil
	}

	result, err, _ := s.group.Do("token", func() (interface{}, error) {
		if token, ok := s.cached(); ok {
			return token, nil
		}

		// Shared by every waiter, so one caller's cancellation must not fail the rest.
		token, ttl, err := s.fetch(context.WithoutCancel(ctx))
		if err != nil {
			return "", err
		}

		s.mu.Lock()
		s.token = token
		s.expiresAt = s.now().Add(ttl - s.skew)
		s.mu.Unlock()

		return token, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Invalidate drops the cached token if it is still the one the caller saw
// rejected; a token refreshed in the meantime is kept.
func (s *tokenSource) Invalidate(stale string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == stale {
		s.token = ""
		s.expiresAt = time.Time{}
	}
}

func (s *tokenSource) cached() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" || !s.now().Before(s.expiresAt) {
		return "", false
	}
	return s.token, true
}
