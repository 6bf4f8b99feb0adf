package linker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gitbridge/internal/githubapi"
	"gitbridge/internal/metrics"
	"gitbridge/internal/store"
	"gitbridge/pkg/models"
)

// Service is the identity-linking surface exposed to the bot layer and the
// OAuth callback handler. The bot side calls BeginLink then AwaitLinkResult
// from its command goroutine; the HTTP side calls CompleteCallback when
// GitHub redirects back. The Broker in between is the only state they share.
type Service struct {
	broker  *Broker
	store   store.Store
	oauth   githubapi.OAuth
	timeout time.Duration
}

// NewService creates a link Service. timeout bounds how long AwaitLinkResult
// waits for the user to finish the browser roundtrip.
func NewService(broker *Broker, s store.Store, oauth githubapi.OAuth, timeout time.Duration) *Service {
	return &Service{broker: broker, store: s, oauth: oauth, timeout: timeout}
}

// BeginLink starts a handshake and returns the GitHub authorize URL the
// user must visit.
func (s *Service) BeginLink(userID string) string {
	state := s.broker.Begin(userID)
	return s.oauth.AuthorizeURL(state)
}

// AwaitLinkResult blocks until the handshake for userID resolves, then
// persists the mapping. Returns ErrLinkTimeout or ErrLinkFailed unchanged
// so callers can distinguish "try again" from a real failure.
func (s *Service) AwaitLinkResult(ctx context.Context, userID, tenantID string) (*models.UserLink, error) {
	identity, err := s.broker.Await(ctx, userID, s.timeout)
	if err != nil {
		switch {
		case errors.Is(err, ErrLinkTimeout):
			metrics.LinkSessions.WithLabelValues("timeout").Inc()
		case errors.Is(err, ErrLinkFailed):
			metrics.LinkSessions.WithLabelValues("failed").Inc()
		}
		return nil, err
	}

	link := &models.UserLink{
		DiscordUserID:    userID,
		GitHubUserID:     identity.UserID,
		GitHubUsername:   identity.Username,
		LastLinkedTenant: tenantID,
	}
	if err := s.store.SetUserLink(ctx, link); err != nil {
		return nil, fmt.Errorf("persist user link: %w", err)
	}

	metrics.LinkSessions.WithLabelValues("completed").Inc()
	slog.Info("user linked", "discord_user_id", userID, "github_username", identity.Username)
	return link, nil
}

// CompleteCallback handles the OAuth redirect: it maps the state token back
// to the waiting user, performs the code exchange and user fetch, and
// resolves the broker session either way. The returned username is for the
// success page only.
func (s *Service) CompleteCallback(ctx context.Context, state, code string) (string, error) {
	userID, ok := s.broker.UserForState(state)
	if !ok {
		// Expired or unknown state. There is no session to resolve; the
		// waiter (if any) will time out on its own.
		return "", fmt.Errorf("%w: unknown or expired state", ErrLinkFailed)
	}

	token, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		s.broker.Resolve(userID, nil, "github authorization failed")
		return "", fmt.Errorf("exchange code: %w", err)
	}

	identity, err := s.oauth.FetchUser(ctx, token)
	if err != nil {
		s.broker.Resolve(userID, nil, "failed to fetch github user info")
		return "", fmt.Errorf("fetch user: %w", err)
	}

	s.broker.Resolve(userID, identity, "")
	return identity.Username, nil
}

// LinkedIdentity returns the persistent mapping for a user, or
// store.ErrNotFound if they never linked.
func (s *Service) LinkedIdentity(ctx context.Context, userID string) (*models.UserLink, error) {
	return s.store.GetUserLink(ctx, userID)
}

// Unlink removes the persistent mapping.
func (s *Service) Unlink(ctx context.Context, userID string) error {
	return s.store.DeleteUserLink(ctx, userID)
}
