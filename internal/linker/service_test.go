package linker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitbridge/internal/store"
	"gitbridge/internal/store/mock"
	"gitbridge/pkg/models"
)

type fakeOAuth struct {
	exchangeErr error
	fetchErr    error
	identity    models.GitHubIdentity
}

func (f *fakeOAuth) AuthorizeURL(state string) string {
	return "https://github.test/login/oauth/authorize?state=" + state
}

func (f *fakeOAuth) ExchangeCode(ctx context.Context, code string) (string, error) {
	if f.exchangeErr != nil {
		return "", f.exchangeErr
	}
	return "gho_test_token", nil
}

func (f *fakeOAuth) FetchUser(ctx context.Context, accessToken string) (*models.GitHubIdentity, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	identity := f.identity
	return &identity, nil
}

func newTestService(oauth *fakeOAuth) (*Service, *mock.MockStore) {
	st := mock.NewMockStore()
	svc := NewService(newTestBroker(), st, oauth, 200*time.Millisecond)
	return svc, st
}

func TestService_BeginLinkEmbedsState(t *testing.T) {
	svc, _ := newTestService(&fakeOAuth{})

	url := svc.BeginLink("user-1")
	assert.Contains(t, url, "https://github.test/login/oauth/authorize?state=")

	state := url[len("https://github.test/login/oauth/authorize?state="):]
	userID, ok := svc.broker.UserForState(state)
	require.True(t, ok)
	assert.Equal(t, "user-1", userID)
}

func TestService_FullHandshakePersistsLink(t *testing.T) {
	oauth := &fakeOAuth{identity: models.GitHubIdentity{UserID: 99, Username: "octocat"}}
	svc, st := newTestService(oauth)

	url := svc.BeginLink("user-1")
	state := url[len("https://github.test/login/oauth/authorize?state="):]

	done := make(chan struct{})
	go func() {
		defer close(done)
		username, err := svc.CompleteCallback(context.Background(), state, "code-abc")
		assert.NoError(t, err)
		assert.Equal(t, "octocat", username)
	}()

	link, err := svc.AwaitLinkResult(context.Background(), "user-1", "guild-1")
	require.NoError(t, err)
	<-done

	assert.Equal(t, "user-1", link.DiscordUserID)
	assert.Equal(t, int64(99), link.GitHubUserID)
	assert.Equal(t, "octocat", link.GitHubUsername)
	assert.Equal(t, "guild-1", link.LastLinkedTenant)

	persisted, err := st.GetUserLink(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "octocat", persisted.GitHubUsername)
}

func TestService_CallbackWithUnknownState(t *testing.T) {
	svc, _ := newTestService(&fakeOAuth{})

	_, err := svc.CompleteCallback(context.Background(), "bogus-state", "code")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLinkFailed))
}

func TestService_ExchangeFailureResolvesAsFailed(t *testing.T) {
	oauth := &fakeOAuth{exchangeErr: errors.New("bad verification code")}
	svc, _ := newTestService(oauth)

	url := svc.BeginLink("user-1")
	state := url[len("https://github.test/login/oauth/authorize?state="):]

	_, cbErr := svc.CompleteCallback(context.Background(), state, "expired-code")
	require.Error(t, cbErr)

	_, err := svc.AwaitLinkResult(context.Background(), "user-1", "guild-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLinkFailed))
}

func TestService_FetchUserFailureResolvesAsFailed(t *testing.T) {
	oauth := &fakeOAuth{fetchErr: errors.New("HTTP 500")}
	svc, _ := newTestService(oauth)

	url := svc.BeginLink("user-1")
	state := url[len("https://github.test/login/oauth/authorize?state="):]

	_, cbErr := svc.CompleteCallback(context.Background(), state, "code")
	require.Error(t, cbErr)

	_, err := svc.AwaitLinkResult(context.Background(), "user-1", "guild-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLinkFailed))
}

func TestService_AwaitTimeoutPropagates(t *testing.T) {
	svc, _ := newTestService(&fakeOAuth{})
	svc.BeginLink("user-1")

	_, err := svc.AwaitLinkResult(context.Background(), "user-1", "guild-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLinkTimeout))
}

func TestService_PersistFailureSurfaces(t *testing.T) {
	oauth := &fakeOAuth{identity: models.GitHubIdentity{UserID: 1, Username: "x"}}
	svc, st := newTestService(oauth)
	st.SetUserLinkErr = errors.New("connection reset")

	url := svc.BeginLink("user-1")
	state := url[len("https://github.test/login/oauth/authorize?state="):]

	go svc.CompleteCallback(context.Background(), state, "code")

	_, err := svc.AwaitLinkResult(context.Background(), "user-1", "guild-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist user link")
}

func TestService_RelinkOverwritesIdentity(t *testing.T) {
	oauth := &fakeOAuth{identity: models.GitHubIdentity{UserID: 1, Username: "first"}}
	svc, st := newTestService(oauth)

	require.NoError(t, st.SetUserLink(context.Background(), &models.UserLink{
		DiscordUserID:  "user-1",
		GitHubUserID:   1,
		GitHubUsername: "first",
	}))

	oauth.identity = models.GitHubIdentity{UserID: 2, Username: "second"}
	url := svc.BeginLink("user-1")
	state := url[len("https://github.test/login/oauth/authorize?state="):]
	go svc.CompleteCallback(context.Background(), state, "code")

	link, err := svc.AwaitLinkResult(context.Background(), "user-1", "guild-2")
	require.NoError(t, err)
	assert.Equal(t, "second", link.GitHubUsername)

	persisted, err := st.GetUserLink(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), persisted.GitHubUserID)
	assert.Equal(t, "guild-2", persisted.LastLinkedTenant)
}

func TestService_UnlinkRemovesMapping(t *testing.T) {
	svc, st := newTestService(&fakeOAuth{})
	require.NoError(t, st.SetUserLink(context.Background(), &models.UserLink{
		DiscordUserID:  "user-1",
		GitHubUserID:   5,
		GitHubUsername: "gone",
	}))

	require.NoError(t, svc.Unlink(context.Background(), "user-1"))

	_, err := svc.LinkedIdentity(context.Background(), "user-1")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	err = svc.Unlink(context.Background(), "user-1")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}
