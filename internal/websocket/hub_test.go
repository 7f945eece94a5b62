package websocket_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dom/dreamhome-studio/internal/domain"
	"github.com/dom/dreamhome-studio/internal/metrics"
	"github.com/dom/dreamhome-studio/internal/service"
	"github.com/dom/dreamhome-studio/internal/testutil"
	"github.com/dom/dreamhome-studio/internal/websocket"
	"github.com/google/uuid"
	gorillaWS "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wait = 3 * time.Second

func TestHub_SnapshotOnConnect(t *testing.T) {
	ts := testutil.NewTestServer(t)
	owner, token := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)
	testutil.NewDesignBuilder().WithOwner(owner).WithPrompt("existing").Build(t, ts.DB.DB)

	client := testutil.NewWSClient(t, ts.WebSocketURL(token))

	snap := client.ExpectSnapshot(wait)
	require.Len(t, snap.Designs, 1)
	assert.Equal(t, "existing", snap.Designs[0].Prompt)
	assert.Eventually(t, func() bool { return ts.Hub.ClientCount(owner.ID) == 1 }, wait, 10*time.Millisecond)
}

func TestHub_SnapshotAfterChanges(t *testing.T) {
	ts := testutil.NewTestServer(t)
	owner, token := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)

	client := testutil.NewWSClient(t, ts.WebSocketURL(token))
	assert.Empty(t, client.ExpectSnapshot(wait).Designs)

	ctx := context.Background()
	first, err := ts.Services.Gallery.Append(ctx, owner.ID, &domain.Design{Image: domain.ImageDataURIPrefix + "AAAA", Prompt: "first"})
	require.NoError(t, err)
	client.ExpectSnapshotLen(1, wait)

	time.Sleep(5 * time.Millisecond)
	_, err = ts.Services.Gallery.Append(ctx, owner.ID, &domain.Design{Image: domain.ImageDataURIPrefix + "BBBB", Prompt: "second"})
	require.NoError(t, err)
	snap := client.ExpectSnapshotLen(2, wait)
	assert.Equal(t, "second", snap.Designs[0].Prompt)

	require.NoError(t, ts.Services.Gallery.Remove(ctx, owner.ID, first.ID))
	snap = client.ExpectSnapshotLen(1, wait)
	assert.Equal(t, "second", snap.Designs[0].Prompt)
}

func TestHub_GalleriesAreIsolated(t *testing.T) {
	ts := testutil.NewTestServer(t)
	_, tokenA := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)
	userB, _ := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)

	clientA := testutil.NewWSClient(t, ts.WebSocketURL(tokenA))
	clientA.ExpectSnapshot(wait)

	_, err := ts.Services.Gallery.Append(context.Background(), userB.ID, &domain.Design{Image: domain.ImageDataURIPrefix + "AAAA", Prompt: "b's"})
	require.NoError(t, err)

	clientA.ExpectNoMessage(200 * time.Millisecond)
}

func TestHub_ResyncAndUnknownMessages(t *testing.T) {
	ts := testutil.NewTestServer(t)
	_, token := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)

	client := testutil.NewWSClient(t, ts.WebSocketURL(token))
	client.ExpectSnapshot(wait)

	client.Resync()
	client.ExpectSnapshot(wait)

	client.SendRaw("PIN_DESIGN")
	payload := client.ExpectError(wait)
	assert.Equal(t, websocket.ErrCodeUnknownMessage, payload.Code)
}

func TestHub_LogoutEndsConnection(t *testing.T) {
	ts := testutil.NewTestServer(t)
	owner, token := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)

	client := testutil.NewWSClient(t, ts.WebSocketURL(token))
	client.ExpectSnapshot(wait)

	req := testutil.CreateAuthenticatedRequest(t, http.MethodPost, ts.APIURL("/auth/logout"), nil, token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	state := client.ExpectAuthState(wait)
	assert.Nil(t, state.User)
	client.ExpectClosed(wait)

	assert.Eventually(t, func() bool {
		return ts.Hub.ClientCount(owner.ID) == 0 && ts.Services.Gallery.SubscriberCount(owner.ID) == 0
	}, wait, 10*time.Millisecond)
}

func TestHub_SessionExpiryEndsConnection(t *testing.T) {
	ts := testutil.NewTestServer(t)
	owner, token := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)

	require.NoError(t, ts.DB.DB.Model(&domain.UserSession{}).
		Where("user_id = ?", owner.ID).
		Update("expires_at", time.Now().Add(time.Second)).Error)

	client := testutil.NewWSClient(t, ts.WebSocketURL(token))
	client.ExpectSnapshot(wait)

	state := client.ExpectAuthState(wait)
	assert.Nil(t, state.User)
	client.ExpectClosed(wait)

	assert.Eventually(t, func() bool {
		return ts.Hub.ClientCount(owner.ID) == 0 && ts.Services.Gallery.SubscriberCount(owner.ID) == 0
	}, wait, 10*time.Millisecond)
}

func TestHub_PurgedSessionEndsConnection(t *testing.T) {
	ts := testutil.NewTestServer(t)
	owner, token := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)

	client := testutil.NewWSClient(t, ts.WebSocketURL(token))
	client.ExpectSnapshot(wait)

	require.NoError(t, ts.DB.DB.Model(&domain.UserSession{}).
		Where("user_id = ?", owner.ID).
		Update("expires_at", time.Now().Add(-time.Second)).Error)
	n, err := ts.Services.Auth.PurgeExpiredSessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	state := client.ExpectAuthState(wait)
	assert.Nil(t, state.User)
	client.ExpectClosed(wait)
}

func TestHub_RejectsBadTokens(t *testing.T) {
	ts := testutil.NewTestServer(t)

	tests := []struct {
		name  string
		token string
	}{
		{name: "missing", token: ""},
		{name: "garbage", token: "not-a-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := gorillaWS.DefaultDialer.Dial(ts.WebSocketURL(tt.token), nil)
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
}

// flakyDesigns serves one good snapshot, then fails every later read.
type flakyDesigns struct {
	mu    sync.Mutex
	reads int
}

func (f *flakyDesigns) Create(ctx context.Context, design *domain.Design) error { return nil }

func (f *flakyDesigns) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Design, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.reads > 1 {
		return nil, errors.New("permission denied")
	}
	return []*domain.Design{}, nil
}

func (f *flakyDesigns) Delete(ctx context.Context, userID, designID uuid.UUID) (bool, error) {
	return true, nil
}

func TestHub_GalleryErrorClosesConnection(t *testing.T) {
	gallery := service.NewGalleryService(&flakyDesigns{}, metrics.Nop{}, testutil.TestLogger())
	hub := websocket.NewHub(gallery, testutil.TestLogger())
	go hub.Run()
	t.Cleanup(hub.Stop)

	userID := uuid.New()
	upgrader := gorillaWS.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := websocket.NewClient(hub, conn, userID, uuid.New(), time.Time{})
		hub.Register(client)
		go client.WritePump()
		go client.ReadPump()
	}))
	t.Cleanup(srv.Close)

	client := testutil.NewWSClient(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	client.ExpectSnapshot(wait)

	client.Resync()
	msg := client.ExpectMessage(websocket.MessageTypeGalleryError, wait)
	assert.Contains(t, string(msg.Payload), websocket.ErrCodeGallerySubscribe)
	client.ExpectClosed(wait)

	assert.Eventually(t, func() bool { return gallery.SubscriberCount(userID) == 0 }, wait, 10*time.Millisecond)
}

func TestHub_StopClosesClients(t *testing.T) {
	gallery := service.NewGalleryService(&flakyDesigns{}, metrics.Nop{}, testutil.TestLogger())
	hub := websocket.NewHub(gallery, testutil.TestLogger())
	go hub.Run()

	upgrader := gorillaWS.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := websocket.NewClient(hub, conn, uuid.New(), uuid.New(), time.Time{})
		hub.Register(client)
		go client.WritePump()
		go client.ReadPump()
	}))
	t.Cleanup(srv.Close)

	client := testutil.NewWSClient(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	client.ExpectSnapshot(wait)

	hub.Stop()
	client.ExpectClosed(wait)
	hub.Stop()
}
