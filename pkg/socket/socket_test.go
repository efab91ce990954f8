package socket

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/whispers-app/whispers/pkg/logger"
	"github.com/whispers-app/whispers/pkg/protocol"
)

// fakeRelay accepts connections carrying a userId and echoes every event back
// to its sender with reply_to set.
type fakeRelay struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader
	reject   atomic.Bool
	greet    atomic.Bool

	mu       sync.Mutex
	conns    []*websocket.Conn
	userIDs  []string
	accepted atomic.Int32
}

func newFakeRelay(t *testing.T) *fakeRelay {
	r := &fakeRelay{}
	r.srv = httptest.NewServer(http.HandlerFunc(r.serve))
	t.Cleanup(r.srv.Close)
	return r
}

func (r *fakeRelay) url() string {
	return "ws" + strings.TrimPrefix(r.srv.URL, "http") + "/api/v1/ws"
}

func (r *fakeRelay) serve(w http.ResponseWriter, req *http.Request) {
	if r.reject.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	userID := req.URL.Query().Get("userId")
	if userID == "" || req.Header.Get("X-User-ID") != userID {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	ws, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}

	r.mu.Lock()
	r.conns = append(r.conns, ws)
	r.userIDs = append(r.userIDs, userID)
	r.mu.Unlock()
	r.accepted.Add(1)

	if r.greet.Load() {
		welcome := protocol.NewMessage(protocol.MessageTypeSystem, protocol.SystemPayload{Event: "welcome"})
		if err := ws.WriteJSON(welcome); err != nil {
			return
		}
	}

	for {
		var msg protocol.Message
		if err := ws.ReadJSON(&msg); err != nil {
			return
		}
		reply := protocol.NewReply(&msg, msg.Type, msg.Payload)
		if err := ws.WriteJSON(reply); err != nil {
			return
		}
	}
}

// dropAll closes every server side connection without a close frame
func (r *fakeRelay) dropAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ws := range r.conns {
		ws.Close()
	}
	r.conns = nil
}

func (r *fakeRelay) seenUsers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.userIDs...)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testOptions(relay *fakeRelay, userID string, attempts int) Options {
	return Options{
		URL:               relay.url(),
		UserID:            userID,
		ReconnectAttempts: attempts,
		ReconnectDelay:    10 * time.Millisecond,
		HandshakeTimeout:  2 * time.Second,
	}
}

func connect(t *testing.T, opts Options) *Conn {
	t.Helper()
	conn := New(opts)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.Connect(context.Background()))
	return conn
}

func TestConnectSendsUserIDInHandshake(t *testing.T) {
	relay := newFakeRelay(t)
	conn := connect(t, testOptions(relay, "u1", 0))

	assert.Equal(t, StateConnected, conn.State())
	assert.Equal(t, "u1", conn.UserID())
	assert.Equal(t, []string{"u1"}, relay.seenUsers())
}

func TestConnectWithoutUserIDIsRejected(t *testing.T) {
	relay := newFakeRelay(t)
	conn := New(testOptions(relay, "", 0))
	defer conn.Close()

	var connectErrors atomic.Int32
	conn.On(EventConnectError, func(*protocol.Message) { connectErrors.Add(1) })

	err := conn.Connect(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, StateDisconnected, conn.State())
	assert.Equal(t, int32(1), connectErrors.Load())
	assert.Zero(t, relay.accepted.Load())
}

func TestEmitCorrelatesReply(t *testing.T) {
	relay := newFakeRelay(t)
	conn := connect(t, testOptions(relay, "u1", 0))

	got := make(chan *protocol.Message, 1)
	conn.On(protocol.EventCreatePost, func(msg *protocol.Message) { got <- msg })

	id, err := conn.Emit(protocol.EventCreatePost, protocol.CreatePostPayload{Content: "hello", UserID: "u1"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	select {
	case msg := <-got:
		assert.Equal(t, id, msg.ReplyTo)
		var payload protocol.CreatePostPayload
		require.NoError(t, msg.ParsePayload(&payload))
		assert.Equal(t, "hello", payload.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("no reply received")
	}
}

func TestUnsubscribeRemovesOnlyThatListener(t *testing.T) {
	relay := newFakeRelay(t)
	conn := connect(t, testOptions(relay, "u1", 0))

	var first, second atomic.Int32
	offFirst := conn.On(protocol.EventLikePost, func(*protocol.Message) { first.Add(1) })
	conn.On(protocol.EventLikePost, func(*protocol.Message) { second.Add(1) })
	require.Equal(t, 2, conn.ListenerCount(protocol.EventLikePost))

	offFirst()
	offFirst()
	assert.Equal(t, 1, conn.ListenerCount(protocol.EventLikePost))

	_, err := conn.Emit(protocol.EventLikePost, protocol.LikePostPayload{PostID: "p1", UserID: "u1", Liked: true})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return second.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, first.Load())
}

func TestEmitWhileDisconnected(t *testing.T) {
	relay := newFakeRelay(t)
	conn := New(testOptions(relay, "u1", 0))
	defer conn.Close()

	_, err := conn.Emit(protocol.EventCreatePost, protocol.CreatePostPayload{Content: "x"})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestAutomaticReconnectAfterDrop(t *testing.T) {
	relay := newFakeRelay(t)
	conn := connect(t, testOptions(relay, "u1", 3))

	var reconnects, disconnects atomic.Int32
	conn.OnReconnect(func() { reconnects.Add(1) })
	conn.On(EventDisconnect, func(*protocol.Message) { disconnects.Add(1) })

	relay.dropAll()

	assert.Eventually(t, func() bool {
		return reconnects.Load() == 1 && conn.IsConnected()
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), disconnects.Load())
	assert.Equal(t, int32(2), relay.accepted.Load())
}

func TestReconnectCallbacksRunBeforeFramesAreRead(t *testing.T) {
	relay := newFakeRelay(t)
	conn := connect(t, testOptions(relay, "u1", 3))

	var reloaded, greetedAfterReload atomic.Bool
	greeted := make(chan struct{}, 1)
	conn.OnReconnect(func() {
		time.Sleep(50 * time.Millisecond)
		reloaded.Store(true)
	})
	conn.On(protocol.MessageTypeSystem, func(*protocol.Message) {
		greetedAfterReload.Store(reloaded.Load())
		select {
		case greeted <- struct{}{}:
		default:
		}
	})

	relay.greet.Store(true)
	relay.dropAll()

	select {
	case <-greeted:
	case <-time.After(3 * time.Second):
		t.Fatal("no frame after reconnect")
	}
	assert.True(t, greetedAfterReload.Load())
}

func TestExhaustedReconnectNeedsManualReconnect(t *testing.T) {
	relay := newFakeRelay(t)
	conn := connect(t, testOptions(relay, "u1", 2))

	var connectErrors atomic.Int32
	conn.On(EventConnectError, func(*protocol.Message) { connectErrors.Add(1) })

	relay.reject.Store(true)
	relay.dropAll()

	require.Eventually(t, func() bool { return connectErrors.Load() == 2 }, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return !conn.reconnecting
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, StateDisconnected, conn.State())

	relay.reject.Store(false)
	conn.Reconnect()

	assert.Eventually(t, conn.IsConnected, 3*time.Second, 10*time.Millisecond)
}

func TestCloseStopsReconnection(t *testing.T) {
	relay := newFakeRelay(t)
	conn := connect(t, testOptions(relay, "u1", 3))

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.Equal(t, StateDisconnected, conn.State())

	conn.Reconnect()
	assert.ErrorIs(t, conn.Connect(context.Background()), ErrClosed)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), relay.accepted.Load())
}

func TestManagerReturnsSameConnForDifferentUser(t *testing.T) {
	relay := newFakeRelay(t)
	m := NewManager(testOptions(relay, "", 0))
	t.Cleanup(func() { _ = m.Reset() })

	first, err := m.GetOrCreate(context.Background(), "u1")
	require.NoError(t, err)
	second, err := m.GetOrCreate(context.Background(), "u2")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, "u1", second.UserID())
	assert.Equal(t, []string{"u1"}, relay.seenUsers())
}

func TestManagerReconnectsStoredConn(t *testing.T) {
	relay := newFakeRelay(t)
	m := NewManager(testOptions(relay, "", 0))
	t.Cleanup(func() { _ = m.Reset() })

	conn, err := m.GetOrCreate(context.Background(), "u1")
	require.NoError(t, err)

	relay.dropAll()
	require.Eventually(t, func() bool { return conn.State() == StateDisconnected }, 2*time.Second, 10*time.Millisecond)

	again, err := m.GetOrCreate(context.Background(), "u1")
	require.NoError(t, err)
	assert.Same(t, conn, again)

	assert.Eventually(t, conn.IsConnected, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(2), relay.accepted.Load())
}

func TestManagerResetSwitchesIdentity(t *testing.T) {
	relay := newFakeRelay(t)
	m := NewManager(testOptions(relay, "", 0))
	t.Cleanup(func() { _ = m.Reset() })

	first, err := m.GetOrCreate(context.Background(), "u1")
	require.NoError(t, err)
	require.NoError(t, m.Reset())
	assert.Nil(t, m.Current())
	assert.Equal(t, StateDisconnected, first.State())

	second, err := m.GetOrCreate(context.Background(), "u2")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, []string{"u1", "u2"}, relay.seenUsers())
}

func TestManagerLogsLifecycle(t *testing.T) {
	var buf syncBuffer
	logger.SetOutput(&buf, log.DebugLevel)

	relay := newFakeRelay(t)
	m := NewManager(testOptions(relay, "", 0))
	t.Cleanup(func() { _ = m.Reset() })

	_, err := m.GetOrCreate(context.Background(), "u1")
	require.NoError(t, err)
	relay.dropAll()

	assert.Eventually(t, func() bool {
		out := buf.String()
		return strings.Contains(out, "Connected to relay") && strings.Contains(out, "Disconnected from relay")
	}, 2*time.Second, 10*time.Millisecond)
}
