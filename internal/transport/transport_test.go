package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_Audio(t *testing.T) {
	b, err := Encode(Event{Type: EventAudio, Audio: []byte{1, 2, 3, 4}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"audio","audio":"AQIDBA=="}`, string(b))

	ev, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, EventAudio, ev.Type)
	assert.Equal(t, []byte{1, 2, 3, 4}, ev.Audio)
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode([]byte(`{"type":"bogus"}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"type":"audio","audio":"%%%"}`))
	assert.Error(t, err)

	_, err = Encode(Event{Type: "nope"})
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestParamsURL(t *testing.T) {
	u, err := Params{VoiceID: "v1", AgentID: "a1", Identity: "Ava", UserID: "u"}.URL("http://host/pipeline")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "ws://host/pipeline?"))
	assert.Contains(t, u, "voice_id=v1")
	assert.Contains(t, u, "identity=Ava")

	_, err = Params{}.URL("ftp://host")
	assert.Error(t, err)
}

// peer is a scripted pipeline endpoint.
type peer struct {
	t        *testing.T
	upgrader websocket.Upgrader
	conns    atomic.Int32
	onConn   func(n int32, conn *websocket.Conn, r *http.Request)
}

func (p *peer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	n := p.conns.Add(1)
	p.onConn(n, conn, r)
}

func newPeer(t *testing.T, onConn func(n int32, conn *websocket.Conn, r *http.Request)) (*peer, *httptest.Server) {
	p := &peer{t: t, onConn: onConn}
	srv := httptest.NewServer(p)
	t.Cleanup(srv.Close)
	return p, srv
}

func writeEvent(t *testing.T, conn *websocket.Conn, e Event) {
	b, err := Encode(e)
	require.NoError(t, err)
	_ = conn.WriteMessage(websocket.TextMessage, b)
}

func TestChannel_DeliversEventsAndAnswersPing(t *testing.T) {
	gotPong := make(chan struct{}, 1)
	var auth, agent string
	_, srv := newPeer(t, func(_ int32, conn *websocket.Conn, r *http.Request) {
		auth = r.Header.Get("Authorization")
		agent = r.URL.Query().Get(QueryAgentID)
		writeEvent(t, conn, Event{Type: EventTranscript, Text: "hello"})
		writeEvent(t, conn, Event{Type: EventPing})
		writeEvent(t, conn, Event{Type: EventAgentResponse, Text: "hi there"})
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if ev, err := Decode(data); err == nil && ev.Type == EventPong {
				gotPong <- struct{}{}
			}
		}
	})

	var mu sync.Mutex
	var got []Event
	ch, err := Connect(context.Background(), srv.URL, Params{AgentID: "a1"}, func(e Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	}, Options{Token: "secret"})
	require.NoError(t, err)
	defer ch.Close()

	select {
	case <-gotPong:
	case <-time.After(2 * time.Second):
		t.Fatal("no pong")
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, EventTranscript, got[0].Type)
	assert.Equal(t, EventAgentResponse, got[1].Type)
	mu.Unlock()
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "a1", agent)
}

func TestChannel_Heartbeat(t *testing.T) {
	pings := make(chan struct{}, 4)
	_, srv := newPeer(t, func(_ int32, conn *websocket.Conn, _ *http.Request) {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if ev, err := Decode(data); err == nil && ev.Type == EventPing {
				select {
				case pings <- struct{}{}:
				default:
				}
			}
		}
	})
	ch, err := Connect(context.Background(), srv.URL, Params{}, nil, Options{HeartbeatInterval: 20 * time.Millisecond})
	require.NoError(t, err)
	defer ch.Close()
	select {
	case <-pings:
	case <-time.After(time.Second):
		t.Fatal("no heartbeat")
	}
}

func TestChannel_ReconnectsOnceThenTerminates(t *testing.T) {
	p, srv := newPeer(t, func(n int32, conn *websocket.Conn, _ *http.Request) {
		writeEvent(t, conn, Event{Type: EventTranscript, Text: "conn"})
		time.Sleep(20 * time.Millisecond)
		_ = conn.Close()
	})

	var terminal atomic.Int32
	termErr := make(chan error, 2)
	var reconnects atomic.Int32
	var events atomic.Int32
	ch, err := Connect(context.Background(), srv.URL, Params{}, func(Event) { events.Add(1) }, Options{
		ReconnectDelay: 10 * time.Millisecond,
		OnReconnect:    func(int) { reconnects.Add(1) },
		OnTerminal: func(err error) {
			terminal.Add(1)
			termErr <- err
		},
	})
	require.NoError(t, err)
	defer ch.Close()

	select {
	case err := <-termErr:
		assert.ErrorIs(t, err, ErrReconnectExhausted)
	case <-time.After(3 * time.Second):
		t.Fatal("expected terminal error")
	}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), p.conns.Load())
	assert.Equal(t, int32(1), reconnects.Load())
	assert.Equal(t, int32(1), terminal.Load())
	assert.Equal(t, int32(2), events.Load())
	assert.False(t, ch.Send(Event{Type: EventAudio, Audio: []byte{0, 0}}))
}

func TestChannel_NoReconnectWhenDisallowed(t *testing.T) {
	p, srv := newPeer(t, func(_ int32, conn *websocket.Conn, _ *http.Request) {
		_ = conn.Close()
	})
	termErr := make(chan error, 1)
	ch, err := Connect(context.Background(), srv.URL, Params{}, nil, Options{
		ReconnectDelay:  10 * time.Millisecond,
		ShouldReconnect: func() bool { return false },
		OnTerminal:      func(err error) { termErr <- err },
	})
	require.NoError(t, err)
	defer ch.Close()
	select {
	case err := <-termErr:
		assert.NotErrorIs(t, err, ErrReconnectExhausted)
	case <-time.After(2 * time.Second):
		t.Fatal("expected terminal error")
	}
	assert.Equal(t, int32(1), p.conns.Load())
}

func TestChannel_CloseIsQuiet(t *testing.T) {
	received := make(chan Event, 1)
	_, srv := newPeer(t, func(_ int32, conn *websocket.Conn, _ *http.Request) {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if ev, err := Decode(data); err == nil && ev.Type == EventAudio {
				received <- ev
			}
		}
	})
	var terminal atomic.Int32
	ch, err := Connect(context.Background(), srv.URL, Params{}, nil, Options{
		OnTerminal: func(error) { terminal.Add(1) },
	})
	require.NoError(t, err)
	assert.True(t, ch.Connected())
	assert.True(t, ch.Send(Event{Type: EventAudio, Audio: []byte{1, 0}}))
	select {
	case ev := <-received:
		assert.Equal(t, []byte{1, 0}, ev.Audio)
	case <-time.After(time.Second):
		t.Fatal("audio not delivered")
	}

	require.NoError(t, ch.Close())
	assert.NoError(t, ch.Close())
	assert.False(t, ch.Send(Event{Type: EventAudio, Audio: []byte{1, 0}}))
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, terminal.Load())
}

func TestConnect_HandshakeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	_, err := Connect(context.Background(), srv.URL, Params{}, nil, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
