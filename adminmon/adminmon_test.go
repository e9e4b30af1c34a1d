package adminmon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStats struct{ active, queue, proposals int }

func (f fakeStats) ActiveGames() int   { return f.active }
func (f fakeStats) QueueSize() int     { return f.queue }
func (f fakeStats) ProposalCount() int { return f.proposals }

func newTestServer(t *testing.T, stats StatsProvider) (*httptest.Server, *Hub) {
	t.Helper()
	hub := New(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := NewServer(hub, stats, []string{"http://operator.local"}, zap.NewNop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, hub
}

func TestHandleStatsReportsLiveCounters(t *testing.T) {
	ts, _ := newTestServer(t, fakeStats{active: 2, queue: 5, proposals: 1})

	resp, err := http.Get(ts.URL + "/api/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, float64(2), body["active_games"])
	assert.Equal(t, float64(5), body["queue_size"])
	assert.Equal(t, float64(1), body["open_proposals"])
}

func TestHandleHealthReportsOK(t *testing.T) {
	ts, _ := newTestServer(t, fakeStats{})

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestBroadcastReachesConnectedClient(t *testing.T) {
	ts, hub := newTestServer(t, fakeStats{})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/admin/ws"
	header := http.Header{"Origin": []string{"http://operator.local"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()

	// give the hub a moment to finish registering the client before broadcasting
	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, 1, hub.ClientCount())

	hub.Broadcast(StatusEvent{Type: EventGameStarted, PlayChat: 42, PackageID: "p1"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev StatusEvent
	require.NoError(t, json.Unmarshal(msg, &ev))
	assert.Equal(t, EventGameStarted, ev.Type)
	assert.Equal(t, int64(42), ev.PlayChat)
	assert.Equal(t, "p1", ev.PackageID)
}

func TestOriginRejectedByUpgrader(t *testing.T) {
	ts, _ := newTestServer(t, fakeStats{})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/admin/ws"
	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	if resp != nil {
		assert.NotEqual(t, http.StatusSwitchingProtocols, resp.StatusCode)
	}
}
