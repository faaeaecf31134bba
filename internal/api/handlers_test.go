package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"replicated-feed/internal/clock"
	"replicated-feed/internal/cluster"
	"replicated-feed/internal/delivery"
	"replicated-feed/internal/event"
	"replicated-feed/internal/feed"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type nopSender struct{}

func (nopSender) Send(_ context.Context, _ cluster.Peer, _ event.Message) error { return nil }

func newRouter(t *testing.T, self int, model delivery.Model) (*gin.Engine, *cluster.ManualScheduler) {
	t.Helper()
	log := zaptest.NewLogger(t)
	members, err := cluster.NewMembership(self, []string{"http://p0", "http://p1", "http://p2"})
	require.NoError(t, err)
	engine, err := delivery.NewEngine(self, members.N(), model, log)
	require.NoError(t, err)
	sched := cluster.NewManualScheduler()
	node := cluster.NewNode(engine, members, cluster.NewFanout(members, nopSender{}, sched, log), log)
	return NewRouter(NewAPI(node, log)), sched
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestPost_StampsAndReturnsClock(t *testing.T) {
	r, sched := newRouter(t, 0, delivery.Causal)

	w := do(r, http.MethodPost, "/post", `{"processId":0,"evtId":"A","author":"alice","text":"hello"}`)
	require.Equal(t, http.StatusOK, w.Code)

	ack := decode[event.Ack](t, w)
	assert.Equal(t, "ok", ack.Status)
	assert.Equal(t, "A", ack.EventID)
	assert.Equal(t, clock.VectorClock{1, 0, 0}, ack.VectorClock)
	assert.Equal(t, 2, sched.Pending(), "one share per peer")
}

func TestPost_DefaultsProcessAndEventID(t *testing.T) {
	r, _ := newRouter(t, 1, delivery.Eventual)

	w := do(r, http.MethodPost, "/post", `{"author":"bob","text":"hi"}`)
	require.Equal(t, http.StatusOK, w.Code)
	ack := decode[event.Ack](t, w)
	assert.NotEmpty(t, ack.EventID)

	v := decode[feed.View](t, do(r, http.MethodGet, "/feed", ""))
	require.True(t, v.HasPost(ack.EventID))
	assert.Equal(t, 1, v.Posts[ack.EventID][0].ProcessID)
}

func TestPost_Errors(t *testing.T) {
	r, _ := newRouter(t, 0, delivery.Causal)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"bad json", `{"text":`, http.StatusBadRequest},
		{"foreign process", `{"processId":2,"text":"x"}`, http.StatusBadRequest},
		{"first write", `{"evtId":"dup","text":"x"}`, http.StatusOK},
		{"duplicate", `{"evtId":"dup","text":"x"}`, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/post", tt.body)
			assert.Equal(t, tt.code, w.Code, w.Body.String())
			if tt.code != http.StatusOK {
				assert.Contains(t, decode[map[string]string](t, w), "error")
			}
		})
	}
}

func TestShare_BuffersUntilParent(t *testing.T) {
	r, _ := newRouter(t, 2, delivery.Causal)

	reply := `{"processId":1,"evtId":"B","parentEvtId":"A","author":"bob","text":"reply","vectorClock":[1,1,0]}`
	w := do(r, http.MethodPost, "/share", reply)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, event.Ack{Status: "ok", EventID: "B"}, decode[event.Ack](t, w))

	s := decode[feed.Summary](t, do(r, http.MethodGet, "/status", ""))
	assert.Equal(t, 1, s.BufferSize)
	assert.Zero(t, s.Applied)

	post := `{"processId":0,"evtId":"A","author":"alice","text":"post","vectorClock":[1,0,0]}`
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/share", post).Code)

	s = decode[feed.Summary](t, do(r, http.MethodGet, "/status", ""))
	assert.Zero(t, s.BufferSize)
	assert.Equal(t, 2, s.Applied)
	assert.Zero(t, s.Orphans)
	assert.Equal(t, clock.VectorClock{1, 1, 0}, s.Clock)
}

func TestShare_Errors(t *testing.T) {
	r, _ := newRouter(t, 2, delivery.Causal)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/share", `nope`).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/share", `{"processId":0,"text":"no id"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/share", `{"evtId":"x","vectorClock":"soon"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/share", `{"processId":0,"evtId":"neg","vectorClock":[-1,0,0]}`).Code)

	// Decodable but unusable clocks still go through, unchecked.
	w := do(r, http.MethodPost, "/share", `{"processId":0,"evtId":"short","text":"t","vectorClock":[4,4]}`)
	require.Equal(t, http.StatusOK, w.Code)
	v := decode[feed.View](t, do(r, http.MethodGet, "/feed", ""))
	assert.True(t, v.HasPost("short"))
	assert.Equal(t, clock.VectorClock{0, 0, 0}, v.Clock)
}

func TestFeedText(t *testing.T) {
	r, _ := newRouter(t, 2, delivery.Eventual)
	do(r, http.MethodPost, "/share", `{"processId":1,"evtId":"bbbb1111","parentEvtId":"aaaa0000","author":"bob","text":"reply"}`)

	w := do(r, http.MethodGet, "/feed/text", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain"))
	body := w.Body.String()
	assert.Contains(t, body, "--- FEED (P2 | Model: EC | Buffer: 0 | VLC: [0, 0, 0]) ---")
	assert.Contains(t, body, "[ORPHAN] REPLY (bob): reply (unknown parent: aaaa)")
}

func TestMembers(t *testing.T) {
	r, _ := newRouter(t, 1, delivery.Causal)

	var body struct {
		Self    int            `json:"self"`
		Members []cluster.Peer `json:"members"`
	}
	w := do(r, http.MethodGet, "/cluster/members", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Self)
	assert.Len(t, body.Members, 3)
}

func TestMiddleware(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := zap.New(core)

	r := gin.New()
	r.Use(Recovery(log), Logger(log))
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", bytes.NewReader(nil)))
	assert.Equal(t, http.StatusNoContent, w.Code)

	reqs := logs.FilterMessage("request").All()
	require.NotEmpty(t, reqs)
	last := reqs[len(reqs)-1].ContextMap()
	assert.Equal(t, "/ok", last["path"])
	assert.EqualValues(t, http.StatusNoContent, last["status"])
}
