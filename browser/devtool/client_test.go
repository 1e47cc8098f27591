package devtool

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/testflow/browser/breakpoint"
	"github.com/BaSui01/testflow/browser/steplog"
	"github.com/BaSui01/testflow/internal/ctxkeys"
	"github.com/BaSui01/testflow/internal/metrics"
)

// --- Helpers ---

// panel is a fake devtool UI: it records every frame it receives and lets the
// test push commands over the accepted connection.
type panel struct {
	srv      *httptest.Server
	received chan Message
	conns    chan *websocket.Conn
}

func newPanel(t *testing.T) *panel {
	t.Helper()
	p := &panel{
		received: make(chan Message, 32),
		conns:    make(chan *websocket.Conn, 1),
	}
	p.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		p.conns <- conn

		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			var msg Message
			if json.Unmarshal(data, &msg) == nil {
				p.received <- msg
			}
		}
	}))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *panel) url() string {
	return "ws" + strings.TrimPrefix(p.srv.URL, "http")
}

func (p *panel) conn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-p.conns:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("client never connected")
		return nil
	}
}

func (p *panel) next(t *testing.T) Message {
	t.Helper()
	select {
	case m := <-p.received:
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
		return Message{}
	}
}

func push(t *testing.T, conn *websocket.Conn, msg Message) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func dial(t *testing.T, p *panel, opts ...Option) *Client {
	t.Helper()
	c, err := Dial(context.Background(), p.url(), 5*time.Second, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func boolPtr(b bool) *bool { return &b }

// --- Tests ---

func TestClient_ImplementsStepLogger(t *testing.T) {
	var _ steplog.Logger = (*Client)(nil)
}

func TestClient_PushesHighlightAndSteps(t *testing.T) {
	p := newPanel(t)
	reg := prometheus.NewRegistry()
	m := metrics.NewCollectorWithRegistry("tf", reg, nil)
	c := dial(t, p, WithMetrics(m), WithLogger(zaptest.NewLogger(t)))
	p.conn(t)

	ctx := context.Background()
	require.NoError(t, c.Highlight(ctx, "s1", "#login"))
	got := p.next(t)
	assert.Equal(t, TypeHighlight, got.Type)
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, "#login", got.Selector)

	step := steplog.Step{ID: "step-1", SessionID: "s1", Action: "click", Message: "Click #login"}
	c.StartStep(ctx, step)
	got = p.next(t)
	assert.Equal(t, TypeStepStart, got.Type)
	require.NotNil(t, got.Step)
	assert.Equal(t, "Click #login", got.Step.Message)

	step.Outcome = steplog.OutcomePassed
	c.EndStep(ctx, step)
	got = p.next(t)
	assert.Equal(t, TypeStepEnd, got.Type)
	assert.Equal(t, steplog.OutcomePassed, got.Step.Outcome)

	fileCtx := ctxkeys.WithStepID(ctx, "step-1")
	c.File(fileCtx, "/tmp/a.png", steplog.LogTypeScreenshot)
	got = p.next(t)
	assert.Equal(t, TypeStepFile, got.Type)
	assert.Equal(t, "step-1", got.ID)
	assert.Equal(t, "/tmp/a.png", got.Path)

	n, err := testutil.GatherAndCount(reg, "tf_devtool_messages_total")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestClient_NotifySuspended(t *testing.T) {
	p := newPanel(t)
	c := dial(t, p)
	p.conn(t)

	c.NotifySuspended(breakpoint.Suspension{ID: "sus-1", Phase: breakpoint.PhaseAfter}, "Click #go")
	got := p.next(t)
	assert.Equal(t, TypeSuspended, got.Type)
	assert.Equal(t, "sus-1", got.ID)
	assert.Equal(t, breakpoint.PhaseAfter, got.Phase)
	assert.Equal(t, "Click #go", got.Message)
	require.NotNil(t, got.Suspension)
}

func TestClient_RemoteBreakpointCommands(t *testing.T) {
	p := newPanel(t)
	ctrl := breakpoint.NewController(nil)
	dial(t, p, WithBreakpoints(ctrl))
	conn := p.conn(t)

	push(t, conn, Message{Type: TypeBreakpointSet, Phase: breakpoint.PhaseBefore, Enabled: boolPtr(true)})
	require.Eventually(t, func() bool { return ctrl.Enabled(breakpoint.PhaseBefore) }, 5*time.Second, 10*time.Millisecond)

	done := make(chan error, 2)
	go func() { done <- ctrl.AwaitBefore(context.Background(), nil) }()
	go func() { done <- ctrl.AwaitBefore(context.Background(), nil) }()
	require.Eventually(t, func() bool { return len(ctrl.Suspended()) == 2 }, 5*time.Second, 10*time.Millisecond)

	first := ctrl.Suspended()[0]
	push(t, conn, Message{Type: TypeBreakpointRelease, ID: first.ID})
	require.NoError(t, <-done)
	require.Eventually(t, func() bool { return len(ctrl.Suspended()) == 1 }, 5*time.Second, 10*time.Millisecond)

	push(t, conn, Message{Type: TypeBreakpointRelease})
	require.NoError(t, <-done)

	push(t, conn, Message{Type: TypeBreakpointSet, Phase: breakpoint.PhaseAfter, Enabled: boolPtr(true)})
	require.Eventually(t, func() bool { return ctrl.Enabled(breakpoint.PhaseAfter) }, 5*time.Second, 10*time.Millisecond)
	push(t, conn, Message{Type: TypeBreakpointSet, Phase: breakpoint.PhaseBefore, Enabled: boolPtr(false)})
	require.Eventually(t, func() bool { return !ctrl.Enabled(breakpoint.PhaseBefore) }, 5*time.Second, 10*time.Millisecond)
}

func TestClient_AnswersPing(t *testing.T) {
	p := newPanel(t)
	dial(t, p)
	conn := p.conn(t)

	push(t, conn, Message{Type: TypePing, ID: "42"})
	got := p.next(t)
	assert.Equal(t, TypePong, got.Type)
	assert.Equal(t, "42", got.ID)
}

func TestClient_Close(t *testing.T) {
	p := newPanel(t)
	c, err := Dial(context.Background(), p.url(), time.Second)
	require.NoError(t, err)
	p.conn(t)

	_ = c.Close()
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("read loop did not exit")
	}
	assert.ErrorIs(t, c.Highlight(context.Background(), "s", "#x"), ErrClosed)
	assert.NoError(t, c.Close())

	// sinks absorb the closed connection
	c.StartStep(context.Background(), steplog.Step{ID: "x"})
	c.NotifySuspended(breakpoint.Suspension{ID: "y"}, "m")
}

func TestClient_PanelDisconnectEndsReadLoop(t *testing.T) {
	p := newPanel(t)
	c := dial(t, p)
	conn := p.conn(t)

	_ = conn.Close(websocket.StatusGoingAway, "bye")
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("read loop did not exit after panel disconnect")
	}
}

func TestDial_Unreachable(t *testing.T) {
	_, err := Dial(context.Background(), "ws://127.0.0.1:1/devtool", 500*time.Millisecond)
	assert.ErrorContains(t, err, "devtool dial")
}
