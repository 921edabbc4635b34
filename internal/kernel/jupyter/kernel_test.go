package jupyter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/nbapi/internal/kernel"
	"github.com/GriffinCanCode/nbapi/tests/helpers/testutil"
)

// gateway is a minimal kernel gateway. Code is interpreted by a few fixed rules:
// "fail" raises, "hang" never replies, "html" displays markup, anything else
// echoes the code to stdout and returns a plain-text result.
type gateway struct {
	mu         sync.Mutex
	started    []string
	deleted    []string
	interrupts int
	auth       []string
	upgrader   websocket.Upgrader
}

func newGateway(t *testing.T) (*gateway, *httptest.Server) {
	g := &gateway{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/kernels", g.create)
	mux.HandleFunc("/api/kernels/", g.kernel)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return g, srv
}

func (g *gateway) create(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.auth = append(g.auth, r.Header.Get("Authorization"))
	var body struct {
		Name string `json:"name"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Name == "missing" {
		http.Error(w, `{"message": "No such kernel"}`, http.StatusNotFound)
		return
	}
	g.started = append(g.started, body.Name)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]string{"id": "k-1", "name": body.Name})
}

func (g *gateway) kernel(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/kernels/")
	switch {
	case strings.HasSuffix(rest, "/channels"):
		g.channels(w, r)
	case strings.HasSuffix(rest, "/interrupt"):
		g.mu.Lock()
		g.interrupts++
		g.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodDelete:
		g.mu.Lock()
		g.deleted = append(g.deleted, rest)
		g.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func (g *gateway) channels(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		var req message
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		var content executeRequest
		_ = json.Unmarshal(req.Content, &content)

		send := func(msgType string, body interface{}) {
			raw, _ := json.Marshal(body)
			_ = conn.WriteJSON(message{
				Header:       newHeader(req.Header.Session, msgType),
				ParentHeader: req.Header,
				Content:      raw,
				Channel:      "iopub",
			})
		}

		// Messages for other requests must be ignored.
		_ = conn.WriteJSON(message{
			Header:       newHeader("other", "stream"),
			ParentHeader: header{MsgID: "someone-else"},
			Content:      json.RawMessage(`{"name": "stdout", "text": "noise"}`),
		})

		send("status", statusContent{ExecutionState: "busy"})
		switch content.Code {
		case "hang":
			continue
		case "fail":
			send("error", map[string]interface{}{"ename": "ValueError", "evalue": "bad", "traceback": []string{"line 1"}})
			send("execute_reply", map[string]interface{}{"status": "error"})
		case "html":
			send("display_data", map[string]interface{}{"data": map[string]interface{}{
				"text/html":        `<b>ok</b><script>alert(1)</script>`,
				"application/json": map[string]interface{}{"a": 1},
			}})
			send("execute_reply", map[string]interface{}{"status": "ok"})
		default:
			send("stream", streamContent{Name: "stdout", Text: content.Code})
			send("stream", streamContent{Name: "stdout", Text: "\n"})
			send("execute_result", map[string]interface{}{"data": map[string]interface{}{
				"text/plain": []string{"len=", "ok"},
			}})
			send("execute_reply", map[string]interface{}{"status": "ok"})
		}
		send("status", statusContent{ExecutionState: "idle"})
	}
}

func start(t *testing.T, srv *httptest.Server, kernelName string) (kernel.Session, error) {
	t.Helper()
	k, err := New(Config{GatewayURL: srv.URL, Token: "tok", StartTimeout: 5 * time.Second}, nil)
	require.NoError(t, err)

	doc := testutil.NewDocument(t, testutil.CodeCell{ID: "a", Source: "x = 1"})
	doc.Kernelspec.Name = kernelName
	return k.Start(context.Background(), doc)
}

func TestExecute(t *testing.T) {
	g, srv := newGateway(t)
	s, err := start(t, srv, "python3")
	require.NoError(t, err)

	result, err := s.ExecuteCell(context.Background(), 3, "print(1)")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Index)
	require.Len(t, result.Outputs, 2)
	assert.Equal(t, kernel.Output{Kind: kernel.OutputStream, Name: "stdout", Text: "print(1)\n"}, result.Outputs[0])
	assert.Equal(t, "len=ok", result.Outputs[1].Data["text/plain"])

	require.NoError(t, s.Close())
	assert.Equal(t, []string{"python3"}, g.started)
	assert.Equal(t, []string{"k-1"}, g.deleted)
	assert.Equal(t, []string{"token tok"}, g.auth)
}

func TestExecutionError(t *testing.T) {
	_, srv := newGateway(t)
	s, err := start(t, srv, "python3")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.ExecuteSource(context.Background(), "fail")
	var execErr *kernel.ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, "ValueError", execErr.Name)
	assert.Equal(t, "bad", execErr.Value)
	assert.Equal(t, []string{"line 1"}, execErr.Traceback)

	// The session survives kernel-side errors.
	_, err = s.ExecuteSource(context.Background(), "ok")
	assert.NoError(t, err)
}

func TestHTMLIsSanitised(t *testing.T) {
	_, srv := newGateway(t)
	s, err := start(t, srv, "python3")
	require.NoError(t, err)
	defer s.Close()

	result, err := s.ExecuteSource(context.Background(), "html")
	require.NoError(t, err)
	require.Len(t, result.Outputs, 1)
	assert.Equal(t, "<b>ok</b>", result.Outputs[0].Data["text/html"])
	assert.JSONEq(t, `{"a": 1}`, result.Outputs[0].Data["application/json"])
}

func TestCancelInterruptsKernel(t *testing.T) {
	g, srv := newGateway(t)
	s, err := start(t, srv, "python3")
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = s.ExecuteSource(ctx, "hang")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	g.mu.Lock()
	assert.Equal(t, 1, g.interrupts)
	g.mu.Unlock()

	_, err = s.ExecuteSource(context.Background(), "ok")
	assert.Error(t, err)
}

func TestStartFailure(t *testing.T) {
	_, srv := newGateway(t)
	_, err := start(t, srv, "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestClosedSession(t *testing.T) {
	_, srv := newGateway(t)
	s, err := start(t, srv, "python3")
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.ExecuteSource(context.Background(), "ok")
	assert.True(t, errors.Is(err, kernel.ErrSessionClosed))
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New(Config{GatewayURL: "ftp://gateway"}, nil)
	assert.Error(t, err)
}
