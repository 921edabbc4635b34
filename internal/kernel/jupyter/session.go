package jupyter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/nbapi/internal/kernel"
)

type session struct {
	kernel    *Kernel
	kernelID  string
	sessionID string

	mu     sync.Mutex
	conn   *websocket.Conn
	broken error
	closed bool
}

func (s *session) ExecuteCell(ctx context.Context, index int, source string) (*kernel.Result, error) {
	return s.execute(ctx, index, source)
}

func (s *session) ExecuteSource(ctx context.Context, source string) (*kernel.Result, error) {
	return s.execute(ctx, -1, source)
}

// Close disconnects and deletes the kernel.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	connErr := s.conn.Close()

	if err := s.kernel.deleteKernel(s.kernelID); err != nil {
		return err
	}
	s.kernel.logger.Info("Stopped kernel", zap.String("kernel_id", s.kernelID))
	return connErr
}

func (s *session) execute(ctx context.Context, index int, source string) (*kernel.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return nil, kernel.ErrSessionClosed
	case s.broken != nil:
		return nil, fmt.Errorf("kernel connection lost: %w", s.broken)
	}

	start := time.Now()
	req, err := s.request(source)
	if err != nil {
		return nil, err
	}

	// A cancelled execution interrupts the kernel and unblocks the reader. The
	// connection cannot be read again afterwards, so the session is marked broken.
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		s.kernel.interrupt(s.kernelID)
		_ = s.conn.SetReadDeadline(time.Now())
		close(fired)
	})

	result := &kernel.Result{Index: index}
	var reply *executeReply
	err = s.conn.WriteMessage(websocket.TextMessage, req.payload)
	if err == nil {
		reply, err = s.collect(req.msgID, result)
	}
	if !stop() {
		<-fired
		if err == nil {
			_ = s.conn.SetReadDeadline(time.Time{})
		}
	}
	if err != nil {
		s.broken = err
		if cause := context.Cause(ctx); cause != nil {
			return nil, cause
		}
		return nil, err
	}
	result.Elapsed = time.Since(start)

	switch reply.Status {
	case "ok":
		return result, nil
	case "error":
		return nil, &kernel.ExecutionError{Name: reply.Ename, Value: reply.Evalue, Traceback: reply.Traceback}
	default:
		return nil, &kernel.ExecutionError{Name: reply.Status}
	}
}

type outgoing struct {
	msgID   string
	payload []byte
}

func (s *session) request(source string) (*outgoing, error) {
	content, err := sonic.Marshal(executeRequest{
		Code:            source,
		StoreHistory:    true,
		UserExpressions: map[string]interface{}{},
		StopOnError:     true,
	})
	if err != nil {
		return nil, err
	}

	msg := message{
		Header:   newHeader(s.sessionID, "execute_request"),
		Metadata: map[string]interface{}{},
		Content:  content,
		Channel:  "shell",
		Buffers:  []interface{}{},
	}
	payload, err := sonic.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return &outgoing{msgID: msg.Header.MsgID, payload: payload}, nil
}

// collect reads messages answering msgID until the reply and the idle status
// have both arrived, appending outputs to result.
func (s *session) collect(msgID string, result *kernel.Result) (*executeReply, error) {
	var reply *executeReply
	var lastError *executeReply
	idle := false

	for reply == nil || !idle {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return nil, err
		}

		var msg message
		if err := sonic.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode kernel message: %w", err)
		}
		if msg.ParentHeader.MsgID != msgID {
			continue
		}

		switch msg.Header.MsgType {
		case "execute_reply":
			reply = &executeReply{}
			if err := sonic.Unmarshal(msg.Content, reply); err != nil {
				return nil, fmt.Errorf("decode execute_reply: %w", err)
			}
		case "status":
			var st statusContent
			if err := sonic.Unmarshal(msg.Content, &st); err == nil && st.ExecutionState == "idle" {
				idle = true
			}
		case "stream":
			var st streamContent
			if err := sonic.Unmarshal(msg.Content, &st); err == nil {
				appendStream(result, st.Name, st.Text)
			}
		case "execute_result", "display_data":
			var dc dataContent
			if err := sonic.Unmarshal(msg.Content, &dc); err == nil {
				result.Outputs = append(result.Outputs, kernel.Output{
					Kind: kernel.OutputKind(msg.Header.MsgType),
					Data: s.renderData(dc.Data),
				})
			}
		case "error":
			lastError = &executeReply{Status: "error"}
			if err := sonic.Unmarshal(msg.Content, lastError); err == nil {
				result.Outputs = append(result.Outputs, kernel.Output{
					Kind: kernel.OutputError,
					Text: lastError.Ename + ": " + lastError.Evalue,
				})
			}
		}
	}

	if reply.Status == "error" && reply.Ename == "" && lastError != nil {
		reply.Ename, reply.Evalue, reply.Traceback = lastError.Ename, lastError.Evalue, lastError.Traceback
	}
	return reply, nil
}

func appendStream(result *kernel.Result, name, text string) {
	if n := len(result.Outputs); n > 0 {
		last := &result.Outputs[n-1]
		if last.Kind == kernel.OutputStream && last.Name == name {
			last.Text += text
			return
		}
	}
	result.Outputs = append(result.Outputs, kernel.Output{Kind: kernel.OutputStream, Name: name, Text: text})
}

// renderData flattens a MIME bundle to strings. Structured values are kept as
// JSON and HTML is sanitised.
func (s *session) renderData(data map[string]interface{}) map[string]string {
	out := make(map[string]string, len(data))
	for mimetype, v := range data {
		var text string
		switch val := v.(type) {
		case string:
			text = val
		case []interface{}:
			if !strings.HasPrefix(mimetype, "text/") {
				b, err := sonic.Marshal(val)
				if err != nil {
					continue
				}
				text = string(b)
				break
			}
			// Some kernels send multi-line text as a list of lines.
			var sb strings.Builder
			for _, line := range val {
				if str, ok := line.(string); ok {
					sb.WriteString(str)
				}
			}
			text = sb.String()
		default:
			b, err := sonic.Marshal(val)
			if err != nil {
				continue
			}
			text = string(b)
		}
		if mimetype == "text/html" {
			text = s.kernel.policy.Sanitize(text)
		}
		out[mimetype] = text
	}
	return out
}
