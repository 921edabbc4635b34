package jupyter

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const protocolVersion = "5.3"

type header struct {
	MsgID    string `json:"msg_id"`
	MsgType  string `json:"msg_type"`
	Session  string `json:"session"`
	Username string `json:"username"`
	Date     string `json:"date"`
	Version  string `json:"version"`
}

// message is the JSON envelope used on the gateway's channels websocket.
type message struct {
	Header       header                 `json:"header"`
	ParentHeader header                 `json:"parent_header"`
	Metadata     map[string]interface{} `json:"metadata"`
	Content      json.RawMessage        `json:"content"`
	Channel      string                 `json:"channel"`
	Buffers      []interface{}          `json:"buffers"`
}

type executeRequest struct {
	Code            string                 `json:"code"`
	Silent          bool                   `json:"silent"`
	StoreHistory    bool                   `json:"store_history"`
	UserExpressions map[string]interface{} `json:"user_expressions"`
	AllowStdin      bool                   `json:"allow_stdin"`
	StopOnError     bool                   `json:"stop_on_error"`
}

type executeReply struct {
	Status    string   `json:"status"`
	Ename     string   `json:"ename"`
	Evalue    string   `json:"evalue"`
	Traceback []string `json:"traceback"`
}

type streamContent struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

type dataContent struct {
	Data map[string]interface{} `json:"data"`
}

type statusContent struct {
	ExecutionState string `json:"execution_state"`
}

type kernelModel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func newHeader(session, msgType string) header {
	return header{
		MsgID:    uuid.NewString(),
		MsgType:  msgType,
		Session:  session,
		Username: "nbapi",
		Date:     time.Now().UTC().Format(time.RFC3339Nano),
		Version:  protocolVersion,
	}
}
