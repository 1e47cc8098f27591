package devtool

import (
	"github.com/BaSui01/testflow/browser/breakpoint"
	"github.com/BaSui01/testflow/browser/steplog"
)

// MessageType 消息类型
type MessageType string

// 发往 devtool 的消息
const (
	TypeHighlight MessageType = "highlight"
	TypeStepStart MessageType = "step.start"
	TypeStepEnd   MessageType = "step.end"
	TypeStepFile  MessageType = "step.file"
	TypeSuspended MessageType = "suspended"
	TypePong      MessageType = "pong"
)

// 来自 devtool 的命令
const (
	TypeBreakpointSet     MessageType = "breakpoint.set"
	TypeBreakpointRelease MessageType = "breakpoint.release"
	TypePing              MessageType = "ping"
)

// Message 是 devtool 通道上的一帧 JSON 文本。
type Message struct {
	Type       MessageType            `json:"type"`
	SessionID  string                 `json:"session_id,omitempty"`
	Selector   string                 `json:"selector,omitempty"`
	Phase      breakpoint.Phase       `json:"phase,omitempty"`
	Enabled    *bool                  `json:"enabled,omitempty"`
	ID         string                 `json:"id,omitempty"`
	Message    string                 `json:"message,omitempty"`
	Path       string                 `json:"path,omitempty"`
	LogType    steplog.LogType        `json:"log_type,omitempty"`
	Step       *steplog.Step          `json:"step,omitempty"`
	Suspension *breakpoint.Suspension `json:"suspension,omitempty"`
}
