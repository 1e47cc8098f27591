package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	sessionIDKey contextKey = "session_id"
	stepIDKey    contextKey = "step_id"
	actionKey    contextKey = "action"
)

// WithSessionID 设置浏览器会话 ID
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// SessionID 获取浏览器会话 ID
func SessionID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(sessionIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithStepID 设置当前打开的步骤 ID
func WithStepID(ctx context.Context, stepID string) context.Context {
	return context.WithValue(ctx, stepIDKey, stepID)
}

// StepID 获取当前打开的步骤 ID
func StepID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(stepIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithAction 设置当前执行的动作名
func WithAction(ctx context.Context, action string) context.Context {
	return context.WithValue(ctx, actionKey, action)
}

// Action 获取当前执行的动作名
func Action(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(actionKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
