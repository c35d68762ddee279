package handler

import "context"

type contextKey string

const sessionIdKey contextKey = "sessionId"

func WithSessionId(ctx context.Context, sessionId string) context.Context {
	return context.WithValue(ctx, sessionIdKey, sessionId)
}

// SessionIdFromContext reports the originating session, if the request came
// from a socket.
func SessionIdFromContext(ctx context.Context) (string, bool) {
	sessionId, ok := ctx.Value(sessionIdKey).(string)

	return sessionId, ok && sessionId != ""
}
