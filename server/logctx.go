package server

import (
	"context"
	"log/slog"
)

// LogHandler adds the request attributes stored in the context to every
// record.
type LogHandler struct {
	slog.Handler
}

func (h LogHandler) Handle(ctx context.Context, r slog.Record) error {
	if rd, ok := ctx.Value(requestDataKey{}).(*requestData); ok {
		r.AddAttrs(slog.Group("req",
			slog.String("id", rd.RequestID),
			slog.String("method", rd.Method),
			slog.String("path", rd.Path),
			slog.String("remote_addr", rd.RemoteAddr),
		))
	}
	if id, ok := ctx.Value(conversationKey{}).(string); ok {
		r.AddAttrs(slog.String("conversation", id))
	}
	return h.Handler.Handle(ctx, r)
}

func (h LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return LogHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h LogHandler) WithGroup(name string) slog.Handler {
	return LogHandler{Handler: h.Handler.WithGroup(name)}
}

type requestDataKey struct{}

type requestData struct {
	RequestID  string
	Method     string
	Path       string
	RemoteAddr string
}

func withRequestData(ctx context.Context, data *requestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, data)
}

type conversationKey struct{}

func withConversation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, conversationKey{}, id)
}
