package test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/quay/claircore/toolkit/log"
)

// Install makes the default [slog.Logger] route through a [ctxHandler].
var install = sync.OnceFunc(func() {
	slog.SetDefault(slog.New(ctxHandler(nil)))
})

// Wd and modPrefix are used to shorten "source" attributes.
var (
	wd = sync.OnceValue(func() string {
		dir, err := os.Getwd()
		if err != nil {
			panic(err)
		}
		return dir
	})
	modPrefix = sync.OnceValue(func() string {
		if info, ok := debug.ReadBuildInfo(); ok {
			return info.Main.Path + "/"
		}
		return ""
	})
)

type handlerKey struct{}

// CtxHandler is a [slog.Handler] that forwards to the Handler stored in the
// record's [context.Context], if any. Calls to WithAttrs and WithGroup are
// replayed onto that Handler.
//
// This lets parallel tests share the default Logger but keep their output
// separate.
type ctxHandler []func(slog.Handler) slog.Handler

var _ slog.Handler = ctxHandler(nil)

func (h ctxHandler) target(ctx context.Context) (slog.Handler, bool) {
	t, ok := ctx.Value(handlerKey{}).(slog.Handler)
	return t, ok
}

// Enabled implements [slog.Handler].
func (h ctxHandler) Enabled(ctx context.Context, l slog.Level) bool {
	t, ok := h.target(ctx)
	return ok && t.Enabled(ctx, l)
}

// Handle implements [slog.Handler].
func (h ctxHandler) Handle(ctx context.Context, r slog.Record) error {
	t, ok := h.target(ctx)
	if !ok {
		return nil
	}
	for _, f := range h {
		t = f(t)
	}
	if v, ok := ctx.Value(log.AttrsKey).(slog.Value); ok {
		r.AddAttrs(v.Group()...)
	}
	return t.Handle(ctx, r)
}

// WithAttrs implements [slog.Handler].
func (h ctxHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return append(h[:len(h):len(h)], func(h slog.Handler) slog.Handler {
		return h.WithAttrs(attrs)
	})
}

// WithGroup implements [slog.Handler].
func (h ctxHandler) WithGroup(name string) slog.Handler {
	return append(h[:len(h):len(h)], func(h slog.Handler) slog.Handler {
		return h.WithGroup(name)
	})
}

// Logging returns a [context.Context] that's set up to make the default
// [slog.Logger] write to the provided [testing.TB]'s output.
func Logging(t testing.TB, parent ...context.Context) context.Context {
	install()
	ctx := context.Background()
	if len(parent) > 0 {
		ctx = parent[0]
	}
	start := time.Now()
	h := slog.NewTextHandler(t.Output(), &slog.HandlerOptions{
		AddSource: true,
		Level:     slog.LevelDebug,
		ReplaceAttr: func(g []string, a slog.Attr) slog.Attr {
			if g != nil {
				return a
			}
			switch a.Key {
			case slog.TimeKey:
				return slog.String(slog.TimeKey, "+"+time.Since(start).String())
			case slog.SourceKey:
				return slog.String(slog.SourceKey, shortSource(a.Value.Any().(*slog.Source)))
			}
			return a
		},
	})
	return context.WithValue(ctx, handlerKey{}, h)
}

func shortSource(src *slog.Source) string {
	if src.Function != "" {
		return strings.TrimPrefix(src.Function, modPrefix())
	}
	f := src.File
	if r, err := filepath.Rel(wd(), f); err == nil && r != "" {
		f = r
	}
	return fmt.Sprintf("%s:%d", f, src.Line)
}
