package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gorilla/websocket"
)

// PanicHandler writes the response for a request whose handler panicked
type PanicHandler func(w http.ResponseWriter, r *http.Request, err any)

// Recovery logs panics and hands the request to handler. Websocket upgrade
// requests are only logged: once the connection is hijacked nothing can be
// written to it over HTTP.
func Recovery(logger *slog.Logger, handler PanicHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				err := recover()
				if err == nil {
					return
				}

				upgrade := websocket.IsWebSocketUpgrade(r)
				logger.Error("panic recovered",
					slog.Any("error", err),
					slog.String("stack", string(debug.Stack())),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Bool("websocket", upgrade),
				)

				if !upgrade {
					handler(w, r, err)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
