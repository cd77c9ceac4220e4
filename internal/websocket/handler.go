package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"
)

// TopicFunc resolves the topic for an authenticated request. ok is false
// when the caller has nothing to listen to.
type TopicFunc func(r *http.Request) (topic string, ok bool, err error)

// HandleSubscribe upgrades the request to a WebSocket and streams messages
// for the caller's topic until the connection closes.
func HandleSubscribe(hub *Hub, topicFor TopicFunc, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		topic, ok, err := topicFor(r)
		if err != nil {
			logger.Error("websocket: resolve topic", "error", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true, // API clients connect from any origin
		})
		if err != nil {
			logger.Warn("websocket: accept", "error", err)
			return
		}
		defer conn.CloseNow()

		NewClient(hub, conn, topic).Run(r.Context())
	}
}
