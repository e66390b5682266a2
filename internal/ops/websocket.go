package ops

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Chiqo-ke/AlgoAgent-sub001/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamedEvents are the topics pushed to websocket clients.
var streamedEvents = []events.Event{
	events.EventSignalDetected,
	events.EventOrderSubmitted,
	events.EventOrderExecuted,
	events.EventOrderFailed,
	events.EventTradeClosed,
	events.EventKillSwitch,
	events.EventAccountSnapshot,
}

type wsEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ops: ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	// Fan in all streamed topics onto one channel; writer goroutine below is
	// the only one touching the connection.
	merged := make(chan wsEnvelope, 100)
	done := make(chan struct{})
	defer close(done)

	for _, e := range streamedEvents {
		stream, unsub := s.Bus.Subscribe(e, 100)
		defer unsub()
		go func(e events.Event, stream <-chan any) {
			for {
				select {
				case msg, ok := <-stream:
					if !ok {
						return
					}
					select {
					case merged <- wsEnvelope{Event: string(e), Data: msg}:
					case <-done:
						return
					}
				case <-done:
					return
				}
			}
		}(e, stream)
	}

	// Read pump: we never expect client messages, but reading is the only
	// way to notice a closed connection between events.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case env := <-merged:
			if err := conn.WriteJSON(env); err != nil {
				log.Printf("ops: ws write error: %v", err)
				return
			}
		case <-clientGone:
			return
		}
	}
}
