package websocket

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/stdhuman/stdhuman/internal/common/logger"
	"github.com/stdhuman/stdhuman/internal/events/bus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboards connect from arbitrary origins; the stream is read-only.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Gateway bridges the event bus to WebSocket clients: decision and
// mission events published by the services are fanned out to every
// connected dashboard.
type Gateway struct {
	hub    *Hub
	bus    bus.EventBus
	subs   []bus.Subscription
	logger *logger.Logger
}

// NewGateway creates an event gateway around the given hub.
func NewGateway(hub *Hub, eventBus bus.EventBus, log *logger.Logger) *Gateway {
	return &Gateway{
		hub:    hub,
		bus:    eventBus,
		logger: log.WithComponent("websocket-gateway"),
	}
}

// Start subscribes to the decision and mission event subjects.
func (g *Gateway) Start() error {
	for _, subject := range []string{"decision.>", "mission.>"} {
		sub, err := g.bus.Subscribe(subject, g.forward)
		if err != nil {
			g.Stop()
			return err
		}
		g.subs = append(g.subs, sub)
	}
	return nil
}

// Stop drops the bus subscriptions. Connected clients are closed by the
// hub when its context ends.
func (g *Gateway) Stop() {
	for _, sub := range g.subs {
		if err := sub.Unsubscribe(); err != nil {
			g.logger.Warn("Failed to unsubscribe", zap.Error(err))
		}
	}
	g.subs = nil
}

func (g *Gateway) forward(ctx context.Context, event *bus.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	g.hub.Broadcast(data)
	return nil
}

// HandleWS upgrades an HTTP request to a WebSocket connection
// GET /ws
func (g *Gateway) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(uuid.New().String(), conn, g.hub, g.logger)
	g.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
