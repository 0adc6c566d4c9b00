// cmd/fulfilment-gateway/main.go
package main

import (
	"context"
	"flag"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"storefront/internal/pkg/bootstrap"
	"storefront/internal/pkg/config"
	"storefront/internal/pkg/mq"
)

const (
	serviceName   = "fulfilment-gateway"
	consumerGroup = "fulfilment-gateway-group"

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 45 * time.Second
)

var (
	nodeID   = serviceName + "-" + uuid.New().String()[:8]
	upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// 工作台页面跨域访问，放开即可。
		CheckOrigin: func(r *http.Request) bool { return true },
	}
)

// Hub 维护所有活跃的工作台连接并向它们广播任务事件。
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	lock       sync.RWMutex
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
	}
}

func (h *Hub) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case client := <-h.register:
			h.lock.Lock()
			h.clients[client] = struct{}{}
			h.lock.Unlock()
			log.Info().Str("station", client.stationID).Str("node", nodeID).Msg("workstation connected")
		case client := <-h.unregister:
			h.lock.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.lock.Unlock()
			log.Info().Str("station", client.stationID).Msg("workstation disconnected")
		case message := <-h.broadcast:
			h.lock.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// 慢消费者：丢弃这条而不是阻塞整个广播。
					log.Warn().Str("station", client.stationID).Msg("dropping event for slow workstation")
				}
			}
			h.lock.RUnlock()
		}
	}
}

// Client 是一个工作台的 WebSocket 连接。
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	stationID string
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func serveWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	stationID := r.URL.Query().Get("stationId")
	if stationID == "" {
		http.Error(w, "stationId is required", http.StatusBadRequest)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	client := &Client{hub: hub, conn: conn, send: make(chan []byte, 256), stationID: stationID}
	hub.register <- client

	go client.writePump()
	go client.readPump()
}

// consumeTaskEvents 消费任务事件并转发给 Hub 广播。
func consumeTaskEvents(cfg *config.Config, hub *Hub) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		reader := mq.NewKafkaReader(cfg.Kafka.Brokers, cfg.Kafka.PackingTopic, consumerGroup)
		defer reader.Close()
		log.Info().Str("topic", cfg.Kafka.PackingTopic).Msg("task event consumer started")
		for {
			msg, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Error().Err(err).Msg("failed to read task event, retrying")
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(time.Second):
				}
				continue
			}
			hub.broadcast <- msg.Value
			if err := reader.CommitMessages(ctx, msg); err != nil {
				log.Warn().Err(err).Msg("failed to commit task event offset")
			}
		}
	}
}

func main() {
	configPath := flag.String("config", "", "path to a yaml config file")
	flag.Parse()

	bootstrap.Init(serviceName)
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	cfg.Service.Name = serviceName

	hub := newHub()

	bootstrap.StartService(cfg, bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.Service.Port,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
				serveWs(hub, w, r)
			})
		},
		Background: []func(ctx context.Context) error{
			hub.run,
			consumeTaskEvents(cfg, hub),
		},
	})
}
