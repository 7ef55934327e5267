package network

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vidadoble/juego/server/internal/domain/activity"
	"github.com/vidadoble/juego/server/internal/domain/observer"
	"github.com/vidadoble/juego/server/internal/platform/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 1024
)

// PlayerCommand represents an incoming command from the frontend.
type PlayerCommand struct {
	Type    string          `json:"type"`     // "START_ACTIVITY", "PAUSE_ACTIVITY", ...
	ActorID string          `json:"actor_id"` // Who triggered the command
	Payload json.RawMessage `json:"payload"`  // Command-specific data
}

// Client represents an active WebSocket connection.
type Client struct {
	hub             *Hub
	conn            *websocket.Conn
	send            chan []byte
	lastCommandTime time.Time
}

// NewClient creates a new WebSocket client and returns it.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 256),
	}
}

// Register adds the client to the hub.
func (c *Client) Register() {
	c.hub.register <- c
}

// ReadPump pumps commands from the websocket connection into the engine.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error: %v", err)
			}
			break
		}
		metrics.Get().RecordWSMessage(true)

		var cmd PlayerCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.hub.logger.Error("Failed to parse PlayerCommand from WebSocket: " + err.Error())
			continue
		}

		c.handleCommand(cmd)
	}
}

// WritePump pumps broadcast messages to the websocket connection.
func (c *Client) WritePump() {
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
				metrics.Get().RecordWSError()
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

func (c *Client) handleCommand(cmd PlayerCommand) {
	// Light rate limit: commands are player intents, not input events.
	if time.Since(c.lastCommandTime) < 250*time.Millisecond {
		c.hub.logger.Warn("Rate limit exceeded for command from " + cmd.ActorID)
		return
	}
	c.lastCommandTime = time.Now()

	if cmd.ActorID == "" {
		c.hub.logger.Warn("Command without actor_id ignored")
		return
	}

	switch cmd.Type {
	case "START_ACTIVITY":
		c.handleStartActivity(cmd)
	case "PAUSE_ACTIVITY":
		c.handleActivityRef(cmd, c.hub.engine.PauseActivity)
	case "RESUME_ACTIVITY":
		c.handleActivityRef(cmd, c.hub.engine.ResumeActivity)
	case "END_ACTIVITY":
		c.handleEndActivity(cmd)
	case "PERFORMANCE_SAMPLE":
		c.handlePerformanceSample(cmd)
	case "MOVE":
		c.handleMove(cmd)
	default:
		c.hub.logger.Warn("Unknown PlayerCommand type: " + cmd.Type)
	}
}

func (c *Client) handleStartActivity(cmd PlayerCommand) {
	var parsed struct {
		Kind            string  `json:"kind"`
		RiskTag         string  `json:"risk_tag"`
		DurationSeconds float64 `json:"duration_seconds"`
	}
	if err := json.Unmarshal(cmd.Payload, &parsed); err != nil {
		c.hub.logger.Warn("Failed to parse START_ACTIVITY payload for " + cmd.ActorID)
		return
	}

	id := c.hub.engine.CreateActivity(cmd.ActorID, activity.Kind(parsed.Kind), parsed.RiskTag, parsed.DurationSeconds)
	c.hub.logger.Event("PLAYER_START_ACTIVITY", cmd.ActorID, "id="+id+" kind="+parsed.Kind)
}

func (c *Client) handleActivityRef(cmd PlayerCommand, apply func(string)) {
	var parsed struct {
		ActivityID string `json:"activity_id"`
	}
	if err := json.Unmarshal(cmd.Payload, &parsed); err != nil || parsed.ActivityID == "" {
		c.hub.logger.Warn("Failed to parse activity reference for " + cmd.ActorID)
		return
	}
	apply(parsed.ActivityID)
}

func (c *Client) handleEndActivity(cmd PlayerCommand) {
	var parsed struct {
		ActivityID string `json:"activity_id"`
	}
	if err := json.Unmarshal(cmd.Payload, &parsed); err != nil || parsed.ActivityID == "" {
		c.hub.logger.Warn("Failed to parse END_ACTIVITY payload for " + cmd.ActorID)
		return
	}
	result := c.hub.engine.EndActivity(parsed.ActivityID)
	if out, err := json.Marshal(result); err == nil {
		select {
		case c.send <- out:
		default:
		}
	}
}

func (c *Client) handlePerformanceSample(cmd PlayerCommand) {
	var parsed struct {
		ActivityID string  `json:"activity_id"`
		Sample     float64 `json:"sample"`
	}
	if err := json.Unmarshal(cmd.Payload, &parsed); err != nil || parsed.ActivityID == "" {
		c.hub.logger.Warn("Failed to parse PERFORMANCE_SAMPLE payload for " + cmd.ActorID)
		return
	}
	c.hub.engine.RecordPerformanceSample(parsed.ActivityID, parsed.Sample)
}

func (c *Client) handleMove(cmd PlayerCommand) {
	var parsed struct {
		LocationID string        `json:"location_id"`
		Position   observer.Vec3 `json:"position"`
	}
	if err := json.Unmarshal(cmd.Payload, &parsed); err != nil {
		c.hub.logger.Warn("Failed to parse MOVE payload for " + cmd.ActorID)
		return
	}
	c.hub.engine.MoveActor(cmd.ActorID, parsed.LocationID, parsed.Position)
}
