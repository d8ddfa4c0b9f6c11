// ABOUTME: WebSocket transport between a voice client and its mixer
// ABOUTME: Handles connection, handshake, binary packet delivery and teardown
package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultPath is the websocket endpoint the mixer serves
	DefaultPath = "/voice"

	// DefaultHandshakeTimeout bounds the wait for server/hello
	DefaultHandshakeTimeout = 5 * time.Second

	// PacketQueueSize is the number of inbound packets buffered before drops
	PacketQueueSize = 100
)

// ErrNotConnected is returned when sending without a live mixer connection
var ErrNotConnected = errors.New("not connected to mixer")

// Config holds client configuration
type Config struct {
	ServerAddr       string
	Path             string
	ClientID         string
	Name             string
	Version          int
	DeviceInfo       DeviceInfo
	Format           AudioFormat
	EchoToServer     bool
	HandshakeTimeout time.Duration
}

// Client is a websocket connection to a mixer
type Client struct {
	config  Config
	conn    *websocket.Conn
	mu      sync.RWMutex
	writeMu sync.Mutex

	// Packets delivers inbound binary packets
	Packets chan []byte

	sessionID string
	server    ServerHello
	connected bool
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewClient creates a new mixer client
func NewClient(config Config) *Client {
	if config.Path == "" {
		config.Path = DefaultPath
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = DefaultHandshakeTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		config:    config,
		Packets:   make(chan []byte, PacketQueueSize),
		sessionID: uuid.New().String(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Connect dials the mixer and performs the handshake
func (c *Client) Connect(ctx context.Context) error {
	u := url.URL{Scheme: "ws", Host: c.config.ServerAddr, Path: c.config.Path}
	logrus.WithFields(logrus.Fields{
		"function": "Client.Connect",
		"url":      u.String(),
	}).Info("Connecting to mixer")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	if err := c.handshake(); err != nil {
		c.Close()
		return fmt.Errorf("handshake failed: %w", err)
	}

	go c.readMessages()

	return nil
}

func (c *Client) handshake() error {
	hello := ClientHello{
		ClientID:     c.config.ClientID,
		SessionID:    c.sessionID,
		Name:         c.config.Name,
		Version:      c.config.Version,
		DeviceInfo:   &c.config.DeviceInfo,
		Format:       c.config.Format,
		EchoToServer: c.config.EchoToServer,
	}
	if err := c.sendJSON(Message{Type: TypeClientHello, Payload: hello}); err != nil {
		return fmt.Errorf("failed to send client/hello: %w", err)
	}

	c.conn.SetReadDeadline(time.Now().Add(c.config.HandshakeTimeout))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read server/hello: %w", err)
	}
	c.conn.SetReadDeadline(time.Time{})

	var server ServerHello
	msgType, err := DecodeMessage(data, &server)
	if err != nil {
		return fmt.Errorf("failed to parse server/hello: %w", err)
	}
	if msgType != TypeServerHello {
		return fmt.Errorf("expected server/hello, got %s", msgType)
	}

	c.mu.Lock()
	c.server = server
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":   "Client.handshake",
		"server_id":  server.ServerID,
		"server":     server.Name,
		"session_id": c.sessionID,
	}).Info("Handshake complete with mixer")
	return nil
}

// DecodeMessage unmarshals an envelope and decodes its payload into v.
// v may be nil when only the type is wanted.
func DecodeMessage(data []byte, v interface{}) (string, error) {
	var env struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return "", err
	}
	if v != nil && len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, v); err != nil {
			return env.Type, fmt.Errorf("%s payload: %w", env.Type, err)
		}
	}
	return env.Type, nil
}

func (c *Client) sendJSON(msg Message) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.connected {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(msg)
}

// Send writes one binary packet to the mixer
func (c *Client) Send(packet []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.connected {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, packet)
}

func (c *Client) readMessages() {
	defer c.Close()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Client.readMessages",
				"error":    err.Error(),
			}).Debug("Mixer read ended")
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			select {
			case c.Packets <- data:
			default:
				logrus.WithField("function", "Client.readMessages").Debug("Packet queue full, dropping packet")
			}
		case websocket.TextMessage:
			if c.handleJSONMessage(data) {
				return
			}
		}
	}
}

// handleJSONMessage reports whether the mixer ended the session
func (c *Client) handleJSONMessage(data []byte) bool {
	var bye ServerGoodbye
	msgType, err := DecodeMessage(data, &bye)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Client.handleJSONMessage",
			"error":    err.Error(),
		}).Warn("Failed to parse control message")
		return false
	}

	if msgType == TypeServerGoodbye {
		logrus.WithFields(logrus.Fields{
			"function": "Client.handleJSONMessage",
			"reason":   bye.Reason,
		}).Info("Mixer closed the session")
		return true
	}

	logrus.WithFields(logrus.Fields{
		"function": "Client.handleJSONMessage",
		"type":     msgType,
	}).Debug("Ignoring control message")
	return false
}

// SendGoodbye sends a client/goodbye message before disconnecting
func (c *Client) SendGoodbye(reason string) error {
	return c.sendJSON(Message{Type: TypeClientGoodbye, Payload: ClientGoodbye{Reason: reason}})
}

// Server returns the mixer's hello
func (c *Client) Server() ServerHello {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.server
}

// SessionID returns the id sent in client/hello
func (c *Client) SessionID() string {
	return c.sessionID
}

// Done is closed once the connection is gone
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		c.connected = false
		c.cancel()
		c.conn.Close()
		close(c.done)
		logrus.WithField("function", "Client.Close").Info("Mixer connection closed")
	}
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
