// ABOUTME: Development loopback mixer for voice clients
// ABOUTME: Accepts websocket sessions and answers microphone packets with echo or silence
package mixer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/resample"
	"github.com/Resonate-Protocol/resonate-voice/pkg/discovery"
	"github.com/Resonate-Protocol/resonate-voice/pkg/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ProtocolVersion is sent in server/hello
const ProtocolVersion = protocol.Version

// Config holds mixer configuration
type Config struct {
	Port       int
	Name       string
	Path       string
	EnableMDNS bool
	// Environment is sent to each client after the handshake when set
	Environment *protocol.Environment
}

// Server is a loopback mixer: every client hears only itself
type Server struct {
	config   Config
	serverID string
	upgrader websocket.Upgrader

	httpServer *http.Server
	mux        *http.ServeMux

	sessions   map[string]*Session
	sessionsMu sync.RWMutex

	mdnsManager *discovery.Manager

	stopChan   chan struct{}
	stopOnce   sync.Once
	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

// Session is one connected client
type Session struct {
	ID   string
	Name string
	Conn *websocket.Conn

	sendChan chan interface{}
	done     chan struct{}

	mu        sync.Mutex
	seq       uint16
	received  int
	lastMuted *protocol.MuteEnvironment
}

// New creates a mixer
func New(config Config) *Server {
	if config.Path == "" {
		config.Path = protocol.DefaultPath
	}
	s := &Server{
		config:   config,
		serverID: uuid.New().String(),
		mux:      http.NewServeMux(),
		upgrader: websocket.Upgrader{
			// local development mixer; non-browser clients send no Origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sessions: make(map[string]*Session),
		stopChan: make(chan struct{}),
	}
	s.mux.HandleFunc(config.Path, s.handleWebSocket)
	return s
}

// ID returns the server id sent in server/hello
func (s *Server) ID() string {
	return s.serverID
}

// Handler returns the HTTP handler serving the websocket endpoint
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until Stop is called or the listener fails
func (s *Server) Start() error {
	logrus.WithFields(logrus.Fields{
		"function":  "Server.Start",
		"name":      s.config.Name,
		"server_id": s.serverID,
	}).Info("Mixer starting")

	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        s.config.Port,
			Path:        s.config.Path,
		})
		if err := s.mdnsManager.Advertise(); err != nil {
			logrus.WithError(err).Warn("Failed to start mDNS advertisement")
		}
	}

	addr := fmt.Sprintf(":%d", s.config.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: s.mux}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()
	logrus.WithField("addr", addr).Info("Mixer listening")

	var serverErr error
	select {
	case <-s.stopChan:
		logrus.Info("Mixer shutting down")
	case err := <-errChan:
		serverErr = err
	}

	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()

	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("HTTP server shutdown error")
	}
	s.closeSessions()
	s.wg.Wait()

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	return nil
}

// Stop stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// SessionCount returns the number of connected clients
func (s *Server) SessionCount() int {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	return len(s.sessions)
}

func (s *Server) closeSessions() {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	for _, sess := range s.sessions {
		sess.Conn.Close()
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	shutdown := s.isShutdown
	s.shutdownMu.RUnlock()
	if shutdown {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("WebSocket upgrade error")
		return
	}
	logrus.WithField("remote", r.RemoteAddr).Debug("New WebSocket connection")

	s.handleConnection(conn)
}

func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	_, data, err := conn.ReadMessage()
	if err != nil {
		logrus.WithError(err).Warn("Error reading hello")
		return
	}

	var hello protocol.ClientHello
	msgType, err := protocol.DecodeMessage(data, &hello)
	if err != nil || msgType != protocol.TypeClientHello {
		logrus.WithFields(logrus.Fields{"type": msgType, "error": err}).Warn("Expected client/hello")
		return
	}

	id := hello.SessionID
	if id == "" {
		id = uuid.New().String()
	}
	sess := &Session{
		ID:       id,
		Name:     hello.Name,
		Conn:     conn,
		sendChan: make(chan interface{}, 100),
		done:     make(chan struct{}),
	}

	s.sessionsMu.Lock()
	if _, exists := s.sessions[id]; exists {
		s.sessionsMu.Unlock()
		conn.WriteJSON(protocol.Message{
			Type:    protocol.TypeServerGoodbye,
			Payload: protocol.ServerGoodbye{Reason: "duplicate_session"},
		})
		return
	}
	s.sessions[id] = sess
	s.sessionsMu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":   "Server.handleConnection",
		"client":     hello.Name,
		"client_id":  hello.ClientID,
		"session_id": id,
	}).Info("Client joined")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		sess.writer()
	}()

	defer func() {
		s.sessionsMu.Lock()
		delete(s.sessions, id)
		s.sessionsMu.Unlock()
		close(sess.sendChan)
		<-sess.done
		logrus.WithField("session_id", id).Info("Client left")
	}()

	sess.sendChan <- protocol.Message{
		Type: protocol.TypeServerHello,
		Payload: protocol.ServerHello{
			ServerID:  s.serverID,
			Name:      s.config.Name,
			Version:   ProtocolVersion,
			SessionID: id,
			Format: protocol.AudioFormat{
				Codec:        "pcm",
				Channels:     2,
				SampleRate:   audio.NetworkSampleRate,
				BitDepth:     16,
				FrameSamples: audio.NetworkFrameSamplesPerChannel,
			},
		},
	}
	if s.config.Environment != nil {
		sess.sendChan <- s.config.Environment.Encode()
	}

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithError(err).Warn("WebSocket error")
			}
			return
		}

		if mt == websocket.TextMessage {
			if sess.handleControl(data) {
				return
			}
			continue
		}

		reply, err := sess.Respond(data)
		if err != nil {
			logrus.WithFields(logrus.Fields{"session_id": id, "error": err.Error()}).Debug("Dropping packet")
			continue
		}
		if reply != nil {
			select {
			case sess.sendChan <- reply:
			default:
			}
		}
	}
}

// handleControl reports whether the client is leaving
func (sess *Session) handleControl(data []byte) bool {
	var bye protocol.ClientGoodbye
	msgType, err := protocol.DecodeMessage(data, &bye)
	if err != nil {
		return false
	}
	if msgType == protocol.TypeClientGoodbye {
		logrus.WithFields(logrus.Fields{"session_id": sess.ID, "reason": bye.Reason}).Info("Client said goodbye")
		select {
		case sess.sendChan <- protocol.Message{
			Type:    protocol.TypeServerGoodbye,
			Payload: protocol.ServerGoodbye{Reason: "goodbye"},
		}:
		default:
		}
		return true
	}
	return false
}

func (sess *Session) writer() {
	const writeDeadline = 10 * time.Second
	defer close(sess.done)

	for msg := range sess.sendChan {
		sess.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		switch v := msg.(type) {
		case []byte:
			if err := sess.Conn.WriteMessage(websocket.BinaryMessage, v); err != nil {
				return
			}
		default:
			data, err := json.Marshal(v)
			if err != nil {
				continue
			}
			if err := sess.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

// Respond mixes one inbound packet into the reply the client hears.
// Only the sender's own audio is mixed, and only when it asked for echo.
func (sess *Session) Respond(data []byte) ([]byte, error) {
	t, payload, err := protocol.ParseHeader(data)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.received++

	switch t {
	case protocol.PacketMicrophoneAudioWithEcho:
		mic, err := protocol.DecodeMicrophoneAudio(t, payload)
		if err != nil {
			return nil, err
		}
		stereo := mic.Samples
		if !mic.Stereo {
			stereo = make([]int16, len(mic.Samples)*2)
			resample.ConvertChannels(stereo, mic.Samples, 1, 2)
		}
		return protocol.MixedAudio{Sequence: sess.nextSeq(), Samples: stereo}.Encode(), nil

	case protocol.PacketMicrophoneAudioNoEcho, protocol.PacketSilentAudioFrame:
		if t == protocol.PacketSilentAudioFrame {
			if _, err := protocol.DecodeSilentFrame(payload); err != nil {
				return nil, err
			}
		}
		return protocol.MixedSilentFrame{
			Sequence:    sess.nextSeq(),
			SampleCount: audio.NetworkFrameSamplesStereo,
		}.Encode(), nil

	case protocol.PacketMuteEnvironment:
		mute, err := protocol.DecodeMuteEnvironment(payload)
		if err != nil {
			return nil, err
		}
		sess.lastMuted = &mute
		logrus.WithFields(logrus.Fields{
			"session_id": sess.ID,
			"position":   mute.Position,
			"radius":     mute.Radius,
		}).Info("Mute environment requested")
		return nil, nil

	default:
		return nil, fmt.Errorf("unexpected %s from client", t)
	}
}

func (sess *Session) nextSeq() uint16 {
	seq := sess.seq
	sess.seq++
	return seq
}

// Received returns the number of packets the session accepted
func (sess *Session) Received() int {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.received
}

// LastMute returns the most recent mute-environment request, if any
func (sess *Session) LastMute() *protocol.MuteEnvironment {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.lastMuted
}
