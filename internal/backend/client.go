// Package backend implements the conversation protocol client: a persistent
// authenticated WebSocket connection to the remote conversation backend over
// which the device starts "runs", streams binary audio frames keyed by a
// per-run handler id, and receives the typed event sequence (transcript,
// intent, speech response, errors).
//
// Wire contract, bit-exact:
//
//   - binary audio frame: [1 byte handlerId][N bytes little-endian PCM16]
//   - end-of-audio frame: [1 byte handlerId] with N = 0
//   - control and event messages: JSON text frames with a "type"
//     discriminator (auth_ok, auth_invalid, event, result) and a nested
//     event.type for the run lifecycle.
package backend

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Sentinel errors returned by the client.
var (
	// ErrNoHandler is returned by SendAudio/EndAudio when no run-start has
	// assigned a handler id yet (or the id was invalidated). Audio must
	// never be framed with a stale or zero-default id.
	ErrNoHandler = errors.New("backend: no active handler id")

	// ErrNotConnected is returned when the transport is down.
	ErrNotConnected = errors.New("backend: not connected")

	// ErrAuth is returned by Connect when the backend rejects the token.
	ErrAuth = errors.New("backend: authentication rejected")
)

// noHandler marks the handler id as invalid. Valid ids are 0–255, so the
// sentinel must live outside that range.
const noHandler = -1

// Default tuning values, overridable via options.
const (
	defaultSendTimeout  = 5 * time.Second
	defaultFetchTimeout = 30 * time.Second
	defaultChunkSize    = 4096
)

// Config holds the connection parameters for a Client.
type Config struct {
	// URL is the backend WebSocket endpoint (ws:// or wss://).
	URL string

	// Token is the device auth token exchanged after connect.
	Token string

	// SendTimeout bounds each socket write. Zero selects the default (5s).
	SendTimeout time.Duration
}

// Client maintains the backend connection and the per-run handler id.
//
// All exported methods are safe for concurrent use. Event callbacks are
// delivered from a single reader goroutine, in the order the backend sent
// them.
type Client struct {
	cfg  Config
	subs Subscribers

	dialer *websocket.Dialer
	httpc  *http.Client

	chunkSize int

	mu        sync.Mutex
	conn      *websocket.Conn
	handlerID int
	readerWG  sync.WaitGroup
}

// Option configures a Client during construction.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used to fetch synthesized speech
// audio. The default has a 30s timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpc = c }
}

// WithDialer overrides the WebSocket dialer. Useful in tests.
func WithDialer(d *websocket.Dialer) Option {
	return func(cl *Client) { cl.dialer = d }
}

// WithChunkSize sets the read size used when streaming fetched TTS audio to
// the subscriber. Default 4096 bytes.
func WithChunkSize(n int) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.chunkSize = n
		}
	}
}

// New creates a Client. subs is the fixed subscriber set; the client never
// accepts late registrations.
func New(cfg Config, subs Subscribers, opts ...Option) *Client {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	c := &Client{
		cfg:       cfg,
		subs:      subs,
		dialer:    websocket.DefaultDialer,
		httpc:     &http.Client{Timeout: defaultFetchTimeout},
		chunkSize: defaultChunkSize,
		handlerID: noHandler,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Connect dials the backend, performs the token exchange, and starts the
// reader goroutine. It returns ErrAuth when the backend answers
// auth_invalid. Calling Connect while connected returns an error; use
// Close first.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return errors.New("backend: already connected")
	}
	c.mu.Unlock()

	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("backend: dial %s: %w", c.cfg.URL, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	if err := c.authenticate(conn); err != nil {
		conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.handlerID = noHandler
	c.readerWG.Add(1)
	c.mu.Unlock()

	go c.readLoop(conn)

	slog.Info("backend connected", "url", c.cfg.URL)
	return nil
}

// authenticate performs the token exchange on a fresh connection.
func (c *Client) authenticate(conn *websocket.Conn) error {
	auth := map[string]string{
		"type":  "auth",
		"id":    uuid.NewString(),
		"token": c.cfg.Token,
	}
	conn.SetWriteDeadline(time.Now().Add(c.cfg.SendTimeout))
	if err := conn.WriteJSON(auth); err != nil {
		return fmt.Errorf("backend: send auth: %w", err)
	}

	var reply Envelope
	if err := conn.ReadJSON(&reply); err != nil {
		return fmt.Errorf("backend: read auth reply: %w", err)
	}
	switch reply.Type {
	case MessageAuthOK:
		return nil
	case MessageAuthInvalid:
		return ErrAuth
	default:
		return fmt.Errorf("backend: unexpected auth reply %q", reply.Type)
	}
}

// StartRun asks the backend to open a new conversation run. The handler id
// arrives asynchronously via the run-start event; audio cannot be sent
// until then.
func (c *Client) StartRun(ctx context.Context) error {
	req := map[string]string{
		"type": "run-start",
		"id":   uuid.NewString(),
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("backend: marshal run-start: %w", err)
	}
	return c.writeMessage(websocket.TextMessage, data)
}

// SendAudio streams one PCM frame under the current handler id. It returns
// ErrNoHandler when no run is open — the caller must buffer or drop the
// frame; it is never transmitted with a stale id.
func (c *Client) SendAudio(samples []int16) error {
	c.mu.Lock()
	id := c.handlerID
	c.mu.Unlock()
	if id == noHandler {
		return ErrNoHandler
	}

	frame := make([]byte, 1+2*len(samples))
	frame[0] = byte(id)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(frame[1+2*i:], uint16(s))
	}
	return c.writeMessage(websocket.BinaryMessage, frame)
}

// EndAudio signals end-of-audio for the current run: a binary frame
// containing only the handler id byte.
func (c *Client) EndAudio() error {
	c.mu.Lock()
	id := c.handlerID
	c.mu.Unlock()
	if id == noHandler {
		return ErrNoHandler
	}
	return c.writeMessage(websocket.BinaryMessage, []byte{byte(id)})
}

// HasRun reports whether a handler id is currently valid.
func (c *Client) HasRun() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlerID != noHandler
}

// Connected reports whether the transport is up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close tears down the connection and waits for the reader goroutine to
// exit. Safe to call when not connected.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.handlerID = noHandler
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close()
	c.readerWG.Wait()
	return err
}

// writeMessage performs one deadline-bounded socket write.
func (c *Client) writeMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.SendTimeout))
	if err := c.conn.WriteMessage(messageType, data); err != nil {
		return fmt.Errorf("backend: write: %w", err)
	}
	return nil
}

// readLoop is the single reader goroutine. It decodes envelopes and
// dispatches events until the transport drops, then invalidates the handler
// id and notifies the subscriber. An in-flight run is abandoned, never
// resumed — the next session requires a fresh run-start.
func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.readerWG.Done()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(conn, err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			slog.Warn("backend: undecodable message", "err", err)
			continue
		}
		if (env.Type == MessageEvent || env.Type == MessageResult) && env.Event != nil {
			c.handleEvent(env.Event)
		}
	}
}

// handleDisconnect invalidates the handler id before any notification so a
// stale id can never frame audio, then informs the subscriber.
func (c *Client) handleDisconnect(conn *websocket.Conn, err error) {
	c.mu.Lock()
	wasOpen := c.conn == conn
	if wasOpen {
		c.conn = nil
	}
	c.handlerID = noHandler
	c.mu.Unlock()

	if wasOpen {
		slog.Warn("backend disconnected", "err", err)
		conn.Close()
		if c.subs.OnDisconnect != nil {
			c.subs.OnDisconnect()
		}
	}
}

// handleEvent dispatches one decoded run-lifecycle event.
func (c *Client) handleEvent(ev *Event) {
	switch ev.Type {
	case EventRunStart:
		if ev.HandlerID == nil || *ev.HandlerID < 0 || *ev.HandlerID > 255 {
			slog.Warn("backend: run-start with invalid handler id", "event", ev)
			return
		}
		c.mu.Lock()
		c.handlerID = *ev.HandlerID
		c.mu.Unlock()
		slog.Debug("run started", "handler_id", *ev.HandlerID)
		if c.subs.OnRunStart != nil {
			c.subs.OnRunStart(*ev.HandlerID)
		}

	case EventSTTEnd:
		if c.subs.OnTranscript != nil {
			c.subs.OnTranscript(ev.Text)
		}

	case EventIntentEnd:
		if c.subs.OnIntent != nil {
			c.subs.OnIntent(Intent{
				Name:           ev.Name,
				Slots:          ev.Slots,
				ResponseSpeech: ev.ResponseSpeech,
			})
		}

	case EventTTSEnd:
		if c.subs.OnTTS != nil {
			c.subs.OnTTS(ev.Text, ev.AudioURL)
		}
		// A tts-end straggling in after an error has already invalidated
		// the handler id belongs to a terminated run; fetching its audio
		// would play speech over a session that no longer exists.
		if ev.AudioURL != "" && c.HasRun() {
			c.fetchTTSAudio(ev.AudioURL)
		}

	case EventRunEnd:
		c.mu.Lock()
		c.handlerID = noHandler
		c.mu.Unlock()
		if c.subs.OnRunEnd != nil {
			c.subs.OnRunEnd()
		}

	case EventError:
		// Error terminates the session: invalidate the id first, then
		// notify so the orchestrator sees a dead run.
		c.mu.Lock()
		c.handlerID = noHandler
		c.mu.Unlock()
		slog.Warn("backend error event", "code", ev.Code, "message", ev.Message)
		if c.subs.OnError != nil {
			c.subs.OnError(ev.Code, ev.Message)
		}

	case EventSTTStart, EventIntentStart, EventTTSStart:
		// Progress markers; nothing to do.

	default:
		slog.Debug("backend: unhandled event", "type", ev.Type)
	}
}

// fetchTTSAudio performs the separate request for synthesized speech and
// forwards streamed chunks to the subscriber, ending with the zero-length
// end-of-audio marker. Fetch failures still deliver the end marker so the
// player is never left waiting.
func (c *Client) fetchTTSAudio(url string) {
	if c.subs.OnTTSAudio == nil {
		return
	}
	defer c.subs.OnTTSAudio(nil)

	resp, err := c.httpc.Get(url)
	if err != nil {
		slog.Warn("backend: tts audio fetch failed", "url", url, "err", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		slog.Warn("backend: tts audio fetch status", "url", url, "status", resp.StatusCode)
		return
	}

	buf := make([]byte, c.chunkSize)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.subs.OnTTSAudio(chunk)
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			slog.Warn("backend: tts audio read failed", "url", url, "err", err)
			return
		}
	}
}
