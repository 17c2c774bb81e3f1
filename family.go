// Family 100 game core
//
// One authoritative game state is mutated by a single game host seat and
// observed by a single display seat plus any number of player seats, all
// over per-client websockets.
//
// Features:
// - Connections authenticate in-band with username/password ("authenticate")
// - Admin or host credentials may claim the game host seat ("identify") or
//   the display seat ("register" with role "display"); the last claimant wins
// - Player credentials register with a display name and team ("register")
// - The host reveals answers, assigns strikes, toggles the buzzer, switches
//   the active team, and advances or resets rounds
// - Players race to buzz; the first buzz locks the buzzer until the host
//   toggles it again
// - The display seat only ever receives a redacted board: answer text and
//   points stay blank until an answer is revealed and confirmed correct
// - Actions from connections without the required seat are dropped silently
// - In-browser QR button to share the login page, backed by go-qrcode

package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

// Client is one live websocket connection. The auth and seat fields are
// only touched under the hub lock.
type Client struct {
	conn *websocket.Conn
	send chan any

	authenticated bool
	role          Role
	username      string

	playerName string
	team       string
}

// Hub owns the game state, the seat registry, and the question catalog
// cursor. A single mutex serializes every inbound message, so no two
// transitions ever interleave.
type Hub struct {
	mu sync.Mutex

	clients     map[*Client]bool
	gameHost    *Client
	displayHost *Client
	players     map[*Client]bool

	state      *GameState
	catalog    Catalog
	index      int
	buzzActive bool

	users *userStore
	cfg   *Config
}

func newHub(cfg *Config, users *userStore, catalog Catalog) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		players: make(map[*Client]bool),
		state:   newGameState(catalog[0]),
		catalog: catalog,
		users:   users,
		cfg:     cfg,
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c] = true
	logf(h.cfg, "GAMES: Client connected")
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.dropLocked(c)
}

// dropLocked removes a connection, releases any seat it holds, and
// closes its send channel. Dropping a player rebroadcasts the roster.
func (h *Hub) dropLocked(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}

	delete(h.clients, c)
	close(c.send)

	if h.gameHost == c {
		h.gameHost = nil
		logf(h.cfg, "GAMES: Game host disconnected")
	}
	if h.displayHost == c {
		h.displayHost = nil
		logf(h.cfg, "GAMES: Display host disconnected")
	}
	if _, ok := h.players[c]; ok {
		delete(h.players, c)
		logf(h.cfg, "GAMES: Player %q disconnected", c.playerName)
		h.broadcastRosterLocked()
	}
}

// sendLocked queues a message for one connection. Delivery is
// best-effort: a nil or departed target drops the message, and a client
// that cannot keep up with its send buffer is disconnected.
func (h *Hub) sendLocked(c *Client, msg any) {
	if c == nil {
		return
	}
	if _, ok := h.clients[c]; !ok {
		return
	}

	select {
	case c.send <- msg:
	default:
		h.dropLocked(c)
	}
}

func (h *Hub) broadcastToPlayersLocked(msg any) {
	for c := range h.players {
		h.sendLocked(c, msg)
	}
}

// broadcastGameStateLocked pushes the state to both singleton seats:
// the full view to the game host, the redacted view to the display.
func (h *Hub) broadcastGameStateLocked() {
	h.sendLocked(h.gameHost, GameStateMessage{Type: "gameState", State: h.state.fullView()})
	h.sendLocked(h.displayHost, GameStateMessage{Type: "gameState", State: h.state.displayView()})
}

func (h *Hub) broadcastRosterLocked() {
	roster := make([]PlayerInfo, 0, len(h.players))
	for c := range h.players {
		roster = append(roster, PlayerInfo{Name: c.playerName, Team: c.team})
	}
	sort.Slice(roster, func(i, j int) bool {
		return roster[i].Name < roster[j].Name
	})

	h.sendLocked(h.displayHost, RosterMessage{Type: "playerJoined", Players: roster})
}

// handleMessage is the single entry point for inbound messages. The
// role and seat checks here are fail-closed: anything not explicitly
// permitted is a silent no-op.
func (h *Hub) handleMessage(c *Client, msg ClientMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// A dropped client's read pump keeps running until its socket
	// errors; nothing it sends in that window may reclaim a seat.
	if _, ok := h.clients[c]; !ok {
		return
	}

	switch msg.Type {
	case "authenticate":
		h.handleAuthenticateLocked(c, msg)
	case "identify":
		h.handleIdentifyLocked(c, msg)
	case "register":
		h.handleRegisterLocked(c, msg)
	case "answer":
		h.handleAnswerLocked(c, msg)
	case "buzz":
		h.handleBuzzLocked(c)
	case "toggleBuzzer":
		h.handleToggleBuzzerLocked(c, msg)
	case "switchTeam":
		h.handleSwitchTeamLocked(c, msg)
	case "nextQuestion":
		h.handleNextQuestionLocked(c)
	case "resetRound":
		h.handleResetRoundLocked(c, msg)
	case "showAllAnswers":
		h.handleShowAllAnswersLocked(c)
	default:
		logf(h.cfg, "GAMES: Ignoring unknown message type %q", msg.Type)
	}
}

func (h *Hub) handleAuthenticateLocked(c *Client, msg ClientMessage) {
	role, ok := h.users.lookup(msg.Username, msg.Password)
	if !ok {
		h.sendLocked(c, AuthResultMessage{Type: "authResult", Success: false, Message: "Invalid credentials"})
		h.dropLocked(c)
		logf(h.cfg, "AUTH: Rejected websocket credentials for %q", msg.Username)
		return
	}

	c.authenticated = true
	c.role = role
	c.username = strings.ToLower(msg.Username)

	h.sendLocked(c, AuthResultMessage{Type: "authResult", Success: true, Role: role})
	logf(h.cfg, "AUTH: Websocket authenticated: %s (%s)", c.username, role)
}

// requireAuthLocked enforces the one loud denial in the protocol: seat
// requests from unauthenticated connections get an error and are
// disconnected.
func (h *Hub) requireAuthLocked(c *Client) bool {
	if c.authenticated {
		return true
	}

	h.sendLocked(c, ErrorMessage{Type: "error", Message: "Authentication required"})
	h.dropLocked(c)
	return false
}

func (h *Hub) handleIdentifyLocked(c *Client, msg ClientMessage) {
	if !h.requireAuthLocked(c) {
		return
	}

	if msg.Role == "host" && c.role.hostPrivileged() {
		h.gameHost = c
		logf(h.cfg, "GAMES: Game host registered")

		h.sendLocked(c, GameStateMessage{Type: "gameState", State: h.state.fullView()})
	}
}

func (h *Hub) handleRegisterLocked(c *Client, msg ClientMessage) {
	if !h.requireAuthLocked(c) {
		return
	}

	switch {
	case msg.Role == "display" && c.role.hostPrivileged():
		h.displayHost = c
		logf(h.cfg, "GAMES: Display host registered")

		h.sendLocked(c, GameStateMessage{Type: "gameState", State: h.state.displayView()})

	case msg.Role == "player" && c.role == RolePlayer:
		c.playerName = msg.PlayerName
		if c.playerName == "" {
			c.playerName = c.username
		}
		c.team = msg.Team

		h.players[c] = true
		logf(h.cfg, "GAMES: Player %q registered for team %s", c.playerName, c.team)

		h.broadcastRosterLocked()
	}
}

func (h *Hub) isGameHostLocked(c *Client) bool {
	return c != nil && c == h.gameHost && c.role.hostPrivileged()
}

func (h *Hub) handleAnswerLocked(c *Client, msg ClientMessage) {
	if !h.isGameHostLocked(c) || msg.Index == nil {
		return
	}

	switch index := *msg.Index; {
	case index == strikeIndex && !msg.Correct:
		// Strike without touching the board.
		h.state.strikeActive()
		h.sendLocked(h.displayHost, AnswerCueMessage{Type: "answer", Correct: false, Team: h.state.ActiveTeam})
		h.broadcastGameStateLocked()

	default:
		if h.state.reveal(index, msg.Correct) {
			if !msg.Correct {
				h.sendLocked(h.displayHost, AnswerCueMessage{Type: "answer", Correct: false, Team: h.state.ActiveTeam})
			}
			h.broadcastGameStateLocked()
		}
	}

	sound := "wrong"
	if msg.Correct {
		sound = "correct"
	}
	h.sendLocked(h.displayHost, SoundMessage{Type: "playSound", Sound: sound})

	if !msg.Correct {
		h.sendLocked(h.displayHost, WrongMessage{Type: "wrong", Team: msg.Team})
	}
}

func (h *Hub) handleBuzzLocked(c *Client) {
	if _, ok := h.players[c]; !ok || c.role != RolePlayer {
		return
	}
	if h.buzzActive || !h.state.BuzzerEnabled {
		return
	}

	// First buzz wins; the lock holds until the host toggles the buzzer.
	h.buzzActive = true
	h.state.ActiveTeam = c.team

	logf(h.cfg, "GAMES: Player %q buzzed for team %s", c.playerName, c.team)

	h.sendLocked(h.gameHost, BuzzNoticeMessage{Type: "buzz", PlayerName: c.playerName, Team: c.team})
	h.sendLocked(h.displayHost, BuzzNoticeMessage{Type: "playerBuzzed", PlayerName: c.playerName, Team: c.team})
	h.broadcastToPlayersLocked(BuzzNoticeMessage{Type: "buzzLocked", PlayerName: c.playerName, Team: c.team})
}

func (h *Hub) handleToggleBuzzerLocked(c *Client, msg ClientMessage) {
	if !h.isGameHostLocked(c) {
		return
	}

	h.state.BuzzerEnabled = msg.Enabled
	// Toggling in either direction releases a captured buzz.
	h.buzzActive = false

	h.broadcastGameStateLocked()
	h.broadcastToPlayersLocked(BuzzerStateMessage{Type: "buzzerState", Enabled: msg.Enabled})
}

func (h *Hub) handleSwitchTeamLocked(c *Client, msg ClientMessage) {
	if !h.isGameHostLocked(c) {
		return
	}

	h.state.ActiveTeam = msg.Team
	h.broadcastGameStateLocked()
}

func (h *Hub) advanceLocked(resetTeams bool) {
	h.index = (h.index + 1) % len(h.catalog)
	h.state.advance(h.catalog[h.index], resetTeams)
	h.buzzActive = false

	h.sendLocked(h.displayHost, SoundMessage{Type: "playSound", Sound: "start"})
}

func (h *Hub) handleNextQuestionLocked(c *Client) {
	if !h.isGameHostLocked(c) {
		return
	}

	h.advanceLocked(false)
	h.broadcastGameStateLocked()
}

func (h *Hub) handleResetRoundLocked(c *Client, msg ClientMessage) {
	if !h.isGameHostLocked(c) {
		return
	}

	h.advanceLocked(msg.ResetAll)

	h.sendLocked(h.gameHost, ForceResetMessage{Type: "forceReset", State: h.state.fullView()})
	h.broadcastGameStateLocked()
	h.broadcastToPlayersLocked(RoundResetMessage{Type: "roundReset", ResetAll: msg.ResetAll})
}

func (h *Hub) handleShowAllAnswersLocked(c *Client) {
	if !h.isGameHostLocked(c) {
		return
	}

	h.state.revealAll()
	h.broadcastGameStateLocked()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func serveWS(cfg *Config, hub *Hub) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "GAMES: Upgrade error: %v", err)
			return
		}

		client := &Client{
			conn: conn,
			send: make(chan any, 8),
		}

		hub.register(client)

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		err := c.conn.ReadJSON(&msg)
		if err == nil {
			h.handleMessage(c, msg)
			continue
		}

		// A payload that fails to decode is observed and skipped; only
		// transport-level errors end the connection.
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			logf(h.cfg, "GAMES: Ignoring malformed message: %v", err)
			continue
		}

		return
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// qrHandler generates a PNG QR code pointing at the login page, for
// sharing the game with players.
func qrHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + cfg.prefix + "/login"

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

// registerFamilyGame wires the realtime endpoints:
//   - $prefix/ws       → websocket carrying the game protocol
//   - $prefix/join/qr  → PNG QR code for the login URL
func registerFamilyGame(cfg *Config, hub *Hub, mux *httprouter.Router) {
	mux.GET(cfg.prefix+"/ws", serveWS(cfg, hub))
	mux.GET(cfg.prefix+"/join/qr", qrHandler(cfg))
}
