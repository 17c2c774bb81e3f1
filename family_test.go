package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		adminPassword:  "admin123",
		hostPassword:   "host123",
		playerPassword: "player123",
	}
}

func testCatalog() Catalog {
	return Catalog{
		{Question: "Q1", Answers: []CatalogAnswer{{Text: "A", Points: 10}}},
		{Question: "Q2", Answers: []CatalogAnswer{{Text: "B", Points: 20}}},
		{Question: "Q3", Answers: []CatalogAnswer{{Text: "C", Points: 30}}},
	}
}

func testHub() *Hub {
	cfg := testConfig()
	return newHub(cfg, newUserStore(cfg), testCatalog())
}

// connect registers a fresh connection with a buffered send channel, so
// tests can exercise the hub without a live websocket.
func connect(h *Hub) *Client {
	c := &Client{send: make(chan any, 32)}
	h.register(c)
	return c
}

// drain empties a client's send queue and returns everything that was
// waiting.
func drain(c *Client) []any {
	var out []any
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return out
			}
			out = append(out, msg)
		default:
			return out
		}
	}
}

func authenticate(t *testing.T, h *Hub, c *Client, username, password string) {
	t.Helper()
	h.handleMessage(c, ClientMessage{Type: "authenticate", Username: username, Password: password})
	require.True(t, c.authenticated, "authentication for %q should succeed", username)
	drain(c)
}

func connectGameHost(t *testing.T, h *Hub) *Client {
	t.Helper()
	c := connect(h)
	authenticate(t, h, c, "host", "host123")
	h.handleMessage(c, ClientMessage{Type: "identify", Role: "host"})
	require.Same(t, c, h.gameHost)
	drain(c)
	return c
}

func connectDisplay(t *testing.T, h *Hub) *Client {
	t.Helper()
	c := connect(h)
	authenticate(t, h, c, "admin", "admin123")
	h.handleMessage(c, ClientMessage{Type: "register", Role: "display"})
	require.Same(t, c, h.displayHost)
	drain(c)
	return c
}

func connectPlayer(t *testing.T, h *Hub, username, name, team string) *Client {
	t.Helper()
	c := connect(h)
	authenticate(t, h, c, username, "player123")
	h.handleMessage(c, ClientMessage{Type: "register", Role: "player", PlayerName: name, Team: team})
	require.Contains(t, h.players, c)
	drain(c)
	return c
}

func intPtr(i int) *int { return &i }

func TestAuthenticateSuccess(t *testing.T) {
	h := testHub()
	c := connect(h)

	h.handleMessage(c, ClientMessage{Type: "authenticate", Username: "Admin", Password: "admin123"})

	assert.True(t, c.authenticated)
	assert.Equal(t, RoleAdmin, c.role)
	assert.Equal(t, "admin", c.username, "usernames are normalized to lowercase")

	msgs := drain(c)
	require.Len(t, msgs, 1)
	result, ok := msgs[0].(AuthResultMessage)
	require.True(t, ok)
	assert.True(t, result.Success)
	assert.Equal(t, RoleAdmin, result.Role)
}

func TestAuthenticateFailureDisconnects(t *testing.T) {
	h := testHub()
	c := connect(h)

	h.handleMessage(c, ClientMessage{Type: "authenticate", Username: "admin", Password: "nope"})

	assert.False(t, c.authenticated)
	assert.NotContains(t, h.clients, c)

	msgs := drain(c)
	require.Len(t, msgs, 1)
	result, ok := msgs[0].(AuthResultMessage)
	require.True(t, ok)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Message)

	// The send channel is closed, ending the write pump.
	_, open := <-c.send
	assert.False(t, open)
}

func TestIdentifyRequiresAuthentication(t *testing.T) {
	h := testHub()
	c := connect(h)

	h.handleMessage(c, ClientMessage{Type: "identify", Role: "host"})

	assert.Nil(t, h.gameHost)
	assert.NotContains(t, h.clients, c)

	msgs := drain(c)
	require.Len(t, msgs, 1)
	_, ok := msgs[0].(ErrorMessage)
	assert.True(t, ok)
}

func TestIdentifySendsFullState(t *testing.T) {
	h := testHub()
	c := connect(h)
	authenticate(t, h, c, "host", "host123")

	h.handleMessage(c, ClientMessage{Type: "identify", Role: "host"})

	msgs := drain(c)
	require.Len(t, msgs, 1)
	state, ok := msgs[0].(GameStateMessage)
	require.True(t, ok)
	assert.Equal(t, "Q1", state.State.CurrentQuestion)
	assert.Equal(t, "A", state.State.Answers[0].Text, "host view is unredacted")
}

func TestIdentifyRejectsPlayerRole(t *testing.T) {
	h := testHub()
	c := connect(h)
	authenticate(t, h, c, "player1", "player123")

	h.handleMessage(c, ClientMessage{Type: "identify", Role: "host"})

	assert.Nil(t, h.gameHost)
	assert.Empty(t, drain(c), "denied seat requests are silent")
}

func TestHostSeatLastWriterWins(t *testing.T) {
	h := testHub()

	first := connectGameHost(t, h)
	second := connect(h)
	authenticate(t, h, second, "admin", "admin123")
	h.handleMessage(second, ClientMessage{Type: "identify", Role: "host"})

	assert.Same(t, second, h.gameHost)
	assert.NotSame(t, first, h.gameHost)
}

func TestDisplaySeatReceivesRedactedState(t *testing.T) {
	h := testHub()
	host := connectGameHost(t, h)
	h.handleMessage(host, ClientMessage{Type: "switchTeam", Team: "1"})
	h.handleMessage(host, ClientMessage{Type: "answer", Index: intPtr(0), Correct: false})

	c := connect(h)
	authenticate(t, h, c, "admin", "admin123")
	h.handleMessage(c, ClientMessage{Type: "register", Role: "display"})

	msgs := drain(c)
	require.Len(t, msgs, 1)
	state, ok := msgs[0].(GameStateMessage)
	require.True(t, ok)
	require.True(t, state.State.Answers[0].Revealed)
	assert.Empty(t, state.State.Answers[0].Text, "wrong answers never leak to the display")
}

func TestPlayerRegistrationBroadcastsRoster(t *testing.T) {
	h := testHub()
	display := connectDisplay(t, h)

	connectPlayer(t, h, "player1", "Alice", "1")

	msgs := drain(display)
	require.Len(t, msgs, 1)
	roster, ok := msgs[0].(RosterMessage)
	require.True(t, ok)
	require.Len(t, roster.Players, 1)
	assert.Equal(t, PlayerInfo{Name: "Alice", Team: "1"}, roster.Players[0])
}

func TestPlayerNameDefaultsToUsername(t *testing.T) {
	h := testHub()

	c := connectPlayer(t, h, "player2", "", "2")

	assert.Equal(t, "player2", c.playerName)
}

func TestRevealAddsPointsAndBroadcasts(t *testing.T) {
	h := testHub()
	host := connectGameHost(t, h)
	display := connectDisplay(t, h)

	h.handleMessage(host, ClientMessage{Type: "switchTeam", Team: "1"})
	drain(host)
	drain(display)

	h.handleMessage(host, ClientMessage{Type: "answer", Index: intPtr(0), Correct: true, Team: "1"})

	assert.Equal(t, 10, h.state.Team1.Points)

	hostMsgs := drain(host)
	require.Len(t, hostMsgs, 1)
	full, ok := hostMsgs[0].(GameStateMessage)
	require.True(t, ok)
	assert.Equal(t, "A", full.State.Answers[0].Text)

	displayMsgs := drain(display)
	require.Len(t, displayMsgs, 2)
	redacted, ok := displayMsgs[0].(GameStateMessage)
	require.True(t, ok)
	assert.Equal(t, "A", redacted.State.Answers[0].Text, "correct answers are shown")
	sound, ok := displayMsgs[1].(SoundMessage)
	require.True(t, ok)
	assert.Equal(t, "correct", sound.Sound)
}

func TestWrongAnswerCues(t *testing.T) {
	h := testHub()
	host := connectGameHost(t, h)
	display := connectDisplay(t, h)

	h.handleMessage(host, ClientMessage{Type: "switchTeam", Team: "2"})
	drain(host)
	drain(display)

	h.handleMessage(host, ClientMessage{Type: "answer", Index: intPtr(0), Correct: false, Team: "2"})

	assert.Equal(t, 1, h.state.Team2.Strikes)

	msgs := drain(display)
	require.Len(t, msgs, 4)
	cue, ok := msgs[0].(AnswerCueMessage)
	require.True(t, ok)
	assert.Equal(t, "2", cue.Team)
	_, ok = msgs[1].(GameStateMessage)
	require.True(t, ok)
	sound, ok := msgs[2].(SoundMessage)
	require.True(t, ok)
	assert.Equal(t, "wrong", sound.Sound)
	wrong, ok := msgs[3].(WrongMessage)
	require.True(t, ok)
	assert.Equal(t, "2", wrong.Team)
}

func TestStrikeSentinelSkipsBoard(t *testing.T) {
	h := testHub()
	host := connectGameHost(t, h)

	h.handleMessage(host, ClientMessage{Type: "switchTeam", Team: "2"})
	h.handleMessage(host, ClientMessage{Type: "answer", Index: intPtr(strikeIndex), Correct: false, Team: "2"})

	assert.Equal(t, 1, h.state.Team2.Strikes)
	for _, a := range h.state.Answers {
		assert.False(t, a.Revealed)
	}
}

func TestAnswerFromNonHostIsIgnored(t *testing.T) {
	h := testHub()
	player := connectPlayer(t, h, "player1", "Alice", "1")

	h.handleMessage(player, ClientMessage{Type: "answer", Index: intPtr(0), Correct: true})
	h.handleMessage(player, ClientMessage{Type: "nextQuestion"})
	h.handleMessage(player, ClientMessage{Type: "resetRound", ResetAll: true})

	assert.False(t, h.state.Answers[0].Revealed)
	assert.Equal(t, 1, h.state.CurrentRound)
	assert.Empty(t, drain(player))
}

func TestBuzzFirstWins(t *testing.T) {
	h := testHub()
	host := connectGameHost(t, h)
	alice := connectPlayer(t, h, "player1", "Alice", "1")
	bob := connectPlayer(t, h, "player2", "Bob", "2")

	h.handleMessage(host, ClientMessage{Type: "toggleBuzzer", Enabled: true})
	drain(host)
	drain(alice)
	drain(bob)

	h.handleMessage(alice, ClientMessage{Type: "buzz"})
	h.handleMessage(bob, ClientMessage{Type: "buzz"})

	assert.True(t, h.buzzActive)
	assert.Equal(t, "1", h.state.ActiveTeam, "Alice's team captured the buzz")

	hostMsgs := drain(host)
	require.Len(t, hostMsgs, 1, "only the first buzz is announced")
	buzz, ok := hostMsgs[0].(BuzzNoticeMessage)
	require.True(t, ok)
	assert.Equal(t, "buzz", buzz.Type)
	assert.Equal(t, "Alice", buzz.PlayerName)

	for _, player := range []*Client{alice, bob} {
		msgs := drain(player)
		require.Len(t, msgs, 1)
		locked, ok := msgs[0].(BuzzNoticeMessage)
		require.True(t, ok)
		assert.Equal(t, "buzzLocked", locked.Type)
		assert.Equal(t, "Alice", locked.PlayerName)
	}
}

func TestBuzzRequiresEnabledBuzzer(t *testing.T) {
	h := testHub()
	alice := connectPlayer(t, h, "player1", "Alice", "1")

	h.handleMessage(alice, ClientMessage{Type: "buzz"})

	assert.False(t, h.buzzActive)
	assert.Empty(t, h.state.ActiveTeam)
}

func TestToggleBuzzerReleasesCapturedBuzz(t *testing.T) {
	h := testHub()
	host := connectGameHost(t, h)
	alice := connectPlayer(t, h, "player1", "Alice", "1")
	bob := connectPlayer(t, h, "player2", "Bob", "2")

	h.handleMessage(host, ClientMessage{Type: "toggleBuzzer", Enabled: true})
	h.handleMessage(alice, ClientMessage{Type: "buzz"})
	require.True(t, h.buzzActive)

	// Disabling also discards the captured buzz.
	h.handleMessage(host, ClientMessage{Type: "toggleBuzzer", Enabled: false})
	assert.False(t, h.buzzActive)

	h.handleMessage(host, ClientMessage{Type: "toggleBuzzer", Enabled: true})
	h.handleMessage(bob, ClientMessage{Type: "buzz"})

	assert.True(t, h.buzzActive)
	assert.Equal(t, "2", h.state.ActiveTeam)
}

func TestNextQuestionWrapsAround(t *testing.T) {
	h := testHub()
	host := connectGameHost(t, h)

	n := len(h.catalog)
	for i := 0; i < n; i++ {
		h.handleMessage(host, ClientMessage{Type: "nextQuestion"})
	}

	assert.Equal(t, "Q1", h.state.CurrentQuestion, "advancing catalog-length times returns to the start")
	assert.Equal(t, n+1, h.state.CurrentRound)
}

func TestNextQuestionPreservesScores(t *testing.T) {
	h := testHub()
	host := connectGameHost(t, h)

	h.handleMessage(host, ClientMessage{Type: "switchTeam", Team: "1"})
	h.handleMessage(host, ClientMessage{Type: "answer", Index: intPtr(0), Correct: true, Team: "1"})
	require.Equal(t, 10, h.state.Team1.Points)

	h.handleMessage(host, ClientMessage{Type: "nextQuestion"})

	assert.Equal(t, "Q2", h.state.CurrentQuestion)
	assert.Equal(t, 10, h.state.Team1.Points)
	assert.Equal(t, 2, h.state.CurrentRound)
	assert.False(t, h.buzzActive)
}

func TestResetRoundFullReset(t *testing.T) {
	h := testHub()
	host := connectGameHost(t, h)
	display := connectDisplay(t, h)
	player := connectPlayer(t, h, "player1", "Alice", "1")
	drain(display)

	h.state.Team1.Points = 50
	h.state.Team1.Strikes = 2

	h.handleMessage(host, ClientMessage{Type: "resetRound", ResetAll: true})

	assert.Equal(t, Team{}, h.state.Team1)
	assert.Equal(t, 2, h.state.CurrentRound)

	hostMsgs := drain(host)
	require.Len(t, hostMsgs, 2)
	force, ok := hostMsgs[0].(ForceResetMessage)
	require.True(t, ok)
	assert.Equal(t, 0, force.State.Team1.Points)
	_, ok = hostMsgs[1].(GameStateMessage)
	require.True(t, ok)

	displayMsgs := drain(display)
	require.Len(t, displayMsgs, 2)
	sound, ok := displayMsgs[0].(SoundMessage)
	require.True(t, ok)
	assert.Equal(t, "start", sound.Sound)

	playerMsgs := drain(player)
	require.Len(t, playerMsgs, 1)
	reset, ok := playerMsgs[0].(RoundResetMessage)
	require.True(t, ok)
	assert.True(t, reset.ResetAll)
}

func TestResetRoundKeepScores(t *testing.T) {
	h := testHub()
	host := connectGameHost(t, h)

	h.handleMessage(host, ClientMessage{Type: "switchTeam", Team: "1"})
	h.handleMessage(host, ClientMessage{Type: "answer", Index: intPtr(0), Correct: true, Team: "1"})
	before1, before2 := h.state.Team1, h.state.Team2
	round := h.state.CurrentRound

	h.handleMessage(host, ClientMessage{Type: "resetRound", ResetAll: false})

	assert.Equal(t, before1, h.state.Team1)
	assert.Equal(t, before2, h.state.Team2)
	assert.Equal(t, round+1, h.state.CurrentRound)
	for _, a := range h.state.Answers {
		assert.False(t, a.Revealed)
	}
}

func TestShowAllAnswers(t *testing.T) {
	h := testHub()
	host := connectGameHost(t, h)

	h.handleMessage(host, ClientMessage{Type: "showAllAnswers"})

	for _, a := range h.state.Answers {
		assert.True(t, a.Revealed)
	}
	assert.Equal(t, 0, h.state.Team1.Points)
}

func TestDisconnectReleasesSeats(t *testing.T) {
	h := testHub()
	host := connectGameHost(t, h)
	display := connectDisplay(t, h)
	player := connectPlayer(t, h, "player1", "Alice", "1")
	drain(display)

	h.unregister(host)
	assert.Nil(t, h.gameHost)

	h.unregister(player)
	assert.NotContains(t, h.players, player)

	msgs := drain(display)
	require.Len(t, msgs, 1)
	roster, ok := msgs[0].(RosterMessage)
	require.True(t, ok)
	assert.Empty(t, roster.Players)
}

func TestSlowClientIsDropped(t *testing.T) {
	h := testHub()
	host := connectGameHost(t, h)
	c := connect(h)
	authenticate(t, h, c, "player1", "player123")
	h.handleMessage(c, ClientMessage{Type: "register", Role: "player", PlayerName: "Alice", Team: "1"})

	// Fill the send buffer without draining.
	for i := 0; i < cap(c.send)+4; i++ {
		h.handleMessage(host, ClientMessage{Type: "toggleBuzzer", Enabled: true})
	}

	assert.NotContains(t, h.clients, c)
	assert.NotContains(t, h.players, c)
}

func TestEvictedClientCannotRejoinRoster(t *testing.T) {
	h := testHub()
	host := connectGameHost(t, h)
	c := connectPlayer(t, h, "player1", "Alice", "1")

	// Fill the player's send buffer without draining until it is
	// evicted, keeping the host alive.
	for i := 0; i < cap(c.send)+4; i++ {
		h.handleMessage(host, ClientMessage{Type: "toggleBuzzer", Enabled: true})
		drain(host)
	}
	require.NotContains(t, h.clients, c)
	require.NotContains(t, h.players, c)

	// The dead connection's read pump keeps delivering messages until
	// its socket errors; none of them may put it back in the roster.
	h.handleMessage(c, ClientMessage{Type: "register", Role: "player", PlayerName: "Alice", Team: "1"})
	assert.NotContains(t, h.players, c)

	h.unregister(c)
	assert.NotContains(t, h.players, c)
}

func TestEvictedClientCannotClaimSeats(t *testing.T) {
	h := testHub()
	host := connectGameHost(t, h)

	c := connect(h)
	authenticate(t, h, c, "admin", "admin123")
	h.unregister(c)

	h.handleMessage(c, ClientMessage{Type: "identify", Role: "host"})
	assert.Same(t, host, h.gameHost)

	h.handleMessage(c, ClientMessage{Type: "register", Role: "display"})
	assert.Nil(t, h.displayHost)
}

func TestUnknownMessageTypeIgnored(t *testing.T) {
	h := testHub()
	c := connect(h)

	h.handleMessage(c, ClientMessage{Type: "bogus"})

	assert.Contains(t, h.clients, c)
	assert.Empty(t, drain(c))
}
