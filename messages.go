package main

// Messages coming from clients
type ClientMessage struct {
	Type       string `json:"type"`                 // discriminator for all inbound messages
	Username   string `json:"username,omitempty"`   // authenticate
	Password   string `json:"password,omitempty"`   // authenticate
	Role       string `json:"role,omitempty"`       // identify / register
	PlayerName string `json:"playerName,omitempty"` // register
	Team       string `json:"team,omitempty"`       // register / answer / switchTeam
	Index      *int   `json:"index,omitempty"`      // answer (-1 = strike without reveal)
	Correct    bool   `json:"correct,omitempty"`    // answer
	Enabled    bool   `json:"enabled,omitempty"`    // toggleBuzzer
	ResetAll   bool   `json:"resetAll,omitempty"`   // resetRound
}

// AuthResultMessage answers an authenticate attempt. On failure the
// server closes the connection after sending it.
type AuthResultMessage struct {
	Type    string `json:"type"` // "authResult"
	Success bool   `json:"success"`
	Role    Role   `json:"role,omitempty"`
	Message string `json:"message,omitempty"`
}

// GameStateMessage carries a full or redacted state snapshot, depending
// on the receiving seat.
type GameStateMessage struct {
	Type  string     `json:"type"` // "gameState"
	State *GameState `json:"state"`
}

// ForceResetMessage is sent to the game host only, on resetRound, in
// addition to the regular state broadcast.
type ForceResetMessage struct {
	Type  string     `json:"type"` // "forceReset"
	State *GameState `json:"state"`
}

type PlayerInfo struct {
	Name string `json:"name"`
	Team string `json:"team"`
}

// RosterMessage informs the display seat of the current player roster.
type RosterMessage struct {
	Type    string       `json:"type"` // "playerJoined"
	Players []PlayerInfo `json:"players"`
}

// BuzzNoticeMessage announces a captured buzz. The same shape is sent
// as "buzz" to the host, "playerBuzzed" to the display, and
// "buzzLocked" to all players.
type BuzzNoticeMessage struct {
	Type       string `json:"type"`
	PlayerName string `json:"playerName"`
	Team       string `json:"team"`
}

// BuzzerStateMessage informs players whether the buzzer is live.
type BuzzerStateMessage struct {
	Type    string `json:"type"` // "buzzerState"
	Enabled bool   `json:"enabled"`
}

// SoundMessage tells the display to play a cue: "correct", "wrong", or
// "start".
type SoundMessage struct {
	Type  string `json:"type"` // "playSound"
	Sound string `json:"sound"`
}

// AnswerCueMessage is the wrong-answer cue sent to the display.
type AnswerCueMessage struct {
	Type    string `json:"type"` // "answer"
	Correct bool   `json:"correct"`
	Team    string `json:"team"`
}

// WrongMessage is the additional strike event sent to the display on an
// incorrect answer.
type WrongMessage struct {
	Type string `json:"type"` // "wrong"
	Team string `json:"team"`
}

// RoundResetMessage notifies players that the round was reset.
type RoundResetMessage struct {
	Type     string `json:"type"` // "roundReset"
	ResetAll bool   `json:"resetAll"`
}

// ErrorMessage is only sent for pre-authentication seat requests; every
// other disallowed action is dropped silently.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}
