package main

// Answer is one revealable answer on the board. Correct is only
// meaningful once Revealed is true.
type Answer struct {
	Text     string `json:"text"`
	Points   int    `json:"points"`
	Revealed bool   `json:"revealed"`
	Correct  bool   `json:"correct"`
}

// Team tracks one team's running score. Points and strikes survive
// round advances and are only zeroed by a full reset.
type Team struct {
	Points  int `json:"points"`
	Strikes int `json:"strikes"`
}

// GameState is the single authoritative game state. It is owned by the
// Hub and only mutated under its lock; everything the clients see is
// derived from it.
type GameState struct {
	CurrentQuestion string   `json:"currentQuestion"`
	Answers         []Answer `json:"answers"`
	Team1           Team     `json:"team1"`
	Team2           Team     `json:"team2"`
	CurrentRound    int      `json:"currentRound"`
	RoundPoints     int      `json:"roundPoints"`
	BuzzerEnabled   bool     `json:"buzzerEnabled"`
	ActiveTeam      string   `json:"activeTeam"`
}

// strikeIndex is the sentinel answer index meaning "no answer on the
// board matched": the active team takes a strike and the board is left
// untouched.
const strikeIndex = -1

func boardAnswers(entry CatalogEntry) []Answer {
	answers := make([]Answer, len(entry.Answers))
	for i, a := range entry.Answers {
		answers[i] = Answer{Text: a.Text, Points: a.Points}
	}
	return answers
}

func newGameState(entry CatalogEntry) *GameState {
	return &GameState{
		CurrentQuestion: entry.Question,
		Answers:         boardAnswers(entry),
		CurrentRound:    1,
	}
}

// activeTeamRef resolves the active team identifier to the team it
// names, or nil when no team is active. Unknown identifiers score to
// neither team, matching the reveal semantics for team "1"/"2" only.
func (g *GameState) activeTeamRef() *Team {
	switch g.ActiveTeam {
	case "1":
		return &g.Team1
	case "2":
		return &g.Team2
	}
	return nil
}

// reveal uncovers the answer at index and applies its score effect to
// the active team. Reports whether the board changed; already-revealed
// answers and out-of-range indexes are no-ops.
func (g *GameState) reveal(index int, correct bool) bool {
	if index < 0 || index >= len(g.Answers) {
		return false
	}

	answer := &g.Answers[index]
	if answer.Revealed {
		return false
	}

	answer.Revealed = true
	answer.Correct = correct

	if correct {
		if team := g.activeTeamRef(); team != nil {
			team.Points += answer.Points
		}
		g.RoundPoints += answer.Points
	} else {
		g.strikeActive()
	}

	return true
}

// strikeActive adds a strike to the active team without touching the
// board.
func (g *GameState) strikeActive() {
	if team := g.activeTeamRef(); team != nil {
		team.Strikes++
	}
}

// revealAll uncovers every answer without changing scores or strikes.
// Correctness flags are left as previously set.
func (g *GameState) revealAll() {
	for i := range g.Answers {
		g.Answers[i].Revealed = true
	}
}

// advance replaces the board with the given catalog entry and starts
// the next round: fresh unrevealed answers, round points back to zero,
// buzzer disabled, no active team. Team totals carry over unless
// resetTeams is set.
func (g *GameState) advance(entry CatalogEntry, resetTeams bool) {
	g.CurrentQuestion = entry.Question
	g.Answers = boardAnswers(entry)
	g.CurrentRound++
	g.RoundPoints = 0
	g.BuzzerEnabled = false
	g.ActiveTeam = ""

	if resetTeams {
		g.Team1 = Team{}
		g.Team2 = Team{}
	}
}

// fullView is the unredacted projection sent to the game host. It
// snapshots the state so the copy can be serialized outside the hub
// lock.
func (g *GameState) fullView() *GameState {
	view := *g
	view.Answers = append([]Answer(nil), g.Answers...)
	return &view
}

// displayView is the redacted projection sent to the display seat,
// which is presumed visible to the players. Answer text and points are
// blanked unless the answer has been revealed and confirmed correct;
// everything else passes through.
func (g *GameState) displayView() *GameState {
	view := *g
	view.Answers = make([]Answer, len(g.Answers))

	for i, a := range g.Answers {
		if a.Revealed && a.Correct {
			view.Answers[i] = a
			continue
		}
		view.Answers[i] = Answer{Revealed: a.Revealed, Correct: a.Correct}
	}

	return &view
}
