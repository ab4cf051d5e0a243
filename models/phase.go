package models

// Phase is the state of a team in the round state machine.
type Phase string

const (
	PhaseOpen     Phase = "open"
	PhaseQuestion Phase = "question"
	PhaseAnswer   Phase = "answer"
	PhaseScoring  Phase = "scoring"
	PhaseDone     Phase = "done"
	PhaseArchived Phase = "archived"
)

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseOpen, PhaseQuestion, PhaseAnswer, PhaseScoring, PhaseDone, PhaseArchived:
		return true
	}
	return false
}

// Idle reports whether no round is in progress. Membership and mode
// changes and starting a new round are only allowed from an idle phase.
func (p Phase) Idle() bool {
	return p == PhaseOpen || p == PhaseDone
}

// Label returns the display name used in notifications.
func (p Phase) Label() string {
	switch p {
	case PhaseOpen:
		return "open"
	case PhaseQuestion:
		return "question writing"
	case PhaseAnswer:
		return "answering"
	case PhaseScoring:
		return "scoring"
	case PhaseDone:
		return "round complete"
	case PhaseArchived:
		return "archived"
	}
	return string(p)
}

// Mode selects between a training and a competition team.
type Mode string

const (
	ModeTrain       Mode = "train"
	ModeCompetition Mode = "competition"
)

func (m Mode) Valid() bool {
	return m == ModeTrain || m == ModeCompetition
}

// Score is the bucket an answer falls into once scored.
type Score uint

const (
	ScoreWrong   Score = 0
	ScorePartial Score = 1
	ScoreRight   Score = 3
)

// ParseScore validates a raw score value.
func ParseScore(v uint) (Score, bool) {
	switch Score(v) {
	case ScoreWrong, ScorePartial, ScoreRight:
		return Score(v), true
	}
	return 0, false
}

func (s Score) String() string {
	switch s {
	case ScoreWrong:
		return "wrong"
	case ScorePartial:
		return "partial"
	case ScoreRight:
		return "right"
	}
	return "invalid"
}
