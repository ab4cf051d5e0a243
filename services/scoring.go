package services

import (
	"qteams/models"
)

// Tally holds one member's answer counts per score bucket.
type Tally struct {
	Right   uint
	Partial uint
	Wrong   uint
}

// TallyAnswers counts scored answers per author. Unscored answers and
// scores outside the known buckets are ignored. The result depends only
// on the input, so recomputing it is always safe.
func TallyAnswers(answers []models.Answer) map[uint]Tally {
	tallies := make(map[uint]Tally)
	for _, answer := range answers {
		if !answer.Scored() {
			continue
		}
		score, ok := models.ParseScore(*answer.Score)
		if !ok {
			continue
		}
		t := tallies[answer.AuthorID]
		switch score {
		case models.ScoreRight:
			t.Right++
		case models.ScorePartial:
			t.Partial++
		case models.ScoreWrong:
			t.Wrong++
		}
		tallies[answer.AuthorID] = t
	}
	return tallies
}

// applyTally overwrites the membership counts with t.
func applyTally(m *models.Membership, t Tally) {
	m.Right = t.Right
	m.Partial = t.Partial
	m.Wrong = t.Wrong
}
