package aggregate

import (
	"maps"
	"reflect"
)

// ChoiceCount is one cell of a question tally.
type ChoiceCount struct {
	Choice  string `json:"choice"`
	Label   string `json:"label"`
	Count   int    `json:"count"`
	Percent int    `json:"percent"`
}

// QuestionTally is the distribution of answers for one question.
// Total always equals the sum of Counts.
type QuestionTally struct {
	QuestionID int           `json:"question_id"`
	Text       string        `json:"text"`
	Counts     []ChoiceCount `json:"counts"`
	Total      int           `json:"total"`
}

// SessionAggregate is derived from a session's answers and the catalog.
// It is never persisted; the answer log is the source of truth.
type SessionAggregate struct {
	SessionID        string          `json:"session_id"`
	ChoiceSetVersion int             `json:"choice_set_version"`
	Questions        []QuestionTally `json:"questions"`
	TotalResponses   int             `json:"total_responses"`
	Participants     int             `json:"participants"`
	PositiveScore    int             `json:"positive_score"`

	respondents map[string]int
	weightSum   int
}

// Equal reports whether two aggregates describe the same state, including
// the respondent bookkeeping behind Participants.
func (a SessionAggregate) Equal(b SessionAggregate) bool {
	return reflect.DeepEqual(a, b)
}

// Tally returns the tally for a question id.
func (a SessionAggregate) Tally(questionID int) (QuestionTally, bool) {
	for _, q := range a.Questions {
		if q.QuestionID == questionID {
			return q, true
		}
	}
	return QuestionTally{}, false
}

// Count returns the count of one (question, choice) cell.
func (t QuestionTally) Count(choice string) int {
	for _, c := range t.Counts {
		if c.Choice == choice {
			return c.Count
		}
	}
	return 0
}

// Percent returns the display percentage of one (question, choice) cell.
func (t QuestionTally) Percent(choice string) int {
	for _, c := range t.Counts {
		if c.Choice == choice {
			return c.Percent
		}
	}
	return 0
}

func (a SessionAggregate) clone() SessionAggregate {
	out := a
	out.Questions = make([]QuestionTally, len(a.Questions))
	for i, q := range a.Questions {
		q.Counts = append([]ChoiceCount(nil), q.Counts...)
		out.Questions[i] = q
	}
	out.respondents = maps.Clone(a.respondents)
	if out.respondents == nil {
		out.respondents = make(map[string]int)
	}
	return out
}

// Percent computes round(count / total * 100) with halves rounded up.
// A zero total yields 0.
func Percent(count, total int) int {
	if total <= 0 || count <= 0 {
		return 0
	}
	return (200*count + total) / (2 * total)
}
