// Package catalog holds the static question list and the answer choice set
// shared by every question in a session.
package catalog

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownQuestion = errors.New("unknown question")
	ErrUnknownChoice   = errors.New("unknown answer choice")
)

// Question is one prompt of the survey.
type Question struct {
	ID   int    `json:"id" yaml:"id"`
	Text string `json:"text" yaml:"text"`
}

// Choice is one selectable answer. Weight feeds the positive score and is
// expressed on a 0..100 scale.
type Choice struct {
	Key    string `json:"key" yaml:"key"`
	Label  string `json:"label" yaml:"label"`
	Weight int    `json:"weight" yaml:"weight"`
}

// ChoiceSet is the ordered, versioned set of choices. Sessions remember the
// version that was active when they were created.
type ChoiceSet struct {
	Version int      `json:"version" yaml:"version"`
	Choices []Choice `json:"choices" yaml:"choices"`
}

// Catalog is immutable after New; it is safe for concurrent use.
type Catalog struct {
	questions []Question
	choices   ChoiceSet

	questionIndex map[int]int
	choiceIndex   map[string]int
}

func New(questions []Question, choices ChoiceSet) (*Catalog, error) {
	if len(questions) == 0 {
		return nil, errors.New("catalog: at least one question is required")
	}
	if len(choices.Choices) < 2 {
		return nil, errors.New("catalog: at least two choices are required")
	}
	if choices.Version <= 0 {
		return nil, fmt.Errorf("catalog: choice set version must be positive, got %d", choices.Version)
	}

	c := &Catalog{
		questions:     make([]Question, 0, len(questions)),
		choices:       ChoiceSet{Version: choices.Version, Choices: make([]Choice, 0, len(choices.Choices))},
		questionIndex: make(map[int]int, len(questions)),
		choiceIndex:   make(map[string]int, len(choices.Choices)),
	}
	for _, q := range questions {
		q.Text = strings.TrimSpace(q.Text)
		if q.ID <= 0 {
			return nil, fmt.Errorf("catalog: question id must be positive, got %d", q.ID)
		}
		if q.Text == "" {
			return nil, fmt.Errorf("catalog: question %d has empty text", q.ID)
		}
		if _, dup := c.questionIndex[q.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate question id %d", q.ID)
		}
		c.questionIndex[q.ID] = len(c.questions)
		c.questions = append(c.questions, q)
	}
	for _, ch := range choices.Choices {
		ch.Key = strings.TrimSpace(ch.Key)
		ch.Label = strings.TrimSpace(ch.Label)
		if ch.Key == "" {
			return nil, errors.New("catalog: choice key is required")
		}
		if ch.Label == "" {
			ch.Label = ch.Key
		}
		if ch.Weight < 0 || ch.Weight > 100 {
			return nil, fmt.Errorf("catalog: choice %s weight must be within 0..100", ch.Key)
		}
		if _, dup := c.choiceIndex[ch.Key]; dup {
			return nil, fmt.Errorf("catalog: duplicate choice key %s", ch.Key)
		}
		c.choiceIndex[ch.Key] = len(c.choices.Choices)
		c.choices.Choices = append(c.choices.Choices, ch)
	}
	return c, nil
}

// Questions returns the questions in catalog order.
func (c *Catalog) Questions() []Question {
	out := make([]Question, len(c.questions))
	copy(out, c.questions)
	return out
}

// Choices returns the choice set in display order.
func (c *Catalog) Choices() ChoiceSet {
	out := ChoiceSet{Version: c.choices.Version, Choices: make([]Choice, len(c.choices.Choices))}
	copy(out.Choices, c.choices.Choices)
	return out
}

func (c *Catalog) ChoiceSetVersion() int {
	return c.choices.Version
}

// QuestionPosition returns the catalog position of a question id.
func (c *Catalog) QuestionPosition(id int) (int, bool) {
	i, ok := c.questionIndex[id]
	return i, ok
}

// ChoicePosition returns the display position of a choice key.
func (c *Catalog) ChoicePosition(key string) (int, bool) {
	i, ok := c.choiceIndex[key]
	return i, ok
}

// Validate reports whether a (question, choice) pair can be recorded.
func (c *Catalog) Validate(questionID int, choice string) error {
	if _, ok := c.questionIndex[questionID]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownQuestion, questionID)
	}
	if _, ok := c.choiceIndex[choice]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownChoice, choice)
	}
	return nil
}

func (c *Catalog) Weight(choice string) int {
	i, ok := c.choiceIndex[choice]
	if !ok {
		return 0
	}
	return c.choices.Choices[i].Weight
}
