package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// OptionLabels are the labels a question may use, in display order.
var OptionLabels = []string{"A", "B", "C", "D"}

// Question is a multiple-choice question as stored under quizzes/{category}.
// CorrectAnswer holds the text of the correct option, not its label.
type Question struct {
	ID            string  `json:"id"`
	Text          string  `json:"question"`
	Options       Options `json:"options"`
	CorrectAnswer string  `json:"correct_answer"`
}

// Options maps a label ("A".."D") to option text. Lists written by older clients
// are labelled in order when decoded.
type Options map[string]string

func (o *Options) UnmarshalJSON(data []byte) error {
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("[")) {
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		if len(list) > len(OptionLabels) {
			return fmt.Errorf("%w: %d options", ErrInvalidQuestion, len(list))
		}
		out := make(Options, len(list))
		for i, text := range list {
			out[OptionLabels[i]] = text
		}
		*o = out
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*o = m
	return nil
}

// Labels returns the option labels present on the question, sorted.
func (q Question) Labels() []string {
	labels := make([]string, 0, len(q.Options))
	for label := range q.Options {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// CorrectLabel returns the label whose text matches CorrectAnswer, or "".
func (q Question) CorrectLabel() string {
	for _, label := range q.Labels() {
		if q.Options[label] == q.CorrectAnswer {
			return label
		}
	}
	return ""
}

// Validate checks the 2 to 4 labelled options and that the correct answer is one of them.
func (q Question) Validate() error {
	if q.Text == "" {
		return fmt.Errorf("%w: empty question text", ErrInvalidQuestion)
	}
	if len(q.Options) < 2 || len(q.Options) > len(OptionLabels) {
		return fmt.Errorf("%w: want 2 to 4 options, got %d", ErrInvalidQuestion, len(q.Options))
	}
	for label, text := range q.Options {
		if !validLabel(label) {
			return fmt.Errorf("%w: unknown option label %q", ErrInvalidQuestion, label)
		}
		if text == "" {
			return fmt.Errorf("%w: option %s is empty", ErrInvalidQuestion, label)
		}
	}
	if q.CorrectLabel() == "" {
		return fmt.Errorf("%w: correct answer is not one of the options", ErrInvalidQuestion)
	}
	return nil
}

func validLabel(label string) bool {
	for _, l := range OptionLabels {
		if l == label {
			return true
		}
	}
	return false
}

// Category is read-only catalog metadata; Name partitions the question collection.
type Category struct {
	Name           string `json:"name"`
	Image          string `json:"image"`
	QuestionsCount int    `json:"questionsCount,omitempty"`
}

// AttemptRecord is written once per answered question per user and never mutated.
type AttemptRecord struct {
	UserID         string  `json:"userId"`
	Category       string  `json:"category"`
	Question       string  `json:"question"`
	SelectedAnswer string  `json:"selectedAnswer"`
	Answer         string  `json:"answer"`
	Options        Options `json:"options"`
}

// Correct reports whether the recorded selection matched the correct answer.
func (r AttemptRecord) Correct() bool {
	return r.SelectedAnswer == r.Answer
}

// AttemptHistory is everything one user has answered in one category.
type AttemptHistory struct {
	UserID   string          `json:"userId"`
	Category string          `json:"category"`
	Records  []AttemptRecord `json:"records"`
}

// Unranked is the rank of a user with no points.
const Unranked = 0

// DefaultDisplayName is shown for users with points but no directory entry.
const DefaultDisplayName = "Anonymous"

// LeaderboardRow is the derived join of a point total and a display name.
type LeaderboardRow struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Points      int64  `json:"points"`
}

// Standing is a leaderboard view for one user.
type Standing struct {
	Rows      []LeaderboardRow `json:"rows"`
	Rank      int              `json:"rank"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// Profile is an entry in the display-name directory.
type Profile struct {
	FullName string `json:"fullName"`
}
