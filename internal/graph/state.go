package graph

import (
	"time"

	"github.com/Divas-Gupta30/esports-agent/internal/storage"
)

// MaxRetries bounds the SQL correction loop for a single turn.
const MaxRetries = 3

// PathDecision is the router's classification of a turn.
type PathDecision string

const (
	PathAPI      PathDecision = "API"
	PathFollowUp PathDecision = "FollowUp"
)

// State is the conversation record threaded through the graph. One exists
// per session; fields other than OriginalQuery and Summary carry over
// between turns.
type State struct {
	OriginalQuery string       `json:"originalQuery"`
	PathDecision  PathDecision `json:"pathDecision,omitempty"`
	CurrentDate   string       `json:"currentDate,omitempty"`

	Name          string `json:"name,omitempty"`
	BestNameMatch string `json:"bestNameMatch,omitempty"`
	BestNameScore int    `json:"bestNameScore,omitempty"`
	NameExists    *bool  `json:"nameExists,omitempty"`

	SQLQuery string `json:"sqlQuery,omitempty"`
	// nil means no result set; an empty slice is a successful empty result.
	SQLQueryResults []storage.Row `json:"sqlQueryResults"`
	SQLError        string        `json:"sqlError,omitempty"`
	Summary         string        `json:"summary,omitempty"`
	RetryCount      int           `json:"retryCount"`

	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewState returns the record for a session's first turn.
func NewState(question string) *State {
	return &State{OriginalQuery: question}
}

// beginTurn readies a stored record for a new question.
func (s *State) beginTurn(question string, now time.Time) {
	s.OriginalQuery = question
	s.CurrentDate = now.Format("January 2, 2006")
	s.Summary = ""
}

// beginLookup clears the per-lookup fields before a fresh query is built.
// RetryCount resets here so an earlier turn's failures cannot exhaust the
// budget of an unrelated question.
func (s *State) beginLookup() {
	s.Name = ""
	s.BestNameMatch = ""
	s.BestNameScore = 0
	s.NameExists = nil
	s.SQLQuery = ""
	s.SQLError = ""
	s.RetryCount = 0
}

func boolPtr(b bool) *bool {
	return &b
}
