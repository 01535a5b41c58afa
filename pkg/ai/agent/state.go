package agent

import (
	"fmt"

	"data-explorer-be/pkg/ai/parser"
)

// State is one step of a turn.
type State int

const (
	StateClassify State = iota
	StateGenerate
	StateExecute
	StateSuggest
	StateInsight
	StateDone
)

func (s State) String() string {
	switch s {
	case StateClassify:
		return "classify"
	case StateGenerate:
		return "generate"
	case StateExecute:
		return "execute"
	case StateSuggest:
		return "suggest"
	case StateInsight:
		return "insight"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Classification routes a turn. The zero value means the model answer could
// not be understood.
type Classification int

const (
	ClassificationUnknown Classification = iota
	ClassificationCodeGeneration
	ClassificationSuggestion
	ClassificationGreeting
)

func (c Classification) String() string {
	switch c {
	case ClassificationCodeGeneration:
		return parser.LabelCodeGeneration
	case ClassificationSuggestion:
		return parser.LabelSuggestion
	case ClassificationGreeting:
		return parser.LabelGreeting
	}
	return "unknown"
}

func (c Classification) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Classification) UnmarshalText(b []byte) error {
	*c = ClassificationFromLabel(string(b))
	return nil
}

// ClassificationFromLabel maps a parser label to its enum value.
func ClassificationFromLabel(label string) Classification {
	switch label {
	case parser.LabelCodeGeneration:
		return ClassificationCodeGeneration
	case parser.LabelSuggestion:
		return ClassificationSuggestion
	case parser.LabelGreeting:
		return ClassificationGreeting
	}
	return ClassificationUnknown
}

// Transition is reported to observers every time a turn changes state.
type Transition struct {
	SessionID string `json:"session_id"`
	From      State  `json:"-"`
	To        State  `json:"-"`
	FromName  string `json:"from"`
	ToName    string `json:"to"`
	Attempt   int    `json:"attempt"`
	Error     string `json:"error,omitempty"`
}

// Observer receives transitions synchronously on the turn goroutine.
type Observer func(Transition)
