package domain

import "strings"

type RetrievalResult struct {
	QuestionID   string       `json:"question_id"`
	QuestionName string       `json:"question_name"`
	Context      string       `json:"context"`
	Score        float64      `json:"score"`
	MatchedOn    DocumentType `json:"matched_on"`
}

type ExpansionReason string

const (
	ExpansionReasonNone           ExpansionReason = ""
	ExpansionReasonShortMessage   ExpansionReason = "short-message"
	ExpansionReasonLowSignalToken ExpansionReason = "low-signal-token"
	ExpansionReasonNoResults      ExpansionReason = "no-results"
	ExpansionReasonWeakTopScore   ExpansionReason = "weak-top-score"
)

type ExpansionDecision struct {
	Triggered bool            `json:"triggered"`
	Reason    ExpansionReason `json:"reason,omitempty"`
}

// ExpansionMetadata describes a two-pass retrieval. It is never persisted.
type ExpansionMetadata struct {
	Triggered     bool            `json:"triggered"`
	Reason        ExpansionReason `json:"reason"`
	UsedPass2     bool            `json:"used_pass2"`
	Pass1Count    int             `json:"pass1_count"`
	Pass2Count    int             `json:"pass2_count"`
	Pass1TopScore float64         `json:"pass1_top_score"`
	Pass2TopScore float64         `json:"pass2_top_score"`
	Pass2Error    string          `json:"pass2_error,omitempty"`
	LatencyMs     float64         `json:"latency_ms"`
}

// PriorTurn carries the conversational context used to expand follow-ups.
type PriorTurn struct {
	PreviousUserMessage      string `json:"previous_user_message,omitempty"`
	PreviousAssistantSummary string `json:"previous_assistant_summary,omitempty"`
}

func (p PriorTurn) IsEmpty() bool {
	return strings.TrimSpace(p.PreviousUserMessage) == "" && strings.TrimSpace(p.PreviousAssistantSummary) == ""
}

type RetrievalOutcome struct {
	Results   []RetrievalResult  `json:"results"`
	Expansion *ExpansionMetadata `json:"expansion,omitempty"`
}

type ExactMatch struct {
	Question string `json:"question"`
	Context  string `json:"context"`
	Verbatim bool   `json:"verbatim"`
}

type ContextRequest struct {
	Question string    `json:"question"`
	Prior    PriorTurn `json:"prior"`
}

type ContextSource string

const (
	ContextSourceExactMatch ContextSource = "exact-match"
	ContextSourceRetrieval  ContextSource = "retrieval"
)

// ChatContext is what the chat handler receives. When RequiresGeneration is
// false, Answer is final and must not be forwarded to the generative model.
type ChatContext struct {
	Source             ContextSource      `json:"source"`
	ExactMatch         *ExactMatch        `json:"exact_match,omitempty"`
	Answer             string             `json:"answer,omitempty"`
	RequiresGeneration bool               `json:"requires_generation"`
	Results            []RetrievalResult  `json:"results"`
	Expansion          *ExpansionMetadata `json:"expansion,omitempty"`
}

func TopScore(results []RetrievalResult) float64 {
	if len(results) == 0 {
		return 0
	}
	return results[0].Score
}
