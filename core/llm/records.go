// Package llm defines the structural schemas the model provider (C2) is
// asked to fill, and the typed, constructor-validated records the model
// layer (C5) and extractor (C7) decode its output into. No I/O lives here;
// adapter/out/modelprovider owns the actual provider calls.
package llm

import (
	"fmt"

	"mailtriage/core/domain"
	"mailtriage/pkg/apperr"
)

// ClassificationSchema is the JSON schema description handed to the model
// provider for C5's completion request, constraining its response to
// {category, importance_score, confidence, reasoning, key_signals}.
const ClassificationSchema = `{
  "type": "object",
  "required": ["category", "importance_score", "confidence", "reasoning"],
  "properties": {
    "category": {"type": "string", "enum": ["important","action_required","nice_to_know","newsletter","system_notifications","spam"]},
    "importance_score": {"type": "number", "minimum": 0, "maximum": 1},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "reasoning": {"type": "string", "minLength": 10, "maxLength": 500},
    "key_signals": {"type": "array", "items": {"type": "string"}, "maxItems": 5}
  }
}`

// ClassificationRecord is the sealed record type C5 decodes the model's
// response into. NewClassificationRecord is the only constructor and it
// enforces every structural constraint the schema describes, so a decoded
// value is never seen in an invalid state.
type ClassificationRecord struct {
	Category        domain.Category
	ImportanceScore float64
	Confidence      float64
	Reasoning       string
	KeySignals      []string
}

// rawClassification mirrors the wire shape for json.Unmarshal before
// validation promotes it to a ClassificationRecord.
type rawClassification struct {
	Category        string   `json:"category"`
	ImportanceScore float64  `json:"importance_score"`
	Confidence      float64  `json:"confidence"`
	Reasoning       string   `json:"reasoning"`
	KeySignals      []string `json:"key_signals"`
}

// NewClassificationRecord validates a decoded payload and returns a sealed
// record, or a SchemaViolation error if any constraint is violated.
func NewClassificationRecord(raw []byte, unmarshal func([]byte, any) error) (*ClassificationRecord, error) {
	var r rawClassification
	if err := unmarshal(raw, &r); err != nil {
		return nil, apperr.SchemaViolation("classification response is not valid JSON", err)
	}
	cat := domain.Category(r.Category)
	if !cat.IsFinal() {
		return nil, apperr.SchemaViolation(fmt.Sprintf("classification response has invalid category %q", r.Category), nil)
	}
	if r.ImportanceScore < 0 || r.ImportanceScore > 1 {
		return nil, apperr.SchemaViolation("importance_score out of [0,1]", nil)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return nil, apperr.SchemaViolation("confidence out of [0,1]", nil)
	}
	if len(r.Reasoning) < 10 || len(r.Reasoning) > 500 {
		return nil, apperr.SchemaViolation("reasoning length out of [10,500]", nil)
	}
	if len(r.KeySignals) > 5 {
		r.KeySignals = r.KeySignals[:5]
	}
	return &ClassificationRecord{
		Category:        cat,
		ImportanceScore: r.ImportanceScore,
		Confidence:      r.Confidence,
		Reasoning:       r.Reasoning,
		KeySignals:      r.KeySignals,
	}, nil
}

// ExtractionSchema constrains C7's completion response.
const ExtractionSchema = `{
  "type": "object",
  "required": ["summary", "main_topic", "sentiment", "has_action_items", "tasks", "decisions", "questions"],
  "properties": {
    "summary": {"type": "string"},
    "main_topic": {"type": "string"},
    "sentiment": {"type": "string", "enum": ["positive","neutral","negative","urgent"]},
    "has_action_items": {"type": "boolean"},
    "tasks": {"type": "array"},
    "decisions": {"type": "array"},
    "questions": {"type": "array"}
  }
}`

// ExtractedTask, ExtractedDecision, ExtractedQuestion mirror the per-item
// shapes spec.md §3 defines for Task/Decision/Question, plus the
// source_context string the conservative-extraction prompt contract
// requires for every item (§4.7).
type ExtractedTask struct {
	Description          string  `json:"description"`
	Deadline             *string `json:"deadline"`
	Priority             string  `json:"priority"`
	RequiresActionFromMe bool    `json:"requires_action_from_me"`
	Assignee             *string `json:"assignee"`
	SourceContext        string  `json:"source_context"`
}

type ExtractedDecision struct {
	Question        string   `json:"question"`
	Options         []string `json:"options"`
	Recommendation  *string  `json:"recommendation"`
	Urgency         string   `json:"urgency"`
	RequiresMyInput bool     `json:"requires_my_input"`
	SourceContext   string   `json:"source_context"`
}

type ExtractedQuestion struct {
	QuestionText     string  `json:"question_text"`
	QuestionType     string  `json:"question_type"`
	Urgency          string  `json:"urgency"`
	RequiresResponse bool    `json:"requires_response"`
	SourceContext    string  `json:"source_context"`
}

// ExtractionRecord is the sealed record C7 decodes the model's response
// into.
type ExtractionRecord struct {
	Summary        string
	MainTopic      string
	Sentiment      string
	HasActionItems bool
	Tasks          []ExtractedTask
	Decisions      []ExtractedDecision
	Questions      []ExtractedQuestion
}

type rawExtraction struct {
	Summary        string              `json:"summary"`
	MainTopic      string              `json:"main_topic"`
	Sentiment      string              `json:"sentiment"`
	HasActionItems bool                `json:"has_action_items"`
	Tasks          []ExtractedTask     `json:"tasks"`
	Decisions      []ExtractedDecision `json:"decisions"`
	Questions      []ExtractedQuestion `json:"questions"`
}

var validSentiments = map[string]bool{"positive": true, "neutral": true, "negative": true, "urgent": true}

// NewExtractionRecord validates a decoded payload, enforcing that every
// item carries a non-empty source_context, per the conservative-extraction
// prompt contract (§4.7: "prefer omission over hallucination").
func NewExtractionRecord(raw []byte, unmarshal func([]byte, any) error) (*ExtractionRecord, error) {
	var r rawExtraction
	if err := unmarshal(raw, &r); err != nil {
		return nil, apperr.SchemaViolation("extraction response is not valid JSON", err)
	}
	if !validSentiments[r.Sentiment] {
		return nil, apperr.SchemaViolation(fmt.Sprintf("extraction response has invalid sentiment %q", r.Sentiment), nil)
	}
	for i, t := range r.Tasks {
		if t.SourceContext == "" {
			return nil, apperr.SchemaViolation(fmt.Sprintf("task %d missing source_context", i), nil)
		}
	}
	for i, d := range r.Decisions {
		if d.SourceContext == "" {
			return nil, apperr.SchemaViolation(fmt.Sprintf("decision %d missing source_context", i), nil)
		}
	}
	for i, q := range r.Questions {
		if q.SourceContext == "" {
			return nil, apperr.SchemaViolation(fmt.Sprintf("question %d missing source_context", i), nil)
		}
	}
	return &ExtractionRecord{
		Summary:        r.Summary,
		MainTopic:      r.MainTopic,
		Sentiment:      r.Sentiment,
		HasActionItems: r.HasActionItems,
		Tasks:          r.Tasks,
		Decisions:      r.Decisions,
		Questions:      r.Questions,
	}, nil
}
