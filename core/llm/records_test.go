package llm

import (
	"encoding/json"
	"testing"
)

func TestNewClassificationRecord(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{
			name: "valid payload",
			raw:  `{"category":"important","importance_score":0.9,"confidence":0.8,"reasoning":"clear action item from manager","key_signals":["urgent"]}`,
		},
		{
			name:    "invalid category rejected",
			raw:     `{"category":"uncertain","importance_score":0.5,"confidence":0.5,"reasoning":"this category is not in the final set"}`,
			wantErr: true,
		},
		{
			name:    "importance score out of range rejected",
			raw:     `{"category":"spam","importance_score":1.5,"confidence":0.5,"reasoning":"well past the allowed maximum"}`,
			wantErr: true,
		},
		{
			name:    "confidence out of range rejected",
			raw:     `{"category":"spam","importance_score":0.1,"confidence":-0.1,"reasoning":"negative confidence is invalid"}`,
			wantErr: true,
		},
		{
			name:    "reasoning too short rejected",
			raw:     `{"category":"spam","importance_score":0.1,"confidence":0.9,"reasoning":"short"}`,
			wantErr: true,
		},
		{
			name:    "malformed json rejected",
			raw:     `not json`,
			wantErr: true,
		},
		{
			name: "key signals truncated to five",
			raw:  `{"category":"newsletter","importance_score":0.3,"confidence":0.6,"reasoning":"six signals should be truncated to five","key_signals":["a","b","c","d","e","f"]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := NewClassificationRecord([]byte(tt.raw), json.Unmarshal)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(rec.KeySignals) > 5 {
				t.Errorf("KeySignals length = %d, want <= 5", len(rec.KeySignals))
			}
		})
	}
}

func TestNewExtractionRecord(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{
			name: "valid payload with grounded items",
			raw: `{"summary":"project update","main_topic":"launch","sentiment":"neutral","has_action_items":true,
				"tasks":[{"description":"review doc","priority":"high","requires_action_from_me":true,"source_context":"please review the attached doc by Friday"}],
				"decisions":[],"questions":[]}`,
		},
		{
			name:    "invalid sentiment rejected",
			raw:     `{"summary":"x","main_topic":"y","sentiment":"excited","has_action_items":false,"tasks":[],"decisions":[],"questions":[]}`,
			wantErr: true,
		},
		{
			name: "task missing source_context rejected",
			raw: `{"summary":"x","main_topic":"y","sentiment":"neutral","has_action_items":true,
				"tasks":[{"description":"review doc","priority":"high","requires_action_from_me":true}],
				"decisions":[],"questions":[]}`,
			wantErr: true,
		},
		{
			name: "decision missing source_context rejected",
			raw: `{"summary":"x","main_topic":"y","sentiment":"neutral","has_action_items":false,
				"tasks":[],"decisions":[{"question":"which vendor","options":["a","b"],"urgency":"low","requires_my_input":true}],
				"questions":[]}`,
			wantErr: true,
		},
		{
			name: "question missing source_context rejected",
			raw: `{"summary":"x","main_topic":"y","sentiment":"neutral","has_action_items":false,
				"tasks":[],"decisions":[],"questions":[{"question_text":"when is the deadline","question_type":"factual","urgency":"low","requires_response":true}]}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewExtractionRecord([]byte(tt.raw), json.Unmarshal)
			if tt.wantErr && err == nil {
				t.Fatalf("expected error, got none")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
