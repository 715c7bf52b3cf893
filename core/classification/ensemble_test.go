package classification

import (
	"math"
	"testing"

	"mailtriage/core/domain"
)

func eq(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestCombineUnanimousAgreementBoostsConfidence(t *testing.T) {
	weights := Weights{Rule: 0.3, History: 0.3, Model: 0.4}
	results := map[domain.Layer]domain.LayerScore{
		domain.LayerRule:    {Layer: domain.LayerRule, Category: domain.CategoryImportant, Importance: 0.8, Confidence: 0.7},
		domain.LayerHistory: {Layer: domain.LayerHistory, Category: domain.CategoryImportant, Importance: 0.8, Confidence: 0.6},
		domain.LayerModel:   {Layer: domain.LayerModel, Category: domain.CategoryImportant, Importance: 0.8, Confidence: 0.9},
	}

	verdict := combine(results, weights)

	if verdict.Category != domain.CategoryImportant {
		t.Errorf("Category = %v, want %v", verdict.Category, domain.CategoryImportant)
	}
	if verdict.NeedsReview {
		t.Errorf("NeedsReview = true, want false for unanimous agreement")
	}
	baseConfidence := 0.7*0.3 + 0.6*0.3 + 0.9*0.4
	want := math.Min(1, baseConfidence+0.20)
	if !eq(verdict.Confidence, want) {
		t.Errorf("Confidence = %v, want %v", verdict.Confidence, want)
	}
}

func TestCombineMajorityAgreementSmallerBoost(t *testing.T) {
	weights := Weights{Rule: 0.3, History: 0.3, Model: 0.4}
	results := map[domain.Layer]domain.LayerScore{
		domain.LayerRule:    {Layer: domain.LayerRule, Category: domain.CategoryImportant, Importance: 0.8, Confidence: 0.7},
		domain.LayerHistory: {Layer: domain.LayerHistory, Category: domain.CategoryImportant, Importance: 0.7, Confidence: 0.6},
		domain.LayerModel:   {Layer: domain.LayerModel, Category: domain.CategoryNewsletter, Importance: 0.3, Confidence: 0.9},
	}

	verdict := combine(results, weights)

	if verdict.Category != domain.CategoryImportant {
		t.Errorf("Category = %v, want %v (majority of 2/3)", verdict.Category, domain.CategoryImportant)
	}
	if verdict.NeedsReview {
		t.Errorf("NeedsReview = true, want false for majority agreement")
	}
}

func TestCombineFullDisagreementPenalizesAndFlagsReview(t *testing.T) {
	weights := Weights{Rule: 0.3, History: 0.3, Model: 0.4}
	results := map[domain.Layer]domain.LayerScore{
		domain.LayerRule:    {Layer: domain.LayerRule, Category: domain.CategoryImportant, Importance: 0.8, Confidence: 0.7},
		domain.LayerHistory: {Layer: domain.LayerHistory, Category: domain.CategoryNewsletter, Importance: 0.3, Confidence: 0.6},
		domain.LayerModel:   {Layer: domain.LayerModel, Category: domain.CategorySpam, Importance: 0.0, Confidence: 0.9},
	}

	verdict := combine(results, weights)

	if !verdict.NeedsReview {
		t.Errorf("NeedsReview = false, want true when all three layers disagree")
	}
}

func TestCombineAllNullLayersFallsBackToFinalCategory(t *testing.T) {
	weights := Weights{Rule: 0.3, History: 0.3, Model: 0.4}
	results := map[domain.Layer]domain.LayerScore{
		domain.LayerRule:    {Layer: domain.LayerRule, NullScore: true, Category: domain.CategoryUncertain},
		domain.LayerHistory: {Layer: domain.LayerHistory, NullScore: true, Category: domain.CategoryUncertain},
		domain.LayerModel:   {Layer: domain.LayerModel, NullScore: true, Category: domain.CategoryUncertain},
	}

	verdict := combine(results, weights)

	// CategoryUncertain is the rule layer's internal "no opinion" sentinel,
	// never a valid ensemble output; every layer abstaining must still
	// resolve to one of the six final categories.
	if verdict.Category != domain.CategoryNiceToKnow {
		t.Errorf("Category = %v, want %v", verdict.Category, domain.CategoryNiceToKnow)
	}
	if !verdict.Category.IsFinal() {
		t.Errorf("Category = %v is not a valid final category", verdict.Category)
	}
	if verdict.Confidence != 0 {
		t.Errorf("Confidence = %v, want 0", verdict.Confidence)
	}
	if !verdict.NeedsReview {
		t.Errorf("NeedsReview = false, want true when no layer has an opinion")
	}
}

func TestCombineNullLayerWeightRedistributed(t *testing.T) {
	// History is null: its weight must be redistributed over rule+model,
	// not silently dropped from the confidence sum.
	weights := Weights{Rule: 0.3, History: 0.3, Model: 0.4}
	results := map[domain.Layer]domain.LayerScore{
		domain.LayerRule:    {Layer: domain.LayerRule, Category: domain.CategoryImportant, Importance: 0.8, Confidence: 0.8},
		domain.LayerHistory: {Layer: domain.LayerHistory, NullScore: true, Category: domain.CategoryUncertain},
		domain.LayerModel:   {Layer: domain.LayerModel, Category: domain.CategoryImportant, Importance: 0.8, Confidence: 0.8},
	}

	verdict := combine(results, weights)

	if verdict.Category != domain.CategoryImportant {
		t.Errorf("Category = %v, want %v", verdict.Category, domain.CategoryImportant)
	}
	// unanimous among the two active layers: 0.8 + 0.20 boost, clamped to 1.0
	if !eq(verdict.Confidence, 1.0) {
		t.Errorf("Confidence = %v, want 1.0 (0.8 base + 0.20 unanimity boost clamped)", verdict.Confidence)
	}
}

func TestCanSmartSkip(t *testing.T) {
	tests := []struct {
		name    string
		rule    domain.LayerScore
		history domain.LayerScore
		want    bool
	}{
		{
			name:    "agreement above threshold with low importance can skip",
			rule:    domain.LayerScore{Category: domain.CategoryNewsletter, Confidence: 0.8, Importance: 0.3},
			history: domain.LayerScore{Category: domain.CategoryNewsletter, Confidence: 0.75, Importance: 0.3},
			want:    true,
		},
		{
			name:    "disagreement cannot skip",
			rule:    domain.LayerScore{Category: domain.CategoryNewsletter, Confidence: 0.9, Importance: 0.3},
			history: domain.LayerScore{Category: domain.CategoryImportant, Confidence: 0.9, Importance: 0.8},
			want:    false,
		},
		{
			name:    "low confidence cannot skip even if categories agree",
			rule:    domain.LayerScore{Category: domain.CategoryNewsletter, Confidence: 0.5, Importance: 0.3},
			history: domain.LayerScore{Category: domain.CategoryNewsletter, Confidence: 0.9, Importance: 0.3},
			want:    false,
		},
		{
			name:    "high importance agreement cannot skip (needs model opinion)",
			rule:    domain.LayerScore{Category: domain.CategoryImportant, Confidence: 0.9, Importance: 0.9},
			history: domain.LayerScore{Category: domain.CategoryImportant, Confidence: 0.9, Importance: 0.9},
			want:    false,
		},
		{
			name:    "null score layer cannot skip",
			rule:    domain.LayerScore{Category: domain.CategoryNewsletter, Confidence: 0.9, Importance: 0.3, NullScore: true},
			history: domain.LayerScore{Category: domain.CategoryNewsletter, Confidence: 0.9, Importance: 0.3},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := canSmartSkip(tt.rule, tt.history); got != tt.want {
				t.Errorf("canSmartSkip() = %v, want %v", got, tt.want)
			}
		})
	}
}
