package domain

// Category is the closed classification taxonomy produced by the ensemble
// combiner (C6). No layer or adapter may introduce a value outside this set.
type Category string

const (
	CategoryImportant     Category = "important"
	CategoryActionReq     Category = "action_required"
	CategoryNiceToKnow    Category = "nice_to_know"
	CategoryNewsletter    Category = "newsletter"
	CategorySystemNotif   Category = "system_notifications"
	CategorySpam          Category = "spam"
	// CategoryUncertain is returned only by the rule layer (C3) when none of
	// its detectors fire; it is never a final ensemble category.
	CategoryUncertain Category = "uncertain"
)

// ValidCategories is the closed set a final ensemble verdict may take.
var ValidCategories = []Category{
	CategoryImportant,
	CategoryActionReq,
	CategoryNiceToKnow,
	CategoryNewsletter,
	CategorySystemNotif,
	CategorySpam,
}

// IsFinal reports whether c is one of the six categories the ensemble may
// emit as a final verdict (excludes the rule layer's "uncertain").
func (c Category) IsFinal() bool {
	for _, v := range ValidCategories {
		if v == c {
			return true
		}
	}
	return false
}

// Layer identifies which classifier produced a LayerScore.
type Layer string

const (
	LayerRule    Layer = "rule"
	LayerHistory Layer = "history"
	LayerModel   Layer = "model"
)

// LayerScore is the uniform result shape every classifier layer returns,
// embedded into ProcessedEmail.LayerTrace for auditability. A layer that
// could not produce an opinion (history: no preference row; model: both
// back-ends failed) returns a null-score: Confidence 0, NullScore true.
type LayerScore struct {
	Layer           Layer    `json:"layer"`
	Category        Category `json:"category"`
	Importance      float64  `json:"importance"`
	Confidence      float64  `json:"confidence"`
	Reasoning       string   `json:"reasoning"`
	Signals         []string `json:"signals,omitempty"`
	ProcessingTimeMs int64   `json:"processing_time_ms"`
	ModelProvider   string   `json:"model_provider,omitempty"`
	NullScore       bool     `json:"null_score"`
}

// EnsembleVerdict is the weighted combination of the three LayerScores,
// produced by C6 and carried by ProcessedEmail as the final classification.
type EnsembleVerdict struct {
	Category    Category
	Importance  float64
	Confidence  float64
	Variance    float64
	NeedsReview bool
	LayerTrace  []LayerScore
}

// KnownDomain is a supplemental fast-path table the rule layer's
// domain-pattern detector consults before falling back to generic keyword
// heuristics. Read-only at classification time, same access discipline as
// SenderPreference/DomainPreference.
type KnownDomain struct {
	Domain     string   `db:"domain" json:"domain"`
	Category   Category `db:"category" json:"category"`
	Confidence float64  `db:"confidence" json:"confidence"`
	Source     string   `db:"source" json:"source"`
}
