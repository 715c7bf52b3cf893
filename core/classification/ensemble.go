package classification

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"mailtriage/core/domain"
)

// Weights are the three per-layer weights the ensemble applies before
// summing. They always sum to 1 once redistributed over non-null layers.
type Weights struct {
	Rule    float64
	History float64
	Model   float64
}

// DefaultBootstrapWeights and DefaultSteadyWeights are spec.md §4.6's
// configured defaults; config.Config may override either.
var (
	DefaultBootstrapWeights = Weights{Rule: 0.30, History: 0.10, Model: 0.60}
	DefaultSteadyWeights    = Weights{Rule: 0.20, History: 0.30, Model: 0.50}
)

// CombinerConfig parameterizes the ensemble's weighting and smart-skip
// policy, sourced from config.Config's classification.* options.
type CombinerConfig struct {
	BootstrapWeights Weights
	SteadyWeights    Weights
	SmartLLMSkip     bool
	LayerTimeout     time.Duration
}

// Combiner is C6: runs C3, C4, and C5 and produces a single weighted
// verdict with an agreement metric.
type Combiner struct {
	rule    *RuleLayer
	history *HistoryLayer
	model   *ModelLayer
	cfg     CombinerConfig
}

func NewCombiner(rule *RuleLayer, history *HistoryLayer, model *ModelLayer, cfg CombinerConfig) *Combiner {
	if cfg.LayerTimeout == 0 {
		cfg.LayerTimeout = 10 * time.Second
	}
	return &Combiner{rule: rule, history: history, model: model, cfg: cfg}
}

// layerResult is the joined outcome of one layer's fan-out goroutine.
type layerResult struct {
	layer domain.Layer
	score domain.LayerScore
}

// Classify runs the three layers and joins their results before applying
// the weighted-vote algorithm. The rule layer has no I/O and is evaluated
// inline; history and model are dispatched onto goroutines (semaphore plus
// result channel, the join shape the teacher's batch classifier uses for N
// emails). The model layer is started only after the history result has
// been received, because its prompt carries the rule and history verdicts
// and smart-skip decides from them whether to call it at all, so the
// layers run one after another rather than concurrently.
func (c *Combiner) Classify(ctx context.Context, email domain.EmailToClassify, bootstrapPhase bool) domain.EnsembleVerdict {
	zlog := log.With().Str("component", "ensemble").Str("account_id", email.AccountID).Str("email_id", email.EmailID).Logger()

	sem := make(chan struct{}, 2)
	resultCh := make(chan layerResult, 2)

	startLayer := func(layer domain.Layer, fn func() domain.LayerScore) {
		sem <- struct{}{}
		go func() {
			defer func() { <-sem }()
			start := time.Now()
			score := fn()
			score.ProcessingTimeMs = time.Since(start).Milliseconds()
			resultCh <- layerResult{layer: layer, score: score}
		}()
	}

	layerCtx, cancel := context.WithTimeout(ctx, c.cfg.LayerTimeout)
	defer cancel()

	ruleScore := c.rule.Classify(layerCtx, email)
	startLayer(domain.LayerHistory, func() domain.LayerScore { return c.history.Classify(layerCtx, email) })

	historyResult := <-resultCh
	results := map[domain.Layer]domain.LayerScore{
		domain.LayerRule:    ruleScore,
		historyResult.layer: historyResult.score,
	}

	skip := c.cfg.SmartLLMSkip && canSmartSkip(ruleScore, historyResult.score)
	if skip {
		zlog.Info().Msg("smart-skip: rule and history agree strongly, skipping model layer")
		results[domain.LayerModel] = domain.LayerScore{Layer: domain.LayerModel, NullScore: true, Category: domain.CategoryUncertain}
	} else {
		startLayer(domain.LayerModel, func() domain.LayerScore {
			r, h := ruleScore, historyResult.score
			return c.model.Classify(layerCtx, email, &r, &h)
		})
		modelResult := <-resultCh
		results[modelResult.layer] = modelResult.score
	}

	weights := c.cfg.SteadyWeights
	if bootstrapPhase {
		weights = c.cfg.BootstrapWeights
	}

	verdict := combine(results, weights)
	zlog.Debug().Str("category", string(verdict.Category)).Float64("confidence", verdict.Confidence).Bool("needs_review", verdict.NeedsReview).Msg("ensemble verdict computed")
	return verdict
}

// canSmartSkip implements §4.6's optional optimization: C3 and C4 agree
// with confidence >= 0.70 each and the agreed importance is <= 0.80.
func canSmartSkip(rule, history domain.LayerScore) bool {
	if rule.NullScore || history.NullScore {
		return false
	}
	if rule.Category != history.Category {
		return false
	}
	if rule.Confidence < 0.70 || history.Confidence < 0.70 {
		return false
	}
	agreedImportance := (rule.Importance + history.Importance) / 2
	return agreedImportance <= 0.80
}

// active is one layer's score carrying its redistributed weight, after
// null-score layers have been dropped from the denominator.
type active struct {
	layer  domain.Layer
	score  domain.LayerScore
	weight float64
}

// combine applies the weighted-sum + precedence + agreement-boost
// algorithm from §4.6.
func combine(results map[domain.Layer]domain.LayerScore, weights Weights) domain.EnsembleVerdict {
	rawWeights := map[domain.Layer]float64{domain.LayerRule: weights.Rule, domain.LayerHistory: weights.History, domain.LayerModel: weights.Model}

	totalActive := 0.0
	for layer, w := range rawWeights {
		if s, ok := results[layer]; ok && !s.NullScore {
			totalActive += w
		}
	}

	var actives []active
	trace := make([]domain.LayerScore, 0, 3)
	for _, layer := range []domain.Layer{domain.LayerRule, domain.LayerHistory, domain.LayerModel} {
		s, ok := results[layer]
		if !ok {
			continue
		}
		trace = append(trace, s)
		if s.NullScore || totalActive == 0 {
			continue
		}
		actives = append(actives, active{layer: layer, score: s, weight: rawWeights[layer] / totalActive})
	}

	if len(actives) == 0 {
		// Every layer abstained. CategoryUncertain is not a valid final
		// category (domain.Category.IsFinal), so fall back to the same
		// low-importance, surfaced-for-review bucket the history layer
		// uses when it has a weak opinion, rather than leaking "uncertain"
		// out of the ensemble.
		return domain.EnsembleVerdict{
			Category:    domain.CategoryNiceToKnow,
			Confidence:  0,
			NeedsReview: true,
			LayerTrace:  trace,
		}
	}

	var importance, confidence float64
	for _, a := range actives {
		importance += a.score.Importance * a.weight
		confidence += a.score.Confidence * a.weight
	}

	category := pickCategory(actives)
	agreeCount, total := agreement(actives, category)

	switch {
	case agreeCount == total:
		confidence += 0.20
	case agreeCount*2 > total && total > 1:
		confidence += 0.10
	default:
		confidence -= 0.20
	}
	needsReview := agreeCount == 1 && total > 1

	return domain.EnsembleVerdict{
		Category:    category,
		Importance:  clamp01(importance),
		Confidence:  clamp01(confidence),
		Variance:    varianceOf(actives),
		NeedsReview: needsReview,
		LayerTrace:  trace,
	}
}

// pickCategory implements §4.6's precedence: unanimous, then majority,
// then the single largest-weighted layer.
func pickCategory(actives []active) domain.Category {
	counts := map[domain.Category]int{}
	maxWeight := -1.0
	var maxWeightCategory domain.Category

	for _, a := range actives {
		counts[a.score.Category]++
		if a.weight > maxWeight {
			maxWeight = a.weight
			maxWeightCategory = a.score.Category
		}
	}

	if len(counts) == 1 {
		for cat := range counts {
			return cat
		}
	}

	for cat, n := range counts {
		if n*2 > len(actives) {
			return cat
		}
	}

	return maxWeightCategory
}

func agreement(actives []active, category domain.Category) (agreeCount, total int) {
	total = len(actives)
	for _, a := range actives {
		if a.score.Category == category {
			agreeCount++
		}
	}
	return
}

func varianceOf(actives []active) float64 {
	if len(actives) == 0 {
		return 0
	}
	mean := 0.0
	for _, a := range actives {
		mean += a.score.Confidence
	}
	mean /= float64(len(actives))

	sumSq := 0.0
	for _, a := range actives {
		d := a.score.Confidence - mean
		sumSq += d * d
	}
	return sumSq / float64(len(actives))
}
