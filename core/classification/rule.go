// Package classification implements the three layers of the ensemble
// classifier (rule, history, model) plus the combiner that joins them.
package classification

import (
	"context"
	"strings"

	"mailtriage/core/domain"
	"mailtriage/core/port/out"
)

// RuleLayer is C3: a pure, stateless function of (subject, body, sender).
// Four detectors are evaluated one after another; the highest-scoring wins, ties broken
// spam > auto-reply > newsletter > system per spec.md §4.3.
type RuleLayer struct {
	knownDomains out.KnownDomainRepository
}

func NewRuleLayer(knownDomains out.KnownDomainRepository) *RuleLayer {
	return &RuleLayer{knownDomains: knownDomains}
}

type detectorResult struct {
	name       string
	matched    bool
	score      int
	category   domain.Category
	importance float64
	confidence float64
	signals    []string
}

// precedence gives each detector's tie-break rank; lower wins ties.
var precedence = map[string]int{"spam": 0, "auto-reply": 1, "newsletter": 2, "system": 3}

// Classify runs the four detectors and returns the single highest-scoring
// verdict, or category=uncertain, confidence=0 if none fire.
func (r *RuleLayer) Classify(ctx context.Context, email domain.EmailToClassify) domain.LayerScore {
	subjectLower := strings.ToLower(email.Subject)
	bodyLower := strings.ToLower(email.BodyText)
	senderLower := strings.ToLower(email.Sender)

	results := []detectorResult{
		detectSpam(email.Subject, subjectLower, bodyLower, senderLower),
		detectAutoReply(subjectLower, senderLower),
		detectNewsletter(subjectLower, bodyLower),
		detectSystemNotification(subjectLower, senderLower),
	}

	if kd := r.domainFastPath(ctx, email.SenderDomain); kd != nil {
		results = append(results, *kd)
	}

	best := pickBest(results)
	if best == nil {
		return domain.LayerScore{
			Layer:      domain.LayerRule,
			Category:   domain.CategoryUncertain,
			Confidence: 0,
			Reasoning:  "no rule detector matched",
			NullScore:  true,
		}
	}

	return domain.LayerScore{
		Layer:      domain.LayerRule,
		Category:   best.category,
		Importance: best.importance,
		Confidence: best.confidence,
		Reasoning:  best.name + " detector matched",
		Signals:    best.signals,
	}
}

func (r *RuleLayer) domainFastPath(ctx context.Context, senderDomain string) *detectorResult {
	if r.knownDomains == nil || senderDomain == "" {
		return nil
	}
	kd, err := r.knownDomains.Lookup(ctx, senderDomain)
	if err != nil || kd == nil {
		return nil
	}
	return &detectorResult{
		name:       "known-domain",
		matched:    true,
		score:      3,
		category:   kd.Category,
		importance: importanceForCategory(kd.Category),
		confidence: kd.Confidence,
		signals:    []string{"known_domain:" + senderDomain},
	}
}

func pickBest(results []detectorResult) *detectorResult {
	var best *detectorResult
	for i := range results {
		r := &results[i]
		if !r.matched {
			continue
		}
		if best == nil || r.score > best.score {
			best = r
			continue
		}
		if r.score == best.score {
			if precedence[r.name] < precedence[best.name] {
				best = r
			}
		}
	}
	return best
}

var spamKeywords = []string{
	"you have won", "claim your prize", "act now", "limited time offer",
	"work from home", "100% free", "click here now", "guaranteed",
	"viagra", "weight loss", "congratulations you", "urgent response required",
	"nigerian prince", "wire transfer", "lottery winner",
}

func detectSpam(subject, subjectLower, bodyLower, senderLower string) detectorResult {
	score := 0
	var signals []string
	combined := subjectLower + " " + bodyLower
	for _, kw := range spamKeywords {
		if strings.Contains(combined, kw) {
			score++
			signals = append(signals, "spam_keyword:"+kw)
		}
	}
	if strings.Count(subjectLower, "!") >= 3 {
		score++
		signals = append(signals, "excessive_exclamation")
	}
	if isAllCapsWords(subject) {
		score++
		signals = append(signals, "all_caps_subject")
	}
	if strings.Contains(senderLower, "lottery") || strings.Contains(senderLower, "winner") {
		score++
		signals = append(signals, "suspicious_sender")
	}

	if score >= 3 {
		return detectorResult{name: "spam", matched: true, score: score, category: domain.CategorySpam, importance: 0.00, confidence: 0.95, signals: signals}
	}
	return detectorResult{name: "spam", matched: false, score: score}
}

var autoReplyMarkers = []string{
	"out of office", "auto-reply", "automatic reply", "away from", "do-not-reply",
	"no-reply", "noreply", "this is an automated message", "auto reply",
}

func detectAutoReply(subjectLower, senderLower string) detectorResult {
	score := 0
	var signals []string
	for _, m := range autoReplyMarkers {
		if strings.Contains(subjectLower, m) || strings.Contains(senderLower, m) {
			score++
			signals = append(signals, "auto_reply_marker:"+m)
		}
	}
	if score >= 2 {
		return detectorResult{name: "auto-reply", matched: true, score: score, category: domain.CategorySystemNotif, importance: 0.10, confidence: 0.70, signals: signals}
	}
	return detectorResult{name: "auto-reply", matched: false, score: score}
}

var newsletterMarkers = []string{
	"unsubscribe", "newsletter", "view in browser", "view this email in your browser",
	"you are receiving this email because", "manage your subscription", "weekly digest",
}

func detectNewsletter(subjectLower, bodyLower string) detectorResult {
	score := 0
	var signals []string
	for _, m := range newsletterMarkers {
		if strings.Contains(bodyLower, m) || strings.Contains(subjectLower, m) {
			score++
			signals = append(signals, "newsletter_marker:"+m)
		}
	}
	if score >= 2 {
		return detectorResult{name: "newsletter", matched: true, score: score, category: domain.CategoryNewsletter, importance: 0.30, confidence: 0.65, signals: signals}
	}
	return detectorResult{name: "newsletter", matched: false, score: score}
}

var systemKeywords = []string{
	"password reset", "verify your email", "account alert", "security alert",
	"your invoice", "receipt for", "payment confirmation", "system notification",
	"maintenance window", "service update",
}

func detectSystemNotification(subjectLower, senderLower string) detectorResult {
	score := 0
	var signals []string
	if strings.Contains(senderLower, "no-reply") || strings.Contains(senderLower, "noreply") || strings.Contains(senderLower, "system") {
		score++
		signals = append(signals, "no_reply_sender")
	}
	for _, kw := range systemKeywords {
		if strings.Contains(subjectLower, kw) {
			score++
			signals = append(signals, "system_keyword:"+kw)
		}
	}
	if score >= 2 {
		return detectorResult{name: "system", matched: true, score: score, category: domain.CategorySystemNotif, importance: 0.40, confidence: 0.50, signals: signals}
	}
	return detectorResult{name: "system", matched: false, score: score}
}

func isAllCapsWords(s string) bool {
	words := strings.Fields(s)
	caps := 0
	for _, w := range words {
		if len(w) >= 4 && w == strings.ToUpper(w) && w != strings.ToLower(w) {
			caps++
		}
	}
	return caps >= 2
}

func importanceForCategory(c domain.Category) float64 {
	switch c {
	case domain.CategoryImportant:
		return 0.85
	case domain.CategoryActionReq:
		return 0.70
	case domain.CategoryNiceToKnow:
		return 0.40
	case domain.CategoryNewsletter:
		return 0.30
	case domain.CategorySystemNotif:
		return 0.40
	case domain.CategorySpam:
		return 0.00
	default:
		return 0.30
	}
}
