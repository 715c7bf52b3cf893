package orchestrator

import (
	"context"
	"testing"
	"time"

	"mailtriage/core/classification"
	"mailtriage/core/domain"
	"mailtriage/core/eventlog"
	"mailtriage/core/extraction"
	"mailtriage/core/llm"
	"mailtriage/core/port/out"
	"mailtriage/core/review"
)

type fakeAccountRepo struct {
	accounts map[string]*domain.Account
}

func (f *fakeAccountRepo) Get(ctx context.Context, accountID string) (*domain.Account, error) {
	return f.accounts[accountID], nil
}

type fakeProcessedEmailRepo struct {
	byKey map[string]*domain.ProcessedEmail
}

func newFakeProcessedEmailRepo() *fakeProcessedEmailRepo {
	return &fakeProcessedEmailRepo{byKey: map[string]*domain.ProcessedEmail{}}
}

func (f *fakeProcessedEmailRepo) Upsert(ctx context.Context, email *domain.ProcessedEmail) error {
	cp := *email
	f.byKey[email.AccountID+"|"+email.EmailID] = &cp
	return nil
}

func (f *fakeProcessedEmailRepo) GetByAccountAndEmailID(ctx context.Context, accountID, emailID string) (*domain.ProcessedEmail, error) {
	return f.byKey[accountID+"|"+emailID], nil
}

func (f *fakeProcessedEmailRepo) Exists(ctx context.Context, accountID, emailID string) (bool, error) {
	_, ok := f.byKey[accountID+"|"+emailID]
	return ok, nil
}

type fakeMemoryRepo struct {
	tasks     []domain.Task
	decisions []domain.Decision
	questions []domain.Question
}

func (f *fakeMemoryRepo) SaveTasks(ctx context.Context, tasks []domain.Task) error {
	f.tasks = append(f.tasks, tasks...)
	return nil
}

func (f *fakeMemoryRepo) SaveDecisions(ctx context.Context, decisions []domain.Decision) error {
	f.decisions = append(f.decisions, decisions...)
	return nil
}

func (f *fakeMemoryRepo) SaveQuestions(ctx context.Context, questions []domain.Question) error {
	f.questions = append(f.questions, questions...)
	return nil
}

type fakeEventRepo struct {
	events []domain.Event
}

func (f *fakeEventRepo) Append(ctx context.Context, event domain.Event) (string, error) {
	event.EventID = "generated-" + string(event.Type)
	f.events = append(f.events, event)
	return event.EventID, nil
}

func (f *fakeEventRepo) Query(ctx context.Context, filter domain.EventFilter) ([]domain.Event, error) {
	return f.events, nil
}

type fakeReviewRepo struct {
	items map[string]*domain.ReviewQueueItem
}

func newFakeReviewRepo() *fakeReviewRepo { return &fakeReviewRepo{items: map[string]*domain.ReviewQueueItem{}} }

func (f *fakeReviewRepo) Enqueue(ctx context.Context, item *domain.ReviewQueueItem) error {
	cp := *item
	f.items[item.ID] = &cp
	return nil
}
func (f *fakeReviewRepo) Get(ctx context.Context, id string) (*domain.ReviewQueueItem, error) {
	return f.items[id], nil
}
func (f *fakeReviewRepo) List(ctx context.Context, filter out.ReviewListFilter) ([]domain.ReviewQueueItem, int, error) {
	var r []domain.ReviewQueueItem
	for _, i := range f.items {
		r = append(r, *i)
	}
	return r, len(r), nil
}
func (f *fakeReviewRepo) Transition(ctx context.Context, id string, expectedVersion int, mutate func(*domain.ReviewQueueItem)) error {
	item := f.items[id]
	mutate(item)
	return nil
}

type fakeModelProvider struct {
	rawJSON string
}

func (f *fakeModelProvider) Complete(ctx context.Context, req out.CompletionRequest) (out.CompletionResult, error) {
	return out.CompletionResult{RawJSON: f.rawJSON, ProviderUsed: "primary"}, nil
}

type fakeKnownDomainRepo struct{}

func (fakeKnownDomainRepo) Lookup(ctx context.Context, d string) (*domain.KnownDomain, error) {
	return nil, nil
}

type fakePreferenceRepo struct{}

func (fakePreferenceRepo) GetSenderPreference(ctx context.Context, accountID, senderEmail string) (*domain.SenderPreference, error) {
	return nil, nil
}
func (fakePreferenceRepo) GetDomainPreference(ctx context.Context, accountID, domainName string) (*domain.DomainPreference, error) {
	return nil, nil
}
func (fakePreferenceRepo) UpsertSenderPreference(ctx context.Context, pref *domain.SenderPreference) error {
	return nil
}
func (fakePreferenceRepo) UpsertDomainPreference(ctx context.Context, pref *domain.DomainPreference) error {
	return nil
}

func buildTestOrchestrator(t *testing.T, memory out.MemoryRepository, classifyJSON, extractJSON string) (*Orchestrator, *fakeEventRepo, *fakeProcessedEmailRepo) {
	t.Helper()
	classifyProvider := &fakeModelProvider{rawJSON: classifyJSON}
	extractProvider := &fakeModelProvider{rawJSON: extractJSON}

	rule := classification.NewRuleLayer(fakeKnownDomainRepo{})
	history := classification.NewHistoryLayer(fakePreferenceRepo{}, nil)
	model := classification.NewModelLayer(llm.NewClient(classifyProvider))
	combiner := classification.NewCombiner(rule, history, model, classification.CombinerConfig{
		BootstrapWeights: classification.DefaultBootstrapWeights,
		SteadyWeights:    classification.DefaultSteadyWeights,
	})

	extractor := extraction.NewExtractor(llm.NewClient(extractProvider))
	processed := newFakeProcessedEmailRepo()
	events := &fakeEventRepo{}
	reviewQ := review.NewQueue(newFakeReviewRepo(), nil)
	accounts := &fakeAccountRepo{accounts: map[string]*domain.Account{
		"acc1": {AccountID: "acc1", CreatedAt: time.Now().Add(-30 * 24 * time.Hour)},
	}}

	orc := NewOrchestrator(combiner, extractor, processed, nil, memory, reviewQ, accounts, eventlog.NewLog(events), Config{
		HighConfidenceThreshold:   0.90,
		MediumConfidenceThreshold: 0.65,
	})
	return orc, events, processed
}

const validExtractionJSON = `{
	"summary":"quick update","main_topic":"status","sentiment":"neutral","has_action_items":false,
	"tasks":[], "decisions":[], "questions":[]
}`

func TestOrchestratorProcessMessageAutoApply(t *testing.T) {
	orc, events, processed := buildTestOrchestrator(t, nil,
		`{"category":"spam","importance_score":0.0,"confidence":0.95,"reasoning":"matches spam keyword patterns repeatedly"}`,
		validExtractionJSON)

	ref := domain.RawMessageRef{AccountID: "acc1", EmailID: "email1"}
	body := out.RawBody{Subject: "Claim your prize now", Sender: "spammer@bad.com", Text: "you have won! act now, 100% free, guaranteed"}

	result, err := orc.ProcessMessage(context.Background(), "acc1", ref, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Route != RouteAutoApply {
		t.Errorf("Route = %v, want %v", result.Route, RouteAutoApply)
	}

	pe := processed.byKey["acc1|email1"]
	if pe == nil {
		t.Fatalf("expected processed email to be persisted")
	}
	if pe.Category != domain.CategorySpam {
		t.Errorf("Category = %v, want %v", pe.Category, domain.CategorySpam)
	}

	var sawClassified bool
	for _, e := range events.events {
		if e.Type == domain.EventEmailClassified {
			sawClassified = true
		}
	}
	if !sawClassified {
		t.Errorf("expected an EMAIL_CLASSIFIED event to be appended")
	}
}

func TestOrchestratorProcessMessageRoutesToReviewQueue(t *testing.T) {
	orc, _, _ := buildTestOrchestrator(t, nil,
		`{"category":"nice_to_know","importance_score":0.4,"confidence":0.5,"reasoning":"generic update with no clear urgency"}`,
		validExtractionJSON)

	ref := domain.RawMessageRef{AccountID: "acc1", EmailID: "email2"}
	body := out.RawBody{Subject: "An update", Sender: "stranger@unknown.com", Text: "just checking in"}

	result, err := orc.ProcessMessage(context.Background(), "acc1", ref, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Route != RouteReviewQueue {
		t.Errorf("Route = %v, want %v", result.Route, RouteReviewQueue)
	}
	if result.ReviewItemID == "" {
		t.Errorf("expected a non-empty ReviewItemID when routed to review")
	}
}

func TestOrchestratorProcessMessagePersistsExtractionToMemory(t *testing.T) {
	memory := &fakeMemoryRepo{}
	orc, _, _ := buildTestOrchestrator(t, memory,
		`{"category":"action_required","importance_score":0.7,"confidence":0.95,"reasoning":"clear request requiring a reply"}`,
		`{
			"summary":"needs review","main_topic":"contract","sentiment":"neutral","has_action_items":true,
			"tasks":[{"description":"sign the contract","priority":"high","requires_action_from_me":true,"source_context":"please sign the attached contract by Friday"}],
			"decisions":[],"questions":[]
		}`)

	ref := domain.RawMessageRef{AccountID: "acc1", EmailID: "email3"}
	body := out.RawBody{Subject: "Contract", Sender: "legal@company.com", Text: "please sign the attached contract by Friday"}

	if _, err := orc.ProcessMessage(context.Background(), "acc1", ref, body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(memory.tasks) != 1 {
		t.Fatalf("expected one task persisted to memory, got %d", len(memory.tasks))
	}
	if memory.tasks[0].AccountID != "acc1" || memory.tasks[0].EmailID != "email3" {
		t.Errorf("task BackRef mismatch: %+v", memory.tasks[0].BackRef)
	}
}

func TestOrchestratorProcessMessageNilMemoryIsNoOp(t *testing.T) {
	orc, _, _ := buildTestOrchestrator(t, nil,
		`{"category":"action_required","importance_score":0.7,"confidence":0.95,"reasoning":"clear request requiring a reply"}`,
		validExtractionJSON)

	ref := domain.RawMessageRef{AccountID: "acc1", EmailID: "email4"}
	body := out.RawBody{Subject: "hi", Sender: "a@b.com"}

	if _, err := orc.ProcessMessage(context.Background(), "acc1", ref, body); err != nil {
		t.Fatalf("expected nil memory repository to be a no-op, got error: %v", err)
	}
}

func TestOrchestratorProcessMessageIdempotentReprocessingKeepsIdentity(t *testing.T) {
	orc, _, processed := buildTestOrchestrator(t, nil,
		`{"category":"spam","importance_score":0.0,"confidence":0.95,"reasoning":"matches spam keyword patterns repeatedly"}`,
		validExtractionJSON)

	ref := domain.RawMessageRef{AccountID: "acc1", EmailID: "email5"}
	body := out.RawBody{Subject: "Claim your prize", Sender: "spammer@bad.com", Text: "you have won! act now, 100% free, guaranteed"}

	first, err := orc.ProcessMessage(context.Background(), "acc1", ref, body)
	if err != nil {
		t.Fatalf("unexpected error on first run: %v", err)
	}
	second, err := orc.ProcessMessage(context.Background(), "acc1", ref, body)
	if err != nil {
		t.Fatalf("unexpected error on second run: %v", err)
	}

	if first.ProcessedEmail.ID != second.ProcessedEmail.ID {
		t.Errorf("expected re-processing to keep the same ProcessedEmail ID, got %q then %q", first.ProcessedEmail.ID, second.ProcessedEmail.ID)
	}
	if len(processed.byKey) != 1 {
		t.Errorf("expected exactly one processed email row for (account,email), got %d", len(processed.byKey))
	}
}

// TestOrchestratorProcessMessageAllLayersAbstainPersistsFinalCategory guards
// the storage boundary: even if every classification layer abstains, the
// persisted ProcessedEmail.Category must be one of the six final categories,
// never the rule layer's internal uncertain sentinel.
func TestOrchestratorProcessMessageAllLayersAbstainPersistsFinalCategory(t *testing.T) {
	orc, _, processed := buildTestOrchestrator(t, nil, "not valid json", validExtractionJSON)

	ref := domain.RawMessageRef{AccountID: "acc1", EmailID: "email6"}
	body := out.RawBody{Subject: "hi", Sender: "stranger@unknown.com", Text: "just saying hello"}

	result, err := orc.ProcessMessage(context.Background(), "acc1", ref, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pe := processed.byKey["acc1|email6"]
	if pe == nil {
		t.Fatalf("expected processed email to be persisted")
	}
	if !pe.Category.IsFinal() {
		t.Errorf("persisted Category = %v, not one of the six final categories", pe.Category)
	}
	if result.Route != RouteReviewQueue {
		t.Errorf("Route = %v, want %v when every layer abstains", result.Route, RouteReviewQueue)
	}
}
