package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"planwise/internal/llm"
	"planwise/internal/logger"
	"planwise/internal/model"
	"planwise/internal/repository"
)

type suggestionEnv struct {
	svc         *SuggestionService
	provider    *fakeProvider
	patternRepo *repository.PatternRepository
	user        *model.User
}

func newSuggestionEnv(t *testing.T, provider *fakeProvider, patternConfidence float64) *suggestionEnv {
	t.Helper()
	db := newTestDB(t)
	patternRepo := repository.NewPatternRepository(db)
	user := seedUser(t, db, "UTC")

	patterns := []model.UserPattern{{
		PatternType: model.PatternPeakHours,
		PatternData: model.PatternData{"early_completion_rate": 0.9},
		Confidence:  patternConfidence,
		ComputedAt:  time.Now().UTC(),
	}}
	if err := patternRepo.ReplaceForUser(context.Background(), user.ID, patterns); err != nil {
		t.Fatalf("seed patterns: %v", err)
	}

	svc := NewSuggestionService(patternRepo, providerOrNil(provider), logger.NewNop())
	return &suggestionEnv{svc: svc, provider: provider, patternRepo: patternRepo, user: user}
}

// providerOrNil avoids handing the service a typed nil.
func providerOrNil(p *fakeProvider) llm.Provider {
	if p == nil {
		return nil
	}
	return p
}

func suggestionTasks() []model.Task {
	soon := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	later := soon.AddDate(0, 0, 3)
	return []model.Task{
		{ID: "t-report", Title: "write report", Priority: model.PriorityHigh, DueDate: &later},
		{ID: "t-review", Title: "review PR", Priority: model.PriorityHigh, DueDate: &soon},
		{ID: "t-plants", Title: "water plants", Priority: model.PriorityLow},
	}
}

// ruleOrder is the deterministic fallback for suggestionTasks: priority
// descending, earlier due date first, undated last.
var ruleOrder = []string{"t-review", "t-report", "t-plants"}

func assertOrder(t *testing.T, got Suggestion, want []string, source string) {
	t.Helper()
	if got.Source != source {
		t.Fatalf("source = %q, want %q", got.Source, source)
	}
	if len(got.TaskOrder) != len(want) {
		t.Fatalf("got %d tasks, want %d", len(got.TaskOrder), len(want))
	}
	for i, id := range want {
		if got.TaskOrder[i] != id {
			t.Fatalf("position %d: got %s, want %s", i, got.TaskOrder[i], id)
		}
	}
	if got.Reasoning == nil || got.Warnings == nil {
		t.Fatalf("reasoning and warnings must be non-nil")
	}
}

func TestSuggestAcceptsValidModelOrder(t *testing.T) {
	response := `{"task_order":["t-plants","t-review","t-report"],"reasoning":[{"task_id":"t-plants","reason":"quick win"}],"warnings":[]}`
	provider := completionScript(respond(response))
	env := newSuggestionEnv(t, provider, 0.6)

	got, err := env.svc.SuggestOrder(context.Background(), env.user.ID, suggestionTasks())
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	assertOrder(t, got, []string{"t-plants", "t-review", "t-report"}, "model")
	if len(got.Reasoning) != 1 || got.Reasoning[0].TaskID != "t-plants" {
		t.Fatalf("reasoning lost: %+v", got.Reasoning)
	}
}

func TestSuggestStripsMarkdownFence(t *testing.T) {
	response := "```json\n{\"task_order\":[\"t-review\",\"t-plants\",\"t-report\"],\"reasoning\":[],\"warnings\":[]}\n```"
	provider := completionScript(respond(response))
	env := newSuggestionEnv(t, provider, 0.6)

	got, err := env.svc.SuggestOrder(context.Background(), env.user.ID, suggestionTasks())
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	assertOrder(t, got, []string{"t-review", "t-plants", "t-report"}, "model")
}

func TestSuggestLowConfidenceSkipsProvider(t *testing.T) {
	provider := completionScript(respond(`{"task_order":["t-plants","t-review","t-report"]}`))
	env := newSuggestionEnv(t, provider, 0.2)

	got, err := env.svc.SuggestOrder(context.Background(), env.user.ID, suggestionTasks())
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	assertOrder(t, got, ruleOrder, "rules")
	if provider.callCount() != 0 {
		t.Fatalf("provider called despite low-confidence patterns")
	}
}

func TestSuggestNilProviderUsesRules(t *testing.T) {
	env := newSuggestionEnv(t, nil, 0.6)

	got, err := env.svc.SuggestOrder(context.Background(), env.user.ID, suggestionTasks())
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	assertOrder(t, got, ruleOrder, "rules")
}

func TestSuggestMalformedOutputRetriesThenFallsBack(t *testing.T) {
	provider := completionScript(respond("sure, here is an order!"), respond("{not json"))
	env := newSuggestionEnv(t, provider, 0.6)

	got, err := env.svc.SuggestOrder(context.Background(), env.user.ID, suggestionTasks())
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	assertOrder(t, got, ruleOrder, "rules")
	if provider.callCount() != 2 {
		t.Fatalf("got %d provider calls, want one retry after malformed output", provider.callCount())
	}
}

func TestSuggestRejectsNonPermutation(t *testing.T) {
	cases := []string{
		`{"task_order":["t-review","t-report"],"reasoning":[],"warnings":[]}`,                            // missing task
		`{"task_order":["t-review","t-report","t-invented"],"reasoning":[],"warnings":[]}`,               // unknown id
		`{"task_order":["t-review","t-review","t-report"],"reasoning":[],"warnings":[]}`,                 // duplicate
		`{"task_order":["t-review","t-report","t-plants","t-extra"],"reasoning":[],"warnings":[]}`,       // extra id
	}
	for i, response := range cases {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			provider := completionScript(respond(response), respond(response))
			env := newSuggestionEnv(t, provider, 0.6)

			got, err := env.svc.SuggestOrder(context.Background(), env.user.ID, suggestionTasks())
			if err != nil {
				t.Fatalf("suggest: %v", err)
			}
			assertOrder(t, got, ruleOrder, "rules")
		})
	}
}

func TestSuggestTimeoutFallsBack(t *testing.T) {
	provider := completionScript(nil) // hangs until the budget expires
	env := newSuggestionEnv(t, provider, 0.6)
	env.svc.budget = 50 * time.Millisecond

	start := time.Now()
	got, err := env.svc.SuggestOrder(context.Background(), env.user.ID, suggestionTasks())
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	assertOrder(t, got, ruleOrder, "rules")
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("fallback took %v, budget not enforced", elapsed)
	}
}

func TestSuggestEmptyTaskList(t *testing.T) {
	provider := completionScript()
	env := newSuggestionEnv(t, provider, 0.6)

	got, err := env.svc.SuggestOrder(context.Background(), env.user.ID, nil)
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	assertOrder(t, got, nil, "rules")
	if provider.callCount() != 0 {
		t.Fatalf("provider called for empty task list")
	}
}
