package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"planwise/internal/llm"
	"planwise/internal/model"
	"planwise/internal/repository"
)

// confidenceThreshold is the minimum pattern confidence worth sending to the
// provider. Below it the deterministic ordering wins outright.
const confidenceThreshold = 0.3

// suggestionBudget bounds the caller-visible latency of a provider-backed
// suggestion. Past it we fall back.
const suggestionBudget = 3 * time.Second

const suggestionPrompt = `Given tasks and user productivity patterns, suggest optimal order for today.
Return ONLY JSON:
{
    "task_order": ["id1", "id2", ...],
    "reasoning": [{"task_id": "...", "reason": "..."}],
    "warnings": [{"task_id": "...", "message": "..."}]
}`

// ReasonEntry explains the placement of one task.
type ReasonEntry struct {
	TaskID string `json:"task_id"`
	Reason string `json:"reason"`
}

// WarningEntry flags a concern about one task.
type WarningEntry struct {
	TaskID  string `json:"task_id"`
	Message string `json:"message"`
}

// Suggestion is an ordered task list with optional reasoning.
type Suggestion struct {
	TaskOrder []string       `json:"task_order"`
	Reasoning []ReasonEntry  `json:"reasoning"`
	Warnings  []WarningEntry `json:"warnings"`
	// Source is "model" when the provider produced the order, "rules" for
	// the deterministic fallback.
	Source string `json:"source"`
}

// SuggestionService orders candidate tasks using detected patterns and the
// completion provider, degrading to a deterministic rule ordering whenever
// the provider is slow, absent or wrong. Callers never see an error from the
// provider path.
type SuggestionService struct {
	patternRepo *repository.PatternRepository
	provider    llm.Provider
	budget      time.Duration
	log         *zap.SugaredLogger
}

// NewSuggestionService builds the engine. provider may be nil, in which case
// every suggestion uses the rule ordering.
func NewSuggestionService(patternRepo *repository.PatternRepository, provider llm.Provider, log *zap.SugaredLogger) *SuggestionService {
	return &SuggestionService{
		patternRepo: patternRepo,
		provider:    provider,
		budget:      suggestionBudget,
		log:         log,
	}
}

// SuggestOrder produces an ordering for the user's candidate tasks.
func (s *SuggestionService) SuggestOrder(ctx context.Context, userID string, tasks []model.Task) (Suggestion, error) {
	if len(tasks) == 0 {
		return Suggestion{TaskOrder: []string{}, Reasoning: []ReasonEntry{}, Warnings: []WarningEntry{}, Source: "rules"}, nil
	}

	patterns, err := s.patternRepo.ListByUser(ctx, userID)
	if err != nil {
		return Suggestion{}, fmt.Errorf("load patterns: %w", err)
	}

	if s.provider == nil || !patternsUseful(patterns) {
		return s.ruleBased(tasks), nil
	}

	// One call plus one retry, all inside the latency budget; any failure
	// mode ends in the deterministic ordering.
	budgetCtx, cancel := context.WithTimeout(ctx, s.budget)
	defer cancel()

	for attempt := 0; attempt < 2; attempt++ {
		suggestion, err := s.askProvider(budgetCtx, tasks, patterns)
		if err == nil {
			return suggestion, nil
		}
		s.log.Warnw("suggestion provider attempt failed",
			"user_id", userID,
			"attempt", attempt+1,
			"error", err,
		)
		if budgetCtx.Err() != nil {
			break
		}
	}
	return s.ruleBased(tasks), nil
}

func patternsUseful(patterns []model.UserPattern) bool {
	for _, p := range patterns {
		if p.Confidence >= confidenceThreshold {
			return true
		}
	}
	return false
}

func (s *SuggestionService) askProvider(ctx context.Context, tasks []model.Task, patterns []model.UserPattern) (Suggestion, error) {
	type taskData struct {
		ID               string  `json:"id"`
		Title            string  `json:"title"`
		Priority         int     `json:"priority"`
		DueDate          *string `json:"due_date"`
		Category         string  `json:"category"`
		EstimatedMinutes *int    `json:"estimated_minutes"`
	}
	type patternDatum struct {
		Type       string            `json:"pattern_type"`
		Data       model.PatternData `json:"pattern_data"`
		Confidence float64           `json:"confidence"`
	}

	taskList := make([]taskData, 0, len(tasks))
	for _, t := range tasks {
		td := taskData{
			ID:               t.ID,
			Title:            t.Title,
			Priority:         t.Priority,
			Category:         t.Category,
			EstimatedMinutes: t.EstimatedMinutes,
		}
		if t.DueDate != nil {
			d := t.DueDate.Format(planDateLayout)
			td.DueDate = &d
		}
		taskList = append(taskList, td)
	}
	patternList := make([]patternDatum, 0, len(patterns))
	for _, p := range patterns {
		patternList = append(patternList, patternDatum{Type: p.PatternType, Data: p.PatternData, Confidence: p.Confidence})
	}

	input, err := json.Marshal(map[string]interface{}{
		"tasks":    taskList,
		"patterns": patternList,
	})
	if err != nil {
		return Suggestion{}, fmt.Errorf("marshal prompt input: %w", err)
	}

	text, err := s.provider.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: suggestionPrompt},
		{Role: llm.RoleUser, Content: string(input)},
	})
	if err != nil {
		return Suggestion{}, err
	}

	suggestion, err := parseSuggestion(text)
	if err != nil {
		return Suggestion{}, err
	}
	if err := validatePermutation(suggestion.TaskOrder, tasks); err != nil {
		return Suggestion{}, err
	}
	suggestion.Source = "model"
	return suggestion, nil
}

// parseSuggestion decodes the provider's JSON, tolerating a markdown fence
// around it.
func parseSuggestion(text string) (Suggestion, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx >= 0 {
			text = text[idx+1:]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	var suggestion Suggestion
	if err := json.Unmarshal([]byte(text), &suggestion); err != nil {
		return Suggestion{}, fmt.Errorf("malformed provider output: %w", err)
	}
	if suggestion.Reasoning == nil {
		suggestion.Reasoning = []ReasonEntry{}
	}
	if suggestion.Warnings == nil {
		suggestion.Warnings = []WarningEntry{}
	}
	return suggestion, nil
}

// validatePermutation requires task_order to be exactly a permutation of the
// candidate IDs.
func validatePermutation(order []string, tasks []model.Task) error {
	if len(order) != len(tasks) {
		return fmt.Errorf("provider returned %d ids for %d tasks", len(order), len(tasks))
	}
	want := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		want[t.ID] = true
	}
	for _, id := range order {
		if !want[id] {
			return fmt.Errorf("provider returned unknown or duplicate task id %q", id)
		}
		delete(want, id)
	}
	return nil
}

// ruleBased orders by priority descending, then due date ascending with
// undated tasks last, then estimated duration ascending. No reasoning text.
func (s *SuggestionService) ruleBased(tasks []model.Task) Suggestion {
	sorted := make([]model.Task, len(tasks))
	copy(sorted, tasks)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !sameDue(a.DueDate, b.DueDate) {
			return dueBefore(a.DueDate, b.DueDate)
		}
		return estimatedLess(a.EstimatedMinutes, b.EstimatedMinutes)
	})

	order := make([]string, 0, len(sorted))
	for _, t := range sorted {
		order = append(order, t.ID)
	}
	return Suggestion{
		TaskOrder: order,
		Reasoning: []ReasonEntry{},
		Warnings:  []WarningEntry{},
		Source:    "rules",
	}
}

func sameDue(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func estimatedLess(a, b *int) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return *a < *b
	}
}
