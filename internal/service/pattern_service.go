package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"planwise/internal/model"
	"planwise/internal/repository"
)

// minHistoryDays is the completion history required before any pattern is
// emitted for a user.
const minHistoryDays = 7

// minSliceSamples is the smallest sample count a data slice needs before it
// contributes to a pattern.
const minSliceSamples = 3

// historyWindowDays bounds how far back the nightly recompute looks.
const historyWindowDays = 30

// PatternReadiness is returned for users who do not have enough history yet.
type PatternReadiness struct {
	Ready          bool
	DaysUntilReady int
}

// PatternService computes confidence-scored behavioral patterns from
// reflection history. Each nightly run replaces a user's pattern rows
// wholesale.
type PatternService struct {
	planRepo    *repository.PlanRepository
	patternRepo *repository.PatternRepository
	userRepo    *repository.UserRepository
	log         *zap.SugaredLogger
	now         func() time.Time
}

func NewPatternService(
	planRepo *repository.PlanRepository,
	patternRepo *repository.PatternRepository,
	userRepo *repository.UserRepository,
	log *zap.SugaredLogger,
) *PatternService {
	return &PatternService{
		planRepo:    planRepo,
		patternRepo: patternRepo,
		userRepo:    userRepo,
		log:         log,
		now:         time.Now,
	}
}

// RunNightly recomputes patterns for every active user. One user's failure is
// logged and never aborts the batch.
func (s *PatternService) RunNightly(ctx context.Context) error {
	users, err := s.userRepo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	for _, user := range users {
		if _, err := s.ComputeForUser(ctx, user.ID); err != nil {
			s.log.Errorw("pattern detection failed for user",
				"user_id", user.ID,
				"error", err,
			)
		}
	}
	return nil
}

// ComputeForUser detects and stores all pattern types for one user. Users
// with fewer than minHistoryDays days of reflection history get no patterns
// and a readiness report instead.
func (s *PatternService) ComputeForUser(ctx context.Context, userID string) (PatternReadiness, error) {
	since := s.now().UTC().AddDate(0, 0, -historyWindowDays).Format(planDateLayout)
	history, err := s.planRepo.ListCompletionHistory(ctx, userID, since)
	if err != nil {
		return PatternReadiness{}, fmt.Errorf("load history: %w", err)
	}

	days := distinctDates(history)
	if days < minHistoryDays {
		return PatternReadiness{DaysUntilReady: minHistoryDays - days}, nil
	}

	computedAt := s.now().UTC()
	var patterns []model.UserPattern
	add := func(patternType string, data model.PatternData, confidence float64) {
		patterns = append(patterns, model.UserPattern{
			PatternType: patternType,
			PatternData: data,
			Confidence:  confidence,
			ComputedAt:  computedAt,
		})
	}

	if data, conf, ok := peakHoursPattern(history); ok {
		add(model.PatternPeakHours, data, conf)
	}
	if data, conf, ok := estimationAccuracyPattern(history); ok {
		add(model.PatternEstimationAccuracy, data, conf)
	}
	if data, conf, ok := categoryPreferencePattern(history); ok {
		add(model.PatternCategoryPreference, data, conf)
	}
	if data, conf, ok := completionTrendPattern(history, s.now().UTC()); ok {
		add(model.PatternCompletionRate, data, conf)
	}

	if err := s.patternRepo.ReplaceForUser(ctx, userID, patterns); err != nil {
		return PatternReadiness{}, err
	}
	return PatternReadiness{Ready: true}, nil
}

// ComputeReadiness reports whether the user has enough history for patterns,
// without recomputing anything.
func (s *PatternService) ComputeReadiness(ctx context.Context, userID string) (PatternReadiness, error) {
	since := s.now().UTC().AddDate(0, 0, -historyWindowDays).Format(planDateLayout)
	history, err := s.planRepo.ListCompletionHistory(ctx, userID, since)
	if err != nil {
		return PatternReadiness{}, fmt.Errorf("load history: %w", err)
	}
	days := distinctDates(history)
	if days < minHistoryDays {
		return PatternReadiness{DaysUntilReady: minHistoryDays - days}, nil
	}
	return PatternReadiness{Ready: true}, nil
}

// ListForUser returns the user's currently stored patterns.
func (s *PatternService) ListForUser(ctx context.Context, userID string) ([]model.UserPattern, error) {
	return s.patternRepo.ListByUser(ctx, userID)
}

func distinctDates(history []repository.CompletionHistory) int {
	dates := make(map[string]bool)
	for _, h := range history {
		dates[h.PlanDate] = true
	}
	return len(dates)
}

// confidence grows with sample count and approaches 1.0 asymptotically.
// Slices below minSliceSamples never produce a pattern.
func confidence(samples int) float64 {
	return float64(samples) / (float64(samples) + 5.0)
}

// peakHoursPattern compares completion rate for tasks in the first three plan
// positions against the rest of the day.
func peakHoursPattern(history []repository.CompletionHistory) (model.PatternData, float64, bool) {
	var earlyDone, earlyTotal, lateDone, lateTotal int
	for _, h := range history {
		if h.PlannedPosition < 3 {
			earlyTotal++
			if h.ActualCompleted {
				earlyDone++
			}
		} else {
			lateTotal++
			if h.ActualCompleted {
				lateDone++
			}
		}
	}
	if earlyTotal < minSliceSamples || lateTotal < minSliceSamples {
		return nil, 0, false
	}
	return model.PatternData{
		"early_completion_rate": rate(earlyDone, earlyTotal),
		"late_completion_rate":  rate(lateDone, lateTotal),
		"sample_count":          earlyTotal + lateTotal,
	}, confidence(earlyTotal + lateTotal), true
}

// estimationAccuracyPattern averages actual/estimated minutes per category,
// restricted to rows carrying both values, for categories with at least
// minSliceSamples samples.
func estimationAccuracyPattern(history []repository.CompletionHistory) (model.PatternData, float64, bool) {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, h := range history {
		if !h.ActualCompleted || h.ActualMinutes == nil || h.EstimatedMinutes == nil || *h.EstimatedMinutes == 0 {
			continue
		}
		cat := h.Category
		if cat == "" {
			cat = "uncategorized"
		}
		sums[cat] += float64(*h.ActualMinutes) / float64(*h.EstimatedMinutes)
		counts[cat]++
	}

	byCategory := model.PatternData{}
	total := 0
	for cat, n := range counts {
		if n < minSliceSamples {
			continue
		}
		byCategory[cat] = sums[cat] / float64(n)
		total += n
	}
	if len(byCategory) == 0 {
		return nil, 0, false
	}
	return model.PatternData{"by_category": map[string]interface{}(byCategory), "sample_count": total}, confidence(total), true
}

// categoryPreferencePattern splits completion rate by weekday vs weekend per
// category.
func categoryPreferencePattern(history []repository.CompletionHistory) (model.PatternData, float64, bool) {
	type bucket struct{ done, total int }
	weekday := make(map[string]*bucket)
	weekend := make(map[string]*bucket)
	total := 0

	for _, h := range history {
		date, err := time.Parse(planDateLayout, h.PlanDate)
		if err != nil {
			continue
		}
		cat := h.Category
		if cat == "" {
			cat = "uncategorized"
		}
		target := weekday
		if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			target = weekend
		}
		b := target[cat]
		if b == nil {
			b = &bucket{}
			target[cat] = b
		}
		b.total++
		if h.ActualCompleted {
			b.done++
		}
		total++
	}

	rates := func(m map[string]*bucket) map[string]interface{} {
		out := make(map[string]interface{})
		for cat, b := range m {
			if b.total < minSliceSamples {
				continue
			}
			out[cat] = rate(b.done, b.total)
		}
		return out
	}
	wk, we := rates(weekday), rates(weekend)
	if len(wk) == 0 && len(we) == 0 {
		return nil, 0, false
	}
	return model.PatternData{"weekday": wk, "weekend": we, "sample_count": total}, confidence(total), true
}

// completionTrendPattern computes the week-over-week completion rate delta.
func completionTrendPattern(history []repository.CompletionHistory, now time.Time) (model.PatternData, float64, bool) {
	weekAgo := now.AddDate(0, 0, -7).Format(planDateLayout)
	twoWeeksAgo := now.AddDate(0, 0, -14).Format(planDateLayout)

	var thisDone, thisTotal, prevDone, prevTotal int
	for _, h := range history {
		switch {
		case h.PlanDate >= weekAgo:
			thisTotal++
			if h.ActualCompleted {
				thisDone++
			}
		case h.PlanDate >= twoWeeksAgo:
			prevTotal++
			if h.ActualCompleted {
				prevDone++
			}
		}
	}
	if thisTotal < minSliceSamples || prevTotal < minSliceSamples {
		return nil, 0, false
	}

	thisRate := rate(thisDone, thisTotal)
	prevRate := rate(prevDone, prevTotal)
	trend := "stable"
	switch {
	case thisRate-prevRate > 0.05:
		trend = "improving"
	case prevRate-thisRate > 0.05:
		trend = "declining"
	}
	return model.PatternData{
		"current_week_rate":  thisRate,
		"previous_week_rate": prevRate,
		"delta":              thisRate - prevRate,
		"trend":              trend,
	}, confidence(thisTotal + prevTotal), true
}

func rate(done, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(done) / float64(total)
}
