package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"planwise/internal/delivery"
	"planwise/internal/model"
	"planwise/internal/repository"
)

// DueNotification is one (user, type) pair the evaluator decided should fire
// in this tick.
type DueNotification struct {
	UserID    string
	Type      string
	LocalDate string
	Timezone  string
}

// TriggerService decides, per tick, which users are due for which
// notification type based on their local wall clock and quiet hours.
type TriggerService struct {
	userRepo  *repository.UserRepository
	notifRepo *repository.NotificationRepository
	store     delivery.Store
	tolerance time.Duration
	log       *zap.SugaredLogger
}

func NewTriggerService(
	userRepo *repository.UserRepository,
	notifRepo *repository.NotificationRepository,
	store delivery.Store,
	tolerance time.Duration,
	log *zap.SugaredLogger,
) *TriggerService {
	return &TriggerService{
		userRepo:  userRepo,
		notifRepo: notifRepo,
		store:     store,
		tolerance: tolerance,
		log:       log,
	}
}

// Evaluate scans active users and returns every notification due at the given
// instant. A user with a broken timezone or preference record is skipped with
// a logged error; one bad user never fails the tick.
func (s *TriggerService) Evaluate(ctx context.Context, now time.Time) ([]DueNotification, error) {
	users, err := s.userRepo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	var due []DueNotification
	for _, user := range users {
		jobs, err := s.evaluateUser(ctx, user, now)
		if err != nil {
			s.log.Errorw("skipping user in trigger evaluation",
				"user_id", user.ID,
				"error", err,
			)
			continue
		}
		due = append(due, jobs...)
	}
	return due, nil
}

func (s *TriggerService) evaluateUser(ctx context.Context, user model.User, now time.Time) ([]DueNotification, error) {
	loc, err := time.LoadLocation(user.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", user.Timezone, err)
	}

	pref, err := s.notifRepo.FindPreference(ctx, user.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load preference: %w", err)
	}

	localNow := now.In(loc)
	localDate := localNow.Format(planDateLayout)

	type slot struct {
		notifType string
		enabled   bool
		at        string
	}
	slots := []slot{
		{model.NotifMorningBriefing, pref.MorningBriefingEnabled, pref.MorningBriefingTime},
		{model.NotifMiddayNudge, pref.MiddayNudgeEnabled, pref.MiddayNudgeTime},
		{model.NotifEveningReflection, pref.EveningReflectionEnabled, pref.EveningReflectionTime},
	}

	var due []DueNotification
	for _, sl := range slots {
		if !sl.enabled {
			continue
		}
		fireAt, err := s.resolveFireTime(*pref, sl.at, localNow, loc)
		if err != nil {
			return nil, fmt.Errorf("notification %s: %w", sl.notifType, err)
		}
		diff := localNow.Sub(fireAt)
		if diff < -s.tolerance || diff > s.tolerance {
			continue
		}
		sent, err := s.store.Exists(ctx, delivery.Key(user.ID, localDate, sl.notifType))
		if err != nil {
			return nil, fmt.Errorf("check delivery record: %w", err)
		}
		if sent {
			continue
		}
		due = append(due, DueNotification{
			UserID:    user.ID,
			Type:      sl.notifType,
			LocalDate: localDate,
			Timezone:  user.Timezone,
		})
	}
	return due, nil
}

// resolveFireTime turns a configured wall-clock time into the concrete local
// instant the notification should fire. A nominal time inside the quiet
// window is deferred to exactly quiet_hours_end; when the window wraps
// midnight and the nominal time falls in its evening half, that end is the
// following morning. Seen from that morning, the deferred nominal belongs to
// the previous evening, so the target is today's end.
func (s *TriggerService) resolveFireTime(pref model.NotificationPreference, at string, localNow time.Time, loc *time.Location) (time.Time, error) {
	nominalMin, err := parseWallClock(at)
	if err != nil {
		return time.Time{}, err
	}

	y, m, d := localNow.Date()
	fireAt := wallClockOn(y, m, d, nominalMin, loc)

	if !pref.HasQuietHours() {
		return fireAt, nil
	}
	start, err := parseWallClock(pref.QuietHoursStart)
	if err != nil {
		return time.Time{}, err
	}
	end, err := parseWallClock(pref.QuietHoursEnd)
	if err != nil {
		return time.Time{}, err
	}
	if !insideQuietWindow(nominalMin, start, end) {
		return fireAt, nil
	}

	fireAt = wallClockOn(y, m, d, end, loc)
	if start > end && nominalMin >= start {
		// Evening half of a wrapped window. While the evening is still in
		// progress the target is tomorrow's end; once the clock has crossed
		// midnight, today's end already is that target.
		if localNow.Hour()*60+localNow.Minute() >= start {
			fireAt = fireAt.AddDate(0, 0, 1)
		}
	}
	return fireAt, nil
}

// insideQuietWindow checks minutes-of-day membership. A wrapped window
// (start > end) covers [start, 24:00) and [00:00, end).
func insideQuietWindow(t, start, end int) bool {
	if start > end {
		return t >= start || t < end
	}
	return t >= start && t < end
}

// wallClockOn builds the local instant for a wall-clock minute of day. A
// nominal time skipped by a spring-forward transition resolves to the first
// valid local time after the gap; time.Date alone slides such times backward
// across the transition, an hour too early.
func wallClockOn(year int, month time.Month, day, minuteOfDay int, loc *time.Location) time.Time {
	t := time.Date(year, month, day, minuteOfDay/60, minuteOfDay%60, 0, 0, loc)
	for t.Day() == day && t.Hour()*60+t.Minute() < minuteOfDay {
		t = t.Add(time.Minute)
	}
	return t
}

// parseWallClock converts "HH:MM" into minutes since midnight.
func parseWallClock(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("bad wall clock time %q: %w", v, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
