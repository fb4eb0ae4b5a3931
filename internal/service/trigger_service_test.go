package service

import (
	"context"
	"testing"
	"time"

	"gorm.io/gorm"

	"planwise/internal/delivery"
	"planwise/internal/logger"
	"planwise/internal/model"
	"planwise/internal/repository"
)

type triggerEnv struct {
	svc       *TriggerService
	store     *delivery.MemoryStore
	notifRepo *repository.NotificationRepository
	userRepo  *repository.UserRepository
	db        *gorm.DB
}

func newTriggerEnv(t *testing.T) *triggerEnv {
	t.Helper()
	db := newTestDB(t)
	store := delivery.NewMemoryStore()
	userRepo := repository.NewUserRepository(db)
	notifRepo := repository.NewNotificationRepository(db)
	svc := NewTriggerService(userRepo, notifRepo, store, 5*time.Minute, logger.NewNop())
	return &triggerEnv{svc: svc, store: store, notifRepo: notifRepo, userRepo: userRepo, db: db}
}

func (e *triggerEnv) addUser(t *testing.T, timezone string, pref model.NotificationPreference) *model.User {
	t.Helper()
	user := seedUser(t, e.db, timezone)
	pref.UserID = user.ID
	if err := e.notifRepo.SavePreference(context.Background(), &pref); err != nil {
		t.Fatalf("save preference: %v", err)
	}
	return user
}

func morningOnly(at string) model.NotificationPreference {
	return model.NotificationPreference{
		MorningBriefingEnabled: true,
		MorningBriefingTime:    at,
	}
}

func TestEvaluateToleranceWindow(t *testing.T) {
	env := newTriggerEnv(t)
	user := env.addUser(t, "Europe/Berlin", morningOnly("08:00"))
	berlin, _ := time.LoadLocation("Europe/Berlin")

	cases := []struct {
		name string
		now  time.Time
		due  bool
	}{
		{"three minutes late", time.Date(2026, 3, 10, 8, 3, 0, 0, berlin), true},
		{"three minutes early", time.Date(2026, 3, 10, 7, 57, 0, 0, berlin), true},
		{"past the window", time.Date(2026, 3, 10, 8, 6, 0, 0, berlin), false},
		{"well before", time.Date(2026, 3, 10, 7, 0, 0, 0, berlin), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			due, err := env.svc.Evaluate(context.Background(), tc.now)
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if got := len(due); got != boolToCount(tc.due) {
				t.Fatalf("got %d due, want %d", got, boolToCount(tc.due))
			}
			if tc.due {
				job := due[0]
				if job.UserID != user.ID || job.Type != model.NotifMorningBriefing || job.LocalDate != "2026-03-10" {
					t.Fatalf("unexpected job %+v", job)
				}
			}
		})
	}
}

func boolToCount(b bool) int {
	if b {
		return 1
	}
	return 0
}

func TestEvaluateSkipsAlreadyDelivered(t *testing.T) {
	env := newTriggerEnv(t)
	user := env.addUser(t, "UTC", morningOnly("08:00"))
	ctx := context.Background()

	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	first, err := env.svc.Evaluate(ctx, now)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("got %d due, want 1", len(first))
	}

	// Simulate the dispatcher claiming the record, then the next tick.
	won, err := env.store.Claim(ctx, delivery.Key(user.ID, "2026-03-10", model.NotifMorningBriefing), time.Hour)
	if err != nil || !won {
		t.Fatalf("claim: won=%v err=%v", won, err)
	}
	second, err := env.svc.Evaluate(ctx, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("delivered notification fired again: %+v", second)
	}
}

func TestQuietHoursDeferral(t *testing.T) {
	env := newTriggerEnv(t)
	pref := morningOnly("08:00")
	pref.QuietHoursStart = "22:00"
	pref.QuietHoursEnd = "08:30"
	env.addUser(t, "UTC", pref)
	ctx := context.Background()

	atNominal, err := env.svc.Evaluate(ctx, time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(atNominal) != 0 {
		t.Fatalf("fired inside quiet hours: %+v", atNominal)
	}

	atEnd, err := env.svc.Evaluate(ctx, time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(atEnd) != 1 {
		t.Fatalf("deferred notification missing at quiet hours end, got %d", len(atEnd))
	}
}

func TestQuietHoursWrapDefersEveningToNextMorning(t *testing.T) {
	env := newTriggerEnv(t)
	pref := model.NotificationPreference{
		EveningReflectionEnabled: true,
		EveningReflectionTime:    "23:00",
		QuietHoursStart:          "22:00",
		QuietHoursEnd:            "07:00",
	}
	env.addUser(t, "UTC", pref)
	ctx := context.Background()

	atNominal, err := env.svc.Evaluate(ctx, time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(atNominal) != 0 {
		t.Fatalf("fired inside wrapped quiet window: %+v", atNominal)
	}

	nextMorning, err := env.svc.Evaluate(ctx, time.Date(2026, 3, 11, 7, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(nextMorning) != 1 {
		t.Fatalf("wrapped deferral missing next morning, got %d", len(nextMorning))
	}
	if nextMorning[0].LocalDate != "2026-03-11" {
		t.Fatalf("got local date %s, want 2026-03-11", nextMorning[0].LocalDate)
	}

	// Past the deferral target the window is missed, not fired late.
	midday, err := env.svc.Evaluate(ctx, time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(midday) != 0 {
		t.Fatalf("deferred notification fired outside its window: %+v", midday)
	}
}

func TestEvaluateSpringForward(t *testing.T) {
	env := newTriggerEnv(t)
	env.addUser(t, "America/New_York", morningOnly("02:30"))
	ny, _ := time.LoadLocation("America/New_York")

	// 2026-03-08 02:30 does not exist in New York; the clock jumps from
	// 02:00 straight to 03:00, so the trigger fires at 03:00.
	due, err := env.svc.Evaluate(context.Background(), time.Date(2026, 3, 8, 3, 0, 0, 0, ny))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("got %d due on spring-forward day, want 1", len(due))
	}

	// An hour before the nominal time nothing fires; the skipped 02:30 must
	// not slide backward to 01:30.
	early, err := env.svc.Evaluate(context.Background(), time.Date(2026, 3, 8, 1, 30, 0, 0, ny))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(early) != 0 {
		t.Fatalf("notification fired before the DST gap: %+v", early)
	}
}

func TestWallClockOnResolvesGapForward(t *testing.T) {
	ny, _ := time.LoadLocation("America/New_York")

	got := wallClockOn(2026, time.March, 8, 2*60+30, ny)
	want := time.Date(2026, 3, 8, 3, 0, 0, 0, ny)
	if !got.Equal(want) {
		t.Fatalf("gap time resolved to %v, want %v", got, want)
	}

	// Existing times come back untouched.
	got = wallClockOn(2026, time.March, 9, 2*60+30, ny)
	if got.Hour() != 2 || got.Minute() != 30 {
		t.Fatalf("ordinary time moved to %v", got)
	}
}

func TestEvaluateSkipsBrokenTimezone(t *testing.T) {
	env := newTriggerEnv(t)
	env.addUser(t, "Mars/Olympus_Mons", morningOnly("08:00"))
	good := env.addUser(t, "UTC", morningOnly("08:00"))

	due, err := env.svc.Evaluate(context.Background(), time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("one broken user failed the whole tick: %v", err)
	}
	if len(due) != 1 || due[0].UserID != good.ID {
		t.Fatalf("got %+v, want only the valid user's job", due)
	}
}

func TestEvaluateSkipsUserWithoutPreference(t *testing.T) {
	env := newTriggerEnv(t)
	seedUser(t, env.db, "UTC")

	due, err := env.svc.Evaluate(context.Background(), time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("user without preference produced jobs: %+v", due)
	}
}
