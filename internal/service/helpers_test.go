package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"planwise/internal/llm"
	"planwise/internal/model"
	"planwise/internal/notify"
	"planwise/internal/repository"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, timezone string) *model.User {
	t.Helper()
	user := &model.User{
		Email:       "test-" + uuid.NewString() + "@example.com",
		DisplayName: "Test User",
		Timezone:    timezone,
		IsActive:    true,
	}
	if err := repository.NewUserRepository(db).Create(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func seedTask(t *testing.T, db *gorm.DB, userID, title string, mutate ...func(*model.Task)) *model.Task {
	t.Helper()
	task := &model.Task{
		UserID:   userID,
		Title:    title,
		Priority: model.PriorityMedium,
		Status:   model.StatusPending,
	}
	for _, m := range mutate {
		m(task)
	}
	if err := repository.NewTaskRepository(db).Create(context.Background(), task); err != nil {
		t.Fatalf("seed task %q: %v", title, err)
	}
	return task
}

func intPtr(v int) *int { return &v }

func timePtr(v time.Time) *time.Time { return &v }

// fakeSender records payloads and serves scripted errors in order. Once the
// script runs out every send succeeds.
type fakeSender struct {
	channel string

	mu    sync.Mutex
	sent  []notify.Payload
	to    []string
	calls int
	errs  []error
}

func (f *fakeSender) Channel() string { return f.channel }

func (f *fakeSender) Send(_ context.Context, to string, payload notify.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return err
		}
	}
	f.sent = append(f.sent, payload)
	f.to = append(f.to, to)
	return nil
}

func (f *fakeSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// fakeProvider serves scripted completions. A nil entry means "wait for ctx
// cancellation", simulating a slow model.
type fakeProvider struct {
	mu        sync.Mutex
	responses []*string
	calls     int
}

func completionScript(responses ...*string) *fakeProvider {
	return &fakeProvider{responses: responses}
}

func respond(s string) *string { return &s }

func (f *fakeProvider) Complete(ctx context.Context, _ []llm.Message) (string, error) {
	f.mu.Lock()
	f.calls++
	var resp *string
	if len(f.responses) > 0 {
		resp = f.responses[0]
		f.responses = f.responses[1:]
	}
	f.mu.Unlock()

	if resp == nil {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return *resp, nil
}

func (f *fakeProvider) Ping(context.Context) error { return nil }

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
