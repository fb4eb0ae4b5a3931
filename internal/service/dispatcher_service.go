package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"planwise/internal/delivery"
	"planwise/internal/model"
	"planwise/internal/notify"
	"planwise/internal/repository"
)

// deliveryRecordTTL keeps idempotency records until well past the local
// midnight that makes their key stale.
const deliveryRecordTTL = 36 * time.Hour

// middayNudgeThreshold suppresses the nudge once this share of the plan is
// done.
const middayNudgeThreshold = 0.5

// maxSendAttempts bounds per-channel delivery retries.
const maxSendAttempts = 3

// DispatcherService turns due notifications into channel sends: it builds
// content from plan state, claims the idempotency record, fans out to each
// enabled channel independently and retries transient failures with
// exponential backoff.
type DispatcherService struct {
	plans       *PlanService
	notifRepo   *repository.NotificationRepository
	userRepo    *repository.UserRepository
	store       delivery.Store
	senders     map[string]notify.Sender
	backoffBase time.Duration
	log         *zap.SugaredLogger
}

func NewDispatcherService(
	plans *PlanService,
	notifRepo *repository.NotificationRepository,
	userRepo *repository.UserRepository,
	store delivery.Store,
	senders []notify.Sender,
	log *zap.SugaredLogger,
) *DispatcherService {
	byChannel := make(map[string]notify.Sender, len(senders))
	for _, s := range senders {
		byChannel[s.Channel()] = s
	}
	return &DispatcherService{
		plans:       plans,
		notifRepo:   notifRepo,
		userRepo:    userRepo,
		store:       store,
		senders:     byChannel,
		backoffBase: 2 * time.Second,
		log:         log,
	}
}

// Dispatch processes one due notification. It returns an error only for
// infrastructure failures before any send decision; send failures are logged
// and audited, never propagated.
func (s *DispatcherService) Dispatch(ctx context.Context, due DueNotification) error {
	payload, send, err := s.buildContent(ctx, due)
	if err != nil {
		return err
	}
	if !send {
		return nil
	}

	// Single atomic check-and-set. Under concurrent workers exactly one
	// claim wins; the rest drop the notification here.
	won, err := s.store.Claim(ctx, delivery.Key(due.UserID, due.LocalDate, due.Type), deliveryRecordTTL)
	if err != nil {
		return fmt.Errorf("claim delivery record: %w", err)
	}
	if !won {
		return nil
	}

	pref, err := s.notifRepo.FindPreference(ctx, due.UserID)
	if err != nil {
		return fmt.Errorf("load preference: %w", err)
	}
	user, err := s.userRepo.FindByID(ctx, due.UserID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	// Channels are independent: a failure on one never blocks another.
	if pref.PushEnabled {
		s.sendPush(ctx, due, *user, payload)
	}
	if pref.EmailEnabled && user.Email != "" {
		s.sendTo(ctx, due, notify.ChannelEmail, user.Email, payload)
	}
	if pref.TelegramEnabled && pref.TelegramChatID != 0 {
		s.sendTo(ctx, due, notify.ChannelTelegram, strconv.FormatInt(pref.TelegramChatID, 10), payload)
	}
	return nil
}

// buildContent composes the notification text from plan state. The second
// return value is false when this notification should not fire at all, e.g. a
// midday nudge for a mostly-done plan.
func (s *DispatcherService) buildContent(ctx context.Context, due DueNotification) (notify.Payload, bool, error) {
	stats, err := s.plans.Stats(ctx, due.UserID, due.LocalDate)
	if err != nil {
		return notify.Payload{}, false, err
	}

	switch due.Type {
	case model.NotifMorningBriefing:
		if stats.Total == 0 {
			return notify.Payload{
				Title:    "Good morning!",
				Body:     "You have no plan for today yet. Take a minute to line up your day.",
				DeepLink: "/plan/" + due.LocalDate,
			}, true, nil
		}
		top, err := s.topRemainingTitle(ctx, due)
		if err != nil {
			return notify.Payload{}, false, err
		}
		body := fmt.Sprintf("%d tasks planned for today.", stats.Total)
		if top != "" {
			body += fmt.Sprintf(" First up: %s.", top)
		}
		return notify.Payload{
			Title:    "Your plan for today",
			Body:     body,
			DeepLink: "/plan/" + due.LocalDate,
		}, true, nil

	case model.NotifMiddayNudge:
		if stats.Total == 0 {
			// Nothing planned, nothing to nudge about.
			return notify.Payload{}, false, nil
		}
		if stats.Ratio() >= middayNudgeThreshold {
			return notify.Payload{}, false, nil
		}
		remaining := stats.Total - stats.Completed
		top, err := s.topRemainingTitle(ctx, due)
		if err != nil {
			return notify.Payload{}, false, err
		}
		body := fmt.Sprintf("%d tasks remaining today.", remaining)
		if top != "" {
			body += fmt.Sprintf(" Next up: %s.", top)
		}
		return notify.Payload{
			Title:    "Midday check-in",
			Body:     body,
			DeepLink: "/plan/" + due.LocalDate,
		}, true, nil

	case model.NotifEveningReflection:
		if stats.Total == 0 {
			return notify.Payload{
				Title:    "Evening wrap-up",
				Body:     "No plan today. Tomorrow is a fresh start.",
				DeepLink: "/plan/" + due.LocalDate,
			}, true, nil
		}
		return notify.Payload{
			Title:    "Evening wrap-up",
			Body:     fmt.Sprintf("You finished %d of %d tasks. Take a moment to reflect on your day.", stats.Completed, stats.Total),
			DeepLink: "/plan/" + due.LocalDate + "/reflect",
		}, true, nil

	default:
		return notify.Payload{}, false, fmt.Errorf("unknown notification type %q", due.Type)
	}
}

func (s *DispatcherService) topRemainingTitle(ctx context.Context, due DueNotification) (string, error) {
	remaining, err := s.plans.RemainingTasks(ctx, due.UserID, due.LocalDate)
	if err != nil {
		return "", err
	}
	if len(remaining) == 0 {
		return "", nil
	}
	return remaining[0].Title, nil
}

// sendPush fans out to each registered device token. A permanently failed
// token is removed so it stops generating noise.
func (s *DispatcherService) sendPush(ctx context.Context, due DueNotification, user model.User, payload notify.Payload) {
	sender, ok := s.senders[notify.ChannelPush]
	if !ok {
		return
	}
	tokens, err := s.notifRepo.ListPushTokens(ctx, user.ID)
	if err != nil {
		s.log.Errorw("list push tokens", "user_id", user.ID, "error", err)
		return
	}
	for _, token := range tokens {
		attempts, err := s.sendWithRetry(ctx, sender, token.Token, payload)
		if err != nil && notify.IsPermanent(err) {
			if rmErr := s.notifRepo.RemovePushToken(ctx, user.ID, token.Token); rmErr != nil {
				s.log.Errorw("remove expired push token", "user_id", user.ID, "error", rmErr)
			} else {
				s.log.Infow("removed expired push token", "user_id", user.ID)
			}
		}
		s.audit(ctx, due, notify.ChannelPush, attempts, err)
	}
}

func (s *DispatcherService) sendTo(ctx context.Context, due DueNotification, channel, to string, payload notify.Payload) {
	sender, ok := s.senders[channel]
	if !ok {
		return
	}
	attempts, err := s.sendWithRetry(ctx, sender, to, payload)
	s.audit(ctx, due, channel, attempts, err)
}

// sendWithRetry attempts delivery up to maxSendAttempts times with
// exponential backoff, returning how many attempts were actually made.
// Permanent failures stop immediately.
func (s *DispatcherService) sendWithRetry(ctx context.Context, sender notify.Sender, to string, payload notify.Payload) (int, error) {
	var lastErr error
	for attempt := 0; attempt < maxSendAttempts; attempt++ {
		if attempt > 0 {
			wait := s.backoffBase << (attempt - 1)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return attempt, ctx.Err()
			}
		}
		lastErr = sender.Send(ctx, to, payload)
		if lastErr == nil {
			return attempt + 1, nil
		}
		if notify.IsPermanent(lastErr) {
			return attempt + 1, lastErr
		}
	}
	return maxSendAttempts, lastErr
}

// audit records the delivery outcome. The idempotency record already marks
// the notification as attempted, so a failed channel shows up here instead of
// retrying into a notification storm.
func (s *DispatcherService) audit(ctx context.Context, due DueNotification, channel string, attempts int, sendErr error) {
	audit := &model.NotificationAudit{
		UserID:    due.UserID,
		LocalDate: due.LocalDate,
		Type:      due.Type,
		Channel:   channel,
		Delivered: sendErr == nil,
		Attempts:  attempts,
	}
	if sendErr != nil {
		audit.LastError = sendErr.Error()
		s.log.Warnw("notification delivery failed",
			"user_id", due.UserID,
			"type", due.Type,
			"channel", channel,
			"error", sendErr,
		)
	}
	if err := s.notifRepo.RecordAudit(ctx, audit); err != nil {
		s.log.Errorw("record delivery audit", "user_id", due.UserID, "error", err)
	}
}

// PreferenceOrDefault returns the user's stored notification preference, or
// the defaults when none has been saved yet.
func (s *DispatcherService) PreferenceOrDefault(ctx context.Context, userID string) (*model.NotificationPreference, error) {
	pref, err := s.notifRepo.FindPreference(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.NotificationPreference{
			UserID:                   userID,
			MorningBriefingEnabled:   true,
			MorningBriefingTime:      "08:00",
			MiddayNudgeEnabled:       true,
			MiddayNudgeTime:          "12:00",
			EveningReflectionEnabled: true,
			EveningReflectionTime:    "20:00",
			PushEnabled:              true,
			EmailEnabled:             true,
		}, nil
	}
	return pref, err
}
