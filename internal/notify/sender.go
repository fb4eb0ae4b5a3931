// Package notify defines the outbound notification capability and its channel
// implementations. Retry and idempotency policy live in the dispatcher; a
// sender only delivers one payload to one address and classifies failures.
package notify

import (
	"context"
	"errors"
	"fmt"
)

// Channel names.
const (
	ChannelPush     = "push"
	ChannelEmail    = "email"
	ChannelTelegram = "telegram"
)

// Payload is the channel-independent notification content.
type Payload struct {
	Title    string
	Body     string
	DeepLink string
	Data     map[string]string
}

// Sender delivers a payload to a channel-specific address: an FCM token for
// push, a mailbox for email, a chat ID for telegram.
type Sender interface {
	Channel() string
	Send(ctx context.Context, to string, payload Payload) error
}

// errPermanent marks failures that retrying cannot fix, such as an expired
// push registration.
var errPermanent = errors.New("permanent delivery failure")

// Permanent wraps err so IsPermanent reports true for it.
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", errPermanent, err)
}

// IsPermanent reports whether the failure should end retrying and, for push,
// trigger removal of the target subscription.
func IsPermanent(err error) bool {
	return errors.Is(err, errPermanent)
}
