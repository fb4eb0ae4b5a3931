package notify

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FCMSender delivers push notifications through Firebase Cloud Messaging.
type FCMSender struct {
	client *messaging.Client
}

// NewFCMSender initializes the Firebase app from a service account file and
// obtains a messaging client.
func NewFCMSender(ctx context.Context, credentialsFile string) (*FCMSender, error) {
	if credentialsFile == "" {
		return nil, fmt.Errorf("firebase credentials not configured")
	}
	opt := option.WithCredentialsFile(credentialsFile)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing app: %v", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting Messaging client: %v", err)
	}
	return &FCMSender{client: client}, nil
}

func (s *FCMSender) Channel() string { return ChannelPush }

func (s *FCMSender) Send(ctx context.Context, token string, payload Payload) error {
	data := map[string]string{}
	for k, v := range payload.Data {
		data[k] = v
	}
	if payload.DeepLink != "" {
		data["deep_link"] = payload.DeepLink
	}

	message := &messaging.Message{
		Data: data,
		Notification: &messaging.Notification{
			Title: payload.Title,
			Body:  payload.Body,
		},
		Token: token,
	}

	if _, err := s.client.Send(ctx, message); err != nil {
		if messaging.IsUnregistered(err) {
			return Permanent(fmt.Errorf("token unregistered: %w", err))
		}
		return fmt.Errorf("error sending message: %w", err)
	}
	return nil
}
