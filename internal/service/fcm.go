package service

import (
	"context"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// fcmBatchLimit is the most tokens FCM accepts in one multicast.
const fcmBatchLimit = 500

// PushResult summarises one fan-out.
type PushResult struct {
	Sent   int
	Failed int
	// InvalidTokens are tokens FCM reported as unregistered or malformed.
	// They will never succeed and should be deleted.
	InvalidTokens []string
}

// PushSender delivers a notification to a set of device tokens.
type PushSender interface {
	SendToTokens(ctx context.Context, tokens []string, title, body string, data map[string]string) (PushResult, error)
}

// FCMClient wraps the Firebase Cloud Messaging client.
//
// The credentials (project ID, client email, private key) come from the
// Firebase console service account.
type FCMClient struct {
	client *messaging.Client
	log    *zap.SugaredLogger
}

// NewFCMClient creates a new FCM client from environment credentials. The
// private key in .env usually has literal "\n" sequences, which are turned
// back into newlines for the PEM parser.
func NewFCMClient(ctx context.Context, projectID, clientEmail, privateKey string, log *zap.SugaredLogger) (*FCMClient, error) {
	privateKey = strings.ReplaceAll(privateKey, "\\n", "\n")

	credsJSON := fmt.Sprintf(`{
		"type": "service_account",
		"project_id": %q,
		"private_key": %q,
		"client_email": %q,
		"token_uri": "https://oauth2.googleapis.com/token"
	}`, projectID, privateKey, clientEmail)

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, option.WithCredentialsJSON([]byte(credsJSON)))
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("get messaging client: %w", err)
	}

	log = log.Named("fcm")
	log.Infow("Initialized", "project", projectID)
	return &FCMClient{client: client, log: log}, nil
}

// SendToTokens sends one notification to every token, 500 at a time. A batch
// that fails as a whole counts all its tokens as failed and does not stop the
// remaining batches.
func (c *FCMClient) SendToTokens(ctx context.Context, tokens []string, title, body string, data map[string]string) (PushResult, error) {
	var result PushResult
	var lastErr error

	for start := 0; start < len(tokens); start += fcmBatchLimit {
		end := start + fcmBatchLimit
		if end > len(tokens) {
			end = len(tokens)
		}
		batch := tokens[start:end]

		response, err := c.client.SendEachForMulticast(ctx, buildMulticast(batch, title, body, data))
		if err != nil {
			c.log.Errorw("Batch send FAILED", "tokens", len(batch), "err", err)
			result.Failed += len(batch)
			lastErr = err
			continue
		}

		result.Sent += response.SuccessCount
		result.Failed += response.FailureCount
		for i, resp := range response.Responses {
			if resp.Success {
				continue
			}
			if messaging.IsRegistrationTokenNotRegistered(resp.Error) || messaging.IsInvalidArgument(resp.Error) {
				result.InvalidTokens = append(result.InvalidTokens, batch[i])
			}
		}
	}

	c.log.Infow("Push complete",
		"tokens", len(tokens),
		"sent", result.Sent,
		"failed", result.Failed,
		"invalid", len(result.InvalidTokens))

	if result.Sent == 0 && lastErr != nil {
		return result, fmt.Errorf("send multicast: %w", lastErr)
	}
	return result, nil
}

func buildMulticast(tokens []string, title, body string, data map[string]string) *messaging.MulticastMessage {
	return &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound:     "default",
				ChannelID: "default",
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: "default"},
			},
		},
	}
}
