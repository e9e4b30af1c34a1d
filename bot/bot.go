// Package bot is a thin wrapper over the platform client (§4.3):
// segmented sends, retry with back-off, retryable/permanent error
// classification, and an optional fire-and-forget send. HTML
// parse-mode is always on.
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"jeopardybot/model"
	"jeopardybot/platform"
	"jeopardybot/ratelimit"
)

const (
	maxSendAttempts = 20
	retryGap        = 1 * time.Second
)

// ErrGaveUp is returned by Send when every retry attempt failed.
var ErrGaveUp = errors.New("gave up")

// Bot wraps a platform.Client with the send/retry/rate-limit policy
// every privileged call follows.
type Bot struct {
	client  platform.Client
	limiter *ratelimit.Limiter
	// global throttles the process-wide call rate in addition to the
	// per-chat spacing ratelimit.Limiter provides, modeling the
	// platform's overall rate ceiling (§5 "no suspension ... while
	// holding the RateLimiter lock" is preserved since Wait is called
	// outside any lock).
	global *rate.Limiter
	log    *zap.Logger
}

func New(client platform.Client, log *zap.Logger) *Bot {
	return &Bot{
		client:  client,
		limiter: ratelimit.New(),
		global:  rate.NewLimiter(30, 30), // ~30 msg/s, matching typical platform ceilings
		log:     log,
	}
}

// Send is the blocking send: splits long text, retries transient
// failures, uses the RateLimiter, and returns the final message id (of
// the last segment sent).
func (b *Bot) Send(ctx context.Context, chatID int64, text string, kb model.Keyboard) (int, error) {
	segments := splitMessage(text)
	var lastID int
	for _, seg := range segments {
		id, err := b.sendOne(ctx, chatID, seg, kb)
		if err != nil {
			return 0, err
		}
		lastID = id
	}
	return lastID, nil
}

func (b *Bot) sendOne(ctx context.Context, chatID int64, text string, kb model.Keyboard) (int, error) {
	var id int
	err := b.limiter.Guarded(ctx, chatID, func(ctx context.Context) error {
		return b.withRetry(ctx, func(ctx context.Context) error {
			if err := b.global.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
			var err error
			id, err = b.client.SendMessage(ctx, chatID, text, kb.Rows(), kb == model.KeyboardRemove)
			return classify(err)
		})
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// TrySend is fire-and-forget: same split/retry logic, no RateLimiter
// (the caller accepts reordering against other outbound traffic).
func (b *Bot) TrySend(chatID int64, text string) {
	go func() {
		ctx := context.Background()
		for _, seg := range splitMessage(text) {
			err := b.withRetry(ctx, func(ctx context.Context) error {
				if err := b.global.Wait(ctx); err != nil {
					return backoff.Permanent(err)
				}
				_, err := b.client.SendMessage(ctx, chatID, seg, nil, false)
				return classify(err)
			})
			if err != nil {
				if errors.Is(err, ErrGaveUp) {
					b.log.Warn("try_send gave up", zap.Int64("chat_id", chatID), zap.Error(err))
				}
				return
			}
		}
	}()
}

// Edit edits a previously-sent message.
func (b *Bot) Edit(ctx context.Context, chatID int64, messageID int, text string) error {
	return b.limiter.Guarded(ctx, chatID, func(ctx context.Context) error {
		return b.withRetry(ctx, func(ctx context.Context) error {
			return classify(b.client.EditMessageText(ctx, chatID, messageID, text))
		})
	})
}

// Kick kicks a user only if their current chat-member status is "member".
func (b *Bot) Kick(ctx context.Context, chatID, userID int64) error {
	return b.limiter.Guarded(ctx, chatID, func(ctx context.Context) error {
		status, err := b.client.GetChatMember(ctx, chatID, userID)
		if err != nil {
			return classify(err)
		}
		if status != platform.StatusMember {
			return nil
		}
		return b.withRetry(ctx, func(ctx context.Context) error {
			return classify(b.client.KickChatMember(ctx, chatID, userID))
		})
	})
}

// CreateInviteLink creates a fresh invite link for a chat.
func (b *Bot) CreateInviteLink(ctx context.Context, chatID int64) (string, error) {
	var link string
	err := b.limiter.Guarded(ctx, chatID, func(ctx context.Context) error {
		return b.withRetry(ctx, func(ctx context.Context) error {
			var err error
			link, err = b.client.CreateInviteLink(ctx, chatID)
			return classify(err)
		})
	})
	return link, err
}

// RevokeInviteLink revokes a previously issued invite link.
func (b *Bot) RevokeInviteLink(ctx context.Context, chatID int64, link string) error {
	return b.limiter.Guarded(ctx, chatID, func(ctx context.Context) error {
		return b.withRetry(ctx, func(ctx context.Context) error {
			return classify(b.client.RevokeInviteLink(ctx, chatID, link))
		})
	})
}

// AllPresent returns true iff every user has status "member" (§4.3).
func (b *Bot) AllPresent(ctx context.Context, chatID int64, users []int64) (bool, error) {
	for _, u := range users {
		status, err := b.client.GetChatMember(ctx, chatID, u)
		if err != nil {
			return false, classify(err)
		}
		if status != platform.StatusMember {
			return false, nil
		}
	}
	return true, nil
}

// DownloadDocument fetches a file unless its mime type starts with
// "text" (§4.3).
func (b *Bot) DownloadDocument(ctx context.Context, doc platform.Document) (string, []byte, error) {
	if len(doc.MimeType) >= 4 && doc.MimeType[:4] == "text" {
		return doc.FileName, nil, nil
	}
	return b.client.DownloadDocument(ctx, doc)
}

// withRetry retries transient failures up to maxSendAttempts times
// with a fixed retryGap, per §4.3/§7. Permanent errors (classify
// wraps them in backoff.Permanent) are not retried.
func (b *Bot) withRetry(ctx context.Context, op func(context.Context) error) error {
	attempts := 0
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(retryGap), maxSendAttempts-1), ctx)
	err := backoff.Retry(func() error {
		attempts++
		return op(ctx)
	}, policy)
	if err == nil {
		return nil
	}
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	b.log.Warn("send exhausted retries", zap.Int("attempts", attempts), zap.Error(err))
	return fmt.Errorf("%w: %v", ErrGaveUp, err)
}

// classify wraps an error so backoff knows whether to retry it:
// permanent client errors ("Bad Request") stop retrying immediately,
// everything else is treated as retryable transport (§7).
func classify(err error) error {
	if err == nil {
		return nil
	}
	if platform.IsPermanent(err) {
		return backoff.Permanent(err)
	}
	return err
}
