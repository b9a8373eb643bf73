package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// MailSender delivers transactional email. The default implementation only
// logs; wire an SMTP sender in deployments that need real delivery.
type MailSender interface {
	SendPasswordReset(ctx context.Context, email, token string) error
}

// LogMailSender writes outgoing mail to the log instead of sending it.
type LogMailSender struct {
	Logger *slog.Logger
}

// SendPasswordReset logs the reset mail that would have been sent.
func (s *LogMailSender) SendPasswordReset(ctx context.Context, email, token string) error {
	s.Logger.Info("password reset email",
		slog.String("to", email),
		slog.String("token", token))
	return nil
}

// TaskHandlers bundles the dependencies the worker handlers need.
type TaskHandlers struct {
	Pool   *pgxpool.Pool
	Redis  *redis.Client
	Mail   MailSender
	Logger *slog.Logger
}

// HandlePasswordResetEmail looks up the newest unexpired token for the
// address and hands it to the mail sender. A missing token is not an error;
// reset requests never reveal whether an account exists.
func (h *TaskHandlers) HandlePasswordResetEmail(ctx context.Context, t *asynq.Task) error {
	var payload PasswordResetEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	var token string
	err := h.Pool.QueryRow(ctx, `
		SELECT pr.token
		FROM password_resets pr
		JOIN users u ON u.id = pr.user_id
		WHERE u.email = $1 AND pr.expires_at > NOW() AND pr.used_at IS NULL
		ORDER BY pr.created_at DESC
		LIMIT 1`, payload.Email).Scan(&token)
	if err != nil {
		h.Logger.Info("no active reset token, skipping email", slog.String("email", payload.Email))
		return nil
	}

	return h.Mail.SendPasswordReset(ctx, payload.Email, token)
}

// HandleSessionSweep removes expired password reset tokens and prunes
// session index sets whose sessions have already expired in Redis.
func (h *TaskHandlers) HandleSessionSweep(ctx context.Context, t *asynq.Task) error {
	tag, err := h.Pool.Exec(ctx, `DELETE FROM password_resets WHERE expires_at < NOW()`)
	if err != nil {
		return fmt.Errorf("prune password resets: %w", err)
	}

	var pruned int
	iter := h.Redis.Scan(ctx, 0, "session_user:*", 100).Iterator()
	for iter.Next(ctx) {
		indexKey := iter.Val()
		ids, err := h.Redis.SMembers(ctx, indexKey).Result()
		if err != nil {
			continue
		}
		for _, id := range ids {
			exists, err := h.Redis.Exists(ctx, "session:"+id).Result()
			if err != nil || exists > 0 {
				continue
			}
			if err := h.Redis.SRem(ctx, indexKey, id).Err(); err == nil {
				pruned++
			}
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan session index: %w", err)
	}

	h.Logger.Info("session sweep finished",
		slog.Int64("tokens_removed", tag.RowsAffected()),
		slog.Int("index_entries_pruned", pruned))
	return nil
}
