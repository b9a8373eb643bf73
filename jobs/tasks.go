package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// Task type identifiers. Queue names follow the asynq default of "default"
// unless stated otherwise.
const (
	TypePasswordResetEmail = "mail:password_reset"
	TypeSessionSweep       = "session:sweep"
)

// PasswordResetEmailPayload carries the recipient of a reset email.
type PasswordResetEmailPayload struct {
	Email string `json:"email"`
}

// NewPasswordResetEmailTask creates a password reset email delivery task.
func NewPasswordResetEmailTask(email string) *asynq.Task {
	payload, _ := json.Marshal(PasswordResetEmailPayload{Email: email})
	return asynq.NewTask(TypePasswordResetEmail, payload, asynq.MaxRetry(5))
}

// NewSessionSweepTask creates a periodic maintenance task that prunes
// expired password reset tokens and stale session index entries.
func NewSessionSweepTask() *asynq.Task {
	return asynq.NewTask(TypeSessionSweep, nil, asynq.MaxRetry(1))
}
