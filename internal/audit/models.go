package audit

import "time"

// Event records one auth decision. It never carries tokens or passwords.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"user_id,omitempty"`
	Action    Action    `json:"action"`
	Outcome   string    `json:"outcome,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Role      string    `json:"role,omitempty"`
}

type Action string

const (
	ActionSignInSucceeded     Action = "sign_in_succeeded"
	ActionSignInFailed        Action = "sign_in_failed"
	ActionSignedOut           Action = "signed_out"
	ActionSessionValidated    Action = "session_validated"
	ActionSessionRejected     Action = "session_rejected"
	ActionInvalidationFailed  Action = "session_invalidation_failed"
	ActionRemoteSignOut       Action = "remote_sign_out_received"
)
