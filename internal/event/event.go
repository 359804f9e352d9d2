package event

type Type string

const (
	TypeLoginSucceeded  Type = "auth.login.succeeded"
	TypeLoginFailed     Type = "auth.login.failed"
	TypeRegistered      Type = "auth.registered"
	TypePasswordChanged Type = "auth.password.changed"
	TypeEmailVerified   Type = "auth.email.verified"
	TypeTokenRefreshed  Type = "auth.token.refreshed"
	TypeLoggedOut       Type = "auth.logged_out"
	TypeTokensRevoked   Type = "auth.tokens.revoked"
	TypeRolesChanged    Type = "auth.roles.changed"
	TypeAccountLocked   Type = "auth.account.locked"
	TypeAccountUnlocked Type = "auth.account.unlocked"
	TypeAccountDisabled Type = "auth.account.disabled"
	TypeReuseDetected   Type = "auth.token.reuse_detected"
)

type Actor struct {
	UserID    string `json:"user_id,omitempty"`
	Email     string `json:"email,omitempty"`
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

type Event struct {
	ID        string `json:"id"`
	Type      Type   `json:"type"`
	Actor     Actor  `json:"actor"`
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Timestamp string `json:"timestamp"`
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func())
}
