package model

type AuditActor struct {
	UserID    string `json:"user_id,omitempty"`
	Email     string `json:"email,omitempty"`
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

type AuditEntry struct {
	Action     string     `json:"action"`
	OccurredAt string     `json:"occurred_at"`
	Actor      AuditActor `json:"actor"`
	Status     string     `json:"status"`
	Detail     string     `json:"detail,omitempty"`
}

type AuditQuery struct {
	Action  string
	ActorID string
	Status  string
	From    string
	To      string
	Page    int
	Limit   int
}
