package http

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type DigestItem struct {
	DigestID    string `json:"digest_id"`
	UserID      string `json:"user_id"`
	Content     string `json:"content"`
	GeneratedAt string `json:"generated_at"`
}

type DigestsResponse struct {
	Items []DigestItem `json:"items"`
}

type EnqueueDigestResponse struct {
	Enqueued bool   `json:"enqueued"`
	UserID   string `json:"user_id"`
	EventID  string `json:"event_id,omitempty"`
}
