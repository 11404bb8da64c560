package domain

// UserContext is the authenticated marketplace user injected into request
// handlers. Account management lives in the main marketplace service; this
// engine only needs the identity carried by the session token.
type UserContext struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}
