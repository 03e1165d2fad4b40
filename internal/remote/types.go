package remote

import "encoding/json"

// Category tables on the remote store, one per progress category.
const (
	TableAchievements = "achievements"
	TableCompletions  = "completions"
	TableSaveSlots    = "save_slots"
	TableRankings     = "rankings"
)

// APIError is the error envelope the PokeRankr API uses. Errors may
// arrive with a non-200 status or as a 200 with an error body.
type APIError struct {
	Error string `json:"error"`
}

// User identifies a PokeRankr account.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// SignInRequest authenticates with email and password.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Device   string `json:"device,omitempty"`
}

// SignUpRequest creates a new account.
type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Device   string `json:"device,omitempty"`
}

// AuthResponse is returned by signin, signup, and session validation.
type AuthResponse struct {
	Token string `json:"token,omitempty"`
	User  User   `json:"user"`
}

// SignOutRequest invalidates a session token.
type SignOutRequest struct {
	Token string `json:"token"`
}

// SessionRequest validates a cached session token.
type SessionRequest struct {
	Token string `json:"token"`
}

// recordRequest addresses a single per-user record in a category table.
type recordRequest struct {
	UserID string `json:"user_id"`
}

// recordResponse carries a per-user record, null when absent.
type recordResponse struct {
	Record json.RawMessage `json:"record"`
}

// writeRequest inserts or updates a per-user record.
type writeRequest struct {
	UserID string          `json:"user_id"`
	Value  json.RawMessage `json:"value"`
}
