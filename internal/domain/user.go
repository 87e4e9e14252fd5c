package domain

// User is the identity obtained from the Google userinfo endpoint. It is
// immutable for the lifetime of the session that produced it.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url,omitempty"`
}
