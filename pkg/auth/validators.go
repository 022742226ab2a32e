package auth

// SignUpPayload represents the sign up request body.
type SignUpPayload struct {
	Email    string `json:"email" mod:"trim,lcase" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// LoginPayload represents the login request body.
type LoginPayload struct {
	Email    string `json:"email" mod:"trim,lcase" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SessionResponse describes the signed in user.
type SessionResponse struct {
	ID        int    `json:"id"`
	Email     string `json:"email"`
	ExpiresAt string `json:"expires_at,omitempty"`
}
