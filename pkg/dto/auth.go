package dto

type ConsentURLResponse struct {
	URL string `json:"url"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type ExchangeCodeRequest struct {
	Code string `json:"code"`
}

type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by signup and login.
type AuthResponse struct {
	Tokens TokenResponse    `json:"tokens"`
	User   IdentityResponse `json:"user"`
}

type ChangePasswordRequest struct {
	Password string `json:"password"`
}

type UpdateEmailRequest struct {
	Email string `json:"email"`
}

type PasswordResetRequest struct {
	Email string `json:"email"`
}

type ConfirmPasswordResetRequest struct {
	Code     string `json:"code"`
	Password string `json:"password"`
}

// ErrorResponse carries a stable error code next to the message.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// StoreTokenResponse is the token exchange envelope. Data holds the store
// credential on success, Message a generic reason on failure.
type StoreTokenResponse struct {
	Status  string `json:"status"`
	Data    string `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
)
