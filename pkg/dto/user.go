package dto

// IdentityResponse is the identity provider's view of an account.
type IdentityResponse struct {
	SubjectID     string `json:"subject_id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture,omitempty"`
	Provider      string `json:"provider"`
}

// UpdateProfileRequest updates identity profile fields. Nil fields are
// left unchanged.
type UpdateProfileRequest struct {
	Email   *string `json:"email,omitempty"`
	Name    *string `json:"name,omitempty"`
	Picture *string `json:"picture,omitempty"`
}
