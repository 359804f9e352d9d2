package model

type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type VerifyEmailRequest struct {
	Token string `json:"token"`
}

type AssignRolesRequest struct {
	Roles []string `json:"roles"`
}

type RegisterResponse struct {
	User Profile `json:"user"`
	// VerificationToken would normally travel by email; the notification
	// service is an external collaborator, so it is returned inline.
	VerificationToken string `json:"verification_token"`
}
