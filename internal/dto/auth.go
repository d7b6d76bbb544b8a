package dto

// LoginBody is the HTTP login payload.
type LoginBody struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

// RefreshBody is the HTTP refresh payload.
type RefreshBody struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}
