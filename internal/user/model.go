package user

type User struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"-"`
}

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=6"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type UserInfo struct {
	ID    int    `json:"id"`
	Email string `json:"email"`
}

type AuthResponse struct {
	Message  string    `json:"message"`
	Token    string    `json:"token"`
	Username string    `json:"username"`
	User     *UserInfo `json:"user,omitempty"`
}
