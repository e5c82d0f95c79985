package model

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ChatRequest struct {
	Message string `json:"message"`
	Context string `json:"context,omitempty"`
}

type GPARequest struct {
	Grades  []string  `json:"grades"`
	Credits []float64 `json:"credits"`
}
