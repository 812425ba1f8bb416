package models

// User est l'identité extraite du JWT (le jeton est émis par le fournisseur d'identité).
type User struct {
	ID    string `json:"user_id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

const RoleAdmin = "admin"
