package auth

// Claims representa la información extraída del token.
// UserID es el subject del proveedor de identidad.
type Claims struct {
	UserID string
	Email  string
	Name   string
}
