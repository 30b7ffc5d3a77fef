package domain

import "strings"

// Role: роль пользователя, передаётся в заголовке X-User-Role.
type Role string

const (
	RoleGuest    Role = "guest"
	RoleCustomer Role = "customer"
	RoleSupport  Role = "support"
	RoleAdmin    Role = "admin"
)

// ParseRole нормализует роль; неизвестное значение считается гостем.
func ParseRole(raw string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleCustomer:
		return RoleCustomer
	case RoleSupport:
		return RoleSupport
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleGuest
	}
}

// Session: активная сессия клиента.
type Session struct {
	Token  string `json:"token,omitempty"`
	UserID string `json:"user_id,omitempty"`
	Role   Role   `json:"role"`
}

// AnonymousSession возвращает сессию без пользователя.
func AnonymousSession() Session {
	return Session{Role: RoleGuest}
}

// Authenticated сообщает, что сессия принадлежит пользователю.
func (s Session) Authenticated() bool {
	return s.Token != "" && s.UserID != ""
}

// Identity: идентичность сессии; смена идентичности сбрасывает корзину.
func (s Session) Identity() string {
	if !s.Authenticated() {
		return "anonymous"
	}
	return "user:" + s.UserID
}

// CanHandleSupport разрешает доступ к входящим обращениям.
func (s Session) CanHandleSupport() bool {
	return s.Authenticated() && (s.Role == RoleSupport || s.Role == RoleAdmin)
}

// User: профиль пользователя.
type User struct {
	ID         string       `json:"id"`
	Email      string       `json:"email"`
	Name       string       `json:"name"`
	Phone      string       `json:"phone,omitempty"`
	Shipping   ShippingInfo `json:"shipping"`
	Role       Role         `json:"role"`
	Registered bool         `json:"registered"`
}

// Credentials: данные для входа.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration: данные для завершения регистрации.
type Registration struct {
	Name     string       `json:"name"`
	Phone    string       `json:"phone"`
	Shipping ShippingInfo `json:"shipping"`
}
