package domain

import "time"

// Role is a User's privilege level.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is the durable identity record (spec §3). PasswordHash is never
// serialized to a client; PublicView strips it.
type User struct {
	ID           string
	Username     string
	DisplayName  string
	Email        string
	PasswordHash string
	Role         Role
	JoinDate     time.Time
	LastLogin    time.Time
	Settings     map[string]Value
}

// PublicView is the client-facing projection of a User: never the hash.
type PublicView struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	DisplayName string     `json:"displayName"`
	Email       string     `json:"email,omitempty"`
	Role        Role       `json:"role"`
	JoinDate    time.Time  `json:"joinDate"`
	LastLogin   *time.Time `json:"lastLogin,omitempty"`
}

// Public projects a User down to its PublicView.
func (u User) Public() PublicView {
	v := PublicView{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Role:        u.Role,
		JoinDate:    u.JoinDate,
	}
	if !u.LastLogin.IsZero() {
		last := u.LastLogin
		v.LastLogin = &last
	}
	return v
}
