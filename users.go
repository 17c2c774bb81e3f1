package main

import (
	"strings"
)

// Role is the privilege level granted by a credential.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleHost   Role = "host"
	RolePlayer Role = "player"
)

// hostPrivileged reports whether the role may claim the game host or
// display host seat. Admin and host are functionally equivalent.
func (r Role) hostPrivileged() bool {
	return r == RoleAdmin || r == RoleHost
}

type user struct {
	password string
	role     Role
}

// userStore is the static credential database. It is immutable for the
// lifetime of the process.
type userStore struct {
	users map[string]user
}

func newUserStore(cfg *Config) *userStore {
	return &userStore{
		users: map[string]user{
			"admin":   {password: cfg.adminPassword, role: RoleAdmin},
			"host":    {password: cfg.hostPassword, role: RoleHost},
			"player1": {password: cfg.playerPassword, role: RolePlayer},
			"player2": {password: cfg.playerPassword, role: RolePlayer},
			"player3": {password: cfg.playerPassword, role: RolePlayer},
			"player4": {password: cfg.playerPassword, role: RolePlayer},
		},
	}
}

// lookup checks a credential pair and returns the granted role.
// Usernames are case-insensitive on every authentication path.
func (s *userStore) lookup(username, password string) (Role, bool) {
	u, ok := s.users[strings.ToLower(username)]
	if !ok || u.password != password {
		return "", false
	}
	return u.role, true
}
