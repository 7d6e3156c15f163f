package model

import "github.com/google/uuid"

// Role distinguishes privileged callers from students.
type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// Caller identifies who is invoking an operation. It is passed explicitly into services.
type Caller struct {
	ID   uuid.UUID
	Role Role
}

// Privileged reports whether the caller may act on other students' data.
func (c Caller) Privileged() bool {
	return c.Role == RoleAdmin
}
