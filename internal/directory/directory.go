package directory

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a container id is unknown to the directory.
var ErrNotFound = errors.New("container not found")

// Identity is a browser container as seen by courier.
type Identity struct {
	ID   string
	Name string
}

// Entry is one directory record.
type Entry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// Resolver maps a container id to its identity.
type Resolver interface {
	Resolve(ctx context.Context, id string) (Identity, error)
}

// RoleDirectory maps a container id to its configured role. found is false
// when the container exists but has no role.
type RoleDirectory interface {
	Role(ctx context.Context, id string) (role string, found bool, err error)
}

// Source is a directory that can answer both questions.
type Source interface {
	Resolver
	RoleDirectory
}
