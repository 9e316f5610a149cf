package user

import (
	"time"

	"github.com/gofrs/uuid"
)

// Table is the remote table holding users.
const Table = "app_user"

// Row is a persisted user. ID and CreatedAt are generated by the store.
type Row struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Insert is the caller-supplied part of a Row.
type Insert struct {
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
	Email     string `json:"email" validate:"required,email,max=254"`
}

// Patch changes the fields that are set and leaves the others alone.
type Patch struct {
	FirstName *string `json:"first_name,omitempty" validate:"omitempty,min=1,max=100"`
	LastName  *string `json:"last_name,omitempty" validate:"omitempty,max=100"`
	Email     *string `json:"email,omitempty" validate:"omitempty,email,max=254"`
}

func (p Patch) IsEmpty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Email == nil
}

// Filter narrows a listing; empty fields are ignored.
type Filter struct {
	FirstName string
	LastName  string
	Email     string
}
