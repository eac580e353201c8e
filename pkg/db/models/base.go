package models

import "github.com/google/uuid"

// assignID gives a row a client-side v4 id when the caller did not set one.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
