package domain

import "time"

// Scope is a registered permission name. A scope may refine a parent scope,
// which must be registered first.
type Scope struct {
	Name        string    `bson:"_id"                   json:"name"`
	Description string    `bson:"description,omitempty" json:"description,omitempty"`
	Parent      string    `bson:"parent,omitempty"      json:"parent,omitempty"`
	CreatedAt   time.Time `bson:"created_at"            json:"created_at"`
}
