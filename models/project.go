package models

import "time"

// Project is a CLA group: the unit contributors sign agreements against.
type Project struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	ICLAEnabled bool      `json:"icla_enabled"`
	CCLAEnabled bool      `json:"ccla_enabled"`
}
