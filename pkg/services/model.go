package services

import "time"

// Descriptor is one row of the installed-service directory.
type Descriptor struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"` // unique key
	URL         string    `json:"url"`
	Icon        string    `json:"icon"`
	Description string    `json:"description"`
	LoginPath   *string   `json:"login_path"` // optional SSO entry path (forgejo: /user/oauth2/keycloak)
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

const StatusActive = "active"
