// Package identity provisions realms, users and OAuth clients in the identity
// provider and issues tokens against its OIDC endpoints.
package identity

import (
	"context"
	"errors"
)

var ErrUserNotFound = errors.New("identity: user not found")

// Client is an OAuth client as registered in the realm.
type Client struct {
	ID           string // provider-internal id
	ClientID     string
	Secret       string
	RedirectURIs []string
	Created      bool
}

// Mapper is an OIDC protocol mapper attached to a client.
type Mapper struct {
	Name           string
	ProtocolMapper string
	Config         map[string]string
}

// Provisioner performs the idempotent upserts an installation run needs.
type Provisioner interface {
	EnsureRealm(ctx context.Context, name string) error
	EnsureAdminUser(ctx context.Context, email, password string) error
	EnsureClient(ctx context.Context, clientID, candidateSecret string, redirectURIs []string) (Client, error)
	// AttachProtocolMappers returns how many mappers were attached. Individual
	// failures are not reported.
	AttachProtocolMappers(ctx context.Context, clientUUID string, mappers []Mapper) int
	LookupUserID(ctx context.Context, email string) (string, error)
}

// User is the dashboard view of a realm user.
type User struct {
	ID               string `json:"id"`
	Username         string `json:"username"`
	Email            string `json:"email,omitempty"`
	FirstName        string `json:"firstName,omitempty"`
	LastName         string `json:"lastName,omitempty"`
	Enabled          bool   `json:"enabled"`
	CreatedTimestamp int64  `json:"createdTimestamp,omitempty"`
}

// Directory is the user management surface of the dashboard.
type Directory interface {
	ListUsers(ctx context.Context) ([]User, error)
	CreateUser(ctx context.Context, username, email, password string) (string, error)
	DeleteUser(ctx context.Context, id string) error
	ClientSecret(ctx context.Context, clientID string) (string, error)
}

// MergeRedirectURIs returns the union of existing and added, keeping the
// existing order and appending new entries in the order given.
func MergeRedirectURIs(existing, added []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(added))
	out := make([]string, 0, len(existing)+len(added))
	for _, list := range [][]string{existing, added} {
		for _, u := range list {
			if u == "" {
				continue
			}
			if _, ok := seen[u]; ok {
				continue
			}
			seen[u] = struct{}{}
			out = append(out, u)
		}
	}
	return out
}

func mergeAttributes(existing, added map[string]string) map[string]string {
	out := make(map[string]string, len(existing)+len(added))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range added {
		out[k] = v
	}
	return out
}
