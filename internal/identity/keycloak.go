package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Nerzal/gocloak/v13"
	"go.uber.org/zap"
)

const masterRealm = "master"

// adminAPI is the subset of *gocloak.GoCloak the provisioner uses.
type adminAPI interface {
	LoginAdmin(ctx context.Context, username, password, realm string) (*gocloak.JWT, error)
	GetRealms(ctx context.Context, token string) ([]*gocloak.RealmRepresentation, error)
	CreateRealm(ctx context.Context, token string, realm gocloak.RealmRepresentation) (string, error)
	GetUsers(ctx context.Context, token, realm string, params gocloak.GetUsersParams) ([]*gocloak.User, error)
	CreateUser(ctx context.Context, token, realm string, user gocloak.User) (string, error)
	DeleteUser(ctx context.Context, token, realm, userID string) error
	GetClients(ctx context.Context, token, realm string, params gocloak.GetClientsParams) ([]*gocloak.Client, error)
	CreateClient(ctx context.Context, token, realm string, client gocloak.Client) (string, error)
	UpdateClient(ctx context.Context, token, realm string, client gocloak.Client) error
	GetClientSecret(ctx context.Context, token, realm, idOfClient string) (*gocloak.CredentialRepresentation, error)
	CreateClientProtocolMapper(ctx context.Context, token, realm, idOfClient string, mapper gocloak.ProtocolMapperRepresentation) (string, error)
}

// Keycloak implements Provisioner and Directory against the Keycloak admin
// REST API. Admin credentials authenticate against the master realm; all
// provisioning happens in Realm.
type Keycloak struct {
	api      adminAPI
	realm    string
	username string
	password string
	log      *zap.SugaredLogger

	mu      sync.Mutex
	token   string
	expires time.Time
	now     func() time.Time
}

type KeycloakConfig struct {
	BaseURL       string
	Realm         string
	AdminUser     string
	AdminPassword string
}

func NewKeycloak(cfg KeycloakConfig, log *zap.SugaredLogger) *Keycloak {
	return newKeycloak(gocloak.NewClient(cfg.BaseURL), cfg, log)
}

func newKeycloak(api adminAPI, cfg KeycloakConfig, log *zap.SugaredLogger) *Keycloak {
	return &Keycloak{
		api:      api,
		realm:    cfg.Realm,
		username: cfg.AdminUser,
		password: cfg.AdminPassword,
		log:      log,
		now:      time.Now,
	}
}

func (k *Keycloak) Realm() string { return k.realm }

// adminToken returns a cached master-realm token, logging in again when it is
// within ten seconds of expiry.
func (k *Keycloak) adminToken(ctx context.Context) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.token != "" && k.now().Before(k.expires) {
		return k.token, nil
	}
	jwt, err := k.api.LoginAdmin(ctx, k.username, k.password, masterRealm)
	if err != nil {
		return "", fmt.Errorf("keycloak admin login: %w", err)
	}
	k.token = jwt.AccessToken
	k.expires = k.now().Add(time.Duration(jwt.ExpiresIn)*time.Second - 10*time.Second)
	return k.token, nil
}

func (k *Keycloak) EnsureRealm(ctx context.Context, name string) error {
	token, err := k.adminToken(ctx)
	if err != nil {
		return err
	}
	realms, err := k.api.GetRealms(ctx, token)
	if err != nil {
		return fmt.Errorf("list realms: %w", err)
	}
	for _, r := range realms {
		if r != nil && gocloak.PString(r.Realm) == name {
			return nil
		}
	}
	if _, err := k.api.CreateRealm(ctx, token, gocloak.RealmRepresentation{
		ID:                  gocloak.StringP(name),
		Realm:               gocloak.StringP(name),
		Enabled:             gocloak.BoolP(true),
		RegistrationAllowed: gocloak.BoolP(false),
	}); err != nil {
		return fmt.Errorf("create realm %s: %w", name, err)
	}
	k.log.Infow("realm created", "realm", name)
	return nil
}

func (k *Keycloak) findUser(ctx context.Context, token, username string) (*gocloak.User, error) {
	users, err := k.api.GetUsers(ctx, token, k.realm, gocloak.GetUsersParams{
		Username: gocloak.StringP(username),
		Exact:    gocloak.BoolP(true),
	})
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	for _, u := range users {
		if u != nil && u.ID != nil {
			return u, nil
		}
	}
	return nil, nil
}

func (k *Keycloak) EnsureAdminUser(ctx context.Context, email, password string) error {
	token, err := k.adminToken(ctx)
	if err != nil {
		return err
	}
	existing, err := k.findUser(ctx, token, email)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	if _, err := k.api.CreateUser(ctx, token, k.realm, newUser(email, email, password)); err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	k.log.Infow("admin user created", "realm", k.realm, "username", email)
	return nil
}

func newUser(username, email, password string) gocloak.User {
	return gocloak.User{
		Username:      gocloak.StringP(username),
		Email:         gocloak.StringP(email),
		EmailVerified: gocloak.BoolP(true),
		Enabled:       gocloak.BoolP(true),
		Credentials: &[]gocloak.CredentialRepresentation{{
			Type:      gocloak.StringP("password"),
			Value:     gocloak.StringP(password),
			Temporary: gocloak.BoolP(false),
		}},
	}
}

var clientAttributes = map[string]string{"post.logout.redirect.uris": "+"}

func (k *Keycloak) findClient(ctx context.Context, token, clientID string) (*gocloak.Client, error) {
	clients, err := k.api.GetClients(ctx, token, k.realm, gocloak.GetClientsParams{ClientID: gocloak.StringP(clientID)})
	if err != nil {
		return nil, fmt.Errorf("find client %s: %w", clientID, err)
	}
	for _, c := range clients {
		if c != nil && c.ID != nil {
			return c, nil
		}
	}
	return nil, nil
}

// EnsureClient creates clientID with candidateSecret, or merges redirectURIs
// into the existing client and returns its stored secret.
func (k *Keycloak) EnsureClient(ctx context.Context, clientID, candidateSecret string, redirectURIs []string) (Client, error) {
	token, err := k.adminToken(ctx)
	if err != nil {
		return Client{}, err
	}
	existing, err := k.findClient(ctx, token, clientID)
	if err != nil {
		return Client{}, err
	}
	if existing != nil {
		var current []string
		if existing.RedirectURIs != nil {
			current = *existing.RedirectURIs
		}
		var attrs map[string]string
		if existing.Attributes != nil {
			attrs = *existing.Attributes
		}
		merged := MergeRedirectURIs(current, redirectURIs)
		mergedAttrs := mergeAttributes(attrs, clientAttributes)
		existing.RedirectURIs = &merged
		existing.Attributes = &mergedAttrs
		if err := k.api.UpdateClient(ctx, token, k.realm, *existing); err != nil {
			return Client{}, fmt.Errorf("update client %s: %w", clientID, err)
		}
		cred, err := k.api.GetClientSecret(ctx, token, k.realm, *existing.ID)
		if err != nil {
			return Client{}, fmt.Errorf("client secret %s: %w", clientID, err)
		}
		return Client{
			ID:           *existing.ID,
			ClientID:     clientID,
			Secret:       gocloak.PString(cred.Value),
			RedirectURIs: merged,
		}, nil
	}

	uris := MergeRedirectURIs(nil, redirectURIs)
	attrs := mergeAttributes(nil, clientAttributes)
	id, err := k.api.CreateClient(ctx, token, k.realm, gocloak.Client{
		ClientID:                  gocloak.StringP(clientID),
		Secret:                    gocloak.StringP(candidateSecret),
		ServiceAccountsEnabled:    gocloak.BoolP(true),
		StandardFlowEnabled:       gocloak.BoolP(true),
		DirectAccessGrantsEnabled: gocloak.BoolP(true),
		RedirectURIs:              &uris,
		Attributes:                &attrs,
		WebOrigins:                &[]string{"+"},
	})
	if err != nil {
		return Client{}, fmt.Errorf("create client %s: %w", clientID, err)
	}
	k.log.Infow("client created", "realm", k.realm, "client_id", clientID)
	return Client{ID: id, ClientID: clientID, Secret: candidateSecret, RedirectURIs: uris, Created: true}, nil
}

func (k *Keycloak) AttachProtocolMappers(ctx context.Context, clientUUID string, mappers []Mapper) int {
	token, err := k.adminToken(ctx)
	if err != nil {
		k.log.Debugw("mapper attach skipped", "err", err)
		return 0
	}
	attached := 0
	for _, m := range mappers {
		cfg := m.Config
		_, err := k.api.CreateClientProtocolMapper(ctx, token, k.realm, clientUUID, gocloak.ProtocolMapperRepresentation{
			Name:           gocloak.StringP(m.Name),
			Protocol:       gocloak.StringP("openid-connect"),
			ProtocolMapper: gocloak.StringP(m.ProtocolMapper),
			Config:         &cfg,
		})
		if err != nil {
			// usually a conflict from a previous run
			k.log.Debugw("mapper attach failed", "mapper", m.Name, "err", err)
			continue
		}
		attached++
	}
	return attached
}

func (k *Keycloak) LookupUserID(ctx context.Context, email string) (string, error) {
	token, err := k.adminToken(ctx)
	if err != nil {
		return "", err
	}
	u, err := k.findUser(ctx, token, email)
	if err != nil {
		return "", err
	}
	if u == nil {
		return "", fmt.Errorf("%w: %s", ErrUserNotFound, email)
	}
	return *u.ID, nil
}

func (k *Keycloak) ListUsers(ctx context.Context) ([]User, error) {
	token, err := k.adminToken(ctx)
	if err != nil {
		return nil, err
	}
	users, err := k.api.GetUsers(ctx, token, k.realm, gocloak.GetUsersParams{})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]User, 0, len(users))
	for _, u := range users {
		if u == nil {
			continue
		}
		out = append(out, User{
			ID:               gocloak.PString(u.ID),
			Username:         gocloak.PString(u.Username),
			Email:            gocloak.PString(u.Email),
			FirstName:        gocloak.PString(u.FirstName),
			LastName:         gocloak.PString(u.LastName),
			Enabled:          gocloak.PBool(u.Enabled),
			CreatedTimestamp: gocloak.PInt64(u.CreatedTimestamp),
		})
	}
	return out, nil
}

func (k *Keycloak) CreateUser(ctx context.Context, username, email, password string) (string, error) {
	if username == "" || password == "" {
		return "", errors.New("username and password are required")
	}
	token, err := k.adminToken(ctx)
	if err != nil {
		return "", err
	}
	id, err := k.api.CreateUser(ctx, token, k.realm, newUser(username, email, password))
	if err != nil {
		return "", fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

func (k *Keycloak) DeleteUser(ctx context.Context, id string) error {
	token, err := k.adminToken(ctx)
	if err != nil {
		return err
	}
	if err := k.api.DeleteUser(ctx, token, k.realm, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (k *Keycloak) ClientSecret(ctx context.Context, clientID string) (string, error) {
	token, err := k.adminToken(ctx)
	if err != nil {
		return "", err
	}
	c, err := k.findClient(ctx, token, clientID)
	if err != nil {
		return "", err
	}
	if c == nil {
		return "", fmt.Errorf("client %s not found", clientID)
	}
	cred, err := k.api.GetClientSecret(ctx, token, k.realm, *c.ID)
	if err != nil {
		return "", fmt.Errorf("client secret %s: %w", clientID, err)
	}
	return gocloak.PString(cred.Value), nil
}
