// pkg/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	HTTPAddr string // manager-service
	Domain   string // public base domain (chat.<domain>, git.<domain>, ...)

	// Identity provider (internal network URL, never the public one)
	KeycloakURL           string
	KeycloakAdmin         string
	KeycloakAdminPassword string
	RealmName             string
	DashboardClientID     string

	// Redis & Postgres
	RedisURL    string
	DatabaseURL string

	// Installation
	CatalogFile          string
	InstallLockFile      string
	ReadyInterval        time.Duration
	ReadyMaxAttempts     int
	FileReadyMaxAttempts int
	StrictAdminSession   bool
	ForgejoAdminPassword string
	ForgejoSettleDelay   time.Duration

	// Dashboard
	CORSOrigins []string
	ClientDir   string // built frontend served at /, empty disables it
	LogTail     int
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:                   env("STACK_ENV", "dev"),
		HTTPAddr:              env("MANAGER_HTTP_ADDR", ":3000"),
		Domain:                env("DOMAIN", "lvh.me"),
		KeycloakURL:           strings.TrimRight(env("KEYCLOAK_URL", "http://keycloak:8080"), "/"),
		KeycloakAdmin:         env("KEYCLOAK_ADMIN", "admin"),
		KeycloakAdminPassword: env("KEYCLOAK_ADMIN_PASSWORD", ""),
		RealmName:             env("REALM_NAME", "startup-stack"),
		DashboardClientID:     env("DASHBOARD_CLIENT_ID", "manager-client"),
		RedisURL:              env("REDIS_URL", ""),
		DatabaseURL:           env("DATABASE_URL", ""),
		CatalogFile:           env("CATALOG_FILE", ""),
		InstallLockFile:       env("INSTALL_LOCK_FILE", "./installed.lock"),
		ReadyInterval:         envDur("READY_INTERVAL_MS", 2000) * time.Millisecond,
		ReadyMaxAttempts:      envInt("READY_MAX_ATTEMPTS", 60),
		FileReadyMaxAttempts:  envInt("FILE_READY_MAX_ATTEMPTS", 30),
		StrictAdminSession:    envBool("STRICT_ADMIN_SESSION", false),
		ForgejoSettleDelay:    envDur("FORGEJO_SETTLE_MS", 5000) * time.Millisecond,
		CORSOrigins:           envList("ADMIN_CORS_ORIGINS", []string{"http://localhost:5173"}),
		ClientDir:             env("CLIENT_DIST_DIR", ""),
		LogTail:               envInt("LOG_TAIL_LINES", 100),
	}
	cfg.ForgejoAdminPassword = env("FORGEJO_ADMIN_PASSWORD", cfg.KeycloakAdminPassword)
	if cfg.DatabaseURL == "" {
		log.Println("[WARN] DATABASE_URL not set, using in-memory service registry for dev")
	}
	return cfg
}

// RealmURL is the internal base URL of the managed realm.
func (c Config) RealmURL() string {
	return c.KeycloakURL + "/realms/" + c.RealmName
}

// PublicRealmURL is the realm as browsers reach it through the proxy.
func (c Config) PublicRealmURL() string {
	return "http://auth." + c.Domain + "/realms/" + c.RealmName
}

func (c Config) JWKSURL() string {
	return c.RealmURL() + "/protocol/openid-connect/certs"
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func envBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		b, _ := strconv.ParseBool(v)
		return b
	}
	return def
}
func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return i
		}
	}
	return def
}
func envDur(k string, def int) time.Duration {
	if v := os.Getenv(k); v != "" {
		i, _ := strconv.Atoi(v)
		return time.Duration(i)
	}
	return time.Duration(def)
}
func envList(k string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	out := []string{}
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
