package services

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// CatalogEntry describes one service of the stack: how it is listed in the
// directory and how it is reached on the internal network.
type CatalogEntry struct {
	Name        string `yaml:"name"`
	Slug        string `yaml:"slug"`
	Subdomain   string `yaml:"subdomain"` // public URL is http://<subdomain>.<domain>
	Icon        string `yaml:"icon"`
	Description string `yaml:"description"`
	LoginPath   string `yaml:"login_path,omitempty"`
	InternalURL string `yaml:"internal_url,omitempty"` // health probe target
}

type Catalog struct {
	Services []CatalogEntry `yaml:"services"`
	// Containers whose logs may be read through the API.
	LogAllowList []string `yaml:"log_allow_list"`
}

func DefaultCatalog() Catalog {
	return Catalog{
		Services: []CatalogEntry{
			{Name: "Identity", Slug: "keycloak", Subdomain: "auth", Icon: "Shield", Description: "User Management", InternalURL: "http://keycloak:8080"},
			{Name: "Chat", Slug: "mattermost", Subdomain: "chat", Icon: "MessageSquare", Description: "Team Communication", InternalURL: "http://mattermost:8065"},
			{Name: "Git", Slug: "forgejo", Subdomain: "git", Icon: "GitGraph", Description: "Code Hosting", LoginPath: "/user/oauth2/keycloak", InternalURL: "http://forgejo:3000"},
		},
		LogAllowList: []string{"keycloak", "manager", "postgres", "mattermost", "forgejo", "traefik"},
	}
}

// LoadCatalog reads a YAML catalog; an empty path yields the default catalog.
func LoadCatalog(path string) (Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, err
	}
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Catalog{}, fmt.Errorf("yaml parse: %w", err)
	}
	seen := map[string]bool{}
	for _, s := range c.Services {
		if s.Slug == "" {
			return Catalog{}, fmt.Errorf("catalog %s: %w", path, ErrInvalidSlug)
		}
		if seen[s.Slug] {
			return Catalog{}, fmt.Errorf("catalog %s: duplicate slug %q", path, s.Slug)
		}
		seen[s.Slug] = true
	}
	if len(c.LogAllowList) == 0 {
		c.LogAllowList = DefaultCatalog().LogAllowList
	}
	return c, nil
}

// Descriptors renders the directory rows for the given public domain.
func (c Catalog) Descriptors(domain string) []Descriptor {
	out := make([]Descriptor, 0, len(c.Services))
	for _, s := range c.Services {
		d := Descriptor{
			Name:        s.Name,
			Slug:        s.Slug,
			URL:         fmt.Sprintf("http://%s.%s", s.Subdomain, domain),
			Icon:        s.Icon,
			Description: s.Description,
		}
		if s.LoginPath != "" {
			lp := s.LoginPath
			d.LoginPath = &lp
		}
		out = append(out, d)
	}
	return out
}

// InternalURLs maps slug to internal health endpoint.
func (c Catalog) InternalURLs() map[string]string {
	m := map[string]string{}
	for _, s := range c.Services {
		if s.InternalURL != "" {
			m[s.Slug] = s.InternalURL
		}
	}
	return m
}

func (c Catalog) LogsAllowed(container string) bool {
	for _, n := range c.LogAllowList {
		if n == container {
			return true
		}
	}
	return false
}
