package apps

import "stackmgr/internal/identity"

// gitLabMappers shape Keycloak tokens like GitLab's user API, which is what
// Mattermost's GitLab SSO expects.
var gitLabMappers = []identity.Mapper{
	{
		Name:           "gitlab-id",
		ProtocolMapper: "oidc-usersessionmodel-note-mapper",
		Config: map[string]string{
			"user.session.note": "userModel.id",
			"claim.name":        "id",
			"jsonType.label":    "String",
			"id.token.claim":    "true",
		},
	},
	{
		Name:           "gitlab-username",
		ProtocolMapper: "oidc-usermodel-property-mapper",
		Config: map[string]string{
			"user.attribute": "username",
			"claim.name":     "username",
			"jsonType.label": "String",
		},
	},
	{
		Name:           "gitlab-email",
		ProtocolMapper: "oidc-usermodel-property-mapper",
		Config: map[string]string{
			"user.attribute": "email",
			"claim.name":     "email",
			"jsonType.label": "String",
		},
	},
	{
		Name:           "gitlab-name",
		ProtocolMapper: "oidc-full-name-mapper",
		Config: map[string]string{
			"claim.name":     "name",
			"id.token.claim": "true",
		},
	},
}

func allTokens(cfg map[string]string) map[string]string {
	cfg["id.token.claim"] = "true"
	cfg["access.token.claim"] = "true"
	cfg["userinfo.token.claim"] = "true"
	return cfg
}

var forgejoMappers = []identity.Mapper{
	{
		Name:           "username",
		ProtocolMapper: "oidc-usermodel-property-mapper",
		Config: allTokens(map[string]string{
			"user.attribute": "id",
			"claim.name":     "preferred_username",
			"jsonType.label": "String",
		}),
	},
	{
		Name:           "email",
		ProtocolMapper: "oidc-usermodel-property-mapper",
		Config: allTokens(map[string]string{
			"user.attribute": "email",
			"claim.name":     "email",
			"jsonType.label": "String",
		}),
	},
	{
		Name:           "full name",
		ProtocolMapper: "oidc-full-name-mapper",
		Config:         allTokens(map[string]string{"claim.name": "name"}),
	},
}
