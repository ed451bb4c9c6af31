package config

// OAuthConfig describes the external identity provider used for
// "sign in with Google" style logins. Endpoints default to Google's.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	Scopes       []string
}

func LoadOAuthConfig() OAuthConfig {
	return OAuthConfig{
		ClientID:     envStr("OAUTH_CLIENT_ID", ""),
		ClientSecret: envStr("OAUTH_CLIENT_SECRET", ""),
		RedirectURL:  envStr("OAUTH_REDIRECT_URL", ""),
		AuthURL:      envStr("OAUTH_AUTH_URL", "https://accounts.google.com/o/oauth2/auth"),
		TokenURL:     envStr("OAUTH_TOKEN_URL", "https://oauth2.googleapis.com/token"),
		UserInfoURL:  envStr("OAUTH_USERINFO_URL", "https://openidconnect.googleapis.com/v1/userinfo"),
		Scopes:       envList("OAUTH_SCOPES", "openid,email,profile"),
	}
}

func (o OAuthConfig) Enabled() bool { return o.ClientID != "" && o.ClientSecret != "" }
