package models

// Token type is always "bearer"
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type AuthMethod string

const (
	AuthMethodEmail         AuthMethod = "email"
	AuthMethodEmailPassword AuthMethod = "email_password"
	AuthMethodCode          AuthMethod = "code"
	AuthMethodOAuth         AuthMethod = "oauth"
)

type AuthMethods struct {
	Methods        []AuthMethod `json:"methods"`
	OAuthProviders []string     `json:"oauth_providers,omitempty"`
}

// Has reports whether the method is enabled on the server
func (m AuthMethods) Has(method AuthMethod) bool {
	for _, v := range m.Methods {
		if v == method {
			return true
		}
	}
	return false
}

// Used both for login and register
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type CodeRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type CodeRequestResponse struct {
	Message string `json:"message"`

	// Set by server in debug mode only
	DebugCode string `json:"debug_code,omitempty"`
	IsNewUser *bool  `json:"is_new_user,omitempty"`
}

type CodeVerify struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required"`
}

type OAuthAuthorize struct {
	AuthorizeURL string `json:"authorize_url"`
}

type OAuthCallback struct {
	Code  string `json:"code" validate:"required"`
	State string `json:"state" validate:"required"`
}

type Message struct {
	Message string `json:"message"`
}
