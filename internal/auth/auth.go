package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const (
	cookieName  = "pw_session"
	sessionTTL  = 7 * 24 * time.Hour
	userInfoURL = "https://api.github.com/user"
)

// Identity is the authenticated viewer. Absence of an identity is a valid
// state (anonymous visitor), never an error.
type Identity struct {
	UserID    string `json:"uid"`
	Login     string `json:"login"`
	AvatarURL string `json:"avatar"`
	ExpiresAt int64  `json:"exp"`
}

// Owns reports whether the identity owns the given username.
func (id *Identity) Owns(username string) bool {
	if id == nil {
		return false
	}
	return strings.EqualFold(id.Login, strings.TrimSpace(username))
}

// Service handles the OAuth exchange and stateless signed-cookie sessions.
// The cookie payload is JSON, authenticated with HMAC-SHA256; a tampered or
// expired cookie reads as anonymous.
type Service struct {
	oauth    *oauth2.Config
	secret   []byte
	infoURL  string
	secureCk bool
}

func New(clientID, clientSecret, redirectURL, cookieSecret string) (*Service, error) {
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("oauth client id/secret required")
	}
	if len(cookieSecret) < 16 {
		return nil, fmt.Errorf("cookie secret too short")
	}
	return &Service{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"read:user"},
			Endpoint:     github.Endpoint,
		},
		secret:   []byte(cookieSecret),
		infoURL:  userInfoURL,
		secureCk: strings.HasPrefix(redirectURL, "https://"),
	}, nil
}

// WithUserInfoURL overrides the viewer-identity endpoint. Used in tests.
func (s *Service) WithUserInfoURL(u string) *Service {
	s.infoURL = u
	return s
}

// LoginURL returns the provider authorization URL and the state nonce that
// must round-trip through the callback.
func (s *Service) LoginURL() (url, state string) {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	state = base64.RawURLEncoding.EncodeToString(b)
	return s.oauth.AuthCodeURL(state), state
}

// Exchange trades the authorization code for the viewer's identity.
func (s *Service) Exchange(ctx context.Context, code string) (*Identity, error) {
	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("oauth exchange: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.infoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch viewer: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch viewer: status %d", resp.StatusCode)
	}

	var viewer struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&viewer); err != nil {
		return nil, err
	}
	if viewer.Login == "" {
		return nil, fmt.Errorf("viewer has no login")
	}
	return &Identity{
		UserID:    fmt.Sprintf("%d", viewer.ID),
		Login:     viewer.Login,
		AvatarURL: viewer.AvatarURL,
		ExpiresAt: time.Now().Add(sessionTTL).Unix(),
	}, nil
}

// Issue writes the session cookie for an identity.
func (s *Service) Issue(w http.ResponseWriter, id *Identity) {
	payload, _ := json.Marshal(id)
	value := base64.RawURLEncoding.EncodeToString(payload) + "." + s.sign(payload)
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    value,
		Path:     "/",
		Expires:  time.Unix(id.ExpiresAt, 0),
		HttpOnly: true,
		Secure:   s.secureCk,
		SameSite: http.SameSiteLaxMode,
	})
}

// Current returns the viewer identity, or nil for anonymous (missing,
// malformed, tampered, or expired cookie).
func (s *Service) Current(r *http.Request) *Identity {
	ck, err := r.Cookie(cookieName)
	if err != nil || ck.Value == "" {
		return nil
	}
	dot := strings.LastIndexByte(ck.Value, '.')
	if dot < 0 {
		return nil
	}
	payload, err := base64.RawURLEncoding.DecodeString(ck.Value[:dot])
	if err != nil {
		return nil
	}
	if !hmac.Equal([]byte(s.sign(payload)), []byte(ck.Value[dot+1:])) {
		return nil
	}
	var id Identity
	if err := json.Unmarshal(payload, &id); err != nil {
		return nil
	}
	if id.Login == "" || time.Now().Unix() >= id.ExpiresAt {
		return nil
	}
	return &id
}

// Destroy clears the session cookie.
func (s *Service) Destroy(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCk,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Service) sign(payload []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write(payload)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
