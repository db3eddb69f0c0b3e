package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrNotFound marks an absent user, repo, or readme. Callers render an empty
// state for it, unlike a transport failure.
var ErrNotFound = errors.New("github: not found")

const (
	defaultBaseURL = "https://api.github.com"
	maxReposShown  = 10
)

type User struct {
	Login       string `json:"login"`
	Name        string `json:"name"`
	AvatarURL   string `json:"avatar_url"`
	Bio         string `json:"bio"`
	Followers   int    `json:"followers"`
	Following   int    `json:"following"`
	PublicRepos int    `json:"public_repos"`
}

type Repo struct {
	Name        string `json:"name"`
	FullName    string `json:"full_name"`
	Description string `json:"description"`
	HTMLURL     string `json:"html_url"`
	Language    string `json:"language"`
	Stars       int    `json:"stargazers_count"`
	Forks       int    `json:"forks_count"`
}

// Profile is a user plus their most-starred public repos.
type Profile struct {
	User       User   `json:"user"`
	Repos      []Repo `json:"repos"`
	TotalStars int    `json:"totalStars"`
}

type cacheEntry struct {
	profile Profile
	expires time.Time
}

// Client fetches public profile metadata, caching profiles for a short TTL to
// stay inside unauthenticated rate limits. The token is optional.
type Client struct {
	baseURL    string
	token      string
	ttl        time.Duration
	httpClient *http.Client

	mu    sync.Mutex
	cache map[string]cacheEntry
}

func New(token string, ttl time.Duration) *Client {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Client{
		baseURL:    defaultBaseURL,
		token:      token,
		ttl:        ttl,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		cache:      map[string]cacheEntry{},
	}
}

// WithBaseURL points the client at a different API host. Used in tests.
func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = strings.TrimRight(u, "/")
	return c
}

// GetProfile returns a user's profile with their top repos by star count and
// the star total across all listed repos.
func (c *Client) GetProfile(ctx context.Context, handle string) (Profile, error) {
	handle = strings.ToLower(strings.TrimSpace(handle))
	if handle == "" {
		return Profile{}, ErrNotFound
	}

	c.mu.Lock()
	if e, ok := c.cache[handle]; ok && time.Now().Before(e.expires) {
		c.mu.Unlock()
		return e.profile, nil
	}
	c.mu.Unlock()

	var user User
	if err := c.getJSON(ctx, "/users/"+url.PathEscape(handle), &user); err != nil {
		return Profile{}, err
	}

	var repos []Repo
	if err := c.getJSON(ctx, "/users/"+url.PathEscape(handle)+"/repos?per_page=100&type=owner", &repos); err != nil {
		return Profile{}, err
	}
	sort.SliceStable(repos, func(i, j int) bool { return repos[i].Stars > repos[j].Stars })

	total := 0
	for _, r := range repos {
		total += r.Stars
	}
	if len(repos) > maxReposShown {
		repos = repos[:maxReposShown]
	}

	p := Profile{User: user, Repos: repos, TotalStars: total}
	c.mu.Lock()
	c.cache[handle] = cacheEntry{profile: p, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return p, nil
}

// GetReadme returns a repo's readme as raw markdown, or ErrNotFound when the
// repo has none.
func (c *Client) GetReadme(ctx context.Context, owner, repo string) (string, error) {
	if owner == "" || repo == "" {
		return "", ErrNotFound
	}
	u := c.baseURL + "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(repo) + "/readme"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.github.raw+json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("github readme: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("github readme: status %d", resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("github: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("github: status %d for %s", resp.StatusCode, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// FormatStars renders a star count compactly: 950 -> "950", 1234 -> "1.2k".
func FormatStars(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return strings.TrimSuffix(fmt.Sprintf("%.1f", float64(n)/1000), ".0") + "k"
}
