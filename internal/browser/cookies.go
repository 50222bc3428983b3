package browser

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/playwright-community/playwright-go"
)

// Cookie is one persisted browser cookie. Optional fields are omitted from
// the JSON file when unset.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain,omitempty"`
	Path     string  `json:"path,omitempty"`
	Expires  float64 `json:"expires,omitempty"`
	SameSite string  `json:"sameSite,omitempty"` // "Strict", "Lax", "None"
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
}

// CookieStore persists a flat list of cookies as a JSON array.
type CookieStore struct {
	path string
	log  *slog.Logger
}

// NewCookieStore creates a store backed by the given file.
func NewCookieStore(path string) *CookieStore {
	return &CookieStore{
		path: path,
		log:  slog.Default().With("component", "cookie-store"),
	}
}

// Load reads the cookie file. A missing file is treated as an empty list and
// the empty list is written back. Malformed JSON also yields an empty list
// but leaves the original file untouched.
func (s *CookieStore) Load() ([]Cookie, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			if serr := s.Save(nil); serr != nil {
				return nil, serr
			}
			return []Cookie{}, nil
		}
		return nil, fmt.Errorf("read cookies: %w", err)
	}

	var cookies []Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		s.log.Warn("cookie file is malformed, starting with an empty set", "path", s.path, "error", err)
		return []Cookie{}, nil
	}
	return cookies, nil
}

// Save writes the cookie list, creating parent directories as needed.
func (s *CookieStore) Save(cookies []Cookie) error {
	if cookies == nil {
		cookies = []Cookie{}
	}
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cookies: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create cookie dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write cookies: %w", err)
	}
	return nil
}

func toPlaywrightCookies(cookies []Cookie) []playwright.OptionalCookie {
	out := make([]playwright.OptionalCookie, 0, len(cookies))
	for _, c := range cookies {
		pc := playwright.OptionalCookie{
			Name:  c.Name,
			Value: c.Value,
		}
		if c.Domain != "" {
			pc.Domain = playwright.String(c.Domain)
		}
		if c.Path != "" {
			pc.Path = playwright.String(c.Path)
		}
		if c.Expires > 0 {
			pc.Expires = playwright.Float(c.Expires)
		}
		if c.HTTPOnly {
			pc.HttpOnly = playwright.Bool(true)
		}
		if c.Secure {
			pc.Secure = playwright.Bool(true)
		}
		switch c.SameSite {
		case "Strict":
			pc.SameSite = playwright.SameSiteAttributeStrict
		case "Lax":
			pc.SameSite = playwright.SameSiteAttributeLax
		case "None":
			pc.SameSite = playwright.SameSiteAttributeNone
		}
		out = append(out, pc)
	}
	return out
}

func fromPlaywrightCookies(pwCookies []playwright.Cookie) []Cookie {
	out := make([]Cookie, 0, len(pwCookies))
	for _, c := range pwCookies {
		sameSite := ""
		if c.SameSite != nil {
			sameSite = string(*c.SameSite)
		}
		out = append(out, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			SameSite: sameSite,
			HTTPOnly: c.HttpOnly,
			Secure:   c.Secure,
		})
	}
	return out
}
