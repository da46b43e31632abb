package cookies

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Cookie is one jar entry with the attributes Set-Cookie can carry.
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain,omitempty"`
	Path     string    `json:"path,omitempty"`
	Expires  time.Time `json:"expires,omitempty"`
	MaxAge   int       `json:"max_age,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"http_only,omitempty"`
}

// Expired reports whether the cookie should no longer be sent at now.
func (c Cookie) Expired(now time.Time) bool {
	if c.MaxAge < 0 {
		return true
	}
	return !c.Expires.IsZero() && !now.Before(c.Expires)
}

type key struct {
	name   string
	domain string
}

func keyOf(c Cookie) key {
	return key{name: c.Name, domain: normalizeDomain(c.Domain)}
}

func normalizeDomain(domain string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), ".")
}

// Jar is an ordered cookie set keyed by (name, domain).
type Jar struct {
	mu      sync.RWMutex
	cookies []Cookie
}

func NewJar(cookies ...Cookie) *Jar {
	j := &Jar{}
	j.Merge(cookies)
	return j
}

func (j *Jar) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.cookies)
}

// Cookies returns a copy of the jar contents in insertion order.
func (j *Jar) Cookies() []Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]Cookie, len(j.cookies))
	copy(out, j.cookies)
	return out
}

func (j *Jar) Get(name, domain string) (Cookie, bool) {
	want := key{name: name, domain: normalizeDomain(domain)}
	j.mu.RLock()
	defer j.mu.RUnlock()
	for _, c := range j.cookies {
		if keyOf(c) == want {
			return c, true
		}
	}
	return Cookie{}, false
}

// Merge folds incoming cookies into the jar and returns how many entries
// were added or replaced. Merging the same batch twice leaves the jar
// unchanged after the first merge.
func (j *Jar) Merge(incoming []Cookie) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	changed := 0
	for _, c := range incoming {
		if strings.TrimSpace(c.Name) == "" {
			continue
		}
		idx := j.indexLocked(c)
		switch {
		case idx < 0:
			j.cookies = append(j.cookies, c)
			changed++
		case j.cookies[idx] != c:
			j.cookies[idx] = c
			changed++
		}
	}
	return changed
}

func (j *Jar) indexLocked(c Cookie) int {
	k := keyOf(c)
	unscoped := -1
	for i, existing := range j.cookies {
		ek := keyOf(existing)
		if ek == k {
			return i
		}
		if unscoped < 0 && k.domain != "" && ek.domain == "" && ek.name == k.name {
			unscoped = i
		}
	}
	return unscoped
}

// Header renders the Cookie request header value, skipping expired entries.
func (j *Jar) Header(now time.Time) string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	parts := make([]string, 0, len(j.cookies))
	for _, c := range j.cookies {
		if c.Expired(now) {
			continue
		}
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// ParseCookieString parses a semicolon- or newline-delimited list of
// name=value pairs. Blank and malformed segments are skipped.
func ParseCookieString(raw string) []Cookie {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ';' || r == '\n' || r == '\r'
	})
	out := make([]Cookie, 0, len(fields))
	for _, field := range fields {
		name, value, ok := strings.Cut(strings.TrimSpace(field), "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			continue
		}
		out = append(out, Cookie{Name: name, Value: strings.TrimSpace(value)})
	}
	return out
}

// ParseSetCookie parses Set-Cookie header lines. now anchors Max-Age.
// Malformed lines are skipped; the cookies parsed from the remaining lines
// are returned alongside an error naming every skipped line.
func ParseSetCookie(lines []string, now time.Time) ([]Cookie, error) {
	out := make([]Cookie, 0, len(lines))
	var errs []error
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		hc, err := http.ParseSetCookie(line)
		if err != nil {
			errs = append(errs, fmt.Errorf("cookies: parse set-cookie line %d: %w", i, err))
			continue
		}
		c := Cookie{
			Name:     hc.Name,
			Value:    hc.Value,
			Domain:   hc.Domain,
			Path:     hc.Path,
			Expires:  hc.Expires,
			MaxAge:   hc.MaxAge,
			Secure:   hc.Secure,
			HttpOnly: hc.HttpOnly,
		}
		if hc.MaxAge > 0 {
			c.Expires = now.Add(time.Duration(hc.MaxAge) * time.Second)
		}
		out = append(out, c)
	}
	return out, errors.Join(errs...)
}
