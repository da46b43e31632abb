package cookies

import (
	"context"
	"errors"
)

var (
	ErrCookieLoad = errors.New("cookies: load failed")
	ErrCookieSave = errors.New("cookies: save failed")
	ErrNotFound   = errors.New("cookies: no stored jar")
)

// Store loads and persists the reauthentication jar.
type Store interface {
	Load(ctx context.Context) (*Jar, error)
	Save(ctx context.Context, jar *Jar) error
}

const recordVersion = 1

// record is the JSON shape used by the structured stores.
type record struct {
	Version int      `json:"version"`
	Cookies []Cookie `json:"cookies"`
}
