package cookies

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/danmuck/presencectl/internal/testutil/testlog"
	"github.com/redis/go-redis/v9"
)

func sampleJar() *Jar {
	return NewJar(
		Cookie{Name: "ssid", Value: "abc", Domain: "auth.riotgames.com", Path: "/", Secure: true},
		Cookie{Name: "clid", Value: "uw1"},
	)
}

func TestFileStoreRoundTrip(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "cookies.txt")
	if err := os.WriteFile(path, []byte("ssid=abc\nclid=uw1"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	store := NewFileStore(path)

	jar, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if jar.Len() != 2 {
		t.Fatalf("unexpected cookie count: %d", jar.Len())
	}
	jar.Merge([]Cookie{{Name: "ssid", Value: "rotated", Domain: "auth.riotgames.com"}})
	if err := store.Save(context.Background(), jar); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "ssid=rotated; clid=uw1" {
		t.Fatalf("unexpected file contents: %q", data)
	}
}

func TestFileStoreMissingFile(t *testing.T) {
	testlog.Start(t)
	store := NewFileStore(filepath.Join(t.TempDir(), "missing.txt"))
	_, err := store.Load(context.Background())
	if !errors.Is(err, ErrCookieLoad) {
		t.Fatalf("expected ErrCookieLoad, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected wrapped not-exist, got %v", err)
	}
}

func TestBoltStoreRoundTrip(t *testing.T) {
	testlog.Start(t)
	store, err := OpenBoltStore(filepath.Join(t.TempDir(), "cookies.db"), "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	if _, err := store.Load(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before save, got %v", err)
	}
	want := sampleJar()
	if err := store.Save(context.Background(), want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got.Cookies(), want.Cookies()) {
		t.Fatalf("unexpected cookies: %+v", got.Cookies())
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	testlog.Start(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, "")
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := store.Load(ctx); !errors.Is(err, ErrNotFound) || !errors.Is(err, ErrCookieLoad) {
		t.Fatalf("expected ErrCookieLoad/ErrNotFound, got %v", err)
	}
	want := sampleJar()
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !mr.Exists(DefaultRedisKey) {
		t.Fatalf("expected key %q", DefaultRedisKey)
	}
	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got.Cookies(), want.Cookies()) {
		t.Fatalf("unexpected cookies: %+v", got.Cookies())
	}
}
