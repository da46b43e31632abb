package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/presencectl/internal/testutil/testlog"
)

func TestTemplateParsesStrictly(t *testing.T) {
	testlog.Start(t)
	f, err := Parse([]byte(Template()))
	if err != nil {
		t.Fatalf("parse template: %v", err)
	}
	if f.Session.Port != 5223 || f.Session.KeepaliveInterval != "150s" || f.Cookies.Backend != "file" {
		t.Fatalf("unexpected template values: %+v", f)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	testlog.Start(t)
	if _, err := Parse([]byte("[session]\nkeepalive = \"1s\"\n")); err == nil {
		t.Fatalf("expected unknown key to be rejected")
	}
}

func TestRenderRoundTrip(t *testing.T) {
	testlog.Start(t)
	in := File{
		Heartbeat: "5s",
		Session:   SessionSection{Port: 5223, TranscriptDir: "./logs"},
		Admin:     AdminSection{Addr: ":9300", CorsOrigins: []string{"http://a"}},
	}
	out, err := Render(in)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "[session]") || !strings.Contains(out, "transcript_dir = './logs'") {
		t.Fatalf("unexpected render:\n%s", out)
	}
	back, err := Parse([]byte(out))
	if err != nil {
		t.Fatalf("parse rendered: %v", err)
	}
	if back.Admin.Addr != ":9300" || back.Heartbeat != "5s" {
		t.Fatalf("unexpected round trip: %+v", back)
	}
}

func TestWriteTemplate(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "presencectl.toml")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := WriteTemplate(path, false); err == nil {
		t.Fatalf("expected existing file to be kept")
	}
	if err := WriteTemplate(path, true); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if err := Check(path); err != nil {
		t.Fatalf("check: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil || info.Mode().Perm() != 0o600 {
		t.Fatalf("unexpected mode: %v err=%v", info.Mode(), err)
	}
}
