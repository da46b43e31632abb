package config

import (
	"fmt"
	"os"
)

func Template() string {
	return presencectlTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(presencectlTemplate), 0o600)
}

const presencectlTemplate = `heartbeat_interval = "30s"

[log]
level = "info"
file = ""
no_color = false

[cookies]
# file | bolt | redis
backend = "file"
file = "./cookies.txt"
bolt_path = "./presencectl.db"
bolt_bucket = "cookies"
redis_url = "redis://localhost:6379/0"
redis_key = "presencectl:cookies"

[credential]
user_agent = ""
max_attempts = 10
safety_margin = "60s"
request_timeout = "30s"

[region]
config_ttl = "1h"

[session]
port = 5223
transcript_dir = "./xmpp-logs"
handshake_timeout = "30s"
keepalive_interval = "150s"
reconnect_delay = "5s"
max_attempts = 0

[admin]
# disabled when empty
addr = ""
token = ""
cors_origins = ["http://localhost:3000"]
`
