package config

import (
	"fmt"
	"os"
)

func Template() string {
	return linkTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(linkTemplate), 0o600)
}

const linkTemplate = `[channel]
name = "link"
exchange_timeout = "5s"

[transport]
address = "127.0.0.1:9400"
listen = ":9400"
connect_timeout = "5s"
write_timeout = "15s"
sweep_interval = "50ms"
chunk_size = 512
read_buffer = 4096
max_inbound = 16777216

[transport.backoff]
initial = "250ms"
multiplier = 2.0
max = "5s"
jitter = true

[frame]
max_auth_bytes = 65536
max_payload_bytes = 8388608

[metrics]
enabled = false
addr = "127.0.0.1:9401"

[ping]
count = 3
async = 0
payload = "ping"
`
