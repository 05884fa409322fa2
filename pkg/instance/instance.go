package instance

import (
	"os"

	"github.com/angelmondragon/shopdw/pkg/env"
)

const EnvInstanceID = "SHOPDW_INSTANCE_ID"

// GetID identifies this loader process in logs: SHOPDW_INSTANCE_ID, then the
// hostname, then "local".
func GetID() string {
	if id, ok := env.Lookup(EnvInstanceID); ok {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
