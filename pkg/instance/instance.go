package instance

import (
	"os"

	"github.com/angelmondragon/payvault-backend/pkg/env"
)

// GetID identifies the running replica in logs: the platform dyno name, an
// explicit PAYVAULT_INSTANCE_ID, the hostname, or "local".
func GetID() string {
	if id := env.First("DYNO", "PAYVAULT_INSTANCE_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
