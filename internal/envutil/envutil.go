package envutil

import (
	"os"
	"strings"
)

// IsDev reports whether PKCE_FRONT_ENV selects development mode,
// where cookie and state checks are relaxed for local testing
func IsDev() bool {
	env := strings.ToLower(os.Getenv("PKCE_FRONT_ENV"))
	return env == "development" || env == "dev"
}
