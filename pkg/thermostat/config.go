package thermostat

import (
	"context"
	"fmt"

	"github.com/levenlabs/go-lflag"
)

// Configured sets up the thermostat backend from flags. For the honeywell
// provider the initial login runs inside lflag.Do; a failure is logged and
// retried by the next health check.
func Configured() System {
	provider := lflag.String("thermostat-provider", "honeywell", "Thermostat backend (available: honeywell, simulated)")
	username := lflag.String("honeywell-username", "", "Honeywell Total Connect Comfort username (required for honeywell)")
	password := lflag.String("honeywell-password", "", "Honeywell Total Connect Comfort password (required for honeywell)")
	baseURL := lflag.String("honeywell-url", defaultHoneywellURL, "Honeywell Total Connect Comfort portal URL")

	var s struct{ System }

	lflag.Do(func() {
		switch *provider {
		case "honeywell":
			if *username == "" || *password == "" {
				panic("honeywell-username and honeywell-password are required for the honeywell provider")
			}
			h := newHoneywell()
			h.baseURL = *baseURL
			h.username = *username
			h.password = *password
			h.eagerAuthenticate(context.Background())
			s.System = h
		case "simulated":
			s.System = NewSimulated()
		default:
			panic(fmt.Sprintf("unknown thermostat provider: %s", *provider))
		}
	})

	return &s
}
