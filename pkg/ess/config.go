package ess

import (
	"fmt"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/peakguard/peakguard/pkg/common"
)

// Configured sets up the energy site backend from flags. For the powerwall
// provider the credential file is read inside lflag.Do and a missing or
// malformed file panics.
func Configured() System {
	provider := lflag.String("ess-provider", "powerwall", "Energy site backend (available: powerwall, simulated)")
	tokenFile := lflag.String("tesla-token-file", "tesla_token.json", "Path to the Tesla OAuth token JSON file")
	siteID := lflag.String("tesla-energy-site-id", "", "Tesla energy site ID (required for powerwall)")
	clientID := lflag.String("tesla-client-id", "ownerapi", "Tesla OAuth client ID used to refresh the token")
	apiURL := lflag.String("tesla-api-url", defaultPowerwallURL, "Tesla owner API base URL")
	tokenURL := lflag.String("tesla-token-url", defaultPowerwallTokenURL, "Tesla OAuth token endpoint")

	var s struct{ System }

	lflag.Do(func() {
		switch *provider {
		case "powerwall":
			if *siteID == "" {
				panic("tesla-energy-site-id is required for the powerwall provider")
			}
			p := newPowerwall()
			p.baseURL = *apiURL
			p.siteID = *siteID
			p.tokenFile = *tokenFile
			p.oauth.ClientID = *clientID
			p.oauth.Endpoint.TokenURL = *tokenURL
			if err := p.loadCredential(); err != nil {
				panic(fmt.Sprintf("tesla credential: %v", err))
			}
			s.System = p
		case "simulated":
			s.System = NewSimulated(time.Local)
		default:
			panic(fmt.Sprintf("unknown ess provider: %s", *provider))
		}
	})

	return &s
}

func newPowerwall() *Powerwall {
	return &Powerwall{
		client:        common.HTTPClient(time.Minute),
		refreshClient: common.HTTPClient(30 * time.Second),
		baseURL:       defaultPowerwallURL,
		oauth:         newOAuthConfig("", defaultPowerwallTokenURL),
		retry:         common.DefaultRetryConfig(),
	}
}
