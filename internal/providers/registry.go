package providers

// Default upstream endpoints for the always-on providers.
const (
	DefaultClawHubBaseURL  = "https://clawhub.ai"
	DefaultMoltbookBaseURL = "https://www.moltbook.com"
	DefaultERC8004RPCURL   = "https://ethereum-rpc.publicnode.com"
	DefaultERC8004Registry = "0x8004c0ffee8004c0ffee8004c0ffee8004c0ffee"
)

// Credentials carries the ambient secrets and endpoint overrides used to
// build the default provider set. Empty fields fall back to defaults or
// disable the optional providers.
type Credentials struct {
	GitHubToken        string
	GitHubBaseURL      string
	TwitterBearerToken string
	TwitterBaseURL     string
	ClawHubBaseURL     string
	ClawHubAPIKey      string
	MoltbookBaseURL    string
	MoltbookAPIKey     string
	ERC8004RPCURL      string
	ERC8004Registry    string
}

// DefaultSet builds the standard provider list. GitHub, ERC-8004 and
// ClawHub are always registered; Twitter and Moltbook join only when
// credentials are present (both are graceful no-ops without them, but
// registering them would add dead dispatch pairs to every query).
func DefaultSet(creds Credentials) []Provider {
	clawhubURL := creds.ClawHubBaseURL
	if clawhubURL == "" {
		clawhubURL = DefaultClawHubBaseURL
	}
	rpcURL := creds.ERC8004RPCURL
	if rpcURL == "" {
		rpcURL = DefaultERC8004RPCURL
	}
	registry := creds.ERC8004Registry
	if registry == "" {
		registry = DefaultERC8004Registry
	}

	set := []Provider{
		NewGitHub(creds.GitHubToken, creds.GitHubBaseURL),
		NewERC8004(rpcURL, registry),
		NewClawHub(clawhubURL, creds.ClawHubAPIKey),
	}

	if creds.TwitterBearerToken != "" {
		set = append(set, NewTwitter(creds.TwitterBearerToken, creds.TwitterBaseURL))
	}
	if creds.MoltbookAPIKey != "" {
		moltbookURL := creds.MoltbookBaseURL
		if moltbookURL == "" {
			moltbookURL = DefaultMoltbookBaseURL
		}
		set = append(set, NewMoltbook(moltbookURL, creds.MoltbookAPIKey))
	}
	return set
}
