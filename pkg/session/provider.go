package session

import "fmt"

// ProviderTag names the method an identity signed in with. It is decided
// once, where the identity is issued, and carried as a field afterwards.
type ProviderTag string

const (
	ProviderPassword ProviderTag = "password"
	ProviderGoogle   ProviderTag = "google"
	ProviderFacebook ProviderTag = "facebook"
	ProviderTwitter  ProviderTag = "twitter"
	ProviderGitHub   ProviderTag = "github"
)

var subjectPrefixes = map[ProviderTag]string{
	ProviderPassword: "auth0",
	ProviderGoogle:   "google-oauth2",
	ProviderFacebook: "facebook",
	ProviderTwitter:  "twitter",
	ProviderGitHub:   "github",
}

// ParseProvider validates a provider name received over the wire.
func ParseProvider(name string) (ProviderTag, error) {
	tag := ProviderTag(name)
	if _, ok := subjectPrefixes[tag]; !ok {
		return "", fmt.Errorf("unknown provider %q", name)
	}
	return tag, nil
}

// Social reports whether the provider is an OAuth provider rather than
// email and password.
func (p ProviderTag) Social() bool {
	return p != ProviderPassword
}

func (p ProviderTag) String() string {
	return string(p)
}

// SubjectID mints the stable subject id for an account of the given
// provider, e.g. "google-oauth2|1234".
func SubjectID(p ProviderTag, providerID string) (string, error) {
	prefix, ok := subjectPrefixes[p]
	if !ok {
		return "", fmt.Errorf("unknown provider %q", p)
	}
	if providerID == "" {
		return "", fmt.Errorf("empty provider id")
	}
	return prefix + "|" + providerID, nil
}
