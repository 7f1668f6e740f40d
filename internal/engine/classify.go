package engine

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/albadl/albadl/internal/app"
)

// Classify decides which pipeline serves a URL. Anything hosted on YouTube
// goes through extraction; every other http(s) URL is fetched directly.
func Classify(rawURL string) (app.Source, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("the given URL is not valid: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host == "youtu.be" || host == "youtube.com" || strings.HasSuffix(host, ".youtube.com") {
		return app.SourceYouTube, nil
	}
	return app.SourceDirect, nil
}
