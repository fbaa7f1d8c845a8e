package llm

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const completionsSuffix = "/chat/completions"

var versionSegment = regexp.MustCompile(`/v\d+$`)

// NormalizeEndpoint turns a user-configured base URL into the full chat
// completions URL. Users paste anything from a bare host to the complete
// path, so:
//
//	https://api.example.com            → https://api.example.com/v1/chat/completions
//	https://api.example.com/v1        → https://api.example.com/v1/chat/completions
//	https://api.example.com/v1/chat/completions → unchanged
func NormalizeEndpoint(baseURL string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return "", &Error{Kind: KindConfig, Msg: "base URL is not configured"}
	}
	if _, err := url.Parse(base); err != nil {
		return "", &Error{Kind: KindConfig, Msg: fmt.Sprintf("invalid base URL %q", baseURL), Cause: err}
	}

	switch {
	case strings.Contains(base, completionsSuffix):
		return base, nil
	case versionSegment.MatchString(base):
		return base + completionsSuffix, nil
	default:
		return base + "/v1" + completionsSuffix, nil
	}
}

// sdkBaseURL strips the completions suffix so the OpenAI SDK, which appends
// "chat/completions" itself, ends up at the normalized URL.
func sdkBaseURL(completionsURL string) string {
	return strings.TrimSuffix(completionsURL, "chat/completions")
}

// endpointHost extracts the host for error reporting.
func endpointHost(completionsURL string) string {
	u, err := url.Parse(completionsURL)
	if err != nil || u.Host == "" {
		return completionsURL
	}
	return u.Host
}
