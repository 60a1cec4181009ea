package util

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// IDFromURL returns the last path segment of a URL shaped identifier, e.g.
// "https://openalex.org/C2778407487" → "C2778407487".
func IDFromURL(u string) string {
	u = strings.TrimRight(u, "/")
	if i := strings.LastIndexByte(u, '/'); i >= 0 {
		return u[i+1:]
	}
	return u
}

// IDFromURLIfSet is IDFromURL that keeps absent values absent.
func IDFromURLIfSet(u string) string {
	if u == "" {
		return ""
	}
	return IDFromURL(u)
}

// WikipediaIDFromURL returns the article name of a Wikipedia URL. The feed
// encodes spaces as a literal "%20" which is turned into "_"; no other
// percent-decoding is done.
func WikipediaIDFromURL(u string) string {
	if u == "" {
		return ""
	}
	return strings.ReplaceAll(IDFromURL(u), "%20", "_")
}

// ParseNumericID parses a base-10 legacy identifier. Empty input yields nil.
func ParseNumericID(s string) (*int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid numeric id %q: %w", s, err)
	}
	return &n, nil
}

// ScopusAuthorID extracts the authorID query parameter of a Scopus author URL,
// e.g. "http://www.scopus.com/inward/authorDetails.url?authorID=36455008000&partnerID=MN8TOARS".
func ScopusAuthorID(u string) (string, error) {
	if u == "" {
		return "", nil
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return "", fmt.Errorf("invalid scopus url %q: %w", u, err)
	}
	return parsed.Query().Get("authorID"), nil
}

// TruncateDate cuts a date-time down to its calendar date.
func TruncateDate(s string) string {
	if len(s) > 10 {
		return s[:10]
	}
	return s
}

// DOIFromURL strips the resolver prefix of a DOI URL, e.g.
// "https://doi.org/10.7717/peerj.4375" → "10.7717/peerj.4375". DOIs contain
// slashes, so IDFromURL cannot be used for them.
func DOIFromURL(u string) string {
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "http://dx.doi.org/"} {
		if rest, ok := strings.CutPrefix(u, prefix); ok {
			return rest
		}
	}
	return u
}
