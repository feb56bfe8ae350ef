package models

import (
	"net/http"
	"net/url"
	"strings"
)

// HostTarget pins requests for a virtual host to a fixed network address.
// An empty Address resolves VHost through DNS.
type HostTarget struct {
	Address string `yaml:"address"`
	VHost   string `yaml:"vhost"`
}

// FetchRequest describes a single logical request against a HostTarget.
// Path is a request URI and may already carry a query string.
type FetchRequest struct {
	Target HostTarget
	Method string
	Path   string
	Query  url.Values
}

// URL renders the absolute https URL of the request.
func (r FetchRequest) URL() string {
	path := r.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := "https://" + r.Target.VHost + path
	if len(r.Query) == 0 {
		return u
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return u + sep + r.Query.Encode()
}

// FetchResult is the raw response of a fetch. Header lookups are case-insensitive.
type FetchResult struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Location returns the redirect target, if any.
func (r *FetchResult) Location() string {
	if r == nil || r.Headers == nil {
		return ""
	}
	return r.Headers.Get("Location")
}
