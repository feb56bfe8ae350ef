package models

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

const (
	// DownloadHost serves the final patch binaries.
	DownloadHost = "download.microsoft.com"
	// DownloadPathPrefix is the path every binary link starts with.
	DownloadPathPrefix = "/download/"
)

// DownloadLink is a validated link to a patch binary.
type DownloadLink struct {
	Bulletin BulletinID `json:"bulletin"`
	URL      string     `json:"url"`
}

// ParseDownloadLink validates raw as an absolute download host URL. The
// link keeps the href text as written on the page.
func ParseDownloadLink(bulletin BulletinID, raw string) (DownloadLink, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return DownloadLink{}, fmt.Errorf("parse download link: %w", err)
	}
	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return DownloadLink{}, fmt.Errorf("download link %q is not an absolute http url", raw)
	}
	if !strings.EqualFold(u.Host, DownloadHost) || !strings.HasPrefix(u.Path, DownloadPathPrefix) {
		return DownloadLink{}, fmt.Errorf("download link %q is outside %s%s", raw, DownloadHost, DownloadPathPrefix)
	}
	return DownloadLink{Bulletin: bulletin, URL: raw}, nil
}

// FileName returns the last path segment of the link.
func (l DownloadLink) FileName() string {
	u, err := url.Parse(l.URL)
	if err != nil {
		return ""
	}
	return path.Base(u.Path)
}

func (l DownloadLink) String() string {
	return l.URL
}
