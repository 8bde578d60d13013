package loader

import (
	"net/url"
	"strings"
)

// Default local workbook names, tried in order inside the data directory.
const (
	DefaultPrimaryFile  = "RETAIL.dataMart V2.xlsx"
	DefaultFallbackFile = "retail_data.xlsx"
)

// Source describes where the workbook comes from. URL wins when set; an empty
// Path means "look for the default files in the data directory".
type Source struct {
	Path string `json:"path,omitempty"`
	URL  string `json:"url,omitempty"`
}

// IsRemote reports whether the workbook is fetched over HTTP.
func (s Source) IsRemote() bool {
	return strings.TrimSpace(s.URL) != ""
}

// String describes the source for logs and export metadata.
func (s Source) String() string {
	switch {
	case s.IsRemote():
		return redactURL(s.URL)
	case s.Path != "":
		return s.Path
	default:
		return "default local workbook"
	}
}

// NormalizeShareURL turns a share-page link into a direct download link: a
// link carrying an "e" parameter and no "download" parameter gets download=1.
func NormalizeShareURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return raw
	}
	q := u.Query()
	if !q.Has("e") || q.Has("download") {
		return raw
	}
	u.RawQuery = "download=1&" + u.RawQuery
	return u.String()
}

// redactURL drops the query string, which for share links carries the access token.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "remote workbook"
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}
