package qrlink

import (
	"net/http"
	"net/url"
	"strings"
)

// Builder renders the URLs encoded into QR codes: the participant join
// page for an activity and the mobile confirmation page for a login
// session. A configured base URL wins; otherwise the public origin is
// reconstructed from the incoming request.
type Builder struct {
	base string
}

func NewBuilder(baseURL string) *Builder {
	return &Builder{base: strings.TrimRight(baseURL, "/")}
}

func (b *Builder) JoinURL(r *http.Request, code string) string {
	return b.origin(r) + "/a/" + url.PathEscape(code)
}

func (b *Builder) LoginURL(r *http.Request, token string) string {
	return b.origin(r) + "/login/scan/" + url.PathEscape(token)
}

func (b *Builder) origin(r *http.Request) string {
	if b.base != "" {
		return b.base
	}
	if r == nil {
		return ""
	}

	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		if r.TLS != nil {
			scheme = "https"
		} else {
			scheme = "http"
		}
	}

	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}

	return scheme + "://" + host
}
