package session

import (
	"net/http"

	"github.com/pitchingcoachu/portal/internal/model"
)

// Decoder turns a cookie value into claims.
type Decoder interface {
	Decode(token string) (*model.SessionClaims, error)
}

// Source pairs a cookie name with the decoder for tokens stored under it.
type Source struct {
	CookieName string
	Decoder    Decoder
}

// Resolver tries its sources in order and returns the first session that
// decodes. Clients holding cookies from before a name or domain change stay
// logged in until those cookies expire.
type Resolver struct {
	sources []Source
}

func NewResolver(sources ...Source) *Resolver {
	return &Resolver{sources: sources}
}

// DefaultResolver checks the primary cookie, then the domain cookie, then
// each legacy name, all with the same codec.
func DefaultResolver(codec *Codec) *Resolver {
	names := append([]string{CookieName, DomainCookieName}, LegacyCookieNames...)
	sources := make([]Source, 0, len(names))
	for _, name := range names {
		sources = append(sources, Source{CookieName: name, Decoder: codec})
	}
	return NewResolver(sources...)
}

// Resolve returns the request's session or nil.
func (r *Resolver) Resolve(req *http.Request) *model.SessionClaims {
	claims, _ := r.ResolveDetailed(req.Cookies())
	return claims
}

// ResolveJar is Resolve over an explicit cookie set.
func (r *Resolver) ResolveJar(cookies []*http.Cookie) *model.SessionClaims {
	claims, _ := r.ResolveDetailed(cookies)
	return claims
}

// ResolveDetailed also reports which cookie name carried the session.
func (r *Resolver) ResolveDetailed(cookies []*http.Cookie) (*model.SessionClaims, string) {
	for _, src := range r.sources {
		for _, c := range cookies {
			if c.Name != src.CookieName || c.Value == "" {
				continue
			}
			claims, err := src.Decoder.Decode(c.Value)
			if err == nil && claims != nil {
				return claims, src.CookieName
			}
		}
	}
	return nil, ""
}
