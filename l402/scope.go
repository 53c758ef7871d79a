package l402

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Scope identifies the resource domain a credential applies to. By
// default it is the request origin; a services caveat in the token
// narrows it so one payment can cover every path of a service.
type Scope string

// Caveat keys interpreted by the client. All other caveats are opaque.
const (
	caveatValidUntil = "valid_until"
	caveatService    = "service"
	caveatServices   = "services"
)

const serviceScopePrefix = "service:"

// OriginScope derives the default scope from a request URL:
// scheme://host[:port].
func OriginScope(u *url.URL) Scope {
	return Scope(strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host))
}

// ResolveScope returns the scope a credential for token should be cached
// under when requesting u. A service/services caveat takes precedence
// over the URL origin; caveats are appended restrictively, so the last
// declaration is the binding one.
func ResolveScope(u *url.URL, token *Token) Scope {
	if token != nil {
		service := ""
		for _, cav := range token.caveats {
			if cav.Key == caveatService || cav.Key == caveatServices {
				service = cav.Value
			}
		}
		if service != "" {
			return Scope(serviceScopePrefix + service)
		}
	}
	return OriginScope(u)
}

// ValidUntil reports the token's expiry as declared by valid_until
// caveats, an inclusive upper bound. Every caveat must hold, so with
// duplicates the earliest bound wins. The zero time and false mean the
// token carries no expiry.
func (t *Token) ValidUntil() (time.Time, bool) {
	var earliest time.Time
	for _, cav := range t.caveats {
		if cav.Key != caveatValidUntil {
			continue
		}
		ts, ok := parseValidUntil(cav.Value)
		if !ok {
			continue
		}
		if earliest.IsZero() || ts.Before(earliest) {
			earliest = ts
		}
	}
	return earliest, !earliest.IsZero()
}

// parseValidUntil accepts epoch seconds, RFC3339 timestamps, and bare
// ISO dates (interpreted as end of that day, the bound being inclusive).
func parseValidUntil(v string) (time.Time, bool) {
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(secs, 0), true
	}
	if ts, err := time.Parse(time.RFC3339, v); err == nil {
		return ts, true
	}
	if day, err := time.Parse("2006-01-02", v); err == nil {
		return day.Add(24*time.Hour - time.Nanosecond), true
	}
	return time.Time{}, false
}
