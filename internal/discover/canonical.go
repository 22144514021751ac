package discover

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/uralstat/realty-cli/internal/model"
)

// offerPathRe matches the numeric listing ID in an offer URL path,
// e.g. /offer/8750304431505540864/.
var offerPathRe = regexp.MustCompile(`/offer/(\d+)`)

// Canonicalize derives the canonical ListingURL for a raw offer URL. The ID is
// the numeric path segment; query parameters (tracking, pagination leftovers)
// and fragments are dropped so that cosmetic URL variants collapse to the same
// identity.
func Canonicalize(rawURL string) (model.ListingURL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return model.ListingURL{}, eris.Wrapf(err, "discover: parse url %q", rawURL)
	}

	m := offerPathRe.FindStringSubmatch(u.Path)
	if m == nil {
		return model.ListingURL{}, eris.Errorf("discover: no listing id in %q", rawURL)
	}

	u.RawQuery = ""
	u.Fragment = ""
	u.Path = "/offer/" + m[1] + "/"

	return model.ListingURL{ID: m[1], URL: u.String()}, nil
}

// IsOfferLink reports whether an anchor href points at a listing page.
func IsOfferLink(href string) bool {
	return strings.Contains(href, "/offer/") && offerPathRe.MatchString(href)
}
