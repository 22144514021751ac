// Package extract parses one fetched listing page into a structured record.
// Extraction is field-independent: a missing optional field degrades to nil,
// only identity, price, and a location signal are hard requirements.
package extract

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/uralstat/realty-cli/internal/discover"
	"github.com/uralstat/realty-cli/internal/fetcher"
	"github.com/uralstat/realty-cli/internal/model"
	"github.com/uralstat/realty-cli/internal/resilience"
)

// Extractor turns raw listing pages into ListingRecords.
type Extractor struct {
	city string // city prefix stripped from addresses, e.g. "Уфа"
}

// New creates an Extractor for the given portal city.
func New(city string) *Extractor {
	return &Extractor{city: city}
}

// Extract parses a listing page. The returned record carries identity, source
// URL, and every field a rule could locate; price and a location signal
// (coordinates or address) are mandatory and their absence is a ParseError.
// The raw page is not retained.
func (e *Extractor) Extract(page *fetcher.Page) (*model.ListingRecord, error) {
	lu, err := discover.Canonicalize(page.URL)
	if err != nil {
		return nil, resilience.NewParseError("listing_id", "no listing id in url")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, resilience.NewParseError("", "layout marker not found")
	}

	rec := &model.ListingRecord{
		ListingID: lu.ID,
		SourceURL: lu.URL,
	}

	pd := newPageDoc(doc)
	for _, r := range rules {
		if err := r.apply(pd, rec); err != nil {
			if r.required {
				return nil, resilience.NewParseError(r.field, err.Error())
			}
			zap.L().Debug("optional field not extracted",
				zap.String("listing_id", rec.ListingID),
				zap.String("field", r.field),
				zap.Error(err),
			)
		}
	}

	rec.AddressText = e.stripCityPrefix(rec.AddressText)

	// A record without any location signal cannot be priced by district and
	// is useless downstream.
	if !rec.HasLocation() {
		return nil, resilience.NewParseError("location", "neither coordinates nor address found")
	}

	return rec, nil
}

// stripCityPrefix removes the leading "<city>, " from a portal address.
// "Уфа, улица Цюрупы, 151" → "улица Цюрупы, 151".
func (e *Extractor) stripCityPrefix(address string) string {
	if e.city == "" || address == "" {
		return address
	}
	return strings.TrimPrefix(address, e.city+", ")
}
