package extract

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/uralstat/realty-cli/internal/model"
)

// Portal markup drifts: class names carry build hashes
// (OfferCardSummaryInfo__price--2FD3C), so selectors match on the stable
// prefix. Each field is its own rule; a broken rule degrades that one field.
const (
	selPrice          = `span[class*="OfferCardSummaryInfo__price"]`
	selAddress        = `div[class*="CardLocation__addressItem"]`
	selHighlight      = `div[class*="OfferCardHighlight__container"]`
	selHighlightValue = `div[class*="OfferCardHighlight__value"]`
	selHighlightLabel = `div[class*="OfferCardHighlight__label"]`
)

var roomCountRe = regexp.MustCompile(`(\d+)-комн`)

// pageDoc is the parsed listing page plus pre-scanned shared structures.
type pageDoc struct {
	doc        *goquery.Document
	highlights map[string]string // normalized label -> value text
	geoLat     *float64
	geoLon     *float64
}

func newPageDoc(doc *goquery.Document) *pageDoc {
	pd := &pageDoc{doc: doc, highlights: make(map[string]string)}

	// The highlight strip is label/value pairs: "общая" → "42,5 м²",
	// "этаж" → "7", "из 10" → floor total, and so on.
	doc.Find(selHighlight).Each(func(_ int, sel *goquery.Selection) {
		label := strings.ToLower(strings.TrimSpace(sel.Find(selHighlightLabel).First().Text()))
		value := strings.TrimSpace(sel.Find(selHighlightValue).First().Text())
		if label == "" || value == "" {
			return
		}
		pd.highlights[label] = value
	})

	pd.geoLat, pd.geoLon = findGeoCoordinates(doc)
	return pd
}

// highlight returns the value for the first matching label predicate.
func (pd *pageDoc) highlight(match func(label string) bool) (string, bool) {
	for label, value := range pd.highlights {
		if match(label) {
			return value, true
		}
	}
	return "", false
}

func labelIs(want string) func(string) bool {
	return func(label string) bool { return label == want }
}

// rule extracts one field into the record. An error means the field is absent
// or malformed; required rules turn that into a parse failure for the record,
// optional rules degrade the field to nil.
type rule struct {
	field    string
	required bool
	apply    func(pd *pageDoc, rec *model.ListingRecord) error
}

// rules is the full extraction rule set, applied independently per field.
// Adding a field or a layout variant means adding a rule, not touching the
// aggregation loop.
var rules = []rule{
	{
		field:    "price",
		required: true,
		apply: func(pd *pageDoc, rec *model.ListingRecord) error {
			text := strings.TrimSpace(pd.doc.Find(selPrice).First().Text())
			if text == "" {
				return eris.New("price field missing")
			}
			n, err := parsePrice(text)
			if err != nil {
				return err
			}
			rec.Price = &n
			return nil
		},
	},
	{
		field: "address",
		apply: func(pd *pageDoc, rec *model.ListingRecord) error {
			text := strings.TrimSpace(pd.doc.Find(selAddress).First().Text())
			if text == "" {
				return eris.New("address missing")
			}
			rec.AddressText = text
			return nil
		},
	},
	{
		field: "coordinates",
		apply: func(pd *pageDoc, rec *model.ListingRecord) error {
			if pd.geoLat == nil || pd.geoLon == nil {
				return eris.New("no geo coordinates on page")
			}
			rec.Latitude = pd.geoLat
			rec.Longitude = pd.geoLon
			return nil
		},
	},
	{
		field: "room_count",
		apply: func(pd *pageDoc, rec *model.ListingRecord) error {
			title := pd.doc.Find("h1").First().Text()
			m := roomCountRe.FindStringSubmatch(title)
			if m == nil {
				return eris.New("no room count in title")
			}
			n, err := parseInteger(m[1])
			if err != nil {
				return err
			}
			rec.RoomCount = &n
			return nil
		},
	},
	{
		field: "area_sqm",
		apply: decimalHighlight(labelIs("общая"), func(rec *model.ListingRecord, v float64) {
			rec.AreaSqm = &v
		}),
	},
	{
		field: "living_area_sqm",
		apply: decimalHighlight(labelIs("жилая"), func(rec *model.ListingRecord, v float64) {
			rec.LivingAreaSqm = &v
		}),
	},
	{
		field: "kitchen_area_sqm",
		apply: decimalHighlight(labelIs("кухня"), func(rec *model.ListingRecord, v float64) {
			rec.KitchenAreaSqm = &v
		}),
	},
	{
		field: "floor",
		apply: func(pd *pageDoc, rec *model.ListingRecord) error {
			text, ok := pd.highlight(labelIs("этаж"))
			if !ok {
				return eris.New("no floor highlight")
			}
			n, err := parseInteger(text)
			if err != nil {
				return err
			}
			rec.Floor = &n
			return nil
		},
	},
	{
		field: "total_floors",
		apply: func(pd *pageDoc, rec *model.ListingRecord) error {
			// The pair renders as value "7", label "из 10"; some layouts use
			// the label "этажей" instead. The count lives in the label.
			for label := range pd.highlights {
				if strings.HasPrefix(label, "из ") || label == "этажей" {
					n, err := parseInteger(label)
					if err != nil {
						return err
					}
					rec.TotalFloors = &n
					return nil
				}
			}
			return eris.New("no total floors highlight")
		},
	},
	{
		field: "ceiling_height_m",
		apply: decimalHighlight(labelIs("потолки"), func(rec *model.ListingRecord, v float64) {
			rec.CeilingHeightM = &v
		}),
	},
	{
		field: "year_built",
		apply: func(pd *pageDoc, rec *model.ListingRecord) error {
			text, ok := pd.highlight(labelIs("год постройки"))
			if !ok {
				return eris.New("no year built highlight")
			}
			n, err := parseInteger(text)
			if err != nil {
				return err
			}
			rec.YearBuilt = &n
			return nil
		},
	},
}

// decimalHighlight builds a rule body that parses a decimal highlight value.
func decimalHighlight(match func(string) bool, set func(*model.ListingRecord, float64)) func(*pageDoc, *model.ListingRecord) error {
	return func(pd *pageDoc, rec *model.ListingRecord) error {
		text, ok := pd.highlight(match)
		if !ok {
			return eris.New("highlight missing")
		}
		v, err := parseDecimal(text)
		if err != nil {
			return err
		}
		set(rec, v)
		return nil
	}
}

// findGeoCoordinates pulls a coordinate pair from JSON-LD metadata or, failing
// that, from place meta tags.
func findGeoCoordinates(doc *goquery.Document) (*float64, *float64) {
	var lat, lon *float64

	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		var payload struct {
			Geo struct {
				Latitude  json.Number `json:"latitude"`
				Longitude json.Number `json:"longitude"`
			} `json:"geo"`
		}
		if err := json.Unmarshal([]byte(sel.Text()), &payload); err != nil {
			return true
		}
		la, laErr := payload.Geo.Latitude.Float64()
		lo, loErr := payload.Geo.Longitude.Float64()
		if laErr != nil || loErr != nil {
			return true
		}
		lat, lon = &la, &lo
		return false
	})
	if lat != nil && lon != nil {
		return lat, lon
	}

	latText, okLat := doc.Find(`meta[property="place:location:latitude"]`).Attr("content")
	lonText, okLon := doc.Find(`meta[property="place:location:longitude"]`).Attr("content")
	if okLat && okLon {
		la, laErr := parseCoordinate(latText)
		lo, loErr := parseCoordinate(lonText)
		if laErr == nil && loErr == nil {
			return &la, &lo
		}
	}

	return nil, nil
}
