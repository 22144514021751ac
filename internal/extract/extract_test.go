package extract

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/uralstat/realty-cli/internal/fetcher"
	"github.com/uralstat/realty-cli/internal/resilience"
)

const offerURL = "https://realty.test/offer/8750304431505540864/"

type fixture struct {
	title      string
	price      string
	address    string
	highlights [][2]string // value, label
	jsonLD     string
	metaGeo    bool
}

func defaultFixture() fixture {
	return fixture{
		title:   "2-комнатная квартира, 42,5 м²",
		price:   "7 750 000 ₽",
		address: "Уфа, улица Цюрупы, 151",
		highlights: [][2]string{
			{"42,5 м²", "общая"},
			{"28,1 м²", "жилая"},
			{"7,2 м²", "кухня"},
			{"7", "этаж"},
			{"10", "из 10"},
			{"2,75 м", "потолки"},
			{"1987", "год постройки"},
		},
		jsonLD: `{"@type":"Offer","geo":{"latitude":54.7261,"longitude":55.9475}}`,
	}
}

func (f fixture) html() string {
	var b strings.Builder
	b.WriteString("<html><head>")
	if f.jsonLD != "" {
		fmt.Fprintf(&b, `<script type="application/ld+json">%s</script>`, f.jsonLD)
	}
	if f.metaGeo {
		b.WriteString(`<meta property="place:location:latitude" content="54.7300">`)
		b.WriteString(`<meta property="place:location:longitude" content="55.9400">`)
	}
	b.WriteString("</head><body>")
	fmt.Fprintf(&b, "<h1>%s</h1>", f.title)
	if f.price != "" {
		fmt.Fprintf(&b, `<span class="OfferCardSummaryInfo__price--2FD3C">%s</span>`, f.price)
	}
	if f.address != "" {
		fmt.Fprintf(&b, `<div class="CardLocation__addressItem--1JYpZ">%s</div>`, f.address)
	}
	for _, h := range f.highlights {
		fmt.Fprintf(&b, `<div class="OfferCardHighlight__container--2gZn2">`+
			`<div class="OfferCardHighlight__value--HMVgP">%s</div>`+
			`<div class="OfferCardHighlight__label--2uMCy">%s</div></div>`, h[0], h[1])
	}
	b.WriteString("</body></html>")
	return b.String()
}

func (f fixture) page() *fetcher.Page {
	return &fetcher.Page{URL: offerURL, Body: []byte(f.html()), StatusCode: 200, FetchedAt: time.Now()}
}

func TestExtract_FullRecord(t *testing.T) {
	rec, err := New("Уфа").Extract(defaultFixture().page())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.ListingID != "8750304431505540864" {
		t.Errorf("ListingID = %q", rec.ListingID)
	}
	if rec.SourceURL != offerURL {
		t.Errorf("SourceURL = %q", rec.SourceURL)
	}
	if rec.Price == nil || *rec.Price != 7750000 {
		t.Errorf("Price = %v, want 7750000", rec.Price)
	}
	if rec.AddressText != "улица Цюрупы, 151" {
		t.Errorf("AddressText = %q, city prefix should be stripped", rec.AddressText)
	}
	if rec.AreaSqm == nil || *rec.AreaSqm != 42.5 {
		t.Errorf("AreaSqm = %v, want 42.5", rec.AreaSqm)
	}
	if rec.LivingAreaSqm == nil || *rec.LivingAreaSqm != 28.1 {
		t.Errorf("LivingAreaSqm = %v, want 28.1", rec.LivingAreaSqm)
	}
	if rec.KitchenAreaSqm == nil || *rec.KitchenAreaSqm != 7.2 {
		t.Errorf("KitchenAreaSqm = %v, want 7.2", rec.KitchenAreaSqm)
	}
	if rec.RoomCount == nil || *rec.RoomCount != 2 {
		t.Errorf("RoomCount = %v, want 2", rec.RoomCount)
	}
	if rec.Floor == nil || *rec.Floor != 7 {
		t.Errorf("Floor = %v, want 7", rec.Floor)
	}
	if rec.TotalFloors == nil || *rec.TotalFloors != 10 {
		t.Errorf("TotalFloors = %v, want 10", rec.TotalFloors)
	}
	if rec.CeilingHeightM == nil || *rec.CeilingHeightM != 2.75 {
		t.Errorf("CeilingHeightM = %v, want 2.75", rec.CeilingHeightM)
	}
	if rec.YearBuilt == nil || *rec.YearBuilt != 1987 {
		t.Errorf("YearBuilt = %v, want 1987", rec.YearBuilt)
	}
	if rec.Latitude == nil || *rec.Latitude != 54.7261 {
		t.Errorf("Latitude = %v, want 54.7261", rec.Latitude)
	}
	if rec.Longitude == nil || *rec.Longitude != 55.9475 {
		t.Errorf("Longitude = %v, want 55.9475", rec.Longitude)
	}
}

func TestExtract_MissingPriceIsParseFailure(t *testing.T) {
	f := defaultFixture()
	f.price = ""

	_, err := New("Уфа").Extract(f.page())
	if err == nil {
		t.Fatal("expected error")
	}
	var pe *resilience.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %T", err)
	}
	if pe.Field != "price" {
		t.Errorf("ParseError.Field = %q, want price", pe.Field)
	}
}

func TestExtract_GarbagePriceIsParseFailure(t *testing.T) {
	f := defaultFixture()
	f.price = "цена договорная"

	_, err := New("Уфа").Extract(f.page())
	if !resilience.IsParseError(err) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestExtract_MissingOptionalFieldsDegradeToNil(t *testing.T) {
	f := defaultFixture()
	f.highlights = [][2]string{{"42,5 м²", "общая"}} // only total area
	f.title = "Квартира"                             // no room count

	rec, err := New("Уфа").Extract(f.page())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Floor != nil || rec.TotalFloors != nil || rec.YearBuilt != nil ||
		rec.CeilingHeightM != nil || rec.RoomCount != nil {
		t.Errorf("optional fields should be nil: %+v", rec)
	}
	if rec.AreaSqm == nil || *rec.AreaSqm != 42.5 {
		t.Errorf("AreaSqm = %v, want 42.5", rec.AreaSqm)
	}
}

func TestExtract_NoLocationSignalIsParseFailure(t *testing.T) {
	f := defaultFixture()
	f.address = ""
	f.jsonLD = ""

	_, err := New("Уфа").Extract(f.page())
	if err == nil {
		t.Fatal("expected error")
	}
	var pe *resilience.ParseError
	if !errors.As(err, &pe) || pe.Field != "location" {
		t.Fatalf("expected location ParseError, got %v", err)
	}
}

func TestExtract_CoordinatesWithoutAddressSuffice(t *testing.T) {
	f := defaultFixture()
	f.address = ""

	rec, err := New("Уфа").Extract(f.page())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Latitude == nil || rec.Longitude == nil {
		t.Error("expected coordinates")
	}
	if rec.AddressText != "" {
		t.Errorf("AddressText = %q, want empty", rec.AddressText)
	}
}

func TestExtract_MetaGeoFallback(t *testing.T) {
	f := defaultFixture()
	f.jsonLD = `{"@type":"Offer"}` // no geo block
	f.metaGeo = true

	rec, err := New("Уфа").Extract(f.page())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Latitude == nil || *rec.Latitude != 54.73 {
		t.Errorf("Latitude = %v, want 54.73 from meta tags", rec.Latitude)
	}
}

func TestExtract_BadURLIsParseFailure(t *testing.T) {
	p := defaultFixture().page()
	p.URL = "https://realty.test/ufa/kupit/kvartira/"

	_, err := New("Уфа").Extract(p)
	var pe *resilience.ParseError
	if !errors.As(err, &pe) || pe.Field != "listing_id" {
		t.Fatalf("expected listing_id ParseError, got %v", err)
	}
}
