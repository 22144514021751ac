package store

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/uralstat/realty-cli/internal/model"
)

// listingColumns is the SELECT column order matched by scanListing. Both
// backends share it.
const listingColumns = `id, price, area_sqm, living_area_sqm, kitchen_area_sqm,
	room_count, floor, total_floors, ceiling_height_m, year_built,
	address_text, latitude, longitude, district, source_url,
	first_seen_at, last_seen_at, scrape_run_id`

type scannable interface {
	Scan(dest ...any) error
}

func scanListing(row scannable) (*model.ListingRecord, error) {
	var rec model.ListingRecord
	var price sql.NullInt64
	var area, living, kitchen, ceiling, lat, lon sql.NullFloat64
	var rooms, floor, totalFloors, yearBuilt sql.NullInt64
	var district sql.NullString

	err := row.Scan(&rec.ListingID, &price, &area, &living, &kitchen,
		&rooms, &floor, &totalFloors, &ceiling, &yearBuilt,
		&rec.AddressText, &lat, &lon, &district, &rec.SourceURL,
		&rec.FirstSeenAt, &rec.LastSeenAt, &rec.ScrapeRunID)
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan listing")
	}

	if price.Valid {
		rec.Price = &price.Int64
	}
	rec.AreaSqm = nullFloat(area)
	rec.LivingAreaSqm = nullFloat(living)
	rec.KitchenAreaSqm = nullFloat(kitchen)
	rec.CeilingHeightM = nullFloat(ceiling)
	rec.Latitude = nullFloat(lat)
	rec.Longitude = nullFloat(lon)
	rec.RoomCount = nullInt(rooms)
	rec.Floor = nullInt(floor)
	rec.TotalFloors = nullInt(totalFloors)
	rec.YearBuilt = nullInt(yearBuilt)
	rec.District = district.String
	return &rec, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
