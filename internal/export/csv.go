// Package export turns stored listings into snapshot files (CSV, XLSX, a
// numeric training dataset) and ships them to an FTP drop with date-partitioned
// keys.
package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/uralstat/realty-cli/internal/model"
)

// csvHeader is the snapshot column order. ReadCSV requires exactly this
// header, so snapshots round-trip through the backfill path.
var csvHeader = []string{
	"listing_id", "price", "area_sqm", "living_area_sqm", "kitchen_area_sqm",
	"room_count", "floor", "total_floors", "ceiling_height_m", "year_built",
	"address_text", "latitude", "longitude", "district", "source_url",
	"first_seen_at", "last_seen_at", "scrape_run_id",
}

// WriteCSV writes listings as a CSV snapshot. Absent optional fields become
// empty cells.
func WriteCSV(w io.Writer, recs []model.ListingRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}

	for i := range recs {
		if err := cw.Write(csvRow(&recs[i])); err != nil {
			return eris.Wrapf(err, "export: write csv row %s", recs[i].ListingID)
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

func csvRow(rec *model.ListingRecord) []string {
	return []string{
		rec.ListingID,
		intCell(rec.Price),
		floatCell(rec.AreaSqm),
		floatCell(rec.LivingAreaSqm),
		floatCell(rec.KitchenAreaSqm),
		smallIntCell(rec.RoomCount),
		smallIntCell(rec.Floor),
		smallIntCell(rec.TotalFloors),
		floatCell(rec.CeilingHeightM),
		smallIntCell(rec.YearBuilt),
		rec.AddressText,
		floatCell(rec.Latitude),
		floatCell(rec.Longitude),
		rec.District,
		rec.SourceURL,
		rec.FirstSeenAt.UTC().Format(time.RFC3339),
		rec.LastSeenAt.UTC().Format(time.RFC3339),
		rec.ScrapeRunID,
	}
}

// ReadCSV parses a snapshot written by WriteCSV. Used by the backfill command
// to load an exported snapshot into a fresh store.
func ReadCSV(r io.Reader) ([]model.ListingRecord, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, eris.Wrap(err, "export: read csv header")
	}
	if len(header) != len(csvHeader) {
		return nil, eris.Errorf("export: unexpected csv header with %d columns", len(header))
	}
	for i, col := range csvHeader {
		if header[i] != col {
			return nil, eris.Errorf("export: csv column %d is %q, want %q", i, header[i], col)
		}
	}

	var recs []model.ListingRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "export: read csv line %d", line)
		}

		rec, err := recordFromRow(row)
		if err != nil {
			return nil, eris.Wrapf(err, "export: csv line %d", line)
		}
		recs = append(recs, *rec)
	}
	return recs, nil
}

func recordFromRow(row []string) (*model.ListingRecord, error) {
	rec := &model.ListingRecord{
		ListingID:   row[0],
		AddressText: row[10],
		District:    row[13],
		SourceURL:   row[14],
		ScrapeRunID: row[17],
	}
	if rec.ListingID == "" {
		return nil, eris.New("empty listing_id")
	}

	var err error
	if rec.Price, err = parseIntCell(row[1]); err != nil {
		return nil, eris.Wrap(err, "price")
	}
	if rec.AreaSqm, err = parseFloatCell(row[2]); err != nil {
		return nil, eris.Wrap(err, "area_sqm")
	}
	if rec.LivingAreaSqm, err = parseFloatCell(row[3]); err != nil {
		return nil, eris.Wrap(err, "living_area_sqm")
	}
	if rec.KitchenAreaSqm, err = parseFloatCell(row[4]); err != nil {
		return nil, eris.Wrap(err, "kitchen_area_sqm")
	}
	if rec.RoomCount, err = parseSmallIntCell(row[5]); err != nil {
		return nil, eris.Wrap(err, "room_count")
	}
	if rec.Floor, err = parseSmallIntCell(row[6]); err != nil {
		return nil, eris.Wrap(err, "floor")
	}
	if rec.TotalFloors, err = parseSmallIntCell(row[7]); err != nil {
		return nil, eris.Wrap(err, "total_floors")
	}
	if rec.CeilingHeightM, err = parseFloatCell(row[8]); err != nil {
		return nil, eris.Wrap(err, "ceiling_height_m")
	}
	if rec.YearBuilt, err = parseSmallIntCell(row[9]); err != nil {
		return nil, eris.Wrap(err, "year_built")
	}
	if rec.Latitude, err = parseFloatCell(row[11]); err != nil {
		return nil, eris.Wrap(err, "latitude")
	}
	if rec.Longitude, err = parseFloatCell(row[12]); err != nil {
		return nil, eris.Wrap(err, "longitude")
	}
	if rec.FirstSeenAt, err = time.Parse(time.RFC3339, row[15]); err != nil {
		return nil, eris.Wrap(err, "first_seen_at")
	}
	if rec.LastSeenAt, err = time.Parse(time.RFC3339, row[16]); err != nil {
		return nil, eris.Wrap(err, "last_seen_at")
	}
	return rec, nil
}

func intCell(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func smallIntCell(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func floatCell(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func parseIntCell(s string) (*int64, error) {
	if s == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func parseSmallIntCell(s string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func parseFloatCell(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}
