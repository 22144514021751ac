package export

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/uralstat/realty-cli/internal/model"
)

// datasetHeader is the numeric training layout: features first, the price
// target last. district is label-encoded.
var datasetHeader = []string{
	"area_sqm", "living_area_sqm", "kitchen_area_sqm", "room_count",
	"floor", "total_floors", "ceiling_height_m", "year_built",
	"district_code", "price",
}

// DistrictCodes assigns a stable integer code to every district present in
// the snapshot, in lexicographic order starting from 0.
func DistrictCodes(recs []model.ListingRecord) map[string]int {
	names := make(map[string]struct{})
	for i := range recs {
		if recs[i].District != "" {
			names[recs[i].District] = struct{}{}
		}
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	codes := make(map[string]int, len(sorted))
	for i, name := range sorted {
		codes[name] = i
	}
	return codes
}

// WriteDataset writes the model-training CSV. Rows missing the price target
// or a district label are dropped; missing numeric features become empty
// cells for the downstream imputer. Returns the number of rows written.
func WriteDataset(w io.Writer, recs []model.ListingRecord) (int, error) {
	codes := DistrictCodes(recs)

	cw := csv.NewWriter(w)
	if err := cw.Write(datasetHeader); err != nil {
		return 0, eris.Wrap(err, "export: write dataset header")
	}

	written := 0
	for i := range recs {
		rec := &recs[i]
		if rec.Price == nil || rec.District == "" {
			continue
		}

		row := []string{
			floatCell(rec.AreaSqm),
			floatCell(rec.LivingAreaSqm),
			floatCell(rec.KitchenAreaSqm),
			smallIntCell(rec.RoomCount),
			smallIntCell(rec.Floor),
			smallIntCell(rec.TotalFloors),
			floatCell(rec.CeilingHeightM),
			smallIntCell(rec.YearBuilt),
			strconv.Itoa(codes[rec.District]),
			strconv.FormatInt(*rec.Price, 10),
		}
		if err := cw.Write(row); err != nil {
			return written, eris.Wrapf(err, "export: write dataset row %s", rec.ListingID)
		}
		written++
	}

	cw.Flush()
	return written, eris.Wrap(cw.Error(), "export: flush dataset")
}
