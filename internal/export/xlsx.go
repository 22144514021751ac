package export

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/uralstat/realty-cli/internal/model"
)

// WriteXLSX writes listings as a single-sheet workbook with the same column
// layout as the CSV snapshot.
func WriteXLSX(path string, recs []model.ListingRecord) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("listings")
	if err != nil {
		return eris.Wrap(err, "export: add xlsx sheet")
	}

	header := sheet.AddRow()
	for _, col := range csvHeader {
		header.AddCell().SetString(col)
	}

	for i := range recs {
		row := sheet.AddRow()
		for _, cell := range csvRow(&recs[i]) {
			row.AddCell().SetString(cell)
		}
	}

	return eris.Wrapf(f.Save(path), "export: save xlsx %s", path)
}
