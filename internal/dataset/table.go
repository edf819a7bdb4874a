package dataset

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/optiview/optiview/internal/errors"
)

// ReadTable reads a delimited text table: first record is the header,
// every following record one iteration row. The delimiter is configurable
// because solver logs show up both comma- and tab-separated.
func ReadTable(r io.Reader, delimiter rune) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.Comma = delimiter
	cr.FieldsPerRecord = -1 // arity checked by Load with row context
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCategoryDataFormat, errors.CodeBadNumericCell,
			"table is not parseable as delimited text", err)
	}
	if len(records) == 0 {
		return nil, errors.NewDataFormatError(errors.CodeEmptyTable, "table has no header row")
	}

	return Load(records[0], records[1:])
}

// parseCell parses one raw cell. Bracketed cells are arrays; tokens inside
// the brackets may be separated by whitespace (the numpy string form
// "[0. 0. 0.]") or commas (the list literal form "[0.0, 1.0]"). Everything
// else must parse as a single float. Blank cells are an error, never zero.
func parseCell(raw string) (val float64, arr []float64, isArray bool, err error) {
	cell := strings.TrimSpace(raw)
	if cell == "" {
		return 0, nil, false, errors.NewDataFormatError(errors.CodeBlankCell,
			"blank cell; complete numeric data is required")
	}

	if strings.HasPrefix(cell, "[") && strings.HasSuffix(cell, "]") {
		inner := strings.TrimSpace(cell[1 : len(cell)-1])
		if inner == "" {
			return 0, nil, false, errors.NewDataFormatError(errors.CodeBadNumericCell,
				"empty array cell")
		}

		tokens := strings.FieldsFunc(inner, func(r rune) bool {
			return unicode.IsSpace(r) || r == ','
		})
		if len(tokens) == 0 {
			return 0, nil, false, errors.NewDataFormatError(errors.CodeBadNumericCell,
				"empty array cell")
		}

		arr = make([]float64, len(tokens))
		for i, tok := range tokens {
			v, perr := parseFloat(tok)
			if perr != nil {
				return 0, nil, false, errors.Newf(errors.ErrCategoryDataFormat, errors.CodeBadNumericCell,
					"array element %q is not a number", tok)
			}
			arr[i] = v
		}
		return 0, arr, true, nil
	}

	v, perr := parseFloat(cell)
	if perr != nil {
		return 0, nil, false, errors.Newf(errors.ErrCategoryDataFormat, errors.CodeBadNumericCell,
			"cell %q is not a number", cell)
	}
	return v, nil, false, nil
}

// parseFloat accepts standard float syntax plus the non-finite spellings
// numpy emits (nan, inf, -inf). strconv already covers those.
func parseFloat(tok string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(tok), 64)
}
