package gather

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// LoadSymbolsCSV reads the first column ("symbol") from a CSV watchlist and
// returns all symbols found. The file must have a header row.
func LoadSymbolsCSV(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening CSV %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.Comment = '#'
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV %s: %w", path, err)
	}

	if len(records) < 2 {
		return nil, nil
	}

	symbols := make([]string, 0, len(records)-1)
	for _, row := range records[1:] {
		if len(row) > 0 {
			symbols = append(symbols, row[0])
		}
	}
	return NormalizeSymbols(symbols), nil
}

// NormalizeSymbols upper-cases and trims symbols, dropping blanks and
// duplicates while keeping first-seen order.
func NormalizeSymbols(lists ...[]string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, list := range lists {
		for _, s := range list {
			s = strings.ToUpper(strings.TrimSpace(s))
			if s == "" {
				continue
			}
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
