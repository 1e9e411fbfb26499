package store

import (
	"fmt"
)

// ExportHeader is the first row of every exported series.
var ExportHeader = []string{"Date", "Price", "Open", "High", "Low", "Volume", "Price Change %", "Volatility %"}

// ExportSeries renders the symbol's series as tabular rows for CSV
// consumers, header included. An unknown symbol yields just the header.
func (s *Store) ExportSeries(symbol string) [][]string {
	series := s.Series(symbol)
	rows := make([][]string, 0, len(series)+1)
	rows = append(rows, ExportHeader)
	for _, sample := range series {
		rows = append(rows, []string{
			sample.Date.Format("2006-01-02"),
			fmt.Sprintf("%.2f", sample.Price),
			fmt.Sprintf("%.2f", sample.Open),
			fmt.Sprintf("%.2f", sample.High),
			fmt.Sprintf("%.2f", sample.Low),
			fmt.Sprintf("%.0f", sample.Volume),
			fmt.Sprintf("%.2f", sample.PriceChange*100),
			fmt.Sprintf("%.2f", sample.Volatility*100),
		})
	}
	return rows
}
