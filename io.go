// Project: Dynamic Factor Model Estimation for Unbalanced Macroeconomic Panels
// CSV input/output and console summaries

package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// parseCell converts one CSV cell to a float64. Empty cells and the usual
// missing-value spellings become NaN.
func parseCell(s string) (float64, error) {
	switch strings.TrimSpace(s) {
	case "", ".", "NA", "N/A", "NaN", "nan":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// LoadPanelCSV loads a CSV file into a Panel. The header row names the
// series; empty, NA, or NaN cells are read as missing observations.
func LoadPanelCSV(path string) (*Panel, error) {
	// 1. Open file
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	// 2. Make CSV reader
	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	// 3. Read header row
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) == 0 {
		return nil, fmt.Errorf("empty header in %s", path)
	}
	ns := len(header)

	var (
		data  []float64
		times []float64
		row   int
	)

	// 4. Read each data row
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row+2, err)
		}
		if len(record) == 1 && record[0] == "" {
			continue
		}
		if len(record) != ns {
			return nil, fmt.Errorf("row %d: expected %d columns, got %d", row+2, ns, len(record))
		}

		for j, s := range record {
			v, err := parseCell(s)
			if err != nil {
				return nil, fmt.Errorf("parse float at row %d col %d (%q): %w", row+2, j+1, s, err)
			}
			data = append(data, v)
		}

		times = append(times, float64(row+1))
		row++
	}
	if row == 0 {
		return nil, fmt.Errorf("no data rows in %s", path)
	}

	return &Panel{
		X:           mat.NewDense(row, ns, data),
		Time:        times,
		SeriesNames: header,
	}, nil
}

// LoadInclusionCSV reads the 0/1 inclusion vector, one entry per row, with a
// single header line.
func LoadInclusionCSV(path string, ns int) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	if _, err := r.Read(); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var include []int
	row := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row+2, err)
		}
		v, err := strconv.Atoi(strings.TrimSpace(record[0]))
		if err != nil {
			return nil, fmt.Errorf("parse inclusion flag at row %d (%q): %w", row+2, record[0], err)
		}
		include = append(include, v)
		row++
	}
	if len(include) != ns {
		return nil, fmt.Errorf("inclusion vector has %d entries, panel has %d series", len(include), ns)
	}
	return include, nil
}

// formatCell renders a float for CSV output; missing values become empty
// cells, so a written panel round-trips through LoadPanelCSV.
func formatCell(v float64) string {
	if isMissing(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// WriteFactorCSV writes the estimated factor paths, one row per period.
// Columns: Period, Factor_1 .. Factor_nfac.
func WriteFactorCSV(path string, factor *mat.Dense) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	T, nfac := factor.Dims()
	header := []string{"Period"}
	for q := 0; q < nfac; q++ {
		header = append(header, fmt.Sprintf("Factor_%d", q+1))
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for t := 0; t < T; t++ {
		record := []string{fmt.Sprintf("%d", t+1)}
		for q := 0; q < nfac; q++ {
			record = append(record, formatCell(factor.At(t, q)))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	return nil
}

// WriteLoadingsCSV writes the per-series estimation results: loadings, the
// joint loading F-test, and the idiosyncratic AR fit.
func WriteLoadingsCSV(path string, m *DFMModel) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	_, ns := m.Panel.Dims()
	nfac := m.NumFactors
	p := m.Config.NumARLags

	header := []string{"Series"}
	for q := 0; q < nfac; q++ {
		header = append(header, fmt.Sprintf("Lambda_%d", q+1))
	}
	header = append(header, "R2", "FStat", "PValue")
	for q := 0; q < p; q++ {
		header = append(header, fmt.Sprintf("AR_%d", q+1))
	}
	header = append(header, "ARStdErr")
	if err := writer.Write(header); err != nil {
		return err
	}

	for i := 0; i < ns; i++ {
		record := []string{m.Panel.SeriesNames[i]}
		for q := 0; q < nfac; q++ {
			record = append(record, formatCell(m.Lambda.At(i, q)))
		}
		record = append(record, formatCell(m.LoadingR2[i]),
			formatCell(m.LoadingFStat[i]), formatCell(m.LoadingPValue[i]))
		for q := 0; q < p; q++ {
			record = append(record, formatCell(m.ARCoef.At(i, q)))
		}
		record = append(record, formatCell(m.ARStdErr[i]))
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	return nil
}

// WriteSelectionCSV writes the factor-number scan: one row per candidate
// count with its Bai-Ng criterion, static SSR, and the Amengual-Watson
// criterion at each dynamic count up to the candidate.
func WriteSelectionCSV(path string, sel *FactorNumberEstimateStats) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"NumFactors", "BaiNg", "SSR"}
	for d := 1; d <= sel.MaxFactors; d++ {
		header = append(header, fmt.Sprintf("AW_%d", d))
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for k := 1; k <= sel.MaxFactors; k++ {
		record := []string{
			fmt.Sprintf("%d", k),
			formatCell(sel.BaiNg[k-1]),
			formatCell(sel.SSRStatic[k-1]),
		}
		for d := 1; d <= sel.MaxFactors; d++ {
			record = append(record, formatCell(sel.AWCriterion.At(k-1, d-1)))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	return nil
}

// WriteIRFCSV writes impulse responses to CSV in long format.
// Columns: Shock, Series, Horizon, Response. The responses are indexed like
// the shocks slice.
func WriteIRFCSV(path string, irfs []*mat.Dense, shocks []int) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"Shock", "Series", "Horizon", "Response"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for s, irf := range irfs {
		ns, horizon := irf.Dims()
		for i := 0; i < ns; i++ {
			for h := 0; h < horizon; h++ {
				record := []string{
					fmt.Sprintf("%d", shocks[s]+1),
					fmt.Sprintf("%d", i+1),
					fmt.Sprintf("%d", h),
					fmt.Sprintf("%f", irf.At(i, h)),
				}
				if err := writer.Write(record); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// PrintFactorSummary prints a short console summary of a factor estimation.
func PrintFactorSummary(m *DFMModel, stats *FactorEstimateStats) {
	fmt.Println("       Dynamic Factor Model Summary      ")
	fmt.Printf("Estimation window:        [%d, %d]\n", m.Config.InitPeriod, m.Config.LastPeriod)
	fmt.Printf("Included series:          %d of %d\n", stats.NumSeries, len(m.Include))
	fmt.Printf("Factors (obs + unobs):    %d + %d\n", m.Config.NumObsFactors, m.Config.NumUnobsFactors)
	fmt.Printf("Observations used:        %d\n", stats.NumObs)
	fmt.Printf("Iterations:               %d (converged: %t)\n", stats.Iterations, stats.Converged)
	fmt.Printf("SSR / TSS:                %.4f / %.4f\n", stats.SSR, stats.TSS)
	if stats.TSS > 0 {
		fmt.Printf("Common-component share:   %.4f\n", 1-stats.SSR/stats.TSS)
	}
	fmt.Println("=========================================")
}

// PrintSelection prints the factor-number scan as a table, marking the
// candidate count that minimizes the Bai-Ng criterion.
func PrintSelection(sel *FactorNumberEstimateStats) {
	best := 0
	for k := 1; k < sel.MaxFactors; k++ {
		if sel.BaiNg[k] < sel.BaiNg[best] {
			best = k
		}
	}

	fmt.Println("\n=== Factor Number Selection ===")
	fmt.Printf("%-12s %12s %12s\n", "NumFactors", "BaiNg", "SSR")
	for k := 0; k < sel.MaxFactors; k++ {
		mark := " "
		if k == best {
			mark = "*"
		}
		fmt.Printf("%-12d %12.6f %12.4f %s\n", k+1, sel.BaiNg[k], sel.SSRStatic[k], mark)
	}
	fmt.Println()
}

// PrintImpulseResponse prints one shock's responses, horizons as rows.
func PrintImpulseResponse(irf *mat.Dense, shock int, names []string) {
	ns, horizon := irf.Dims()

	fmt.Printf("\n=== Impulse Response: shock %d ===\n", shock+1)
	fmt.Printf("h\t")
	for i := 0; i < ns; i++ {
		name := fmt.Sprintf("Factor_%d", i+1)
		if len(names) == ns {
			name = names[i]
		}
		fmt.Printf("%12s", name)
	}
	fmt.Println()

	for h := 0; h < horizon; h++ {
		fmt.Printf("%d\t", h)
		for i := 0; i < ns; i++ {
			fmt.Printf("%12.6f", irf.At(i, h))
		}
		fmt.Println()
	}
}
