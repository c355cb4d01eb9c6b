// Package replay runs historical loan applications through the decision
// engine and reports how a settings snapshot would have performed.
package replay

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"bnpl-risk/internal/features"

	"github.com/rs/zerolog/log"
)

// Row is one application read from a loan ledger export.
type Row struct {
	Line      int
	Applicant features.Applicant
	// Label is true for a default outcome. Nil when the status is missing
	// or not final.
	Label *bool
}

// LoadOptions controls how rows are read.
type LoadOptions struct {
	// RequireLabel drops rows whose loan_status is not a final outcome.
	RequireLabel bool
	// Limit stops after this many loaded rows. Zero reads everything.
	Limit int
}

// LoadStats counts what the loader kept and dropped.
type LoadStats struct {
	Rows          int `json:"rows"`
	Loaded        int `json:"loaded"`
	SkippedStatus int `json:"skipped_status"`
	Malformed     int `json:"malformed"`
}

type numericColumn struct {
	name  string
	parse func(string) (float64, error)
	set   func(*features.Applicant, float64)
}

func parsePlain(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

var numericColumns = []numericColumn{
	{features.LoanAmount, features.ParseMoney, func(a *features.Applicant, v float64) { a.LoanAmount = features.Float(v) }},
	{features.InterestRate, features.ParsePercent, func(a *features.Applicant, v float64) { a.InterestRate = features.Float(v) }},
	{features.Installment, features.ParseMoney, func(a *features.Applicant, v float64) { a.Installment = features.Float(v) }},
	{features.AnnualIncome, features.ParseMoney, func(a *features.Applicant, v float64) { a.AnnualIncome = features.Float(v) }},
	{features.DTI, parsePlain, func(a *features.Applicant, v float64) { a.DTI = features.Float(v) }},
	{features.FICO, parsePlain, func(a *features.Applicant, v float64) { a.FICO = features.Float(v) }},
	{features.RevolvingUtil, features.ParsePercent, func(a *features.Applicant, v float64) { a.RevolvingUtil = features.Float(v) }},
	{features.TotalAccounts, parsePlain, func(a *features.Applicant, v float64) { a.TotalAccounts = features.Float(v) }},
	{features.OpenAccounts, parsePlain, func(a *features.Applicant, v float64) { a.OpenAccounts = features.Float(v) }},
	{features.PublicRecords, parsePlain, func(a *features.Applicant, v float64) { a.PublicRecords = features.Float(v) }},
}

var categoricalColumns = map[string]func(*features.Applicant, string){
	features.Grade:              func(a *features.Applicant, v string) { a.Grade = v },
	features.HomeOwnership:      func(a *features.Applicant, v string) { a.HomeOwnership = v },
	features.VerificationStatus: func(a *features.Applicant, v string) { a.VerificationStatus = v },
	features.Purpose:            func(a *features.Applicant, v string) { a.Purpose = v },
}

const statusColumn = "loan_status"

// LoadCSV reads applications from a CSV file.
func LoadCSV(path string, opts LoadOptions) ([]Row, LoadStats, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, LoadStats{}, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	rows, stats, err := ReadCSV(file, opts)
	if err != nil {
		return nil, stats, err
	}

	log.Info().
		Str("file", path).
		Int("rows", stats.Rows).
		Int("loaded", stats.Loaded).
		Int("skipped_status", stats.SkippedStatus).
		Int("malformed", stats.Malformed).
		Msg("Replay data loaded")
	return rows, stats, nil
}

// ReadCSV reads applications from r. Columns are matched by header name;
// unknown columns are ignored and empty cells are treated as missing.
// Rows with unparseable values are skipped and counted as malformed.
func ReadCSV(r io.Reader, opts LoadOptions) ([]Row, LoadStats, error) {
	var stats LoadStats

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, stats, fmt.Errorf("failed to read CSV header: %w", err)
	}

	indices := make(map[string]int, len(header))
	for i, col := range header {
		indices[strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))] = i
	}
	if _, ok := indices[features.LoanAmount]; !ok {
		return nil, stats, fmt.Errorf("CSV header has no %s column", features.LoanAmount)
	}

	var rows []Row
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				stats.Rows++
				stats.Malformed++
				continue
			}
			return nil, stats, fmt.Errorf("read CSV line %d: %w", line, err)
		}
		stats.Rows++

		row, err := parseRecord(record, indices)
		if err != nil {
			stats.Malformed++
			log.Debug().Err(err).Int("line", line).Msg("Skipping malformed row")
			continue
		}
		row.Line = line

		if opts.RequireLabel && row.Label == nil {
			stats.SkippedStatus++
			continue
		}

		rows = append(rows, row)
		stats.Loaded++
		if opts.Limit > 0 && stats.Loaded >= opts.Limit {
			break
		}
	}

	return rows, stats, nil
}

func parseRecord(record []string, indices map[string]int) (Row, error) {
	var row Row
	cell := func(name string) string {
		i, ok := indices[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	for _, col := range numericColumns {
		raw := cell(col.name)
		if raw == "" {
			continue
		}
		v, err := col.parse(raw)
		if err != nil {
			return row, fmt.Errorf("%s: %w", col.name, err)
		}
		col.set(&row.Applicant, v)
	}

	term := cell(features.TermMonths)
	if term == "" {
		term = cell("term")
	}
	if term != "" {
		v, err := features.ParseTermMonths(term)
		if err != nil {
			return row, err
		}
		row.Applicant.TermMonths = features.Float(v)
	}

	for name, set := range categoricalColumns {
		if v := cell(name); v != "" {
			set(&row.Applicant, v)
		}
	}

	if isDefault, ok := features.DefaultLabel(cell(statusColumn)); ok {
		row.Label = &isDefault
	}
	return row, nil
}
