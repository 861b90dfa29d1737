// Package roster maps uploaded participant sheets onto participants.
//
// Sheets arrive as CSV exported from whatever spreadsheet an organiser
// used, so column headers are matched loosely: trimmed, lower-cased, and
// compared against a list of common synonyms.
package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ISTE-SAL/InGress/internal/model"
)

// ErrNoHeader is returned for an empty upload.
var ErrNoHeader = errors.New("roster has no header row")

var (
	nameHeaders = []string{
		"name", "full name", "student name", "student full name",
		"participant name", "candidate name",
	}
	enrollmentHeaders = []string{
		"enrollment", "enrollment no", "enrollment number", "roll no",
		"roll number", "reg no", "registration number",
	}
	emailHeaders = []string{
		"email", "student email", "email id", "contact email",
	}
)

// Result is the outcome of parsing one sheet.
type Result struct {
	Participants []model.Participant
	Skipped      int
}

// Parse reads a CSV sheet. Rows without a name or enrollment are skipped
// and counted. Returned participants carry no ids.
func Parse(r io.Reader) (*Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoHeader
		}
		return nil, fmt.Errorf("read roster header: %w", err)
	}
	cols := columnIndex(header)
	nameCol := lookup(cols, nameHeaders)
	enrollmentCol := lookup(cols, enrollmentHeaders)
	emailCol := lookup(cols, emailHeaders)

	res := &Result{}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read roster row: %w", err)
		}
		if blank(rec) {
			continue
		}
		name := field(rec, nameCol)
		enrollment := field(rec, enrollmentCol)
		if name == "" || enrollment == "" {
			res.Skipped++
			continue
		}
		res.Participants = append(res.Participants, model.Participant{
			Name:       name,
			Enrollment: enrollment,
			Email:      strings.ToLower(field(rec, emailCol)),
		})
	}
	return res, nil
}

func columnIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := cols[key]; !dup {
			cols[key] = i
		}
	}
	return cols
}

// lookup returns the first synonym present in the header, in synonym order.
func lookup(cols map[string]int, synonyms []string) int {
	for _, s := range synonyms {
		if i, ok := cols[s]; ok {
			return i
		}
	}
	return -1
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
