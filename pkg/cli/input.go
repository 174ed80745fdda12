package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ekaya-inc/contact-reconciler/pkg/jsonutil"
	"github.com/ekaya-inc/contact-reconciler/pkg/models"
)

// rawRecord is the wire shape of one staging row. Extracts from CRM systems
// deliver numbers and booleans in nominally string fields, so scalar values
// are decoded flexibly.
type rawRecord struct {
	SourceRowID     json.RawMessage            `json:"source_row_id"`
	ExternalID      json.RawMessage            `json:"external_id"`
	Payload         map[string]json.RawMessage `json:"payload"`
	AlternateEmails []string                   `json:"alternate_emails"`
	AlternatePhones []string                   `json:"alternate_phones"`
	SourceDeleted   bool                       `json:"source_deleted"`
}

// readRecords parses a JSON-lines staging extract. Blank lines are skipped;
// a malformed line fails the whole read so a truncated extract is caught
// before any row is processed.
func readRecords(path string) ([]*models.ImportRecord, error) {
	var reader io.Reader
	if path == "-" {
		reader = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open input file: %w", err)
		}
		defer f.Close()
		reader = f
	}

	var records []*models.ImportRecord
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var raw rawRecord
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			return nil, fmt.Errorf("failed to parse record on line %d: %w", lineNo, err)
		}

		sourceRowID := jsonutil.FlexibleStringValue(raw.SourceRowID)
		if sourceRowID == "" {
			sourceRowID = fmt.Sprintf("line-%d", lineNo)
		}

		records = append(records, &models.ImportRecord{
			SourceRowID:     sourceRowID,
			ExternalID:      jsonutil.FlexibleStringValue(raw.ExternalID),
			Payload:         jsonutil.FlexibleStringMap(raw.Payload),
			AlternateEmails: raw.AlternateEmails,
			AlternatePhones: raw.AlternatePhones,
			SourceDeleted:   raw.SourceDeleted,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	return records, nil
}

// printJSON writes a summary or record to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
