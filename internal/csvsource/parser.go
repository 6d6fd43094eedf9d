// Package csvsource reads the desired-state CSV input into []model.Row. It
// is the "Row provider" collaborator: it yields an ordered sequence of rows
// validated against per-type requirements, and otherwise treats attributes
// as opaque strings for the rest of the engine to interpret.
package csvsource

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	recerr "github.com/DoesN0tCompute/bamreconciler/internal/errors"
	"github.com/DoesN0tCompute/bamreconciler/internal/model"
)

// scaffoldColumns are the fixed columns every row carries regardless of
// object_type; every other header becomes a type-specific attribute.
var scaffoldColumns = map[string]struct{}{
	"row_id": {}, "object_type": {}, "action": {}, "config": {}, "bam_id": {}, "version": {},
}

// requiredAttrs lists, per object type, the attribute(s) that must be
// non-empty after whitespace stripping — mirroring the original importer's
// per-row-type required-field validation.
var requiredAttrs = map[model.ObjectType][]string{
	model.ObjectBlock:        {"cidr"},
	model.ObjectBlock6:       {"cidr"},
	model.ObjectNetwork:      {"cidr"},
	model.ObjectNetwork6:     {"cidr"},
	model.ObjectAddress:      {"address"},
	model.ObjectAddress6:     {"address"},
	model.ObjectZone:         {"zone_name"},
	model.ObjectHostRecord:   {"name"},
	model.ObjectMACAddress:   {"address"},
	model.ObjectLocation:     {"code"},
	model.ObjectDeviceType:   {"name"},
	model.ObjectDevice:       {"name"},
	model.ObjectTag:          {"name"},
}

// recordNameFields lists, per object type, attributes normalized with the
// apex-record rule (empty/missing becomes "@").
var recordNameFields = map[model.ObjectType]string{
	model.ObjectHostRecord:         "name",
	model.ObjectExternalHostRecord: "name",
	model.ObjectAliasRecord:        "name",
	model.ObjectMXRecord:           "name",
	model.ObjectSRVRecord:          "name",
	model.ObjectTXTRecord:          "name",
	model.ObjectGenericRecord:      "name",
}

// RowError reports a single malformed row by its 1-indexed CSV line number
// (including the header), so a caller can surface all parse errors at once
// rather than failing on the first.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Parse reads a header-plus-data CSV from r and returns the decoded rows.
// Malformed rows are collected into errs rather than aborting the whole
// parse, so a caller can report every problem in one pass; rows is nil if
// the header itself is invalid.
func Parse(r io.Reader) (rows []model.Row, errs []error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = false

	header, err := reader.Read()
	if err != nil {
		return nil, []error{recerr.Wrap(recerr.KindValidation, err, "read csv header")}
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(h)
	}

	seenRowIDs := map[string]int{}
	line := 1
	for {
		line++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			errs = append(errs, &RowError{Line: line, Err: err})
			continue
		}
		row, err := parseRecord(columns, record, line, seenRowIDs)
		if err != nil {
			errs = append(errs, &RowError{Line: line, Err: err})
			continue
		}
		rows = append(rows, row)
	}
	return rows, errs
}

func parseRecord(columns, record []string, line int, seenRowIDs map[string]int) (model.Row, error) {
	fields := make(map[string]string, len(columns))
	for i, col := range columns {
		if col == "" {
			continue
		}
		var v string
		if i < len(record) {
			v = strings.TrimSpace(record[i])
		}
		fields[col] = v
	}

	rowID := fields["row_id"]
	if rowID == "" {
		return nil, recerr.New(recerr.KindValidation, "row_id is required")
	}
	if prior, dup := seenRowIDs[rowID]; dup {
		return nil, recerr.New(recerr.KindValidation, fmt.Sprintf("duplicate row_id %q (first seen on line %d)", rowID, prior))
	}
	seenRowIDs[rowID] = line

	objectType := model.ObjectType(fields["object_type"])
	if objectType == "" {
		return nil, recerr.New(recerr.KindValidation, "object_type is required").WithDetail("row_id", rowID)
	}

	action := model.Action(fields["action"])
	switch action {
	case model.ActionCreate, model.ActionUpdate, model.ActionDelete:
	default:
		return nil, recerr.New(recerr.KindValidation, "unknown action: "+fields["action"]).WithDetail("row_id", rowID)
	}

	config := fields["config"]
	attrs := map[string]string{}
	for col, v := range fields {
		if _, reserved := scaffoldColumns[col]; reserved {
			continue
		}
		attrs[col] = v
	}

	if nameAttr, ok := recordNameFields[objectType]; ok {
		attrs[nameAttr] = normalizeApexName(attrs[nameAttr])
	}

	for _, attr := range attrs {
		if err := validateEncoding(attr); err != nil {
			return nil, recerr.Wrap(recerr.KindValidation, err, "invalid attribute encoding").WithDetail("row_id", rowID)
		}
	}

	for _, required := range requiredAttrs[objectType] {
		if action == model.ActionDelete {
			continue // deletes identify the resource by natural key/bam_id alone
		}
		if attrs[required] == "" {
			return nil, recerr.New(recerr.KindValidation, fmt.Sprintf("%s is required for %s rows", required, objectType)).WithDetail("row_id", rowID)
		}
	}

	row := model.NewRow(objectType, rowID, action, config, attrs)
	if bamID := fields["bam_id"]; bamID != "" {
		id, err := strconv.ParseInt(bamID, 10, 64)
		if err != nil {
			return nil, recerr.Wrap(recerr.KindValidation, err, "bam_id must be an integer").WithDetail("row_id", rowID)
		}
		row.WithBamID(id)
	}
	return row, nil
}

// normalizeApexName maps an empty or "@"-less blank DNS record name to the
// zone-apex marker "@", matching the original importer's apex handling.
func normalizeApexName(name string) string {
	if name == "" {
		return "@"
	}
	return name
}

// validateEncoding rejects null bytes and control characters other than
// tab/newline/carriage-return, matching the original importer's name-field
// encoding guard.
func validateEncoding(v string) error {
	for _, r := range v {
		if r == 0 {
			return fmt.Errorf("value contains a null byte")
		}
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return fmt.Errorf("value contains control character (ASCII %d)", r)
		}
	}
	return nil
}
