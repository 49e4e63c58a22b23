package store

import (
	"github.com/apache/arrow-go/v18/arrow"
)

// tsUnit is the Arrow timestamp unit used for every *_at column. Using
// nanoseconds keeps the round trip exact against Go's time.Time, which is
// itself nanosecond-resolution (spec.md I4: "round trip modulo column-type
// coercions" -- the coercion here is losing each timestamp's original UTC
// offset, since Arrow only carries the absolute instant).
const tsUnit = arrow.Nanosecond

var tsType = &arrow.TimestampType{Unit: tsUnit, TimeZone: "UTC"}

// columns, in on-disk order. Matches queueitem.Item field-for-field per
// spec.md §3.3.
const (
	colUID         = "uid"
	colName        = "name"
	colReportType  = "report_type"
	colPayloadRef  = "payload_ref"
	colPriority    = "priority"
	colCreatedAt   = "created_at"
	colUpdatedAt   = "updated_at"
	colSubmittedAt = "submitted_at"
	colCompletedAt = "completed_at"
	colCancelledAt = "cancelled_at"
	colErrorAt     = "error_at"
	colRemoteJobID = "remote_job_id"
)

func tableSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: colUID, Type: arrow.BinaryTypes.String},
		{Name: colName, Type: arrow.BinaryTypes.String},
		{Name: colReportType, Type: arrow.BinaryTypes.String},
		{Name: colPayloadRef, Type: arrow.BinaryTypes.String},
		{Name: colPriority, Type: arrow.PrimitiveTypes.Int64},
		{Name: colCreatedAt, Type: tsType},
		{Name: colUpdatedAt, Type: tsType, Nullable: true},
		{Name: colSubmittedAt, Type: tsType, Nullable: true},
		{Name: colCompletedAt, Type: tsType, Nullable: true},
		{Name: colCancelledAt, Type: tsType, Nullable: true},
		{Name: colErrorAt, Type: tsType, Nullable: true},
		{Name: colRemoteJobID, Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	}, nil)
}
