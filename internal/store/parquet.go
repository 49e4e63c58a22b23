package store

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/macq/tomtom-priority-queue/internal/queueitem"
)

var alloc = memory.NewGoAllocator()

// writeTable serializes rows to a single-file Parquet table at path, via a
// temp-file-then-rename so a reader never observes a half-written file --
// the same atomic-commit discipline internal/payloadstore uses for blobs.
func writeTable(path string, rows []*queueitem.Item) error {
	schema := tableSchema()
	b := array.NewRecordBuilder(alloc, schema)
	defer b.Release()

	for _, item := range rows {
		b.Field(0).(*array.StringBuilder).Append(item.UID)
		b.Field(1).(*array.StringBuilder).Append(item.Name)
		b.Field(2).(*array.StringBuilder).Append(string(item.ReportType))
		b.Field(3).(*array.StringBuilder).Append(item.PayloadRef)
		b.Field(4).(*array.Int64Builder).Append(item.Priority)
		appendTimestamp(b.Field(5).(*array.TimestampBuilder), &item.CreatedAt)
		appendTimestamp(b.Field(6).(*array.TimestampBuilder), item.UpdatedAt)
		appendTimestamp(b.Field(7).(*array.TimestampBuilder), item.SubmittedAt)
		appendTimestamp(b.Field(8).(*array.TimestampBuilder), item.CompletedAt)
		appendTimestamp(b.Field(9).(*array.TimestampBuilder), item.CancelledAt)
		appendTimestamp(b.Field(10).(*array.TimestampBuilder), item.ErrorAt)
		if item.RemoteJobID != nil {
			b.Field(11).(*array.Int64Builder).Append(*item.RemoteJobID)
		} else {
			b.Field(11).(*array.Int64Builder).AppendNull()
		}
	}

	rec := b.NewRecord()
	defer rec.Release()

	tmp, err := os.CreateTemp(filepath.Dir(path), "db.*.parquet.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	writerProps := parquet.NewWriterProperties(parquet.WithCompression(parquet.Codecs.Snappy))
	arrowProps := pqarrow.DefaultWriterProps()

	writer, err := pqarrow.NewFileWriter(schema, tmp, writerProps, arrowProps)
	if err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := writer.Write(rec); err != nil {
		writer.Close()
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := writer.Close(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, path)
}

// readTable deserializes the Parquet table at path back into queue items.
func readTable(path string) ([]*queueitem.Item, error) {
	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, err
	}
	defer rdr.Close()

	fileReader, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{}, alloc)
	if err != nil {
		return nil, err
	}

	tbl, err := fileReader.ReadTable(context.Background())
	if err != nil {
		return nil, err
	}
	defer tbl.Release()

	return tableToItems(tbl)
}

func tableToItems(tbl arrow.Table) ([]*queueitem.Item, error) {
	n := int(tbl.NumRows())
	items := make([]*queueitem.Item, 0, n)

	cols := make([]*columnReader, tbl.NumCols())
	for i := 0; i < int(tbl.NumCols()); i++ {
		cols[i] = newColumnReader(tbl.Column(i))
	}

	for row := 0; row < n; row++ {
		item := &queueitem.Item{
			UID:         cols[0].stringAt(row),
			Name:        cols[1].stringAt(row),
			ReportType:  queueitem.ReportType(cols[2].stringAt(row)),
			PayloadRef:  cols[3].stringAt(row),
			Priority:    cols[4].int64At(row),
			CreatedAt:   *cols[5].timeAt(row),
			UpdatedAt:   cols[6].timeAt(row),
			SubmittedAt: cols[7].timeAt(row),
			CompletedAt: cols[8].timeAt(row),
			CancelledAt: cols[9].timeAt(row),
			ErrorAt:     cols[10].timeAt(row),
			RemoteJobID: cols[11].int64PtrAt(row),
		}
		items = append(items, item)
	}
	return items, nil
}

// columnReader flattens a chunked Arrow column into simple random-access
// accessors, since the whole table is always read in one shot here (the
// queue table is small -- at most a few thousand rows).
type columnReader struct {
	chunks  []arrow.Array
	offsets []int
}

func newColumnReader(col *arrow.Column) *columnReader {
	cr := &columnReader{}
	offset := 0
	for _, chunk := range col.Data().Chunks() {
		cr.chunks = append(cr.chunks, chunk)
		cr.offsets = append(cr.offsets, offset)
		offset += chunk.Len()
	}
	return cr
}

func (c *columnReader) locate(row int) (arrow.Array, int) {
	for i := len(c.offsets) - 1; i >= 0; i-- {
		if row >= c.offsets[i] {
			return c.chunks[i], row - c.offsets[i]
		}
	}
	return nil, 0
}

func (c *columnReader) stringAt(row int) string {
	chunk, idx := c.locate(row)
	return chunk.(*array.String).Value(idx)
}

func (c *columnReader) int64At(row int) int64 {
	chunk, idx := c.locate(row)
	return chunk.(*array.Int64).Value(idx)
}

func (c *columnReader) int64PtrAt(row int) *int64 {
	chunk, idx := c.locate(row)
	arr := chunk.(*array.Int64)
	if arr.IsNull(idx) {
		return nil
	}
	v := arr.Value(idx)
	return &v
}

func (c *columnReader) timeAt(row int) *time.Time {
	chunk, idx := c.locate(row)
	arr := chunk.(*array.Timestamp)
	if arr.IsNull(idx) {
		return nil
	}
	t := arr.Value(idx).ToTime(tsUnit)
	return &t
}

func appendTimestamp(b *array.TimestampBuilder, t *time.Time) {
	if t == nil {
		b.AppendNull()
		return
	}
	b.Append(arrow.Timestamp(t.UnixNano()))
}
