package reader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/common"
	"github.com/xitongsys/parquet-go/parquet"
	preader "github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/source"

	"catalogflow/logger"
	"catalogflow/models"
)

// ParquetOpener opens parquet files from the local filesystem or, for
// s3:// paths, from S3.
type ParquetOpener struct {
	// BatchSize is the number of rows per batch. Zero means DefaultBatchSize.
	BatchSize int
	// Parallelism is handed to the parquet column reader.
	Parallelism int64
	// S3 serves s3:// paths. When nil those paths are unavailable.
	S3 *S3Source
}

// Open opens path and reads its footer. Missing or unreadable files fail with
// models.ErrSourceUnavailable.
func (o *ParquetOpener) Open(ctx context.Context, path string) (BatchReader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		pf  source.ParquetFile
		err error
	)
	if IsS3Path(path) {
		if o.S3 == nil {
			return nil, fmt.Errorf("%w: %s: s3 storage is not configured", models.ErrSourceUnavailable, path)
		}
		pf, err = o.S3.Fetch(ctx, path)
		if err != nil {
			return nil, err
		}
	} else {
		if _, statErr := os.Stat(path); statErr != nil {
			return nil, fmt.Errorf("%w: %s: %v", models.ErrSourceUnavailable, path, statErr)
		}
		pf, err = local.NewLocalFileReader(path)
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %v", models.ErrSourceUnavailable, path, err)
		}
	}

	np := o.Parallelism
	if np <= 0 {
		np = 1
	}
	batchSize := o.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return newParquetReader(path, pf, np, batchSize)
}

type parquetReader struct {
	path      string
	file      source.ParquetFile
	pr        *preader.ParquetReader
	schema    Schema
	metadata  map[string]string
	total     int64
	read      int64
	batchSize int64
	closed    bool
	log       *logger.Entry
}

func newParquetReader(path string, pf source.ParquetFile, np int64, batchSize int) (*parquetReader, error) {
	pr, err := preader.NewParquetColumnReader(pf, np)
	if err != nil {
		_ = pf.Close()
		return nil, fmt.Errorf("%w: read parquet footer %s: %v", models.ErrSourceUnavailable, path, err)
	}

	schema, err := parquetSchema(pr)
	if err != nil {
		pr.ReadStop()
		_ = pf.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	metadata := make(map[string]string)
	if pr.Footer != nil {
		for _, kv := range pr.Footer.KeyValueMetadata {
			if kv == nil || kv.Value == nil {
				continue
			}
			metadata[kv.Key] = *kv.Value
		}
	}

	r := &parquetReader{
		path:      path,
		file:      pf,
		pr:        pr,
		schema:    schema,
		metadata:  metadata,
		total:     pr.GetNumRows(),
		batchSize: int64(batchSize),
		log: logger.GetLogger().WithComponent("parquet_reader").WithFields(logger.Fields{
			"path": path,
		}),
	}
	r.log.WithFields(logger.Fields{
		"rows":    r.total,
		"columns": len(schema),
	}).Debug("opened parquet source")
	return r, nil
}

// parquetSchema maps the leaf columns of a flat parquet schema to Fields.
// Leaves appear in the same order as the reader's value columns, which is the
// index ReadColumnByIndex expects.
func parquetSchema(pr *preader.ParquetReader) (Schema, error) {
	sh := pr.SchemaHandler
	if sh == nil || len(sh.SchemaElements) == 0 {
		return nil, fmt.Errorf("%w: parquet file has no schema", models.ErrSchemaMismatch)
	}
	schema := make(Schema, 0, len(sh.ValueColumns))
	for _, el := range sh.SchemaElements[1:] {
		if el.GetNumChildren() > 0 {
			return nil, fmt.Errorf("%w: nested column %q is not supported", models.ErrSchemaMismatch, el.GetName())
		}
		name := el.GetName()
		if i := strings.LastIndex(name, common.PAR_GO_PATH_DELIMITER); i >= 0 {
			name = name[i+len(common.PAR_GO_PATH_DELIMITER):]
		}
		schema = append(schema, Field{
			Name: strings.ToLower(name),
			Type: columnTypeOf(el),
		})
	}
	if len(schema) != len(sh.ValueColumns) {
		return nil, fmt.Errorf("%w: %d leaf columns but %d value columns", models.ErrSchemaMismatch, len(schema), len(sh.ValueColumns))
	}
	return schema, nil
}

func columnTypeOf(el *parquet.SchemaElement) ColumnType {
	if el.Type == nil {
		return ColumnUnknown
	}
	switch el.GetType() {
	case parquet.Type_INT64:
		return ColumnInt64
	case parquet.Type_INT32:
		return ColumnInt32
	case parquet.Type_BYTE_ARRAY, parquet.Type_FIXED_LEN_BYTE_ARRAY:
		return ColumnString
	case parquet.Type_DOUBLE:
		return ColumnFloat64
	case parquet.Type_BOOLEAN:
		return ColumnBool
	default:
		return ColumnUnknown
	}
}

func (r *parquetReader) Schema() Schema              { return r.schema }
func (r *parquetReader) Metadata() map[string]string { return copyMetadata(r.metadata) }
func (r *parquetReader) NumRows() int64              { return r.total }

func (r *parquetReader) NextBatch(ctx context.Context) (*Batch, error) {
	if r.closed {
		return nil, errors.New("parquet reader is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.read >= r.total {
		return nil, io.EOF
	}

	n := r.batchSize
	if remaining := r.total - r.read; remaining < n {
		n = remaining
	}

	batch := &Batch{
		Columns:  make([]Column, len(r.schema)),
		Metadata: r.metadata,
	}
	for i, field := range r.schema {
		values, _, _, err := r.pr.ReadColumnByIndex(int64(i), n)
		if err != nil {
			return nil, fmt.Errorf("read column %q of %s: %w", field.Name, r.path, err)
		}
		col, err := toColumn(field, values)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", r.path, err)
		}
		batch.Columns[i] = col
	}
	r.read += n
	return batch, nil
}

func (r *parquetReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.pr.ReadStop()
	return r.file.Close()
}

// toColumn converts the loosely typed values returned by the parquet column
// reader into a typed vector. Null values become the zero value.
func toColumn(field Field, values []interface{}) (Column, error) {
	col := Column{Name: field.Name, Type: field.Type}
	switch field.Type {
	case ColumnInt64:
		col.Int64s = make([]int64, len(values))
		for i, v := range values {
			if v == nil {
				continue
			}
			x, ok := v.(int64)
			if !ok {
				return col, unexpectedValue(field, v)
			}
			col.Int64s[i] = x
		}
	case ColumnInt32:
		col.Int32s = make([]int32, len(values))
		for i, v := range values {
			if v == nil {
				continue
			}
			x, ok := v.(int32)
			if !ok {
				return col, unexpectedValue(field, v)
			}
			col.Int32s[i] = x
		}
	case ColumnString:
		col.Strings = make([]string, len(values))
		for i, v := range values {
			switch x := v.(type) {
			case nil:
			case string:
				col.Strings[i] = x
			case []byte:
				col.Strings[i] = string(x)
			default:
				return col, unexpectedValue(field, v)
			}
		}
	case ColumnFloat64:
		col.Float64s = make([]float64, len(values))
		for i, v := range values {
			if v == nil {
				continue
			}
			x, ok := v.(float64)
			if !ok {
				return col, unexpectedValue(field, v)
			}
			col.Float64s[i] = x
		}
	case ColumnBool:
		col.Bools = make([]bool, len(values))
		for i, v := range values {
			if v == nil {
				continue
			}
			x, ok := v.(bool)
			if !ok {
				return col, unexpectedValue(field, v)
			}
			col.Bools[i] = x
		}
	default:
		return col, fmt.Errorf("%w: column %q has an unsupported type", models.ErrSchemaMismatch, field.Name)
	}
	return col, nil
}

func unexpectedValue(field Field, v interface{}) error {
	return fmt.Errorf("%w: column %q declared %s but holds %T", models.ErrMalformedBatch, field.Name, field.Type, v)
}
