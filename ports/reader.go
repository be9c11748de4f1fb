package ports

import (
	"context"

	"goboot/domain/dataset"
)

// DatasetReaderPort loads tabular source data into a dataset. Column
// kinds are resolved at this boundary; downstream code never re-infers
// them.
type DatasetReaderPort interface {
	// Read loads the named source (file path or logical name) into a
	// dataset with every column's kind resolved.
	Read(ctx context.Context, source string) (*dataset.Dataset, error)

	// Extensions lists the file extensions this reader accepts,
	// lowercase with leading dot.
	Extensions() []string
}
