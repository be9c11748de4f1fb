package dataset

import (
	"fmt"

	"goboot/domain/core"
)

// Kind is the closed set of column variants. A column's kind is resolved
// exactly once, at the ingestion boundary; nothing downstream re-inspects
// raw values to decide how to treat them.
type Kind string

const (
	// KindNumeric columns hold float64 values (missing cells are NaN).
	KindNumeric Kind = "numeric"
	// KindCategorical columns hold string labels (levels).
	KindCategorical Kind = "categorical"
	// KindIdentifier columns hold opaque row identity labels; they are
	// carried through resampling but never analyzed.
	KindIdentifier Kind = "identifier"
)

// Column is one named, typed column. Exactly one of Floats or Labels is
// populated, matching Kind.
type Column struct {
	Key    core.ColumnKey `json:"key"`
	Kind   Kind           `json:"kind"`
	Floats []float64      `json:"floats,omitempty"`
	Labels []string       `json:"labels,omitempty"`
}

// NumericColumn builds a numeric column.
func NumericColumn(key string, values []float64) Column {
	return Column{Key: core.ColumnKey(key), Kind: KindNumeric, Floats: values}
}

// CategoricalColumn builds a categorical column.
func CategoricalColumn(key string, labels []string) Column {
	return Column{Key: core.ColumnKey(key), Kind: KindCategorical, Labels: labels}
}

// IdentifierColumn builds an identifier column.
func IdentifierColumn(key string, labels []string) Column {
	return Column{Key: core.ColumnKey(key), Kind: KindIdentifier, Labels: labels}
}

// Len returns the column's row count.
func (c Column) Len() int {
	if c.Kind == KindNumeric {
		return len(c.Floats)
	}
	return len(c.Labels)
}

func (c Column) validate(rows int) error {
	if c.Key == "" {
		return core.NewInvalidInputError("column", "key cannot be empty")
	}
	switch c.Kind {
	case KindNumeric:
		if c.Labels != nil {
			return core.NewInvalidInputError(c.Key.String(), "numeric column carries labels")
		}
	case KindCategorical, KindIdentifier:
		if c.Floats != nil {
			return core.NewInvalidInputError(c.Key.String(), fmt.Sprintf("%s column carries floats", c.Kind))
		}
	default:
		return core.NewInvalidInputError(c.Key.String(), fmt.Sprintf("unknown column kind %q", c.Kind))
	}
	if c.Len() != rows {
		return core.NewInvalidInputError(c.Key.String(),
			fmt.Sprintf("column has %d rows, dataset has %d", c.Len(), rows))
	}
	return nil
}

// Dataset is an immutable, column-oriented table. Once constructed it is
// never mutated; resampling materializes new datasets instead.
type Dataset struct {
	columns []Column
	index   map[core.ColumnKey]int
	rows    int
}

// New constructs a dataset from typed columns. All columns must share one
// row count and carry unique keys.
func New(columns ...Column) (*Dataset, error) {
	if len(columns) == 0 {
		return nil, core.NewInvalidInputError("dataset", "at least one column required")
	}

	rows := columns[0].Len()
	index := make(map[core.ColumnKey]int, len(columns))
	for i, col := range columns {
		if err := col.validate(rows); err != nil {
			return nil, err
		}
		if _, dup := index[col.Key]; dup {
			return nil, core.NewInvalidInputError(col.Key.String(), "duplicate column key")
		}
		index[col.Key] = i
	}

	// Defensive copy so caller-held slices cannot mutate the dataset
	owned := make([]Column, len(columns))
	for i, col := range columns {
		owned[i] = copyColumn(col)
	}

	return &Dataset{columns: owned, index: index, rows: rows}, nil
}

func copyColumn(c Column) Column {
	out := Column{Key: c.Key, Kind: c.Kind}
	if c.Floats != nil {
		out.Floats = append([]float64(nil), c.Floats...)
	}
	if c.Labels != nil {
		out.Labels = append([]string(nil), c.Labels...)
	}
	return out
}

// Rows returns the row count.
func (d *Dataset) Rows() int { return d.rows }

// ColumnCount returns the number of columns.
func (d *Dataset) ColumnCount() int { return len(d.columns) }

// Keys returns column keys in declaration order.
func (d *Dataset) Keys() []core.ColumnKey {
	keys := make([]core.ColumnKey, len(d.columns))
	for i, col := range d.columns {
		keys[i] = col.Key
	}
	return keys
}

// Column returns a copy of the named column.
func (d *Dataset) Column(key string) (Column, error) {
	i, ok := d.index[core.ColumnKey(key)]
	if !ok {
		return Column{}, fmt.Errorf("%w: %s", core.ErrColumnNotFound, key)
	}
	return copyColumn(d.columns[i]), nil
}

// NumericColumn returns a copy of the named column's float values.
func (d *Dataset) NumericColumn(key string) ([]float64, error) {
	i, ok := d.index[core.ColumnKey(key)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrColumnNotFound, key)
	}
	col := d.columns[i]
	if col.Kind != KindNumeric {
		return nil, core.NewInvalidInputError(key, fmt.Sprintf("column is %s, not numeric", col.Kind))
	}
	return append([]float64(nil), col.Floats...), nil
}

// Labels returns a copy of the named column's string labels.
func (d *Dataset) Labels(key string) ([]string, error) {
	i, ok := d.index[core.ColumnKey(key)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrColumnNotFound, key)
	}
	col := d.columns[i]
	if col.Kind == KindNumeric {
		return nil, core.NewInvalidInputError(key, "column is numeric, not label-valued")
	}
	return append([]string(nil), col.Labels...), nil
}

// Materialize builds a new dataset whose row r is this dataset's row
// indices[r]. This realizes one resample's actual row content; the source
// dataset is untouched.
func (d *Dataset) Materialize(indices []int) (*Dataset, error) {
	if len(indices) == 0 {
		return nil, core.NewInvalidInputError("indices", "resample cannot be empty")
	}
	for _, idx := range indices {
		if idx < 0 || idx >= d.rows {
			return nil, core.NewInvalidInputError("indices",
				fmt.Sprintf("row index %d outside [0, %d)", idx, d.rows))
		}
	}

	columns := make([]Column, len(d.columns))
	for i, col := range d.columns {
		out := Column{Key: col.Key, Kind: col.Kind}
		if col.Kind == KindNumeric {
			out.Floats = make([]float64, len(indices))
			for r, idx := range indices {
				out.Floats[r] = col.Floats[idx]
			}
		} else {
			out.Labels = make([]string, len(indices))
			for r, idx := range indices {
				out.Labels[r] = col.Labels[idx]
			}
		}
		columns[i] = out
	}

	index := make(map[core.ColumnKey]int, len(columns))
	for i, col := range columns {
		index[col.Key] = i
	}
	return &Dataset{columns: columns, index: index, rows: len(indices)}, nil
}

// Fingerprint returns the deterministic content hash of the dataset, used
// for run reproducibility bookkeeping.
func (d *Dataset) Fingerprint() core.Hash {
	keys := make([]string, len(d.columns))
	var numeric [][]float64
	var labels [][]string
	for i, col := range d.columns {
		keys[i] = col.Key.String()
		if col.Kind == KindNumeric {
			numeric = append(numeric, col.Floats)
		} else {
			labels = append(labels, col.Labels)
		}
	}
	return core.ComputeDatasetHash(keys, d.rows, numeric, labels)
}
