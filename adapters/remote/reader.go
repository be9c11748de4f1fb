package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"goboot/domain/core"
	"goboot/domain/dataset"
	"goboot/internal"
	"goboot/ports"

	"github.com/tidwall/gjson"
)

// Options configure how remote JSON sources are fetched and decoded.
type Options struct {
	// DataPath is the gjson path to the record array inside the response
	// body. Empty means the body itself is the array.
	DataPath string

	// AuthToken is sent as a bearer token when set.
	AuthToken string

	// Headers are added to every request.
	Headers map[string]string

	// PageParam names the 1-based page query parameter. Empty disables
	// paging; otherwise pages are fetched until one comes back empty or
	// MaxPages is reached.
	PageParam string
	MaxPages  int

	Timeout time.Duration
}

// Reader fetches JSON record arrays over HTTP and decodes them into
// datasets. Sources that are not http(s) URLs are handed to the file
// reader, so one port serves both URLs and local files.
type Reader struct {
	files  ports.DatasetReaderPort
	client *http.Client
	opts   Options
	logger *internal.Logger
}

// NewReader wraps a file reader with HTTP source support. files may be
// nil when only remote sources are served.
func NewReader(files ports.DatasetReaderPort, opts Options, logger *internal.Logger) *Reader {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Reader{
		files:  files,
		client: &http.Client{Timeout: opts.Timeout},
		opts:   opts,
		logger: logger,
	}
}

// Extensions lists the file extensions the wrapped file reader accepts.
func (r *Reader) Extensions() []string {
	if r.files == nil {
		return nil
	}
	return r.files.Extensions()
}

// Read fetches the source URL and decodes its JSON records into a
// dataset. Non-URL sources delegate to the wrapped file reader.
func (r *Reader) Read(ctx context.Context, source string) (*dataset.Dataset, error) {
	if !isHTTPSource(source) {
		if r.files == nil {
			return nil, core.NewInvalidInputError("source",
				fmt.Sprintf("%q is not a URL and no file reader is configured", source))
		}
		return r.files.Read(ctx, source)
	}

	base, err := url.Parse(source)
	if err != nil {
		return nil, core.NewInvalidInputError("source", fmt.Sprintf("malformed URL: %v", err))
	}

	start := time.Now()
	var records []gjson.Result
	pages := 0
	for page := 1; page <= r.opts.MaxPages; page++ {
		pageRecords, err := r.fetchPage(ctx, base, page)
		if err != nil {
			return nil, err
		}
		pages++
		records = append(records, pageRecords...)
		if r.opts.PageParam == "" || len(pageRecords) == 0 {
			break
		}
	}

	ds, err := r.toDataset(records)
	if err != nil {
		return nil, err
	}

	r.logger.Info("Fetched %s%s (%d rows, %d columns, %d pages) in %.2fms",
		base.Host, base.Path, ds.Rows(), ds.ColumnCount(), pages,
		float64(time.Since(start).Nanoseconds())/1e6)
	return ds, nil
}

// fetchPage requests one page and extracts its record array.
func (r *Reader) fetchPage(ctx context.Context, base *url.URL, page int) ([]gjson.Result, error) {
	req, err := r.buildRequest(ctx, base, page)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrCancelled, ctx.Err())
		}
		return nil, fmt.Errorf("request to %s failed: %w", base.Host, err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", base.Host, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", core.ErrNotFound, base.String())
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source %s returned status %d: %s",
			base.Host, resp.StatusCode, trimBody(body))
	}

	return r.extractRecords(body)
}

// buildRequest assembles one page's GET request with paging, headers and
// authentication applied.
func (r *Reader) buildRequest(ctx context.Context, base *url.URL, page int) (*http.Request, error) {
	u := *base
	if r.opts.PageParam != "" {
		q := u.Query()
		q.Set(r.opts.PageParam, strconv.Itoa(page))
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	for k, v := range r.opts.Headers {
		req.Header.Set(k, v)
	}
	if r.opts.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+r.opts.AuthToken)
	}
	return req, nil
}

// extractRecords locates the record array in a response body. A single
// object is treated as a one-row array.
func (r *Reader) extractRecords(body []byte) ([]gjson.Result, error) {
	var result gjson.Result
	if r.opts.DataPath == "" {
		result = gjson.ParseBytes(body)
	} else {
		result = gjson.GetBytes(body, r.opts.DataPath)
		if !result.Exists() {
			return nil, core.NewInvalidInputError("data_path",
				fmt.Sprintf("path %q not found in response", r.opts.DataPath))
		}
	}

	if result.IsArray() {
		return result.Array(), nil
	}
	if result.IsObject() {
		return []gjson.Result{result}, nil
	}
	return nil, core.NewInvalidInputError("data_path", "response is not a JSON array or object")
}

// toDataset converts JSON records into a typed dataset. Fields keep the
// order they first appear in; rows missing a field get an empty cell.
// Kind resolution happens in dataset.InferColumn, same as file ingestion.
func (r *Reader) toDataset(records []gjson.Result) (*dataset.Dataset, error) {
	if len(records) == 0 {
		return nil, core.NewInvalidInputError("source", "no records in response")
	}

	var keys []string
	seen := make(map[string]bool)
	rows := make([]map[string]string, len(records))
	for i, rec := range records {
		row := make(map[string]string)
		rec.ForEach(func(k, v gjson.Result) bool {
			name := k.String()
			if !seen[name] {
				seen[name] = true
				keys = append(keys, name)
			}
			row[name] = cellString(v)
			return true
		})
		rows[i] = row
	}
	if len(keys) == 0 {
		return nil, core.NewInvalidInputError("source", "records carry no fields")
	}

	columns := make([]dataset.Column, len(keys))
	for i, key := range keys {
		raw := make([]string, len(records))
		for rowIdx, row := range rows {
			raw[rowIdx] = row[key]
		}
		columns[i] = dataset.InferColumn(key, raw)
	}
	return dataset.New(columns...)
}

// cellString renders one JSON value as a raw cell. Numbers keep their
// document text so no precision is lost before numeric parsing; nested
// structures become opaque labels.
func cellString(v gjson.Result) string {
	switch v.Type {
	case gjson.Null:
		return ""
	case gjson.True:
		return "true"
	case gjson.False:
		return "false"
	case gjson.Number:
		return v.Raw
	case gjson.String:
		return v.String()
	default:
		return v.Raw
	}
}

func isHTTPSource(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// trimBody bounds an error payload for log and error messages.
func trimBody(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
