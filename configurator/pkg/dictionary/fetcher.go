// Package dictionary fetches the legal values for taxonomy fields from
// spreadsheet CSV exports served over HTTP.
package dictionary

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/adlabs/taxonomy-wizard/utils/pkg/retry"
)

const defaultRequestTimeout = 30 * time.Second

type Config struct {
	Logger     *slog.Logger
	HTTPClient *http.Client
	Retry      retry.Config
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Fetcher downloads field dictionaries as CSV.
type Fetcher struct {
	log    *slog.Logger
	client *http.Client
	retry  retry.Config
}

func NewFetcher(cfg Config) (*Fetcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultRequestTimeout}
	}
	r := cfg.Retry
	if r.MaxAttempts == 0 {
		r = retry.DefaultConfig()
	}
	return &Fetcher{
		log:    cfg.Logger,
		client: client,
		retry:  r,
	}, nil
}

// FetchValues downloads one field's dictionary and returns its first-column
// values, blank rows dropped. The sheet and cell range are passed through as
// query parameters to the export endpoint.
func (f *Fetcher) FetchValues(ctx context.Context, dictURL, sheet, cellRange string) ([]string, error) {
	if dictURL == "" {
		return nil, errors.New("dictionary url is empty")
	}

	u, err := url.Parse(dictURL)
	if err != nil {
		return nil, fmt.Errorf("invalid dictionary url %q: %w", dictURL, err)
	}
	q := u.Query()
	if sheet != "" {
		q.Set("sheet", sheet)
	}
	if cellRange != "" {
		q.Set("range", cellRange)
	}
	u.RawQuery = q.Encode()

	var values []string
	err = retry.Do(ctx, f.retry, func() error {
		var fetchErr error
		values, fetchErr = f.fetchOnce(ctx, u.String())
		return fetchErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch dictionary from %s: %w", dictURL, err)
	}

	f.log.Debug("dictionary: values fetched", "url", dictURL, "sheet", sheet, "count", len(values))
	return values, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, fullURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build dictionary request: %w", err)
	}
	req.Header.Set("Accept", "text/csv")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &retry.StatusError{Code: resp.StatusCode, Reason: strings.TrimSpace(string(body))}
	}

	reader := csv.NewReader(resp.Body)
	reader.FieldsPerRecord = -1

	var values []string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse dictionary csv: %w", err)
		}
		if len(record) == 0 {
			continue
		}
		value := strings.TrimSpace(record[0])
		if value == "" {
			continue
		}
		values = append(values, value)
	}
	return values, nil
}
