// Package auditexport dumps every audit log entry matching a filter.
//
// Page one is fetched first to learn the total and to pin the upper time
// bound, so entries recorded during the export (its own requests included)
// don't shift later pages. The rest of pages are fetched by a pool of workers
// and written in page order as JSON lines.
package auditexport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/nkiryanov/authaudit/internal/logger"
	"github.com/nkiryanov/authaudit/internal/models"
)

const (
	defaultCountWorkers = 4 // Number of workers fetching pages
	defaultMaxAttempts  = 5 // Attempts per page while rate limited
)

type auditAPI interface {
	AuditLogs(ctx context.Context, filter models.AuditLogFilter) (models.AuditLogList, error)
}

// Exporter config with sensible defaults
type Config struct {
	// If not set than default is used
	Workers int

	// Entries per page, the largest page the API allows if not set
	PageSize int

	// If not set than default is used
	MaxAttempts int
}

type Result struct {
	Pages   int
	Entries int
}

type Exporter struct {
	api         auditAPI
	workers     int
	pageSize    int
	maxAttempts int
	logger      logger.Logger
}

func New(api auditAPI, cfg Config, l logger.Logger) *Exporter {
	setDefault := func(field *int, def int) {
		if *field <= 0 {
			*field = def
		}
	}
	setDefault(&cfg.Workers, defaultCountWorkers)
	setDefault(&cfg.PageSize, models.MaxAuditPageSize)
	setDefault(&cfg.MaxAttempts, defaultMaxAttempts)

	return &Exporter{
		api:         api,
		workers:     cfg.Workers,
		pageSize:    min(cfg.PageSize, models.MaxAuditPageSize),
		maxAttempts: cfg.MaxAttempts,
		logger:      l,
	}
}

// Export writes entries matching the filter to w, newest first, one JSON document per line
// Filter page and limit are ignored
func (e *Exporter) Export(ctx context.Context, filter models.AuditLogFilter, w io.Writer) (Result, error) {
	var res Result

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	filter.Page = 1
	filter.Limit = e.pageSize

	c := &consumer{
		countWorkers: e.workers,
		maxAttempts:  e.maxAttempts,
		api:          e.api,
		filter:       filter,
		logger:       e.logger,
	}

	first, err := c.fetch(ctx, 1)
	if err != nil {
		return res, err
	}

	enc := json.NewEncoder(w)
	write := func(p page) error {
		for _, entry := range p.items {
			if err := enc.Encode(entry); err != nil {
				return fmt.Errorf("write audit entry: %w", err)
			}
			res.Entries++
		}
		res.Pages++
		return nil
	}

	if err := write(first); err != nil {
		return res, err
	}
	if len(first.items) == 0 {
		return res, nil
	}

	// Pin the snapshot: newer entries would shift every later page
	if c.filter.To.IsZero() {
		c.filter.To = first.items[0].CreatedAt
	}

	pages := (first.total + e.pageSize - 1) / e.pageSize
	e.logger.Info("exporting audit logs", "total", first.total, "pages", pages, "workers", e.workers)

	jobs := make(chan int)
	results := make(chan page)

	producerStopped := produce(ctx, 2, pages, jobs)
	consumerStopped := c.consume(ctx, cancel, jobs, results)

	go func() {
		<-consumerStopped
		close(results)
	}()

	// Pages complete out of order, hold them until all previous are written
	pending := make(map[int]page)
	next := 2
	var writeErr error
	for p := range results {
		if writeErr != nil {
			continue
		}
		pending[p.number] = p

		for {
			ready, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)

			if writeErr = write(ready); writeErr != nil {
				cancel(writeErr)
				break
			}
			next++
		}
	}
	<-producerStopped

	if next <= pages {
		err := context.Cause(ctx)
		if err == nil {
			err = errors.New("export stopped before all pages were fetched")
		}
		return res, err
	}

	e.logger.Info("audit logs exported", "pages", res.Pages, "entries", res.Entries)
	return res, nil
}
