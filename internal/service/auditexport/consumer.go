package auditexport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nkiryanov/authaudit/internal/apiclient"
	"github.com/nkiryanov/authaudit/internal/apperrors"
	"github.com/nkiryanov/authaudit/internal/logger"
	"github.com/nkiryanov/authaudit/internal/models"
)

type page struct {
	number int
	total  int
	items  []models.AuditLog
}

type consumer struct {
	countWorkers int
	maxAttempts  int

	// API may answer 429 with Retry-After
	// Once it does every worker waits until the time is up
	waitUntil atomic.Int64

	api    auditAPI
	filter models.AuditLogFilter
	logger logger.Logger
}

// consume fetches pages from in until it is closed
// The first failure cancels ctx with the error as cause
func (c *consumer) consume(ctx context.Context, cancel context.CancelCauseFunc, in <-chan int, out chan<- page) <-chan struct{} {
	idleStopped := make(chan struct{})

	var wg sync.WaitGroup
	for range c.countWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.worker(ctx, in, out); err != nil {
				cancel(err)
			}
		}()
	}

	go func() {
		defer close(idleStopped)
		wg.Wait()
		c.logger.Debug("audit export workers stopped")
	}()

	return idleStopped
}

func (c *consumer) worker(ctx context.Context, in <-chan int, out chan<- page) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case n, ok := <-in:
			if !ok {
				return nil
			}

			p, err := c.fetch(ctx, n)
			if err != nil {
				return err
			}

			select {
			case <-ctx.Done():
				return nil
			case out <- p:
			}
		}
	}
}

// fetch gets one page, waiting out rate limits up to maxAttempts times
func (c *consumer) fetch(ctx context.Context, n int) (page, error) {
	filter := c.filter
	filter.Page = n

	for attempt := 1; ; attempt++ {
		if err := c.waitRateLimit(ctx); err != nil {
			return page{}, err
		}

		list, err := c.api.AuditLogs(ctx, filter)
		var apiErr *apiclient.Error

		switch {
		case err == nil:
			return page{number: n, total: list.Total, items: list.Items}, nil

		case errors.Is(err, apperrors.ErrRateLimited) && errors.As(err, &apiErr) && attempt < c.maxAttempts:
			c.logger.Info("rate limit exceeded, waiting", "page", n, "retry_after", apiErr.RetryAfter)
			c.waitUntil.Store(time.Now().Add(apiErr.RetryAfter).UnixNano())

		default:
			return page{}, fmt.Errorf("fetch audit logs page %d: %w", n, err)
		}
	}
}

// Wait until rate limit is passed or context is done
func (c *consumer) waitRateLimit(ctx context.Context) error {
	waitUntil := time.Unix(0, c.waitUntil.Load())
	if !waitUntil.After(time.Now()) {
		return nil
	}

	c.logger.Debug("worker is waiting for rate limit to reset", "wait_until", waitUntil)

	timer := time.NewTimer(time.Until(waitUntil))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-timer.C:
		return nil
	}
}
