package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/oshokin/bootstrap-builder/internal/apperr"
	"github.com/oshokin/bootstrap-builder/internal/logger"
	"github.com/oshokin/bootstrap-builder/internal/progress"
	"github.com/oshokin/bootstrap-builder/internal/version"
)

// HTTP downloads over HTTP(S) with retries.
type HTTP struct {
	Client *retryablehttp.Client
}

// NewHTTP returns a fetcher with the given per-request timeout and retry
// count. Retry logs go to the logger stored in ctx.
func NewHTTP(ctx context.Context, timeout time.Duration, retryMax int) *HTTP {
	client := retryablehttp.NewClient()
	client.RetryMax = retryMax
	client.RetryWaitMin = 500 * time.Millisecond //nolint:mnd // Short waits keep interactive builds responsive.
	client.RetryWaitMax = 5 * time.Second        //nolint:mnd // Short waits keep interactive builds responsive.
	client.Logger = logger.NewLeveled(logger.WithName(ctx, "http"))
	client.HTTPClient = &http.Client{
		Timeout:   timeout,
		Transport: http.DefaultTransport,
	}

	return &HTTP{Client: client}
}

// Fetch implements Fetcher.
func (h *HTTP) Fetch(ctx context.Context, source string, dst io.Writer, reporter progress.Reporter) error {
	if reporter == nil {
		reporter = progress.Noop{}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return apperr.InvalidArguments("build request", err)
	}

	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := h.Client.Do(req)
	if err != nil {
		return apperr.New(apperr.KindNetwork, "download "+source, err)
	}

	defer resp.Body.Close() //nolint:errcheck // Body is fully consumed or abandoned.

	if resp.StatusCode != http.StatusOK {
		return apperr.New(apperr.KindNetwork, "download "+source,
			fmt.Errorf("unexpected status %s", resp.Status))
	}

	reporter.Start(BaseName(source), resp.ContentLength)

	_, err = io.Copy(io.MultiWriter(dst, progress.Counter{Reporter: reporter}), resp.Body)

	reporter.Finish(err)

	if err != nil {
		return apperr.New(apperr.KindNetwork, "download "+source, err)
	}

	return nil
}
