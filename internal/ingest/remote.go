package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"
)

// FetchRemote downloads an input document over HTTP(S).
// Any non-2xx response is an error.
func FetchRemote(ctx context.Context, rawURL string, timeout time.Duration) ([]byte, error) {
	c := colly.NewCollector(
		colly.MaxBodySize(0), // no limit, input files can be large
		colly.StdlibContext(ctx),
	)
	if timeout > 0 {
		c.SetRequestTimeout(timeout)
	}

	var body []byte
	var fetchErr error

	c.OnResponse(func(r *colly.Response) {
		body = r.Body
		logrus.Infof("Fetched %s (status=%d, %d bytes)", r.Request.URL, r.StatusCode, len(r.Body))
	})

	c.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = fmt.Errorf("failed to fetch %s (status %d): %w", rawURL, status, err)
	})

	if err := c.Visit(rawURL); err != nil {
		if fetchErr != nil {
			return nil, fetchErr
		}
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	c.Wait()

	if fetchErr != nil {
		return nil, fetchErr
	}
	return body, nil
}
