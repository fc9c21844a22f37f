// Package archive downloads forecast step files from the upstream model
// archives over HTTP(S) or anonymous FTP.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/textproto"
	"net/url"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/sony/gobreaker"
)

// StatusError is a non-success reply from the archive. FTP "file unavailable"
// replies are reported as 404.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.StatusCode)
}

// Client fetches archive URLs with a per-request timeout.
type Client struct {
	http    *http.Client
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewClient creates a client whose requests each time out after timeout. After
// repeated consecutive failures the breaker opens and requests fail fast.
func NewClient(timeout time.Duration, logger *slog.Logger) *Client {
	c := &Client{
		http:    &http.Client{},
		timeout: timeout,
		logger:  logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "archive",
		Timeout: 5 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			// A missing file is an answer, not an outage.
			var se *StatusError
			return err == nil || (errors.As(err, &se) && se.StatusCode < http.StatusInternalServerError)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("archive circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// Fetch streams rawURL into w and returns the number of bytes copied.
func (c *Client) Fetch(ctx context.Context, rawURL string, w io.Writer) (int64, error) {
	n, err := c.breaker.Execute(func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return c.fetch(ctx, rawURL, w)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return 0, fmt.Errorf("archive unavailable: %w", err)
		}
		return 0, err
	}
	c.logger.Debug("archive fetch complete", "url", rawURL, "bytes", n)
	return n.(int64), nil
}

func (c *Client) fetch(ctx context.Context, rawURL string, w io.Writer) (int64, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, fmt.Errorf("parse url: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
		return c.fetchHTTP(ctx, rawURL, w)
	case "ftp":
		return fetchFTP(ctx, u, w)
	default:
		return 0, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}

func (c *Client) fetchHTTP(ctx context.Context, rawURL string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, &StatusError{StatusCode: resp.StatusCode, URL: rawURL}
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("read body: %w", err)
	}
	return n, nil
}

func fetchFTP(ctx context.Context, u *url.URL, w io.Writer) (int64, error) {
	host := u.Host
	if u.Port() == "" {
		host += ":21"
	}
	conn, err := ftp.Dial(host, ftp.DialWithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit() //nolint:errcheck // best-effort close

	if err := conn.Login("anonymous", "anonymous"); err != nil {
		return 0, fmt.Errorf("ftp login: %w", err)
	}
	resp, err := conn.Retr(u.Path)
	if err != nil {
		var te *textproto.Error
		if errors.As(err, &te) && te.Code == ftp.StatusFileUnavailable {
			return 0, &StatusError{StatusCode: http.StatusNotFound, URL: u.String()}
		}
		return 0, fmt.Errorf("ftp retr: %w", err)
	}
	defer resp.Close()

	n, err := io.Copy(w, resp)
	if err != nil {
		return n, fmt.Errorf("ftp read: %w", err)
	}
	return n, nil
}
