package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
)

// Fetcher downloads a photo's bytes.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher fetches images over HTTP.
type HTTPFetcher struct {
	client *resty.Client
}

var _ Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates a fetcher with a per-request timeout that follows at
// most maxRedirects redirects.
func NewHTTPFetcher(timeout time.Duration, maxRedirects int) *HTTPFetcher {
	client := resty.New().
		SetTimeout(timeout).
		SetRedirectPolicy(redirectPolicy(maxRedirects)).
		SetHeader("Accept", "image/jpeg, image/png")
	return &HTTPFetcher{client: client}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, classifyFetchError(err)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusForbidden:
		return nil, ErrImageForbidden
	case code == http.StatusNotFound:
		return nil, ErrImageNotFound
	case code >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrImageUpstream, code)
	case code < 200 || code > 299:
		return nil, fmt.Errorf("fetch image: unexpected status %d", code)
	}

	return resp.Body(), nil
}

// CheckImageSignature accepts only JPEG and PNG, judged by the leading bytes.
func CheckImageSignature(data []byte) error {
	mt := mimetype.Detect(data)
	if mt.Is("image/jpeg") || mt.Is("image/png") {
		return nil
	}
	return fmt.Errorf("%w: detected %s", ErrUnsupportedImage, mt.String())
}

// redirectPolicy stops at max hops or as soon as a URL repeats.
func redirectPolicy(max int) resty.RedirectPolicy {
	return resty.RedirectPolicyFunc(func(req *http.Request, via []*http.Request) error {
		if len(via) > max {
			return fmt.Errorf("%w: more than %d redirects", ErrRedirectLoop, max)
		}
		next := req.URL.String()
		for _, prev := range via {
			if prev.URL.String() == next {
				return fmt.Errorf("%w: %s visited twice", ErrRedirectLoop, next)
			}
		}
		return nil
	})
}

// classifyFetchError maps transport-level errors to sentinel errors.
func classifyFetchError(err error) error {
	if errors.Is(err, ErrRedirectLoop) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrImageUnreachable, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrImageUnreachable, err)
	}

	return fmt.Errorf("fetch image: %w", err)
}
