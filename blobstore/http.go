package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// HTTPOptions configures an HTTPStore: a plain HTTP PUT/GET/DELETE sink,
// carrying auth as an opaque header map.
type HTTPOptions struct {
	BaseURL string
	Headers map[string]string
	Client  *http.Client
}

// HTTPStore is a Store backed by a plain HTTP object sink. It has no
// notion of presigned URLs; PresignGet always returns ErrUnsupported.
type HTTPStore struct {
	baseURL string
	headers map[string]string
	client  *http.Client
}

// NewHTTPStore builds an HTTPStore from opts.
func NewHTTPStore(opts HTTPOptions) *HTTPStore {
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPStore{
		baseURL: strings.TrimSuffix(opts.BaseURL, "/"),
		headers: opts.Headers,
		client:  client,
	}
}

func (s *HTTPStore) url(path string) string {
	return s.baseURL + "/" + NormalizePath(path)
}

func (s *HTTPStore) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.url(path), body)
	if err != nil {
		return nil, err
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func (s *HTTPStore) Put(ctx context.Context, path string, data []byte, contentType string) error {
	req, err := s.newRequest(ctx, http.MethodPut, path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("blobstore: http put %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("blobstore: http put %s: status %d", path, resp.StatusCode)
	}
	return nil
}

func (s *HTTPStore) Get(ctx context.Context, path string) ([]byte, error) {
	req, err := s.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("blobstore: http get %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("blobstore: http get %s: status %d", path, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// List is unsupported in the general HTTP case (plain PUT/GET sinks have
// no listing endpoint); HTTPStore maintains no local index, so it returns
// an empty result rather than erroring.
func (s *HTTPStore) List(ctx context.Context, prefix string) ([]Entry, error) {
	logrus.WithFields(logrus.Fields{"function": "List", "package": "blobstore", "prefix": prefix}).
		Debug("HTTP backend cannot enumerate objects; returning empty list")
	return nil, nil
}

func (s *HTTPStore) Delete(ctx context.Context, path string) error {
	req, err := s.newRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("blobstore: http delete %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("blobstore: http delete %s: status %d", path, resp.StatusCode)
	}
	return nil
}

// DeleteAllIn has no enumeration to drive from on a plain HTTP sink;
// callers that need recursive delete against an HTTP backend must track
// their own key list and call Delete per key.
func (s *HTTPStore) DeleteAllIn(ctx context.Context, prefix string) error {
	return fmt.Errorf("blobstore: %w: DeleteAllIn requires an enumerable backend", ErrUnsupported)
}

// PresignGet always returns ErrUnsupported: HTTP sinks have no equivalent
// to an S3/R2 presigned URL.
func (s *HTTPStore) PresignGet(ctx context.Context, path string, ttl time.Duration) (string, error) {
	return "", ErrUnsupported
}
