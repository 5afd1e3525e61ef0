package storage

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jobrunner/mapcore/internal/ports/output"
)

// HTTPStorage serves region files from a static web server that publishes
// an index file.
type HTTPStorage struct {
	client    *http.Client
	baseURL   string
	indexFile string
	username  string
	password  string
}

// HTTPConfig holds HTTP storage configuration.
type HTTPConfig struct {
	BaseURL   string
	IndexFile string // default: index.txt
	Timeout   time.Duration
	Username  string
	Password  string
}

// NewHTTPStorage creates a new HTTP storage adapter.
func NewHTTPStorage(cfg HTTPConfig) *HTTPStorage {
	if cfg.IndexFile == "" {
		cfg.IndexFile = "index.txt"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &HTTPStorage{
		client:    &http.Client{Timeout: cfg.Timeout},
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		indexFile: cfg.IndexFile,
		username:  cfg.Username,
		password:  cfg.Password,
	}
}

// List parses the index file. Each line names one file, optionally followed
// by whitespace and an ETag; blank lines and # comments are skipped.
func (s *HTTPStorage) List(ctx context.Context) ([]output.StorageObject, error) {
	resp, err := s.get(ctx, http.MethodGet, s.indexFile)
	if err != nil {
		return nil, fmt.Errorf("fetching index file: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var objects []output.StorageObject
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		if !IsRegionFile(fields[0]) {
			continue
		}
		obj := output.StorageObject{Key: fields[0]}
		if len(fields) > 1 {
			obj.ETag = fields[1]
		}
		objects = append(objects, obj)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading index file: %w", err)
	}
	return objects, nil
}

// Download fetches a file to the local filesystem.
func (s *HTTPStorage) Download(ctx context.Context, key string, dest string) error {
	body, err := s.GetReader(ctx, key)
	if err != nil {
		return err
	}
	defer func() { _ = body.Close() }()
	return writeFile(dest, body)
}

// GetReader returns a reader for the given file.
func (s *HTTPStorage) GetReader(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.get(ctx, http.MethodGet, key)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", key, err)
	}
	return resp.Body, nil
}

// Exists checks if a file exists via HTTP HEAD request.
func (s *HTTPStorage) Exists(ctx context.Context, key string) (bool, error) {
	resp, err := s.do(ctx, http.MethodHead, key)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK, nil
}

// get performs a request and fails on any status other than 200.
func (s *HTTPStorage) get(ctx context.Context, method, key string) (*http.Response, error) {
	resp, err := s.do(ctx, method, key)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("HTTP %d for %s", resp.StatusCode, key)
	}
	return resp, nil
}

func (s *HTTPStorage) do(ctx context.Context, method, key string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+"/"+strings.TrimPrefix(key, "/"), nil)
	if err != nil {
		return nil, err
	}
	if s.username != "" && s.password != "" {
		req.SetBasicAuth(s.username, s.password)
	}
	return s.client.Do(req)
}
