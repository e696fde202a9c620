// Package resource talks to the resource API: uploads, reuploads and
// deletes of shared resources, each authorized by a single-use token the
// authority hands out over the game connection.
package resource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// File is one upload part.
type File struct {
	Name string
	Data []byte
}

// LoadFiles reads paths from disk into upload parts named by base name.
func LoadFiles(paths ...string) ([]File, error) {
	out := make([]File, 0, len(paths))
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, File{Name: filepath.Base(p), Data: b})
	}
	return out, nil
}

type ClientConfig struct {
	BaseURL     string
	HTTPTimeout time.Duration
}

// Client is a thin HTTP client for the resource API.
type Client struct {
	base       *url.URL
	httpClient *http.Client
}

func NewClient(cfg ClientConfig) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("empty resource api url")
	}
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("resource api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("resource api url: unsupported scheme %q", u.Scheme)
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	return &Client{base: u, httpClient: &http.Client{Timeout: cfg.HTTPTimeout}}, nil
}

func (c *Client) BaseURL() string { return c.base.String() }

func (c *Client) endpoint(resourceID string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/resources"
	u.RawPath = ""
	if resourceID != "" {
		u.RawPath = u.EscapedPath() + "/" + url.PathEscape(resourceID)
		u.Path += "/" + resourceID
	}
	return u.String()
}

// Upload posts files as multipart form parts named "files". A non-empty
// resourceID replaces that resource's content instead of creating one.
func (c *Client) Upload(ctx context.Context, token string, files []File, resourceID string) error {
	if len(files) == 0 {
		return errors.New("upload: no files")
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		part, err := mw.CreateFormFile("files", f.Name)
		if err != nil {
			return err
		}
		if _, err := part.Write(f.Data); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(resourceID), &body)
	if err != nil {
		return err
	}
	req.Header.Set("content-type", mw.FormDataContentType())
	return c.do(req, token)
}

func (c *Client) Delete(ctx context.Context, token string, resourceID string) error {
	if resourceID == "" {
		return errors.New("delete: empty resource id")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.endpoint(resourceID), nil)
	if err != nil {
		return err
	}
	return c.do(req, token)
}

func (c *Client) do(req *http.Request, token string) error {
	req.Header.Set("authorization", "Bearer "+token)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("%s %s: status=%d body=%s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(respBody)))
}
