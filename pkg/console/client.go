// Package console talks to the vendor console that distributes
// serverless defender bundles.
package console

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	authPath   = "/api/v1/authenticate"
	bundlePath = "/api/v1/defenders/serverless/bundle"

	// innerBundleName identifies the layer archive nested inside the
	// bundle the console returns.
	innerBundleName = "twistlock_defender_layer.zip"
)

// Client is an HTTP client for the console API. Authenticate must
// succeed before the bundle download.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// New creates a client for the console at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// Bundles run to tens of megabytes; the timeout covers the
		// whole download, not just the dial.
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Authenticate exchanges the credentials for the bearer token used by
// later calls.
func (c *Client) Authenticate(ctx context.Context, username, password string) error {
	body, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return fmt.Errorf("error encoding credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+authPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error building authenticate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error calling console authenticate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("console authenticate returned %s", resp.Status)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("error decoding authenticate response: %w", err)
	}
	if out.Token == "" {
		return fmt.Errorf("console authenticate returned an empty token")
	}

	c.token = out.Token
	return nil
}

// DownloadDefenderBundle requests the serverless defender bundle for
// the given runtime family and returns the nested layer zip's bytes.
func (c *Client) DownloadDefenderBundle(ctx context.Context, runtime string) ([]byte, error) {
	if c.token == "" {
		return nil, fmt.Errorf("not authenticated with the console")
	}

	body, err := json.Marshal(map[string]string{
		"provider": "aws",
		"runtime":  runtime,
	})
	if err != nil {
		return nil, fmt.Errorf("error encoding bundle request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+bundlePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error building bundle request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error downloading defender bundle: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("console bundle download returned %s", resp.Status)
	}

	outer, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading bundle response: %w", err)
	}

	return extractInnerZip(outer, innerBundleName)
}

// extractInnerZip returns the contents of the first archive entry
// whose name contains wanted.
func extractInnerZip(archive []byte, wanted string) ([]byte, error) {
	reader, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("error opening bundle archive: %w", err)
	}

	for _, file := range reader.File {
		if !strings.Contains(file.Name, wanted) {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("error opening bundle entry %s: %w", file.Name, err)
		}
		defer rc.Close()

		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("error reading bundle entry %s: %w", file.Name, err)
		}
		return data, nil
	}

	return nil, fmt.Errorf("bundle has no entry matching %s", wanted)
}
