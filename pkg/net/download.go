package net

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// ErrorURLNotFound is returned when the server answers 404.
var ErrorURLNotFound = errors.New("URL not found")

// Download fetches url into dst, creating parent directories. dst is only
// created once the server has answered 200; a failed copy removes it.
func Download(ctx context.Context, client *http.Client, url, dst string) (retErr error) {
	if client == nil {
		c, err := GetHTTPClient()
		if err != nil {
			return err
		}
		client = c
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrapf(err, "error creating HTTP Get request: %s", url)
	}
	req.Header.Set("User-Agent", clientAgent)

	slog.Debug("downloading", "url", url, "dst", dst)
	resp, err := client.Do(req) //nolint:gosec // URL comes from the configuration
	if err != nil {
		return errors.Wrapf(err, "error executing HTTP Get request: %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errors.Wrap(ErrorURLNotFound, url)
	}
	if resp.StatusCode != http.StatusOK {
		PrintHTTPResponse(resp)
		return errors.Errorf("error downloading file (status: %d - %s): %s", resp.StatusCode, resp.Status, url)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrapf(err, "error creating dir for: %s", dst)
	}

	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrapf(err, "error creating file: %s", dst)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && retErr == nil {
			retErr = errors.Wrapf(cerr, "error closing file: %s", dst)
		}
		if retErr != nil {
			_ = os.Remove(dst)
		}
	}()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return errors.Wrap(err, "error saving downloaded content to file")
	}
	return nil
}
