package liblib

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/okian/unitry/pkg/logger"
	"golang.org/x/sync/errgroup"
)

const maxDownloadConcurrency = 4

// SavePaths returns where n images are written for savePath: savePath
// itself for one image, "<stem>_<i><ext>" next to it for several.
func SavePaths(savePath string, n int) []string {
	if n <= 1 {
		return []string{savePath}
	}
	dir := filepath.Dir(savePath)
	ext := filepath.Ext(savePath)
	stem := strings.TrimSuffix(filepath.Base(savePath), ext)
	out := make([]string, n)
	for i := range out {
		out[i] = filepath.Join(dir, stem+"_"+strconv.Itoa(i)+ext)
	}
	return out
}

// Download fetches every image of st concurrently and writes them under
// savePath. When st has no images yet it is refreshed once.
func (c *Client) Download(ctx context.Context, st Status, savePath string) ([]string, error) {
	if len(st.ImageURLs()) == 0 && st.GenerateUUID != "" {
		fresh, err := c.Status(ctx, st.GenerateUUID)
		if err != nil {
			return nil, err
		}
		st = fresh
	}
	urls := st.ImageURLs()
	if len(urls) == 0 {
		return nil, ErrNoImages
	}

	paths := SavePaths(savePath, len(urls))
	if err := os.MkdirAll(filepath.Dir(savePath), 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", filepath.Dir(savePath), err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxDownloadConcurrency)
	for i, u := range urls {
		g.Go(func() error {
			return c.fetchTo(gctx, u, paths[i])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, p := range paths {
		c.log.Info(ctx, "image saved", logger.String("path", p))
	}
	return paths, nil
}

func (c *Client) fetchTo(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: download %s: %v", ErrTransport, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: download %s: status %d", ErrTransport, url, resp.StatusCode)
	}

	f, err := os.Create(path) //nolint:gosec // operator-provided path
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
