package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okian/unitry/internal/domain/basepath"
	"github.com/spf13/cobra"
)

var errSmokeFailed = errors.New("smoke check failed")

type smokeResult struct {
	Path   string `json:"path"`
	Status int    `json:"status"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

func newSmokeCmd() *cobra.Command {
	var (
		server  string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Check that a running server answers its main routes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			prefix := basepath.New(cfg.BasePath)
			apiPrefix := strings.TrimRight(cfg.APIPrefix, "/")
			paths := []string{
				prefix.URL("/healthz"),
				prefix.URL(apiPrefix),
				prefix.URL(apiPrefix + "/try-on/health"),
				prefix.URL(apiPrefix + "/catalog/man"),
				prefix.URL(apiPrefix + "/catalog/woman"),
				prefix.URL("/"),
			}
			results := runSmoke(cmd.Context(), &http.Client{Timeout: timeout}, strings.TrimRight(server, "/"), paths)
			if err := printJSON(cmd.OutOrStdout(), results); err != nil {
				return err
			}
			for _, r := range results {
				if !r.OK {
					return fmt.Errorf("%w: %s", errSmokeFailed, r.Path)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:8000", "Server origin")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Per-request timeout")
	return cmd
}

func runSmoke(ctx context.Context, client *http.Client, origin string, paths []string) []smokeResult {
	results := make([]smokeResult, 0, len(paths))
	for _, p := range paths {
		r := smokeResult{Path: p}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+p, http.NoBody)
		if err == nil {
			var resp *http.Response
			if resp, err = client.Do(req); err == nil {
				_, _ = io.Copy(io.Discard, resp.Body)
				_ = resp.Body.Close()
				r.Status = resp.StatusCode
				r.OK = resp.StatusCode == http.StatusOK
			}
		}
		if err != nil {
			r.Error = err.Error()
		}
		results = append(results, r)
	}
	return results
}
