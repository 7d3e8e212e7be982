package liblib

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/okian/unitry/pkg/logger"
	"github.com/okian/unitry/pkg/metrics"
)

// MaxUploadBytes is the OSS size limit for reference images.
const MaxUploadBytes = 10 << 20

const maxUploadNameLen = 100

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(bytes.TrimSpace(b))
	return nil
}

// UploadSignature is the OSS post policy for one file.
type UploadSignature struct {
	Key                  string     `json:"key"`
	Policy               string     `json:"policy"`
	XOssDate             flexString `json:"xOssDate"`
	XOssExpires          flexString `json:"xOssExpires"`
	XOssSignature        string     `json:"xOssSignature"`
	XOssCredential       string     `json:"xOssCredential"`
	XOssSignatureVersion string     `json:"xOssSignatureVersion"`
	PostURL              string     `json:"postUrl"`
}

// fields returns the form fields in the order OSS expects them, before file.
func (s UploadSignature) fields() [][2]string {
	return [][2]string{
		{"key", s.Key},
		{"policy", s.Policy},
		{"x-oss-date", string(s.XOssDate)},
		{"x-oss-expires", string(s.XOssExpires)},
		{"x-oss-signature", s.XOssSignature},
		{"x-oss-credential", s.XOssCredential},
		{"x-oss-signature-version", s.XOssSignatureVersion},
	}
}

// URL is where the file is reachable once posted.
func (s UploadSignature) URL() string {
	return strings.TrimRight(s.PostURL, "/") + "/" + s.Key
}

func normalizeExtension(ext string) (string, error) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	switch ext {
	case "jpg", "jpeg", "png":
		return ext, nil
	}
	return "", fmt.Errorf("%w: extension %q not in jpg, jpeg, png", ErrInvalidArgument, ext)
}

func contentTypeFor(ext string) string {
	if ext == "png" {
		return "image/png"
	}
	return "image/jpeg"
}

// RequestUploadSignature asks for an OSS post policy for name.ext.
func (c *Client) RequestUploadSignature(ctx context.Context, name, ext string) (UploadSignature, error) {
	if name == "" || utf8.RuneCountInString(name) > maxUploadNameLen {
		return UploadSignature{}, fmt.Errorf("%w: name must be 1..%d characters", ErrInvalidArgument, maxUploadNameLen)
	}
	ext, err := normalizeExtension(ext)
	if err != nil {
		return UploadSignature{}, err
	}

	var sig UploadSignature
	if err := c.call(ctx, pathUploadSignature, map[string]string{"name": name, "extension": ext}, &sig); err != nil {
		return UploadSignature{}, err
	}
	return sig, nil
}

// UploadFile posts a local jpg/png file to OSS and returns its URL.
func (c *Client) UploadFile(ctx context.Context, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", path, err)
	}
	if info.Size() > MaxUploadBytes {
		return "", fmt.Errorf("%w: %s is larger than 10MB", ErrInvalidArgument, path)
	}

	f, err := os.Open(path) //nolint:gosec // operator-provided path
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return c.Upload(ctx, strings.TrimSuffix(base, ext), ext, f)
}

// Upload posts r as name.ext to OSS and returns its URL.
func (c *Client) Upload(ctx context.Context, name, ext string, r io.Reader) (string, error) {
	sig, err := c.RequestUploadSignature(ctx, name, ext)
	if err != nil {
		return "", err
	}
	ext, _ = normalizeExtension(ext)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, kv := range sig.fields() {
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return "", fmt.Errorf("build upload form: %w", err)
		}
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name+"."+ext))
	h.Set("Content-Type", contentTypeFor(ext))
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	n, err := io.Copy(part, io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if n > MaxUploadBytes {
		return "", fmt.Errorf("%w: image is larger than 10MB", ErrInvalidArgument)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sig.PostURL, &body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordLiblibRequest("oss_upload", "transport_error")
		return "", fmt.Errorf("%w: oss upload: %v", ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNoContent {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.RecordLiblibRequest("oss_upload", "api_error")
		return "", fmt.Errorf("%w: oss upload status %d: %s", ErrTransport, resp.StatusCode, bytes.TrimSpace(snippet))
	}
	metrics.RecordLiblibRequest("oss_upload", "ok")

	u := sig.URL()
	c.log.Info(ctx, "image uploaded", logger.String("url", u))
	return u, nil
}
