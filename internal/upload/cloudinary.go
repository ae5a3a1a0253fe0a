/*
Package upload implements the Cloudinary image-hosting collaborator. Each
announcement's artifacts live under their own bankex/<newsid> folder.
*/
package upload

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.cloudinary.com"

// Config carries the Cloudinary credentials.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
}

// Enabled reports whether all three credentials are present.
func (c Config) Enabled() bool {
	return c.CloudName != "" && c.APIKey != "" && c.APISecret != ""
}

// Option configures the client.
type Option func(*Cloudinary)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) Option {
	return func(c *Cloudinary) {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Cloudinary) {
		c.http = hc
	}
}

// Cloudinary uploads local image files and returns their secure URLs.
type Cloudinary struct {
	cfg     Config
	baseURL string
	http    *http.Client
	now     func() time.Time
}

// New creates a Cloudinary client.
func New(cfg Config, opts ...Option) *Cloudinary {
	c := &Cloudinary{
		cfg:     cfg,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Upload sends the file at localPath and returns its remote URL. kind is one
// of the artifact kinds; page is the 1-based page ordinal for PDF pages and
// zero otherwise.
func (c *Cloudinary) Upload(ctx context.Context, localPath, newsid, kind string, page int) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", eris.Wrapf(err, "cloudinary: open %s", localPath)
	}
	defer file.Close()

	folder := "bankex/" + newsid
	publicID := folder + "/" + kind
	if page > 0 {
		publicID = fmt.Sprintf("%s/pdf_page_%d", folder, page)
	}
	timestamp := strconv.FormatInt(c.now().Unix(), 10)

	// Signed upload: the signature covers the sorted non-auth parameters.
	params := map[string]string{
		"folder":    folder,
		"overwrite": "true",
		"public_id": publicID,
		"timestamp": timestamp,
	}

	var body strings.Builder
	mw := multipart.NewWriter(&body)
	for _, key := range []string{"folder", "overwrite", "public_id", "timestamp"} {
		if err := mw.WriteField(key, params[key]); err != nil {
			return "", eris.Wrap(err, "cloudinary: build form")
		}
	}
	if err := mw.WriteField("api_key", c.cfg.APIKey); err != nil {
		return "", eris.Wrap(err, "cloudinary: build form")
	}
	if err := mw.WriteField("signature", c.sign(params)); err != nil {
		return "", eris.Wrap(err, "cloudinary: build form")
	}

	part, err := mw.CreateFormFile("file", filepath.Base(localPath))
	if err != nil {
		return "", eris.Wrap(err, "cloudinary: build form")
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", eris.Wrapf(err, "cloudinary: read %s", localPath)
	}
	if err := mw.Close(); err != nil {
		return "", eris.Wrap(err, "cloudinary: build form")
	}

	endpoint := fmt.Sprintf("%s/v1_1/%s/image/upload", c.baseURL, c.cfg.CloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body.String()))
	if err != nil {
		return "", eris.Wrap(err, "cloudinary: create request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "cloudinary: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", eris.Wrap(err, "cloudinary: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("cloudinary: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result struct {
		SecureURL string `json:"secure_url"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", eris.Wrap(err, "cloudinary: unmarshal response")
	}
	if result.SecureURL == "" {
		return "", eris.New("cloudinary: response missing secure_url")
	}

	return result.SecureURL, nil
}

// sign produces the SHA-1 request signature over the alphabetically ordered
// parameters plus the API secret.
func (c *Cloudinary) sign(params map[string]string) string {
	pairs := make([]string, 0, len(params))
	for _, key := range []string{"folder", "overwrite", "public_id", "timestamp"} {
		pairs = append(pairs, key+"="+params[key])
	}
	payload := strings.Join(pairs, "&") + c.cfg.APISecret

	sum := sha1.Sum([]byte(payload))
	return hex.EncodeToString(sum[:])
}
