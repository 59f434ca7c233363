// Package api is the REST client for the SPARC analysis server: file
// upload, pipeline start, status snapshots and results retrieval. It also
// derives the per-job channel address consumed by the watch package.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/glbala87/SPARC/config"
	"github.com/glbala87/SPARC/errors"
	"github.com/glbala87/SPARC/internal/httpclient"
	"github.com/glbala87/SPARC/watch"
)

// Client talks to one SPARC server. Requests are rate limited so the poll
// fallback and CLI together stay polite toward small local servers.
type Client struct {
	baseURL *url.URL
	http    *httpclient.SaferClient
	limiter *rate.Limiter
	logger  *zap.SugaredLogger
}

// NewClient creates a client from configuration.
func NewClient(cfg *config.Config, logger *zap.SugaredLogger) (*Client, error) {
	base, err := url.Parse(cfg.Server.BaseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid server base URL %q", cfg.Server.BaseURL)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, errors.Newf("server base URL must be http or https, got %q", base.Scheme)
	}

	blockPrivate := !cfg.HTTP.AllowPrivateHosts
	hc := httpclient.New(cfg.HTTPTimeout(), httpclient.Options{
		BlockPrivateIP: &blockPrivate,
	})

	rpm := cfg.HTTP.RequestsPerMinute
	if rpm <= 0 {
		rpm = 120
	}

	return &Client{
		baseURL: base,
		http:    hc,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rpm),
		logger:  logger,
	}, nil
}

// NewClientWithHTTP creates a client around an existing HTTP client.
// Used by tests with httptest servers.
func NewClientWithHTTP(baseURL string, hc *httpclient.SaferClient, logger *zap.SugaredLogger) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid server base URL %q", baseURL)
	}
	return &Client{
		baseURL: base,
		http:    hc,
		limiter: rate.NewLimiter(rate.Inf, 0),
		logger:  logger,
	}, nil
}

// Health checks the server is reachable.
func (c *Client) Health(ctx context.Context) (*HealthInfo, error) {
	var info HealthInfo
	if err := c.getJSON(ctx, "/health", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Upload sends FASTQ and whitelist files to the server and returns the job
// id assigned to them. r2Path and whitelistPath may be empty.
func (c *Client) Upload(ctx context.Context, r1Path, r2Path, whitelistPath string) (*UploadResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := writeUploadForm(mw, r1Path, r2Path, whitelistPath)
		if cerr := mw.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/api/upload"), pr)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build upload request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	c.logger.Infow("Uploading files",
		"r1", r1Path,
		"r2", r2Path,
		"whitelist", whitelistPath,
	)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "upload request failed")
	}
	defer resp.Body.Close()

	var out UploadResponse
	if err := c.decodeResponse(resp, &out); err != nil {
		return nil, err
	}

	c.logger.Infow("Upload accepted", "job_id", out.JobID)
	return &out, nil
}

// StartPipeline begins processing the uploaded files under jobID.
func (c *Client) StartPipeline(ctx context.Context, jobID string, pc PipelineConfig) (*StartResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(pc)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal pipeline config")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint("/api/pipeline/"+url.PathEscape(jobID)), bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build pipeline start request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "pipeline start request failed")
	}
	defer resp.Body.Close()

	var out StartResponse
	if err := c.decodeResponse(resp, &out); err != nil {
		return nil, errors.Wrapf(err, "failed to start pipeline for job %s", jobID)
	}

	c.logger.Infow("Pipeline started",
		"job_id", out.JobID,
		"status", out.Status,
		"protocol", pc.Protocol,
	)
	return &out, nil
}

// Status returns the current status snapshot for jobID. This is the poll
// fallback's data source.
func (c *Client) Status(ctx context.Context, jobID string) (*StatusSnapshot, error) {
	var snap StatusSnapshot
	if err := c.getJSON(ctx, "/api/pipeline/"+url.PathEscape(jobID)+"/status", &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// FetchStatus satisfies watch.StatusFetcher.
func (c *Client) FetchStatus(ctx context.Context, jobID string) (*watch.Snapshot, error) {
	snap, err := c.Status(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &watch.Snapshot{
		Status:   snap.Status,
		Progress: snap.Progress,
		Message:  snap.Message,
		Result:   snap.Result,
	}, nil
}

// Results fetches the result payload and output file locations for a
// completed job.
func (c *Client) Results(ctx context.Context, jobID string) (*ResultsResponse, error) {
	var out ResultsResponse
	if err := c.getJSON(ctx, "/api/pipeline/"+url.PathEscape(jobID)+"/results", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Protocols lists the sequencing protocols the server supports.
func (c *Client) Protocols(ctx context.Context) ([]Protocol, error) {
	var out protocolsResponse
	if err := c.getJSON(ctx, "/api/protocols", &out); err != nil {
		return nil, err
	}
	return out.Protocols, nil
}

// Whitelists lists the barcode whitelists available on the server.
func (c *Client) Whitelists(ctx context.Context) ([]Whitelist, error) {
	var out whitelistsResponse
	if err := c.getJSON(ctx, "/api/whitelists", &out); err != nil {
		return nil, err
	}
	return out.Whitelists, nil
}

// WatchURL derives the per-job channel address from the server base URL.
func (c *Client) WatchURL(jobID string) string {
	u := *c.baseURL
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/pipeline/" + url.PathEscape(jobID)
	return u.String()
}

// Dialer returns a channel dialer bound to this server, configured from cfg.
func (c *Client) Dialer(cfg *config.Config) *watch.WebsocketDialer {
	return &watch.WebsocketDialer{
		URLForJob:        c.WatchURL,
		HandshakeTimeout: cfg.HTTPTimeout(),
		ReadTimeout:      cfg.ReadTimeout(),
	}
}

func (c *Client) endpoint(path string) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String()
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path), nil)
	if err != nil {
		return errors.Wrapf(err, "failed to build request for %s", path)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "request to %s failed", path)
	}
	defer resp.Body.Close()

	return c.decodeResponse(resp, out)
}

// decodeResponse maps error status codes to sentinels and decodes the body.
func (c *Client) decodeResponse(resp *http.Response, out interface{}) error {
	if resp.StatusCode >= 400 {
		detail := readDetail(resp.Body)
		switch resp.StatusCode {
		case http.StatusNotFound:
			return errors.Wrap(errors.ErrJobNotFound, detail)
		case http.StatusBadRequest:
			if strings.Contains(strings.ToLower(detail), "not completed") {
				return errors.Wrap(errors.ErrPipelineNotComplete, detail)
			}
			return errors.Newf("server rejected request: %s", detail)
		default:
			return errors.Newf("server returned %d: %s", resp.StatusCode, detail)
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "failed to decode server response")
	}
	return nil
}

func readDetail(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 64*1024))
	if err != nil {
		return ""
	}
	var ae apiError
	if json.Unmarshal(raw, &ae) == nil && ae.Detail != "" {
		return ae.Detail
	}
	return strings.TrimSpace(string(raw))
}

func writeUploadForm(mw *multipart.Writer, r1Path, r2Path, whitelistPath string) error {
	if err := attachFile(mw, "r1", r1Path); err != nil {
		return err
	}
	if r2Path != "" {
		if err := attachFile(mw, "r2", r2Path); err != nil {
			return err
		}
	}
	if whitelistPath != "" {
		if err := attachFile(mw, "whitelist", whitelistPath); err != nil {
			return err
		}
	}
	return nil
}

func attachFile(mw *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s file", field)
	}
	defer f.Close()

	part, err := mw.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return errors.Wrapf(err, "failed to create %s form field", field)
	}
	if _, err := io.Copy(part, f); err != nil {
		return errors.Wrapf(err, "failed to stream %s file", field)
	}
	return nil
}
