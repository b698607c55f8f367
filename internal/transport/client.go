package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"meetiq/internal/config"
)

// HTTPDoer describes the HTTP client used by the transport.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client issues the three upload-protocol calls against the meetIQ backend.
// Every call is a synchronous point-in-time request with no internal retry;
// retry policy belongs to the orchestrator. Safe for concurrent use.
type Client struct {
	baseURL string
	doer    HTTPDoer
}

// New constructs a transport client from application config.
func New(cfg *config.Config) *Client {
	timeout := time.Duration(cfg.API.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return NewWithDoer(cfg.API.BaseURL, &http.Client{Timeout: timeout})
}

// NewWithDoer constructs a transport client with a custom HTTP doer (used in tests).
func NewWithDoer(baseURL string, doer HTTPDoer) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		doer:    doer,
	}
}

// Probe checks connectivity to the backend before an upload attempt starts.
// Any HTTP response counts as reachable; only a failed round trip does not.
func (c *Client) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return &Error{Op: "probe", Err: err}
	}
	resp, err := c.doer.Do(req)
	if err != nil {
		return &Error{Op: "probe", Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return nil
}

// SendChunk uploads one chunk as a multipart form. Re-sending the same index
// is idempotent from the server's point of view, so callers may deliver
// at-least-once.
func (c *Client) SendChunk(ctx context.Context, ownerID, recordingID string, index, totalChunks int, data io.Reader, filename string) (*ChunkUploadResponse, error) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		err := writeChunkForm(writer, ownerID, recordingID, index, totalChunks, data, filename)
		if closeErr := writer.Close(); err == nil {
			err = closeErr
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/meetings/upload_chunk", pr)
	if err != nil {
		return nil, &Error{Op: "upload_chunk", Err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	out := &ChunkUploadResponse{}
	if err := c.do(req, "upload_chunk", out); err != nil {
		return nil, err
	}
	return out, nil
}

func writeChunkForm(writer *multipart.Writer, ownerID, recordingID string, index, totalChunks int, data io.Reader, filename string) error {
	fields := map[string]string{
		"client_id":    ownerID,
		"meeting_id":   recordingID,
		"chunk_id":     strconv.Itoa(index),
		"total_chunks": strconv.Itoa(totalChunks),
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return fmt.Errorf("write field %s: %w", name, err)
		}
	}
	if filename == "" {
		filename = fmt.Sprintf("chunk_%d", index)
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, data); err != nil {
		return fmt.Errorf("copy chunk bytes: %w", err)
	}
	return nil
}

// Acknowledge asks the server which chunks it actually received.
func (c *Client) Acknowledge(ctx context.Context, ownerID, recordingID string, totalChunks int) (*AckResponse, error) {
	query := url.Values{}
	query.Set("client_id", ownerID)
	query.Set("meeting_id", recordingID)
	query.Set("total_chunks", strconv.Itoa(totalChunks))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/meetings/ack_upload?"+query.Encode(), nil)
	if err != nil {
		return nil, &Error{Op: "ack_upload", Err: err}
	}

	out := &AckResponse{}
	if err := c.do(req, "ack_upload", out); err != nil {
		return nil, err
	}
	return out, nil
}

// CheckJobStatus fetches the current state of an asynchronous job.
func (c *Client) CheckJobStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/meetings/status/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, &Error{Op: "job_status", Err: err}
	}

	out := &JobStatus{}
	if err := c.do(req, "job_status", out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.doer.Do(req)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		detail := strings.TrimSpace(string(body))
		if detail == "" {
			return &Error{Op: op, StatusCode: resp.StatusCode}
		}
		return &Error{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", detail)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
