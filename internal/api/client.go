// Package api is the HTTP client for the relay's document endpoints:
// snapshot loads and version saves.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hsinyu-ko/coedit/internal/errors"
	"github.com/hsinyu-ko/coedit/internal/models"
)

const defaultTimeout = 10 * time.Second

// Client talks to one relay server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the relay at baseURL, e.g.
// "http://localhost:8800". A nil httpClient gets a default with a 10s
// timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// Document fetches the current snapshot of a document.
func (c *Client) Document(ctx context.Context, documentID string) (models.Document, error) {
	var doc models.Document

	url := fmt.Sprintf("%s/api/documents/%s", c.baseURL, documentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return doc, errors.Wrap(errors.ErrInternal, "build document request", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return doc, errors.Wrap(errors.ErrConnectionFailed, "fetch document", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return doc, errors.New(errors.ErrDocumentNotFound, "document "+documentID+" not found")
	case resp.StatusCode != http.StatusOK:
		return doc, errors.New(errors.ErrInternal, fmt.Sprintf("fetch document: status %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return doc, errors.Wrap(errors.ErrDecodeFailed, "decode document response", err)
	}
	return doc, nil
}

// saveRequest is the version snapshot payload.
type saveRequest struct {
	Content string `json:"content"`
	Summary string `json:"summary"`
}

// saveResponse is the relay's save acknowledgement.
type saveResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// SaveSnapshot persists a content snapshot as a new document version.
func (c *Client) SaveSnapshot(ctx context.Context, documentID, content, summary string) error {
	body, err := json.Marshal(saveRequest{Content: content, Summary: summary})
	if err != nil {
		return errors.Wrap(errors.ErrInternal, "encode snapshot request", err)
	}

	url := fmt.Sprintf("%s/api/documents/%s/versions", c.baseURL, documentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(errors.ErrInternal, "build snapshot request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(errors.ErrConnectionFailed, "save snapshot", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errors.New(errors.ErrDocumentNotFound, "document "+documentID+" not found")
	}

	var ack saveResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&ack); err != nil {
		return errors.Wrap(errors.ErrDecodeFailed, "decode snapshot response", err)
	}
	if !ack.Success {
		msg := ack.Error
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return errors.New(errors.ErrSnapshotSaveFailed, msg)
	}
	return nil
}
