package contentstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/nfturvy/market-ledger/internal/logger"
)

// Store is the off-chain content store collaborator: metadata documents and
// item images live here, addressed by URI. It is purely advisory; no ledger
// invariant depends on it.
type Store interface {
	// Put stores a blob and returns its gateway URI
	Put(ctx context.Context, data []byte) (string, error)
	// Get fetches a blob by URI
	Get(ctx context.Context, uri string) ([]byte, error)
}

// Config holds content store configuration
type Config struct {
	// APIURL is the IPFS-compatible add endpoint
	APIURL string
	// GatewayURL serves stored content by CID
	GatewayURL  string
	HTTPTimeout time.Duration
	MaxRetry    time.Duration
}

type ipfsStore struct {
	config Config
	client *http.Client
}

// addResponse is the JSON envelope returned by /api/v0/add
type addResponse struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

// NewIPFSStore creates a content store backed by an IPFS HTTP API and gateway
func NewIPFSStore(cfg Config) Store {
	return &ipfsStore{
		config: cfg,
		client: &http.Client{Timeout: cfg.HTTPTimeout},
	}
}

// Put uploads a blob through the IPFS add endpoint and returns its gateway URI
func (s *ipfsStore) Put(ctx context.Context, data []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	mime := mimetype.Detect(data)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="file"`)
	header.Set("Content-Type", mime.String())

	part, err := writer.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("failed to create multipart: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("failed to write multipart: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart: %w", err)
	}

	endpoint := strings.TrimSuffix(s.config.APIURL, "/") + "/api/v0/add"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("failed to build add request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload content: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Warn("Failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("content store add returned status %d", resp.StatusCode)
	}

	var added addResponse
	if err := json.NewDecoder(resp.Body).Decode(&added); err != nil {
		return "", fmt.Errorf("failed to decode add response: %w", err)
	}
	if added.Hash == "" {
		return "", fmt.Errorf("content store add returned empty hash")
	}

	logger.Debug("Stored content",
		zap.String("cid", added.Hash),
		zap.String("mime_type", mime.String()),
		zap.Int("size", len(data)),
	)

	return fmt.Sprintf("%s/ipfs/%s", strings.TrimSuffix(s.config.GatewayURL, "/"), added.Hash), nil
}

// Get fetches a blob by URI with exponential backoff. Gateway reads are
// frequently flaky on fresh content, so transient failures retry until
// MaxRetry elapses.
func (s *ipfsStore) Get(ctx context.Context, uri string) ([]byte, error) {
	uri = s.resolveURI(uri)

	var data []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to build get request: %w", err))
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer func() {
			if err := resp.Body.Close(); err != nil {
				logger.Warn("Failed to close response body", zap.Error(err))
			}
		}()

		switch {
		case resp.StatusCode == http.StatusOK:
			data, err = io.ReadAll(resp.Body)
			return err
		case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
			return backoff.Permanent(fmt.Errorf("content store get returned status %d", resp.StatusCode))
		default:
			return fmt.Errorf("content store get returned status %d", resp.StatusCode)
		}
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = s.config.MaxRetry

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}

	return data, nil
}

// resolveURI rewrites ipfs:// URIs onto the configured gateway
func (s *ipfsStore) resolveURI(uri string) string {
	if cid, ok := strings.CutPrefix(uri, "ipfs://"); ok {
		return fmt.Sprintf("%s/ipfs/%s", strings.TrimSuffix(s.config.GatewayURL, "/"), cid)
	}
	return uri
}
