package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MaxInputImageBytes bounds downloads of user supplied images.
const MaxInputImageBytes = 10 << 20

// FetchImage downloads an input image and sniffs its MIME type from the content.
func FetchImage(ctx context.Context, client *http.Client, imageURL string) ([]byte, string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("fetch image: build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxInputImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("fetch image: read body: %w", err)
	}
	if len(data) > MaxInputImageBytes {
		return nil, "", fmt.Errorf("fetch image: larger than %d bytes", MaxInputImageBytes)
	}
	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		return nil, "", fmt.Errorf("fetch image: unsupported content type %s", mime.String())
	}
	return data, mime.String(), nil
}

// ImageExtension returns the file extension (with dot) for data, defaulting to .png.
func ImageExtension(data []byte) string {
	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") || mime.Extension() == "" {
		return ".png"
	}
	return mime.Extension()
}
