package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/JonasWeigert/VowPix/internal/pkg/env"
)

// ErrGenerationFailed wraps downstream provider failures. It is the sole
// input that drives a request from processing to failed.
var ErrGenerationFailed = errors.New("generation failed")

// Portrait styles offered to users. Requests may combine several.
var knownStyles = map[string]bool{
	"classic":     true,
	"vintage":     true,
	"editorial":   true,
	"watercolor":  true,
	"black_white": true,
	"golden_hour": true,
}

// ValidateStyles normalizes and checks a requested style list.
func ValidateStyles(styles []string) ([]string, error) {
	if len(styles) == 0 {
		return nil, errors.New("at least one style is required")
	}
	seen := make(map[string]struct{}, len(styles))
	out := make([]string, 0, len(styles))
	for _, raw := range styles {
		style := strings.ToLower(strings.TrimSpace(raw))
		if style == "" {
			continue
		}
		if !knownStyles[style] {
			return nil, fmt.Errorf("unknown style %q", style)
		}
		if _, ok := seen[style]; ok {
			continue
		}
		seen[style] = struct{}{}
		out = append(out, style)
	}
	if len(out) == 0 {
		return nil, errors.New("at least one style is required")
	}
	return out, nil
}

// Result is the provider's answer for one portrait generation.
type Result struct {
	ImageData   []byte
	ContentType string
}

// Provider is the opaque image-generation collaborator. It is invoked only
// after a successful debit; everything behind it is out of scope here.
type Provider interface {
	GeneratePortrait(ctx context.Context, photo []byte, styles []string) (*Result, error)
}

// HTTPProvider talks to the external AI portrait service over HTTP.
type HTTPProvider struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewProviderFromEnv builds the provider client from environment config.
func NewProviderFromEnv() *HTTPProvider {
	return &HTTPProvider{
		BaseURL: strings.TrimRight(env.GetEnv("GENERATION_API_URL", ""), "/"),
		APIKey:  strings.TrimSpace(env.GetEnv("GENERATION_API_KEY", "")),
		HTTPClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// GeneratePortrait submits the photo and style list and returns the rendered
// portrait bytes.
func (p *HTTPProvider) GeneratePortrait(ctx context.Context, photo []byte, styles []string) (*Result, error) {
	if p.BaseURL == "" {
		return nil, errors.New("GENERATION_API_URL is not configured")
	}
	if len(photo) == 0 {
		return nil, errors.New("photo payload is empty")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("photo", "photo.jpg")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(photo); err != nil {
		return nil, err
	}
	if err := writer.WriteField("styles", strings.Join(styles, ",")); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/v1/portraits", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr struct {
			Message string `json:"message"`
		}
		msg := strings.TrimSpace(string(payload))
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Message != "" {
			msg = apiErr.Message
		}
		return nil, fmt.Errorf("%w: provider returned %d: %s", ErrGenerationFailed, resp.StatusCode, msg)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return &Result{ImageData: data, ContentType: contentType}, nil
}
