package templates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shaiso/Herald/internal/domain"
)

const defaultHTTPTimeout = 10 * time.Second

// HTTPStore читает шаблоны из сервиса шаблонов:
//
//	GET {baseURL}/internal/templates/{code}
//
// Ответ: {"subject": "...", "body": "..."} или {"content": "..."} вместо body,
// допускается обёртка {"data": {...}}. 404 → ErrTemplateNotFound.
type HTTPStore struct {
	baseURL string
	client  *http.Client
}

// NewHTTPStore создаёт HTTPStore. timeout <= 0 заменяется на 10s.
func NewHTTPStore(baseURL string, timeout time.Duration) *HTTPStore {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTTPStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// templatePayload — тело ответа сервиса шаблонов.
type templatePayload struct {
	Code    string `json:"template_code"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Content string `json:"content"`
	Version int    `json:"version"`

	Data *templatePayload `json:"data"`
}

// GetByCode загружает шаблон по коду.
func (s *HTTPStore) GetByCode(ctx context.Context, code string) (*domain.ResolvedTemplate, error) {
	endpoint := s.baseURL + "/internal/templates/" + url.PathEscape(code)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrStoreUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, code)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrStoreUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrStoreUnavailable, resp.StatusCode, truncate(string(body), 200))
	}

	var payload templatePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrStoreUnavailable, err)
	}
	if payload.Data != nil {
		payload = *payload.Data
	}

	tmpl := &domain.ResolvedTemplate{
		Code:    code,
		Subject: payload.Subject,
		Body:    payload.Body,
		Version: payload.Version,
	}
	if tmpl.Body == "" {
		tmpl.Body = payload.Content
	}

	return tmpl, nil
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
