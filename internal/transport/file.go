package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileSender сохраняет каждое письмо как .html и .json в каталог.
// Для локальной разработки вместо реального провайдера.
type FileSender struct {
	dir string
	now func() time.Time
}

// NewFileSender создаёт FileSender. Каталог создаётся при первой отправке.
func NewFileSender(dir string) *FileSender {
	return &FileSender{dir: dir, now: time.Now}
}

// emailMetadata — JSON-описание письма без HTML.
type emailMetadata struct {
	Timestamp string `json:"timestamp"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Tag       string `json:"tag,omitempty"`
	TextBody  string `json:"text_body,omitempty"`
}

// Send записывает письмо на диск.
func (s *FileSender) Send(_ context.Context, email Email) error {
	if err := email.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("%w: create directory: %v", ErrSendFailed, err)
	}

	now := s.now()

	identifier := email.Tag
	if identifier == "" {
		identifier = email.Subject
	}
	// Суффикс uuid: несколько писем в одну секунду не перезаписывают друг друга
	base := fmt.Sprintf("%s_%s_%s", now.Format("2006_01_02_150405"), sanitizeFilename(identifier), uuid.NewString()[:8])

	if err := os.WriteFile(filepath.Join(s.dir, base+".html"), []byte(email.HTMLBody), 0o644); err != nil {
		return fmt.Errorf("%w: write html: %v", ErrSendFailed, err)
	}

	meta, err := json.MarshalIndent(emailMetadata{
		Timestamp: now.Format(time.RFC3339),
		To:        email.To,
		Subject:   email.Subject,
		Tag:       email.Tag,
		TextBody:  email.TextBody,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal metadata: %v", ErrSendFailed, err)
	}

	if err := os.WriteFile(filepath.Join(s.dir, base+".json"), meta, 0o644); err != nil {
		return fmt.Errorf("%w: write metadata: %v", ErrSendFailed, err)
	}

	return nil
}

// VerifyConnection проверяет, что каталог доступен для записи.
func (s *FileSender) VerifyConnection(context.Context) bool {
	return os.MkdirAll(s.dir, 0o755) == nil
}

var sanitizeRe = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)

// sanitizeFilename превращает строку в безопасное имя файла.
func sanitizeFilename(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = sanitizeRe.ReplaceAllString(s, "")

	const maxLength = 100
	if len(s) > maxLength {
		s = s[:maxLength]
	}
	if s == "" {
		s = "email"
	}

	return strings.ToLower(s)
}
