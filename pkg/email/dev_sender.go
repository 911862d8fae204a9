package email

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// DevSender writes each email to dir as an .html body plus a .json envelope
// instead of sending it.
type DevSender struct {
	dir string
	now func() time.Time
}

func NewDevSender(dir string) *DevSender {
	return &DevSender{dir: dir, now: time.Now}
}

type envelope struct {
	Timestamp string `json:"timestamp"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
}

func (d *DevSender) Send(ctx context.Context, to, subject, html string) Result {
	if err := ValidateMessage(to, subject, html); err != nil {
		return failed(err)
	}
	if err := ctx.Err(); err != nil {
		return failed(err)
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return failed(fmt.Errorf("%w: create directory: %v", ErrFailedToSendEmail, err))
	}

	now := d.now()
	base := fmt.Sprintf("%s_%s", now.Format("2006_01_02_150405.000000"), sanitizeFilename(subject))

	if err := os.WriteFile(filepath.Join(d.dir, base+".html"), []byte(html), 0o644); err != nil {
		return failed(fmt.Errorf("%w: write body: %v", ErrFailedToSendEmail, err))
	}

	meta, err := json.MarshalIndent(envelope{
		Timestamp: now.Format(time.RFC3339),
		To:        to,
		Subject:   subject,
	}, "", "  ")
	if err != nil {
		return failed(fmt.Errorf("%w: marshal envelope: %v", ErrFailedToSendEmail, err))
	}
	if err := os.WriteFile(filepath.Join(d.dir, base+".json"), meta, 0o644); err != nil {
		return failed(fmt.Errorf("%w: write envelope: %v", ErrFailedToSendEmail, err))
	}
	return ok()
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)

func sanitizeFilename(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = unsafeFilenameChars.ReplaceAllString(s, "")
	if len(s) > 80 {
		s = s[:80]
	}
	if s == "" {
		s = "email"
	}
	return strings.ToLower(s)
}

// New picks the Postmark sender when credentials are configured and the
// DevSender otherwise.
func New(cfg Config) (Sender, error) {
	if cfg.UsePostmark() {
		return NewPostmarkSender(cfg)
	}
	return NewDevSender(cfg.DevOutputDir), nil
}
