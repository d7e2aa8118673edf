package email

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DevSender writes emails to a local directory instead of sending them.
type DevSender struct {
	dir string
}

// NewDevSender creates a development sender. The directory is created on the
// first send.
func NewDevSender(dir string) *DevSender {
	return &DevSender{dir: dir}
}

// SendEmail saves the email body as HTML next to a JSON metadata file.
func (d *DevSender) SendEmail(ctx context.Context, params SendEmailParams) error {
	if err := params.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrFailedToSendEmail, err)
	}

	base := time.Now().Format("2006_01_02_150405.000000")
	if err := os.WriteFile(filepath.Join(d.dir, base+".html"), []byte(params.BodyHTML), 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrFailedToSendEmail, err)
	}

	meta, err := json.MarshalIndent(map[string]string{
		"send_to": params.SendTo,
		"subject": params.Subject,
		"tag":     params.Tag,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFailedToSendEmail, err)
	}
	if err := os.WriteFile(filepath.Join(d.dir, base+".json"), meta, 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrFailedToSendEmail, err)
	}
	return nil
}
