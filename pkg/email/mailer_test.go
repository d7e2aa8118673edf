package email_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asystentai/backend/pkg/email"
)

func TestSendEmailParamsValidate(t *testing.T) {
	t.Parallel()

	valid := email.SendEmailParams{
		SendTo:   "user@example.com",
		Subject:  "Hello",
		BodyHTML: "<p>Hi</p>",
	}
	require.NoError(t, valid.Validate())

	t.Run("bad recipient", func(t *testing.T) {
		p := valid
		p.SendTo = "not-an-email"
		require.ErrorIs(t, p.Validate(), email.ErrInvalidParams)
	})

	t.Run("missing subject", func(t *testing.T) {
		p := valid
		p.Subject = ""
		require.ErrorIs(t, p.Validate(), email.ErrInvalidParams)
	})

	t.Run("missing body", func(t *testing.T) {
		p := valid
		p.BodyHTML = ""
		require.ErrorIs(t, p.Validate(), email.ErrInvalidParams)
	})
}

func TestNewPostmarkClientConfig(t *testing.T) {
	t.Parallel()

	_, err := email.NewPostmarkClient(email.Config{
		SenderEmail:  "noreply@example.com",
		SupportEmail: "support@example.com",
	})
	require.ErrorIs(t, err, email.ErrInvalidConfig)

	_, err = email.NewPostmarkClient(email.Config{
		PostmarkServerToken:  "server",
		PostmarkAccountToken: "account",
		SenderEmail:          "bad",
		SupportEmail:         "support@example.com",
	})
	require.ErrorIs(t, err, email.ErrInvalidConfig)
}

func TestDevSenderWritesFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sender := email.NewDevSender(filepath.Join(dir, "emails"))

	require.NoError(t, sender.SendEmail(context.Background(), email.SendEmailParams{
		SendTo:   "user@example.com",
		Subject:  "Hello",
		BodyHTML: "<p>Hi</p>",
		Tag:      "test",
	}))

	entries, err := os.ReadDir(filepath.Join(dir, "emails"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
