package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmailStatus_Valid(t *testing.T) {
	for _, s := range EmailStatuses {
		assert.True(t, s.Valid(), "status %q should be valid", s)
	}
	assert.False(t, EmailStatus("queued").Valid())
	assert.False(t, EmailStatus("").Valid())
}

func TestParseEmailStatus(t *testing.T) {
	s, err := ParseEmailStatus(" Failed ")
	require.NoError(t, err)
	assert.Equal(t, EmailStatusFailed, s)

	_, err = ParseEmailStatus("bounced")
	require.Error(t, err)
	assert.True(t, IsCode(err, EINVALID))
}

func TestNewEmail_Validate(t *testing.T) {
	t.Run("complete", func(t *testing.T) {
		err := NewEmail{RecipientEmail: "x@y.com", Subject: "S", Body: "<p>B</p>"}.Validate()
		assert.NoError(t, err)
	})

	t.Run("missing everything", func(t *testing.T) {
		err := NewEmail{}.Validate()
		require.Error(t, err)

		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Len(t, ve.Fields, 3)
		assert.Equal(t, "email_queue.insert", ve.Op)
	})

	t.Run("whitespace subject", func(t *testing.T) {
		err := NewEmail{RecipientEmail: "x@y.com", Subject: "  ", Body: "b"}.Validate()
		require.Error(t, err)

		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Contains(t, ve.Fields, "subject")
	})
}
