package handler

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/cuongbtq/lecturecast/internal/jobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobCursor_RoundTrip(t *testing.T) {
	in := &jobstore.Cursor{
		CreatedAt: time.Date(2026, 3, 1, 9, 30, 0, 123456789, time.UTC),
		JobID:     "3f6c1c1e-8f0a-4c36-9d5e-5b0f5c7f2a11",
	}

	out, err := DecodeJobCursor(EncodeJobCursor(in))
	require.NoError(t, err)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.Equal(t, in.JobID, out.JobID)
}

func TestDecodeJobCursor(t *testing.T) {
	enc := func(s string) string { return base64.URLEncoding.EncodeToString([]byte(s)) }

	tests := []struct {
		name    string
		cursor  string
		wantNil bool
		wantErr bool
	}{
		{name: "empty means first page", cursor: "", wantNil: true},
		{name: "not base64", cursor: "***", wantErr: true},
		{name: "missing separator", cursor: enc("12345"), wantErr: true},
		{name: "missing job id", cursor: enc("12345|"), wantErr: true},
		{name: "non-numeric time", cursor: enc("yesterday|job-1"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := DecodeJobCursor(tt.cursor)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, c)
			}
		})
	}
}
