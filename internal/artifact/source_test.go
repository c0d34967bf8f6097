package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSource(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		locator  string
		wantType SourceType
		wantLoc  string
	}{
		{"t5-base", SourceTypeHuggingface, "t5-base"},
		{"hf:google/flan-t5-base", SourceTypeHuggingface, "google/flan-t5-base"},
		{"google/flan-t5-base", SourceTypeHuggingface, "google/flan-t5-base"},
		{"file:models/summarizer", SourceTypeFile, "models/summarizer"},
		{"./content-summarizer-final", SourceTypeFile, "./content-summarizer-final"},
		{"~/models/t5", SourceTypeFile, "~/models/t5"},
		{dir, SourceTypeFile, dir},
		{"s3://bucket/models/t5", SourceTypeS3, "bucket/models/t5"},
		{"  t5-small  ", SourceTypeHuggingface, "t5-small"},
	}

	for _, tt := range tests {
		t.Run(tt.locator, func(t *testing.T) {
			src, err := ParseSource(tt.locator)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, src.Type)
			assert.Equal(t, tt.wantLoc, src.Location)
		})
	}
}

func TestParseSourceRejectsMalformed(t *testing.T) {
	for _, locator := range []string{"", "   ", "hf:", "file:", "s3://", "a/b/c"} {
		_, err := ParseSource(locator)
		assert.ErrorIs(t, err, ErrUnresolvable, locator)
	}
}
