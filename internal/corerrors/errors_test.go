package corerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoreError_Unwrap_PreservesOriginalError(t *testing.T) {
	originalErr := errors.New("original error")

	coreErr := New(ErrCodeIO, "file not found: test.txt", originalErr)

	require.NotNil(t, coreErr)
	assert.Equal(t, originalErr, errors.Unwrap(coreErr))
	assert.True(t, errors.Is(coreErr, originalErr))
}

func TestCoreError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "config error",
			code:     ErrCodeConfigNotFound,
			message:  "config file not found",
			expected: "[ERR_101_CONFIG_NOT_FOUND] config file not found",
		},
		{
			name:     "io error",
			code:     ErrCodeIO,
			message:  "file.go not found",
			expected: "[ERR_201_IO] file.go not found",
		},
		{
			name:     "parse error",
			code:     ErrCodeParseError,
			message:  "unexpected token",
			expected: "[ERR_303_PARSE_ERROR] unexpected token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestCoreError_Is_MatchesByCode(t *testing.T) {
	err1 := New(ErrCodeIO, "file A not found", nil)
	err2 := New(ErrCodeIO, "file B not found", nil)
	assert.True(t, errors.Is(err1, err2))
}

func TestCoreError_Is_DoesNotMatchDifferentCodes(t *testing.T) {
	err1 := New(ErrCodeIO, "file not found", nil)
	err2 := New(ErrCodeConfigNotFound, "config not found", nil)
	assert.False(t, errors.Is(err1, err2))
}

func TestCoreError_WithDetails_AddsContext(t *testing.T) {
	err := New(ErrCodeIO, "file not found", nil)

	err = err.WithDetail("path", "/foo/bar.go")
	err = err.WithDetail("size", "1024")

	assert.Equal(t, "/foo/bar.go", err.Details["path"])
	assert.Equal(t, "1024", err.Details["size"])
}

func TestCoreError_WithSuggestion_AddsSuggestion(t *testing.T) {
	err := New(ErrCodeTimeout, "embedder call timed out", nil)
	err = err.WithSuggestion("check the embedder endpoint is reachable")
	assert.Equal(t, "check the embedder endpoint is reachable", err.Suggestion)
}

func TestCoreError_CategoryFromCode(t *testing.T) {
	tests := []struct {
		code         string
		wantCategory Category
	}{
		{ErrCodeConfigNotFound, CategoryConfig},
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodeIO, CategoryIO},
		{ErrCodeFilePermission, CategoryIO},
		{ErrCodeUnknownLanguage, CategoryParse},
		{ErrCodeParseError, CategoryParse},
		{ErrCodeCacheMiss, CategoryCache},
		{ErrCodeChecksumMismatch, CategoryCache},
		{ErrCodeInternal, CategoryInternal},
		{ErrCodeTimeout, CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantCategory, err.Category)
		})
	}
}

func TestCoreError_SeverityFromCode(t *testing.T) {
	tests := []struct {
		code         string
		wantSeverity Severity
	}{
		{ErrCodeCorruptedEntry, SeverityFatal},
		{ErrCodeDiskFull, SeverityFatal},
		{ErrCodeIO, SeverityError},
		{ErrCodeTimeout, SeverityWarning},
		{ErrCodeServerBusy, SeverityWarning},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantSeverity, err.Severity)
		})
	}
}

func TestCoreError_RetryableFromCode(t *testing.T) {
	tests := []struct {
		code          string
		wantRetryable bool
	}{
		{ErrCodeTimeout, true},
		{ErrCodeServerBusy, true},
		{ErrCodeIO, false},
		{ErrCodeConfigInvalid, false},
		{ErrCodeCorruptedEntry, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantRetryable, err.Retryable)
		})
	}
}

func TestWrap_CreatesCoreErrorFromError(t *testing.T) {
	originalErr := errors.New("something went wrong")

	coreErr := Wrap(ErrCodeInternal, originalErr)

	require.NotNil(t, coreErr)
	assert.Equal(t, ErrCodeInternal, coreErr.Code)
	assert.Equal(t, "something went wrong", coreErr.Message)
	assert.Equal(t, originalErr, coreErr.Cause)
}

func TestConfigError_CreatesConfigCategoryError(t *testing.T) {
	err := ConfigError("invalid yaml syntax", nil)
	assert.Equal(t, CategoryConfig, err.Category)
	assert.Contains(t, err.Code, "CONFIG")
}

func TestIOError_CreatesIOCategoryError(t *testing.T) {
	err := IOError("cannot read file", nil)
	assert.Equal(t, CategoryIO, err.Category)
}

func TestParseError_CreatesParseCategoryError(t *testing.T) {
	err := ParseError("unexpected EOF", nil)
	assert.Equal(t, CategoryParse, err.Category)
}

func TestChecksumMismatchError_IsFatal(t *testing.T) {
	err := ChecksumMismatchError("frozen entry checksum mismatch", nil)
	assert.Equal(t, SeverityFatal, err.Severity)
}

func TestTimeoutError_IsRetryable(t *testing.T) {
	err := TimeoutError("embedder call timed out", nil)
	assert.True(t, err.Retryable)
}

func TestIsRetryable_ChecksRetryableFlag(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"retryable CoreError", New(ErrCodeTimeout, "timeout", nil), true},
		{"non-retryable CoreError", New(ErrCodeIO, "not found", nil), false},
		{"wrapped retryable error", Wrap(ErrCodeTimeout, errors.New("wrapped")), true},
		{"standard error", errors.New("standard error"), false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.err))
		})
	}
}

func TestIsFatal_ChecksFatalSeverity(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"fatal error", New(ErrCodeCorruptedEntry, "entry corrupt", nil), true},
		{"disk full error", New(ErrCodeDiskFull, "no space left", nil), true},
		{"non-fatal error", New(ErrCodeIO, "not found", nil), false},
		{"standard error", errors.New("standard error"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsFatal(tt.err))
		})
	}
}
