package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultLogger(t *testing.T) {
	t.Parallel()

	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	assert.Same(t, custom, defaultLogger(custom))
	assert.Same(t, slog.Default(), defaultLogger(nil))
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		err  error
		want string
	}{
		"nil":             {err: nil, want: ""},
		"unauthenticated": {err: ErrUnauthenticated, want: "unauthenticated"},
		"forbidden":       {err: fmt.Errorf("wrap: %w", ErrForbidden), want: "forbidden"},
		"not found":       {err: ErrNotFound, want: "not_found"},
		"conflict":        {err: ErrConflict, want: "conflict"},
		"validation":      {err: newValidationError("url", "url is required"), want: "validation"},
		"unexpected":      {err: errors.New("boom"), want: "unexpected"},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, ErrorKind(tc.err))
		})
	}
}

func TestLogResult(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	logResult(context.Background(), logger, nil, "done")
	logResult(context.Background(), logger, ErrNotFound, "done")
	logResult(context.Background(), logger, errors.New("boom"), "done")

	out := buf.String()
	assert.Contains(t, out, `"level":"INFO","msg":"done"`)
	assert.Contains(t, out, `"level":"WARN","msg":"operation rejected"`)
	assert.Contains(t, out, `"level":"ERROR","msg":"operation failed"`)
}
