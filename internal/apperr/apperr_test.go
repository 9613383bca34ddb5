package apperr

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestKindOf_Refinement verifies that well-known causes override the category default.
func TestKindOf_Refinement(t *testing.T) {
	t.Parallel()

	_, openErr := os.Open(filepath.Join(t.TempDir(), "absent.exe"))
	require.Error(t, openErr)

	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"plain io", Structural("write resources", errors.New("boom")), KindIO},
		{"malformed", Malformed("parse version", errors.New("short block")), KindInvalidData},
		{"canceled", Acquisition("download", context.Canceled), KindCanceled},
		{"permission", Publish("rename", fs.ErrPermission), KindAccessDenied},
		{"path error", Input("open icon", &fs.PathError{Op: "open", Path: "x", Err: os.ErrPermission}), KindAccessDenied},
		{"network", Acquisition("download", &url.Error{Op: "Get", URL: "http://x", Err: errors.New("refused")}), KindNetwork},
		{"arguments", InvalidArguments("parse", errors.New("bad")), KindInvalidArguments},
		{"foreign", errors.New("unclassified"), KindUnknown},
		{"missing file", Acquisition("open template", openErr), KindIO},
		{"bare missing file", openErr, KindIO},
		{"dial", Acquisition("download", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}), KindNetwork},
		{"dns", Acquisition("download", &net.DNSError{Err: "no such host", Name: "x"}), KindNetwork},
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, KindOf(tc.err), tc.name)
	}
}

// TestKindOf_InnerKept ensures re-wrapping keeps the innermost classification.
func TestKindOf_InnerKept(t *testing.T) {
	t.Parallel()

	inner := Malformed("parse icon", errors.New("bad header"))
	outer := Structural("patch icon", inner)

	require.Equal(t, KindInvalidData, KindOf(outer))
	require.Equal(t, KindInvalidData, KindOf(fmt.Errorf("build: %w", outer)))
}

// TestExitCode checks distinct exit codes per kind.
func TestExitCode(t *testing.T) {
	t.Parallel()

	require.Equal(t, ExitOK, ExitCode(nil))
	require.Equal(t, ExitCanceled, ExitCode(Acquisition("x", context.Canceled)))
	require.Equal(t, ExitIO, ExitCode(Publish("x", errors.New("disk full"))))
	require.Equal(t, ExitUnknown, ExitCode(errors.New("other")))

	seen := make(map[int]Kind)

	for k := KindCanceled; k <= KindNotSupported; k++ {
		code := k.ExitCode()
		_, dup := seen[code]
		require.False(t, dup, "exit code %d reused by %s", code, k)

		seen[code] = k
	}
}

// TestNew_Nil returns nil for nil causes so call sites can wrap unconditionally.
func TestNew_Nil(t *testing.T) {
	t.Parallel()

	require.NoError(t, Structural("noop", nil))
}
