package executor_test

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wentf9/nirvana/internal/testkit"
	"github.com/wentf9/nirvana/pkg/executor"
)

func TestShellQuote(t *testing.T) {
	require.Equal(t, "simple", executor.ShellQuote("simple"))
	require.Equal(t, "''", executor.ShellQuote(""))
	require.Equal(t, "'two words'", executor.ShellQuote("two words"))
	require.Equal(t, `'a'\''b'`, executor.ShellQuote("a'b"))
	require.Equal(t, "system/com.apple.foo", executor.ShellQuote("system/com.apple.foo"))
}

func TestWriteFileCommand(t *testing.T) {
	script := "#!/bin/sh\necho 'hi'\n"
	cmd := executor.WriteFileCommand("/var/tmp/nirvana/x.sh", []byte(script), 0700)

	encoded := base64.StdEncoding.EncodeToString([]byte(script))
	require.Equal(t,
		"mkdir -p /var/tmp/nirvana && echo "+encoded+" | base64 --decode > /var/tmp/nirvana/x.sh && chmod 700 /var/tmp/nirvana/x.sh",
		cmd)
	require.NotContains(t, cmd, "\n")
}

func TestRunScriptUploadsRunsAndRemoves(t *testing.T) {
	fake := testkit.NewFakeExecutor().On("/bin/sh /tmp/r.sh", "done\n")

	res, err := executor.RunScript(context.Background(), fake, "/tmp/r.sh", "echo done\n", executor.Elevated())
	require.NoError(t, err)
	require.Equal(t, "done\n", res.Stdout)
	require.Equal(t, "echo done\n", string(fake.Files["/tmp/r.sh"]))

	calls := fake.Calls()
	require.Len(t, calls, 3)
	require.True(t, calls[0].Write)
	require.Equal(t, "/bin/sh /tmp/r.sh", calls[1].Cmd)
	require.Equal(t, "rm -f /tmp/r.sh", calls[2].Cmd)
	for _, c := range calls {
		require.True(t, c.Elevate)
	}
}

func TestRunScriptUploadFailure(t *testing.T) {
	fake := testkit.NewFakeExecutor()
	fake.WriteErr = errors.New("disk full")

	_, err := executor.RunScript(context.Background(), fake, "/tmp/r.sh", "true\n")
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "disk full"))
	require.Equal(t, 0, fake.CountContaining("/bin/sh"))
}

func TestNewOptions(t *testing.T) {
	o := executor.NewOptions()
	require.False(t, o.Elevate)
	require.Equal(t, executor.DefaultTimeout, o.Timeout)

	o = executor.NewOptions(executor.Elevated(), executor.WithTimeout(0))
	require.True(t, o.Elevate)
	require.Equal(t, executor.DefaultTimeout, o.Timeout)
}
