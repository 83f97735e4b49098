package sanitizer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wentf9/nirvana/internal/testkit"
	"github.com/wentf9/nirvana/pkg/config"
	"github.com/wentf9/nirvana/pkg/executor"
	"github.com/wentf9/nirvana/pkg/failure"
	"github.com/wentf9/nirvana/pkg/models"
)

const core1 = "com.apple.configd"

func listing(labels ...string) string {
	var b strings.Builder
	b.WriteString("PID\tStatus\tLabel\n")
	b.WriteString("-\t0\tcom.apple.loaded-not-running\n")
	for i, l := range labels {
		b.WriteString(strings.Repeat("1", i+1) + "\t0\t" + l + "\n")
	}
	return b.String()
}

// mutating 统计会修改目标机状态的调用
func mutating(f *testkit.FakeExecutor) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Write || strings.Contains(c.Cmd, "launchctl disable") || strings.Contains(c.Cmd, "bootout") || strings.Contains(c.Cmd, "launchctl enable") {
			n++
		}
	}
	return n
}

func TestParseActive(t *testing.T) {
	got := ParseActive(listing("a", "b") + "\n  \ngarbage\n")
	require.Equal(t, map[string]struct{}{"a": {}, "b": {}}, got)
}

func TestParseDisabled(t *testing.T) {
	out := `disabled services = {
	"com.example.b" => disabled
	"com.example.a" => true
	"com.example.on" => enabled
	"com.example.off" => false
}
`
	require.Equal(t, []string{"com.example.a", "com.example.b"}, ParseDisabled(out))
}

func TestComputeBloatHonoursPrefixes(t *testing.T) {
	active := ParseActive(listing("com.openssh.sshd.0D4A-11", "com.example.x", core1))
	bloat := ComputeBloat(active, config.MergedAllowlist(nil, false))
	require.Equal(t, []string{"com.example.x"}, bloat)
}

func TestStripProceedsWhenCoreIsAllowed(t *testing.T) {
	fake := testkit.NewFakeExecutor().OnResult("launchctl list",
		executor.Result{Stdout: listing("a", "b", "c", core1)},
		executor.Result{Stdout: listing(core1)},
	)
	actions, err := Strip(context.Background(), fake, config.NewAllowlist(core1))
	require.NoError(t, err)
	require.Len(t, actions, 3)
	for _, a := range actions {
		require.Equal(t, models.ActionDisable, a.Action)
		require.NotEqual(t, core1, a.Label)
	}
}

func TestStripRefusesWhenAllowlistOmitsCore(t *testing.T) {
	fake := testkit.NewFakeExecutor().On("launchctl list", listing("a", "b", "c", core1))
	_, err := Strip(context.Background(), fake, config.NewAllowlist("a"))
	var de *failure.DeterministicError
	require.ErrorAs(t, err, &de)
	require.Contains(t, err.Error(), core1)
	require.Equal(t, 0, mutating(fake))
	require.Equal(t, []string{"launchctl list"}, fake.Commands())
}

func TestStripRefusesPrefixedCoreInstance(t *testing.T) {
	fake := testkit.NewFakeExecutor().On("launchctl list", listing("com.openssh.sshd.7F3C"))
	_, err := Strip(context.Background(), fake, config.NewAllowlist())
	require.Equal(t, failure.KindDeterministic, failure.Classify(err))
	require.Equal(t, 0, mutating(fake))
}

func TestStripIssuesOneBatchedCommand(t *testing.T) {
	fake := testkit.NewFakeExecutor().OnResult("launchctl list",
		executor.Result{Stdout: listing("a", "b", "c", "x")},
		executor.Result{Stdout: listing("x")},
	)
	actions, err := Strip(context.Background(), fake, config.NewAllowlist("x"))
	require.NoError(t, err)
	require.Len(t, actions, 3)

	require.Equal(t, 1, mutating(fake))
	require.Equal(t, 1, fake.CountContaining("launchctl disable"))
	var batched string
	for _, c := range fake.Calls() {
		if strings.Contains(c.Cmd, "launchctl disable") {
			batched = c.Cmd
			require.True(t, c.Elevate)
		}
	}
	require.Equal(t, 3, strings.Count(batched, "launchctl disable "))
	for _, l := range []string{"a", "b", "c"} {
		require.Contains(t, batched, "launchctl disable system/"+l+" ;")
	}
	require.NotContains(t, batched, "system/x")
}

func TestStripRecordsSurvivorsAsWarnings(t *testing.T) {
	fake := testkit.NewFakeExecutor().OnResult("launchctl list",
		executor.Result{Stdout: listing("a", "respawner")},
		executor.Result{Stdout: listing("respawner")},
	)
	actions, err := Strip(context.Background(), fake, config.NewAllowlist())
	require.NoError(t, err)
	require.Len(t, actions, 3)
	require.Equal(t, models.ActionWarning, actions[2].Action)
	require.Equal(t, "respawner", actions[2].Label)
	require.Equal(t, 1, fake.CountContaining("launchctl disable"))
}

func TestStripNothingToDo(t *testing.T) {
	fake := testkit.NewFakeExecutor().On("launchctl list", listing(core1))
	actions, err := Strip(context.Background(), fake, config.MergedAllowlist(nil, false))
	require.NoError(t, err)
	require.Empty(t, actions)
	require.Equal(t, 0, mutating(fake))
}

func TestRestoreNamed(t *testing.T) {
	fake := testkit.NewFakeExecutor()
	actions, err := RestoreNamed(context.Background(), fake, []string{"b", "a", "b"})
	require.NoError(t, err)
	require.Len(t, actions, 2)
	require.Equal(t, []string{"launchctl enable system/a ; launchctl enable system/b"}, fake.Commands())
}

func TestRestoreAllWithNothingDisabled(t *testing.T) {
	fake := testkit.NewFakeExecutor().On("print-disabled", "disabled services = {\n\t\"com.example.x\" => enabled\n}\n")
	actions, err := RestoreAll(context.Background(), fake)
	require.NoError(t, err)
	require.NotNil(t, actions)
	require.Empty(t, actions)
	require.Equal(t, 0, mutating(fake))
	require.Len(t, fake.Calls(), 1)
}

func TestRestoreAllRunsScript(t *testing.T) {
	fake := testkit.NewFakeExecutor().
		On("print-disabled", "\t\"com.example.a\" => disabled\n\t\"com.example.b\" => disabled\n").
		On("/bin/sh "+RestorePath, "restored com.example.a\n")

	actions, err := RestoreAll(context.Background(), fake)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	require.Equal(t, models.ActionRestore, actions[0].Action)
	require.Equal(t, "com.example.a", actions[0].Label)
	require.Equal(t, models.ActionWarning, actions[1].Action)

	script := string(fake.Files[RestorePath])
	require.Contains(t, script, "launchctl enable system/com.example.a && echo 'restored com.example.a'")
	require.Equal(t, 1, fake.CountContaining("rm -f "+RestorePath))
}
