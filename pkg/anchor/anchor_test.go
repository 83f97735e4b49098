package anchor

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wentf9/nirvana/internal/testkit"
	"github.com/wentf9/nirvana/pkg/executor"
	"github.com/wentf9/nirvana/pkg/failure"
)

func recordSleeps(t *testing.T) *[]time.Duration {
	t.Helper()
	var got []time.Duration
	orig := sleepFunc
	sleepFunc = func(_ context.Context, d time.Duration) error {
		got = append(got, d)
		return nil
	}
	t.Cleanup(func() { sleepFunc = orig })
	return &got
}

func TestSwitchScriptWritesPIDBeforeSleep(t *testing.T) {
	for _, timeout := range []time.Duration{60 * time.Second, 300 * time.Second, 3600 * time.Second} {
		script := SwitchScript(timeout)
		pidAt := strings.Index(script, "echo $$ > "+PIDPath)
		sleepAt := strings.Index(script, "\nsleep ")
		require.GreaterOrEqual(t, pidAt, 0)
		require.Greater(t, sleepAt, pidAt)

		line := strings.SplitN(script[sleepAt+1:], "\n", 2)[0]
		require.Equal(t, "sleep "+strconv.Itoa(int(timeout.Seconds())), line)
	}
}

func TestSwitchScriptReenablesBeforeReboot(t *testing.T) {
	script := SwitchScript(5 * time.Minute)
	enableAt := strings.Index(script, "launchctl enable")
	rebootAt := strings.Index(script, "shutdown -r now")
	require.Greater(t, enableAt, strings.Index(script, "sleep 300"))
	require.Greater(t, rebootAt, enableAt)
	require.Contains(t, script, "launchctl print-disabled system")
}

func TestParseSnapshotID(t *testing.T) {
	id, err := ParseSnapshotID("Created local snapshot with date: 2024-05-01-120000\n")
	require.NoError(t, err)
	require.Equal(t, "2024-05-01-120000", id)

	_, err = ParseSnapshotID("Failed to create local snapshot\n")
	var de *failure.DeterministicError
	require.ErrorAs(t, err, &de)
}

func TestCreateSnapshot(t *testing.T) {
	fake := testkit.NewFakeExecutor().On("tmutil localsnapshot", "Created local snapshot with date: 2025-01-31-235959\n")
	id, err := CreateSnapshot(context.Background(), fake)
	require.NoError(t, err)
	require.Equal(t, "2025-01-31-235959", id)
	require.True(t, fake.Calls()[0].Elevate)

	fake = testkit.NewFakeExecutor().OnResult("tmutil", executor.Result{ExitCode: 1, Stderr: "not supported"})
	_, err = CreateSnapshot(context.Background(), fake)
	require.Equal(t, failure.KindDeterministic, failure.Classify(err))
}

func TestArmSwitchPollsUntilPIDAppears(t *testing.T) {
	sleeps := recordSleeps(t)
	fake := testkit.NewFakeExecutor().
		OnResult("cat "+PIDPath, executor.Result{ExitCode: 1}, executor.Result{Stdout: "1234\n"})

	sw, err := ArmSwitch(context.Background(), fake, 300*time.Second)
	require.NoError(t, err)
	require.Equal(t, 1234, sw.PID)
	require.Equal(t, 300*time.Second, sw.Timeout)
	require.Equal(t, []time.Duration{250 * time.Millisecond, 500 * time.Millisecond}, *sleeps)

	require.Equal(t, SwitchScript(300*time.Second), string(fake.Files[ScriptPath]))
	calls := fake.Calls()
	require.Len(t, calls, 5)
	require.True(t, calls[0].Write)
	require.Contains(t, calls[1].Cmd, "nohup /bin/sh "+ScriptPath)
	require.Contains(t, calls[1].Cmd, "< /dev/null &")
	require.Equal(t, "kill -0 1234", calls[4].Cmd)
	for _, c := range calls {
		require.True(t, c.Elevate)
	}
}

func TestArmSwitchFailures(t *testing.T) {
	recordSleeps(t)
	cases := []struct {
		name string
		fake *testkit.FakeExecutor
	}{
		{"pid never written", testkit.NewFakeExecutor().OnResult("cat "+PIDPath, executor.Result{ExitCode: 1})},
		{"process dead", testkit.NewFakeExecutor().On("cat "+PIDPath, "77\n").OnResult("kill -0", executor.Result{ExitCode: 1})},
		{"launch fails", testkit.NewFakeExecutor().OnResult("nohup", executor.Result{ExitCode: 126})},
		{"transport lost", testkit.NewFakeExecutor().OnErr("nohup", failure.Transient("execute", failure.ClassNetwork, errors.New("EOF")))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ArmSwitch(context.Background(), tc.fake, time.Minute)
			require.Equal(t, failure.KindDeterministic, failure.Classify(err))
		})
	}

	fake := testkit.NewFakeExecutor()
	fake.WriteErr = errors.New("read-only")
	_, err := ArmSwitch(context.Background(), fake, time.Minute)
	require.Equal(t, failure.KindDeterministic, failure.Classify(err))
	require.Equal(t, 0, fake.CountContaining("nohup"))
}

func TestDisarmSwitch(t *testing.T) {
	fake := testkit.NewFakeExecutor()
	ok, err := DisarmSwitch(context.Background(), fake, 1234)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"kill -9 1234", "rm -f " + ScriptPath + " " + PIDPath}, fake.Commands())

	fake = testkit.NewFakeExecutor().OnResult("kill -9", executor.Result{ExitCode: 1, Stderr: "No such process"})
	ok, err = DisarmSwitch(context.Background(), fake, 1234)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 1, fake.CountContaining("rm -f"))
}

func TestInspectSwitch(t *testing.T) {
	st, err := InspectSwitch(context.Background(), testkit.NewFakeExecutor().OnResult("cat", executor.Result{ExitCode: 1}))
	require.NoError(t, err)
	require.False(t, st.Armed)

	st, err = InspectSwitch(context.Background(), testkit.NewFakeExecutor().On("cat", "42\n"))
	require.NoError(t, err)
	require.Equal(t, SwitchStatus{Armed: true, PID: 42, Alive: true}, st)
}

type stubReader map[string]string

func (s stubReader) ReadFile(_ context.Context, p string) ([]byte, error) {
	v, ok := s[p]
	if !ok {
		return nil, errors.New("file does not exist")
	}
	return []byte(v), nil
}

func TestFetchSwitchLog(t *testing.T) {
	data, err := FetchSwitchLog(context.Background(), stubReader{LogPath: "re-enabled com.example.a\n"})
	require.NoError(t, err)
	require.Equal(t, "re-enabled com.example.a\n", string(data))

	_, err = FetchSwitchLog(context.Background(), stubReader{})
	require.Error(t, err)
}
