// Package testkit holds fakes shared by package tests.
package testkit

import (
	"context"
	"io/fs"
	"strings"
	"sync"

	"github.com/wentf9/nirvana/pkg/executor"
)

// Call is one recorded Execute or WriteFile.
type Call struct {
	Cmd     string
	Elevate bool
	Write   bool
}

type reply struct {
	res executor.Result
	err error
}

type rule struct {
	contains string
	replies  []reply
}

// FakeExecutor scripts responses by command substring and records every call.
// Rules are matched in registration order; a rule with several replies hands
// them out in sequence and then repeats the last one. Unmatched commands
// succeed with empty output.
type FakeExecutor struct {
	mu       sync.Mutex
	rules    []*rule
	calls    []Call
	Files    map[string][]byte
	WriteErr error
	Closed   bool
}

func NewFakeExecutor() *FakeExecutor {
	return &FakeExecutor{Files: make(map[string][]byte)}
}

// On replies with stdout and exit code 0.
func (f *FakeExecutor) On(contains, stdout string) *FakeExecutor {
	return f.OnResult(contains, executor.Result{Stdout: stdout})
}

// OnResult replies with the given results in order.
func (f *FakeExecutor) OnResult(contains string, results ...executor.Result) *FakeExecutor {
	r := &rule{contains: contains}
	for _, res := range results {
		r.replies = append(r.replies, reply{res: res})
	}
	f.mu.Lock()
	f.rules = append(f.rules, r)
	f.mu.Unlock()
	return f
}

// OnErr fails matching commands with err.
func (f *FakeExecutor) OnErr(contains string, err error) *FakeExecutor {
	f.mu.Lock()
	f.rules = append(f.rules, &rule{contains: contains, replies: []reply{{res: executor.Result{ExitCode: -1}, err: err}}})
	f.mu.Unlock()
	return f
}

func (f *FakeExecutor) Execute(_ context.Context, cmd string, opts ...executor.Option) (executor.Result, error) {
	o := executor.NewOptions(opts...)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Cmd: cmd, Elevate: o.Elevate})
	for _, r := range f.rules {
		if !strings.Contains(cmd, r.contains) {
			continue
		}
		next := r.replies[0]
		if len(r.replies) > 1 {
			r.replies = r.replies[1:]
		}
		return next.res, next.err
	}
	return executor.Result{}, nil
}

func (f *FakeExecutor) WriteFile(_ context.Context, path string, content []byte, mode fs.FileMode, opts ...executor.Option) error {
	o := executor.NewOptions(opts...)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Cmd: executor.WriteFileCommand(path, content, mode), Elevate: o.Elevate, Write: true})
	if f.WriteErr != nil {
		return f.WriteErr
	}
	f.Files[path] = append([]byte(nil), content...)
	return nil
}

func (f *FakeExecutor) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Calls returns a copy of every recorded call.
func (f *FakeExecutor) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Commands returns the recorded command strings.
func (f *FakeExecutor) Commands() []string {
	var out []string
	for _, c := range f.Calls() {
		out = append(out, c.Cmd)
	}
	return out
}

// CountContaining counts recorded calls whose command contains substr.
func (f *FakeExecutor) CountContaining(substr string) int {
	n := 0
	for _, c := range f.Calls() {
		if strings.Contains(c.Cmd, substr) {
			n++
		}
	}
	return n
}
