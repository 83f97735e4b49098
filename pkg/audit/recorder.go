package audit

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/wentf9/nirvana/pkg/failure"
	"github.com/wentf9/nirvana/pkg/models"
	"gopkg.in/yaml.v3"
)

// Recorder 一次运行的审计记录，只追加
type Recorder interface {
	Transition(from, to string)
	SnapshotCreated(id string)
	SwitchArmed(pid int, timeout time.Duration)
	SwitchDisarmed(pid int, killed bool)
	DaemonAction(a models.DaemonAction)
	WorkloadLaunched(binary string, pid int)
	Failure(kind failure.Kind, err error)
	// Finalize 每次运行恰好调用一次，返回审计文件路径
	Finalize(final string) (string, error)
}

// Event 时间线上的一条记录
type Event struct {
	Time   time.Time         `yaml:"time"`
	Kind   string            `yaml:"kind"`
	Fields map[string]string `yaml:"fields,omitempty"`
}

// FailureRecord 导致运行中止的错误
type FailureRecord struct {
	Kind    failure.Kind `yaml:"kind"`
	Message string       `yaml:"message"`
}

// Document 写入磁盘的审计文件
type Document struct {
	Host       string                `yaml:"host"`
	StartedAt  time.Time             `yaml:"started_at"`
	FinishedAt time.Time             `yaml:"finished_at"`
	FinalState string                `yaml:"final_state"`
	Snapshot   string                `yaml:"snapshot,omitempty"`
	Events     []Event               `yaml:"events"`
	Actions    []models.DaemonAction `yaml:"daemon_actions"`
	Failure    *FailureRecord        `yaml:"failure,omitempty"`
}

var ErrFinalized = errors.New("audit already finalized")

// FileRecorder 在内存中累积记录，Finalize 时写成一个 YAML 文件
type FileRecorder struct {
	mu        sync.Mutex
	dir       string
	doc       Document
	finalized bool
	now       func() time.Time
}

func NewFileRecorder(dir, host string) *FileRecorder {
	r := &FileRecorder{dir: dir, now: func() time.Time { return time.Now().UTC() }}
	r.doc = Document{Host: host, StartedAt: r.now(), Events: []Event{}, Actions: []models.DaemonAction{}}
	return r
}

func (r *FileRecorder) add(kind string, kv ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return
	}
	e := Event{Time: r.now(), Kind: kind}
	if len(kv) > 0 {
		e.Fields = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			e.Fields[kv[i]] = kv[i+1]
		}
	}
	r.doc.Events = append(r.doc.Events, e)
}

func (r *FileRecorder) Transition(from, to string) {
	r.add("transition", "from", from, "to", to)
}

func (r *FileRecorder) SnapshotCreated(id string) {
	r.mu.Lock()
	r.doc.Snapshot = id
	r.mu.Unlock()
	r.add("snapshot_created", "id", id)
}

func (r *FileRecorder) SwitchArmed(pid int, timeout time.Duration) {
	r.add("switch_armed", "pid", fmt.Sprint(pid), "timeout", timeout.String())
}

func (r *FileRecorder) SwitchDisarmed(pid int, killed bool) {
	r.add("switch_disarmed", "pid", fmt.Sprint(pid), "killed", fmt.Sprint(killed))
}

func (r *FileRecorder) DaemonAction(a models.DaemonAction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return
	}
	r.doc.Actions = append(r.doc.Actions, a)
}

func (r *FileRecorder) WorkloadLaunched(binary string, pid int) {
	r.add("workload_launched", "binary", binary, "pid", fmt.Sprint(pid))
}

func (r *FileRecorder) Failure(kind failure.Kind, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	r.mu.Lock()
	r.doc.Failure = &FailureRecord{Kind: kind, Message: msg}
	r.mu.Unlock()
	r.add("failure", "kind", string(kind), "message", msg)
}

// Finalize 写出审计文件，文件名包含主机和开始时间
func (r *FileRecorder) Finalize(final string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return "", ErrFinalized
	}
	r.finalized = true
	r.doc.FinalState = final
	r.doc.FinishedAt = r.now()

	if err := os.MkdirAll(r.dir, 0700); err != nil {
		return "", fmt.Errorf("create audit dir: %w", err)
	}
	data, err := yaml.Marshal(&r.doc)
	if err != nil {
		return "", fmt.Errorf("encode audit: %w", err)
	}
	base := fmt.Sprintf("%s-%s", sanitizeHost(r.doc.Host), r.doc.StartedAt.Format("20060102T150405Z"))
	return writeExclusive(r.dir, base, data)
}

// maxNameAttempts 同一主机同一秒内启动的运行数上限
const maxNameAttempts = 1000

// writeExclusive 以 O_EXCL 创建文件，重名时追加 -1、-2 ... 后缀，从不覆盖已有审计
func writeExclusive(dir, base string, data []byte) (string, error) {
	for i := 0; i < maxNameAttempts; i++ {
		name := base + ".yaml"
		if i > 0 {
			name = fmt.Sprintf("%s-%d.yaml", base, i)
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create audit: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", fmt.Errorf("write audit: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("write audit: %w", err)
		}
		return path, nil
	}
	return "", fmt.Errorf("create audit: no free name for %s in %s", base, dir)
}

// Document 返回当前记录的副本
func (r *FileRecorder) Document() Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.doc
	d.Events = append([]Event(nil), r.doc.Events...)
	d.Actions = append([]models.DaemonAction(nil), r.doc.Actions...)
	return d
}

// ReadDocument 读取已写出的审计文件
func ReadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var d Document
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode audit %s: %w", path, err)
	}
	return &d, nil
}

func sanitizeHost(host string) string {
	if host == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		if r == '/' || r == ':' || r == '\\' {
			return '_'
		}
		return r
	}, host)
}
