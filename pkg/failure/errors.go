package failure

import (
	"errors"
	"fmt"
)

// Kind 是编排器对错误的分类
type Kind string

const (
	KindValidation    Kind = "validation"
	KindDeterministic Kind = "deterministic"
	KindTransient     Kind = "transient"
	KindUnknown       Kind = "unknown"
)

// Class 描述传输层失败的类型
type Class string

const (
	ClassAuth    Class = "auth"
	ClassTimeout Class = "timeout"
	ClassNetwork Class = "network"
)

// ValidationError 配置校验失败，发生在任何网络连接之前
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config field '%s': %s", e.Field, e.Reason)
}

// DeterministicError 逻辑/环境错误，重试不会改变结果
type DeterministicError struct {
	Op  string
	Err error
}

func (e *DeterministicError) Error() string {
	return fmt.Sprintf("[%s] %v", e.Op, e.Err)
}

func (e *DeterministicError) Unwrap() error {
	return e.Err
}

// TransientError 网络/传输层错误
type TransientError struct {
	Op    string
	Class Class
	Err   error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("[%s] %s failure: %v", e.Op, e.Class, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Deterministic 构造 DeterministicError，format 规则同 fmt.Errorf
func Deterministic(op, format string, args ...any) error {
	return &DeterministicError{Op: op, Err: fmt.Errorf(format, args...)}
}

// Transient 构造 TransientError
func Transient(op string, class Class, err error) error {
	return &TransientError{Op: op, Class: class, Err: err}
}

// Classify 按错误链中最先匹配到的类型归类，未知错误一律视为 unknown
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}
	var te *TransientError
	if errors.As(err, &te) {
		return KindTransient
	}
	var de *DeterministicError
	if errors.As(err, &de) {
		return KindDeterministic
	}
	return KindUnknown
}

// IsTransient 判断错误链中是否含有 TransientError
func IsTransient(err error) bool {
	return Classify(err) == KindTransient
}
