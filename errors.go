// Package tensorprep prepares variable-length, per-event physics object
// collections stored in tabular files into fixed-shape numeric tensors for
// supervised learning.
//
// The root package only holds the error taxonomy shared by the subpackages.
// All failures in this module are one of four kinds: bad configuration,
// something missing on disk, something unreadable on disk, or not enough
// data to satisfy a request. None of them are retryable; re-running with the
// same inputs fails identically until the configuration or the data is fixed.
package tensorprep

import "fmt"

// ConfigurationError reports contradictory or invalid policy: duplicate
// labels, unresolved profiles, reserved column misuse, split sums that do
// not add up. Raised before any file I/O whenever statically detectable.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string { return e.Msg }

// Configf builds a *ConfigurationError from a format string.
func Configf(format string, args ...any) error {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing directory, file or expected subpath.
type NotFoundError struct {
	Path string
	Msg  string
}

func (e *NotFoundError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s does not exist", e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Msg)
}

// NotFoundf builds a *NotFoundError for path with an explanatory message.
func NotFoundf(path, format string, args ...any) error {
	return &NotFoundError{Path: path, Msg: fmt.Sprintf(format, args...)}
}

// CorruptDataError reports an unreadable or internally inconsistent data
// file. File identifies the offending file so an operator can inspect or
// delete it.
type CorruptDataError struct {
	File string
	Msg  string
}

func (e *CorruptDataError) Error() string {
	return fmt.Sprintf("corrupt data in %s: %s", e.File, e.Msg)
}

// Corruptf builds a *CorruptDataError naming file.
func Corruptf(file, format string, args ...any) error {
	return &CorruptDataError{File: file, Msg: fmt.Sprintf(format, args...)}
}

// InsufficientDataError reports that a source directory was exhausted before
// a sample quota was met. Requested and Available report the shortfall.
type InsufficientDataError struct {
	Dir       string
	Requested int
	Available int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("not enough data in %s: requested %d samples, only %d available",
		e.Dir, e.Requested, e.Available)
}
