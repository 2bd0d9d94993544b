package fs

import (
	"errors"
	"os"
	"strings"
	"sync"
	"syscall"
)

// Op names a filesystem operation that [Faulty] can intercept.
type Op string

const (
	OpOpenFile        Op = "openfile"
	OpReadFile        Op = "readfile"
	OpWriteFileAtomic Op = "writefileatomic"
	OpReadDir         Op = "readdir"
	OpMkdirAll        Op = "mkdirall"
	OpStat            Op = "stat"
	OpExists          Op = "exists"
	OpRemove          Op = "remove"
)

// InjectedError marks an error as intentionally injected by [Faulty].
// It wraps the underlying error so errors.Is/As continue to work.
type InjectedError struct {
	Err error
}

func (e *InjectedError) Error() string {
	return e.Err.Error()
}

func (e *InjectedError) Unwrap() error {
	return e.Err
}

// IsInjected reports whether err (or any wrapped error) was injected by [Faulty].
func IsInjected(err error) bool {
	var injected *InjectedError

	return errors.As(err, &injected)
}

// Fault describes one deterministic failure rule.
type Fault struct {
	// Op is the operation to fail.
	Op Op

	// PathSuffix restricts the rule to paths ending in it. Empty matches all.
	PathSuffix string

	// Skip lets that many matching calls through before the rule fires.
	Skip int

	// Times is how often the rule fires once armed. Zero means forever.
	Times int

	// Err is returned inside a [*os.PathError]. Defaults to EIO.
	Err error
}

// Faulty wraps an [FS] and fails operations that match registered [Fault]
// rules. Unlike a random chaos layer it is fully deterministic, so tests can
// reproduce a failure at an exact step. It also counts calls per [Op].
//
// Faulty is safe for concurrent use.
type Faulty struct {
	fs FS

	mu     sync.Mutex
	rules  []*faultRule
	counts map[Op]int
}

type faultRule struct {
	Fault

	seen  int
	fired int
}

// NewFaulty wraps fs. Panics if fs is nil.
func NewFaulty(fs FS) *Faulty {
	if fs == nil {
		panic("fs is nil")
	}

	return &Faulty{fs: fs, counts: make(map[Op]int)}
}

// Add registers a rule. Rules are checked in registration order.
func (f *Faulty) Add(fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.rules = append(f.rules, &faultRule{Fault: fault})
}

// Reset drops all rules and call counts.
func (f *Faulty) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.rules = nil
	f.counts = make(map[Op]int)
}

// Calls returns how many times op was invoked, including failed calls.
func (f *Faulty) Calls(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.counts[op]
}

func (f *Faulty) check(op Op, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.counts[op]++

	for _, r := range f.rules {
		if r.Op != op || !strings.HasSuffix(path, r.PathSuffix) {
			continue
		}

		r.seen++
		if r.seen <= r.Skip {
			continue
		}

		if r.Times > 0 && r.fired >= r.Times {
			continue
		}

		r.fired++

		errno := r.Err
		if errno == nil {
			errno = syscall.EIO
		}

		return &InjectedError{Err: &os.PathError{Op: string(op), Path: path, Err: errno}}
	}

	return nil
}

func (f *Faulty) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	if err := f.check(OpOpenFile, path); err != nil {
		return nil, err
	}

	return f.fs.OpenFile(path, flag, perm)
}

func (f *Faulty) ReadFile(path string) ([]byte, error) {
	if err := f.check(OpReadFile, path); err != nil {
		return nil, err
	}

	return f.fs.ReadFile(path)
}

func (f *Faulty) WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if err := f.check(OpWriteFileAtomic, path); err != nil {
		return err
	}

	return f.fs.WriteFileAtomic(path, data, perm)
}

func (f *Faulty) ReadDir(path string) ([]os.DirEntry, error) {
	if err := f.check(OpReadDir, path); err != nil {
		return nil, err
	}

	return f.fs.ReadDir(path)
}

func (f *Faulty) MkdirAll(path string, perm os.FileMode) error {
	if err := f.check(OpMkdirAll, path); err != nil {
		return err
	}

	return f.fs.MkdirAll(path, perm)
}

func (f *Faulty) Stat(path string) (os.FileInfo, error) {
	if err := f.check(OpStat, path); err != nil {
		return nil, err
	}

	return f.fs.Stat(path)
}

func (f *Faulty) Exists(path string) (bool, error) {
	if err := f.check(OpExists, path); err != nil {
		return false, err
	}

	return f.fs.Exists(path)
}

func (f *Faulty) Remove(path string) error {
	if err := f.check(OpRemove, path); err != nil {
		return err
	}

	return f.fs.Remove(path)
}

var _ FS = (*Faulty)(nil)
