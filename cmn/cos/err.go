// Package cos provides common low-level types and utilities shared by every
// package in the core: error taxonomy, name validation, ID generation, and
// small synchronization helpers.
package cos

import (
	"flag"
	"fmt"
	"os"
	"sync"
	ratomic "sync/atomic"

	"github.com/pkg/errors"

	"github.com/openbuildnet/obncore/cmn/nlog"
)

// Kind classifies an error per the error taxonomy of spec.md §7: which
// layer raised it, and what disposition it carries (fail-fast at assembly,
// node -> ERROR, or a non-fatal negative return code).
type Kind int

const (
	KindConfig Kind = iota
	KindInputPortRawMsg
	KindInputPortReadValue
	KindOutputPortSendMsg
	KindAckTimeout
	KindTransportLoss
	KindProtocol
	KindRequestInvalid
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config-error"
	case KindInputPortRawMsg:
		return "inputport-error/RAWMSG"
	case KindInputPortReadValue:
		return "inputport-error/READVALUE"
	case KindOutputPortSendMsg:
		return "outputport-error/SENDMSG"
	case KindAckTimeout:
		return "ack-timeout"
	case KindTransportLoss:
		return "transport-loss"
	case KindProtocol:
		return "protocol-error"
	case KindRequestInvalid:
		return "request-invalid"
	default:
		return "error"
	}
}

// Fatal reports whether an error of this kind terminates the run (spec.md
// §7): every kind except request-invalid is fatal to the node or the run.
func (k Kind) Fatal() bool { return k != KindRequestInvalid }

// Error is the core's single structured error type: a Kind, free-form
// context (e.g. "node/port"), and a wrapped cause built with
// github.com/pkg/errors so %+v on the outermost error prints a stack trace
// from wherever the fault first occurred.
type Error struct {
	Kind Kind
	Ctx  string
	Err  error
}

func NewError(k Kind, ctx string, err error) *Error {
	return &Error{Kind: k, Ctx: ctx, Err: errors.WithStack(err)}
}

func Errorf(k Kind, ctx, format string, a ...any) *Error {
	return NewError(k, ctx, fmt.Errorf(format, a...))
}

func (e *Error) Error() string {
	if e.Ctx == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s[%s]: %v", e.Kind, e.Ctx, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether err is a *Error of the given Kind, unwrapping chains
// built with errors.Wrap/errors.WithStack along the way.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// Errs accumulates up to a handful of distinct errors (e.g. one per active
// node during a fan-out ACK wait) for later joint reporting.
type Errs struct {
	errs []error
	cnt  int64
	mu   sync.Mutex
}

const maxErrs = 8

func (e *Errs) Add(err error) {
	if err == nil {
		return
	}
	e.mu.Lock()
	for _, added := range e.errs {
		if added.Error() == err.Error() {
			e.mu.Unlock()
			return
		}
	}
	if len(e.errs) < maxErrs {
		e.errs = append(e.errs, err)
		ratomic.StoreInt64(&e.cnt, int64(len(e.errs)))
	}
	e.mu.Unlock()
}

func (e *Errs) Cnt() int { return int(ratomic.LoadInt64(&e.cnt)) }

func (e *Errs) JoinErr() (cnt int, err error) {
	if cnt = e.Cnt(); cnt > 0 {
		e.mu.Lock()
		err = errors.Join(e.errs...)
		e.mu.Unlock()
	}
	return
}

//
// abnormal termination (SMN/node main)
//

const fatalPrefix = "FATAL ERROR: "

func Exitf(f string, a ...any) {
	_exit(fmt.Sprintf(fatalPrefix+f, a...), 1)
}

// ExitConfigf logs then terminates the process with exit code 1 (spec.md
// §6 exit codes: configuration/assembly error — duplicate names, invalid
// ids, cycles, bad flags, workspace assembly failures).
func ExitConfigf(f string, a ...any) {
	exitLogf(f, 1, a...)
}

// ExitLogf logs then terminates the process with exit code 2 (spec.md §6
// exit codes: simulation error — ACK timeout, transport loss, protocol
// error).
func ExitLogf(f string, a ...any) {
	exitLogf(f, 2, a...)
}

func exitLogf(f string, code int, a ...any) {
	msg := fmt.Sprintf(fatalPrefix+f, a...)
	if flag.Parsed() {
		nlog.ErrorDepth(1, msg)
		nlog.Flush(true)
	}
	_exit(msg, code)
}

func _exit(msg string, code int) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(code)
}
