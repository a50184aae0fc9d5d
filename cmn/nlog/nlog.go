// Package nlog is the core's logger: buffered, leveled, timestamped
// writes to a size-rotated file, with synchronous flush on warnings and errors.
// Unlike most of the domain stack, logging stays on the standard library
// here, following the teacher: see DESIGN.md.
package nlog

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

var sevChar = [...]byte{'I', 'W', 'E'}

const maxFileSize = 64 * 1024 * 1024

type nlog struct {
	mu   sync.Mutex
	w    *bufio.Writer
	f    *os.File
	dir  string
	name string
	size int64
}

var (
	toStderr     bool
	alsoToStderr bool
	logDir       string
	role         string
	title        string

	once sync.Once
	logs [3]*nlog // by severity
)

func InitFlags(flset *flag.FlagSet) {
	flset.BoolVar(&toStderr, "logtostderr", false, "log to standard error instead of files")
	flset.BoolVar(&alsoToStderr, "alsologtostderr", false, "log to standard error as well as files")
}

func SetLogDirRole(dir, r string) { logDir, role = dir, r }
func SetTitle(s string)           { title = s }

func initLogs() {
	for i := range logs {
		logs[i] = &nlog{}
	}
}

func log(sev severity, depth int, format string, args ...any) {
	once.Do(initLogs)
	line := format1(sev, depth+1, format, args...)

	if toStderr {
		os.Stderr.WriteString(line)
		return
	}
	if alsoToStderr || sev >= sevErr {
		os.Stderr.WriteString(line)
	}
	nl := logs[sev]
	nl.mu.Lock()
	nl.write(line)
	nl.mu.Unlock()
	if sev >= sevWarn {
		Flush()
	}
}

func (nl *nlog) write(line string) {
	if nl.w == nil {
		if logDir == "" {
			nl.w = bufio.NewWriter(os.Stderr)
		} else if err := nl.open(); err != nil {
			os.Stderr.WriteString("nlog: " + err.Error() + "\n")
			nl.w = bufio.NewWriter(os.Stderr)
		}
	}
	n, _ := nl.w.WriteString(line)
	nl.size += int64(n)
	if nl.size >= maxFileSize && nl.f != nil {
		nl.rotate()
	}
}

func (nl *nlog) open() error {
	name := fmt.Sprintf("%s.%s.%d.%s.log", role, sevName(nl), os.Getpid(), time.Now().Format("20060102-150405"))
	f, err := os.OpenFile(filepath.Join(logDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	nl.f, nl.name = f, name
	nl.w = bufio.NewWriter(f)
	if title != "" {
		nl.w.WriteString(title + "\n")
	}
	return nil
}

func (nl *nlog) rotate() {
	nl.w.Flush()
	nl.f.Close()
	nl.f, nl.w, nl.size = nil, nil, 0
}

func sevName(nl *nlog) string {
	for i, l := range logs {
		if l == nl {
			return [...]string{"info", "warning", "error"}[i]
		}
	}
	return "info"
}

func format1(sev severity, depth int, format string, args ...any) string {
	var b fmtBuf
	b.writeByte(sevChar[sev])
	b.writeByte(' ')
	b.writeString(time.Now().Format("15:04:05.000000"))
	b.writeByte(' ')
	if _, file, ln, ok := runtime.Caller(depth + 2); ok {
		file = filepath.Base(file)
		b.writeString(file)
		b.writeByte(':')
		b.writeString(strconv.Itoa(ln))
		b.writeByte(' ')
	}
	if format == "" {
		fmt.Fprintln(&b, args...)
	} else {
		fmt.Fprintf(&b, format, args...)
		if n := b.Len(); n == 0 || b.s[n-1] != '\n' {
			b.writeByte('\n')
		}
	}
	return b.String()
}

// fmtBuf is a minimal growable byte buffer implementing io.Writer, avoiding
// an extra bytes.Buffer allocation on the hot logging path.
type fmtBuf struct{ s []byte }

func (b *fmtBuf) writeByte(c byte)      { b.s = append(b.s, c) }
func (b *fmtBuf) writeString(s string)  { b.s = append(b.s, s...) }
func (b *fmtBuf) Write(p []byte) (int, error) {
	b.s = append(b.s, p...)
	return len(p), nil
}
func (b *fmtBuf) Len() int      { return len(b.s) }
func (b *fmtBuf) String() string { return string(b.s) }

func InfoDepth(depth int, args ...any)    { log(sevInfo, depth, "", args...) }
func Infoln(args ...any)                  { log(sevInfo, 0, "", args...) }
func Infof(format string, args ...any)    { log(sevInfo, 0, format, args...) }
func Warningln(args ...any)               { log(sevWarn, 0, "", args...) }
func Warningf(format string, args ...any) { log(sevWarn, 0, format, args...) }
func ErrorDepth(depth int, args ...any)   { log(sevErr, depth, "", args...) }
func Errorln(args ...any)                 { log(sevErr, 0, "", args...) }
func Errorf(format string, args ...any)   { log(sevErr, 0, format, args...) }

// Flush synchronously flushes all buffered severities to their underlying
// writers. Pass exit=true on process shutdown to additionally close files.
func Flush(exit ...bool) {
	once.Do(initLogs)
	doClose := len(exit) > 0 && exit[0]
	for _, nl := range logs {
		nl.mu.Lock()
		if nl.w != nil {
			nl.w.Flush()
		}
		if doClose && nl.f != nil {
			nl.f.Close()
			nl.f, nl.w = nil, nil
		}
		nl.mu.Unlock()
	}
}
