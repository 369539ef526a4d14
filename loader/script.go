package loader

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/evanphx/hatch/memory"
	"github.com/pkg/errors"
)

type OpKind int

const (
	OpMmap OpKind = iota
	OpMunmap
	OpSbrk
	OpGetTime
	OpTaskInfo
	OpYield
	OpExit
	OpWrite
	OpPoke
	OpPeek
	OpSleep
)

var opNames = map[string]OpKind{
	"mmap":      OpMmap,
	"munmap":    OpMunmap,
	"sbrk":      OpSbrk,
	"get_time":  OpGetTime,
	"task_info": OpTaskInfo,
	"yield":     OpYield,
	"exit":      OpExit,
	"write":     OpWrite,
	"poke":      OpPoke,
	"peek":      OpPeek,
	"sleep":     OpSleep,
}

func (k OpKind) String() string {
	for name, v := range opNames {
		if v == k {
			return name
		}
	}

	return fmt.Sprintf("op(%d)", int(k))
}

// Op is one line of a workload script.
type Op struct {
	Line int
	Kind OpKind

	Addr  memory.Addr
	Len   uint64
	Perms memory.AccessType
	Delta int64
	Code  int
	FD    int
	Text  []byte
	Dur   time.Duration
}

type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// Parse reads a workload script: one operation per line, blank lines and
// text after # ignored.
func Parse(r io.Reader) ([]Op, error) {
	var ops []Op

	sc := bufio.NewScanner(r)

	line := 0
	for sc.Scan() {
		line++

		fields, err := tokenize(sc.Text())
		if err != nil {
			return nil, &ParseError{Line: line, Msg: err.Error()}
		}

		if len(fields) == 0 {
			continue
		}

		op, err := parseOp(fields)
		if err != nil {
			return nil, &ParseError{Line: line, Msg: err.Error()}
		}

		op.Line = line
		ops = append(ops, op)
	}

	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "reading script")
	}

	return ops, nil
}

// tokenize splits a line on spaces. A token starting with a double quote
// runs to the closing quote and is unquoted with Go rules.
func tokenize(s string) ([]string, error) {
	var out []string

	for {
		s = strings.TrimLeft(s, " \t")
		if s == "" || s[0] == '#' {
			return out, nil
		}

		if s[0] == '"' {
			q, err := strconv.QuotedPrefix(s)
			if err != nil {
				return nil, errors.Errorf("bad quoted string %s", s)
			}

			text, err := strconv.Unquote(q)
			if err != nil {
				return nil, err
			}

			out = append(out, text)
			s = s[len(q):]
			continue
		}

		end := strings.IndexAny(s, " \t#")
		if end < 0 {
			end = len(s)
		}

		out = append(out, s[:end])
		s = s[end:]
	}
}

var arity = map[OpKind]int{
	OpMmap:     3,
	OpMunmap:   2,
	OpSbrk:     1,
	OpGetTime:  1,
	OpTaskInfo: 1,
	OpYield:    0,
	OpExit:     1,
	OpWrite:    3,
	OpPoke:     2,
	OpPeek:     2,
	OpSleep:    1,
}

func parseOp(fields []string) (Op, error) {
	kind, ok := opNames[fields[0]]
	if !ok {
		return Op{}, errors.Errorf("unknown operation %q", fields[0])
	}

	args := fields[1:]
	if len(args) != arity[kind] {
		return Op{}, errors.Errorf("%s takes %d arguments, got %d", kind, arity[kind], len(args))
	}

	op := Op{Kind: kind}

	var err error

	switch kind {
	case OpMmap:
		if op.Addr, err = parseAddr(args[0]); err != nil {
			return op, err
		}
		if op.Len, err = parseWord(args[1]); err != nil {
			return op, err
		}
		op.Perms, err = parsePerms(args[2])
	case OpMunmap:
		if op.Addr, err = parseAddr(args[0]); err != nil {
			return op, err
		}
		op.Len, err = parseWord(args[1])
	case OpPeek:
		if op.Addr, err = parseAddr(args[0]); err != nil {
			return op, err
		}
		op.Len, err = strconv.ParseUint(args[1], 0, 31)
	case OpSbrk:
		op.Delta, err = strconv.ParseInt(args[0], 0, 64)
	case OpGetTime, OpTaskInfo:
		op.Addr, err = parseAddr(args[0])
	case OpExit:
		var code int64
		code, err = strconv.ParseInt(args[0], 0, 32)
		op.Code = int(code)
	case OpWrite:
		var fd int64
		if fd, err = strconv.ParseInt(args[0], 0, 32); err != nil {
			return op, err
		}
		op.FD = int(fd)
		if op.Addr, err = parseAddr(args[1]); err != nil {
			return op, err
		}
		op.Len, err = parseWord(args[2])
	case OpPoke:
		if op.Addr, err = parseAddr(args[0]); err != nil {
			return op, err
		}
		op.Text = []byte(args[1])
	case OpSleep:
		if op.Dur, err = time.ParseDuration(args[0]); err == nil && op.Dur < 0 {
			err = errors.Errorf("negative duration %s", op.Dur)
		}
	}

	return op, err
}

func parseWord(s string) (uint64, error) {
	return strconv.ParseUint(s, 0, 64)
}

func parseAddr(s string) (memory.Addr, error) {
	v, err := parseWord(s)
	return memory.Addr(v), err
}

// parsePerms accepts either rwx letters or a number. The number is passed
// through unchecked so scripts can exercise the kernel's validation.
func parsePerms(s string) (memory.AccessType, error) {
	if v, err := strconv.ParseUint(s, 0, 8); err == nil {
		return memory.AccessType(v), nil
	}

	var at memory.AccessType

	for _, c := range s {
		switch c {
		case 'r':
			at |= memory.Read
		case 'w':
			at |= memory.Write
		case 'x':
			at |= memory.Execute
		case '-':
		default:
			return 0, errors.Errorf("bad permission %q", s)
		}
	}

	return at, nil
}
