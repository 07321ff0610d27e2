// Package logflags configures the structured loggers the cmd/dwarfsym CLI
// hands to the decoding core and to itself, mirroring
// github.com/go-delve/delve/pkg/logflags's flag-to-logger-category wiring
// but scoped to this module's own categories instead of delve's process
// control ones.
package logflags

import (
	"errors"
	"io/ioutil"
	"log"
	"strings"

	"github.com/sirupsen/logrus"
)

var decode = false
var unwind = false
var repl = false
var script = false

func makeLogger(flag bool, fields Fields) Logger {
	if loggerFactory != nil {
		return loggerFactory(flag, fields, nil)
	}
	entry := logrus.New().WithFields(logrus.Fields(fields))
	entry.Logger.Level = logrus.DebugLevel
	if !flag {
		entry.Logger.Level = logrus.PanicLevel
	}
	return &logrusLogger{entry}
}

// Decode returns true if die/frame decode anomalies swallowed into a
// "no result" outcome should be logged.
func Decode() bool {
	return decode
}

// DecodeLogger returns a logger for the decoding core's Logf hooks
// (die.Index.Logf, die.Resolver.Logf, Dwarf.Logf).
func DecodeLogger() Logger {
	return makeLogger(decode, Fields{"layer": "decode"})
}

// Unwind returns true if the "unwind" category was enabled. No code in this
// module logs under that category.
func Unwind() bool {
	return unwind
}

// UnwindLogger returns a logger for call-frame scanning.
func UnwindLogger() Logger {
	return makeLogger(unwind, Fields{"layer": "unwind"})
}

// REPL returns true if the interactive REPL should log each evaluated
// command.
func REPL() bool {
	return repl
}

// REPLLogger returns a logger for the REPL command loop.
func REPLLogger() Logger {
	return makeLogger(repl, Fields{"layer": "repl"})
}

// Script returns true if starlark script execution should log builtin
// calls.
func Script() bool {
	return script
}

// ScriptLogger returns a logger for starlark script execution.
func ScriptLogger() Logger {
	return makeLogger(script, Fields{"layer": "script"})
}

var errLogstrWithoutLog = errors.New("--log-dest specified without --log")

// Setup sets package-level flags from logstr, a comma-separated list of
// category names. Called by cmd/dwarfsym's openDwarf before a Dwarf is
// opened.
func Setup(logFlag bool, logstr string) error {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if !logFlag {
		log.SetOutput(ioutil.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "decode"
	}
	for _, cmd := range strings.Split(logstr, ",") {
		switch cmd {
		case "decode":
			decode = true
		case "unwind":
			unwind = true
		case "repl":
			repl = true
		case "script":
			script = true
		}
	}
	return nil
}
