package logflags

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMakeLoggerUsesFactoryWhenSet(t *testing.T) {
	require.Nil(t, loggerFactory)
	defer func() { loggerFactory = nil }()

	var gotFlag bool
	var gotFields Fields
	expected := &logrusLogger{}
	SetLoggerFactory(func(flag bool, fields Fields, out io.Writer) Logger {
		gotFlag = flag
		gotFields = fields
		return expected
	})

	actual := makeLogger(true, Fields{"foo": "bar"})
	require.Same(t, expected, actual)
	require.True(t, gotFlag)
	require.Equal(t, Fields{"foo": "bar"}, gotFields)
}

func TestMakeLoggerDefaultLevelFollowsFlag(t *testing.T) {
	require.Nil(t, loggerFactory)

	off := makeLogger(false, Fields{"layer": "decode"})
	entry, ok := off.(*logrusLogger)
	require.True(t, ok)
	require.Equal(t, entry.Logger.Level.String(), "panic")

	on := makeLogger(true, Fields{"layer": "decode"})
	entry, ok = on.(*logrusLogger)
	require.True(t, ok)
	require.Equal(t, entry.Logger.Level.String(), "debug")
}

func TestSetupRequiresLogFlagForLogDest(t *testing.T) {
	err := Setup(false, "decode")
	require.Error(t, err)
}

func TestSetupEnablesNamedCategories(t *testing.T) {
	defer func() { decode, unwind, repl, script = false, false, false, false }()

	require.NoError(t, Setup(true, "unwind,script"))
	require.True(t, Unwind())
	require.True(t, Script())
	require.False(t, REPL())
}

func TestSetupDefaultsToDecodeCategory(t *testing.T) {
	defer func() { decode, unwind, repl, script = false, false, false, false }()

	require.NoError(t, Setup(true, ""))
	require.True(t, Decode())
}
