package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"":        LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
		" fatal ": LevelFatal,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestSetLevelPropagatesToDerivedLoggers(t *testing.T) {
	l := New(LevelInfo)
	child := l.With(String("component", "test"))

	l.SetLevel(LevelError)
	assert.Equal(t, LevelError, l.GetLevel())
	assert.Equal(t, LevelError, child.GetLevel())
}

func TestNopAcceptsAllFieldTypes(t *testing.T) {
	l := Nop()
	l.Info("fields",
		Bool("b", true),
		Int("i", 1),
		Uint16("k", 7),
		EntityID(42),
		Scope("scope"),
		Error(assert.AnError),
		Any("any", struct{}{}),
	)
}
