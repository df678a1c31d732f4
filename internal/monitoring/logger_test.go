package monitoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func captureLogs(t *testing.T) *[]string {
	t.Helper()
	original := Logf
	t.Cleanup(func() {
		Logf = original
		SetDebug(false)
	})

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	return &lines
}

func TestSetLogger(t *testing.T) {
	lines := captureLogs(t)

	Logf("merged %d points", 42)
	assert.Equal(t, []string{"merged 42 points"}, *lines)

	SetLogger(nil)
	Logf("muted")
	assert.Len(t, *lines, 1)
}

func TestDebugf(t *testing.T) {
	lines := captureLogs(t)

	Debugf("hidden %d", 1)
	assert.Empty(t, *lines)
	assert.False(t, DebugEnabled())

	SetDebug(true)
	Debugf("shown %d", 2)
	assert.Equal(t, []string{"[debug] shown 2"}, *lines)
}

func TestLogf_Default(t *testing.T) {
	if Logf == nil {
		t.Fatal("Logf should not be nil by default")
	}
}
