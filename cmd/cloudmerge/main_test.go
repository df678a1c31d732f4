package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cloudmerge/internal/cloud"
	"github.com/banshee-data/cloudmerge/internal/fsutil"
)

func TestParseFlags(t *testing.T) {
	o, err := parseFlags([]string{"-primary", "a.bin", "-primary-pose", "a.txt", "-secondary", "b.bin", "-secondary-pose", "b.txt"})
	require.NoError(t, err)
	assert.Equal(t, "merged.bin", o.out)
	assert.False(t, o.lenient)

	_, err = parseFlags([]string{"-primary", "a.bin"})
	assert.EqualError(t, err, "-primary-pose is required")

	_, err = parseFlags([]string{"-secondary-pose", "b.txt"})
	assert.EqualError(t, err, "-primary is required")

	o, err = parseFlags([]string{"-version"})
	require.NoError(t, err)
	assert.True(t, o.showVersion)
}

func TestRun_Local(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, fsys.WriteFile("in/a.bin", cloud.Encode(cloud.PointCloud{{0, 0, 0, 1}}), 0o644))
	require.NoError(t, fsys.WriteFile("in/a.txt", []byte("0 0 0 0 0 0\n"), 0o644))
	require.NoError(t, fsys.WriteFile("in/b.bin", cloud.Encode(cloud.PointCloud{{1, 0, 0, 1}}), 0o644))
	require.NoError(t, fsys.WriteFile("in/b.txt", []byte("5 0 0 0 0 0 9 9 9\n"), 0o644))

	o := &options{
		primaryPoints: "in/a.bin", primaryPose: "in/a.txt",
		secondaryPoints: "in/b.bin", secondaryPose: "in/b.txt",
		out: "out/merged.bin", html: "out/merged.html", lenient: true,
	}
	var stdout bytes.Buffer
	require.NoError(t, run(context.Background(), o, fsys, &stdout))

	data, err := fsys.ReadFile("out/merged.bin")
	require.NoError(t, err)
	got, err := cloud.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, cloud.PointCloud{{0, 0, 0, 1}, {6, 0, 0, 1}}, got)
	assert.True(t, fsys.Exists("out/merged.html"))
	assert.True(t, strings.Contains(stdout.String(), "-> 2"))

	// A nine-field row is rejected in strict mode.
	o.lenient = false
	assert.Error(t, run(context.Background(), o, fsys, &stdout))
}
