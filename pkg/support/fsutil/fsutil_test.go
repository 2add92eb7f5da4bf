// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fsutil

import (
	"os/user"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceTildeInDir(t *testing.T) {
	dir, err := ReplaceTildeInDir("/tmp/x")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x", dir)

	usr, err := user.Current()
	require.NoError(t, err)
	dir, err = ReplaceTildeInDir("~/layouts/a")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(usr.HomeDir, "layouts/a"), dir)
	dir, err = ReplaceTildeInDir("~")
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(usr.HomeDir), dir)

	_, err = ReplaceTildeInDir("~no_such_user_for_fsutil_test/x")
	require.Error(t, err)
}

func TestMakeDir(t *testing.T) {
	base := t.TempDir()
	dir, err := MakeDir(filepath.Join(base, "a", "b"))
	require.NoError(t, err)
	exists, err := FileExists(dir)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = FileExists(filepath.Join(base, "missing"))
	require.NoError(t, err)
	assert.False(t, exists)
}
