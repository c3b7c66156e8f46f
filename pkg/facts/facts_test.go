package facts_test

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/dotup/pkg/facts"
)

func TestCollect(t *testing.T) {
	t.Parallel()

	f := facts.Collect()

	assert.Equal(t, runtime.GOOS, f.OS)
	assert.Equal(t, runtime.GOARCH, f.Arch)
	assert.NotEmpty(t, f.Home)
}

func TestFacts_Vars(t *testing.T) {
	t.Parallel()

	f := facts.Facts{
		OS:       "linux",
		Arch:     "amd64",
		Hostname: "workstation",
		User:     "test",
		Home:     "/home/test",
	}

	vars := f.Vars()

	require.Len(t, vars, 5)
	assert.Equal(t, "linux", vars["os"])
	assert.Equal(t, "amd64", vars["arch"])
	assert.Equal(t, "workstation", vars["hostname"])
	assert.Equal(t, "test", vars["user"])
	assert.Equal(t, "/home/test", vars["home"])
}
