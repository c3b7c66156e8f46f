package log_test

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/dotup/pkg/log"
)

func TestNewBuffer(t *testing.T) {
	t.Parallel()

	b := log.NewBuffer(10)
	assert.Equal(t, 10, b.Cap())
	assert.Equal(t, 0, b.Len())

	// Zero and negative capacities fall back to the default.
	assert.Equal(t, 100, log.NewBuffer(0).Cap())
	assert.Equal(t, 100, log.NewBuffer(-5).Cap())
}

func TestBuffer_Write(t *testing.T) {
	t.Parallel()

	b := log.NewBuffer(3)

	n, err := b.Write([]byte("entry1"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, 1, b.Len())

	// Empty writes are dropped.
	n, err = b.Write([]byte{})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, b.Len())

	_, err = b.Write([]byte("entry2"))
	require.NoError(t, err)
	_, err = b.Write([]byte("entry3"))
	require.NoError(t, err)
	assert.Equal(t, 3, b.Len())

	// Writing past capacity drops the oldest entry.
	_, err = b.Write([]byte("entry4"))
	require.NoError(t, err)
	assert.Equal(t, 3, b.Len())

	entries := b.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "entry2", string(entries[0]))
	assert.Equal(t, "entry4", string(entries[2]))
}

func TestBuffer_Entries(t *testing.T) {
	t.Parallel()

	b := log.NewBuffer(3)
	assert.Empty(t, b.Entries())

	for _, s := range []string{"first", "second", "third", "fourth", "fifth"} {
		_, err := b.Write([]byte(s))
		require.NoError(t, err)
	}

	entries := b.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "third", string(entries[0]))
	assert.Equal(t, "fourth", string(entries[1]))
	assert.Equal(t, "fifth", string(entries[2]))

	// Returned entries are copies.
	entries[0][0] = 'X'
	assert.Equal(t, "third", string(b.Entries()[0]))
}

func TestBuffer_WriteTo(t *testing.T) {
	t.Parallel()

	b := log.NewBuffer(3)

	var out bytes.Buffer

	n, err := b.WriteTo(&out)
	require.NoError(t, err)
	assert.Zero(t, n)

	for _, s := range []string{"line1\n", "line2\n", "line3\n"} {
		_, err := b.Write([]byte(s))
		require.NoError(t, err)
	}

	n, err = b.WriteTo(&out)
	require.NoError(t, err)
	assert.Equal(t, int64(18), n)
	assert.Equal(t, "line1\nline2\nline3\n", out.String())

	// Flushing resets the buffer.
	assert.Equal(t, 0, b.Len())

	out.Reset()

	_, err = b.WriteTo(&out)
	require.NoError(t, err)
	assert.Empty(t, out.String())
}

func TestBuffer_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	b := log.NewBuffer(100)

	var wg sync.WaitGroup

	for range 10 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for range 50 {
				_, err := b.Write([]byte(strings.Repeat("x", 10)))
				assert.NoError(t, err)
			}
		}()
	}

	for range 5 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for range 20 {
				b.Entries()
				b.Len()
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 100, b.Len())
}
