package trace

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTrace_ParseRecord(t *testing.T) {
	t.Parallel()

	t.Run("full write event", func(t *testing.T) {
		t.Parallel()
		rec, err := ParseRecord("1\t10\tINSERT\tt\tc\t5\t0")
		require.NoError(t, err)
		require.Equal(t, "1", rec.ThreadID)
		require.Equal(t, int64(10), rec.TrxID)
		require.Equal(t, EventInsert, rec.Type)
		require.Equal(t, "t", rec.Table)
		require.Equal(t, "c", rec.Column)
		require.True(t, rec.HasRow)
		require.Equal(t, int64(5), rec.Row)
		require.Equal(t, int64(0), rec.LastWriter)
		require.True(t, rec.IsWrite())
	})

	t.Run("N/A table and row", func(t *testing.T) {
		t.Parallel()
		rec, err := ParseRecord("1\t10\tBEGIN\tN/A\tN/A\tN/A\t0")
		require.NoError(t, err)
		require.Equal(t, EventBegin, rec.Type)
		require.Empty(t, rec.Table)
		require.False(t, rec.HasRow)
		require.False(t, rec.IsWrite())
	})

	t.Run("rejects wrong field count", func(t *testing.T) {
		t.Parallel()
		_, err := ParseRecord("1\t10\tBEGIN\tN/A\tN/A\t0")
		require.Error(t, err)
		require.Contains(t, err.Error(), "fields")
	})

	t.Run("rejects unknown event type", func(t *testing.T) {
		t.Parallel()
		_, err := ParseRecord("1\t10\tROLLBACK\tN/A\tN/A\tN/A\t0")
		require.Error(t, err)
		require.Contains(t, err.Error(), "unknown event type")
	})

	t.Run("rejects non-numeric ids", func(t *testing.T) {
		t.Parallel()
		for _, line := range []string{
			"1\tx\tBEGIN\tN/A\tN/A\tN/A\t0",
			"1\t10\tREAD\tt\tc\tx\t0",
			"1\t10\tREAD\tt\tc\t5\tx",
		} {
			_, err := ParseRecord(line)
			require.Error(t, err, "line %q should not parse", line)
		}
	})

	t.Run("thread id is carried verbatim", func(t *testing.T) {
		t.Parallel()
		rec, err := ParseRecord("conn-7\t10\tBEGIN\tN/A\tN/A\tN/A\t0")
		require.NoError(t, err)
		require.Equal(t, "conn-7", rec.ThreadID)
	})
}

func TestTrace_Reader_EventTimeTicksEveryLine(t *testing.T) {
	t.Parallel()

	// Lines 2 (blank), 3 (malformed), and 5 (unknown type) are skipped, but
	// each still advances the event-time counter.
	input := strings.Join([]string{
		"1\t10\tBEGIN\tN/A\tN/A\tN/A\t0",
		"",
		"garbage line",
		"1\t10\tINSERT\tt\tc\t5\t0",
		"1\t10\tCHECKPOINT\tN/A\tN/A\tN/A\t0",
		"1\t10\tCOMMIT\tN/A\tN/A\tN/A\t0",
	}, "\n")

	r := NewReader(strings.NewReader(input))

	rec, ok := r.Next()
	require.True(t, ok)
	require.Equal(t, EventBegin, rec.Type)
	require.Equal(t, int64(1), rec.Time)

	rec, ok = r.Next()
	require.True(t, ok)
	require.Equal(t, EventInsert, rec.Type)
	require.Equal(t, int64(4), rec.Time)

	rec, ok = r.Next()
	require.True(t, ok)
	require.Equal(t, EventCommit, rec.Type)
	require.Equal(t, int64(6), rec.Time)

	_, ok = r.Next()
	require.False(t, ok)
	require.NoError(t, r.Err())
	require.Equal(t, int64(6), r.Time())
}

func TestTrace_Reader_StripsSurroundingWhitespace(t *testing.T) {
	t.Parallel()

	r := NewReader(strings.NewReader("  1\t10\tBEGIN\tN/A\tN/A\tN/A\t0  \r\n"))
	rec, ok := r.Next()
	require.True(t, ok)
	require.Equal(t, "1", rec.ThreadID)
	require.Equal(t, EventBegin, rec.Type)
}

func TestTrace_Reader_EmptyInput(t *testing.T) {
	t.Parallel()

	r := NewReader(strings.NewReader(""))
	_, ok := r.Next()
	require.False(t, ok)
	require.NoError(t, r.Err())
	require.Zero(t, r.Time())
}
