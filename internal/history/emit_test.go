package history

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"
	"github.com/stretchr/testify/require"
)

// translateLines runs the full pass over tab-joined trace lines.
func translateLines(t *testing.T, enc *Encoder, lines ...string) string {
	t.Helper()
	var buf bytes.Buffer
	in := strings.NewReader(strings.Join(lines, "\n"))
	require.NoError(t, Translate(in, &buf, enc, WithLogger(discardLogger())))
	return buf.String()
}

func defaultEncoder() *Encoder {
	return &Encoder{FilterPrefixes: DefaultFilterPrefixes}
}

// requireTextEqual fails with a unified diff, which reads far better than
// require.Equal's quoting for multi-line histories.
func requireTextEqual(t *testing.T, want, got string) {
	t.Helper()
	if want == got {
		return
	}
	edits := myers.ComputeEdits(span.URIFromPath("want"), want, got)
	t.Fatalf("history mismatch:\n%s", gotextdiff.ToUnified("want", "got", want, edits))
}

func TestHistory_Encoder_SingleWriterAndReader(t *testing.T) {
	t.Parallel()

	got := translateLines(t, defaultEncoder(),
		"1\t10\tBEGIN\tN/A\tN/A\tN/A\t0",
		"1\t10\tINSERT\tt\tc\t5\t0",
		"1\t10\tCOMMIT\tN/A\tN/A\tN/A\t0",
		"2\t11\tBEGIN\tN/A\tN/A\tN/A\t0",
		"2\t11\tREAD\tt\tc\t5\t10",
		"2\t11\tCOMMIT\tN/A\tN/A\tN/A\t0",
	)
	want := strings.Join([]string{
		"{:type :invoke, :process 10, :time 1, :index 0, :value [[:append t-5 10]]}",
		"{:type :ok, :process 10, :time 3, :index 1, :value [[:append t-5 10]]}",
		"{:type :invoke, :process 11, :time 4, :index 2, :value [[:r t-5 nil]]}",
		"{:type :ok, :process 11, :time 6, :index 3, :value [[:r t-5 [10]]]}",
		"",
	}, "\n")
	requireTextEqual(t, want, got)
}

func TestHistory_Encoder_EmptyReadHistoryRendersEmptyBrackets(t *testing.T) {
	t.Parallel()

	got := translateLines(t, defaultEncoder(),
		"1\t10\tBEGIN\tN/A\tN/A\tN/A\t0",
		"1\t10\tREAD\tt\tc\t9\t0",
		"1\t10\tCOMMIT\tN/A\tN/A\tN/A\t0",
	)
	want := strings.Join([]string{
		"{:type :invoke, :process 10, :time 1, :index 0, :value [[:r t-9 nil]]}",
		"{:type :ok, :process 10, :time 3, :index 1, :value [[:r t-9 []]]}",
		"",
	}, "\n")
	requireTextEqual(t, want, got)
}

func TestHistory_Encoder_MissingWriterFallback(t *testing.T) {
	t.Parallel()

	got := translateLines(t, defaultEncoder(),
		"1\t10\tBEGIN\tN/A\tN/A\tN/A\t0",
		"1\t10\tREAD\tt\tc\t9\t77",
		"1\t10\tCOMMIT\tN/A\tN/A\tN/A\t0",
	)
	require.Contains(t, got, "[:r t-9 [77]]")
}

func TestHistory_Encoder_MultiOpValueOrdering(t *testing.T) {
	t.Parallel()

	got := translateLines(t, defaultEncoder(),
		"1\t10\tBEGIN\tN/A\tN/A\tN/A\t0",
		"1\t10\tREAD\tt\tc\t1\t0",
		"1\t10\tINSERT\tt\tc\t2\t0",
		"1\t10\tREAD\tt\tc\t2\t10",
		"1\t10\tCOMMIT\tN/A\tN/A\tN/A\t0",
	)
	want := strings.Join([]string{
		"{:type :invoke, :process 10, :time 1, :index 0, :value [[:r t-1 nil] [:append t-2 10] [:r t-2 nil]]}",
		"{:type :ok, :process 10, :time 5, :index 1, :value [[:r t-1 []] [:append t-2 10] [:r t-2 [10]]]}",
		"",
	}, "\n")
	requireTextEqual(t, want, got)
}

func TestHistory_Encoder_PairingAndIndices(t *testing.T) {
	t.Parallel()

	var lines []string
	for i := 0; i < 5; i++ {
		id := 100 + i
		lines = append(lines,
			fmt.Sprintf("1\t%d\tBEGIN\tN/A\tN/A\tN/A\t0", id),
			fmt.Sprintf("1\t%d\tINSERT\tt\tc\t%d\t0", id, i),
			fmt.Sprintf("1\t%d\tCOMMIT\tN/A\tN/A\tN/A\t0", id),
		)
	}
	got := translateLines(t, defaultEncoder(), lines...)

	outLines := strings.Split(strings.TrimSuffix(got, "\n"), "\n")
	require.Len(t, outLines, 10)
	for i, line := range outLines {
		require.Contains(t, line, fmt.Sprintf(":index %d,", i), "line %d", i)
		if i%2 == 0 {
			require.True(t, strings.HasPrefix(line, "{:type :invoke,"), "line %d: %s", i, line)
		} else {
			require.True(t, strings.HasPrefix(line, "{:type :ok,"), "line %d: %s", i, line)
			require.Contains(t, line, fmt.Sprintf(":process %d,", 100+i/2))
		}
	}
}

func TestHistory_Encoder_Deterministic(t *testing.T) {
	t.Parallel()

	// Several transactions that never BEGIN share an unset begin time, so a
	// naive map iteration would emit them in random order.
	var lines []string
	for i := 0; i < 20; i++ {
		id := 500 + i
		lines = append(lines,
			fmt.Sprintf("1\t%d\tINSERT\tt\tc\t%d\t0", id, i),
			fmt.Sprintf("1\t%d\tCOMMIT\tN/A\tN/A\tN/A\t0", id),
		)
	}

	first := translateLines(t, defaultEncoder(), lines...)
	for i := 0; i < 5; i++ {
		requireTextEqual(t, first, translateLines(t, defaultEncoder(), lines...))
	}
}

func TestHistory_Encoder_SystemTableFilter(t *testing.T) {
	t.Parallel()

	t.Run("transaction touching a system table is dropped entirely", func(t *testing.T) {
		t.Parallel()
		got := translateLines(t, defaultEncoder(),
			"1\t10\tBEGIN\tN/A\tN/A\tN/A\t0",
			"1\t10\tREAD\tmysql.user\tc\t1\t0",
			"1\t10\tINSERT\tt.users\tc\t2\t0",
			"1\t10\tCOMMIT\tN/A\tN/A\tN/A\t0",
			"2\t20\tBEGIN\tN/A\tN/A\tN/A\t0",
			"2\t20\tINSERT\tt.users\tc\t3\t0",
			"2\t20\tCOMMIT\tN/A\tN/A\tN/A\t0",
		)
		require.NotContains(t, got, ":process 10,")
		require.Contains(t, got, ":process 20,")
		// The survivor's indices start at zero despite the dropped
		// transaction coming first in sort order.
		require.Contains(t, got, ":index 0,")
	})

	t.Run("bare prefix over-filters by default", func(t *testing.T) {
		t.Parallel()
		got := translateLines(t, defaultEncoder(),
			"1\t10\tBEGIN\tN/A\tN/A\tN/A\t0",
			"1\t10\tINSERT\tmysqlfoo.bar\tc\t1\t0",
			"1\t10\tCOMMIT\tN/A\tN/A\tN/A\t0",
		)
		require.Empty(t, got)
	})

	t.Run("schema boundary restricts bare prefixes", func(t *testing.T) {
		t.Parallel()
		enc := &Encoder{FilterPrefixes: DefaultFilterPrefixes, SchemaBoundary: true}
		got := translateLines(t, enc,
			"1\t10\tBEGIN\tN/A\tN/A\tN/A\t0",
			"1\t10\tINSERT\tmysqlfoo.bar\tc\t1\t0",
			"1\t10\tCOMMIT\tN/A\tN/A\tN/A\t0",
			"2\t20\tBEGIN\tN/A\tN/A\tN/A\t0",
			"2\t20\tINSERT\tmysql.user\tc\t1\t0",
			"2\t20\tCOMMIT\tN/A\tN/A\tN/A\t0",
		)
		require.Contains(t, got, ":process 10,")
		require.NotContains(t, got, ":process 20,")
	})

	t.Run("no prefixes keeps everything", func(t *testing.T) {
		t.Parallel()
		enc := &Encoder{}
		got := translateLines(t, enc,
			"1\t10\tBEGIN\tN/A\tN/A\tN/A\t0",
			"1\t10\tINSERT\tmysql.user\tc\t1\t0",
			"1\t10\tCOMMIT\tN/A\tN/A\tN/A\t0",
		)
		require.Contains(t, got, ":process 10,")
	})
}

func TestHistory_Encoder_PromoteReparenting(t *testing.T) {
	t.Parallel()

	got := translateLines(t, defaultEncoder(),
		"1\t382\tBEGIN\tN/A\tN/A\tN/A\t0",
		"1\t382\tINSERT\tt\tc\t3\t0",
		"1\t444486\tPROMOTE\tN/A\tN/A\tN/A\t382",
		"1\t444486\tCOMMIT\tN/A\tN/A\tN/A\t0",
	)
	want := strings.Join([]string{
		"{:type :invoke, :process 444486, :time 1, :index 0, :value [[:append t-3 444486]]}",
		"{:type :ok, :process 444486, :time 4, :index 1, :value [[:append t-3 444486]]}",
		"",
	}, "\n")
	requireTextEqual(t, want, got)
}
