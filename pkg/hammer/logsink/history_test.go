package logsink_test

import (
	"strconv"
	"testing"

	"github.com/argus-labs/sledgehammer/pkg/hammer/logsink"
	"github.com/argus-labs/sledgehammer/pkg/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistory_RejectsBadCapacity(t *testing.T) {
	t.Parallel()

	_, err := logsink.NewHistory(0)
	assert.Error(t, err)

	h, err := logsink.NewHistory(5)
	require.NoError(t, err)
	assert.Equal(t, 5, h.Cap(), "capacity is kept exactly")

	for i := range 7 {
		h.OnLogEntry(logsink.NewRecord(logsink.KindEvent, "chat", strconv.Itoa(i)))
	}
	var got []string
	for _, rec := range h.Last(-1) {
		got = append(got, rec.Message)
	}
	assert.Equal(t, []string{"2", "3", "4", "5", "6"}, got)
}

// Model-based check: the history must always equal the tail of every record ever written.
func TestHistory_ModelFuzz(t *testing.T) {
	t.Parallel()
	prng := testutils.NewRand(t)

	const (
		opsMax  = 1 << 12
		opWrite = "write"
		opRead  = "read"
	)

	h, err := logsink.NewHistory(prng.IntN(64) + 1)
	require.NoError(t, err)
	var model []string

	weights := testutils.RandOpWeights(prng, []string{opWrite, opRead})
	for i := range opsMax {
		switch testutils.RandWeightedOp(prng, weights) {
		case opWrite:
			msg := strconv.Itoa(i)
			h.OnLogEntry(logsink.NewRecord(logsink.KindEvent, "generic", msg))
			model = append(model, msg)

		case opRead:
			n := prng.IntN(h.Cap() + 2)
			got := h.Last(n)

			want := model[max(0, len(model)-min(n, h.Cap())):]
			require.Len(t, got, len(want))
			for j, rec := range got {
				assert.Equal(t, want[j], rec.Message)
			}

		default:
			panic("unreachable")
		}
	}
}

func TestHistory_Filter(t *testing.T) {
	t.Parallel()

	h, err := logsink.NewHistory(4)
	require.NoError(t, err)

	for i, cat := range []logsink.Category{logsink.CategoryInfo, logsink.CategoryCheat, logsink.CategoryInfo} {
		rec := logsink.NewRecord(logsink.KindEvent, "generic", strconv.Itoa(i))
		rec.Category = cat
		h.OnLogEntry(rec)
	}

	cheats := h.Filter(func(r logsink.Record) bool { return r.Category == logsink.CategoryCheat })
	require.Len(t, cheats, 1)
	assert.Equal(t, "1", cheats[0].Message)
}
