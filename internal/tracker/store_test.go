package tracker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obentoo/buildwatch/internal/resolver"
)

const month = 31 * 24 * 3600

func TestStalenessBoundary(t *testing.T) {
	const T = int64(1_700_000_000)
	state := TrackedState{LastUpdatedSeconds: T}

	assert.False(t, Stale(state, time.Unix(T+3*month-1, 0)))
	assert.True(t, Stale(state, time.Unix(T+3*month, 0)))
}

func TestStalenessProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("entry turns stale exactly after its interval in whole months", prop.ForAll(
		func(last int64, months int) bool {
			state := TrackedState{LastUpdatedSeconds: last, UpdateMonths: float64(months)}
			boundary := last + int64(months)*month
			return !state.Stale(time.Unix(boundary-1, 0), DefaultUpdateMonths) &&
				state.Stale(time.Unix(boundary, 0), DefaultUpdateMonths)
		},
		gen.Int64Range(1, 2_000_000_000),
		gen.IntRange(1, 48),
	))

	properties.Property("unknown update time is always stale", prop.ForAll(
		func(now int64, months float64) bool {
			state := TrackedState{UpdateMonths: months}
			return state.Stale(time.Unix(now, 0), DefaultUpdateMonths)
		},
		gen.Int64Range(0, 4_000_000_000),
		gen.Float64Range(0, 100),
	))

	properties.TestingRun(t)
}

func TestFractionalIntervalUsesWholeMonths(t *testing.T) {
	const T = int64(1_000_000)
	state := TrackedState{LastUpdatedSeconds: T, UpdateMonths: 1.5}

	assert.False(t, state.Stale(time.Unix(T+month, 0), DefaultUpdateMonths), "1 whole month < 1.5")
	assert.True(t, state.Stale(time.Unix(T+2*month, 0), DefaultUpdateMonths))
}

func TestIsStaleUsesStoreDefault(t *testing.T) {
	now := time.Unix(10*month, 0)
	store, err := Open(t.TempDir(), WithNowFunc(func() time.Time { return now }), WithDefaultMonths(6))
	require.NoError(t, err)

	require.NoError(t, store.SetPlayedVersion("a", "1", 0, now.Unix()-5*month))
	require.NoError(t, store.SetPlayedVersion("b", "1", 0, now.Unix()-6*month))

	assert.False(t, store.IsStale("a"))
	assert.True(t, store.IsStale("b"))
	assert.True(t, store.IsStale("unknown"))
	assert.Equal(t, 6.0, store.DefaultMonths())
}

func TestOpenMissingFileIsEmpty(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	store, err := Open(dir)
	require.NoError(t, err)

	assert.Zero(t, store.Len())
	assert.DirExists(t, dir)
	assert.NoFileExists(t, store.Path(), "nothing is written until a mutation")
}

func TestOpenCorruptFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFileName), []byte("{not json"), 0644))

	store, err := Open(dir)
	require.NoError(t, err)
	assert.Zero(t, store.Len())

	require.NoError(t, store.Clear("x"))
	require.NoError(t, store.SetPlayedVersion("x", "2", 0, 0))

	reopened, err := Open(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Len())
}

func TestRoundTripPersistence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	stateGen := gopter.CombineGens(
		gen.OneGenOf(gen.Const(""), gen.Const("0"), gen.NumString()),
		gen.OneGenOf(gen.Const(0.0), gen.Float64Range(0.5, 24)),
		gen.OneGenOf(gen.Const(int64(0)), gen.Int64Range(1, 4_000_000_000)),
	).Map(func(v []interface{}) TrackedState {
		return TrackedState{
			PlayedVersion:      v[0].(string),
			UpdateMonths:       v[1].(float64),
			LastUpdatedSeconds: v[2].(int64),
		}
	})

	properties.Property("reloading the cache yields the same map", prop.ForAll(
		func(states []TrackedState) bool {
			dir, err := os.MkdirTemp("", "tracker-*")
			if err != nil {
				return false
			}
			defer os.RemoveAll(dir)

			store, err := Open(dir)
			if err != nil {
				return false
			}
			for i, st := range states {
				id := fmt.Sprintf("entry-%d", i)
				if err := store.SetPlayedVersion(id, st.PlayedVersion, st.UpdateMonths, st.LastUpdatedSeconds); err != nil {
					t.Logf("set failed: %v", err)
					return false
				}
			}

			reopened, err := Open(dir)
			if err != nil {
				return false
			}
			return assert.ObjectsAreEqual(store.Snapshot(), reopened.Snapshot())
		},
		gen.SliceOfN(5, stateGen),
	))

	properties.TestingRun(t)
}

func TestFileUsesExactFieldNames(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.SetPlayedVersion("id-1", "42", 0, 7))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	for _, field := range []string{`"id-1"`, `"PlayedVersion"`, `"UpdateMonths": 0`, `"LastUpdatedSeconds": 7`} {
		assert.Contains(t, string(data), field)
	}
}

func TestMergeResolved(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.SetPlayedVersion("a", "100", 2, 0))

	require.NoError(t, store.MergeResolved("a", resolver.ProductFacts{LastUpdated: 500}))
	state, _ := store.Get("a")
	assert.Equal(t, TrackedState{PlayedVersion: "100", UpdateMonths: 2, LastUpdatedSeconds: 500}, state)

	require.NoError(t, store.MergeResolved("b", resolver.ProductFacts{LastUpdated: 0}))
	_, ok := store.Get("b")
	assert.False(t, ok, "zero timestamp never creates an entry")

	require.NoError(t, store.MergeMany(map[string]resolver.ProductFacts{
		"b": {LastUpdated: 10},
		"c": {LastUpdated: 20},
	}))
	assert.Equal(t, 3, store.Len())

	reopened, err := Open(filepath.Dir(store.Path()))
	require.NoError(t, err)
	assert.Equal(t, store.Snapshot(), reopened.Snapshot())
}

func TestReconcileIsIdempotent(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	for _, id := range []string{"keep", "gone-1", "gone-2"} {
		require.NoError(t, store.SetPlayedVersion(id, "1", 0, 1))
	}
	current := map[string]struct{}{"keep": {}, "new": {}}

	removed, err := store.Reconcile(current)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	// a second pass must not write: remove the file and check it stays gone
	require.NoError(t, os.Remove(store.Path()))
	removed, err = store.Reconcile(current)
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.NoFileExists(t, store.Path())

	_, ok := store.Get("keep")
	assert.True(t, ok)
}

func TestClear(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.SetPlayedVersion("a", "1", 0, 1))

	require.NoError(t, store.Clear("a"))
	assert.Zero(t, store.Len())

	reopened, err := Open(filepath.Dir(store.Path()))
	require.NoError(t, err)
	assert.Zero(t, reopened.Len())
}

func TestWriteFailureKeepsMemoryState(t *testing.T) {
	dir := t.TempDir()
	// a directory in place of the cache file makes every rename fail
	require.NoError(t, os.Mkdir(filepath.Join(dir, DefaultFileName), 0755))

	store, err := Open(dir)
	require.NoError(t, err)

	err = store.SetPlayedVersion("a", "1", 0, 1)
	assert.ErrorIs(t, err, ErrPersistence)

	state, ok := store.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", state.PlayedVersion)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "temp file left behind: %s", e.Name())
	}
}

func TestConcurrentMutationsEndConsistent(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("entry-%d", i%5)
			assert.NoError(t, store.SetPlayedVersion(id, fmt.Sprint(i), 0, int64(i)))
			assert.NoError(t, store.MergeResolved(id, resolver.ProductFacts{LastUpdated: uint32(i + 100)}))
		}(i)
	}
	wg.Wait()

	reopened, err := Open(filepath.Dir(store.Path()))
	require.NoError(t, err)
	assert.Equal(t, store.Snapshot(), reopened.Snapshot())
}

func TestHasPlayedVersion(t *testing.T) {
	assert.False(t, TrackedState{}.HasPlayedVersion())
	assert.False(t, TrackedState{PlayedVersion: "0"}.HasPlayedVersion())
	assert.True(t, TrackedState{PlayedVersion: "12"}.HasPlayedVersion())
}
