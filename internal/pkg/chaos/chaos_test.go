package chaos

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// instrument swaps the injector's randomness and sleeper for test doubles
// and returns a pointer to the recorded sleep durations.
func instrument(i *Injector, roll float64) *[]time.Duration {
	var slept []time.Duration
	i.roll = func() float64 { return roll }
	i.sleep = func(d time.Duration) { slept = append(slept, d) }
	return &slept
}

func TestServiceSlowdownAlwaysFiresAtFullRate(t *testing.T) {
	inj := New(Config{ServiceRate: "100", ServiceDelay: "50"})
	slept := instrument(inj, 0.999)

	for range 1000 {
		require.True(t, inj.SlowService(context.Background(), "test"))
	}

	require.Len(t, *slept, 1000)
	for _, d := range *slept {
		assert.Equal(t, 50*time.Millisecond, d)
	}
}

func TestServiceSlowdownNeverFiresAtZeroRate(t *testing.T) {
	inj := New(Config{ServiceRate: "0", ServiceDelay: "50"})
	slept := instrument(inj, 0.0)

	start := time.Now()
	for range 1000 {
		require.False(t, inj.SlowService(context.Background(), "test"))
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.Empty(t, *slept)
}

func TestServiceSlowdownRealDelay(t *testing.T) {
	inj := New(Config{ServiceRate: "100", ServiceDelay: "5"})
	inj.roll = func() float64 { return 0 }

	start := time.Now()
	require.True(t, inj.SlowService(context.Background(), "test"))
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestDisabledOnMissingOrBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"all empty", Config{}},
		{"missing delay", Config{ServiceRate: "100", MessageRate: "100", DBRate: "100"}},
		{"missing rate", Config{ServiceDelay: "50", MessageDelay: "50", DBDelay: "50"}},
		{"non-numeric rate", Config{ServiceRate: "lots", ServiceDelay: "50"}},
		{"non-numeric delay", Config{ServiceRate: "100", ServiceDelay: "soon"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			inj := New(tc.cfg)
			slept := instrument(inj, 0.0)

			assert.False(t, inj.SlowService(context.Background(), "test"))
			assert.False(t, inj.SlowMessage(context.Background(), "test"))
			assert.NoError(t, inj.SlowDatabase(context.Background(), &fakeExecer{}, "test"))
			assert.Empty(t, *slept)
		})
	}
}

func TestMessageSlowdownRespectsRate(t *testing.T) {
	inj := New(Config{MessageRate: "30", MessageDelay: "10"})
	instrument(inj, 0.299) // 29.9 < 30: fires
	assert.True(t, inj.SlowMessage(context.Background(), "test"))

	instrument(inj, 0.30) // 30 is not < 30: does not fire
	assert.False(t, inj.SlowMessage(context.Background(), "test"))
}

type fakeExecer struct {
	query string
	args  []any
	err   error
}

func (f *fakeExecer) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	f.query = query
	f.args = args
	return nil, f.err
}

func TestDatabaseSlowdownSizesBurnQuery(t *testing.T) {
	inj := New(Config{DBRate: "100", DBDelay: "40"})
	instrument(inj, 0.0)

	db := &fakeExecer{}
	require.NoError(t, inj.SlowDatabase(context.Background(), db, "test"))

	assert.Contains(t, db.query, "generate_series")
	assert.Contains(t, db.query, "md5")
	require.Len(t, db.args, 1)
	assert.Equal(t, 40*5000, db.args[0])
}

func TestDatabaseSlowdownEscalatesFailure(t *testing.T) {
	inj := New(Config{DBRate: "100", DBDelay: "10"})
	instrument(inj, 0.0)

	db := &fakeExecer{err: errors.New("backend gone")}
	err := inj.SlowDatabase(context.Background(), db, "order 1234")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInjectedLoad)
	assert.Contains(t, err.Error(), "order 1234")
}

func TestDatabaseSlowdownNilHandleIsNoop(t *testing.T) {
	inj := New(Config{DBRate: "100", DBDelay: "10"})
	instrument(inj, 0.0)
	assert.NoError(t, inj.SlowDatabase(context.Background(), nil, "test"))
}
