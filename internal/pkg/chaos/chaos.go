// Package chaos implements the fault-injection layer shared by every
// fabrik service.
//
// Three independent slowdown mechanisms are supported, each gated by a
// percentage probability and a magnitude in milliseconds:
//
//   - service slowdown: suspend the calling request before it proceeds
//   - database slowdown: run a CPU-bound query against the store so the
//     injected load shows up in backend metrics, not just caller latency
//   - message slowdown: suspend a consumer callback before it acts
//
// Each mechanism is configured by an env-style pair (rate + delay). If
// either half of a pair is absent or non-numeric the mechanism is a
// silent no-op; misconfiguration must never take a service down.
package chaos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"strconv"
	"time"
)

// ErrInjectedLoad marks a request that could not complete because the
// injected database load itself failed. Callers surface it distinctly
// from ordinary storage errors.
var ErrInjectedLoad = errors.New("chaos: injected database load failed")

// Env var pairs consumed by FromEnv. Either half missing or non-numeric
// disables that mechanism.
const (
	EnvServiceRate  = "SLOWDOWN_RATE"
	EnvServiceDelay = "SLOWDOWN_DELAY"
	EnvDBRate       = "DB_SLOWDOWN_RATE"
	EnvDBDelay      = "DB_SLOWDOWN_DELAY"
	EnvMessageRate  = "MSG_SLOWDOWN_RATE"
	EnvMessageDelay = "MSG_SLOWDOWN_DELAY"
)

// iterationsPerMilli sizes the database burn query: each iteration is a
// hash over a random value and costs roughly 0.2ms of backend CPU.
const iterationsPerMilli = 5000

// Execer is the slice of database/sql needed to run the burn query.
// *sql.DB satisfies it; tests substitute a fake.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// mechanism is one configured probability/delay pair.
type mechanism struct {
	enabled bool
	rate    int
	delayMS int
}

func parseMechanism(rateStr, delayStr string) mechanism {
	rate, err := strconv.Atoi(rateStr)
	if err != nil {
		return mechanism{}
	}
	delay, err := strconv.Atoi(delayStr)
	if err != nil {
		return mechanism{}
	}
	return mechanism{enabled: true, rate: rate, delayMS: delay}
}

// Injector decides, per call, whether to perturb the caller. It is
// stateless apart from its configuration and safe for concurrent use.
type Injector struct {
	service mechanism
	db      mechanism
	message mechanism

	// roll returns a uniform value in [0,1); overridable in tests.
	roll func() float64
	// sleep performs the pure-wait slowdowns; overridable in tests.
	sleep func(time.Duration)
}

// Config carries the raw, unparsed rate/delay pairs. Values are kept as
// strings so that "absent or non-numeric disables" is decided here, in
// one place, rather than by every caller.
type Config struct {
	ServiceRate, ServiceDelay string
	DBRate, DBDelay           string
	MessageRate, MessageDelay string
}

// New builds an Injector from raw config strings.
func New(cfg Config) *Injector {
	return &Injector{
		service: parseMechanism(cfg.ServiceRate, cfg.ServiceDelay),
		db:      parseMechanism(cfg.DBRate, cfg.DBDelay),
		message: parseMechanism(cfg.MessageRate, cfg.MessageDelay),
		roll:    rand.Float64,
		sleep:   time.Sleep,
	}
}

// FromEnv builds an Injector from the process environment.
func FromEnv() *Injector {
	return New(Config{
		ServiceRate:  os.Getenv(EnvServiceRate),
		ServiceDelay: os.Getenv(EnvServiceDelay),
		DBRate:       os.Getenv(EnvDBRate),
		DBDelay:      os.Getenv(EnvDBDelay),
		MessageRate:  os.Getenv(EnvMessageRate),
		MessageDelay: os.Getenv(EnvMessageDelay),
	})
}

// Disabled returns an Injector with every mechanism off. Convenient as a
// default so callers never need a nil check.
func Disabled() *Injector {
	return New(Config{})
}

func (m mechanism) fires(roll func() float64) bool {
	return m.enabled && roll()*100 < float64(m.rate)
}

// SlowService applies the service slowdown at a request entry point.
// Reports whether a delay was injected.
func (i *Injector) SlowService(ctx context.Context, label string) bool {
	if !i.service.fires(i.roll) {
		return false
	}
	slog.InfoContext(ctx, "service slowdown injected", "context", label, "delay_ms", i.service.delayMS)
	i.sleep(time.Duration(i.service.delayMS) * time.Millisecond)
	return true
}

// SlowMessage applies the message-processing slowdown inside a consumer
// callback. Reports whether a delay was injected.
func (i *Injector) SlowMessage(ctx context.Context, label string) bool {
	if !i.message.fires(i.roll) {
		return false
	}
	slog.InfoContext(ctx, "message slowdown injected", "context", label, "delay_ms", i.message.delayMS)
	i.sleep(time.Duration(i.message.delayMS) * time.Millisecond)
	return true
}

// burnQuery consumes backend CPU via generate_series + md5. The iteration
// count, not a sleep, determines the elapsed time, so the load is visible
// in database metrics.
const burnQuery = `SELECT count(*) FROM generate_series(1, $1) s, LATERAL (SELECT md5(CAST(random() AS text))) x`

// SlowDatabase applies the database slowdown by executing a CPU-bound
// query sized to roughly delayMS of backend time. A nil db disables the
// mechanism. A query failure escalates as ErrInjectedLoad: the
// surrounding request must fail rather than fail open.
func (i *Injector) SlowDatabase(ctx context.Context, db Execer, label string) error {
	if db == nil || !i.db.fires(i.roll) {
		return nil
	}

	iterations := i.db.delayMS * iterationsPerMilli
	slog.InfoContext(ctx, "database slowdown injected",
		"context", label, "iterations", iterations, "expected_ms", i.db.delayMS)

	if _, err := db.ExecContext(ctx, burnQuery, iterations); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInjectedLoad, label, err)
	}
	return nil
}
