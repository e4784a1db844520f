package outbox

import (
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

type RelayOptions struct {
	PollInterval time.Duration
	BatchSize    int
	// Claimed rows whose lock is older than LockTTL are claimable again.
	LockTTL     time.Duration
	MaxAttempts int
	// SingleActive makes relays sharing a table take turns claiming batches.
	SingleActive    bool
	MaxBackoff      time.Duration
	JitterMax       time.Duration
	LastErrorMaxLen int
	DispatchTimeout time.Duration
	DepthEvery      time.Duration

	Logger *logrus.Entry
	Rand   *rand.Rand
}

func (o *RelayOptions) setDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.LockTTL <= 0 {
		o.LockTTL = time.Minute
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 25
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = time.Minute
	}
	if o.JitterMax == 0 {
		o.JitterMax = 200 * time.Millisecond
	}
	if o.LastErrorMaxLen <= 0 {
		o.LastErrorMaxLen = 2048
	}
	if o.DispatchTimeout <= 0 {
		o.DispatchTimeout = 30 * time.Second
	}
	if o.DepthEvery <= 0 {
		o.DepthEvery = 10 * time.Second
	}
	if o.Logger == nil {
		o.Logger = nopLogger()
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec
	}
}

type CleanerOptions struct {
	Interval time.Duration
	// Published rows older than Retention are deleted.
	Retention time.Duration
	// Dead rows (attempts >= DeadAttempts) older than DeadRetention are
	// deleted. Zero keeps them for inspection.
	DeadRetention time.Duration
	DeadAttempts  int

	Logger *logrus.Entry
}

func (o *CleanerOptions) setDefaults() {
	if o.Interval <= 0 {
		o.Interval = time.Minute
	}
	if o.Retention <= 0 {
		o.Retention = 7 * 24 * time.Hour
	}
	if o.Logger == nil {
		o.Logger = nopLogger()
	}
}

func nopLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}
