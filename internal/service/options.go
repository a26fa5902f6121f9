package service

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"go-rbac-auth/internal/event"
)

const (
	DefaultAccessTTL   = 2 * time.Hour
	DefaultRefreshTTL  = 15 * 24 * time.Hour
	DefaultResetWindow = 24 * time.Hour
)

type options struct {
	now         func() time.Time
	bus         event.Bus
	bcryptCost  int
	accessTTL   time.Duration
	refreshTTL  time.Duration
	resetWindow time.Duration
	resetURL    string
	debug       bool
}

// Option configures any of the services in this package. Each service reads only the
// settings it needs.
type Option func(*options)

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithEvents(bus event.Bus) Option {
	return func(o *options) { o.bus = bus }
}

func WithBcryptCost(cost int) Option {
	return func(o *options) { o.bcryptCost = cost }
}

func WithTokenTTL(access time.Duration, refresh time.Duration) Option {
	return func(o *options) {
		o.accessTTL = access
		o.refreshTTL = refresh
	}
}

func WithResetWindow(window time.Duration) Option {
	return func(o *options) { o.resetWindow = window }
}

func WithResetURL(url string) Option {
	return func(o *options) { o.resetURL = url }
}

// WithDebug echoes reset tokens in responses. Never enable it in production.
func WithDebug(debug bool) Option {
	return func(o *options) { o.debug = debug }
}

func buildOptions(opts []Option) options {
	o := options{
		now:         func() time.Time { return time.Now().UTC() },
		bcryptCost:  bcrypt.DefaultCost,
		accessTTL:   DefaultAccessTTL,
		refreshTTL:  DefaultRefreshTTL,
		resetWindow: DefaultResetWindow,
		resetURL:    "http://localhost:3000/reset-password",
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.bcryptCost < bcrypt.MinCost || o.bcryptCost > bcrypt.MaxCost {
		o.bcryptCost = bcrypt.DefaultCost
	}
	return o
}

func (o options) publish(typ event.Type, actorID string, payload map[string]any) {
	if o.bus == nil {
		return
	}
	e := event.New(typ, actorID, payload)
	e.Timestamp = o.now()
	o.bus.Publish(e)
}
