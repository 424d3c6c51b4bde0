package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// IElement is a handle to one DOM element. Handles are only valid until the
// next navigation of the owning session.
type IElement interface {
	Click(ctx context.Context, force bool) error
	RightClick(ctx context.Context) error
	Type(ctx context.Context, text string) error
	Fill(ctx context.Context, text string) error
	InnerText(ctx context.Context) (string, error)
	Attr(ctx context.Context, name string) (string, error)
	IsDisabled(ctx context.Context) (bool, error)
	IsVisible(ctx context.Context) (bool, error)
	BoundingBox(ctx context.Context) (Box, error)
}

// IBrowserSession is the capability the core consumes to drive the game.
// QuerySelector returns (nil, nil) when no element matches; errors are
// reserved for transport failures, timeouts and navigation faults.
// Evaluate is restricted to read operations and overlay suppression.
type IBrowserSession interface {
	Goto(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	QuerySelector(ctx context.Context, selector string) (IElement, error)
	QuerySelectorAll(ctx context.Context, selector string) ([]IElement, error)
	Evaluate(ctx context.Context, script string) (string, error)
	MouseMove(ctx context.Context, x, y float64) error
	MouseClick(ctx context.Context, x, y float64) error
	GetCookies(ctx context.Context) ([]Cookie, error)
	AddCookies(ctx context.Context, cookies []Cookie) error
	Close() error
}

// IPacer mediates every externally observable browser action, inserting
// human-like delays. It is the only component allowed to sleep longer than
// 200ms inside a stage. All waits observe context cancellation.
type IPacer interface {
	Jitter(ctx context.Context, lo, hi time.Duration) error
	ThinkPause(ctx context.Context) error
	TypeInto(ctx context.Context, el IElement, text string) error
	Click(ctx context.Context, el IElement) error
	AfterNavigation(ctx context.Context) error
	Wait(ctx context.Context, d time.Duration) error
}

// IStore persists sessions, cycle records and price history. Cycle records
// and price samples are append-only. LoadSession returns (nil, nil) when no
// snapshot is stored.
type IStore interface {
	LoadSession(ctx context.Context) (*SessionSnapshot, error)
	SaveSession(ctx context.Context, snapshot *SessionSnapshot) error
	ClearSession(ctx context.Context) error
	AppendCycleRecord(ctx context.Context, record *CycleRecord) error
	AppendPriceSample(ctx context.Context, itemName string, price decimal.Decimal, ts time.Time) error
	Close() error
}

// ISessionGuard keeps the browser authenticated.
type ISessionGuard interface {
	EnsureLoggedIn(ctx context.Context) (bool, error)
	ClearSession(ctx context.Context) error
}

// IResourceProbe reads the player's counters from the game pages.
type IResourceProbe interface {
	Probe(ctx context.Context) (*ResourceSnapshot, error)
}

// IHealthMonitor aggregates component health checks.
type IHealthMonitor interface {
	Register(component string, check func() error)
	GetStatus() map[string]string
	IsHealthy() bool
}

// INotifier delivers out-of-band operator alerts.
type INotifier interface {
	Notify(ctx context.Context, title, message string) error
}

// ILogger defines the interface for logging
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
