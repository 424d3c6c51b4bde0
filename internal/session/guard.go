// Package session implements smart login over the persisted browser session.
package session

import (
	"context"
	"fmt"
	"time"

	"auto_trader/internal/browser"
	"auto_trader/internal/config"
	"auto_trader/internal/core"
	apperrors "auto_trader/pkg/errors"
	"auto_trader/pkg/telemetry"
)

// SessionTTL is how long a persisted session is trusted after saving.
const SessionTTL = 24 * time.Hour

// Guard restores persisted cookies when possible and falls back to an
// interactive login. Credentials are never logged.
type Guard struct {
	nav    *browser.Navigator
	pacer  core.IPacer
	store  core.IStore
	creds  config.CredentialsConfig
	risk   config.RiskConfig
	logger core.ILogger
	now    func() time.Time
}

// NewGuard creates a session guard.
func NewGuard(nav *browser.Navigator, pacer core.IPacer, store core.IStore, creds config.CredentialsConfig, risk config.RiskConfig, logger core.ILogger) *Guard {
	return &Guard{
		nav:    nav,
		pacer:  pacer,
		store:  store,
		creds:  creds,
		risk:   risk,
		logger: logger.WithField("component", "session_guard"),
		now:    time.Now,
	}
}

// WithClock replaces the time source for tests.
func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.now = now
	return g
}

// EnsureLoggedIn makes the browser authenticated. Attempt order: restore the
// persisted snapshot and validate it against a protected page; then
// interactive login with exponential cooldown between attempts. A fresh
// snapshot is persisted after any success. Returns false once the login
// retry budget is exhausted.
func (g *Guard) EnsureLoggedIn(ctx context.Context) (bool, error) {
	restored, err := g.tryRestore(ctx)
	if err != nil {
		return false, err
	}
	if restored {
		return true, nil
	}

	cooldown := time.Duration(g.risk.LoginRetryWaitSeconds) * time.Second
	for attempt := 1; attempt <= g.risk.MaxLoginRetries; attempt++ {
		if m := telemetry.GetGlobalMetrics(); m.LoginAttemptsTotal != nil {
			m.LoginAttemptsTotal.Add(ctx, 1)
		}
		ok, err := g.interactiveLogin(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			g.logger.Warn("login attempt failed", "attempt", attempt, "error", err)
		}
		if ok {
			if err := g.persistSnapshot(ctx); err != nil {
				g.logger.Error("failed to persist session snapshot", "error", err)
			}
			return true, nil
		}
		if attempt < g.risk.MaxLoginRetries {
			g.logger.Info("waiting before login retry", "attempt", attempt, "cooldown", cooldown)
			if err := g.pacer.Wait(ctx, cooldown); err != nil {
				return false, err
			}
			cooldown *= 2
		}
	}
	return false, fmt.Errorf("%w: after %d attempts", apperrors.ErrLoginFailed, g.risk.MaxLoginRetries)
}

// ClearSession removes the persisted snapshot.
func (g *Guard) ClearSession(ctx context.Context) error {
	return g.store.ClearSession(ctx)
}

// SessionInfo summarizes the persisted snapshot for operators and tests.
func (g *Guard) SessionInfo(ctx context.Context) (map[string]interface{}, error) {
	snapshot, err := g.store.LoadSession(ctx)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, nil
	}
	return map[string]interface{}{
		"saved_at":     snapshot.SavedAt,
		"expires_at":   snapshot.ExpiresAt,
		"last_url":     snapshot.LastURL,
		"cookie_count": len(snapshot.Cookies),
		"user":         snapshot.UserInfo.Name,
		"is_usable":    snapshot.IsUsable(g.now()),
	}, nil
}

// tryRestore loads the persisted snapshot, installs its cookies, and
// validates by visiting a protected page. Invalid snapshots are deleted.
func (g *Guard) tryRestore(ctx context.Context) (bool, error) {
	snapshot, err := g.store.LoadSession(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: load session: %v", apperrors.ErrStoreUnavailable, err)
	}
	if snapshot == nil {
		return false, nil
	}
	if !snapshot.IsUsable(g.now()) {
		g.logger.Info("persisted session unusable, clearing",
			"saved_at", snapshot.SavedAt, "expires_at", snapshot.ExpiresAt)
		if err := g.store.ClearSession(ctx); err != nil {
			g.logger.Error("failed to clear stale session", "error", err)
		}
		return false, nil
	}

	if err := g.nav.Session().AddCookies(ctx, snapshot.Cookies); err != nil {
		g.logger.Warn("failed to install cookies", "error", err)
		return false, nil
	}
	if err := g.nav.EnsureURL(ctx, g.nav.URLs().Home); err != nil {
		return false, nil
	}
	ok, err := g.nav.IsLoggedIn(ctx)
	if err != nil {
		return false, nil
	}
	if !ok {
		g.logger.Info("restored cookies rejected, clearing session")
		if err := g.store.ClearSession(ctx); err != nil {
			g.logger.Error("failed to clear rejected session", "error", err)
		}
		return false, nil
	}

	g.logger.Info("session restored", "cookies", len(snapshot.Cookies), "user", snapshot.UserInfo.Name)
	return true, nil
}

// interactiveLogin fills the login form and waits for the authenticated
// landing page.
func (g *Guard) interactiveLogin(ctx context.Context) (bool, error) {
	sel := g.nav.Selectors()
	session := g.nav.Session()

	if err := session.Goto(ctx, g.nav.URLs().Login); err != nil {
		return false, err
	}
	if err := g.pacer.AfterNavigation(ctx); err != nil {
		return false, err
	}

	userField, err := session.QuerySelector(ctx, sel.LoginUsername)
	if err != nil {
		return false, err
	}
	passField, err := session.QuerySelector(ctx, sel.LoginPassword)
	if err != nil {
		return false, err
	}
	if userField == nil || passField == nil {
		// Some landings skip the form entirely when a server-side session
		// still exists.
		if ok, err := g.nav.IsLoggedIn(ctx); err == nil && ok {
			return true, nil
		}
		return false, fmt.Errorf("%w: login form", apperrors.ErrNotFound)
	}

	if err := g.pacer.TypeInto(ctx, userField, g.creds.Username); err != nil {
		return false, err
	}
	if err := g.pacer.ThinkPause(ctx); err != nil {
		return false, err
	}
	if err := g.pacer.TypeInto(ctx, passField, g.creds.Password); err != nil {
		return false, err
	}

	submit, err := session.QuerySelector(ctx, sel.LoginSubmit)
	if err != nil {
		return false, err
	}
	if submit == nil {
		return false, fmt.Errorf("%w: login submit", apperrors.ErrNotFound)
	}
	if err := g.pacer.Click(ctx, submit); err != nil {
		return false, err
	}
	if err := g.pacer.AfterNavigation(ctx); err != nil {
		return false, err
	}

	if err := g.nav.EnsureURL(ctx, g.nav.URLs().Home); err != nil {
		return false, err
	}
	return g.nav.IsLoggedIn(ctx)
}

// persistSnapshot captures cookies, URL and user info after a successful
// login.
func (g *Guard) persistSnapshot(ctx context.Context) error {
	session := g.nav.Session()
	cookies, err := session.GetCookies(ctx)
	if err != nil {
		return err
	}
	if len(cookies) == 0 {
		return fmt.Errorf("no cookies to persist")
	}
	currentURL, err := session.CurrentURL(ctx)
	if err != nil {
		currentURL = ""
	}
	info, err := g.nav.ReadUserInfo(ctx)
	if err != nil {
		g.logger.Debug("user info read incomplete", "error", err)
	}

	now := g.now()
	snapshot := &core.SessionSnapshot{
		SavedAt:   now,
		ExpiresAt: now.Add(SessionTTL),
		Cookies:   cookies,
		LastURL:   currentURL,
		UserInfo:  info,
		Valid:     true,
	}
	if err := g.store.SaveSession(ctx, snapshot); err != nil {
		return err
	}
	g.logger.Info("session persisted", "cookies", len(cookies), "user", info.Name)
	return nil
}

var _ core.ISessionGuard = (*Guard)(nil)
