package browser

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"auto_trader/internal/config"
	"auto_trader/internal/core"
	apperrors "auto_trader/pkg/errors"
)

var (
	dollarRe  = regexp.MustCompile(`\$?([0-9][0-9,]*)`)
	counterRe = regexp.MustCompile(`(\d+)\s*/\s*(\d+)`)
	levelRe   = regexp.MustCompile(`Level\s+(\d+)`)
)

// Navigator wraps the raw session with page-level knowledge: canonical URLs,
// authenticated markers and the value parsers for the game's counters.
type Navigator struct {
	session   core.IBrowserSession
	pacer     core.IPacer
	urls      config.URLConfig
	selectors Selectors
	logger    core.ILogger
}

// NewNavigator creates a navigator over a connected session.
func NewNavigator(session core.IBrowserSession, pacer core.IPacer, urls config.URLConfig, selectors Selectors, logger core.ILogger) *Navigator {
	return &Navigator{
		session:   session,
		pacer:     pacer,
		urls:      urls,
		selectors: selectors,
		logger:    logger.WithField("component", "navigator"),
	}
}

// Session returns the underlying browser session.
func (n *Navigator) Session() core.IBrowserSession { return n.session }

// Selectors returns the active selector table.
func (n *Navigator) Selectors() Selectors { return n.selectors }

// URLs returns the configured page addresses.
func (n *Navigator) URLs() config.URLConfig { return n.urls }

// EnsureURL navigates to url unless the page is already there.
func (n *Navigator) EnsureURL(ctx context.Context, url string) error {
	current, err := n.session.CurrentURL(ctx)
	if err == nil && current == url {
		return nil
	}
	if err := n.session.Goto(ctx, url); err != nil {
		return err
	}
	return n.pacer.AfterNavigation(ctx)
}

// CloseOverlay dismisses a blocking promotional overlay if one is visible.
func (n *Navigator) CloseOverlay(ctx context.Context) error {
	el, err := n.session.QuerySelector(ctx, n.selectors.OverlayKill)
	if err != nil || el == nil {
		return err
	}
	visible, err := el.IsVisible(ctx)
	if err != nil || !visible {
		return err
	}
	n.logger.Debug("dismissing overlay")
	return n.pacer.Click(ctx, el)
}

// IsLoggedIn positively asserts the authenticated markers: a logout link or
// a cash label. A matching URL alone is not sufficient.
func (n *Navigator) IsLoggedIn(ctx context.Context) (bool, error) {
	current, err := n.session.CurrentURL(ctx)
	if err != nil {
		return false, err
	}
	if strings.Contains(current, "autologin=1") || strings.Contains(strings.ToLower(current), "login") {
		return false, nil
	}
	for _, sel := range []string{n.selectors.LogoutLink, n.selectors.CashLabel, n.selectors.LevelLabel} {
		el, err := n.session.QuerySelector(ctx, sel)
		if err != nil {
			return false, err
		}
		if el != nil {
			return true, nil
		}
	}
	return false, nil
}

// CurrentCash reads the sidebar cash label.
func (n *Navigator) CurrentCash(ctx context.Context) (int64, error) {
	el, err := n.session.QuerySelector(ctx, n.selectors.CashLabel)
	if err != nil {
		return 0, err
	}
	if el == nil {
		return 0, fmt.Errorf("%w: cash label", apperrors.ErrNotFound)
	}
	text, err := el.InnerText(ctx)
	if err != nil {
		return 0, err
	}
	return ParseDollars(text)
}

// ReadUserInfo extracts the cached identity fields from the sidebar. Missing
// pieces are left zero; the cash read is the only required one.
func (n *Navigator) ReadUserInfo(ctx context.Context) (core.UserInfo, error) {
	var info core.UserInfo

	if el, err := n.session.QuerySelector(ctx, n.selectors.PlayerName); err == nil && el != nil {
		if text, err := el.InnerText(ctx); err == nil {
			info.Name = strings.TrimSpace(text)
		}
	}
	if el, err := n.session.QuerySelector(ctx, n.selectors.LevelLabel); err == nil && el != nil {
		if text, err := el.InnerText(ctx); err == nil {
			if m := levelRe.FindStringSubmatch(text); m != nil {
				info.Level, _ = strconv.Atoi(m[1])
			}
		}
	}
	cash, err := n.CurrentCash(ctx)
	if err != nil {
		return info, err
	}
	info.Cash = cash
	return info, nil
}

// ParseDollars extracts a whole-dollar amount from text like "Cash: $12,345".
func ParseDollars(text string) (int64, error) {
	m := dollarRe.FindStringSubmatch(text)
	if m == nil {
		return 0, fmt.Errorf("no dollar amount in %q", text)
	}
	raw := strings.ReplaceAll(m[1], ",", "")
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse dollar amount %q: %w", raw, err)
	}
	return value, nil
}

// ParseCounter extracts a used/total pair from text like "6/30".
func ParseCounter(text string) (used, total int, err error) {
	m := counterRe.FindStringSubmatch(text)
	if m == nil {
		return 0, 0, fmt.Errorf("no counter in %q", text)
	}
	used, _ = strconv.Atoi(m[1])
	total, _ = strconv.Atoi(m[2])
	return used, total, nil
}
