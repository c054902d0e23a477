package portal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nexconsult/quote-harvester/internal/logger"
	"github.com/nexconsult/quote-harvester/internal/models"
)

// AuthenticationError reports a failed portal login. It is scoped to one
// tenant and never aborts a whole run.
type AuthenticationError struct {
	TenantID int64
	Stage    string
	Err      error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed for tenant %d at %s: %v", e.TenantID, e.Stage, e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// Gateway establishes an authenticated portal session on a page
type Gateway struct {
	loginURL  string
	selectors Selectors
	timeout   time.Duration
	logger    *logrus.Entry
}

// NewGateway creates a gateway posting to loginURL. timeout bounds filling
// and submitting the form, and separately the network idle wait after it.
func NewGateway(loginURL string, selectors Selectors, timeout time.Duration, log *logrus.Logger) *Gateway {
	return &Gateway{
		loginURL:  loginURL,
		selectors: selectors,
		timeout:   timeout,
		logger:    logger.Component(log, "gateway"),
	}
}

// Login submits the supplier login form. The portal reports no explicit
// result, so the session counts as established once the network goes idle.
func (g *Gateway) Login(ctx context.Context, page Page, creds models.PortalLogin) error {
	log := g.logger.WithFields(logrus.Fields{
		"tenant_id": creds.TenantID,
		"login":     logger.MaskLogin(creds.Login),
	})

	formCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	fail := func(stage string, err error) error {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: login form not completed within %s", ErrTimeout, g.timeout)
		}
		log.WithError(err).WithField("stage", stage).Warn("Portal login failed")
		return &AuthenticationError{TenantID: creds.TenantID, Stage: stage, Err: err}
	}

	if err := page.Navigate(formCtx, g.loginURL); err != nil {
		return fail("navigate", err)
	}
	if err := page.Fill(formCtx, Query(g.selectors.LoginUser), creds.Login); err != nil {
		return fail("fill login", err)
	}
	if err := page.Fill(formCtx, Query(g.selectors.LoginPassword), creds.Password); err != nil {
		return fail("fill password", err)
	}

	submit := Query(g.selectors.LoginSubmit)
	if err := page.Click(formCtx, submit, g.timeout); err != nil {
		log.WithError(err).Debug("Direct submit failed, using scripted click")
		if err := page.ClickJS(formCtx, submit); err != nil {
			return fail("submit", err)
		}
	}

	if err := page.WaitNetworkIdle(ctx, g.timeout); err != nil {
		return fail("network idle", err)
	}

	log.Info("Portal session established")
	return nil
}
