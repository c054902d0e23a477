package portal_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexconsult/quote-harvester/internal/logger"
	"github.com/nexconsult/quote-harvester/internal/models"
	"github.com/nexconsult/quote-harvester/internal/portal"
	"github.com/nexconsult/quote-harvester/internal/portal/portaltest"
)

const loginURL = "https://portal.test/sessions/supplier_login"

const loginHTML = `<html><body><form>
<input id="user_login"><input id="user_password" type="password">
<button id="login_button">Login</button>
</form></body></html>`

func newGateway() *portal.Gateway {
	return portal.NewGateway(loginURL, portal.DefaultSelectors(), time.Second, logger.Discard())
}

func TestGateway_Login(t *testing.T) {
	page := portaltest.New("<html></html>")
	page.Routes[loginURL] = loginHTML

	err := newGateway().Login(context.Background(), page, models.PortalLogin{TenantID: 3, Login: "buyer@example.com", Password: "pw"})
	require.NoError(t, err)

	assert.Equal(t, []string{loginURL}, page.Visited)
	assert.Equal(t, "buyer@example.com", page.Filled["#user_login[0]"])
	assert.Equal(t, "pw", page.Filled["#user_password[0]"])
	assert.Equal(t, []string{"#login_button[0]"}, page.Clicks)
}

func TestGateway_LoginFallsBackToScriptedClick(t *testing.T) {
	page := portaltest.New("<html></html>")
	page.Routes[loginURL] = loginHTML
	direct := 0
	page.ClickErr = func(portal.Locator) error {
		direct++
		return errors.New("intercepted")
	}

	err := newGateway().Login(context.Background(), page, models.PortalLogin{TenantID: 3, Login: "a", Password: "b"})
	require.NoError(t, err)
	assert.Equal(t, 1, direct)
	assert.Len(t, page.Clicks, 1)
}

func TestGateway_LoginNeverIdleIsAuthenticationError(t *testing.T) {
	page := portaltest.New("<html></html>")
	page.Routes[loginURL] = loginHTML
	page.IdleErr = portal.ErrTimeout

	err := newGateway().Login(context.Background(), page, models.PortalLogin{TenantID: 9, Login: "a", Password: "b"})
	require.Error(t, err)

	var authErr *portal.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, int64(9), authErr.TenantID)
	assert.Equal(t, "network idle", authErr.Stage)
	assert.ErrorIs(t, err, portal.ErrTimeout)
}

func TestGateway_LoginMissingForm(t *testing.T) {
	page := portaltest.New("<html></html>")
	page.Routes[loginURL] = "<html><body>maintenance</body></html>"

	err := newGateway().Login(context.Background(), page, models.PortalLogin{TenantID: 1, Login: "a", Password: "b"})

	var authErr *portal.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "fill login", authErr.Stage)
}

// stalledPage never finds the login field and only gives up when ctx ends
type stalledPage struct {
	*portaltest.Page
}

func (p stalledPage) Fill(ctx context.Context, loc portal.Locator, value string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestGateway_LoginFormStallIsBounded(t *testing.T) {
	page := stalledPage{portaltest.New("<html></html>")}
	page.Routes[loginURL] = loginHTML
	gw := portal.NewGateway(loginURL, portal.DefaultSelectors(), 200*time.Millisecond, logger.Discard())

	done := make(chan error, 1)
	go func() {
		done <- gw.Login(context.Background(), page, models.PortalLogin{TenantID: 4, Login: "a", Password: "b"})
	}()

	select {
	case err := <-done:
		var authErr *portal.AuthenticationError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, int64(4), authErr.TenantID)
		assert.Equal(t, "fill login", authErr.Stage)
		assert.ErrorIs(t, err, portal.ErrTimeout)
	case <-time.After(3 * time.Second):
		t.Fatal("login did not give up on a stalled form")
	}
}

func TestGateway_LoginCallerCancelIsNotTimeout(t *testing.T) {
	page := stalledPage{portaltest.New("<html></html>")}
	page.Routes[loginURL] = loginHTML
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newGateway().Login(ctx, page, models.PortalLogin{TenantID: 4, Login: "a", Password: "b"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, portal.ErrTimeout)
}

func TestFakePage_ClickHookMutatesDocument(t *testing.T) {
	page := portaltest.New(`<div class="row"><span class="toggle"></span></div>`)
	page.OnClick = func(p *portaltest.Page, loc portal.Locator, sel *goquery.Selection) error {
		p.Doc().Find("div.row").AddClass("-expanded")
		return nil
	}

	require.NoError(t, page.ClickJS(context.Background(), portal.Query("span.toggle")))
	n, err := page.Count(context.Background(), portal.Query("div.row.-expanded"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
