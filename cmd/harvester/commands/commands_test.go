package commands

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexconsult/quote-harvester/internal/models"
	"github.com/nexconsult/quote-harvester/internal/vault"
)

func TestReadSecret(t *testing.T) {
	tests := []struct {
		name, in, want string
		wantErr        bool
	}{
		{name: "plain", in: "hunter2", want: "hunter2"},
		{name: "trailing newline", in: "hunter2\n", want: "hunter2"},
		{name: "windows line ending", in: "hunter2\r\n", want: "hunter2"},
		{name: "first line only", in: "one\ntwo\n", want: "one"},
		{name: "keeps spaces", in: " pass word \n", want: " pass word "},
		{name: "empty", in: "", wantErr: true},
		{name: "blank line", in: "\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readSecret(strings.NewReader(tt.in))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderSummary(t *testing.T) {
	start := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	s := &models.RunSummary{
		RunID:      "r-1",
		Kind:       models.RunFull,
		StartedAt:  start,
		FinishedAt: start.Add(90 * time.Second),
		Tenants: []models.TenantResult{
			{TenantID: 1, Pass: models.RunDiscover, Pages: 4, LimitReached: true, Discovered: 8, EventsInserted: 3, LinksInserted: 5},
			{TenantID: 2, Pass: models.RunDiscover, Error: "portal login failed"},
			{TenantID: 1, Pass: models.RunItems, EventsProcessed: 2, ItemsExtracted: 7, ItemsInserted: 7, RowsSkipped: 1},
		},
		EventsChecked: 4,
		EventsMarked:  2,
	}

	var buf bytes.Buffer
	renderSummary(&buf, s)
	out := buf.String()

	assert.Contains(t, out, "full run r-1 finished in 1m30s")
	assert.Contains(t, out, "4+")
	assert.Contains(t, out, "portal login failed")
	assert.Contains(t, out, "TOTAL")
	assert.Contains(t, out, "reconcile: 4 pending events checked, 2 marked included")
	assert.NotContains(t, out, "run failed")
}

func TestRenderSummary_Failure(t *testing.T) {
	var buf bytes.Buffer
	renderSummary(&buf, &models.RunSummary{RunID: "r-2", Kind: models.RunDiscover, Error: "insert events: disk I/O error"})

	out := buf.String()
	assert.Contains(t, out, "run failed: insert events: disk I/O error")
	assert.NotContains(t, out, "reconcile:")
}

func TestEncryptCommand(t *testing.T) {
	key, err := vault.GenerateKey()
	require.NoError(t, err)
	t.Setenv("CRYPTO_KEY", key)
	t.Setenv("DB_DRIVER", "sqlite")

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader("hunter2\n"))
	root.SetArgs([]string{"encrypt"})
	require.NoError(t, root.Execute())

	cipher, err := vault.New(key)
	require.NoError(t, err)
	plain, err := cipher.Decrypt(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plain)
}

func TestKeygenCommandNeedsNoConfig(t *testing.T) {
	t.Setenv("CRYPTO_KEY", "")

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"keygen"})
	require.NoError(t, root.Execute())

	_, err := vault.New(strings.TrimSpace(out.String()))
	assert.NoError(t, err)
}

func TestCredentialsAddRequiresFlags(t *testing.T) {
	key, err := vault.GenerateKey()
	require.NoError(t, err)
	t.Setenv("CRYPTO_KEY", key)

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader("pw\n"))
	root.SetArgs([]string{"credentials", "add", "--tenant", "3"})

	err = root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login")
}

func TestConfigErrorSendsStartupAlert(t *testing.T) {
	texts := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		texts <- r.PostForm.Get("text")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	t.Setenv("CRYPTO_KEY", "")
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_CHAT_ID", "-1")
	t.Setenv("TELEGRAM_API_URL", srv.URL)

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"reconcile"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load configuration")

	select {
	case text := <-texts:
		assert.Contains(t, text, "startup failed: load configuration")
	default:
		t.Fatal("no startup alert delivered")
	}
}
