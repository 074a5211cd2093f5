package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPRunner_Validation(t *testing.T) {
	_, err := NewHTTPRunner(HTTPRunnerConfig{URL: "not a url"})
	require.Error(t, err)
	_, err = NewHTTPRunner(HTTPRunnerConfig{URL: "http://crew", ResultPath: "result[["})
	require.Error(t, err)
	r, err := NewHTTPRunner(HTTPRunnerConfig{URL: "http://crew"})
	require.NoError(t, err)
	assert.Equal(t, DefaultResultPath, r.path)
}

func TestHTTPRunner_Run(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		response string
		want     string
		wantErr  bool
	}{
		{name: "default path", response: `{"result":"Evaluation: promising"}`, want: "Evaluation: promising"},
		{name: "nested path", path: "output.final_output", response: `{"output":{"final_output":"ok"}}`, want: "ok"},
		{name: "structured result", path: "output", response: `{"output":{"score":7}}`, want: `{"score":7}`},
		{name: "no match", response: `{"other":"x"}`, wantErr: true},
		{name: "not json", response: `Evaluation`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var req runRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "AI fitness app", req.Inputs["startup_idea"])
				_, _ = w.Write([]byte(tt.response))
			}))
			defer srv.Close()

			r, err := NewHTTPRunner(HTTPRunnerConfig{URL: srv.URL, ResultPath: tt.path})
			require.NoError(t, err)

			got, err := r.Run(context.Background(), "AI fitness app")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHTTPRunner_StaticToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer crew-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"result":"ok"}`))
	}))
	defer srv.Close()

	r, err := NewHTTPRunner(HTTPRunnerConfig{URL: srv.URL, Token: "crew-token"})
	require.NoError(t, err)
	got, err := r.Run(context.Background(), "idea")
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestHTTPRunner_ClientCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"minted","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("POST /run", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer minted", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"result":"ok"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r, err := NewHTTPRunner(HTTPRunnerConfig{
		URL:   srv.URL + "/run",
		Token: "ignored",
		OAuth: &OAuthConfig{TokenURL: srv.URL + "/token", ClientID: "id", ClientSecret: "secret"},
	})
	require.NoError(t, err)
	got, err := r.Run(context.Background(), "idea")
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestHTTPRunner_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "crew exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	r, err := NewHTTPRunner(HTTPRunnerConfig{URL: srv.URL})
	require.NoError(t, err)
	_, err = r.Run(context.Background(), "idea")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "crew exploded")
}

func TestSnippet_KeepsRuneBoundary(t *testing.T) {
	// 511 ASCII bytes followed by a 3-byte rune straddles the limit.
	body := strings.Repeat("a", snippetLimit-1) + "€" + "tail"

	got := snippet([]byte(body))

	require.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", snippetLimit-1)+"...", got)
	assert.Equal(t, "short body", snippet([]byte("  short body \n")))
}

func TestHTTPRunner_ReusesCompiledPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"output":{"text":"Evaluation: promising"}}`))
	}))
	t.Cleanup(srv.Close)

	r, err := NewHTTPRunner(HTTPRunnerConfig{URL: srv.URL, ResultPath: "output.text"})
	require.NoError(t, err)
	require.NotNil(t, r.expr)

	for range 3 {
		got, err := r.Run(context.Background(), "idea")
		require.NoError(t, err)
		assert.Equal(t, "Evaluation: promising", got)
	}
}

func TestStaticRunner(t *testing.T) {
	got, err := StaticRunner{}.Run(context.Background(), "AI fitness app")
	require.NoError(t, err)
	assert.Contains(t, got, `"AI fitness app"`)

	got, err = StaticRunner{Template: "Evaluation: promising"}.Run(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "Evaluation: promising", got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = StaticRunner{Delay: time.Hour}.Run(ctx, "x")
	require.ErrorIs(t, err, context.Canceled)
}
