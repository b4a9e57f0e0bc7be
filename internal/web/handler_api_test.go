package web_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/pillpal/internal/domain"
	"github.com/vbonduro/pillpal/internal/imagestore/memory"
	"github.com/vbonduro/pillpal/internal/prompts"
	"github.com/vbonduro/pillpal/internal/session"
	"github.com/vbonduro/pillpal/internal/web"
	"github.com/vbonduro/pillpal/internal/web/templates"
)

func TestAPIIdentify(t *testing.T) {
	tests := []struct {
		name       string
		med        *domain.Medication
		err        error
		wantStatus int
		wantBody   string
	}{
		{name: "identified", med: aspirin(), wantStatus: http.StatusOK, wantBody: "identified"},
		{name: "unknown", med: &domain.Medication{Name: "unknown"}, wantStatus: http.StatusOK, wantBody: "unknown"},
		{name: "failed", err: errors.New("boom"), wantStatus: http.StatusBadGateway, wantBody: "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.identifier.med = tt.med
			env.identifier.err = tt.err

			body, contentType := buildMultipartBody(t, testPNG)
			resp, raw := env.do(t, http.MethodPost, "/api/identify", body, contentType, false)
			require.Equal(t, tt.wantStatus, resp.StatusCode, raw)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

			var got struct {
				Status     string             `json:"status"`
				Medication *domain.Medication `json:"medication"`
				Error      string             `json:"error"`
			}
			require.NoError(t, json.Unmarshal([]byte(raw), &got))
			assert.Equal(t, tt.wantBody, got.Status)
			if tt.name == "identified" {
				require.NotNil(t, got.Medication)
				assert.Equal(t, *aspirin(), *got.Medication)
				assert.Empty(t, got.Error)
			} else {
				assert.Nil(t, got.Medication)
				assert.NotEmpty(t, got.Error)
			}
			// The JSON API never creates sessions.
			assert.Zero(t, env.sessions.Len())
		})
	}
}

func TestAPIIdentifyRejectsBadImage(t *testing.T) {
	env := newTestEnv(t)
	body, contentType := buildMultipartBody(t, []byte("not an image"))
	resp, raw := env.do(t, http.MethodPost, "/api/identify", body, contentType, false)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, raw, "error")
}

func TestAPIChat(t *testing.T) {
	env := newTestEnv(t)

	payload := `{
		"medication": {"name":"Aspirin","description":"d","dosage":"325mg","sideEffects":[],"warnings":[]},
		"history": [
			{"role":"model","content":"I've identified this as Aspirin."},
			{"role":"user","content":"Is it safe?"},
			{"role":"model","content":"Generally."}
		],
		"message": "  With coffee?  "
	}`
	resp, raw := env.do(t, http.MethodPost, "/api/chat", strings.NewReader(payload), "application/json", false)
	require.Equal(t, http.StatusOK, resp.StatusCode, raw)

	var got struct {
		Reply string `json:"reply"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &got))
	assert.Equal(t, "Take it with a full glass of water.", got.Reply)
	history, message := env.replier.Last()
	assert.Equal(t, "With coffee?", message)
	assert.Len(t, history, 3)
}

func TestAPIChatValidation(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "invalid json", payload: `{`},
		{name: "no medication", payload: `{"message":"hi"}`},
		{name: "unknown medication", payload: `{"medication":{"name":"Unknown"},"message":"hi"}`},
		{name: "blank message", payload: `{"medication":{"name":"Aspirin"},"message":"  "}`},
		{name: "bad role", payload: `{"medication":{"name":"Aspirin"},"history":[{"role":"system","content":"x"}],"message":"hi"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			resp, _ := env.do(t, http.MethodPost, "/api/chat", strings.NewReader(tt.payload), "application/json", false)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestAPICORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	req, err := http.NewRequest(http.MethodOptions, env.srv.URL+"/api/chat", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")

	resp, err := env.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Less(t, resp.StatusCode, 300)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
}

func TestServeStopsOnCancel(t *testing.T) {
	srv := web.NewServer(web.Options{
		Sessions:  session.NewRegistry(session.Deps{Prompts: prompts.Default()}, nil, time.Hour),
		Images:    memory.New(),
		Templates: templates.FS,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, "127.0.0.1:0") }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
