package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"encodesync/internal/api"
	"encodesync/internal/assets"
	"encodesync/internal/broadcast"
	"encodesync/internal/events"
	"encodesync/internal/logging"
	"encodesync/internal/testsupport"
)

func serve(f *fixture, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.daemon.api.router.ServeHTTP(w, req)
	return w
}

func TestAPIServerRoutesAndErrors(t *testing.T) {
	f := newFixture(t, testsupport.WithAPIToken("tok"))
	testsupport.NewAsset(t, f.store, "a1")
	auth := map[string]string{"Authorization": "Bearer tok"}

	tests := []struct {
		name   string
		method string
		target string
		body   string
		header map[string]string
		status int
	}{
		{"healthz is public", http.MethodGet, "/healthz", "", nil, http.StatusOK},
		{"status needs token", http.MethodGet, "/api/status", "", nil, http.StatusUnauthorized},
		{"wrong token", http.MethodGet, "/api/status", "", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized},
		{"status", http.MethodGet, "/api/status", "", auth, http.StatusOK},
		{"list", http.MethodGet, "/api/assets?status=draft", "", auth, http.StatusOK},
		{"list bad status", http.MethodGet, "/api/assets?status=queued", "", auth, http.StatusBadRequest},
		{"get", http.MethodGet, "/api/assets/a1", "", auth, http.StatusOK},
		{"get missing", http.MethodGet, "/api/assets/nope", "", auth, http.StatusNotFound},
		{"create duplicate", http.MethodPost, "/api/assets", `{"id":"a1"}`, auth, http.StatusConflict},
		{"create bad container", http.MethodPost, "/api/assets", `{"sourceKey":"a.txt"}`, auth, http.StatusBadRequest},
		{"create bad json", http.MethodPost, "/api/assets", `{`, auth, http.StatusBadRequest},
		{"submit without source", http.MethodPost, "/api/assets/a1/submit", `{}`, auth, http.StatusBadRequest},
		{"cancel draft", http.MethodPost, "/api/assets/a1/cancel", "", auth, http.StatusConflict},
		{"logs bad lines", http.MethodGet, "/api/logs?lines=x", "", auth, http.StatusBadRequest},
		{"logs bad offset", http.MethodGet, "/api/logs?offset=x", "", auth, http.StatusBadRequest},
		{"webhook bypasses bearer auth", http.MethodPost, "/webhooks/mediaconvert", `not json`, nil, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(f, tc.method, tc.target, tc.body, tc.header)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
		})
	}
}

func TestAPIServerListAssets(t *testing.T) {
	f := newFixture(t)
	testsupport.NewAsset(t, f.store, "d1")
	testsupport.NewAsset(t, f.store, "p1", testsupport.Processing("job-1", "uploads/p1.mp4"))

	w := serve(f, http.MethodGet, "/api/assets?status=processing", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp api.AssetListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Assets, 1)
	assert.Equal(t, "p1", resp.Assets[0].ID)
	assert.Equal(t, "job-1", resp.Assets[0].JobID)
}

func TestAPIServerRequestIDs(t *testing.T) {
	f := newFixture(t)

	w := serve(f, http.MethodGet, "/healthz", "", nil)
	generated := w.Header().Get(requestIDHeader)
	assert.Len(t, generated, 36, "expected generated uuid request id")

	inbound := "2f1c1c8e-4b7e-4c7a-9a55-2a4c6f0e9d10"
	w = serve(f, http.MethodGet, "/healthz", "", map[string]string{requestIDHeader: inbound})
	assert.Equal(t, inbound, w.Header().Get(requestIDHeader), "inbound id should be reused")

	w = serve(f, http.MethodGet, "/healthz", "", map[string]string{requestIDHeader: "<script>"})
	assert.NotEqual(t, "<script>", w.Header().Get(requestIDHeader), "malformed request id should be replaced")
}

func TestAPIServerStreamsSnapshots(t *testing.T) {
	f := newFixture(t)
	testsupport.NewAsset(t, f.store, "live", testsupport.Processing("job-live", "uploads/live.mp4"))
	server := httptest.NewServer(f.daemon.api.router)
	t.Cleanup(server.Close)

	errDone := errors.New("done")
	var seen []broadcast.Snapshot
	err := api.NewClient(server.URL, "").Follow(context.Background(), "live", func(s broadcast.Snapshot) error {
		seen = append(seen, s)
		if len(seen) == 1 {
			f.apply(t, events.Event{AssetID: "live", JobID: "job-live", Kind: events.KindProgressing, Source: events.SourceWebhook}.WithProgress(60))
			return nil
		}
		return errDone
	})
	require.ErrorIs(t, err, errDone, "expected stream to stop after two snapshots")
	require.Len(t, seen, 2)
	assert.Equal(t, 0, seen[0].Progress)
	assert.Equal(t, 60, seen[1].Progress)
}

func TestAPIServerStreamDeliversTransitionDuringInitialRead(t *testing.T) {
	f := newFixture(t)
	testsupport.NewAsset(t, f.store, "race", testsupport.Processing("job-race", "uploads/race.mp4"))

	load := f.daemon.api.loadAsset
	f.daemon.api.loadAsset = func(ctx context.Context, id string) (*assets.Asset, error) {
		stale, err := load(ctx, id)
		if err != nil {
			return nil, err
		}
		_, err = f.rec.Apply(ctx, events.Event{AssetID: "race", JobID: "job-race", Kind: events.KindComplete, Source: events.SourcePoll})
		assert.NoError(t, err)
		return stale, nil
	}
	server := httptest.NewServer(f.daemon.api.router)
	t.Cleanup(server.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errDone := errors.New("done")
	var seen []broadcast.Snapshot
	err := api.NewClient(server.URL, "").Follow(ctx, "race", func(s broadcast.Snapshot) error {
		seen = append(seen, s)
		if s.Status.IsTerminal() {
			return errDone
		}
		return nil
	})
	require.ErrorIs(t, err, errDone, "expected the ready snapshot to arrive, seen %+v", seen)
	require.Len(t, seen, 2)
	assert.Equal(t, assets.StatusProcessing, seen[0].Status)
	assert.Equal(t, assets.StatusReady, seen[1].Status)
}

func TestAPIServerTailsDaemonLog(t *testing.T) {
	f := newFixture(t)
	path := logging.DailyLogPath(f.cfg.Paths.LogDir, time.Now())
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\nthree\n"), 0o644))

	w := serve(f, http.MethodGet, "/api/logs?lines=2", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp api.LogTailResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, path, resp.File)
	assert.Equal(t, []string{"two", "three"}, resp.Lines)
	assert.EqualValues(t, 14, resp.Offset)

	resp = api.LogTailResponse{}
	w = serve(f, http.MethodGet, "/api/logs?offset=14", "", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Lines, "expected no new lines")
	assert.EqualValues(t, 14, resp.Offset)
}
