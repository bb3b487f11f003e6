package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beacon-intel/aiviz-cli/internal/model"
	"github.com/beacon-intel/aiviz-cli/internal/monitoring"
	"github.com/beacon-intel/aiviz-cli/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

type fakeSubmitter struct {
	runID string
	err   error
	urls  []string
}

func (f *fakeSubmitter) Submit(_ context.Context, rawURL, _ string) (string, error) {
	f.urls = append(f.urls, rawURL)
	return f.runID, f.err
}

func newTestServer(t *testing.T, st store.Store, sub runSubmitter) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(newRouter(serveDeps{
		Store:     st,
		Submitter: sub,
		Collector: monitoring.NewCollector(st),
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestServeHealth(t *testing.T) {
	srv := newTestServer(t, newTestStore(t), &fakeSubmitter{runID: "r1"})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebhookFingerprintAccepted(t *testing.T) {
	sub := &fakeSubmitter{runID: "run-abc"}
	srv := newTestServer(t, newTestStore(t), sub)

	resp, err := http.Post(srv.URL+"/webhook/fingerprint", "application/json",
		strings.NewReader(`{"url": "https://acme.example.com"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "accepted", body["status"])
	assert.Equal(t, "run-abc", body["run_id"])
	assert.Equal(t, "https://acme.example.com", body["url"])
	assert.Equal(t, []string{"https://acme.example.com"}, sub.urls)
}

func TestWebhookFingerprintMissingURL(t *testing.T) {
	srv := newTestServer(t, newTestStore(t), &fakeSubmitter{})

	resp, err := http.Post(srv.URL+"/webhook/fingerprint", "application/json",
		strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebhookFingerprintBadBody(t *testing.T) {
	srv := newTestServer(t, newTestStore(t), &fakeSubmitter{})

	resp, err := http.Post(srv.URL+"/webhook/fingerprint", "application/json",
		strings.NewReader(`not json`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebhookFingerprintSubmitError(t *testing.T) {
	srv := newTestServer(t, newTestStore(t), &fakeSubmitter{err: assert.AnError})

	resp, err := http.Post(srv.URL+"/webhook/fingerprint", "application/json",
		strings.NewReader(`{"url": "https://acme.example.com"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestAPIListRuns(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.CreateRun(ctx, "https://one.example.com", "", "manual")
	require.NoError(t, err)
	_, err = st.CreateRun(ctx, "https://two.example.com", "", "scheduled")
	require.NoError(t, err)

	srv := newTestServer(t, st, &fakeSubmitter{})

	resp, err := http.Get(srv.URL + "/api/runs")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Runs  []model.Run `json:"runs"`
		Count int         `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 2, body.Count)
	assert.Len(t, body.Runs, 2)
}

func TestAPIGetRun(t *testing.T) {
	st := newTestStore(t)
	run, err := st.CreateRun(context.Background(), "https://acme.example.com", "", "manual")
	require.NoError(t, err)

	srv := newTestServer(t, st, &fakeSubmitter{})

	resp, err := http.Get(srv.URL + "/api/runs/" + run.ID)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got model.Run
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "https://acme.example.com", got.URL)
}

func TestAPIGetRunNotFound(t *testing.T) {
	srv := newTestServer(t, newTestStore(t), &fakeSubmitter{})

	resp, err := http.Get(srv.URL + "/api/runs/does-not-exist")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIGetFingerprint(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	biz, err := st.CreateBusiness(ctx, model.Business{Name: "Acme", URL: "https://acme.example.com"})
	require.NoError(t, err)
	_, err = st.CreateFingerprint(ctx, &model.FingerprintAnalysis{
		BusinessID:      biz.ID,
		BusinessName:    biz.Name,
		VisibilityScore: 72,
		TotalQueries:    6,
	})
	require.NoError(t, err)

	srv := newTestServer(t, st, &fakeSubmitter{})

	resp, err := http.Get(srv.URL + "/api/businesses/" + biz.ID + "/fingerprint")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var fp model.FingerprintAnalysis
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fp))
	assert.Equal(t, float64(72), fp.VisibilityScore)
}

func TestAPIGetFingerprintNotFound(t *testing.T) {
	st := newTestStore(t)
	biz, err := st.CreateBusiness(context.Background(), model.Business{Name: "Acme", URL: "https://acme.example.com"})
	require.NoError(t, err)

	srv := newTestServer(t, st, &fakeSubmitter{})

	resp, err := http.Get(srv.URL + "/api/businesses/" + biz.ID + "/fingerprint")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIMetrics(t *testing.T) {
	srv := newTestServer(t, newTestStore(t), &fakeSubmitter{})

	resp, err := http.Get(srv.URL + "/api/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap monitoring.MetricsSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, 0, snap.RunsTotal)
}
