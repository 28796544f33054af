package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/dvrpc/traffic-counts/internal/adapter/http"
	"github.com/dvrpc/traffic-counts/internal/aadv"
	"github.com/dvrpc/traffic-counts/internal/report"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockSites struct {
	results []aadv.Result
	entries []report.Entry
	err     error
}

func (m *mockSites) Results(_ context.Context, _ int64) ([]aadv.Result, error) {
	return m.results, m.err
}

func (m *mockSites) ImportLog(_ context.Context, _ int64) ([]report.Entry, error) {
	return m.entries, m.err
}

func newTestServer(readyErr error, sites httpadapter.SiteReader) *httpadapter.Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, sites, logger)
}

func get(srv *httpadapter.Server, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := get(newTestServer(nil, &mockSites{}), "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := get(newTestServer(nil, &mockSites{}), "/readyz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := get(newTestServer(fmt.Errorf("no scan yet"), &mockSites{}), "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "no scan yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(newTestServer(nil, &mockSites{}), "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestSiteResults(t *testing.T) {
	sites := &mockSites{results: []aadv.Result{
		{Site: 101, Direction: "", Value: 3880, ComputedOn: time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)},
		{Site: 101, Direction: "east", Value: 1940, ComputedOn: time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)},
	}}
	rec := get(newTestServer(nil, sites), "/sites/101/aadv")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Site    int64 `json:"site"`
		Results []struct {
			Direction  string `json:"direction"`
			Value      int    `json:"value"`
			ComputedOn string `json:"computed_on"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(101), body.Site)
	require.Len(t, body.Results, 2)
	assert.Empty(t, body.Results[0].Direction)
	assert.Equal(t, 3880, body.Results[0].Value)
	assert.Equal(t, "2023-12-01", body.Results[0].ComputedOn)
	assert.Equal(t, "east", body.Results[1].Direction)
}

func TestSiteResultsBadSite(t *testing.T) {
	rec := get(newTestServer(nil, &mockSites{}), "/sites/zero/aadv")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSiteResultsStorageError(t *testing.T) {
	rec := get(newTestServer(nil, &mockSites{err: fmt.Errorf("db locked")}), "/sites/101/aadv")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSiteImportLog(t *testing.T) {
	sites := &mockSites{entries: []report.Entry{
		{Site: 101, LoggedAt: time.Date(2023, 12, 1, 9, 30, 0, 0, time.UTC), Message: "imported 48 records", Severity: report.Info},
	}}
	rec := get(newTestServer(nil, sites), "/sites/101/log")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Entries []struct {
			LoggedAt string `json:"logged_at"`
			Level    string `json:"level"`
			Message  string `json:"message"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Entries, 1)
	assert.Equal(t, "2023-12-01T09:30:00Z", body.Entries[0].LoggedAt)
	assert.Equal(t, "info", body.Entries[0].Level)
	assert.Equal(t, "imported 48 records", body.Entries[0].Message)
}

func TestSiteViewsDisabledWithoutReader(t *testing.T) {
	rec := get(newTestServer(nil, nil), "/sites/101/aadv")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
