package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListScenarios(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]ScenarioDTO](t, rec)
	require.Len(t, list, len(scenarioSeeds))
	for _, s := range list {
		assert.Contains(t, scenarioSeeds, s.ID)
	}
}

func TestLoadScenario_Workweek(t *testing.T) {
	ts := newTestServer(t)
	ts.create(t, standup("2024-03-04"))

	rec := ts.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "workweek"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[LoadScenarioResponse](t, rec)

	assert.Equal(t, 18, resp.Added)
	assert.Empty(t, resp.Rejected)
	assert.Equal(t, 18, ts.h.Store.Len(), "previous events are cleared")

	rec = ts.do(t, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "workweek", decode[ScenarioDTO](t, rec).ID)
}

func TestLoadScenario_ConflictsReportsRejections(t *testing.T) {
	ts := newTestServer(t)

	resp, err := ts.h.SeedScenario(context.Background(), "conflicts")
	require.NoError(t, err)

	assert.Equal(t, 5, resp.Added)
	require.Len(t, resp.Rejected, 3)

	byTitle := map[string]string{}
	for _, r := range resp.Rejected {
		byTitle[r.Title] = r.Status
	}
	assert.Equal(t, ImportConflict, byTitle["Customer call"])
	assert.Equal(t, ImportConflict, byTitle["Design review (moved)"])
	assert.Equal(t, ImportInvalid, byTitle["Broken"])
}

func TestLoadScenario_EmptyAndUnknown(t *testing.T) {
	ts := newTestServer(t)
	ts.create(t, standup("2024-03-04"))

	rec := ts.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 1, ts.h.Store.Len(), "unknown scenario leaves the store alone")

	rec = ts.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "empty"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, ts.h.Store.Len())

	// IDs keep counting after a clear
	created := ts.create(t, standup("2024-03-04"))
	assert.Equal(t, int64(2), created.ID)
}
