package negotiations

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(f *fixture) http.Handler {
	r := chi.NewRouter()
	NewHandler(nil, f.svc).MountRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandlerDraftFlow(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f)

	rr := do(t, h, http.MethodPost, "/drafts", `{"client_id":"`+f.client.ID.String()+`"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var view struct {
		ID   string `json:"id"`
		Step int    `json:"step"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	assert.Equal(t, int(StepBasics), view.Step)
	base := "/drafts/" + view.ID

	rr = do(t, h, http.MethodPut, base+"/basics", `{"unit_id":"`+f.unit.ID.String()+`","negotiated_value":"1000000"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(t, h, http.MethodPut, base+"/basics", `{"unit_id":"`+f.unit.ID.String()+`","discount":"10000000"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"value_to_finance":"90000000"`)

	rr = do(t, h, http.MethodPut, base+"/sources/cuota-inicial", `{"enabled":true}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr = do(t, h, http.MethodPatch, base+"/sources/cuota-inicial", `{"amount":"90000000"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var balanced struct {
		Balanced bool `json:"balanced"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &balanced))
	assert.True(t, balanced.Balanced)

	rr = do(t, h, http.MethodPost, base+"/goto/3", ``)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, h, http.MethodPost, base+"/submit", ``)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, h, http.MethodPost, base+"/next", ``)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr = do(t, h, http.MethodPost, base+"/next", ``)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, h, http.MethodPost, base+"/submit", ``)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"state":"Activa"`)

	rr = do(t, h, http.MethodGet, base, ``)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlerRejectsUnknownSourceKind(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f)
	d, err := f.svc.OpenDraft(t.Context(), f.client.ID)
	require.NoError(t, err)

	rr := do(t, h, http.MethodPut, "/drafts/"+d.ID.String()+"/sources/leasing", `{"enabled":true}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestHandlerTransitions(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f)
	neg := submitted(t, f)
	base := "/negotiations/" + neg.ID.String()

	rr := do(t, h, http.MethodPost, base+"/reactivate", ``)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, h, http.MethodPost, base+"/suspend", `{"reason":"Documentos pendientes"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"state":"Suspendida"`)

	rr = do(t, h, http.MethodGet, "/negotiations/not-a-uuid", ``)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(t, h, http.MethodGet, "/negotiations/stats", ``)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"suspendidas":1`)
}

func TestHandlerCompleteProcessStep(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f)
	neg := submitted(t, f)
	base := "/negotiations/" + neg.ID.String() + "/process-steps/"

	rr := do(t, h, http.MethodPatch, base+neg.Steps[1].ID.String(), ``)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"state":"Completado"`)

	rr = do(t, h, http.MethodPatch, base+neg.Steps[1].ID.String(), ``)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, h, http.MethodPatch, base+uuid.NewString(), ``)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, h, http.MethodGet, "/negotiations/"+neg.ID.String(), ``)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"process_steps"`)
}
