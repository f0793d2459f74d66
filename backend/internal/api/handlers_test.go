package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"graphclone/backend/internal/clone"
	"graphclone/backend/internal/metrics"
	"graphclone/backend/internal/record"
	"graphclone/backend/internal/store/memory"
	"graphclone/backend/internal/store/storetest"
	"graphclone/backend/internal/update"
)

type server struct {
	t     *testing.T
	store *memory.Store
	p     *storetest.Policyholder
	h     http.Handler
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s := memory.New(storetest.PolicySchema(t), zap.NewNop())
	p := storetest.SeedPolicyholder(context.Background(), t, s)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	log := zap.NewNop()
	h := NewHandler(s,
		clone.NewCloner(s, clone.WithExcludedTypes("User"), clone.WithMetrics(m), clone.WithLogger(log)),
		update.NewApplier(s, update.WithMetrics(m), update.WithLogger(log)),
		log,
	)
	return &server{t: t, store: s, p: p, h: NewEngine(h, reg, log)}
}

func (s *server) do(method, path, body string) *httptest.ResponseRecorder {
	s.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.h.ServeHTTP(w, req)
	return w
}

func decodeRecord(t *testing.T, w *httptest.ResponseRecorder) *record.Record {
	t.Helper()
	var rec record.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	return &rec
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	for _, path := range []string{"/health", "/health/"} {
		w := s.do(http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newServer(t)
	s.do(http.MethodPost, "/api/records/Policyholder/"+s.p.Root.ID+"/clone", "")

	w := s.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "graphclone_clones_total")
}

func TestSchemaEndpoints(t *testing.T) {
	s := newServer(t)

	w := s.do(http.MethodGet, "/api/schema/", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct{ Types []string }
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Contains(t, list.Types, "Policyholder")

	w = s.do(http.MethodGet, "/api/schema/Policyholder", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"residential_address"`)

	w = s.do(http.MethodGet, "/api/schema/Nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetRecord(t *testing.T) {
	s := newServer(t)

	w := s.do(http.MethodGet, "/api/records/Policyholder/"+s.p.Root.ID+"/", "")
	require.Equal(t, http.StatusOK, w.Code)
	rec := decodeRecord(t, w)
	assert.Equal(t, s.p.Root.ID, rec.ID)
	assert.Equal(t, "Ada", rec.Values["name"])
	assert.Equal(t, s.p.Identity.ID, rec.Refs["identity"])

	w = s.do(http.MethodGet, "/api/records/Policyholder/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"detail":"Policyholder matching id \"nope\" does not exist"}`, w.Body.String())
}

func TestCreateRecord(t *testing.T) {
	s := newServer(t)

	w := s.do(http.MethodPost, "/api/records/Policyholder",
		`{"name":"Grace","mailing_address":{"city":"Arlington"},"notes":[{"text":"hi"}]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rec := decodeRecord(t, w)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "Grace", rec.Values["name"])
	require.NotEmpty(t, rec.Refs["mailing_address"])

	w = s.do(http.MethodGet, "/api/records/Policyholder/"+rec.ID+"/related/notes", "")
	require.Equal(t, http.StatusOK, w.Code)
	var related struct{ Items []record.Record }
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &related))
	require.Len(t, related.Items, 1)
	assert.Equal(t, "hi", related.Items[0].Values["text"])
}

func TestCreateRecord_UnknownType(t *testing.T) {
	s := newServer(t)
	w := s.do(http.MethodPost, "/api/records/Nope/", `{}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateRecord(t *testing.T) {
	s := newServer(t)
	path := "/api/records/Policyholder/" + s.p.Root.ID

	w := s.do(http.MethodPatch, path, `{"email":"ada@lovelace.org","notes":[{"id":"`+s.p.Notes[1].ID+`","text":"renewed"}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rec := decodeRecord(t, w)
	assert.Equal(t, "ada@lovelace.org", rec.Values["email"])
	assert.Equal(t, "Ada", rec.Values["name"])

	note, err := s.store.Get(context.Background(), "Note", s.p.Notes[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "renewed", note.Values["text"])
}

func TestUpdateRecord_Invalid(t *testing.T) {
	s := newServer(t)
	path := "/api/records/Policyholder/" + s.p.Root.ID + "/"

	w := s.do(http.MethodPatch, path, `"just a string"`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPatch, path, `{"name":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// nested writes before the bad key roll back
	w = s.do(http.MethodPatch, path, `{"mailing_address":{"city":"Bath"},"notes":{"text":"x"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	addr, err := s.store.Get(context.Background(), "Address", s.p.Mailing.ID)
	require.NoError(t, err)
	assert.Equal(t, "London", addr.Values["city"])
}

func TestCloneRecord(t *testing.T) {
	s := newServer(t)

	w := s.do(http.MethodPost, "/api/records/Policyholder/"+s.p.Root.ID+"/clone/", "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rec := decodeRecord(t, w)
	assert.NotEqual(t, s.p.Root.ID, rec.ID)
	assert.NotEqual(t, s.p.Identity.ID, rec.Refs["identity"])

	doc, err := s.store.Get(context.Background(), "Document", rec.Refs["identification_document"])
	require.NoError(t, err)
	assert.Equal(t, s.p.User.ID, doc.Ref("user"))

	w = s.do(http.MethodGet, "/api/records/Policyholder/"+rec.ID+"/related/notes/", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"items":[]}`, w.Body.String())

	w = s.do(http.MethodPost, "/api/records/Policyholder/nope/clone", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListRelated_Errors(t *testing.T) {
	s := newServer(t)
	base := "/api/records/Policyholder/" + s.p.Root.ID + "/related/"

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, base+"tags", "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, base+"nope", "").Code)
}
