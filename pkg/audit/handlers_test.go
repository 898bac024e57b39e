package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listResponse struct {
	Events []*Event `json:"events"`
	Count  int      `json:"count"`
	Limit  int      `json:"limit"`
}

func TestHandlers_ListEvents(t *testing.T) {
	store := NewMemoryStore()
	seed(t, store)
	h := NewHandlers(store)

	list := func(t *testing.T, tenantID, query string) *httptest.ResponseRecorder {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/audit"+query, nil)
		if tenantID != "" {
			req = withTenant(req, tenantID)
		}
		rr := httptest.NewRecorder()
		h.ListEvents(rr, req)
		return rr
	}

	t.Run("scoped to the resolved tenant", func(t *testing.T) {
		rr := list(t, "t2", "")
		require.Equal(t, http.StatusOK, rr.Code)

		var resp listResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Count)
		assert.Equal(t, DefaultSearchLimit, resp.Limit)
		assert.Equal(t, []string{"e4"}, ids(resp.Events))
	})

	t.Run("filters", func(t *testing.T) {
		rr := list(t, "t1", "?type=http.request&status=denied&since=2026-05-04T12:00:00Z&limit=10")
		require.Equal(t, http.StatusOK, rr.Code)

		var resp listResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, []string{"e2"}, ids(resp.Events))
	})

	t.Run("limit is capped", func(t *testing.T) {
		rr := list(t, "t1", "?limit=5000")
		require.Equal(t, http.StatusOK, rr.Code)

		var resp listResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, MaxSearchLimit, resp.Limit)
		assert.Equal(t, 3, resp.Count)
	})

	t.Run("empty list", func(t *testing.T) {
		rr := list(t, "t9", "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"events":[]`)
	})

	t.Run("bad parameters", func(t *testing.T) {
		for _, q := range []string{"?limit=0", "?limit=x", "?since=yesterday", "?since=2026-05-04T12:00:00Z&until=2026-05-03T12:00:00Z"} {
			assert.Equal(t, http.StatusBadRequest, list(t, "t1", q).Code, q)
		}
	})

	t.Run("no tenant", func(t *testing.T) {
		rr := list(t, "", "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "tenant_required")
	})
}

func TestExport(t *testing.T) {
	store := NewMemoryStore()
	seed(t, store)
	events, err := store.Search(context.Background(), SearchFilter{TenantID: "t1"})
	require.NoError(t, err)

	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Export(&buf, events, ExportFormatCSV))

		records, err := csv.NewReader(&buf).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 4)
		assert.Equal(t, csvHeader, records[0])
		assert.Equal(t, "e3", records[1][0])
		assert.Equal(t, "2026-05-04T12:02:00Z", records[1][1])
		assert.Equal(t, "200", records[1][10])
		assert.Equal(t, "", records[3][10])
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Export(&buf, events, ExportFormatJSON))

		var decoded []*Event
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, []string{"e3", "e2", "e1"}, ids(decoded))
	})

	t.Run("ndjson", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Export(&buf, events, ExportFormatNDJSON))
		assert.Len(t, strings.Split(strings.TrimSpace(buf.String()), "\n"), 3)
	})

	t.Run("empty json is an array", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Export(&buf, nil, ExportFormatJSON))
		assert.Equal(t, "[]\n", buf.String())
	})

	t.Run("format parsing", func(t *testing.T) {
		f, err := ParseExportFormat("CSV")
		require.NoError(t, err)
		assert.Equal(t, ExportFormatCSV, f)
		_, err = ParseExportFormat("xml")
		assert.Error(t, err)
		assert.Error(t, Export(&bytes.Buffer{}, events, "xml"))
	})
}
