package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

func newTestRepository(t *testing.T, handler http.HandlerFunc) *GoogleSheetRepository {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc, err := sheetsapi.NewService(context.Background(), option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication())
	require.NoError(t, err)
	return newRepository(svc, "sheet-id", nil)
}

func TestAppendRows(t *testing.T) {
	type call struct {
		path, input, insert string
		body                sheetsapi.ValueRange
	}
	calls := make(chan call, 1)

	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		c := call{
			path:   r.URL.Path,
			input:  r.URL.Query().Get("valueInputOption"),
			insert: r.URL.Query().Get("insertDataOption"),
		}
		_ = json.NewDecoder(r.Body).Decode(&c.body)
		calls <- c
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	})

	err := repo.AppendRows(context.Background(), "Ledger!A:H", [][]interface{}{{"0", "Maize"}, {"1", "Beans"}})
	require.NoError(t, err)

	got := <-calls
	assert.True(t, strings.HasSuffix(got.path, "/spreadsheets/sheet-id/values/Ledger!A:H:append"), got.path)
	assert.Equal(t, "USER_ENTERED", got.input)
	assert.Equal(t, "INSERT_ROWS", got.insert)
	require.Len(t, got.body.Values, 2)
	assert.Equal(t, "Beans", got.body.Values[1][1])
}

func TestAppendRowsNoop(t *testing.T) {
	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	})
	require.NoError(t, repo.AppendRows(context.Background(), "Ledger!A:H", nil))
	assert.Error(t, repo.AppendRows(context.Background(), "", [][]interface{}{{"x"}}))
}

func TestReadRange(t *testing.T) {
	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"range":"Ledger!A1:B2","values":[["Position","Date"],["0","2026-05-01"]]}`))
	})

	rows, err := repo.ReadRange(context.Background(), "Ledger!A:B")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "0", rows[1][0])
}

func TestReadRangeError(t *testing.T) {
	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"denied"}}`))
	})

	_, err := repo.ReadRange(context.Background(), "Ledger!A:B")
	assert.ErrorContains(t, err, "read range Ledger!A:B")
}
