package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/farmledger/internal/config"
	"github.com/mamadbah2/farmledger/internal/domain/errs"
	"github.com/mamadbah2/farmledger/pkg/clients/identity"
	client "github.com/mamadbah2/farmledger/pkg/clients/ledger"
)

func newTestService(t *testing.T, handler http.Handler) *Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := client.NewClient(config.LedgerConfig{GatewayURL: srv.URL, Timeout: 5 * time.Second})
	return NewService(c, Options{PollInterval: 5 * time.Millisecond, ConfirmTimeout: time.Second, Location: time.UTC}, nil)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestReadsNormalizeGatewayPayloads(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /farmers/0xabc", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"name":"Green Acres","contactInfo":"0788000000","location":"Kigali","isRegistered":true}`)
	})
	mux.HandleFunc("GET /farmers/0xabc/produce/count", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"count":"2"}`)
	})
	mux.HandleFunc("GET /farmers/0xabc/produce/1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"name":"Maize","category":"grains","price":123456789012345678901234567890,"quantity":4,"isAvailable":true}`)
	})
	mux.HandleFunc("GET /sales", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"sales":[
			{"produceId":1,"quantity":2,"buyerName":"Aline","buyerPhone":"0788","price":"10","timestamp":1772404200},
			{"produceId":0,"quantity":-3,"buyerName":"broken"},
			{"produceId":0,"quantity":1,"buyerName":"Eric","price":5,"timestamp":1772404200}
		]}`)
	})
	svc := newTestService(t, mux)
	ctx := context.Background()

	profile, err := svc.Profile(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "Green Acres", profile.Name)
	assert.True(t, profile.IsRegistered)

	count, err := svc.InventoryCount(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	item, err := svc.InventoryItem(ctx, "0xabc", 1)
	require.NoError(t, err)
	assert.Equal(t, "123456789012345678901234567890", item.Price.String())
	assert.Equal(t, int64(4), item.Quantity)

	sales, err := svc.AllSales(ctx)
	require.NoError(t, err)
	require.Len(t, sales, 2)
	assert.Equal(t, 0, sales[0].Position)
	assert.Equal(t, 2, sales[1].Position)
	assert.Equal(t, "2026-03-01 22:30:00", sales[0].Date)
}

func TestReadErrorClassification(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /farmers/0xabc/produce/9", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"error":{"message":"index out of range"}}`)
	})
	mux.HandleFunc("GET /sales", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, `{}`)
	})
	mux.HandleFunc("GET /farmers/0xabc/produce/count", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `not json`)
	})
	svc := newTestService(t, mux)
	ctx := context.Background()

	_, err := svc.InventoryItem(ctx, "0xabc", 9)
	assert.ErrorIs(t, err, errs.ErrLedgerRejected)
	assert.Contains(t, err.Error(), "index out of range")

	_, err = svc.AllSales(ctx)
	assert.ErrorIs(t, err, errs.ErrLedgerUnavailable)

	_, err = svc.InventoryCount(ctx, "0xabc")
	assert.ErrorIs(t, err, errs.ErrLedgerUnavailable)
}

func TestSubmitWithoutSigner(t *testing.T) {
	var calls atomic.Int32
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusOK, `{"hash":"0x1"}`)
	}))

	_, err := svc.UpdateInventoryQuantity(context.Background(), 0, 3)
	assert.ErrorIs(t, err, errs.ErrIdentityUnavailable)
	assert.Zero(t, calls.Load())
}

func TestSubmitAndAwaitConfirmation(t *testing.T) {
	var polls atomic.Int32
	type capture struct {
		req  client.SubmitRequest
		auth string
	}
	captured := make(chan capture, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /transactions", func(w http.ResponseWriter, r *http.Request) {
		c := capture{auth: r.Header.Get("Authorization")}
		_ = json.NewDecoder(r.Body).Decode(&c.req)
		captured <- c
		writeJSON(w, http.StatusAccepted, `{"hash":"0xfeed","status":"pending"}`)
	})
	mux.HandleFunc("GET /transactions/0xfeed", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < 3 {
			writeJSON(w, http.StatusOK, `{"status":"pending"}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"status":"confirmed"}`)
	})
	svc := newTestService(t, mux)
	svc.SetSigner(identity.Signer{Address: "0xabc", SessionToken: "tok"})

	pending, err := svc.UpdateInventoryQuantity(context.Background(), 1, 3)
	require.NoError(t, err)
	assert.Equal(t, "0xfeed", pending.Hash())
	c := <-captured
	assert.Equal(t, "Bearer tok", c.auth)
	assert.Equal(t, "0xabc", c.req.From)
	assert.Equal(t, string(OpUpdateInventoryQuantity), c.req.Method)
	assert.Len(t, c.req.Args, 2)

	require.NoError(t, pending.AwaitConfirmation(context.Background()))
	assert.Equal(t, int32(3), polls.Load())
}

func TestAwaitConfirmationFailures(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /transactions", func(w http.ResponseWriter, r *http.Request) {
		var req client.SubmitRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Method == string(OpRecordSale) {
			writeJSON(w, http.StatusOK, `{"hash":"0xstuck"}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"hash":"0xbad"}`)
	})
	mux.HandleFunc("GET /transactions/0xbad", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"status":"failed","reason":"insufficient stock"}`)
	})
	mux.HandleFunc("GET /transactions/0xstuck", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"status":"pending"}`)
	})
	svc := newTestService(t, mux)
	svc.opts.ConfirmTimeout = 50 * time.Millisecond
	svc.SetSigner(identity.Signer{Address: "0xabc"})
	ctx := context.Background()

	pending, err := svc.UpdateProfile(ctx, "Green Acres", "Kigali", "0788000000")
	require.NoError(t, err)
	err = pending.AwaitConfirmation(ctx)
	assert.ErrorIs(t, err, errs.ErrLedgerRejected)
	assert.Contains(t, err.Error(), "insufficient stock")

	pending, err = svc.Submit(ctx, OpRecordSale, 0, 1)
	require.NoError(t, err)
	assert.ErrorIs(t, pending.AwaitConfirmation(ctx), errs.ErrLedgerUnavailable)
}

func TestSubmitRejectedByGateway(t *testing.T) {
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, `{"error":{"message":"farmer not registered"}}`)
	}))
	svc.SetSigner(identity.Signer{Address: "0xabc"})

	_, err := svc.RegisterProfile(context.Background(), "a", "b", "c")
	assert.ErrorIs(t, err, errs.ErrLedgerRejected)
}
