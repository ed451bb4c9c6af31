package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/garment-booking/internal/api"
	"github.com/iliyamo/garment-booking/internal/model"
	"github.com/iliyamo/garment-booking/internal/session"
)

func testApp(t *testing.T) (*app, *bytes.Buffer) {
	t.Helper()
	p := model.Product{ID: 7, Name: "Pique Polo", Category: "Shirts", UnitPrice: decimal.RequireFromString("12.99"),
		AvailableQuantity: 1000, MinOrderQuantity: 50, StockVersion: 3}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/products", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]model.Product{p})
	})
	mux.HandleFunc("GET /v1/products/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "7" {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(api.ErrorBody{Error: api.CodeNotFound, Message: "not found"})
			return
		}
		_ = json.NewEncoder(w).Encode(p)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	out := &bytes.Buffer{}
	return &app{client: api.NewClient(srv.URL), session: session.NewContext(), out: out}, out
}

func TestQuoteClampsQuantity(t *testing.T) {
	a, out := testApp(t)
	require.NoError(t, a.execute(context.Background(), "quote", "--product", "7", "--qty", "10"))
	assert.Contains(t, out.String(), "50 x 12.99 = 649.50")

	out.Reset()
	require.NoError(t, a.execute(context.Background(), "quote", "--product", "7", "--qty", "120"))
	assert.Contains(t, out.String(), "120 x 12.99 = 1558.80")
}

func TestProductsAndErrors(t *testing.T) {
	a, out := testApp(t)
	require.NoError(t, a.execute(context.Background(), "products"))
	assert.Contains(t, out.String(), "Pique Polo")

	err := a.execute(context.Background(), "quote", "--product", "9")
	require.Error(t, err)
	assert.Equal(t, "not found", describe(err))

	assert.ErrorContains(t, a.execute(context.Background(), "bogus"), "unknown command")
	assert.ErrorContains(t, a.execute(context.Background(), "quote"), "product")
}

func TestOrdersNeedCredentials(t *testing.T) {
	t.Setenv("BOOKCTL_EMAIL", "")
	a, _ := testApp(t)
	assert.ErrorContains(t, a.execute(context.Background(), "orders"), "BOOKCTL_EMAIL")
}
