package bancos

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlagos/cobranzas-service/internal/config"
)

func newTestClient(url string) *Client {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewClient(&config.Config{BankRefURL: url}, log)
}

func TestGetBookedTotal(t *testing.T) {
	const statement = `<?xml version="1.0" encoding="utf-8"?>
		<estadoCuenta>
			<prestamo>101</prestamo>
			<abonos>
				<abono><fecha>2025-01-03</fecha><monto>150.00</monto></abono>
				<abono><fecha>2025-01-17</fecha><monto>100.75</monto></abono>
			</abonos>
		</estadoCuenta>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/prestamos/101/abonos", r.URL.Path)
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(statement))
	}))
	defer srv.Close()

	total, err := newTestClient(srv.URL).GetBookedTotal(context.Background(), 101)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.RequireFromString("250.75")))
}

func TestGetBookedTotalErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "upstream failure", status: http.StatusBadGateway, body: ""},
		{name: "empty statement", status: http.StatusOK, body: `<estadoCuenta><abonos/></estadoCuenta>`},
		{name: "garbled XML", status: http.StatusOK, body: `<estadoCuenta><abonos>`},
		{name: "missing monto", status: http.StatusOK, body: `<estadoCuenta><abonos><abono><fecha>2025-01-03</fecha></abono></abonos></estadoCuenta>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL).GetBookedTotal(context.Background(), 101)
			assert.Error(t, err)
		})
	}
}
