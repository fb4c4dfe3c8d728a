// internal/service/inventory/interfaces/http_handler_test.go
package interfaces

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"atlas/internal/service/inventory/domain"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestDomainErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unknown product", errors.Wrap(domain.ErrInventoryNotFound, "product p1"), http.StatusNotFound, "PRODUCT_NOT_FOUND"},
		{"unknown reservation", domain.ErrReservationNotFound, http.StatusNotFound, "RESERVATION_NOT_FOUND"},
		{"insufficient stock", &domain.InsufficientStockError{ProductID: "p1", Requested: 5, Available: 2}, http.StatusBadRequest, "INSUFFICIENT_STOCK"},
		{"expired", errors.Wrap(domain.ErrReservationExpired, "order o1"), http.StatusBadRequest, "RESERVATION_EXPIRED"},
		{"invalid quantity", domain.ErrInvalidQuantity, http.StatusBadRequest, "INVALID_QUANTITY"},
		{"invalid adjustment", domain.ErrInvalidAdjustment, http.StatusBadRequest, "INVALID_ADJUSTMENT"},
		{"duplicate", domain.ErrDuplicateInventory, http.StatusConflict, "DUPLICATE_INVENTORY"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeDomainError(rec, tc.err)

			require.Equal(t, tc.status, rec.Code)
			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Equal(t, tc.code, body.Error.Code)
		})
	}
}
