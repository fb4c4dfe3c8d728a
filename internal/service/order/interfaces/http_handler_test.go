// internal/service/order/interfaces/http_handler_test.go
package interfaces

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"atlas/internal/service/order/domain"

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
		{"not found", domain.ErrOrderNotFound, http.StatusNotFound, "ORDER_NOT_FOUND"},
		{"wrapped not found", errors.Wrap(domain.ErrOrderNotFound, "order abc"), http.StatusNotFound, "ORDER_NOT_FOUND"},
		{"invalid order", errors.Wrap(domain.ErrInvalidOrder, "missing userId"), http.StatusBadRequest, "INVALID_ORDER"},
		{"invalid transition", errors.Wrap(domain.ErrInvalidTransition, "cannot ship"), http.StatusConflict, "INVALID_TRANSITION"},
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
