package fault

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errThingMissing = New(NotFound, "thing not found")

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"plain error", errors.New("boom"), Internal},
		{"sentinel", errThingMissing, NotFound},
		{"wrapped sentinel", fmt.Errorf("loading thing: %w", errThingMissing), NotFound},
		{"outer classification wins", Wrap(StoreUnavailable, "store gone", errThingMissing), StoreUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestWrap_KeepsChain(t *testing.T) {
	err := Wrap(StoreUnavailable, "store gone", errThingMissing)

	assert.True(t, errors.Is(err, errThingMissing))
	assert.Equal(t, "store gone: thing not found", err.Error())
	assert.Equal(t, "store gone", Message(err))
}

func TestMessage_Unclassified(t *testing.T) {
	assert.Equal(t, "internal error", Message(errors.New("sql: database is closed")))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NotFound))
	assert.Equal(t, http.StatusConflict, HTTPStatus(Conflict))
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(Unauthorized))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(StoreUnavailable))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(Validation))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(Internal))
}
