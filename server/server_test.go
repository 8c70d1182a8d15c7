package server

import (
	"errors"
	"go/types"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHumanPayloadEncodesEachKind(t *testing.T) {
	cases := []struct {
		hp   HumanPayload
		want string
	}{
		{HumanPayload{T: types.Float64, Float: 400.5}, `{"f64":400.5}`},
		{HumanPayload{T: types.Int, Int: 3}, `{"int":3}`},
		{HumanPayload{T: types.String, String: "nm"}, `{"str":"nm"}`},
		{HumanPayload{T: types.Bool, Bool: true}, `{"bool":true}`},
	}
	for _, c := range cases {
		w := httptest.NewRecorder()
		c.hp.EncodeAndRespond(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, c.want, w.Body.String())
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	}
}

func TestUnsupportedPayload(t *testing.T) {
	w := httptest.NewRecorder()
	HumanPayload{T: types.Complex128}.EncodeAndRespond(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, errors.New("boom"), http.StatusConflict)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error":"boom"}`, w.Body.String())
}
