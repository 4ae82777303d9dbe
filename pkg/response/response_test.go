package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	Success(rec, http.StatusCreated, "created", map[string]string{"id": "abc"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "abc", body["data"].(map[string]interface{})["id"])
	assert.NotContains(t, body, "error")
}

func TestFailOmitsEmptyDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	Fail(rec, http.StatusConflict, "Slot unavailable", "slot_unavailable", "")

	assert.Equal(t, http.StatusConflict, rec.Code)
	errBody := decode(t, rec)["error"].(map[string]interface{})
	assert.Equal(t, "slot_unavailable", errBody["kind"])
	assert.NotContains(t, errBody, "detail")
}

func TestValidationError(t *testing.T) {
	rec := httptest.NewRecorder()
	ValidationError(rec, map[string]string{"Date": "Date is required"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	errBody := body["error"].(map[string]interface{})
	assert.Equal(t, KindInvalidInput, errBody["kind"])
	assert.Equal(t, "Date is required", errBody["fields"].(map[string]interface{})["Date"])
}
