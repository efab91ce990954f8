package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCodes(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, NotFound("post").Status)
	assert.Equal(t, http.StatusUnprocessableEntity, ValidationError("content", "required").Status)
	assert.Equal(t, http.StatusInternalServerError, ErrorCode("SOMETHING_ELSE").StatusCode())
	assert.Equal(t, http.StatusServiceUnavailable, ServiceUnavailable("database").Status)
	assert.Equal(t, "database is temporarily unavailable", ServiceUnavailable("database").Message)
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "NOT_FOUND: post not found", NotFound("post").Error())
	assert.Equal(t, "VALIDATION_ERROR: required (field: content)", ValidationError("content", "required").Error())
}

func TestRespond(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	Respond(c, BadRequest("bad limit").WithDetails("limit must be numeric"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.True(t, c.IsAborted())

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "BAD_REQUEST", body["code"])
	assert.Equal(t, "bad limit", body["message"])
	assert.Equal(t, "limit must be numeric", body["details"])
	_, hasStatus := body["status"]
	assert.False(t, hasStatus)
}
