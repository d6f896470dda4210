package api

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamMessage_ErrorJSON(t *testing.T) {
	msg := StreamMessage{
		Type:  StreamTypeError,
		Error: &StreamError{Code: "INVALID_REQUEST", Message: "Queries must be a list of strings"},
	}
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","error":{"code":"INVALID_REQUEST","message":"Queries must be a list of strings"}}`, string(data))
}

func TestStreamMessage_TypesAreDistinct(t *testing.T) {
	assert.ElementsMatch(t, []string{"record", "done", "error"}, []string{StreamRecord, StreamDone, StreamTypeError})
}
