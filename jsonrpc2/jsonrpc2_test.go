package jsonrpc2_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lspwire/lspwire/jsonrpc2"
)

func TestClassifyRequest(t *testing.T) {
	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	msg, err := jsonrpc2.Classify(body)
	require.NoError(t, err)
	req, ok := msg.(*jsonrpc2.RequestMessage)
	require.True(t, ok)
	assert.Equal(t, "initialize", req.Method)
}

func TestClassifyNotification(t *testing.T) {
	body := []byte(`{"jsonrpc":"2.0","method":"initialized","params":{}}`)
	msg, err := jsonrpc2.Classify(body)
	require.NoError(t, err)
	_, ok := msg.(*jsonrpc2.NotificationMessage)
	assert.True(t, ok)
}

func TestClassifyResponse(t *testing.T) {
	body := []byte(`{"jsonrpc":"2.0","id":1,"result":{"ok":true}}`)
	msg, err := jsonrpc2.Classify(body)
	require.NoError(t, err)
	resp, ok := msg.(*jsonrpc2.ResponseMessage)
	require.True(t, ok)
	assert.Nil(t, resp.Error)
}

func TestClassifyErrorResponse(t *testing.T) {
	body := []byte(`{"jsonrpc":"2.0","id":2,"error":{"code":-32601,"message":"not found"}}`)
	msg, err := jsonrpc2.Classify(body)
	require.NoError(t, err)
	resp, ok := msg.(*jsonrpc2.ResponseMessage)
	require.True(t, ok)
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc2.MethodNotFound, resp.Error.Code)
}

func TestClassifyMalformed(t *testing.T) {
	_, err := jsonrpc2.Classify([]byte(`not json`))
	require.Error(t, err)
	var protoErr *jsonrpc2.ProtocolError
	require.ErrorAs(t, err, &protoErr)
}

func TestClassifyUnrecognizedShapeRecoversID(t *testing.T) {
	body := []byte(`{"jsonrpc":"2.0","id":7}`)
	_, err := jsonrpc2.Classify(body)
	require.Error(t, err)
	var protoErr *jsonrpc2.ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.True(t, protoErr.HasRecoveredID())
	assert.Equal(t, "7", string(protoErr.RecoveredID))
}

func TestNewRequestMarshalsParams(t *testing.T) {
	req, err := jsonrpc2.NewRequest(jsonrpc2.ID(`1`), "textDocument/hover", map[string]string{"a": "b"})
	require.NoError(t, err)
	assert.Equal(t, jsonrpc2.Version, req.JSONRPC)
	assert.JSONEq(t, `{"a":"b"}`, string(req.Params))
}

func TestNewSuccessResponseNilResult(t *testing.T) {
	resp, err := jsonrpc2.NewSuccessResponse(jsonrpc2.ID(`1`), nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(resp.Result))
}

func TestErrorObjectWithData(t *testing.T) {
	eo := jsonrpc2.NewError(jsonrpc2.InvalidParams, "bad params").WithData(map[string]any{"field": "x"})
	assert.JSONEq(t, `{"field":"x"}`, string(eo.Data))
	assert.Contains(t, eo.Error(), "bad params")
}

func TestValidatorSet(t *testing.T) {
	vs := jsonrpc2.NewValidatorSet()
	vs.Register("textDocument/hover", func(method string, params json.RawMessage) error {
		if len(params) == 0 {
			return assertErr("missing params")
		}
		return nil
	})
	assert.Error(t, vs.Validate("textDocument/hover", nil))
	assert.NoError(t, vs.Validate("textDocument/hover", json.RawMessage(`{}`)))
	assert.NoError(t, vs.Validate("unregistered/method", nil))
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func assertErr(s string) error { return simpleErr(s) }
