package message

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type AddArgs struct {
	A int `json:"a"`
	B int `json:"b"`
}

func TestNewRequestWrapsSingleParam(t *testing.T) {
	req := NewRequest(0, "example.Sqrt", 2)

	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":0,"method":"example.Sqrt","params":[2]}`, string(data))
}

func TestNewRequestPackedArgs(t *testing.T) {
	// Several logical arguments travel as one packed value
	req := NewRequest(7, "Arith.Add", &AddArgs{A: 1, B: 2})

	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":7,"method":"Arith.Add","params":[{"a":1,"b":2}]}`, string(data))
}

func TestNewRequestNilArg(t *testing.T) {
	data, err := json.Marshal(NewRequest(3, "example.Ping", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":3,"method":"example.Ping","params":[null]}`, string(data))
}

func TestResponseString(t *testing.T) {
	r := &Response{ID: 2, HasID: true}
	assert.False(t, r.HasResult())
	assert.Equal(t, `id=2 result=false error=""`, r.String())

	r = &Response{Result: RawValue("0"), Error: "x", HasError: true}
	assert.True(t, r.HasResult())
	assert.Equal(t, `id=none result=true error="x"`, r.String())
}
