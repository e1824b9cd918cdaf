package function

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type addArgs struct {
	A int `json:"a"`
	B int `json:"b"`
}

type addReply struct {
	Sum int `json:"sum"`
}

func TestCallWithTypedArguments(t *testing.T) {
	ft := New(func(_ context.Context, in addArgs) (addReply, error) {
		return addReply{Sum: in.A + in.B}, nil
	}, WithName("add"), WithDescription("Adds two integers."))

	out, err := ft.Call(context.Background(), []byte(`{"a": 2, "b": 3}`))
	require.NoError(t, err)
	assert.Equal(t, addReply{Sum: 5}, out)
}

func TestCallEmptyArgumentsUseZeroValue(t *testing.T) {
	ft := New(func(_ context.Context, in addArgs) (addReply, error) {
		return addReply{Sum: in.A + in.B}, nil
	}, WithName("add"))

	out, err := ft.Call(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, addReply{Sum: 0}, out)
}

func TestCallMalformedArgumentsIsError(t *testing.T) {
	ft := New(func(_ context.Context, in addArgs) (addReply, error) {
		return addReply{}, nil
	}, WithName("add"))

	_, err := ft.Call(context.Background(), []byte(`{"a": "two"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "add")
}

func TestCallPropagatesFunctionError(t *testing.T) {
	ft := New(func(_ context.Context, _ addArgs) (addReply, error) {
		return addReply{}, fmt.Errorf("backend unavailable")
	}, WithName("add"))

	_, err := ft.Call(context.Background(), []byte(`{}`))
	require.EqualError(t, err, "backend unavailable")
}

func TestDeclarationSchemas(t *testing.T) {
	ft := New(func(_ context.Context, in addArgs) (addReply, error) {
		return addReply{Sum: in.A + in.B}, nil
	}, WithName("add"), WithDescription("Adds two integers."))

	decl := ft.Declaration()
	require.NotNil(t, decl)
	assert.Equal(t, "add", decl.Name)
	assert.Equal(t, "Adds two integers.", decl.Description)

	require.NotNil(t, decl.InputSchema)
	assert.Equal(t, "object", decl.InputSchema.Type)
	assert.Contains(t, decl.InputSchema.Properties, "a")
	assert.Contains(t, decl.InputSchema.Properties, "b")

	require.NotNil(t, decl.OutputSchema)
	assert.Contains(t, decl.OutputSchema.Properties, "sum")
}
