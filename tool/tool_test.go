package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcrew/core"
	"github.com/hupe1980/agentcrew/internal/util"
	"github.com/hupe1980/agentcrew/logging"
)

func testToolContext(t *testing.T, callID string) *core.ToolContext {
	t.Helper()
	runCtx := core.NewRunContext(context.Background(), "run-1",
		core.AgentInfo{ID: "agent-1", Name: "worker", Type: "test"}, 0, logging.NoOpLogger{})
	return core.NewToolContext(runCtx, callID)
}

// -------------------- Schema & Validation Tests --------------------

type sampleSchema struct {
	A string `json:"a" description:"Field A"`
	B *int   `json:"b" description:"Optional pointer field"`
	C int    `json:"c,omitempty" description:"Omit empty field"`
}

func TestCreateSchema(t *testing.T) {
	schema := util.CreateSchema(sampleSchema{})
	props, ok := schema["properties"].(map[string]any)
	assert.True(t, ok)
	assert.Contains(t, props, "a")
	assert.Contains(t, props, "b")
	assert.Contains(t, props, "c")
	// Required only includes non-pointer, non-omitempty exported fields
	req, _ := schema["required"].([]string)
	if req == nil { // reflection may produce []any
		ifaceReq, _ := schema["required"].([]any)
		for _, v := range ifaceReq {
			req = append(req, v.(string))
		}
	}
	assert.ElementsMatch(t, []string{"a"}, req)
}

type taggedSchema struct {
	Status string   `json:"status" enum:"pending,in_progress,completed"`
	Labels []string `json:"labels,omitempty"`
}

func TestCreateSchemaEnumAndItems(t *testing.T) {
	schema := util.CreateSchema(taggedSchema{})
	props := schema["properties"].(map[string]any)

	status := props["status"].(map[string]any)
	assert.Equal(t, []any{"pending", "in_progress", "completed"}, status["enum"])

	labels := props["labels"].(map[string]any)
	assert.Equal(t, map[string]any{"type": "string"}, labels["items"])
}

func TestValidateParametersEnum(t *testing.T) {
	schema := util.CreateSchema(taggedSchema{})

	err := util.ValidateParameters(map[string]any{"status": "pending"}, schema)
	assert.NoError(t, err)

	err = util.ValidateParameters(map[string]any{"status": "paused"}, schema)
	require.Error(t, err)
	vErr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Equal(t, "status", vErr.Field)
	assert.Contains(t, vErr.Message, "must be one of: pending, in_progress, completed")
}

func TestFunctionToolPathAddressing(t *testing.T) {
	echo := func(tc *core.ToolContext, args map[string]any) (any, error) { return args, nil }

	plain := NewFunctionTool("noop", "does nothing", map[string]any{"type": "object", "properties": map[string]any{}}, echo)
	assert.Equal(t, "", plain.Path(map[string]any{"path": "a.txt"}))

	write := NewFunctionTool("write_file", "Write a file",
		map[string]any{
			"type":       "object",
			"properties": map[string]any{"path": map[string]any{"type": "string"}},
			"required":   []string{"path"},
		},
		echo,
		func(o *FunctionToolOptions) {
			o.PathFn = func(args map[string]any) string { p, _ := args["path"].(string); return p }
		},
	)

	var pa PathAddressed = write
	assert.Equal(t, "a.txt", pa.Path(map[string]any{"path": "a.txt"}))
	assert.Equal(t, "", pa.Path(map[string]any{}))
}

func TestValidateParametersArrayItems(t *testing.T) {
	schema := util.CreateSchema(taggedSchema{})

	err := util.ValidateParameters(map[string]any{
		"status": "pending", "labels": []any{"infra", "urgent"},
	}, schema)
	assert.NoError(t, err)

	err = util.ValidateParameters(map[string]any{
		"status": "pending", "labels": []any{"infra", 7},
	}, schema)
	require.Error(t, err)
	vErr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Equal(t, "labels", vErr.Field)
	assert.Contains(t, vErr.Message, "element 1: expected type string")
}

func TestValidateParameters(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"x": map[string]any{"type": "integer"},
		},
		// Use []any to mirror possible JSON decoded schema shape
		"required": []any{"x"},
	}

	err := util.ValidateParameters(map[string]any{"x": 5}, schema)
	assert.NoError(t, err)

	err = util.ValidateParameters(map[string]any{}, schema)
	assert.Error(t, err)
	if vErr, ok := err.(*ValidationError); ok {
		assert.Equal(t, "x", vErr.Field)
	} else {
		t.Fatalf("expected ValidationError, got %T", err)
	}

	err = util.ValidateParameters(map[string]any{"x": "not-int"}, schema)
	assert.Error(t, err)
	if vErr, ok := err.(*ValidationError); ok {
		assert.Contains(t, vErr.Message, "expected type integer")
	} else {
		t.Fatalf("expected ValidationError, got %T", err)
	}
}

// -------------------- FunctionTool Tests --------------------

func TestFunctionTool_Success(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}

	sumTool := NewFunctionTool("sum", "Add numbers", params, func(_ *core.ToolContext, args map[string]any) (any, error) {
		a := args["a"].(float64)
		b := args["b"].(float64)
		return a + b, nil
	})

	tc := testToolContext(t, "call-1")
	result, err := sumTool.Call(tc, map[string]any{"a": 2.0, "b": 3.0})
	assert.NoError(t, err)
	assert.Equal(t, 5.0, result)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
		},
		"required": []any{"a"},
	}
	tTool := NewFunctionTool("test", "Test", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return 0, nil
	})
	_, err := tTool.Call(testToolContext(t, "call-2"), map[string]any{})
	assert.Error(t, err)
	toolErr, ok := err.(*ToolError)
	assert.True(t, ok)
	assert.Equal(t, "VALIDATION_ERROR", toolErr.Code)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	execTool := NewFunctionTool("fail", "Fails", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, errors.New("boom")
	})
	_, err := execTool.Call(testToolContext(t, "call-3"), map[string]any{})
	assert.Error(t, err)
	toolErr, ok := err.(*ToolError)
	assert.True(t, ok)
	assert.Equal(t, "EXECUTION_ERROR", toolErr.Code)
	assert.Equal(t, "boom", toolErr.Message)
}

func TestFunctionTool_ToolErrorPassthrough(t *testing.T) {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	custom := NewToolError("locked", "resource is locked", "RESOURCE_LOCKED")
	lockedTool := NewFunctionTool("locked", "Always locked", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, custom
	})
	_, err := lockedTool.Call(testToolContext(t, "call-4"), map[string]any{})
	require.Error(t, err)
	assert.Same(t, custom, err)
}

func TestFunctionToolFromStruct(t *testing.T) {
	fromStruct := NewFunctionToolFromStruct("sample", "Derived schema", sampleSchema{},
		func(_ *core.ToolContext, args map[string]any) (any, error) {
			return args["a"], nil
		})

	props, ok := fromStruct.Parameters()["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "a")

	out, err := fromStruct.Call(testToolContext(t, "call-5"), map[string]any{"a": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

// -------------------- Registry Tests --------------------

func TestRegistry(t *testing.T) {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	a := NewFunctionTool("alpha", "", params, func(_ *core.ToolContext, _ map[string]any) (any, error) { return nil, nil })
	b := NewFunctionTool("beta", "", params, func(_ *core.ToolContext, _ map[string]any) (any, error) { return nil, nil })

	r := NewRegistry(b, a)

	got, ok := r.Get("alpha")
	assert.True(t, ok)
	assert.Equal(t, "alpha", got.Name())

	_, ok = r.Get("gamma")
	assert.False(t, ok)

	err := r.Register(NewFunctionTool("alpha", "", params, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `tool "alpha" already registered`)

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, "alpha", all[0].Name())
	assert.Equal(t, "beta", all[1].Name())
}

// -------------------- ToolError Formatting --------------------

func TestToolErrorFormatting(t *testing.T) {
	err := NewToolError("demo", "something failed", "E123")
	assert.Contains(t, err.Error(), "E123")
	assert.Contains(t, err.Error(), "demo")

	uncoded := &ToolError{Tool: "demo", Message: "plain failure"}
	assert.Equal(t, "tool error in demo: plain failure", uncoded.Error())
}
