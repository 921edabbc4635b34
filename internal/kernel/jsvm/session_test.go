package jsvm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/GriffinCanCode/nbapi/internal/kernel"
	"github.com/GriffinCanCode/nbapi/tests/helpers/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startSession(t *testing.T) kernel.Session {
	t.Helper()
	doc := testutil.NewDocument(t, testutil.CodeCell{ID: "a", Source: ""})
	s, err := New(DefaultConfig(), nil).Start(context.Background(), doc)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCumulativeState(t *testing.T) {
	s := startSession(t)
	ctx := context.Background()

	_, err := s.ExecuteCell(ctx, 0, "greeting = 'hello' #@param {type: \"string\"}")
	require.NoError(t, err)

	result, err := s.ExecuteCell(ctx, 1, "greeting + ', world'")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Index)
	assert.Equal(t, "hello, world", result.Text())
}

func TestParamLinesAreComments(t *testing.T) {
	s := startSession(t)

	result, err := s.ExecuteSource(context.Background(),
		"count = 3 #@param {type: \"integer\"}\n  label = \"n\" #@param\nlabel + count")
	require.NoError(t, err)
	assert.Equal(t, -1, result.Index)
	assert.Equal(t, "n3", result.Text())
}

func TestConsoleCapture(t *testing.T) {
	s := startSession(t)

	result, err := s.ExecuteSource(context.Background(),
		"console.log('a', 1); console.log('b'); console.error('oops'); undefined")
	require.NoError(t, err)

	require.Len(t, result.Outputs, 2)
	assert.Equal(t, kernel.Output{Kind: kernel.OutputStream, Name: "stdout", Text: "a 1\nb\n"}, result.Outputs[0])
	assert.Equal(t, kernel.Output{Kind: kernel.OutputStream, Name: "stderr", Text: "oops\n"}, result.Outputs[1])
}

func TestObjectResultsAreJSON(t *testing.T) {
	s := startSession(t)

	result, err := s.ExecuteSource(context.Background(), "({a: 1, b: [true, 'x']})")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 1, "b": [true, "x"]}`, result.Text())
}

func TestDisplay(t *testing.T) {
	s := startSession(t)

	result, err := s.ExecuteSource(context.Background(), "display('<b>hi</b>', 'text/html'); undefined")
	require.NoError(t, err)
	require.Len(t, result.Outputs, 1)
	assert.Equal(t, kernel.OutputDisplay, result.Outputs[0].Kind)
	assert.Equal(t, "<b>hi</b>", result.Outputs[0].Data["text/html"])
}

func TestThrownErrors(t *testing.T) {
	s := startSession(t)

	_, err := s.ExecuteSource(context.Background(), "throw new TypeError('bad input')")
	var execErr *kernel.ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, "TypeError", execErr.Name)
	assert.Equal(t, "bad input", execErr.Value)
	assert.NotEmpty(t, execErr.Traceback)

	_, err = s.ExecuteSource(context.Background(), "let = = 1")
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, "SyntaxError", execErr.Name)

	_, err = s.ExecuteSource(context.Background(), "undefinedName + 1")
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, "ReferenceError", execErr.Name)
}

func TestHostAccessRemoved(t *testing.T) {
	s := startSession(t)

	for _, script := range []string{"require('fs')", "process.exit(1)"} {
		_, err := s.ExecuteSource(context.Background(), script)
		assert.Error(t, err, script)
	}
}

func TestContextInterruptsExecution(t *testing.T) {
	s := startSession(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := s.ExecuteSource(ctx, "while (true) {}")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	// The session stays usable after an interrupt.
	result, err := s.ExecuteSource(context.Background(), "1 + 1")
	require.NoError(t, err)
	assert.Equal(t, "2", result.Text())
}

func TestClosedSession(t *testing.T) {
	s := startSession(t)
	require.NoError(t, s.Close())

	_, err := s.ExecuteSource(context.Background(), "1")
	assert.True(t, errors.Is(err, kernel.ErrSessionClosed))
}
