package caliper

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	spoterrors "github.com/spot-perf/spot/internal/errors"
	"github.com/spot-perf/spot/internal/profile"
	"github.com/spot-perf/spot/internal/retry"
)

const validDocument = `{
  "attributes": {"time.duration": {"cali.attribute.type": "double"}},
  "globals": {"spot.format.version": "1", "spot.metrics": "time.duration", "launchdate": "1000"},
  "records": [{"path": ["main", "foo"], "time.duration": 3.5}]
}`

var fastRetry = retry.Config{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

func newClient(runner Runner, fs afero.Fs) *Client {
	if fs == nil {
		fs = afero.NewMemMapFs()
	}
	return NewClient(runner, fs, Options{Retry: fastRetry}, zerolog.Nop())
}

func TestClient_ReadWithTool(t *testing.T) {
	var gotArgs []string
	runner := RunnerFunc(func(ctx context.Context, args ...string) ([]byte, error) {
		gotArgs = args
		return []byte(validDocument), nil
	})

	doc, err := newClient(runner, nil).Read(context.Background(), "/runs/a.cali")
	require.NoError(t, err)

	assert.Equal(t, []string{"-q", "format json(object)", "/runs/a.cali"}, gotArgs)
	assert.Equal(t, "/runs/a.cali", doc.Source)
	assert.Equal(t, map[string]map[string]any{"main/foo": {"time.duration": 3.5}}, profile.RegionProfile(doc.Records))
}

func TestClient_ReadRetriesToolFailures(t *testing.T) {
	calls := 0
	runner := RunnerFunc(func(ctx context.Context, args ...string) ([]byte, error) {
		calls++
		switch calls {
		case 1:
			return nil, &spoterrors.ToolInvocationError{Command: args, ExitCode: 1, Stderr: "busy"}
		case 2:
			return []byte("not json"), nil
		default:
			return []byte(validDocument), nil
		}
	})

	doc, err := newClient(runner, nil).Read(context.Background(), "a.cali")
	require.NoError(t, err)
	assert.NotNil(t, doc)
	assert.Equal(t, 3, calls)
}

func TestClient_ReadToolFailureExhausted(t *testing.T) {
	calls := 0
	runner := RunnerFunc(func(ctx context.Context, args ...string) ([]byte, error) {
		calls++
		return nil, fmt.Errorf("exit status 2")
	})

	_, err := newClient(runner, nil).Read(context.Background(), "a.cali")
	require.Error(t, err)
	assert.True(t, errors.Is(err, spoterrors.ErrToolInvocation))
	assert.Equal(t, 3, calls)
}

func TestClient_ReadFormatErrorNotRetried(t *testing.T) {
	calls := 0
	runner := RunnerFunc(func(ctx context.Context, args ...string) ([]byte, error) {
		calls++
		return []byte(`{"records": []}`), nil
	})

	_, err := newClient(runner, nil).Read(context.Background(), "a.cali")
	require.Error(t, err)
	assert.True(t, errors.Is(err, spoterrors.ErrFormat))
	assert.Equal(t, 1, calls)
}

func TestClient_ReadNative(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/runs/b.json", []byte(validDocument), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/runs/bad.json", []byte(`{"globals": {}}`), 0o644))

	runner := RunnerFunc(func(ctx context.Context, args ...string) ([]byte, error) {
		t.Fatal("native documents must not invoke the tool")
		return nil, nil
	})
	client := newClient(runner, fs)

	doc, err := client.Read(context.Background(), "/runs/b.json")
	require.NoError(t, err)
	assert.Equal(t, "1", doc.Globals["spot.format.version"])

	_, err = client.Read(context.Background(), "/runs/bad.json")
	assert.True(t, errors.Is(err, spoterrors.ErrFormat))

	_, err = client.Read(context.Background(), "/runs/missing.json")
	assert.Error(t, err)
}

func TestClient_Queries(t *testing.T) {
	runner := RunnerFunc(func(ctx context.Context, args ...string) ([]byte, error) {
		switch args[1] {
		case "--list-globals":
			return []byte(`[{"cluster": "quartz", "launchdate": "1000"}]`), nil
		case "SELECT function,sum#time.inclusive.duration WHERE function FORMAT JSON":
			return []byte(`[{"function": "main", "sum#time.inclusive.duration": 4.0}]`), nil
		case SelectAllQuery:
			return []byte(`[{"function": "main", "count": 3}]`), nil
		}
		return nil, fmt.Errorf("unexpected args %v", args)
	})
	client := newClient(runner, nil)
	ctx := context.Background()

	globals, err := client.ListGlobals(ctx, "a.cali")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"cluster": "quartz", "launchdate": "1000"}, globals)

	rows, err := client.FuncDurations(ctx, "sum#time.inclusive.duration", "a.cali")
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"function": "main", "sum#time.inclusive.duration": 4.0}}, rows)

	rows, err = client.SelectAll(ctx, "a.cali")
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"function": "main", "count": 3.0}}, rows)
}

func TestClient_ListGlobalsEmpty(t *testing.T) {
	runner := RunnerFunc(func(ctx context.Context, args ...string) ([]byte, error) {
		return []byte(`[]`), nil
	})

	globals, err := newClient(runner, nil).ListGlobals(context.Background(), "a.cali")
	require.NoError(t, err)
	assert.Empty(t, globals)
}

func TestIsProfile(t *testing.T) {
	assert.True(t, IsProfile("run.cali"))
	assert.True(t, IsProfile("/data/RUN.JSON"))
	assert.False(t, IsProfile("spot_cache.db"))
	assert.True(t, IsNative("run.json"))
	assert.False(t, IsNative("run.cali"))
}
