package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/ident"
	"github.com/xraph/ident/observability"
	"github.com/xraph/ident/store/memory"
)

func newEngine(t *testing.T, opts ...ident.Option) *ident.Engine {
	t.Helper()
	eng, err := ident.NewEngine(append([]ident.Option{ident.WithStore(memory.New())}, opts...)...)
	require.NoError(t, err)
	return eng
}

func alice() *ident.Principal {
	return &ident.Principal{
		ID: "u1",
		Partitions: []ident.Partition{
			{ConnectorID: "PRIMARY", ConnectorLocalID: "alice", StoreKind: ident.StoreIdentity},
			{ConnectorID: "CREDSTORE", ConnectorLocalID: "alice-cred", StoreKind: ident.StoreCredential},
		},
	}
}

func TestMetricsCountOutcomes(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	eng := newEngine(t, ident.WithPlugin(observability.NewMetrics(reg)))
	users := eng.Users()

	require.NoError(t, users.Create(ctx, alice(), "EXAMPLE.COM"))
	require.Error(t, users.Create(ctx, alice(), "EXAMPLE.COM"))
	_, err := users.Resolve(ctx, "alice", "PRIMARY")
	require.NoError(t, err)
	_, err = users.Resolve(ctx, "bob", "PRIMARY")
	require.Error(t, err)
	_, err = eng.Groups().Exists(ctx, "")
	require.Error(t, err)

	const name = "ident_operations_total"
	expected := `
# HELP ident_operations_total Identity resolver operations by outcome
# TYPE ident_operations_total counter
ident_operations_total{kind="group",op="exists",outcome="validation"} 1
ident_operations_total{kind="user",op="create",outcome="conflict"} 1
ident_operations_total{kind="user",op="create",outcome="ok"} 1
ident_operations_total{kind="user",op="resolve",outcome="not_found"} 1
ident_operations_total{kind="user",op="resolve",outcome="ok"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), name))
	n, err := testutil.GatherAndCount(reg, "ident_operation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 3, n, "one histogram series per kind and op")
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", observability.Outcome(nil))
	assert.Equal(t, "not_found", observability.Outcome(ident.ErrNotFound))
	assert.Equal(t, "conflict", observability.Outcome(ident.ErrConflict))
	assert.Equal(t, "validation", observability.Outcome(ident.ErrValidation))
	assert.Equal(t, "storage", observability.Outcome(context.DeadlineExceeded))
}

func TestAuditRecordsMutations(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	eng := newEngine(t, ident.WithPlugin(observability.NewAudit(logger)))
	users := eng.Users()

	require.NoError(t, users.Create(ctx, alice(), "EXAMPLE.COM"))
	require.NoError(t, users.UpdatePartitions(ctx, "u1", map[string]string{"CREDSTORE": "alice-cred-2"}))
	require.NoError(t, users.Delete(ctx, "u1"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], `"msg":"principal created"`)
	assert.Contains(t, lines[0], `"domain":"EXAMPLE.COM"`)
	assert.Contains(t, lines[0], `"component":"ident.audit"`)
	assert.Contains(t, lines[1], `"msg":"partitions updated"`)
	assert.NotContains(t, lines[1], "alice-cred-2", "local ids stay out of the audit trail")
	assert.Contains(t, lines[2], `"msg":"principal deleted"`)
	assert.Contains(t, lines[2], `"principal_id":"u1"`)
}
