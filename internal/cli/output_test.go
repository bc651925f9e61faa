package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kds/internal/recovery"
	"github.com/roach88/kds/internal/snapshot"
	"github.com/roach88/kds/internal/summary"
	"github.com/roach88/kds/internal/wal"
)

func sampleRecoverReport() RecoverReport {
	return RecoverReport{
		DataDir:      "/var/lib/kds",
		Snapshot:     "/var/lib/kds/snapB.json",
		FellBack:     true,
		Rejected:     []string{"snapA.json: snapshot integrity check failed: checksum mismatch"},
		Files:        []string{"wal-1758790000-1.log", "wal.log"},
		Applied:      12,
		Skipped:      1,
		Malformed:    1,
		LastTS:       testEpoch,
		SessionID:    "2025-09-25-AM",
		ActiveOrders: 3,
		Reproducible: true,
		Diagnostics: []recovery.Diagnostic{
			{File: "wal.log", Line: 3, Action: wal.ActionOrderCooked, Reason: "order 0009 not active"},
		},
	}
}

func sampleSummary() SummaryOutput {
	sum := summary.Summary{ConfirmedOrders: 4, CancelledOrders: 1, Revenue: 2600, CancelledAmount: 700, LastUpdated: testEpoch}
	return SummaryOutput{sum.Report("2025-09-25-AM")}
}

func TestSuccess_RecoverReportEnvelope(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	want := sampleRecoverReport()
	require.NoError(t, formatter.Success(want))

	var raw struct {
		Status string         `json:"status"`
		Data   map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))
	assert.Equal(t, "ok", raw.Status)
	for _, key := range []string{"data_dir", "fell_back", "last_ts", "session_id", "active_orders", "reproducible"} {
		assert.Contains(t, raw.Data, key)
	}

	var got RecoverReport
	decodeData(t, buf.String(), &got)
	assert.Equal(t, want, got)
}

func TestRecoverReport_WriteText(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success(sampleRecoverReport()))

	out := buf.String()
	assert.Contains(t, out, "Snapshot:   snapB.json (fell back)\n")
	assert.Contains(t, out, "  rejected: snapA.json: snapshot integrity check failed")
	assert.Contains(t, out, "WAL files:  2\n")
	assert.Contains(t, out, "Records:    12 applied, 1 skipped, 1 malformed\n")
	assert.Contains(t, out, "  wal.log:3 ORDER_COOKED: order 0009 not active\n")
	assert.Contains(t, out, "Recovery is reproducible.")
}

func TestRecoverReport_WriteTextBootstrappedAndDiverged(t *testing.T) {
	r := RecoverReport{DataDir: "d", Bootstrapped: true, SessionID: "2025-09-25-PM"}
	buf := &bytes.Buffer{}
	require.NoError(t, r.WriteText(buf))

	assert.Contains(t, buf.String(), "Snapshot:   none (default catalog)\n")
	assert.Contains(t, buf.String(), "Session:    2025-09-25-PM (0 active orders)\n")
	assert.Contains(t, buf.String(), "Recovery is NOT reproducible.")
}

func TestSuccess_SummaryEnvelope(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}
	require.NoError(t, formatter.Success(sampleSummary()))

	var got summary.Report
	decodeData(t, buf.String(), &got)
	assert.Equal(t, sampleSummary().Report, got)
	assert.Equal(t, 5, got.TotalOrders)
	assert.Equal(t, 3300, got.GrossSales)
	assert.Equal(t, summary.Currency, got.Currency)
}

func TestSummaryOutput_WriteText(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}
	require.NoError(t, formatter.Success(sampleSummary()))

	assert.Equal(t, "Session:    2025-09-25-AM\n"+
		"Orders:     4 confirmed, 1 cancelled, 5 total\n"+
		"Net sales:  2600 JPY\n"+
		"Cancelled:  700 JPY\n"+
		"Gross:      3300 JPY\n", buf.String())
}

func decodeError(t *testing.T, out string) CLIError {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	return *resp.Error
}

func TestFail_JSONEnvelope(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := WrapExitError(ExitCommandError, "failed to open store", errors.New("permission denied"))
	require.NoError(t, formatter.Fail(err))

	assert.Equal(t, CLIError{
		Code:     CodeCommand,
		ExitCode: ExitCommandError,
		Message:  "failed to open store",
		Cause:    "permission denied",
	}, decodeError(t, buf.String()))
}

func TestFail_TextGoesToErrWriter(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: out, ErrWriter: errOut, Verbose: true}

	err := WrapExitError(ExitFailure, "failed to read snapshot", fmt.Errorf("load: %w", snapshot.ErrNoUsableSnapshot))
	require.NoError(t, formatter.Fail(err))

	assert.Empty(t, out.String())
	assert.Equal(t, "Error [E_INTEGRITY]: failed to read snapshot\nCause: load: no usable snapshot\n", errOut.String())
}

func TestFail_SkipsReportedErrors(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := &ExitError{Code: ExitFailure, Message: "recover", Err: errNotReproducible, Reported: true}
	require.NoError(t, formatter.Fail(err))
	assert.Empty(t, buf.String())
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"plain", errors.New("boom"), CodeFailed},
		{"command", NewExitError(ExitCommandError, "bad flag"), CodeCommand},
		{"integrity", WrapExitError(ExitCommandError, "open", snapshot.ErrIntegrity), CodeIntegrity},
		{"not_reproducible", WrapExitError(ExitFailure, "recover", errNotReproducible), CodeNotReproducible},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCode(tt.err))
		})
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "x", errors.New("y"))))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitFailure, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitFailure, "z"))))
}

func TestOutputFormatter_VerboseLogUsesErrWriter(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut, Verbose: true}

	formatter.VerboseLog("replaying %s", "wal.log")
	assert.Empty(t, out.String())
	assert.Equal(t, "replaying wal.log\n", errOut.String())

	formatter.Verbose = false
	formatter.VerboseLog("quiet")
	assert.Equal(t, "replaying wal.log\n", errOut.String())
}

func TestExecute(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	code := Execute(ctx, []string{"summary", "--data-dir", dir, "--format", "json", "--env-file", ""}, out, errOut)
	assert.Equal(t, ExitSuccess, code)
	var rep summary.Report
	decodeData(t, out.String(), &rep)
	assert.Equal(t, summary.Currency, rep.Currency)

	bad := filepath.Join(dir, "kds.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("wal_retain: 0\n"), 0o644))
	out.Reset()
	code = Execute(ctx, []string{"summary", "--config", bad, "--format", "json", "--env-file", ""}, out, errOut)
	assert.Equal(t, ExitCommandError, code)
	cliErr := decodeError(t, out.String())
	assert.Equal(t, CodeCommand, cliErr.Code)
	assert.Equal(t, "failed to load config", cliErr.Message)

	out.Reset()
	errOut.Reset()
	code = Execute(ctx, []string{"summary", "--data-dir", dir, "--format", "xml", "--env-file", ""}, out, errOut)
	assert.Equal(t, ExitCommandError, code)
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "Error [E_COMMAND]: invalid format")
}
