package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/jangddae83-design/Legato-OCR-Exel-converter/internal/core"
)

// isolateEnv pins the settings the commands read so the host environment
// cannot leak in.
func isolateEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_URL", "")
	t.Setenv("ANALYZER_PROVIDER", "mock")
	t.Setenv("ANALYZER_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("UPLOAD_ROOT", filepath.Join(dir, "uploads"))
	t.Setenv("UPLOAD_TTL", "1h")
	t.Setenv("LOG_LEVEL", "info")
	return dir
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writePNG(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 20, 10))
	img.Set(1, 1, color.Black)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	path := filepath.Join(dir, "table.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

// =============================================================================
// convert
// =============================================================================

func TestConvert_JSON(t *testing.T) {
	dir := isolateEnv(t)
	in := writePNG(t, dir)
	out := filepath.Join(dir, "result.xlsx")

	stdout, err := runCLI(t, "convert", in, "--out", out, "-o", "json")
	require.NoError(t, err)

	var res convertResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.Equal(t, out, res.Output)
	assert.Equal(t, core.KindImage, res.Kind)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, 2, res.RowCount)
	assert.Equal(t, 3, res.CellCount)
	require.NotNil(t, res.Preview)
	assert.Equal(t, "Header Merged", res.Preview.Rows[0][0])

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()
	merges, err := f.GetMergeCells(core.SheetName)
	require.NoError(t, err)
	require.Len(t, merges, 1)
	assert.Equal(t, "A1", merges[0].GetStartAxis())
	assert.Equal(t, "B1", merges[0].GetEndAxis())

	// no temp files are left next to the output
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".legato-")
	}
}

func TestConvert_Table(t *testing.T) {
	dir := isolateEnv(t)
	in := writePNG(t, dir)

	stdout, err := runCLI(t, "convert", in, "--out", filepath.Join(dir, "r.xlsx"), "-o", "table")
	require.NoError(t, err)

	assert.Contains(t, stdout, "3 in 2 rows")
	assert.Contains(t, stdout, "Header Merged")
	assert.Contains(t, stdout, "Row 1 Col 2")
	assert.Contains(t, stdout, "(page 1 of 1)")
}

func TestConvert_RefusesOverwrite(t *testing.T) {
	dir := isolateEnv(t)
	in := writePNG(t, dir)
	out := filepath.Join(dir, "exists.xlsx")
	require.NoError(t, os.WriteFile(out, []byte("keep me"), 0o644))

	_, err := runCLI(t, "convert", in, "--out", out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(data))

	_, err = runCLI(t, "convert", in, "--out", out, "--force", "-o", "json")
	require.NoError(t, err)
	data, err = os.ReadFile(out)
	require.NoError(t, err)
	assert.NotEqual(t, "keep me", string(data))
}

func TestConvert_Errors(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		args     []string
		wantCode string
	}{
		{"page zero", "table.png", []string{"--page", "0"}, "PAGE001"},
		{"page beyond image", "table.png", []string{"--page", "2"}, "PAGE001"},
		{"unsupported extension", "notes.txt", nil, "FILE002"},
		{"unknown provider", "table.png", []string{"--provider", "nope"}, "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := isolateEnv(t)
			in := writePNG(t, dir)
			if tt.file != "table.png" {
				in = filepath.Join(dir, tt.file)
				require.NoError(t, os.WriteFile(in, []byte("hello"), 0o644))
			}

			args := append([]string{"convert", in, "--out", filepath.Join(dir, "o.xlsx")}, tt.args...)
			_, err := runCLI(t, args...)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, core.MapError(err).Code)

			_, statErr := os.Stat(filepath.Join(dir, "o.xlsx"))
			assert.True(t, os.IsNotExist(statErr), "no workbook on failure")
		})
	}
}

func TestConvert_MissingFile(t *testing.T) {
	dir := isolateEnv(t)
	_, err := runCLI(t, "convert", filepath.Join(dir, "missing.png"), "--out", filepath.Join(dir, "o.xlsx"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// =============================================================================
// info, sweep, version
// =============================================================================

func TestInfo(t *testing.T) {
	dir := isolateEnv(t)
	in := writePNG(t, dir)

	stdout, err := runCLI(t, "info", in, "-o", "json")
	require.NoError(t, err)

	var res infoResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.Equal(t, core.KindImage, res.Kind)
	assert.Equal(t, "png", res.Format)
	assert.Equal(t, 1, res.PageCount)
	assert.Equal(t, 20, res.Width)
	assert.Equal(t, 10, res.Height)

	stdout, err = runCLI(t, "info", in, "-o", "table")
	require.NoError(t, err)
	assert.Contains(t, stdout, "image (png)")
	assert.Contains(t, stdout, "20x10 px")
}

func TestSweep(t *testing.T) {
	dir := isolateEnv(t)
	root := filepath.Join(dir, "uploads")
	stale := filepath.Join(root, "11111111-1111-1111-1111-111111111111")
	fresh := filepath.Join(root, "22222222-2222-2222-2222-222222222222")
	require.NoError(t, os.MkdirAll(stale, 0o700))
	require.NoError(t, os.MkdirAll(fresh, 0o700))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	stdout, err := runCLI(t, "sweep", "-o", "json")
	require.NoError(t, err)

	var res sweepResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.Equal(t, root, res.Root)
	assert.Equal(t, 2, res.Report.Scanned)
	assert.Equal(t, 1, res.Report.Removed)
	assert.False(t, res.HistoryEnabled)

	assert.NoDirExists(t, stale)
	assert.DirExists(t, fresh)
}

func TestSweep_HistoryNeedsDatabase(t *testing.T) {
	isolateEnv(t)
	_, err := runCLI(t, "sweep", "--history-days", "30")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestVersion(t *testing.T) {
	isolateEnv(t)

	stdout, err := runCLI(t, "version", "-o", "table")
	require.NoError(t, err)
	assert.Equal(t, "legato version dev (commit: none)\n", stdout)

	stdout, err = runCLI(t, "version", "-o", "json")
	require.NoError(t, err)
	var v map[string]string
	require.NoError(t, json.Unmarshal([]byte(stdout), &v))
	assert.Equal(t, "dev", v["version"])
}

func TestInvalidOutputFormat(t *testing.T) {
	isolateEnv(t)
	_, err := runCLI(t, "version", "-o", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format")
}

func TestPrintError(t *testing.T) {
	tests := []struct {
		name   string
		output string
		err    error
		want   string
	}{
		{"table user facing", "table", &core.ValidationError{Kind: core.ErrTooManyPages, Reason: "PDF exceeds page limit (12/10)"},
			"Error: PDF exceeds page limit (12/10) (Code: DOC002)"},
		{"table internal", "table", assert.AnError, "Error: " + assert.AnError.Error()},
		{"json", "json", core.ErrServerBusy, `"code": "BUSY001"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out, errOut bytes.Buffer
			cmd := newRootCmd()
			cmd.SetOut(&out)
			cmd.SetErr(&errOut)
			require.NoError(t, cmd.PersistentFlags().Set("output", tt.output))

			printError(cmd, tt.err)
			assert.Contains(t, out.String()+errOut.String(), tt.want)
		})
	}
}
