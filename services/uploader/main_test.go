package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowstudies/csas-stations/services/uploader/internal/reconcile"
)

func writeRegistry(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("SASP.txt", "ArrayID,Integer\nYear,Integer\nDOY,Integer\nHour,Integer\nPyUp,Float\nPyDwn,Float\n")
	write("SASP_arrays.csv", "ID,label,intervalminutes\n1,1hour,60\n24,24hour,1440\n")
	write("SASP.dat", "1,2024,61,900,400,100\n1,2024,61,1000,500,150\n1,2024,61,1100,NAN,150\n")
	write("stations.yaml", `
stations:
  - code: SASP
    table: swampangel
    header: { file: SASP.txt }
    arrays: SASP_arrays.csv
    albedo: { upward: pyup, downward: pydwn }
`)
	return filepath.Join(dir, "stations.yaml"), filepath.Join(dir, "SASP.dat")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { registryPath = "" })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestDDLCommand(t *testing.T) {
	registry, _ := writeRegistry(t)
	out, err := execute(t, "--registry", registry, "ddl", "sasp")
	require.NoError(t, err)
	assert.Contains(t, out, "CREATE TABLE swampangel (")
	assert.Contains(t, out, "albedo real")
}

func TestInspectCommand(t *testing.T) {
	registry, dat := writeRegistry(t)
	out, err := execute(t, "--registry", registry, "inspect", "SASP", dat)
	require.NoError(t, err)
	assert.Contains(t, out, "SASP: 3 rows")
	assert.Contains(t, out, "2024-03-01 09:00")
	assert.Contains(t, out, "2024-03-01 11:00")
	assert.Contains(t, out, "24hour")
}

func TestInspectUnknownStation(t *testing.T) {
	registry, _ := writeRegistry(t)
	_, err := execute(t, "--registry", registry, "inspect", "XXXX")
	assert.Error(t, err)
}

func TestFailedStations(t *testing.T) {
	got := failedStations([]reconcile.Result{
		{Station: "SASP", Outcome: reconcile.Uploaded},
		{Station: "PTSP", Outcome: reconcile.Failed},
		{Station: "SBSP", Outcome: reconcile.Failed},
	})
	assert.Equal(t, []string{"PTSP", "SBSP"}, got)
}
