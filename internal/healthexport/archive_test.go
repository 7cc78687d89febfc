package healthexport_test

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/2beens/healthstats/internal/healthexport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeArchive creates a zip file in a temp dir with the given entries.
func writeArchive(t *testing.T, entries map[string]string) string {
	t.Helper()

	archivePath := filepath.Join(t.TempDir(), "export.zip")
	f, err := os.Create(archivePath)
	require.NoError(t, err)

	zw := zip.NewWriter(f)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	return archivePath
}

func TestOpenArchive(t *testing.T) {
	archivePath := writeArchive(t, map[string]string{
		healthexport.ExportDocumentPath:                "<HealthData></HealthData>",
		"apple_health_export/workout-routes/route.gpx": "<gpx/>",
		"apple_health_export/export_cda.xml":           "<ClinicalDocument/>",
		"apple_health_export/electrocardiograms/e.csv": "a,b",
	})

	archive, err := healthexport.OpenArchive(archivePath)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, archive.Close())
	}()

	assert.Equal(t, archivePath, archive.Path())

	r, err := archive.ExportReader()
	require.NoError(t, err)
	content, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "<HealthData></HealthData>", string(content))
}

func TestOpenArchive_NonStandardLocation(t *testing.T) {
	// a single export.xml somewhere else in the archive is accepted
	archivePath := writeArchive(t, map[string]string{
		"some_other_dir/export.xml": "<HealthData></HealthData>",
	})

	archive, err := healthexport.OpenArchive(archivePath)
	require.NoError(t, err)
	require.NoError(t, archive.Close())
}

func TestOpenArchive_AmbiguousCandidates(t *testing.T) {
	archivePath := writeArchive(t, map[string]string{
		"dir_one/export.xml": "<HealthData></HealthData>",
		"dir_two/export.xml": "<HealthData></HealthData>",
	})

	_, err := healthexport.OpenArchive(archivePath)
	require.ErrorIs(t, err, healthexport.ErrArchiveFormat)
}

func TestOpenArchive_ExactPathWinsOverCandidates(t *testing.T) {
	archivePath := writeArchive(t, map[string]string{
		healthexport.ExportDocumentPath: "<HealthData>canonical</HealthData>",
		"backup/export.xml":             "<HealthData>backup</HealthData>",
	})

	archive, err := healthexport.OpenArchive(archivePath)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, archive.Close())
	}()

	r, err := archive.ExportReader()
	require.NoError(t, err)
	content, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Contains(t, string(content), "canonical")
}

func TestOpenArchive_MissingDocument(t *testing.T) {
	archivePath := writeArchive(t, map[string]string{
		"apple_health_export/export_cda.xml": "<ClinicalDocument/>",
	})

	_, err := healthexport.OpenArchive(archivePath)
	require.ErrorIs(t, err, healthexport.ErrArchiveFormat)
}

func TestOpenArchive_NotAZip(t *testing.T) {
	notZipPath := filepath.Join(t.TempDir(), "export.zip")
	require.NoError(t, os.WriteFile(notZipPath, []byte("plain text, not a zip"), 0o600))

	_, err := healthexport.OpenArchive(notZipPath)
	require.ErrorIs(t, err, healthexport.ErrArchiveUnreadable)
}

func TestOpenArchive_NoSuchFile(t *testing.T) {
	_, err := healthexport.OpenArchive(filepath.Join(t.TempDir(), "nope.zip"))
	require.ErrorIs(t, err, healthexport.ErrArchiveUnreadable)
}
