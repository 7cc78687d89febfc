package healthexport

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	gopath "path"
)

// ExportDocumentPath is where Apple Health puts the export document
// inside the archive.
const ExportDocumentPath = "apple_health_export/export.xml"

var (
	// ErrArchiveUnreadable - the archive itself cannot be opened or decompressed.
	ErrArchiveUnreadable = errors.New("export archive unreadable")
	// ErrArchiveFormat - the archive opens, but the export document is missing or ambiguous.
	ErrArchiveFormat = errors.New("export archive format invalid")
	// ErrDocumentMalformed - the export document contains structurally invalid XML.
	// Records emitted before the failure point remain valid.
	ErrDocumentMalformed = errors.New("export document malformed")
)

// Archive is an open health export bundle. It keeps the zip handle open for
// the lifetime of any reader obtained from it, so callers must Close it.
type Archive struct {
	path       string
	zipReader  *zip.ReadCloser
	exportFile *zip.File
}

// OpenArchive opens the archive at path and locates the export document
// without extracting anything to disk.
func OpenArchive(path string) (*Archive, error) {
	zipReader, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %s", ErrArchiveUnreadable, path, err)
	}

	exportFile, err := findExportDocument(zipReader)
	if err != nil {
		if closeErr := zipReader.Close(); closeErr != nil {
			err = fmt.Errorf("%s (also failed to close archive: %s)", err, closeErr)
		}
		return nil, err
	}

	return &Archive{
		path:       path,
		zipReader:  zipReader,
		exportFile: exportFile,
	}, nil
}

func findExportDocument(zipReader *zip.ReadCloser) (*zip.File, error) {
	var candidates []*zip.File
	for _, f := range zipReader.File {
		if f.Name == ExportDocumentPath {
			return f, nil
		}
		if gopath.Base(f.Name) == "export.xml" {
			candidates = append(candidates, f)
		}
	}

	switch len(candidates) {
	case 0:
		return nil, fmt.Errorf("%w: no %s in archive", ErrArchiveFormat, ExportDocumentPath)
	case 1:
		return candidates[0], nil
	default:
		return nil, fmt.Errorf("%w: %d export.xml candidates in archive", ErrArchiveFormat, len(candidates))
	}
}

// ExportReader returns a sequential forward reader over the export document.
// The reader is only valid until the archive is closed.
func (a *Archive) ExportReader() (io.ReadCloser, error) {
	rc, err := a.exportFile.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open inner document: %s", ErrArchiveUnreadable, err)
	}
	return rc, nil
}

// Path returns the filesystem path the archive was opened from.
func (a *Archive) Path() string {
	return a.path
}

func (a *Archive) Close() error {
	return a.zipReader.Close()
}
