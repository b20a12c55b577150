// Package archive builds the tar+gzip bundle a bootstrap link serves to a
// joining peer, in pure Go via github.com/mholt/archiver/v3 -- already an
// indirect teacher dependency (pulled in transitively), promoted here to a
// direct import -- replacing the original C++ implementation's shell-outs
// to tar and cp (original_source/plugin-comms-twosix-cpp/source/bootstrap/
// BootstrapServer.cpp).
package archive

import (
	"os"
	"path/filepath"

	"github.com/mholt/archiver/v3"
)

// BuildBootstrapBundle archives every file under dir into a tar.gz and
// returns its bytes. archiver.Archive writes to a path rather than an
// io.Writer and refuses to overwrite an existing file, so a scratch path
// under the OS temp dir (reserved, then freed for archiver to create) stands
// in for the in-memory buffer and is removed before returning.
func BuildBootstrapBundle(dir string) ([]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	sources := make([]string, 0, len(entries))
	for _, e := range entries {
		sources = append(sources, filepath.Join(dir, e.Name()))
	}

	tmp, err := os.CreateTemp("", "racecomms-bootstrap-*.tar.gz")
	if err != nil {
		return nil, err
	}
	tmpPath := tmp.Name()
	tmp.Close()
	os.Remove(tmpPath)
	defer os.Remove(tmpPath)

	if err := archiver.Archive(sources, tmpPath); err != nil {
		return nil, err
	}

	return os.ReadFile(tmpPath)
}
