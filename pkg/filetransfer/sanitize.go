package filetransfer

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// sanitizeFileName reduces an attacker-controlled file name to a bare
// basename with no path components.
func sanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, "\x00", "")
	name = filepath.Base(name)
	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return "received-" + uuid.NewString()
	}
	return name
}

// resolveUnder verifies that joining dir and name resolves to a path
// still rooted under dir (after symlink resolution), returning that
// resolved path. Implements the inbound file_complete half of the
// path-confinement property (Property 4); outbound send_file uses
// confineOutboundPath.
func resolveUnder(dir, name string) (string, error) {
	base, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return "", err
	}
	candidate := filepath.Join(base, name)

	rel, err := filepath.Rel(base, candidate)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrPathEscape
	}
	return candidate, nil
}
