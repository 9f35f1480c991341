package filetransfer

import "os"

// writeFileAtomic writes content to path via write-temp-then-rename, the
// same discipline peerstore uses for its row file, so a crash mid-write
// never leaves a truncated received file.
func writeFileAtomic(path string, content []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, content, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
