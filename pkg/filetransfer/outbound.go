package filetransfer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// confineOutboundPath verifies filePath's fully resolved location lies
// under mediaDir's fully resolved location.
func confineOutboundPath(mediaDir, filePath string) (string, error) {
	resolvedDir, err := filepath.EvalSymlinks(mediaDir)
	if err != nil {
		return "", err
	}
	resolvedFile, err := filepath.EvalSymlinks(filePath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(resolvedDir, resolvedFile)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrPathEscape
	}
	return resolvedFile, nil
}

// SendFile reads and chunks filePath (which must resolve under
// e.cfg.MediaDir), emitting
// file_start, one file_chunk per CHUNK_SIZE block (individually
// encrypted under the peer's session key), then file_complete with the
// plaintext's sha256.
func (e *Engine) SendFile(peerID, filePath string) error {
	resolved, err := confineOutboundPath(e.cfg.MediaDir, filePath)
	if err != nil {
		return err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return err
	}
	if info.Size() > e.cfg.MaxFileSize {
		return ErrFileTooLarge
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return err
	}

	fileID := uuid.NewString()
	fileName := filepath.Base(resolved)
	totalChunks := int(math.Ceil(float64(len(data)) / float64(e.cfg.ChunkSize)))
	if totalChunks == 0 {
		totalChunks = 1
	}

	startFrame, err := encodeControlFrame(frameTypeFileStart, map[string]interface{}{
		"file_id":      fileID,
		"file_name":    fileName,
		"total_size":   len(data),
		"total_chunks": totalChunks,
	})
	if err != nil {
		return err
	}
	if err := e.hooks.SendControlFrame(peerID, startFrame); err != nil {
		return err
	}

	for i := 0; i < totalChunks; i++ {
		start := i * e.cfg.ChunkSize
		end := start + e.cfg.ChunkSize
		if end > len(data) {
			end = len(data)
		}
		ciphertext, err := e.hooks.Encrypt(peerID, data[start:end])
		if err != nil {
			return fmt.Errorf("filetransfer: encrypting chunk %d: %w", i, err)
		}
		chunkFrame, err := encodeBulkFrame(frameTypeFileChunk, map[string]interface{}{
			"file_id":     fileID,
			"chunk_index": i,
			"data":        ciphertext,
		})
		if err != nil {
			return err
		}
		if err := e.hooks.SendBulkFrame(peerID, chunkFrame); err != nil {
			return err
		}
	}

	sum := sha256.Sum256(data)
	completeFrame, err := encodeControlFrame(frameTypeFileComplete, map[string]interface{}{
		"file_id": fileID,
		"sha256":  hex.EncodeToString(sum[:]),
	})
	if err != nil {
		return err
	}
	return e.hooks.SendControlFrame(peerID, completeFrame)
}
