package filetransfer

import (
	"os"
	"path/filepath"
	"testing"
)

// identityHooks returns Hooks where Encrypt/Decrypt are no-ops (identity
// function over a string-cast of the bytes) and SendControlFrame/
// SendBulkFrame feed directly into the supplied receiver engine,
// simulating a loopback transport.
func identityHooks(receiver *Engine, peerID string) Hooks {
	return Hooks{
		Encrypt: func(_ string, plaintext []byte) (string, error) { return string(plaintext), nil },
		Decrypt: func(_ string, wireCiphertext string) ([]byte, error) { return []byte(wireCiphertext), nil },
		SendControlFrame: func(_ string, frame []byte) error {
			return receiver.HandleControlFrame(peerID, frame)
		},
		SendBulkFrame: func(_ string, frame []byte) error {
			return receiver.HandleBulkFrame(peerID, frame)
		},
	}
}

func TestSendFile_RoundTrip(t *testing.T) {
	mediaDir := t.TempDir()
	receiveDir := t.TempDir()

	srcPath := filepath.Join(mediaDir, "report.txt")
	content := []byte("the quick brown fox jumps over the lazy dog, repeated. ")
	for len(content) < 3*DefaultChunkSize {
		content = append(content, content...)
	}
	if err := os.WriteFile(srcPath, content, 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	received := make(chan string, 1)
	receiver := New(Hooks{}, Config{ReceiveDir: receiveDir})
	receiver.hooks.Decrypt = func(_ string, wireCiphertext string) ([]byte, error) { return []byte(wireCiphertext), nil }
	receiver.hooks.OnFileReceived = func(peerID, fileName, savedPath string) { received <- savedPath }

	sender := New(identityHooks(receiver, "peer-a"), Config{MediaDir: mediaDir})

	if err := sender.SendFile("peer-a", srcPath); err != nil {
		t.Fatalf("SendFile() error = %v", err)
	}

	select {
	case savedPath := <-received:
		got, err := os.ReadFile(savedPath)
		if err != nil {
			t.Fatalf("ReadFile(%s) error = %v", savedPath, err)
		}
		if string(got) != string(content) {
			t.Errorf("received content differs from sent content (lens %d vs %d)", len(got), len(content))
		}
	default:
		t.Fatal("OnFileReceived was not called")
	}
}

func TestSendFile_RejectsPathOutsideMediaDir(t *testing.T) {
	mediaDir := t.TempDir()
	outside := t.TempDir()
	outsideFile := filepath.Join(outside, "secret.txt")
	if err := os.WriteFile(outsideFile, []byte("nope"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	sender := New(Hooks{}, Config{MediaDir: mediaDir})
	if err := sender.SendFile("peer-a", outsideFile); err != ErrPathEscape {
		t.Errorf("SendFile() error = %v, want ErrPathEscape", err)
	}
}

func TestHandleFileStart_RejectsOverSizeDeclaration(t *testing.T) {
	e := New(Hooks{}, Config{MaxFileSize: 100})
	frame, _ := decodeFrame(mustFrame(t, frameTypeFileStart, map[string]interface{}{
		"file_id": "f1", "file_name": "a.bin", "total_size": 1000, "total_chunks": 1,
	}))
	if err := e.handleFileStart("peer-a", frame); err != ErrInvalidFileStart {
		t.Errorf("handleFileStart() error = %v, want ErrInvalidFileStart", err)
	}
}

func TestHandleFileChunk_RejectsUnknownTransfer(t *testing.T) {
	e := New(Hooks{Decrypt: func(_ string, c string) ([]byte, error) { return []byte(c), nil }}, Config{})
	frame, _ := decodeFrame(mustFrame(t, frameTypeFileChunk, map[string]interface{}{
		"file_id": "missing", "chunk_index": 0, "data": "xyz",
	}))
	if err := e.handleFileChunk("peer-a", frame); err != ErrTransferNotFound {
		t.Errorf("handleFileChunk() error = %v, want ErrTransferNotFound", err)
	}
}

func TestSanitizeFileName(t *testing.T) {
	cases := map[string]bool{
		"report.txt":      true, // expect passthrough (no generated prefix)
		"../../etc/passwd": false,
		"..":              false,
		"":                false,
	}
	for input, passthrough := range cases {
		got := sanitizeFileName(input)
		if passthrough && got != input {
			t.Errorf("sanitizeFileName(%q) = %q, want unchanged", input, got)
		}
		if !passthrough && got == input {
			t.Errorf("sanitizeFileName(%q) = %q, want a generated replacement", input, got)
		}
	}
}

func mustFrame(t *testing.T, typ frameType, fields map[string]interface{}) []byte {
	t.Helper()
	raw, err := encodeFrame(typ, fields)
	if err != nil {
		t.Fatalf("encodeFrame() error = %v", err)
	}
	return raw
}
