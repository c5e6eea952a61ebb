package adb

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
)

// Host protocol status words.
const (
	statusOkay = "OKAY"
	statusFail = "FAIL"
)

// Sync protocol request and response identifiers.
const (
	syncSend = "SEND"
	syncData = "DATA"
	syncDone = "DONE"
	syncStat = "STAT"
	syncQuit = "QUIT"
	syncOkay = "OKAY"
	syncFail = "FAIL"

	// MaxSyncChunk is the largest DATA payload the adb server accepts.
	MaxSyncChunk = 64 * 1024
)

// writeRequest frames payload with its 4-digit hex length.
func writeRequest(w io.Writer, payload string) error {
	if len(payload) > 0xffff {
		return fmt.Errorf("adb: request too long (%d bytes)", len(payload))
	}
	return writeFull(w, []byte(fmt.Sprintf("%04x%s", len(payload), payload)))
}

// readStatus consumes an OKAY or FAIL reply. FAIL is returned as *ServerError.
func readStatus(r io.Reader) error {
	var status [4]byte
	if _, err := io.ReadFull(r, status[:]); err != nil {
		return fmt.Errorf("adb: reading status: %w", err)
	}
	switch string(status[:]) {
	case statusOkay:
		return nil
	case statusFail:
		msg, err := readHexPrefixed(r)
		if err != nil {
			return fmt.Errorf("adb: reading failure message: %w", err)
		}
		return &ServerError{Message: msg}
	default:
		return fmt.Errorf("adb: unexpected status %q", status[:])
	}
}

// readHexPrefixed reads a payload preceded by a 4-digit hex length.
func readHexPrefixed(r io.Reader) (string, error) {
	var head [4]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return "", err
	}
	n, err := strconv.ParseUint(string(head[:]), 16, 16)
	if err != nil {
		return "", fmt.Errorf("invalid length prefix %q", head[:])
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// writeSyncHeader writes a sync request id followed by a little-endian
// 32-bit argument.
func writeSyncHeader(w io.Writer, id string, arg uint32) error {
	var hdr [8]byte
	copy(hdr[:4], id)
	binary.LittleEndian.PutUint32(hdr[4:], arg)
	return writeFull(w, hdr[:])
}

func readSyncHeader(r io.Reader) (string, uint32, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return "", 0, err
	}
	return string(hdr[:4]), binary.LittleEndian.Uint32(hdr[4:]), nil
}

// writeFull writes b and reports a short write as ErrShortWrite.
func writeFull(w io.Writer, b []byte) error {
	n, err := w.Write(b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return ErrShortWrite
	}
	return nil
}
