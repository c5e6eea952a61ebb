package adb

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// DefaultFileMode is the mode pushed files are created with (0644).
const DefaultFileMode os.FileMode = 0o644

// FileInfo is the reply to a sync STAT request. A zero Mode means the path
// does not exist. Size holds the low 32 bits of the real size.
type FileInfo struct {
	Mode    uint32
	Size    int64
	ModTime time.Time
}

// Exists reports whether the stat'd path exists.
func (f FileInfo) Exists() bool {
	return f.Mode != 0
}

// HasSize reports whether the file is n bytes long. STAT carries only the
// low 32 bits of the size, so files of 4 GiB or more compare modulo 2^32.
func (f FileInfo) HasSize(n int64) bool {
	return uint32(f.Size) == uint32(n)
}

// Push streams r to remote on the device in chunks of at most MaxSyncChunk
// bytes. progress, if set, is called with the running byte count after each
// chunk. Short writes and disconnects are returned as errors; the device
// only commits the file after DONE is acknowledged.
func (c *Client) Push(ctx context.Context, serial string, r io.Reader, remote string, mode os.FileMode, progress func(sent int64)) (int64, error) {
	cn, err := c.openTransport(ctx, serial)
	if err != nil {
		return 0, err
	}
	defer cn.Close()

	if err := cn.request("sync:"); err != nil {
		return 0, ctxErr(ctx, fmt.Errorf("adb: entering sync mode: %w", err))
	}

	if mode == 0 {
		mode = DefaultFileMode
	}
	// Regular file bit plus permissions, as the sync protocol expects.
	dest := remote + "," + strconv.FormatUint(uint64(0o100000|mode.Perm()), 10)
	cn.touch()
	if err := writeSyncHeader(cn, syncSend, uint32(len(dest))); err != nil {
		return 0, ctxErr(ctx, err)
	}
	if err := writeFull(cn, []byte(dest)); err != nil {
		return 0, ctxErr(ctx, err)
	}

	var sent int64
	buf := make([]byte, MaxSyncChunk)
	for {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		n, rerr := io.ReadFull(r, buf)
		if n > 0 {
			cn.touch()
			if err := writeSyncHeader(cn, syncData, uint32(n)); err != nil {
				return sent, ctxErr(ctx, fmt.Errorf("adb: push interrupted at %d bytes: %w", sent, err))
			}
			if err := writeFull(cn, buf[:n]); err != nil {
				return sent, ctxErr(ctx, fmt.Errorf("adb: push interrupted at %d bytes: %w", sent, err))
			}
			sent += int64(n)
			if progress != nil {
				progress(sent)
			}
		}
		if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
			break
		}
		if rerr != nil {
			return sent, fmt.Errorf("adb: reading local file: %w", rerr)
		}
	}

	cn.touch()
	if err := writeSyncHeader(cn, syncDone, uint32(time.Now().Unix())); err != nil {
		return sent, ctxErr(ctx, err)
	}
	if err := readSyncResult(cn); err != nil {
		return sent, ctxErr(ctx, err)
	}
	_ = writeSyncHeader(cn, syncQuit, 0)
	return sent, nil
}

func readSyncResult(r io.Reader) error {
	id, arg, err := readSyncHeader(r)
	if err != nil {
		return fmt.Errorf("adb: reading push result: %w", err)
	}
	switch id {
	case syncOkay:
		return nil
	case syncFail:
		msg := make([]byte, arg)
		if _, err := io.ReadFull(r, msg); err != nil {
			return fmt.Errorf("adb: reading push failure: %w", err)
		}
		return &ServerError{Message: string(msg)}
	default:
		return fmt.Errorf("adb: unexpected sync reply %q", id)
	}
}

// Stat returns the mode, size and modification time of remote.
func (c *Client) Stat(ctx context.Context, serial, remote string) (FileInfo, error) {
	cn, err := c.openTransport(ctx, serial)
	if err != nil {
		return FileInfo{}, err
	}
	defer cn.Close()

	if err := cn.request("sync:"); err != nil {
		return FileInfo{}, ctxErr(ctx, fmt.Errorf("adb: entering sync mode: %w", err))
	}
	if err := writeSyncHeader(cn, syncStat, uint32(len(remote))); err != nil {
		return FileInfo{}, ctxErr(ctx, err)
	}
	if err := writeFull(cn, []byte(remote)); err != nil {
		return FileInfo{}, ctxErr(ctx, err)
	}

	var reply [16]byte
	if _, err := io.ReadFull(cn, reply[:]); err != nil {
		return FileInfo{}, ctxErr(ctx, fmt.Errorf("adb: reading stat reply: %w", err))
	}
	if string(reply[:4]) != syncStat {
		return FileInfo{}, fmt.Errorf("adb: unexpected stat reply %q", reply[:4])
	}
	info := FileInfo{
		Mode:    binary.LittleEndian.Uint32(reply[4:8]),
		Size:    int64(binary.LittleEndian.Uint32(reply[8:12])),
		ModTime: time.Unix(int64(binary.LittleEndian.Uint32(reply[12:16])), 0),
	}
	_ = writeSyncHeader(cn, syncQuit, 0)
	return info, nil
}
