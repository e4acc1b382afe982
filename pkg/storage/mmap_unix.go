//go:build unix || darwin || linux || freebsd || openbsd || netbsd

package storage

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// MmapStorage is a file-backed Storage using a shared memory mapping.
type MmapStorage struct {
	file *os.File
	data []byte
}

// OpenMmapStorage opens or creates path and maps at least initialSize bytes.
func OpenMmapStorage(path string, initialSize int64) (*MmapStorage, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	size := stat.Size()
	if initialSize > size {
		if err := f.Truncate(initialSize); err != nil {
			f.Close()
			return nil, err
		}
		size = initialSize
	}
	if size == 0 {
		f.Close()
		return nil, errNoBytes
	}

	data, err := syscall.Mmap(int(f.Fd()), 0, int(size), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &MmapStorage{file: f, data: data}, nil
}

func (m *MmapStorage) Size() int64 { return int64(len(m.data)) }

func (m *MmapStorage) Slice(offset, length int64) []byte {
	if offset < 0 || length < 0 || offset+length > int64(len(m.data)) {
		return nil
	}
	return m.data[offset : offset+length]
}

func (m *MmapStorage) Sync() error {
	if m.data == nil {
		return ErrClosed
	}
	return unix.Msync(m.data, unix.MS_SYNC)
}

// Grow extends the backing file and remaps it. Dirty pages are synced before
// the unmap so nothing written through the old mapping is lost.
func (m *MmapStorage) Grow(newSize int64) error {
	if newSize <= int64(len(m.data)) {
		return nil
	}
	if err := unix.Msync(m.data, unix.MS_SYNC); err != nil {
		return err
	}
	if err := syscall.Munmap(m.data); err != nil {
		return err
	}
	if err := m.file.Truncate(newSize); err != nil {
		return err
	}
	data, err := syscall.Mmap(int(m.file.Fd()), 0, int(newSize), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		return err
	}
	m.data = data
	return nil
}

func (m *MmapStorage) Close() error {
	var firstErr error
	if m.data != nil {
		if err := syscall.Munmap(m.data); err != nil && firstErr == nil {
			firstErr = err
		}
		m.data = nil
	}
	if m.file != nil {
		if err := m.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.file = nil
	}
	return firstErr
}
