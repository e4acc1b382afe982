//go:build windows

package storage

import (
	"os"
	"reflect"
	"unsafe"

	"golang.org/x/sys/windows"
)

// MmapStorage is a file-backed Storage using a shared memory mapping.
type MmapStorage struct {
	file      *os.File
	mapHandle windows.Handle
	data      []byte
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

	mapHandle, err := windows.CreateFileMapping(windows.Handle(f.Fd()), nil, windows.PAGE_READWRITE,
		uint32(size>>32), uint32(size&0xFFFFFFFF), nil)
	if err != nil {
		f.Close()
		return nil, err
	}

	addr, err := windows.MapViewOfFile(mapHandle, windows.FILE_MAP_READ|windows.FILE_MAP_WRITE, 0, 0, uintptr(size))
	if err != nil {
		windows.CloseHandle(mapHandle)
		f.Close()
		return nil, err
	}

	var data []byte
	header := (*reflect.SliceHeader)(unsafe.Pointer(&data))
	header.Data = addr
	header.Len = int(size)
	header.Cap = int(size)

	return &MmapStorage{file: f, mapHandle: mapHandle, data: data}, nil
}

func (m *MmapStorage) Size() int64 { return int64(len(m.data)) }

func (m *MmapStorage) Slice(offset, length int64) []byte {
	if offset < 0 || length < 0 || offset+length > int64(len(m.data)) {
		return nil
	}
	return m.data[offset : offset+length]
}

func (m *MmapStorage) Sync() error {
	if len(m.data) == 0 {
		return nil
	}
	return windows.FlushViewOfFile(uintptr(unsafe.Pointer(&m.data[0])), uintptr(len(m.data)))
}

func (m *MmapStorage) Grow(newSize int64) error {
	if newSize <= int64(len(m.data)) {
		return nil
	}
	if len(m.data) > 0 {
		if err := windows.FlushViewOfFile(uintptr(unsafe.Pointer(&m.data[0])), uintptr(len(m.data))); err != nil {
			return err
		}
		if err := windows.UnmapViewOfFile(uintptr(unsafe.Pointer(&m.data[0]))); err != nil {
			return err
		}
	}
	if err := windows.CloseHandle(m.mapHandle); err != nil {
		return err
	}
	if err := m.file.Truncate(newSize); err != nil {
		return err
	}

	mapHandle, err := windows.CreateFileMapping(windows.Handle(m.file.Fd()), nil, windows.PAGE_READWRITE,
		uint32(newSize>>32), uint32(newSize&0xFFFFFFFF), nil)
	if err != nil {
		return err
	}
	addr, err := windows.MapViewOfFile(mapHandle, windows.FILE_MAP_READ|windows.FILE_MAP_WRITE, 0, 0, uintptr(newSize))
	if err != nil {
		windows.CloseHandle(mapHandle)
		return err
	}

	var data []byte
	header := (*reflect.SliceHeader)(unsafe.Pointer(&data))
	header.Data = addr
	header.Len = int(newSize)
	header.Cap = int(newSize)

	m.mapHandle = mapHandle
	m.data = data
	return nil
}

func (m *MmapStorage) Close() error {
	var firstErr error
	if len(m.data) > 0 {
		if err := windows.UnmapViewOfFile(uintptr(unsafe.Pointer(&m.data[0]))); err != nil && firstErr == nil {
			firstErr = err
		}
		m.data = nil
	}
	if m.mapHandle != 0 {
		if err := windows.CloseHandle(m.mapHandle); err != nil && firstErr == nil {
			firstErr = err
		}
		m.mapHandle = 0
	}
	if m.file != nil {
		if err := m.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.file = nil
	}
	return firstErr
}
