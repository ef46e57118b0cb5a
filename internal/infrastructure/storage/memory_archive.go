package storage

import (
	"context"
	"path"
	"sync"
	"time"
)

// MemoryReportArchive keeps archived reports in memory. Used when S3 is
// disabled and in tests.
type MemoryReportArchive struct {
	// BaseURL prefixes generated links
	BaseURL string
	Expiry  time.Duration

	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data        []byte
	contentType string
}

// NewMemoryReportArchive creates an empty archive
func NewMemoryReportArchive(baseURL string) *MemoryReportArchive {
	return &MemoryReportArchive{
		BaseURL: baseURL,
		Expiry:  defaultPresignExpiry,
		objects: make(map[string]memoryObject),
	}
}

// Archive stores data under name and returns a link to it
func (m *MemoryReportArchive) Archive(_ context.Context, name string, data []byte, contentType string) (string, time.Time, error) {
	if name == "" {
		return "", time.Time{}, ErrKeyRequired
	}
	m.mu.Lock()
	m.objects[name] = memoryObject{data: append([]byte(nil), data...), contentType: contentType}
	m.mu.Unlock()
	return m.BaseURL + "/" + path.Clean(name), time.Now().Add(m.Expiry), nil
}

// Get returns a stored object
func (m *MemoryReportArchive) Get(name string) ([]byte, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[name]
	return obj.data, obj.contentType, ok
}
