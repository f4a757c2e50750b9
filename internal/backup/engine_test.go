package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// in-memory BlobStore for tests
type fakeBlobStore struct {
	mu      sync.Mutex
	objects map[string]fakeObject

	putErr    error
	listErr   error
	deleteErr error
}

type fakeObject struct {
	body     []byte
	modified time.Time
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: make(map[string]fakeObject)}
}

func (f *fakeBlobStore) Put(_ context.Context, key string, body []byte) error {
	if f.putErr != nil {
		return f.putErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = fakeObject{body: body, modified: time.Now()}
	return nil
}

func (f *fakeBlobStore) List(_ context.Context, prefix string) ([]Object, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	objects := make([]Object, 0)
	for key, obj := range f.objects {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			objects = append(objects, Object{Key: key, LastModified: obj.modified})
		}
	}
	return objects, nil
}

func (f *fakeBlobStore) BatchDelete(_ context.Context, keys []string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.objects, key)
	}
	return nil
}

func (f *fakeBlobStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

func testPayload(id string) SnapshotPayload {
	return SnapshotPayload{
		ID:       id,
		Name:     "Untitled",
		Code:     "let x = 1",
		Language: "javascript",
	}
}

func TestBackupDisabledEngine(t *testing.T) {
	var engine *Engine

	result := engine.Backup(context.Background(), "session-1", testPayload("session-1"))
	assert.True(t, result.Skipped)

	engine = NewEngine(nil, 23)
	result = engine.Backup(context.Background(), "session-1", testPayload("session-1"))
	assert.True(t, result.Skipped)
}

func TestBackupUploadsSnapshot(t *testing.T) {
	blobs := newFakeBlobStore()
	engine := NewEngine(blobs, 23)

	result := engine.Backup(context.Background(), "session-1", testPayload("session-1"))
	assert.False(t, result.Skipped)
	assert.Contains(t, result.Uploaded, "sessions/session-1/backup-")
	assert.Equal(t, 0, result.Deleted)
	assert.Equal(t, 1, blobs.count())

	obj, ok := blobs.objects[result.Uploaded]
	require.True(t, ok)

	var payload SnapshotPayload
	require.NoError(t, json.Unmarshal(obj.body, &payload))
	assert.Equal(t, "session-1", payload.ID)
	assert.Equal(t, "let x = 1", payload.Code)
}

func TestBackupRotationKeepsNewest(t *testing.T) {
	blobs := newFakeBlobStore()
	engine := NewEngine(blobs, 3)

	// distinct clock per backup so keys never collide and ordering
	// is deterministic
	base := time.Now()
	tick := 0
	engine.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for i := range 5 {
		result := engine.Backup(context.Background(), "session-1", testPayload("session-1"))
		require.NotEmpty(t, result.Uploaded, "backup %d", i)
	}

	assert.Equal(t, 3, blobs.count())

	// only the three newest keys survive
	objects, err := blobs.List(context.Background(), "sessions/session-1/")
	require.NoError(t, err)
	require.Len(t, objects, 3)

	for _, obj := range objects {
		assert.NotEqual(t, fmt.Sprintf("sessions/session-1/backup-%d.json", base.Add(1*time.Second).UnixMilli()), obj.Key)
		assert.NotEqual(t, fmt.Sprintf("sessions/session-1/backup-%d.json", base.Add(2*time.Second).UnixMilli()), obj.Key)
	}
}

func TestBackupRotationIsPerSession(t *testing.T) {
	blobs := newFakeBlobStore()
	engine := NewEngine(blobs, 2)

	base := time.Now()
	tick := 0
	engine.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for range 3 {
		engine.Backup(context.Background(), "session-a", testPayload("session-a"))
		engine.Backup(context.Background(), "session-b", testPayload("session-b"))
	}

	a, err := blobs.List(context.Background(), "sessions/session-a/")
	require.NoError(t, err)
	b, err := blobs.List(context.Background(), "sessions/session-b/")
	require.NoError(t, err)

	assert.Len(t, a, 2)
	assert.Len(t, b, 2)
}

func TestBackupPutFailureIsSwallowed(t *testing.T) {
	blobs := newFakeBlobStore()
	blobs.putErr = errors.New("s3 unavailable")
	engine := NewEngine(blobs, 23)

	result := engine.Backup(context.Background(), "session-1", testPayload("session-1"))
	assert.False(t, result.Skipped)
	assert.Empty(t, result.Uploaded)
	assert.Equal(t, 0, blobs.count())
}

func TestBackupListFailureKeepsUpload(t *testing.T) {
	blobs := newFakeBlobStore()
	blobs.listErr = errors.New("s3 list failed")
	engine := NewEngine(blobs, 23)

	result := engine.Backup(context.Background(), "session-1", testPayload("session-1"))
	assert.NotEmpty(t, result.Uploaded)
	assert.Equal(t, 0, result.Deleted)
	assert.Equal(t, 1, blobs.count())
}

func TestBackupDeleteFailureKeepsUpload(t *testing.T) {
	blobs := newFakeBlobStore()
	engine := NewEngine(blobs, 1)

	base := time.Now()
	tick := 0
	engine.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	engine.Backup(context.Background(), "session-1", testPayload("session-1"))

	blobs.deleteErr = errors.New("s3 delete failed")
	result := engine.Backup(context.Background(), "session-1", testPayload("session-1"))

	assert.NotEmpty(t, result.Uploaded)
	assert.Equal(t, 0, result.Deleted)
	assert.Equal(t, 2, blobs.count())
}
