package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// The fixtures mirror what session.Export actually ships: JSON-lines
// archives under sessions/<uuid>.jsonl, optionally below a deployment
// prefix.
const (
	archiveKey  = "sessions/7c9e6679-7425-40de-944b-e07fc1f90ae7.jsonl"
	archiveBody = `{"kind":"meta","data":{"id":"7c9e6679-7425-40de-944b-e07fc1f90ae7"}}
{"kind":"event","data":{"type":"inhale","amplitude":0.42}}
{"kind":"rate","data":{"smoothed":14.8}}
`
)

// apiError implements smithy.APIError for not-found classification tests.
type apiError struct {
	code string
	msg  string
}

func (e *apiError) Error() string                 { return e.msg }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return e.msg }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

var (
	errNoSuchKey = &apiError{code: "NoSuchKey", msg: "no such key"}
	errNotFound  = &apiError{code: "NotFound", msg: "not found"}
)

// archiveBucket is an in-memory S3Client standing in for the archive
// bucket. Per-operation errors can be injected to exercise failure paths.
type archiveBucket struct {
	mu      sync.Mutex
	objects map[string][]byte

	getErr    error
	putErr    error
	deleteErr error
	headErr   error
}

func newArchiveBucket() *archiveBucket {
	return &archiveBucket{objects: make(map[string][]byte)}
}

func (b *archiveBucket) put(key string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
}

func (b *archiveBucket) has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[key]
	return ok
}

func (b *archiveBucket) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if b.getErr != nil {
		return nil, b.getErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[*in.Key]
	if !ok {
		return nil, errNoSuchKey
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (b *archiveBucket) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if b.putErr != nil {
		return nil, b.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	b.put(*in.Key, data)
	return &s3.PutObjectOutput{}, nil
}

func (b *archiveBucket) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if b.deleteErr != nil {
		return nil, b.deleteErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (b *archiveBucket) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if b.headErr != nil {
		return nil, b.headErr
	}
	if !b.has(*in.Key) {
		return nil, errNotFound
	}
	return &s3.HeadObjectOutput{}, nil
}

func TestS3ArchiveRoundTrip(t *testing.T) {
	bucket := newArchiveBucket()
	store := NewS3(bucket, "breathsense-archive", "")
	ctx := context.Background()

	w, err := store.Write(ctx, archiveKey)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(w, archiveBody); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := store.Read(ctx, archiveKey)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != archiveBody {
		t.Fatalf("archive = %q, want %q", got, archiveBody)
	}
	if lines := strings.Count(string(got), "\n"); lines != 3 {
		t.Fatalf("archive has %d lines, want 3", lines)
	}
}

func TestS3ReadMissingArchive(t *testing.T) {
	store := NewS3(newArchiveBucket(), "breathsense-archive", "")

	_, err := store.Read(context.Background(), "sessions/no-such-session.jsonl")
	if err == nil {
		t.Fatal("expected error for missing archive")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}
}

func TestS3ReadTransportError(t *testing.T) {
	bucket := newArchiveBucket()
	bucket.getErr = errors.New("network timeout")
	store := NewS3(bucket, "breathsense-archive", "")

	_, err := store.Read(context.Background(), archiveKey)
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, os.ErrNotExist) {
		t.Fatal("transport errors must not read as ErrNotExist")
	}
	if err.Error() != "network timeout" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestS3Exists(t *testing.T) {
	bucket := newArchiveBucket()
	store := NewS3(bucket, "breathsense-archive", "")
	ctx := context.Background()

	ok, err := store.Exists(ctx, archiveKey)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected false before the archive is written")
	}

	bucket.put(archiveKey, []byte(archiveBody))

	ok, err = store.Exists(ctx, archiveKey)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected true for a written archive")
	}
}

func TestS3ExistsTransportError(t *testing.T) {
	bucket := newArchiveBucket()
	bucket.headErr = errors.New("network failure")
	store := NewS3(bucket, "breathsense-archive", "")

	_, err := store.Exists(context.Background(), archiveKey)
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "network failure" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestS3DeleteIdempotent(t *testing.T) {
	bucket := newArchiveBucket()
	store := NewS3(bucket, "breathsense-archive", "")
	ctx := context.Background()

	// Deleting an archive that was never exported succeeds (S3 semantics).
	if err := store.Delete(ctx, "sessions/ghost.jsonl"); err != nil {
		t.Fatal(err)
	}

	bucket.put(archiveKey, []byte(archiveBody))
	if err := store.Delete(ctx, archiveKey); err != nil {
		t.Fatal(err)
	}
	if bucket.has(archiveKey) {
		t.Fatal("archive should be gone after delete")
	}
}

func TestS3DeleteError(t *testing.T) {
	bucket := newArchiveBucket()
	bucket.deleteErr = errors.New("access denied")
	store := NewS3(bucket, "breathsense-archive", "")

	if err := store.Delete(context.Background(), archiveKey); err == nil {
		t.Fatal("expected error")
	}
}

func TestS3WriteUploadError(t *testing.T) {
	bucket := newArchiveBucket()
	bucket.putErr = errors.New("upload failed")
	store := NewS3(bucket, "breathsense-archive", "")

	w, err := store.Write(context.Background(), archiveKey)
	if err != nil {
		t.Fatal(err)
	}
	// The pipe may or may not accept data before the upload goroutine
	// fails; only Close is required to surface the error.
	io.WriteString(w, archiveBody)
	err = w.Close()
	if err == nil {
		t.Fatal("expected upload error from Close")
	}
	if err.Error() != "upload failed" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestS3DeploymentPrefix(t *testing.T) {
	bucket := newArchiveBucket()
	store := NewS3(bucket, "breathsense-archive", "bedside")
	ctx := context.Background()

	w, err := store.Write(ctx, archiveKey)
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(w, archiveBody)
	w.Close()

	if !bucket.has("bedside/" + archiveKey) {
		t.Fatalf("expected object under bedside/%s", archiveKey)
	}

	// Reads go through the same prefixed key.
	r, err := store.Read(ctx, archiveKey)
	if err != nil {
		t.Fatal(err)
	}
	r.Close()
}

func TestS3KeyNoPrefix(t *testing.T) {
	store := NewS3(newArchiveBucket(), "breathsense-archive", "")
	if got := store.key(archiveKey); got != archiveKey {
		t.Fatalf("key = %q, want %q", got, archiveKey)
	}
}

func TestS3OverwriteReplacesArchive(t *testing.T) {
	bucket := newArchiveBucket()
	store := NewS3(bucket, "breathsense-archive", "")
	ctx := context.Background()

	w, _ := store.Write(ctx, archiveKey)
	io.WriteString(w, archiveBody)
	w.Close()

	// Re-exporting the same session replaces the archive wholesale.
	w, _ = store.Write(ctx, archiveKey)
	io.WriteString(w, `{"kind":"meta","data":{"id":"re-export"}}`+"\n")
	w.Close()

	r, _ := store.Read(ctx, archiveKey)
	defer r.Close()
	got, _ := io.ReadAll(r)
	if !strings.Contains(string(got), "re-export") || strings.Contains(string(got), "inhale") {
		t.Fatalf("overwrite left stale archive content: %q", got)
	}
}

func TestIsS3NotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"NoSuchKey", errNoSuchKey, true},
		{"NotFound", errNotFound, true},
		{"other api error", &apiError{code: "AccessDenied", msg: "denied"}, false},
		{"plain error", errors.New("timeout"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isS3NotFound(tt.err); got != tt.want {
				t.Fatalf("isS3NotFound(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
