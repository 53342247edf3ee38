package storage

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xpanvictor/voxgate/internal/config"
)

// fakeS3 answers the handful of S3 calls MinioStorage makes, path style.
type fakeS3 struct {
	mu      sync.Mutex
	buckets map[string]map[string][]byte
	types   map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{buckets: map[string]map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodPut && key == "":
		if _, ok := f.buckets[bucket]; ok {
			s3Error(w, http.StatusConflict, "BucketAlreadyOwnedByYou", r.URL.Path)
			return
		}
		f.buckets[bucket] = map[string][]byte{}
		w.WriteHeader(http.StatusOK)

	case r.Method == http.MethodPut:
		objects, ok := f.buckets[bucket]
		if !ok {
			s3Error(w, http.StatusNotFound, "NoSuchBucket", r.URL.Path)
			return
		}
		body, err := readPayload(r)
		if err != nil {
			s3Error(w, http.StatusBadRequest, "IncompleteBody", r.URL.Path)
			return
		}
		objects[key] = body
		f.types[bucket+"/"+key] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"`+strconv.Itoa(len(body))+`"`)
		w.WriteHeader(http.StatusOK)

	case r.Method == http.MethodGet && key != "":
		data, ok := f.buckets[bucket][key]
		if !ok {
			s3Error(w, http.StatusNotFound, "NoSuchKey", r.URL.Path)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Header().Set("Content-Type", f.types[bucket+"/"+key])
		w.Header().Set("ETag", `"`+strconv.Itoa(len(data))+`"`)
		w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
		w.Write(data)

	default:
		s3Error(w, http.StatusNotImplemented, "NotImplemented", r.URL.Path)
	}
}

func (f *fakeS3) hasBucket(bucket string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.buckets[bucket]
	return ok
}

func (f *fakeS3) contentType(bucket, key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.types[bucket+"/"+key]
}

// readPayload undoes aws-chunked encoding when the client streamed the body.
func readPayload(r *http.Request) ([]byte, error) {
	if r.Header.Get("X-Amz-Decoded-Content-Length") == "" &&
		!strings.Contains(r.Header.Get("Content-Encoding"), "aws-chunked") {
		return io.ReadAll(r.Body)
	}
	br := bufio.NewReader(r.Body)
	var out []byte
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, err
		}
		size, _, _ := strings.Cut(strings.TrimSpace(line), ";")
		n, err := strconv.ParseInt(size, 16, 64)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return out, nil
		}
		chunk := make([]byte, n)
		if _, err := io.ReadFull(br, chunk); err != nil {
			return nil, err
		}
		out = append(out, chunk...)
		if _, err := br.ReadString('\n'); err != nil {
			return nil, err
		}
	}
}

func s3Error(w http.ResponseWriter, status int, code, resource string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>`+
		`<Error><Code>%s</Code><Message>%s</Message><Resource>%s</Resource><RequestId>1</RequestId><HostId>1</HostId></Error>`,
		code, code, resource)
}

func newTestMinio(t *testing.T) (*MinioStorage, *fakeS3) {
	t.Helper()
	fake := newFakeS3()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	s, err := NewMinioStorage(&config.MinioConfig{
		Endpoint: strings.TrimPrefix(srv.URL, "http://"),
		Username: "minioadmin",
		Password: "minioadmin",
		Bucket:   "voxgate",
		Region:   "us-east-1",
	})
	if err != nil {
		t.Fatalf("NewMinioStorage: %v", err)
	}
	return s, fake
}

func TestMinioEnsureBucket(t *testing.T) {
	s, fake := newTestMinio(t)
	ctx := context.Background()

	if err := s.EnsureBucket(ctx); err != nil {
		t.Fatalf("EnsureBucket: %v", err)
	}
	if !fake.hasBucket("voxgate") {
		t.Fatal("bucket not created")
	}
	if err := s.EnsureBucket(ctx); err != nil {
		t.Errorf("EnsureBucket on existing bucket: %v", err)
	}
	if s.Backend() != "minio" {
		t.Errorf("Backend = %q", s.Backend())
	}
}

func TestMinioPutGet(t *testing.T) {
	s, fake := newTestMinio(t)
	ctx := context.Background()
	if err := s.EnsureBucket(ctx); err != nil {
		t.Fatalf("EnsureBucket: %v", err)
	}

	payload := bytes.Repeat([]byte("RIFF"), 64)
	key := "calls/rec-447700900000-20240102T030405-ab12cd34.wav"
	err := s.Put(ctx, key, bytes.NewReader(payload), PutOptions{Size: int64(len(payload)), ContentType: "audio/wav"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ct := fake.contentType("voxgate", key); ct != "audio/wav" {
		t.Errorf("stored content type = %q", ct)
	}

	got, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Get returned %d bytes, want %d", len(got), len(payload))
	}
}

func TestMinioGetMissing(t *testing.T) {
	s, _ := newTestMinio(t)
	ctx := context.Background()
	if err := s.EnsureBucket(ctx); err != nil {
		t.Fatalf("EnsureBucket: %v", err)
	}

	_, err := s.Get(ctx, "rec-nobody.wav")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
