package service

import (
	"Murmur/internal/pkg/codec"
	"Murmur/internal/repository"
	"bytes"
	"context"
	"errors"
	"image/color"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjectStore struct {
	mu         sync.Mutex
	objects    map[string][]byte
	types      map[string]string
	deleted    []string
	uploadErr  error
	presignErr error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeObjectStore) Upload(_ context.Context, name string, r io.Reader, _ int64, contentType string) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[name] = b
	f.types[name] = contentType
	return name, nil
}

func (f *fakeObjectStore) Delete(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, name)
	f.deleted = append(f.deleted, name)
	return nil
}

func (f *fakeObjectStore) PresignedGet(_ context.Context, name string, expiry time.Duration) (string, error) {
	if f.presignErr != nil {
		return "", f.presignErr
	}
	return "https://cdn.test/" + name + "?expires=" + expiry.String(), nil
}

type mediaFixture struct {
	clock *fakeClock
	store *fakeObjectStore
	repo  *fakeMediaRepo
	svc   MediaService
}

func newMediaFixture(t *testing.T) *mediaFixture {
	t.Helper()
	f := &mediaFixture{clock: newFakeClock(), store: newFakeObjectStore(), repo: &fakeMediaRepo{}}
	c, err := codec.New("test-secret", codec.WithClock(f.clock.Now))
	require.NoError(t, err)
	f.svc = NewMediaService(f.store, f.repo, c, time.Hour, 10*time.Minute, WithMediaClock(f.clock.Now))
	return f
}

func pngFile(t *testing.T, w, h int) *MediaFile {
	t.Helper()
	var buf bytes.Buffer
	img := imaging.New(w, h, color.NRGBA{R: 200, A: 255})
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return &MediaFile{Filename: "Photo.PNG", Size: int64(buf.Len()), Reader: bytes.NewReader(buf.Bytes())}
}

func TestMediaUpload_ImageWithThumbnail(t *testing.T) {
	f := newMediaFixture(t)
	ctx := context.Background()

	res, err := f.svc.Upload(ctx, alice, pngFile(t, 640, 480))
	require.NoError(t, err)

	assert.Equal(t, "image", res.Type)
	assert.Equal(t, "image/png", res.MimeType)
	assert.Equal(t, 640, res.Width)
	assert.Equal(t, 480, res.Height)
	assert.True(t, strings.HasPrefix(res.URL, "chat/1/2024/05/01/"))
	assert.True(t, strings.HasSuffix(res.URL, ".png"))
	assert.Equal(t, strings.TrimSuffix(res.URL, ".png")+"_thumb.jpg", res.Thumbnail)
	assert.Equal(t, "image/jpeg", f.store.types[res.Thumbnail])
	assert.NotEmpty(t, res.Token)
	assert.NotEmpty(t, res.ThumbnailToken)

	tracked, _ := f.repo.All(ctx)
	require.Contains(t, tracked, res.URL)
	assert.Equal(t, res.Thumbnail, tracked[res.URL].Thumbnail)

	url, err := f.svc.Resolve(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/"+res.URL+"?expires=10m0s", url)
}

func TestMediaUpload_Rejects(t *testing.T) {
	f := newMediaFixture(t)
	ctx := context.Background()

	_, err := f.svc.Upload(ctx, alice, nil)
	assert.ErrorIs(t, err, ErrParamInvalid)

	big := pngFile(t, 4, 4)
	big.Size = MaxMediaSize + 1
	_, err = f.svc.Upload(ctx, alice, big)
	assert.ErrorIs(t, err, ErrFileTooLarge)

	binary := &MediaFile{Filename: "a.exe", Size: 4, Reader: bytes.NewReader([]byte{0x4d, 0x5a, 0x90, 0x00})}
	_, err = f.svc.Upload(ctx, alice, binary)
	assert.ErrorIs(t, err, ErrFileNotSupported)

	assert.Empty(t, f.store.objects)
}

func TestMediaUpload_PlainFileHasNoThumbnail(t *testing.T) {
	f := newMediaFixture(t)

	body := []byte("meeting notes\n")
	res, err := f.svc.Upload(context.Background(), bob, &MediaFile{Filename: "notes.txt", Size: int64(len(body)), Reader: bytes.NewReader(body)})
	require.NoError(t, err)

	assert.Equal(t, "file", res.Type)
	assert.Empty(t, res.Thumbnail)
	assert.Empty(t, res.ThumbnailToken)
	assert.Equal(t, body, f.store.objects[res.URL])
}

func TestMediaUpload_StoreFailure(t *testing.T) {
	f := newMediaFixture(t)
	f.store.uploadErr = errors.New("minio down")

	_, err := f.svc.Upload(context.Background(), alice, pngFile(t, 4, 4))
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	code, known := CodeOf(err)
	assert.Equal(t, ServiceUnavailable, code)
	assert.Equal(t, ErrStoreUnavailable, known)

	tracked, _ := f.repo.All(context.Background())
	assert.Empty(t, tracked)
}

func TestMediaResolve_StoreFailure(t *testing.T) {
	f := newMediaFixture(t)
	ctx := context.Background()
	res, err := f.svc.Upload(ctx, alice, pngFile(t, 4, 4))
	require.NoError(t, err)

	f.store.presignErr = errors.New("minio down")
	_, err = f.svc.Resolve(ctx, res.Token)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestMediaResolve_ExpiredOrForged(t *testing.T) {
	f := newMediaFixture(t)
	ctx := context.Background()

	res, err := f.svc.Upload(ctx, alice, pngFile(t, 4, 4))
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	_, err = f.svc.Resolve(ctx, res.Token)
	assert.NoError(t, err, "valid up to and including the ttl")

	f.clock.Advance(time.Millisecond)
	_, err = f.svc.Resolve(ctx, res.Token)
	assert.ErrorIs(t, err, ErrMediaNotFound)

	_, err = f.svc.Resolve(ctx, "garbage")
	assert.ErrorIs(t, err, ErrMediaNotFound)
	_, err = f.svc.Resolve(ctx, "")
	assert.ErrorIs(t, err, ErrMediaNotFound)
}

func TestMediaCleanupOrphans(t *testing.T) {
	f := newMediaFixture(t)
	ctx := context.Background()

	old, err := f.svc.Upload(ctx, alice, pngFile(t, 4, 4))
	require.NoError(t, err)
	claimed, err := f.svc.Upload(ctx, alice, pngFile(t, 4, 4))
	require.NoError(t, err)
	require.NoError(t, f.repo.Claim(ctx, claimed.URL, claimed.Thumbnail))

	f.clock.Advance(MediaOrphanTTL - time.Minute)
	fresh, err := f.svc.Upload(ctx, alice, pngFile(t, 4, 4))
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	n, err := f.svc.CleanupOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.ElementsMatch(t, []string{old.URL, old.Thumbnail}, f.store.deleted)
	assert.Contains(t, f.store.objects, claimed.URL)

	tracked, _ := f.repo.All(ctx)
	assert.Equal(t, []string{fresh.URL}, keysOf(tracked))
}

func keysOf(m map[string]repository.MediaTempMetadata) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
