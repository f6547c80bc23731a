package service

import (
	"context"
	"image/jpeg"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecoaction/internal/apperror"
	"ecoaction/internal/config"
	"ecoaction/internal/model"
	"ecoaction/internal/repository"
)

type mockObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
}

func (m *mockObjectStore) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[aws.ToString(in.Key)] = body
	return &s3.PutObjectOutput{}, nil
}

func (m *mockObjectStore) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, aws.ToString(in.Key))
	m.deleted = append(m.deleted, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

var r2Config = &config.Config{R2BucketName: "eco", R2PublicURL: "https://cdn.example.com/"}

func TestMediaService_UploadAvatar(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	users := repository.NewUserRepository(db)
	u := createUser(t, users, "a@x.com", "alpha")

	store := &mockObjectStore{objects: map[string][]byte{}}
	svc := NewMediaService(store, r2Config, users, testLogger())

	file, header := multipartFile(t, "avatar", "me.png", "image/png", pngBytes(t, 400, 300))
	res, err := svc.UploadAvatar(ctx, u.ID, file, header)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(res.URL, "https://cdn.example.com/avatars/"))
	require.Contains(t, store.objects, res.Key)

	img, err := jpeg.Decode(strings.NewReader(string(store.objects[res.Key])))
	require.NoError(t, err)
	assert.Equal(t, model.AvatarWidth, img.Bounds().Dx())
	assert.Equal(t, model.AvatarHeight, img.Bounds().Dy())

	updated, err := users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, res.URL, updated.Icon)

	// A second upload replaces the first object.
	file, header = multipartFile(t, "avatar", "me2.png", "image/png", pngBytes(t, 50, 50))
	second, err := svc.UploadAvatar(ctx, u.ID, file, header)
	require.NoError(t, err)
	assert.Equal(t, []string{res.Key}, store.deleted)
	assert.NotContains(t, store.objects, res.Key)
	assert.Contains(t, store.objects, second.Key)
}

func TestMediaService_Disabled(t *testing.T) {
	db := newTestDB(t)
	users := repository.NewUserRepository(db)
	svc := NewMediaService(nil, &config.Config{}, users, testLogger())

	file, header := multipartFile(t, "avatar", "me.png", "image/png", pngBytes(t, 10, 10))
	_, err := svc.UploadAvatar(context.Background(), 1, file, header)

	assert.False(t, svc.Enabled())
	assert.ErrorIs(t, err, apperror.ErrUnavailable)
}

func TestImageService_StoreFetchThumbnail(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	users := repository.NewUserRepository(db)
	u := createUser(t, users, "a@x.com", "alpha")
	svc := NewImageService(repository.NewImageRepository(db), db, testLogger())

	data := pngBytes(t, 300, 240)
	id, err := svc.Store(ctx, u.ID, data, "../../etc/leaf.png", "image/png")
	require.NoError(t, err)

	img, err := svc.Fetch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, data, img.Data)
	assert.Equal(t, "image/png", img.Mimetype)
	assert.Equal(t, "leaf.png", img.Filename)

	list, err := svc.ListForUser(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)

	thumb, err := svc.Thumbnail(ctx, id, 0)
	require.NoError(t, err)
	decoded, err := jpeg.Decode(strings.NewReader(string(thumb)))
	require.NoError(t, err)
	assert.Equal(t, model.ThumbnailSize, decoded.Bounds().Dx())

	_, err = svc.Fetch(ctx, id+100)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = svc.Store(ctx, u.ID, nil, "empty.png", "image/png")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestImageService_StoreTxFollowsCallerTransaction(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	u := createUser(t, repository.NewUserRepository(db), "a@x.com", "alpha")
	svc := NewImageService(repository.NewImageRepository(db), db, testLogger())

	tx, err := db.BeginTxx(ctx, nil)
	require.NoError(t, err)
	img, err := svc.StoreTx(ctx, tx, u.ID, pngBytes(t, 4, 4), "dropped.png", "image/png")
	require.NoError(t, err)
	assert.NotZero(t, img.ID)
	require.NoError(t, tx.Rollback())

	list, err := svc.ListForUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	tx, err = db.BeginTxx(ctx, nil)
	require.NoError(t, err)
	img, err = svc.StoreTx(ctx, tx, u.ID, pngBytes(t, 4, 4), "kept.png", "image/png")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	list, err = svc.ListForUser(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, img.ID, list[0].ID)
}
