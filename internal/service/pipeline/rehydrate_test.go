package pipeline

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"

	"face-attendance/internal/models"
	"face-attendance/internal/service/codec"
	"face-attendance/internal/service/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func patternSample(seed byte) []byte {
	raw := make([]byte, models.FaceSampleSize)
	for i := range raw {
		raw[i] = seed + byte(i%7)
	}
	return raw
}

func putPayload(t *testing.T, store storage.BlobStore, payload []byte) models.BlobHandle {
	t.Helper()
	h, err := store.Put(context.Background(), "face.dat", bytes.NewReader(payload))
	require.NoError(t, err)
	return h
}

func putSample(t *testing.T, store storage.BlobStore, raw []byte) models.BlobHandle {
	t.Helper()
	payload, err := codec.Encode(raw)
	require.NoError(t, err)
	return putPayload(t, store, payload)
}

func profile(id int, name, rollNo string, h models.BlobHandle) models.StudentProfile {
	return models.StudentProfile{
		ID:       id,
		Name:     name,
		RollNo:   rollNo,
		FaceBlob: sql.NullString{String: string(h), Valid: h != ""},
	}
}

func TestRehydrateSkipsCorruptedSample(t *testing.T) {
	store, _ := newDiskStore(t)
	repo := new(MockRepository)

	// 4000 байт вместо 7500
	var short bytes.Buffer
	zw := gzip.NewWriter(&short)
	_, err := zw.Write(make([]byte, 4000))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	alice := patternSample(1)
	carol := patternSample(3)
	repo.On("ListEnrolledStudents", mock.Anything).Return([]models.StudentProfile{
		profile(1, "Alice", "R100", putSample(t, store, alice)),
		profile(2, "Bob", "R200", putPayload(t, store, short.Bytes())),
		profile(3, "Carol", "R300", putSample(t, store, carol)),
	}, nil)

	set, err := NewRehydrator(repo, store, RehydratorOptions{Workers: 2}).Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Alice", "Carol"}, set.Names)
	assert.Equal(t, []string{"R100", "R300"}, set.RollNos)
	require.Equal(t, 2, set.Len())
	assert.Equal(t, alice, set.Faces[0][:])
	assert.Equal(t, carol, set.Faces[1][:])

	require.Len(t, set.Skipped, 1)
	assert.Equal(t, "R200", set.Skipped[0].RollNo)
}

func TestRehydrateSkipsMissingBlob(t *testing.T) {
	store, _ := newDiskStore(t)
	repo := new(MockRepository)

	gone := putSample(t, store, patternSample(2))
	require.NoError(t, store.Delete(context.Background(), gone))

	repo.On("ListEnrolledStudents", mock.Anything).Return([]models.StudentProfile{
		profile(1, "Alice", "R100", putSample(t, store, patternSample(1))),
		profile(2, "Bob", "R200", gone),
		profile(3, "Dave", "R400", ""),
	}, nil)

	set, err := NewRehydrator(repo, store, RehydratorOptions{}).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, set.Names)
	require.Len(t, set.Skipped, 1)
	assert.Equal(t, "R200", set.Skipped[0].RollNo)
}

func TestRehydratePreservesOrder(t *testing.T) {
	store, _ := newDiskStore(t)
	repo := new(MockRepository)

	var (
		profiles []models.StudentProfile
		names    []string
	)
	for i := 0; i < 25; i++ {
		name := fmt.Sprintf("Student%02d", i)
		names = append(names, name)
		profiles = append(profiles, profile(i+1, name, fmt.Sprintf("R%03d", i), putSample(t, store, patternSample(byte(i)))))
	}
	repo.On("ListEnrolledStudents", mock.Anything).Return(profiles, nil)

	var (
		mu    sync.Mutex
		calls []int
	)
	r := NewRehydrator(repo, store, RehydratorOptions{
		Workers: 8,
		Progress: func(done, total int) {
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, 25, total)
			calls = append(calls, done)
		},
	})
	set, err := r.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, names, set.Names)
	for i := range set.Faces {
		assert.Equal(t, patternSample(byte(i)), set.Faces[i][:], "образец %d", i)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, calls, 25)
	assert.Equal(t, 25, calls[len(calls)-1])
}

func TestRehydrateEmpty(t *testing.T) {
	store, _ := newDiskStore(t)
	repo := new(MockRepository)
	repo.On("ListEnrolledStudents", mock.Anything).Return([]models.StudentProfile{}, nil)

	set, err := NewRehydrator(repo, store, RehydratorOptions{Workers: 4}).Load(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, set.Names)
	assert.NotNil(t, set.Faces)
	assert.NotNil(t, set.RollNos)
	assert.Zero(t, set.Len())
}

func TestRehydrateListFailure(t *testing.T) {
	store, _ := newDiskStore(t)
	repo := new(MockRepository)
	repo.On("ListEnrolledStudents", mock.Anything).Return(nil, errors.New("connection refused"))

	_, err := NewRehydrator(repo, store, RehydratorOptions{}).Load(context.Background())
	f, ok := FailureOf(err)
	require.True(t, ok)
	assert.Equal(t, KindPersistence, f.Kind)
	assert.Equal(t, StageRehydrating, f.Stage)
}

func TestRehydrateUsesCache(t *testing.T) {
	store, _ := newDiskStore(t)
	repo := new(MockRepository)
	cache := new(MockCache)

	cached := &models.FaceSet{Names: []string{"Alice"}, Faces: []models.RawFaceSample{{}}, RollNos: []string{"R100"}}
	cache.On("GetFaceSet", mock.Anything).Return(cached, int64(3), nil)

	set, err := NewRehydrator(repo, store, RehydratorOptions{Cache: cache}).Load(context.Background())
	require.NoError(t, err)
	assert.Same(t, cached, set)
	repo.AssertNotCalled(t, "ListEnrolledStudents", mock.Anything)
}

func TestRehydrateFillsCacheOnMiss(t *testing.T) {
	store, _ := newDiskStore(t)
	repo := new(MockRepository)
	cache := new(MockCache)

	repo.On("ListEnrolledStudents", mock.Anything).Return([]models.StudentProfile{
		profile(1, "Alice", "R100", putSample(t, store, patternSample(1))),
	}, nil)
	cache.On("GetFaceSet", mock.Anything).Return(nil, int64(3), nil)
	cache.On("SetFaceSet", mock.Anything, mock.MatchedBy(func(s *models.FaceSet) bool {
		return s.Len() == 1 && s.Names[0] == "Alice"
	}), int64(3)).Return(true, nil)

	_, err := NewRehydrator(repo, store, RehydratorOptions{Cache: cache}).Load(context.Background())
	require.NoError(t, err)
	cache.AssertExpectations(t)
}

func TestRehydrateCacheErrorFallsBack(t *testing.T) {
	store, _ := newDiskStore(t)
	repo := new(MockRepository)
	cache := new(MockCache)

	repo.On("ListEnrolledStudents", mock.Anything).Return([]models.StudentProfile{}, nil)
	cache.On("GetFaceSet", mock.Anything).Return(nil, int64(0), errors.New("redis down"))

	set, err := NewRehydrator(repo, store, RehydratorOptions{Cache: cache}).Load(context.Background())
	require.NoError(t, err)
	assert.Zero(t, set.Len())
	// без известного поколения набор в кэш не пишется
	cache.AssertNotCalled(t, "SetFaceSet", mock.Anything, mock.Anything, mock.Anything)
}

func TestRehydrateSkipsCacheWhenInvalidatedDuringLoad(t *testing.T) {
	store, _ := newDiskStore(t)
	repo := new(MockRepository)
	cache := new(MockCache)

	repo.On("ListEnrolledStudents", mock.Anything).Return([]models.StudentProfile{
		profile(1, "Alice", "R100", putSample(t, store, patternSample(1))),
	}, nil)
	// поколение 5 прочитано до загрузки, добавление студента его сдвинуло
	cache.On("GetFaceSet", mock.Anything).Return(nil, int64(5), nil)
	cache.On("SetFaceSet", mock.Anything, mock.Anything, int64(5)).Return(false, nil)

	set, err := NewRehydrator(repo, store, RehydratorOptions{Cache: cache}).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, set.Names)
	cache.AssertExpectations(t)
}

func TestRehydrateCancelled(t *testing.T) {
	store, _ := newDiskStore(t)
	repo := new(MockRepository)
	repo.On("ListEnrolledStudents", mock.Anything).Return([]models.StudentProfile{
		profile(1, "Alice", "R100", putSample(t, store, patternSample(1))),
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRehydrator(repo, store, RehydratorOptions{}).Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
