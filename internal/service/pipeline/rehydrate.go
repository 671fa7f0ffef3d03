package pipeline

import (
	"context"
	"log"
	"sync"

	"face-attendance/internal/models"
	"face-attendance/internal/service/codec"
	"face-attendance/internal/service/storage"
)

// EnrolledLister перечисляет профили с образцом
type EnrolledLister interface {
	ListEnrolledStudents(ctx context.Context) ([]models.StudentProfile, error)
}

// FaceSetCache хранит последний восстановленный набор.
// SetFaceSet не сохраняет набор, если поколение сменилось после GetFaceSet.
type FaceSetCache interface {
	GetFaceSet(ctx context.Context) (*models.FaceSet, int64, error)
	SetFaceSet(ctx context.Context, set *models.FaceSet, gen int64) (bool, error)
}

// ProgressFunc вызывается после обработки каждого профиля
type ProgressFunc func(done, total int)

// RehydratorOptions - настройки восстановления
type RehydratorOptions struct {
	Workers  int
	Cache    FaceSetCache
	Progress ProgressFunc
}

// Rehydrator собирает набор лиц из профилей и хранилища
type Rehydrator struct {
	students EnrolledLister
	blobs    storage.BlobStore
	workers  int
	cache    FaceSetCache
	progress ProgressFunc
}

// NewRehydrator создает восстановитель
func NewRehydrator(students EnrolledLister, blobs storage.BlobStore, opts RehydratorOptions) *Rehydrator {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	return &Rehydrator{
		students: students,
		blobs:    blobs,
		workers:  workers,
		cache:    opts.Cache,
		progress: opts.Progress,
	}
}

// Load возвращает параллельные последовательности имен, образцов и номеров.
// Битые и пропавшие образцы пропускаются, порядок профилей сохраняется.
func (r *Rehydrator) Load(ctx context.Context) (*models.FaceSet, error) {
	// Поколение читается до списка профилей
	var (
		gen       int64
		cacheable bool
	)
	if r.cache != nil {
		set, g, err := r.cache.GetFaceSet(ctx)
		switch {
		case err != nil:
			log.Printf("⚠️  Кэш набора лиц недоступен: %v", err)
		case set != nil:
			return set, nil
		default:
			gen, cacheable = g, true
		}
	}

	set, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	if cacheable {
		stored, err := r.cache.SetFaceSet(ctx, set, gen)
		switch {
		case err != nil:
			log.Printf("⚠️  Не удалось закэшировать набор лиц: %v", err)
		case !stored:
			log.Println("ℹ️  Набор лиц изменился во время загрузки, в кэш не сохраняем")
		}
	}
	return set, nil
}

type slot struct {
	sample models.RawFaceSample
	err    error
}

func (r *Rehydrator) load(ctx context.Context) (*models.FaceSet, error) {
	all, err := r.students.ListEnrolledStudents(ctx)
	if err != nil {
		return nil, newFailure(StageRehydrating, KindPersistence, "", err)
	}

	profiles := all[:0:0]
	for _, p := range all {
		if p.HasFace() {
			profiles = append(profiles, p)
		}
	}

	// Результаты раскладываются по индексу профиля
	slots := make([]slot, len(profiles))
	jobs := make(chan int)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done int
	)
	for w := 0; w < min(r.workers, len(profiles)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				slots[i].sample, slots[i].err = r.fetch(ctx, profiles[i])
				if r.progress != nil {
					mu.Lock()
					done++
					r.progress(done, len(profiles))
					mu.Unlock()
				}
			}
		}()
	}

feed:
	for i := range profiles {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	set := &models.FaceSet{
		Names:   []string{},
		Faces:   []models.RawFaceSample{},
		RollNos: []string{},
	}
	for i, p := range profiles {
		if err := slots[i].err; err != nil {
			log.Printf("⚠️  Образец %s (%s) пропущен: %v", p.RollNo, p.FaceBlob.String, err)
			set.Skipped = append(set.Skipped, models.SkippedSample{RollNo: p.RollNo, Reason: err.Error()})
			continue
		}
		set.Add(p.Name, p.RollNo, slots[i].sample)
	}

	log.Printf("🧩 Восстановлено образцов: %d из %d", set.Len(), len(profiles))
	return set, nil
}

func (r *Rehydrator) fetch(ctx context.Context, p models.StudentProfile) (models.RawFaceSample, error) {
	handle, _ := p.Handle()
	rc, err := r.blobs.Get(ctx, handle)
	if err != nil {
		return models.RawFaceSample{}, err
	}
	defer rc.Close()
	return codec.Decode(rc)
}
