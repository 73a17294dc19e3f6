package datastore

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/racephotos/bibfinder/internal/conf"
	"github.com/racephotos/bibfinder/internal/detection"
	"github.com/racephotos/bibfinder/internal/ocr"
	"github.com/racephotos/bibfinder/internal/region"
)

// setupTestManager creates an in-memory SQLite database with the schema applied.
func setupTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := OpenSQLite(memoryPath, 0)
	require.NoError(t, err, "Failed to create test database")
	require.NoError(t, m.Initialize(), "Failed to migrate schema")
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func createPhoto(t *testing.T, m *Manager, raceID string) *Photo {
	t.Helper()
	p := &Photo{StorageRef: "race/" + raceID + "/img.jpg", RaceID: raceID, UploaderID: "u1"}
	require.NoError(t, m.Photos().Create(t.Context(), p))
	require.NotZero(t, p.ID)
	return p
}

func sampleRows() []Detection {
	return []Detection{
		{
			BibNumber:          "128",
			CombinedConfidence: 0.91,
			DetectorConfidence: 0.85,
			OCRConfidence:      0.95,
			Method:             "ocr_verified",
			BoundingBox:        BoundingBox{X: 10, Y: 20, W: 30, H: 40},
			RawMetadata:        RawMetadata{DetectionID: "d1", Label: "128", Confidence: 0.85},
			OCRMetadata:        &OCRMetadata{BibNumber: "128", RawText: "128", Source: "local"},
		},
		{
			BibNumber:          "42",
			CombinedConfidence: 0.6,
			DetectorConfidence: 0.6,
			Method:             "detector_only",
			RawMetadata:        RawMetadata{Label: "42", Confidence: 0.6},
		},
	}
}

func TestOpen_SQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "bibfinder.db")
	settings := &conf.DatabaseSettings{Type: "sqlite"}
	settings.SQLite.Path = path

	m, err := Open(settings)
	require.NoError(t, err)
	defer func() { require.NoError(t, m.Close()) }()

	assert.FileExists(t, path)
	assert.False(t, m.IsMySQL())
	assert.Equal(t, path, m.Path())
	assert.True(t, m.DB().Migrator().HasTable(&Photo{}))
	assert.True(t, m.DB().Migrator().HasTable(&Detection{}))
}

func TestPhotoRepository_CreateDefaults(t *testing.T) {
	m := setupTestManager(t)
	p := createPhoto(t, m, "race-1")

	got, err := m.Photos().GetByID(t.Context(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.ProcessingStatus)
	assert.False(t, got.IsProcessed)
	assert.Nil(t, got.ProcessedAt)
	assert.Nil(t, got.ProcessingError)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestPhotoRepository_CreateRejectsMissingRef(t *testing.T) {
	m := setupTestManager(t)
	err := m.Photos().Create(t.Context(), &Photo{RaceID: "r"})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestPhotoRepository_GetByIDNotFound(t *testing.T) {
	m := setupTestManager(t)
	_, err := m.Photos().GetByID(t.Context(), 999)
	require.ErrorIs(t, err, ErrPhotoNotFound)
}

func TestPhotoRepository_Lifecycle(t *testing.T) {
	m := setupTestManager(t)
	repo := m.Photos()
	p := createPhoto(t, m, "race-1")
	ctx := t.Context()

	// A failed attempt records its message; the retry pickup clears it.
	require.NoError(t, repo.Transition(ctx, p.ID, []Status{StatusPending}, ProcessingUpdate()))
	require.NoError(t, repo.Transition(ctx, p.ID, []Status{StatusProcessing}, FailedUpdate("detector unavailable")))

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.ProcessingStatus)
	require.NotNil(t, got.ProcessingError)
	assert.Equal(t, "detector unavailable", *got.ProcessingError)

	require.NoError(t, repo.Transition(ctx, p.ID, []Status{StatusPending, StatusProcessing, StatusFailed}, ProcessingUpdate()))
	got, err = repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, got.ProcessingStatus)
	assert.Nil(t, got.ProcessingError)

	at := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	require.NoError(t, repo.Transition(ctx, p.ID, []Status{StatusProcessing}, CompletedUpdate(at)))

	got, err = repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.ProcessingStatus)
	assert.True(t, got.IsProcessed)
	require.NotNil(t, got.ProcessedAt)
	assert.True(t, at.Equal(*got.ProcessedAt))
	assert.Nil(t, got.ProcessingError)
}

func TestPhotoRepository_TransitionRejected(t *testing.T) {
	m := setupTestManager(t)
	repo := m.Photos()
	p := createPhoto(t, m, "race-1")
	ctx := t.Context()

	require.NoError(t, repo.Transition(ctx, p.ID, []Status{StatusPending}, ProcessingUpdate()))
	require.NoError(t, repo.Transition(ctx, p.ID, []Status{StatusProcessing}, CompletedUpdate(time.Now())))

	err := repo.Transition(ctx, p.ID, []Status{StatusPending, StatusProcessing}, FailedUpdate("cancelled by user"))
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Contains(t, err.Error(), "completed")

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.ProcessingStatus, "rejected transition must not change the row")
	assert.True(t, got.IsProcessed)

	err = repo.Transition(ctx, 12345, []Status{StatusPending}, ProcessingUpdate())
	require.ErrorIs(t, err, ErrPhotoNotFound)

	err = repo.Transition(ctx, p.ID, nil, ProcessingUpdate())
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestPhotoRepository_ConcurrentTransitionSingleWinner(t *testing.T) {
	m := setupTestManager(t)
	repo := m.Photos()
	p := createPhoto(t, m, "race-1")
	require.NoError(t, repo.Transition(t.Context(), p.ID, []Status{StatusPending}, ProcessingUpdate()))

	const writers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u := FailedUpdate("cancelled by user")
			if i%2 == 0 {
				u = CompletedUpdate(time.Now())
			}
			if err := repo.Transition(t.Context(), p.ID, []Status{StatusProcessing}, u); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins, "exactly one terminal transition may succeed")
}

func TestPhotoRepository_ListAndCountByStatus(t *testing.T) {
	m := setupTestManager(t)
	repo := m.Photos()
	ctx := t.Context()

	photos := []*Photo{
		{StorageRef: "a.jpg", RaceID: "r"},
		{StorageRef: "b.jpg", RaceID: "r"},
		{StorageRef: "c.jpg", RaceID: "r"},
	}
	require.NoError(t, repo.CreateMany(ctx, photos))
	require.NoError(t, repo.Transition(ctx, photos[1].ID, []Status{StatusPending}, ProcessingUpdate()))

	pending, err := repo.ListByStatus(ctx, StatusPending, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, photos[0].ID, pending[0].ID)
	assert.Equal(t, photos[2].ID, pending[1].ID)

	limited, err := repo.ListByStatus(ctx, StatusPending, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[StatusPending])
	assert.Equal(t, int64(1), counts[StatusProcessing])
	assert.Zero(t, counts[StatusCompleted])
}

func TestPhotoRepository_ListByErrorPrefix(t *testing.T) {
	m := setupTestManager(t)
	repo := m.Photos()
	ctx := t.Context()
	at := time.Date(2026, 4, 12, 10, 0, 0, 0, time.UTC)

	photos := []*Photo{
		{StorageRef: "a.jpg", RaceID: "r"},
		{StorageRef: "b.jpg", RaceID: "r"},
		{StorageRef: "c.jpg", RaceID: "r"},
		{StorageRef: "d.jpg", RaceID: "r"},
	}
	require.NoError(t, repo.CreateMany(ctx, photos))
	all := []Status{StatusPending}

	require.NoError(t, repo.Transition(ctx, photos[0].ID, all, CompletedWithErrorUpdate(at, "rows lost: disk full")))
	require.NoError(t, repo.Transition(ctx, photos[1].ID, all, CompletedUpdate(at)))
	require.NoError(t, repo.Transition(ctx, photos[2].ID, all, FailedUpdate("rows lost: but failed")))
	// An underscore in the pattern must not act as a wildcard.
	require.NoError(t, repo.Transition(ctx, photos[3].ID, all, CompletedWithErrorUpdate(at, "rowsXlost: other")))

	got, err := repo.ListByErrorPrefix(ctx, StatusCompleted, "rows lost:")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, photos[0].ID, got[0].ID)
	assert.True(t, got[0].IsProcessed)

	none, err := repo.ListByErrorPrefix(ctx, StatusCompleted, "rows_lost")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = repo.ListByErrorPrefix(ctx, StatusCompleted, "")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestDetectionRepository_ReplaceForPhotoIsIdempotent(t *testing.T) {
	m := setupTestManager(t)
	repo := m.Detections()
	p := createPhoto(t, m, "race-1")
	ctx := t.Context()

	// A retried run writes the same detections twice.
	require.NoError(t, repo.ReplaceForPhoto(ctx, p.ID, sampleRows()))
	require.NoError(t, repo.ReplaceForPhoto(ctx, p.ID, sampleRows()))

	dets, err := repo.ListByPhoto(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, dets, 2)
	assert.Equal(t, "128", dets[0].BibNumber, "highest confidence first")
	assert.Equal(t, BoundingBox{X: 10, Y: 20, W: 30, H: 40}, dets[0].BoundingBox)
	require.NotNil(t, dets[0].OCRMetadata)
	assert.Equal(t, "local", dets[0].OCRMetadata.Source)
	assert.Nil(t, dets[1].OCRMetadata)

	require.NoError(t, repo.ReplaceForPhoto(ctx, p.ID, nil))
	dets, err = repo.ListByPhoto(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, dets)

	require.ErrorIs(t, repo.ReplaceForPhoto(ctx, 0, sampleRows()), ErrInvalidInput)
}

func TestDetectionRepository_CascadeDelete(t *testing.T) {
	m := setupTestManager(t)
	p := createPhoto(t, m, "race-1")
	require.NoError(t, m.Detections().ReplaceForPhoto(t.Context(), p.ID, sampleRows()))

	require.NoError(t, m.DB().Delete(&Photo{}, p.ID).Error)

	var count int64
	require.NoError(t, m.DB().Model(&Detection{}).Where("photo_id = ?", p.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDetectionRepository_FindPhotosByBib(t *testing.T) {
	m := setupTestManager(t)
	photos := m.Photos()
	ctx := t.Context()

	complete := func(p *Photo) {
		require.NoError(t, photos.Transition(ctx, p.ID, []Status{StatusPending}, ProcessingUpdate()))
		require.NoError(t, photos.Transition(ctx, p.ID, []Status{StatusProcessing}, CompletedUpdate(time.Now())))
	}

	a := createPhoto(t, m, "race-1")
	b := createPhoto(t, m, "race-1")
	other := createPhoto(t, m, "race-2")
	unfinished := createPhoto(t, m, "race-1")
	for _, p := range []*Photo{a, b, other} {
		complete(p)
	}
	for _, p := range []*Photo{a, b, other, unfinished} {
		require.NoError(t, m.Detections().ReplaceForPhoto(ctx, p.ID, sampleRows()))
	}

	ids, err := m.Detections().FindPhotosByBib(ctx, "race-1", "128")
	require.NoError(t, err)
	assert.Equal(t, []uint{a.ID, b.ID}, ids)

	ids, err = m.Detections().FindPhotosByBib(ctx, "race-1", "7")
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = m.Detections().FindPhotosByBib(ctx, "", "128")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestMapper_RoundTrip(t *testing.T) {
	in := detection.Detection{
		BibNumber:          "1234",
		CombinedConfidence: 0.88,
		DetectorConfidence: 0.8,
		OCRConfidence:      0.9,
		Method:             detection.MethodOCRCorrected,
		BoundingBox:        region.Box{X: 1, Y: 2, W: 3, H: 4},
		RawMetadata:        detection.RawMetadata{DetectionID: "x", Label: "1284", Confidence: 0.8},
		OCRMetadata: &detection.OCRMetadata{
			BibNumber:    "1234",
			RawText:      "1234 ",
			Alternatives: []string{"7234"},
			Source:       ocr.SourceCloud,
			Variant:      "bright",
		},
	}

	rows := FromDetections(7, []detection.Detection{in})
	require.Len(t, rows, 1)
	assert.Equal(t, uint(7), rows[0].PhotoID)
	assert.Equal(t, in, rows[0].ToDetection())

	noOCR := in
	noOCR.OCRMetadata = nil
	row := FromDetection(7, &noOCR)
	assert.Nil(t, row.OCRMetadata)
	assert.Equal(t, noOCR, row.ToDetection())
}
