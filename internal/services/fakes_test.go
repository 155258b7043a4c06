package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/mock"
	"github.com/synesthesie/artmarket/internal/config"
	"github.com/synesthesie/artmarket/internal/models"
	"github.com/synesthesie/artmarket/internal/repository"
)

var pngData = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR fake image body")

func testConfig() *config.Config {
	return &config.Config{
		ImageNamespace:         "artworks",
		ImageStoreTimeout:      5 * time.Second,
		ImageUploadConcurrency: 3,
		UploadMaxImageSize:     10 << 20,
		UploadMaxImages:        5,
		ListingDefaultLimit:    12,
		ListingMaxLimit:        100,
		RelatedDefaultLimit:    6,
		RelatedMaxLimit:        24,
	}
}

func pngFiles(n int) []UploadFile {
	files := make([]UploadFile, n)
	for i := range files {
		files[i] = UploadFile{Name: uuid.NewString() + ".png", Data: pngData}
	}
	return files
}

func storedFor(n int) []StoredImage {
	out := make([]StoredImage, n)
	for i := range out {
		id := "artworks/" + uuid.NewString() + ".png"
		out[i] = StoredImage{URL: "https://cdn.example/" + id, PublicID: id}
	}
	return out
}

type mockImageStore struct {
	mock.Mock
}

func (m *mockImageStore) UploadMany(ctx context.Context, files []UploadFile, namespace string) ([]StoredImage, error) {
	args := m.Called(ctx, files, namespace)
	if v := args.Get(0); v != nil {
		return v.([]StoredImage), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockImageStore) DeleteMany(ctx context.Context, publicIDs []string) error {
	return m.Called(ctx, publicIDs).Error(0)
}

func (m *mockImageStore) VariantsFor(publicID string) *ImageVariants {
	return variantBuilder{original: func(id string) string { return "https://cdn.example/" + id }}.variantsFor(publicID)
}

// fakeRepo is an in-memory ArtworkRepository with the same column rules as
// the gorm implementation.
type fakeRepo struct {
	mu        sync.Mutex
	artworks  map[uuid.UUID]*models.Artwork
	likes     map[uuid.UUID]map[uuid.UUID]bool
	lastQuery repository.ListQuery
	createErr error
	saveErr   error
	deleteErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		artworks: map[uuid.UUID]*models.Artwork{},
		likes:    map[uuid.UUID]map[uuid.UUID]bool{},
	}
}

func cloneArtwork(a *models.Artwork) *models.Artwork {
	c := *a
	c.Images = append([]models.ArtworkImage(nil), a.Images...)
	c.Tags = append(pq.StringArray(nil), a.Tags...)
	c.Likes = append([]models.ArtworkLike(nil), a.Likes...)
	return &c
}

func (r *fakeRepo) put(a *models.Artwork) *models.Artwork {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	r.artworks[a.ID] = cloneArtwork(a)
	return a
}

func (r *fakeRepo) stored(id uuid.UUID) *models.Artwork {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.artworks[id]
	if !ok {
		return nil
	}
	return cloneArtwork(a)
}

func (r *fakeRepo) withLikes(a *models.Artwork) *models.Artwork {
	c := cloneArtwork(a)
	c.Likes = nil
	for userID := range r.likes[a.ID] {
		c.Likes = append(c.Likes, models.ArtworkLike{ArtworkID: a.ID, UserID: userID})
	}
	return c
}

func (r *fakeRepo) List(_ context.Context, q repository.ListQuery) ([]models.Artwork, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastQuery = q

	var matched []models.Artwork
	for _, a := range r.artworks {
		if !a.IsListed() {
			continue
		}
		if q.Category != "" && a.Category != q.Category {
			continue
		}
		if q.ArtistID != nil && a.ArtistID != *q.ArtistID {
			continue
		}
		matched = append(matched, *r.withLikes(a))
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})

	total := int64(len(matched))
	if q.Offset >= len(matched) {
		return []models.Artwork{}, total, nil
	}
	end := min(q.Offset+q.Limit, len(matched))
	return matched[q.Offset:end], total, nil
}

func (r *fakeRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Artwork, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.artworks[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.withLikes(a), nil
}

func (r *fakeRepo) Create(_ context.Context, a *models.Artwork) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.put(a)
	return nil
}

func (r *fakeRepo) Save(_ context.Context, a *models.Artwork) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.artworks[a.ID]
	if !ok {
		return repository.ErrNotFound
	}
	next := cloneArtwork(a)
	next.Views = current.Views
	next.ArtistID = current.ArtistID
	next.CreatedAt = current.CreatedAt
	r.artworks[a.ID] = next
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, id uuid.UUID) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.artworks[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.artworks, id)
	delete(r.likes, id)
	return nil
}

func (r *fakeRepo) IncrementViews(_ context.Context, id uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.artworks[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	a.Views++
	return a.Views, nil
}

func (r *fakeRepo) ToggleLike(_ context.Context, artworkID, userID uuid.UUID) (bool, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.likes[artworkID]
	if set == nil {
		set = map[uuid.UUID]bool{}
		r.likes[artworkID] = set
	}
	liked := !set[userID]
	if liked {
		set[userID] = true
	} else {
		delete(set, userID)
	}
	return liked, int64(len(set)), nil
}

func (r *fakeRepo) Related(_ context.Context, artwork *models.Artwork, limit int) ([]models.Artwork, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Artwork
	for _, a := range r.artworks {
		if a.ID == artwork.ID || !a.IsListed() {
			continue
		}
		if a.ArtistID == artwork.ArtistID || (artwork.Category != "" && a.Category == artwork.Category) {
			out = append(out, *cloneArtwork(a))
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
