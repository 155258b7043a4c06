package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/synesthesie/artmarket/internal/models"
)

func strPtr(s string) *string      { return &s }
func floatPtr(f float64) *float64  { return &f }
func boolPtr(b bool) *bool         { return &b }
func tagsPtr(t ...string) *[]string { return &t }

type fixture struct {
	repo   *fakeRepo
	images *mockImageStore
	svc    *ArtworkService
	artist *Caller
	admin  *Caller
	other  *Caller
}

func newFixture() *fixture {
	repo := newFakeRepo()
	images := &mockImageStore{}
	return &fixture{
		repo:   repo,
		images: images,
		svc:    NewArtworkService(repo, images, testConfig()),
		artist: &Caller{UserID: uuid.New(), Role: models.RoleArtist},
		admin:  &Caller{UserID: uuid.New(), Role: models.RoleAdmin},
		other:  &Caller{UserID: uuid.New(), Role: models.RoleBuyer},
	}
}

// seed stores an artwork owned by the fixture artist with n images.
func (f *fixture) seed(status models.ArtworkStatus, public bool, n int) *models.Artwork {
	a := &models.Artwork{
		ID:       uuid.New(),
		Title:    "Sunset",
		Status:   status,
		IsPublic: public,
		ArtistID: f.artist.UserID,
	}
	images := make([]models.ArtworkImage, n)
	for i, s := range storedFor(n) {
		images[i] = models.ArtworkImage{URL: s.URL, PublicID: s.PublicID}
	}
	a.AppendImages(images...)
	return f.repo.put(a)
}

func assertKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, KindOf(err), "unexpected error: %v", err)
}

func mainImages(a *models.Artwork) int {
	n := 0
	for _, img := range a.Images {
		if img.IsMain {
			n++
		}
	}
	return n
}

func TestListNormalizesParameters(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	page, err := f.svc.List(ctx, ListParams{Page: 0, Limit: 0})
	require.NoError(t, err)
	assert.Equal(t, 0, f.repo.lastQuery.Offset)
	assert.Equal(t, 12, f.repo.lastQuery.Limit)
	assert.Equal(t, 1, page.Page)
	assert.False(t, f.repo.lastQuery.Ascending)

	_, err = f.svc.List(ctx, ListParams{Page: 3, Limit: 500, SortBy: "price", SortOrder: "asc"})
	require.NoError(t, err)
	assert.Equal(t, 100, f.repo.lastQuery.Limit)
	assert.Equal(t, 200, f.repo.lastQuery.Offset)
	assert.True(t, f.repo.lastQuery.Ascending)
	assert.EqualValues(t, "price", f.repo.lastQuery.SortBy)
}

func TestListRejectsBadParameters(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.List(ctx, ListParams{SortBy: "password"})
	assertKind(t, err, KindValidation)

	_, err = f.svc.List(ctx, ListParams{SortOrder: "sideways"})
	assertKind(t, err, KindValidation)

	_, err = f.svc.List(ctx, ListParams{MinPrice: floatPtr(500), MaxPrice: floatPtr(100)})
	assertKind(t, err, KindValidation)

	_, err = f.svc.List(ctx, ListParams{MinPrice: floatPtr(-1)})
	assertKind(t, err, KindValidation)
}

func TestListPageOutOfRange(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.seed(models.ArtworkStatusPublished, true, 0)

	// (1<<61)*12 wraps to math.MinInt64
	_, err := f.svc.List(ctx, ListParams{Page: 1<<61 + 1, Limit: 12})
	assertKind(t, err, KindValidation)

	_, err = f.svc.List(ctx, ListParams{Page: math.MaxInt, Limit: 2})
	assertKind(t, err, KindValidation)

	page, err := f.svc.List(ctx, ListParams{Page: 1_000_000, Limit: 12})
	require.NoError(t, err)
	assert.Equal(t, 1_000_000, page.Page)
	assert.Equal(t, 999_999*12, f.repo.lastQuery.Offset)
	assert.Empty(t, page.Artworks)
	assert.EqualValues(t, 1, page.TotalItems)
}

func TestListPagesCoverEveryItemOnce(t *testing.T) {
	f := newFixture()
	base := time.Now()
	for i := 0; i < 25; i++ {
		a := f.seed(models.ArtworkStatusPublished, true, 1)
		a.CreatedAt = base.Add(-time.Duration(i%7) * time.Minute)
		f.repo.put(a)
	}
	f.seed(models.ArtworkStatusDraft, true, 1)
	f.seed(models.ArtworkStatusPublished, false, 1)

	seen := map[uuid.UUID]bool{}
	var total int
	for p := 1; p <= 3; p++ {
		page, err := f.svc.List(context.Background(), ListParams{Page: p, Limit: 10})
		require.NoError(t, err)
		assert.EqualValues(t, 25, page.TotalItems)
		assert.Equal(t, 3, page.TotalPages)
		for _, a := range page.Artworks {
			assert.True(t, a.IsListed())
			assert.False(t, seen[a.ID], "artwork %s listed twice", a.ID)
			seen[a.ID] = true
		}
		total += len(page.Artworks)
	}
	assert.Equal(t, 25, total)
}

func TestDraftHiddenFromListingButVisibleToOwner(t *testing.T) {
	f := newFixture()
	draft := f.seed(models.ArtworkStatusDraft, false, 0)

	page, err := f.svc.List(context.Background(), ListParams{})
	require.NoError(t, err)
	assert.Empty(t, page.Artworks)

	_, err = f.svc.Get(context.Background(), draft.ID, nil)
	assertKind(t, err, KindNotFound)

	_, err = f.svc.Get(context.Background(), draft.ID, f.other)
	assertKind(t, err, KindNotFound)

	got, err := f.svc.Get(context.Background(), draft.ID, f.artist)
	require.NoError(t, err)
	assert.Equal(t, "Sunset", got.Title)

	got, err = f.svc.Get(context.Background(), draft.ID, f.admin)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.Views)
}

func TestGetCountsNonOwnerViews(t *testing.T) {
	f := newFixture()
	a := f.seed(models.ArtworkStatusPublished, true, 1)
	ctx := context.Background()

	got, err := f.svc.Get(ctx, a.ID, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.Views)

	got, err = f.svc.Get(ctx, a.ID, f.other)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.Views)

	got, err = f.svc.Get(ctx, a.ID, f.artist)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.Views)
	assert.EqualValues(t, 2, f.repo.stored(a.ID).Views)
}

func TestGetMissing(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Get(context.Background(), uuid.New(), nil)
	assertKind(t, err, KindNotFound)
}

func TestCreateRejectsTooManyFilesBeforeUpload(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Create(context.Background(), f.artist, ArtworkInput{Title: strPtr("Sunset")}, pngFiles(6))

	assertKind(t, err, KindValidation)
	f.images.AssertNotCalled(t, "UploadMany", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, f.repo.artworks)
}

func TestCreateRejectsNonImages(t *testing.T) {
	f := newFixture()
	files := []UploadFile{{Name: "notes.txt", Data: []byte("plain text, definitely not a picture")}}

	_, err := f.svc.Create(context.Background(), f.artist, ArtworkInput{Title: strPtr("Sunset")}, files)

	assertKind(t, err, KindValidation)
	f.images.AssertNotCalled(t, "UploadMany", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateRequiresTitleAndCaller(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Create(context.Background(), nil, ArtworkInput{Title: strPtr("Sunset")}, nil)
	assertKind(t, err, KindUnauthorized)

	_, err = f.svc.Create(context.Background(), f.artist, ArtworkInput{}, nil)
	assertKind(t, err, KindValidation)

	_, err = f.svc.Create(context.Background(), f.artist, ArtworkInput{Title: strPtr("<b></b>  ")}, nil)
	assertKind(t, err, KindValidation)
}

func TestCreateUploadsInOrderAndMarksFirstMain(t *testing.T) {
	f := newFixture()
	stored := storedFor(3)
	f.images.On("UploadMany", mock.Anything, mock.MatchedBy(func(files []UploadFile) bool {
		return len(files) == 3 && files[0].ContentType == "image/png"
	}), "artworks").Return(stored, nil).Once()

	input := ArtworkInput{
		Title:    strPtr(" <i>Sunset</i> "),
		Price:    floatPtr(120),
		Currency: strPtr("eur"),
		Tags:     tagsPtr("Oil", "oil", " sea "),
		Width:    floatPtr(40),
		Height:   floatPtr(60),
	}
	a, err := f.svc.Create(context.Background(), f.artist, input, pngFiles(3))

	require.NoError(t, err)
	f.images.AssertExpectations(t)
	assert.Equal(t, "Sunset", a.Title)
	assert.Equal(t, "EUR", a.Currency)
	assert.Equal(t, []string{"Oil", "sea"}, []string(a.Tags))
	assert.Equal(t, models.ArtworkStatusDraft, a.Status)
	assert.True(t, a.IsPublic)
	assert.Equal(t, f.artist.UserID, a.ArtistID)
	require.Len(t, a.Images, 3)
	for i, img := range a.Images {
		assert.Equal(t, stored[i].PublicID, img.PublicID)
		assert.Equal(t, i == 0, img.IsMain)
	}
}

func TestCreateUploadFailureAborts(t *testing.T) {
	f := newFixture()
	f.images.On("UploadMany", mock.Anything, mock.Anything, "artworks").Return(nil, errors.New("gateway down")).Once()

	_, err := f.svc.Create(context.Background(), f.artist, ArtworkInput{Title: strPtr("Sunset")}, pngFiles(2))

	assertKind(t, err, KindUpload)
	assert.NotContains(t, err.Error(), "gateway down")
	assert.Empty(t, f.repo.artworks)
}

func TestCreateDatabaseFailureDiscardsUploads(t *testing.T) {
	f := newFixture()
	stored := storedFor(2)
	f.repo.createErr = errors.New("insert failed")
	f.images.On("UploadMany", mock.Anything, mock.Anything, "artworks").Return(stored, nil).Once()
	f.images.On("DeleteMany", mock.Anything, []string{stored[0].PublicID, stored[1].PublicID}).Return(nil).Once()

	_, err := f.svc.Create(context.Background(), f.artist, ArtworkInput{Title: strPtr("Sunset")}, pngFiles(2))

	assertKind(t, err, KindInternal)
	f.images.AssertExpectations(t)
}

func TestCreateFeaturedIsAdminOnly(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Create(context.Background(), f.artist, ArtworkInput{Title: strPtr("Sunset"), Featured: boolPtr(true)}, nil)
	assertKind(t, err, KindForbidden)

	a, err := f.svc.Create(context.Background(), f.admin, ArtworkInput{Title: strPtr("Sunset"), Featured: boolPtr(true)}, nil)
	require.NoError(t, err)
	assert.True(t, a.Featured)
}

func TestCreateValidatesFields(t *testing.T) {
	f := newFixture()
	cases := map[string]ArtworkInput{
		"negative price":   {Price: floatPtr(-5)},
		"zero width":       {Width: floatPtr(0)},
		"bad status":       {Status: (*models.ArtworkStatus)(strPtr("sold-out"))},
		"bad availability": {Availability: (*models.Availability)(strPtr("maybe"))},
		"bad currency":     {Currency: strPtr("euros")},
		"bad unit":         {DimensionUnit: strPtr("furlong")},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			input.Title = strPtr("Sunset")
			_, err := f.svc.Create(context.Background(), f.artist, input, nil)
			assertKind(t, err, KindValidation)
		})
	}
}

func TestUpdateRequiresOwnerOrAdmin(t *testing.T) {
	f := newFixture()
	a := f.seed(models.ArtworkStatusPublished, true, 1)
	input := ArtworkInput{Title: strPtr("Dawn")}

	_, err := f.svc.Update(context.Background(), a.ID, nil, input, nil)
	assertKind(t, err, KindUnauthorized)

	_, err = f.svc.Update(context.Background(), a.ID, f.other, input, nil)
	assertKind(t, err, KindForbidden)
	assert.Equal(t, "Sunset", f.repo.stored(a.ID).Title)

	got, err := f.svc.Update(context.Background(), a.ID, f.admin, input, nil)
	require.NoError(t, err)
	assert.Equal(t, "Dawn", got.Title)

	_, err = f.svc.Update(context.Background(), uuid.New(), f.admin, input, nil)
	assertKind(t, err, KindNotFound)
}

func TestUpdateHiddenArtworkLooksMissing(t *testing.T) {
	f := newFixture()
	a := f.seed(models.ArtworkStatusDraft, false, 0)

	_, err := f.svc.Update(context.Background(), a.ID, f.other, ArtworkInput{Title: strPtr("Dawn")}, nil)
	assertKind(t, err, KindNotFound)
}

func TestUpdateAppendsImages(t *testing.T) {
	f := newFixture()
	a := f.seed(models.ArtworkStatusPublished, true, 0)
	stored := storedFor(2)
	f.images.On("UploadMany", mock.Anything, mock.Anything, "artworks").Return(stored, nil).Once()

	got, err := f.svc.Update(context.Background(), a.ID, f.artist, ArtworkInput{}, pngFiles(2))

	require.NoError(t, err)
	require.Len(t, got.Images, 2)
	assert.True(t, got.Images[0].IsMain)
	assert.Equal(t, 1, mainImages(got))

	more := storedFor(1)
	f.images.On("UploadMany", mock.Anything, mock.Anything, "artworks").Return(more, nil).Once()
	got, err = f.svc.Update(context.Background(), a.ID, f.artist, ArtworkInput{}, pngFiles(1))
	require.NoError(t, err)
	require.Len(t, got.Images, 3)
	assert.Equal(t, stored[0].PublicID, got.MainImage().PublicID)
	assert.Equal(t, more[0].PublicID, got.Images[2].PublicID)
}

func TestUpdateRespectsImageLimit(t *testing.T) {
	f := newFixture()
	a := f.seed(models.ArtworkStatusPublished, true, 4)

	_, err := f.svc.Update(context.Background(), a.ID, f.artist, ArtworkInput{}, pngFiles(2))

	assertKind(t, err, KindValidation)
	f.images.AssertNotCalled(t, "UploadMany", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateKeepsViewsAndOwner(t *testing.T) {
	f := newFixture()
	a := f.seed(models.ArtworkStatusPublished, true, 0)
	_, err := f.svc.Get(context.Background(), a.ID, f.other)
	require.NoError(t, err)

	got, err := f.svc.Update(context.Background(), a.ID, f.admin, ArtworkInput{Status: (*models.ArtworkStatus)(strPtr("archived"))}, nil)

	require.NoError(t, err)
	assert.EqualValues(t, 1, got.Views)
	assert.Equal(t, f.artist.UserID, got.ArtistID)
	assert.Equal(t, models.ArtworkStatusArchived, got.Status)
}

func TestRemoveImagePromotesNewMainDespiteStoreFailure(t *testing.T) {
	f := newFixture()
	a := f.seed(models.ArtworkStatusPublished, true, 3)
	mainImage := a.Images[0]
	f.images.On("DeleteMany", mock.Anything, []string{mainImage.PublicID}).Return(errors.New("store unavailable")).Once()

	err := f.svc.RemoveImage(context.Background(), a.ID, mainImage.ID, f.artist)

	require.NoError(t, err)
	f.images.AssertExpectations(t)
	got := f.repo.stored(a.ID)
	require.Len(t, got.Images, 2)
	assert.Equal(t, a.Images[1].ID, got.MainImage().ID)
	assert.Equal(t, 1, mainImages(got))
}

func TestRemoveImageUnknown(t *testing.T) {
	f := newFixture()
	a := f.seed(models.ArtworkStatusPublished, true, 1)

	err := f.svc.RemoveImage(context.Background(), a.ID, uuid.New(), f.artist)

	assertKind(t, err, KindNotFound)
	f.images.AssertNotCalled(t, "DeleteMany", mock.Anything, mock.Anything)
}

func TestSetMainImage(t *testing.T) {
	f := newFixture()
	a := f.seed(models.ArtworkStatusPublished, true, 3)
	target := a.Images[2].ID

	require.NoError(t, f.svc.SetMainImage(context.Background(), a.ID, target, f.artist))

	got := f.repo.stored(a.ID)
	assert.Equal(t, target, got.MainImage().ID)
	assert.Equal(t, 1, mainImages(got))

	err := f.svc.SetMainImage(context.Background(), a.ID, uuid.New(), f.artist)
	assertKind(t, err, KindNotFound)
	assert.Equal(t, target, f.repo.stored(a.ID).MainImage().ID)

	err = f.svc.SetMainImage(context.Background(), a.ID, target, f.other)
	assertKind(t, err, KindForbidden)
}

func TestDeleteSucceedsWhenStoreCleanupFails(t *testing.T) {
	f := newFixture()
	a := f.seed(models.ArtworkStatusPublished, true, 2)
	f.images.On("DeleteMany", mock.Anything, a.PublicIDs()).Return(errors.New("store unavailable")).Once()

	err := f.svc.Delete(context.Background(), a.ID, f.artist)

	require.NoError(t, err)
	f.images.AssertExpectations(t)
	assert.Nil(t, f.repo.stored(a.ID))
}

func TestDeleteChecksOwnershipFirst(t *testing.T) {
	f := newFixture()
	a := f.seed(models.ArtworkStatusPublished, true, 2)

	err := f.svc.Delete(context.Background(), a.ID, f.other)

	assertKind(t, err, KindForbidden)
	f.images.AssertNotCalled(t, "DeleteMany", mock.Anything, mock.Anything)
	assert.NotNil(t, f.repo.stored(a.ID))
}

func TestDeleteRecordFailure(t *testing.T) {
	f := newFixture()
	a := f.seed(models.ArtworkStatusPublished, true, 0)
	f.repo.deleteErr = fmt.Errorf("connection reset")

	err := f.svc.Delete(context.Background(), a.ID, f.admin)

	assertKind(t, err, KindDelete)
}

func TestToggleLikeIsIdempotentInPairs(t *testing.T) {
	f := newFixture()
	a := f.seed(models.ArtworkStatusPublished, true, 1)
	ctx := context.Background()

	_, _, err := f.svc.ToggleLike(ctx, a.ID, nil)
	assertKind(t, err, KindUnauthorized)

	liked, count, err := f.svc.ToggleLike(ctx, a.ID, f.admin)
	require.NoError(t, err)
	require.True(t, liked)
	require.EqualValues(t, 1, count)

	liked, count, err = f.svc.ToggleLike(ctx, a.ID, f.other)
	require.NoError(t, err)
	assert.True(t, liked)
	assert.EqualValues(t, 2, count)

	liked, count, err = f.svc.ToggleLike(ctx, a.ID, f.other)
	require.NoError(t, err)
	assert.False(t, liked)
	assert.EqualValues(t, 1, count)
}

func TestRelated(t *testing.T) {
	f := newFixture()
	a := f.seed(models.ArtworkStatusPublished, true, 1)
	sibling := f.seed(models.ArtworkStatusPublished, true, 1)
	f.seed(models.ArtworkStatusDraft, false, 1)

	related, err := f.svc.Related(context.Background(), a.ID, nil, 0)

	require.NoError(t, err)
	require.Len(t, related, 1)
	assert.Equal(t, sibling.ID, related[0].ID)

	_, err = f.svc.Related(context.Background(), uuid.New(), nil, 0)
	assertKind(t, err, KindNotFound)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindForbidden, KindOf(fmt.Errorf("wrapped: %w", Forbidden("no"))))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}
