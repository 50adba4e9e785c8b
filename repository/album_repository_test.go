package repository

import (
	"errors"
	"sort"
	"testing"

	"gorm.io/gorm"

	"github.com/camden-git/piwigosync/models"
	"github.com/camden-git/piwigosync/piwigo"
)

func testImages(ids ...int64) []models.Image {
	imgs := make([]models.Image, 0, len(ids))
	for _, id := range ids {
		imgs = append(imgs, models.Image{PwgID: id, FileName: "img.jpg"})
	}
	return imgs
}

func TestAlbumRepository_GetOrCreate(t *testing.T) {
	repo := NewAlbumRepository(setupTestDB(t))

	album, err := repo.GetOrCreate(12, nil)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if album.PwgID != 12 {
		t.Fatalf("PwgID = %d, want 12", album.PwgID)
	}
	if !album.HasUnknownCounts() {
		t.Errorf("fresh album counts = %d/%d, want unknown sentinel", album.NbImages, album.TotalNbImages)
	}

	// second call returns the same row, not a new placeholder
	if err := repo.SetCounts(12, 5, 7); err != nil {
		t.Fatalf("SetCounts: %v", err)
	}
	again, err := repo.GetOrCreate(12, nil)
	if err != nil {
		t.Fatalf("second GetOrCreate: %v", err)
	}
	if again.NbImages != 5 || again.TotalNbImages != 7 {
		t.Errorf("counts = %d/%d, want 5/7", again.NbImages, again.TotalNbImages)
	}
}

func TestAlbumRepository_UpsertFromSummary(t *testing.T) {
	repo := NewAlbumRepository(setupTestDB(t))

	parent := int64(3)
	summary := piwigo.AlbumSummary{
		ID:            20,
		Name:          "Vacances",
		Comment:       "été 2025",
		NbImages:      40,
		TotalNbImages: 64,
		ParentID:      &parent,
	}
	if err := repo.UpsertFromSummary(summary); err != nil {
		t.Fatalf("UpsertFromSummary (create): %v", err)
	}
	album, err := repo.GetByID(20)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if album.Name != "Vacances" || album.NbImages != 40 || album.TotalNbImages != 64 {
		t.Fatalf("created album = %+v", album)
	}
	if album.Comment == nil || *album.Comment != "été 2025" {
		t.Errorf("comment = %v", album.Comment)
	}

	firstUpdated := album.UpdatedAt

	// identical summary leaves the row alone
	if err := repo.UpsertFromSummary(summary); err != nil {
		t.Fatalf("UpsertFromSummary (no-op): %v", err)
	}
	album, _ = repo.GetByID(20)
	if album.UpdatedAt != firstUpdated {
		t.Error("no-op upsert should not touch the row")
	}

	summary.Name = "Vacances 2025"
	summary.NbImages = 41
	if err := repo.UpsertFromSummary(summary); err != nil {
		t.Fatalf("UpsertFromSummary (update): %v", err)
	}
	album, _ = repo.GetByID(20)
	if album.Name != "Vacances 2025" || album.NbImages != 41 {
		t.Fatalf("updated album = %+v", album)
	}
}

func TestAlbumRepository_ImageAssociations(t *testing.T) {
	repo := NewAlbumRepository(setupTestDB(t))
	if _, err := repo.GetOrCreate(7, nil); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	if err := repo.AddImages(7, testImages(101, 102, 103)); err != nil {
		t.Fatalf("AddImages: %v", err)
	}
	// re-adding an already associated image must not duplicate the link
	if err := repo.AddImages(7, testImages(103, 104)); err != nil {
		t.Fatalf("AddImages (overlap): %v", err)
	}

	ids, err := repo.GetImageIDs(7)
	if err != nil {
		t.Fatalf("GetImageIDs: %v", err)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	want := []int64{101, 102, 103, 104}
	if len(ids) != len(want) {
		t.Fatalf("image IDs = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("image IDs = %v, want %v", ids, want)
		}
	}

	if err := repo.RemoveImages(7, []int64{101, 104}); err != nil {
		t.Fatalf("RemoveImages: %v", err)
	}
	ids, _ = repo.GetImageIDs(7)
	if len(ids) != 2 {
		t.Fatalf("image IDs after removal = %v, want 102 and 103", ids)
	}

	// image rows themselves survive the dissociation
	imageRepo := NewImageRepository(repo.DB)
	if _, err := imageRepo.GetByID(101); err != nil {
		t.Errorf("image 101 should still exist until the orphan purge: %v", err)
	}
}

func TestAlbumRepository_Delete(t *testing.T) {
	repo := NewAlbumRepository(setupTestDB(t))
	if _, err := repo.GetOrCreate(9, nil); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if err := repo.AddImages(9, testImages(201, 202)); err != nil {
		t.Fatalf("AddImages: %v", err)
	}

	if err := repo.Delete(9); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.GetByID(9); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("GetByID after delete = %v, want ErrRecordNotFound", err)
	}
	ids, err := repo.GetImageIDs(9)
	if err != nil {
		t.Fatalf("GetImageIDs: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("associations after delete = %v, want none", ids)
	}

	if err := repo.Delete(9); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("deleting a missing album = %v, want ErrRecordNotFound", err)
	}
}

func TestAlbumRepository_ListChildren(t *testing.T) {
	repo := NewAlbumRepository(setupTestDB(t))

	root := int64(1)
	for _, s := range []piwigo.AlbumSummary{
		{ID: 1, Name: "Racine"},
		{ID: 2, Name: "Zoo", ParentID: &root},
		{ID: 3, Name: "Alpes", ParentID: &root},
		{ID: 4, Name: "Autre racine"},
	} {
		if err := repo.UpsertFromSummary(s); err != nil {
			t.Fatalf("UpsertFromSummary(%d): %v", s.ID, err)
		}
	}

	children, err := repo.ListChildren(1)
	if err != nil {
		t.Fatalf("ListChildren: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("children = %d, want 2", len(children))
	}
	if children[0].Name != "Alpes" || children[1].Name != "Zoo" {
		t.Errorf("children not sorted by name: %s, %s", children[0].Name, children[1].Name)
	}
}

func TestImageRepository_UpsertMany(t *testing.T) {
	repo := NewImageRepository(setupTestDB(t))

	if err := repo.UpsertMany([]models.Image{
		{PwgID: 50, FileName: "a.jpg", Title: "A"},
	}); err != nil {
		t.Fatalf("UpsertMany: %v", err)
	}

	// a full-metadata pass fills in the size
	if err := repo.UpsertMany([]models.Image{
		{PwgID: 50, FileName: "a.jpg", Title: "A", FileSize: 2048},
	}); err != nil {
		t.Fatalf("UpsertMany (full): %v", err)
	}
	img, err := repo.GetByID(50)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if img.FileSize != 2048 {
		t.Fatalf("file size = %d, want 2048", img.FileSize)
	}
	if !img.HasFullMetadata() {
		t.Error("image with a size should report full metadata")
	}

	// a later listing pass without a size must not erase it
	if err := repo.UpsertMany([]models.Image{
		{PwgID: 50, FileName: "a.jpg", Title: "A renamed"},
	}); err != nil {
		t.Fatalf("UpsertMany (partial): %v", err)
	}
	img, _ = repo.GetByID(50)
	if img.Title != "A renamed" {
		t.Errorf("title = %q, listing fields should refresh", img.Title)
	}
	if img.FileSize != 2048 {
		t.Errorf("file size = %d, partial listings must not downgrade metadata", img.FileSize)
	}
}

func TestImageRepository_UpdateFullMetadata(t *testing.T) {
	repo := NewImageRepository(setupTestDB(t))

	if err := repo.UpsertMany([]models.Image{
		{PwgID: 60, FileName: "b.jpg", Title: "B"},
	}); err != nil {
		t.Fatalf("UpsertMany: %v", err)
	}

	created := int64(1752517800)
	if err := repo.UpdateFullMetadata(&piwigo.ImageData{
		ID: 60, Title: "B", FileName: "b.jpg", FileSize: 3145728, Rating: 4.25, Visits: 57, DateCreated: &created,
	}); err != nil {
		t.Fatalf("UpdateFullMetadata: %v", err)
	}

	img, err := repo.GetByID(60)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if img.FileSize != 3145728 || img.Rating != 4.25 || img.Visits != 57 {
		t.Errorf("metadata = size %d rating %v visits %d", img.FileSize, img.Rating, img.Visits)
	}
	if img.DateCreated == nil || *img.DateCreated != created {
		t.Errorf("date_created = %v, want %d", img.DateCreated, created)
	}
	if !img.HasFullMetadata() {
		t.Error("image should report full metadata after the update")
	}

	err = repo.UpdateFullMetadata(&piwigo.ImageData{ID: 999, FileName: "ghost.jpg"})
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("updating an uncached image: err = %v, want ErrRecordNotFound", err)
	}
}

func TestImageRepository_PurgeOrphans(t *testing.T) {
	db := setupTestDB(t)
	albums := NewAlbumRepository(db)
	images := NewImageRepository(db)

	if _, err := albums.GetOrCreate(30, nil); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if err := albums.AddImages(30, testImages(301, 302, 303)); err != nil {
		t.Fatalf("AddImages: %v", err)
	}
	if err := albums.RemoveImages(30, []int64{302, 303}); err != nil {
		t.Fatalf("RemoveImages: %v", err)
	}

	purged, err := images.PurgeOrphans()
	if err != nil {
		t.Fatalf("PurgeOrphans: %v", err)
	}
	if purged != 2 {
		t.Fatalf("purged = %d, want 2", purged)
	}
	if _, err := images.GetByID(301); err != nil {
		t.Errorf("image 301 still referenced, should survive: %v", err)
	}
	if _, err := images.GetByID(302); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("image 302 is orphaned, should be purged, got %v", err)
	}
}
