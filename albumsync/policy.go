package albumsync

import "github.com/camden-git/piwigosync/piwigo"

// maxSearchPages caps smart search albums, matching the server web UI.
const maxSearchPages = 5

// PagingPlan is the outcome of the smart-album policy for one listing: the
// index of the last page to request and the counts to store on the album.
type PagingPlan struct {
	LastPage      int
	NbImages      int64
	TotalNbImages int64
}

// PlanPaging derives the paging bounds for an album once page 0 has
// reported totalCount. Smart albums (negative IDs) get special caps:
// most-visited and best-rated are limited to a single page, searches to
// maxSearchPages pages. Everything else pages until totalCount is
// exhausted. The plan is computed exactly once per reconciliation, with
// page 0's totalCount; later pages must not alter it.
func PlanPaging(albumID int64, totalCount int64, pageSize int) PagingPlan {
	if pageSize <= 0 {
		pageSize = 1
	}

	lastPage := int((totalCount + int64(pageSize) - 1) / int64(pageSize))
	if lastPage > 0 {
		lastPage--
	}

	switch albumID {
	case piwigo.SmartAlbumVisits, piwigo.SmartAlbumBest:
		// limited to one page of pageSize photos, like the web UI
		capped := min64(totalCount, int64(pageSize))
		return PagingPlan{LastPage: 0, NbImages: capped, TotalNbImages: capped}
	case piwigo.SmartAlbumSearch:
		if lastPage > maxSearchPages-1 {
			lastPage = maxSearchPages - 1
		}
		capped := min64(totalCount, int64(maxSearchPages*pageSize))
		return PagingPlan{LastPage: lastPage, NbImages: capped, TotalNbImages: capped}
	default:
		// favorites, recent, tagged and real albums page to the end
		return PagingPlan{LastPage: lastPage, NbImages: totalCount, TotalNbImages: totalCount}
	}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
