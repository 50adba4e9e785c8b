package database

const (
	SortDateCreatedAsc  = "date_created_asc"
	SortDateCreatedDesc = "date_created_desc"
	SortDatePostedAsc   = "date_posted_asc"
	SortDatePostedDesc  = "date_posted_desc"
	SortFileNameAsc     = "file_name_asc"
	SortFileNameDesc    = "file_name_desc"
	SortRatingDesc      = "rating_desc"
	SortVisitsDesc      = "visits_desc"
	SortRandom          = "random"
	SortRankAsc         = "rank_asc"
)

const DefaultSortOrder = SortDateCreatedDesc

// IsValidSortOrder checks if a string is a valid sort order constant
func IsValidSortOrder(order string) bool {
	switch order {
	case SortDateCreatedAsc, SortDateCreatedDesc, SortDatePostedAsc, SortDatePostedDesc,
		SortFileNameAsc, SortFileNameDesc, SortRatingDesc, SortVisitsDesc, SortRandom, SortRankAsc:
		return true
	default:
		return false
	}
}

// PwgOrder translates a sort order constant into the "order" clause the
// Piwigo API expects for pwg.categories.getImages.
func PwgOrder(order string) string {
	switch order {
	case SortDateCreatedAsc:
		return "date_creation asc"
	case SortDateCreatedDesc:
		return "date_creation desc"
	case SortDatePostedAsc:
		return "date_available asc"
	case SortDatePostedDesc:
		return "date_available desc"
	case SortFileNameAsc:
		return "file asc"
	case SortFileNameDesc:
		return "file desc"
	case SortRatingDesc:
		return "rating_score desc"
	case SortVisitsDesc:
		return "hit desc"
	case SortRandom:
		return "random"
	case SortRankAsc:
		return "rank asc"
	default:
		return "date_creation desc"
	}
}
