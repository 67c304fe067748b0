package sorting

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"reader/internal/models"
)

var articles = []string{"the ", "a ", "an "}

// SortTitle normalizes a title for ordering: lower-cased, with a leading
// article moved to the end after a comma ("The Hobbit" -> "hobbit, the").
func SortTitle(title string) string {
	t := strings.ToLower(strings.TrimSpace(title))
	for _, a := range articles {
		if !strings.HasPrefix(t, a) {
			continue
		}
		if rest := strings.TrimSpace(t[len(a):]); rest != "" {
			return rest + ", " + strings.TrimSpace(a)
		}
	}
	return t
}

// Sort returns a stably ordered copy of books.
//
// Missing dates (dateAdded, datePublished) always sort last, in both
// directions; ascending only flips the comparison between present values.
func Sort(books []models.Book, key models.SortKey, ascending bool) []models.Book {
	sorted := slices.Clone(books)
	if sorted == nil {
		sorted = []models.Book{}
	}

	dir := 1
	if !ascending {
		dir = -1
	}

	var compare func(a, b models.Book) int
	switch key {
	case models.SortByTitle:
		compare = func(a, b models.Book) int {
			return dir * strings.Compare(SortTitle(a.Title), SortTitle(b.Title))
		}
	case models.SortByAuthor:
		compare = func(a, b models.Book) int {
			return dir * strings.Compare(strings.ToLower(a.FirstAuthor()), strings.ToLower(b.FirstAuthor()))
		}
	case models.SortByDateAdded:
		compare = func(a, b models.Book) int {
			if c, done := nullsLast(a.AddedDate == nil, b.AddedDate == nil); done {
				return c
			}
			return dir * a.AddedDate.Compare(*b.AddedDate)
		}
	case models.SortByDatePublished:
		compare = func(a, b models.Book) int {
			if c, done := nullsLast(a.PublishDate == "", b.PublishDate == ""); done {
				return c
			}
			return dir * comparePublishDates(a.PublishDate, b.PublishDate)
		}
	default:
		return sorted
	}

	slices.SortStableFunc(sorted, compare)
	return sorted
}

// Apply re-orders a shelf's books according to its own sort fields
func Apply(shelf models.Shelf) models.Shelf {
	shelf.Books = Sort(shelf.Books, shelf.SortKey, shelf.SortAscending)
	return shelf
}

func nullsLast(aNull, bNull bool) (int, bool) {
	switch {
	case aNull && bNull:
		return 0, true
	case aNull:
		return 1, true
	case bNull:
		return -1, true
	}
	return 0, false
}

func comparePublishDates(a, b string) int {
	ai, aErr := strconv.Atoi(strings.TrimSpace(a))
	bi, bErr := strconv.Atoi(strings.TrimSpace(b))
	if aErr == nil && bErr == nil {
		return cmp.Compare(ai, bi)
	}
	return strings.Compare(a, b)
}
