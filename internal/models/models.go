package models

import (
	"fmt"
	"strings"
	"time"
)

// DefaultStaleAfter is how long a synced shelf or list stays fresh
const DefaultStaleAfter = 6 * time.Hour

// DefaultLoanTTL is how long loan status is served from memory
const DefaultLoanTTL = time.Hour

const coversBaseURL = "https://covers.openlibrary.org"

// SortKey selects the field a shelf is ordered by
type SortKey string

const (
	SortByTitle         SortKey = "title"
	SortByAuthor        SortKey = "author"
	SortByDateAdded     SortKey = "dateAdded"
	SortByDatePublished SortKey = "datePublished"
)

// SortKeys lists every supported sort key in menu order
var SortKeys = []SortKey{SortByTitle, SortByAuthor, SortByDateAdded, SortByDatePublished}

// ParseSortKey converts a persisted sort key name into a SortKey
func ParseSortKey(s string) (SortKey, error) {
	for _, k := range SortKeys {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown sort key %q", s)
}

// Book represents an edition-level record on a shelf or list
type Book struct {
	EditionID      string     `json:"editionId,omitempty"`
	WorkID         string     `json:"workId,omitempty"`
	Title          string     `json:"title"`
	Authors        []string   `json:"authors,omitempty"`
	CoverImageID   int        `json:"coverImageId,omitempty"`
	CoverEditionID string     `json:"coverEditionId,omitempty"`
	PublishDate    string     `json:"publishDate,omitempty"`
	Publisher      string     `json:"publisher,omitempty"`
	ISBN           []string   `json:"isbn,omitempty"`
	Availability   string     `json:"availability,omitempty"`
	AddedDate      *time.Time `json:"addedDate,omitempty"`
	IAID           string     `json:"iaId,omitempty"`
}

// CoverURL returns the cover image URL for the given size (S, M or L).
// Falls back from the cover id to the cover edition and then the edition itself.
func (b Book) CoverURL(size string) string {
	switch {
	case b.CoverImageID > 0:
		return fmt.Sprintf("%s/b/id/%d-%s.jpg", coversBaseURL, b.CoverImageID, size)
	case b.CoverEditionID != "":
		return fmt.Sprintf("%s/b/olid/%s-%s.jpg", coversBaseURL, b.CoverEditionID, size)
	case b.EditionID != "":
		return fmt.Sprintf("%s/b/olid/%s-%s.jpg", coversBaseURL, b.EditionID, size)
	default:
		return ""
	}
}

// FirstAuthor returns the display-first author or an empty string
func (b Book) FirstAuthor() string {
	if len(b.Authors) == 0 {
		return ""
	}
	return b.Authors[0]
}

// Author represents an Open Library author record
type Author struct {
	Key       string `json:"key"`
	Name      string `json:"name"`
	BirthDate string `json:"birthDate,omitempty"`
	PhotoID   int    `json:"photoId,omitempty"`
}

// Shelf represents a named reading-log collection
type Shelf struct {
	Key           string     `json:"key"`
	DisplayName   string     `json:"displayName"`
	ProviderName  string     `json:"providerName"`
	ProviderID    int        `json:"providerId"`
	Books         []Book     `json:"books"`
	TotalCount    int        `json:"totalCount"`
	SortKey       SortKey    `json:"sortKey"`
	SortAscending bool       `json:"sortAscending"`
	IsVisible     bool       `json:"isVisible"`
	DisplayOrder  int        `json:"displayOrder"`
	LastSynced    *time.Time `json:"lastSynced,omitempty"`
}

// IsStale reports whether the shelf needs a refresh at now.
// A shelf that was never synced is always stale.
func (s Shelf) IsStale(now time.Time, window time.Duration) bool {
	return isStale(s.LastSynced, now, window)
}

// Normalize restores TotalCount >= len(Books) and a known sort key
func (s *Shelf) Normalize() {
	if s.TotalCount < len(s.Books) {
		s.TotalCount = len(s.Books)
	}
	if _, err := ParseSortKey(string(s.SortKey)); err != nil {
		s.SortKey = SortByDateAdded
	}
}

// ShelfDefinition describes one of the reading-log shelves Open Library exposes
type ShelfDefinition struct {
	Key          string
	DisplayName  string
	ProviderName string
	ProviderID   int
}

// DefaultShelves are the reading-log shelves in display order
var DefaultShelves = []ShelfDefinition{
	{Key: "want-to-read", DisplayName: "Want to Read", ProviderName: "want-to-read", ProviderID: 1},
	{Key: "currently-reading", DisplayName: "Currently Reading", ProviderName: "currently-reading", ProviderID: 2},
	{Key: "already-read", DisplayName: "Already Read", ProviderName: "already-read", ProviderID: 3},
}

// DefaultShelfKeys returns the keys of DefaultShelves
func DefaultShelfKeys() []string {
	keys := make([]string, 0, len(DefaultShelves))
	for _, d := range DefaultShelves {
		keys = append(keys, d.Key)
	}
	return keys
}

// LookupShelf finds a shelf definition by key
func LookupShelf(key string) (ShelfDefinition, bool) {
	for i, d := range DefaultShelves {
		if d.Key == key {
			return DefaultShelves[i], true
		}
	}
	return ShelfDefinition{}, false
}

// NewShelf creates an empty, never-synced shelf for a definition
func NewShelf(def ShelfDefinition, order int) Shelf {
	return Shelf{
		Key:           def.Key,
		DisplayName:   def.DisplayName,
		ProviderName:  def.ProviderName,
		ProviderID:    def.ProviderID,
		Books:         []Book{},
		SortKey:       SortByDateAdded,
		SortAscending: false,
		IsVisible:     true,
		DisplayOrder:  order,
	}
}

// SeedType is the kind of item a list seed points to
type SeedType string

const (
	SeedWork    SeedType = "work"
	SeedEdition SeedType = "edition"
	SeedAuthor  SeedType = "author"
	SeedSubject SeedType = "subject"
	SeedOther   SeedType = "other"
)

// Seed is a reference to an item belonging to a user list
type Seed struct {
	URL   string   `json:"url"`
	Type  SeedType `json:"type"`
	Title string   `json:"title,omitempty"`
}

// IsBookLike reports whether the seed resolves to a Book
func (s Seed) IsBookLike() bool {
	return s.Type == SeedWork || s.Type == SeedEdition
}

// OLID returns the last path segment of the seed URL, e.g. OL123W
func (s Seed) OLID() string {
	u := strings.TrimSuffix(s.URL, "/")
	if i := strings.LastIndex(u, "/"); i >= 0 {
		return u[i+1:]
	}
	return u
}

// BookList is the summary of a user-curated list
type BookList struct {
	URL        string `json:"url"`
	Name       string `json:"name"`
	SeedCount  int    `json:"seedCount"`
	LastUpdate string `json:"lastUpdate,omitempty"`
}

// ListSnapshot is the cached, resolved content of a user list
type ListSnapshot struct {
	Books      []Book     `json:"books"`
	Authors    []Author   `json:"authors"`
	LastSynced *time.Time `json:"lastSynced,omitempty"`
}

// IsStale reports whether the list needs a refresh at now
func (l ListSnapshot) IsStale(now time.Time, window time.Duration) bool {
	return isStale(l.LastSynced, now, window)
}

// Items returns the list content as display items, books first
func (l ListSnapshot) Items() []DisplayItem {
	items := make([]DisplayItem, 0, len(l.Books)+len(l.Authors))
	for _, b := range l.Books {
		items = append(items, BookItem{Book: b})
	}
	for _, a := range l.Authors {
		items = append(items, AuthorItem{Author: a})
	}
	return items
}

// Loan is an active Internet Archive borrow
type Loan struct {
	IAID      string     `json:"iaId"`
	EditionID string     `json:"editionId,omitempty"`
	Expiry    *time.Time `json:"expiry,omitempty"`
}

func isStale(lastSynced *time.Time, now time.Time, window time.Duration) bool {
	if lastSynced == nil {
		return true
	}
	return now.Sub(*lastSynced) >= window
}
