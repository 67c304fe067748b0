package openlibrary

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"reader/internal/models"
)

// loggedDateLayout is the reading-log timestamp format, e.g. "2023/06/19, 17:50:45"
const loggedDateLayout = "2006/01/02, 15:04:05"

// loanExpiryLayouts are the formats seen in loans.json
var loanExpiryLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"}

func unmarshal(endpoint string, data []byte, target any) error {
	if err := json.Unmarshal(data, target); err != nil {
		return malformed(endpoint, "", err.Error())
	}
	return nil
}

// olid returns the last path segment of an Open Library key
func olid(key string) string {
	key = strings.TrimSuffix(key, "/")
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[i+1:]
	}
	return key
}

type readingLogPage struct {
	NumFound *int               `json:"numFound"`
	Entries  *[]readingLogEntry `json:"reading_log_entries"`
}

type readingLogEntry struct {
	Work *struct {
		Key               string   `json:"key"`
		Title             string   `json:"title"`
		AuthorNames       []string `json:"author_names"`
		FirstPublishYear  *int     `json:"first_publish_year"`
		CoverID           *int     `json:"cover_id"`
		CoverEditionKey   string   `json:"cover_edition_key"`
		LendingEdition    string   `json:"lending_edition_s"`
		LendingIdentifier string   `json:"lending_identifier_s"`
		Availability      *struct {
			Status string `json:"status"`
		} `json:"availability"`
	} `json:"work"`
	LoggedEdition string `json:"logged_edition"`
	LoggedDate    string `json:"logged_date"`
}

// decodeReadingLog decodes one page of /people/{user}/books/{shelf}.json
func decodeReadingLog(data []byte) ([]models.Book, int, error) {
	const endpoint = "reading log"

	var page readingLogPage
	if err := unmarshal(endpoint, data, &page); err != nil {
		return nil, 0, err
	}
	if page.Entries == nil {
		return nil, 0, malformed(endpoint, "reading_log_entries", "missing")
	}

	books := make([]models.Book, 0, len(*page.Entries))
	for i, entry := range *page.Entries {
		if entry.Work == nil || entry.Work.Key == "" {
			return nil, 0, malformed(endpoint, "reading_log_entries["+strconv.Itoa(i)+"].work.key", "missing")
		}
		w := entry.Work

		book := models.Book{
			WorkID:         olid(w.Key),
			Title:          w.Title,
			Authors:        w.AuthorNames,
			CoverEditionID: w.CoverEditionKey,
			IAID:           w.LendingIdentifier,
		}
		switch {
		case entry.LoggedEdition != "":
			book.EditionID = olid(entry.LoggedEdition)
		case w.CoverEditionKey != "":
			book.EditionID = w.CoverEditionKey
		default:
			book.EditionID = w.LendingEdition
		}
		if w.CoverID != nil {
			book.CoverImageID = *w.CoverID
		}
		if w.FirstPublishYear != nil {
			book.PublishDate = strconv.Itoa(*w.FirstPublishYear)
		}
		if w.Availability != nil {
			book.Availability = w.Availability.Status
		}
		if t, err := time.Parse(loggedDateLayout, entry.LoggedDate); err == nil {
			book.AddedDate = &t
		}
		books = append(books, book)
	}

	total := len(books)
	if page.NumFound != nil {
		total = *page.NumFound
	}
	return books, total, nil
}

type listsPayload struct {
	Entries *[]struct {
		URL        string `json:"url"`
		Name       string `json:"name"`
		SeedCount  int    `json:"seed_count"`
		LastUpdate string `json:"last_update"`
	} `json:"entries"`
}

// decodeLists decodes /people/{user}/lists.json
func decodeLists(data []byte) ([]models.BookList, error) {
	const endpoint = "lists"

	var payload listsPayload
	if err := unmarshal(endpoint, data, &payload); err != nil {
		return nil, err
	}
	if payload.Entries == nil {
		return nil, malformed(endpoint, "entries", "missing")
	}

	lists := make([]models.BookList, 0, len(*payload.Entries))
	for i, e := range *payload.Entries {
		if e.URL == "" {
			return nil, malformed(endpoint, "entries["+strconv.Itoa(i)+"].url", "missing")
		}
		lists = append(lists, models.BookList{
			URL:        e.URL,
			Name:       e.Name,
			SeedCount:  e.SeedCount,
			LastUpdate: e.LastUpdate,
		})
	}
	return lists, nil
}

type seedsPayload struct {
	Entries *[]struct {
		URL   string `json:"url"`
		Type  string `json:"type"`
		Title string `json:"title"`
	} `json:"entries"`
}

// decodeSeeds decodes {listUrl}/seeds.json
func decodeSeeds(data []byte) ([]models.Seed, error) {
	const endpoint = "seeds"

	var payload seedsPayload
	if err := unmarshal(endpoint, data, &payload); err != nil {
		return nil, err
	}
	if payload.Entries == nil {
		return nil, malformed(endpoint, "entries", "missing")
	}

	seeds := make([]models.Seed, 0, len(*payload.Entries))
	for i, e := range *payload.Entries {
		if e.URL == "" {
			return nil, malformed(endpoint, "entries["+strconv.Itoa(i)+"].url", "missing")
		}
		seeds = append(seeds, models.Seed{
			URL:   e.URL,
			Type:  seedType(e.Type, e.URL),
			Title: e.Title,
		})
	}
	return seeds, nil
}

// seedType trusts the declared type and falls back to the URL prefix
func seedType(declared, url string) models.SeedType {
	switch models.SeedType(declared) {
	case models.SeedWork, models.SeedEdition, models.SeedAuthor, models.SeedSubject:
		return models.SeedType(declared)
	}
	switch {
	case strings.HasPrefix(url, "/works/"):
		return models.SeedWork
	case strings.HasPrefix(url, "/books/"):
		return models.SeedEdition
	case strings.HasPrefix(url, "/authors/"):
		return models.SeedAuthor
	case strings.HasPrefix(url, "/subjects/"):
		return models.SeedSubject
	default:
		return models.SeedOther
	}
}

type keyRef struct {
	Key string `json:"key"`
}

type workPayload struct {
	Key              string `json:"key"`
	Title            string `json:"title"`
	FirstPublishDate string `json:"first_publish_date"`
	Covers           []int  `json:"covers"`
	Authors          []struct {
		Author keyRef `json:"author"`
	} `json:"authors"`
}

// decodeWork decodes /works/{OLID}.json; author keys are returned for resolution
func decodeWork(data []byte) (models.Book, []string, error) {
	const endpoint = "work"

	var w workPayload
	if err := unmarshal(endpoint, data, &w); err != nil {
		return models.Book{}, nil, err
	}
	if w.Key == "" {
		return models.Book{}, nil, malformed(endpoint, "key", "missing")
	}
	if w.Title == "" {
		return models.Book{}, nil, malformed(endpoint, "title", "missing")
	}

	book := models.Book{
		WorkID:      olid(w.Key),
		Title:       w.Title,
		PublishDate: w.FirstPublishDate,
	}
	if len(w.Covers) > 0 && w.Covers[0] > 0 {
		book.CoverImageID = w.Covers[0]
	}

	var authorKeys []string
	for _, a := range w.Authors {
		if a.Author.Key != "" {
			authorKeys = append(authorKeys, a.Author.Key)
		}
	}
	return book, authorKeys, nil
}

type editionPayload struct {
	Key         string   `json:"key"`
	Title       string   `json:"title"`
	PublishDate string   `json:"publish_date"`
	Publishers  []string `json:"publishers"`
	ISBN13      []string `json:"isbn_13"`
	ISBN10      []string `json:"isbn_10"`
	Covers      []int    `json:"covers"`
	OCAID       string   `json:"ocaid"`
	Works       []keyRef `json:"works"`
	Authors     []keyRef `json:"authors"`
}

// decodeEdition decodes /books/{OLID}.json; author keys are returned for resolution
func decodeEdition(data []byte) (models.Book, []string, error) {
	const endpoint = "edition"

	var e editionPayload
	if err := unmarshal(endpoint, data, &e); err != nil {
		return models.Book{}, nil, err
	}
	if e.Key == "" {
		return models.Book{}, nil, malformed(endpoint, "key", "missing")
	}
	if e.Title == "" {
		return models.Book{}, nil, malformed(endpoint, "title", "missing")
	}

	book := models.Book{
		EditionID:   olid(e.Key),
		Title:       e.Title,
		PublishDate: e.PublishDate,
		IAID:        e.OCAID,
	}
	if len(e.Works) > 0 {
		book.WorkID = olid(e.Works[0].Key)
	}
	if len(e.Publishers) > 0 {
		book.Publisher = e.Publishers[0]
	}
	if len(e.Covers) > 0 && e.Covers[0] > 0 {
		book.CoverImageID = e.Covers[0]
	}
	if isbn := append(append([]string{}, e.ISBN13...), e.ISBN10...); len(isbn) > 0 {
		book.ISBN = isbn
	}

	var authorKeys []string
	for _, a := range e.Authors {
		if a.Key != "" {
			authorKeys = append(authorKeys, a.Key)
		}
	}
	return book, authorKeys, nil
}

type authorPayload struct {
	Key       string `json:"key"`
	Name      string `json:"name"`
	BirthDate string `json:"birth_date"`
	Photos    []int  `json:"photos"`
}

// decodeAuthor decodes /authors/{OLID}.json
func decodeAuthor(data []byte) (models.Author, error) {
	const endpoint = "author"

	var a authorPayload
	if err := unmarshal(endpoint, data, &a); err != nil {
		return models.Author{}, err
	}
	if a.Key == "" {
		return models.Author{}, malformed(endpoint, "key", "missing")
	}
	if a.Name == "" {
		return models.Author{}, malformed(endpoint, "name", "missing")
	}

	author := models.Author{
		Key:       olid(a.Key),
		Name:      a.Name,
		BirthDate: a.BirthDate,
	}
	if len(a.Photos) > 0 && a.Photos[0] > 0 {
		author.PhotoID = a.Photos[0]
	}
	return author, nil
}

type loansPayload struct {
	Loans *[]struct {
		OCAID  string `json:"ocaid"`
		Book   string `json:"book"`
		Expiry string `json:"expiry"`
	} `json:"loans"`
}

// decodeLoans decodes /account/loans.json into a map keyed by IA identifier
func decodeLoans(data []byte) (map[string]models.Loan, error) {
	const endpoint = "loans"

	var payload loansPayload
	if err := unmarshal(endpoint, data, &payload); err != nil {
		return nil, err
	}
	if payload.Loans == nil {
		return nil, malformed(endpoint, "loans", "missing")
	}

	loans := make(map[string]models.Loan, len(*payload.Loans))
	for i, l := range *payload.Loans {
		if l.OCAID == "" {
			return nil, malformed(endpoint, "loans["+strconv.Itoa(i)+"].ocaid", "missing")
		}
		loan := models.Loan{IAID: l.OCAID}
		if l.Book != "" {
			loan.EditionID = olid(l.Book)
		}
		for _, layout := range loanExpiryLayouts {
			if t, err := time.Parse(layout, l.Expiry); err == nil {
				loan.Expiry = &t
				break
			}
		}
		loans[loan.IAID] = loan
	}
	return loans, nil
}
