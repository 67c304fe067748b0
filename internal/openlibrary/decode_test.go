package openlibrary

import (
	"testing"

	"reader/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeReadingLog_RequiredFields(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"not json", `<html>`, ""},
		{"missing entries", `{"numFound":1}`, "reading_log_entries"},
		{"missing work", `{"reading_log_entries":[{}]}`, "reading_log_entries[0].work.key"},
		{"missing work key", `{"reading_log_entries":[{"work":{"title":"x"}}]}`, "reading_log_entries[0].work.key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := decodeReadingLog([]byte(tt.body))
			var m *MalformedResponseError
			require.ErrorAs(t, err, &m)
			assert.Equal(t, tt.field, m.Field)
			assert.Equal(t, "reading log", m.Endpoint)
		})
	}
}

func TestDecodeReadingLog_OptionalDefaults(t *testing.T) {
	books, total, err := decodeReadingLog([]byte(`{"reading_log_entries":[{"work":{"key":"/works/OL1W","cover_id":null}}]}`))
	require.NoError(t, err)
	assert.Equal(t, 1, total, "numFound defaults to the page size")
	require.Len(t, books, 1)
	assert.Equal(t, models.Book{WorkID: "OL1W"}, books[0])
}

func TestDecodeWorkAndEdition(t *testing.T) {
	_, _, err := decodeWork([]byte(`{"key":"/works/OL1W"}`))
	var m *MalformedResponseError
	require.ErrorAs(t, err, &m)
	assert.Equal(t, "title", m.Field)

	book, authors, err := decodeEdition([]byte(`{"key":"/books/OL1M","title":"Emma","isbn_10":["0141439580"],"authors":[{"key":"/authors/OL9A"}],"ocaid":"emma00"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"0141439580"}, book.ISBN)
	assert.Equal(t, "emma00", book.IAID)
	assert.Equal(t, []string{"/authors/OL9A"}, authors)
	assert.Empty(t, book.WorkID)
}

func TestDecodeAuthor_RequiresName(t *testing.T) {
	_, err := decodeAuthor([]byte(`{"key":"/authors/OL1A"}`))
	var m *MalformedResponseError
	require.ErrorAs(t, err, &m)
	assert.Equal(t, "name", m.Field)
}

func TestSeedType(t *testing.T) {
	assert.Equal(t, models.SeedWork, seedType("", "/works/OL1W"))
	assert.Equal(t, models.SeedEdition, seedType("", "/books/OL1M"))
	assert.Equal(t, models.SeedAuthor, seedType("author", "/whatever"))
	assert.Equal(t, models.SeedSubject, seedType("", "/subjects/place:london"))
	assert.Equal(t, models.SeedOther, seedType("list", "/people/x"))
}
