package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOpenLibrary serves one book on want-to-read and records requests
type fakeOpenLibrary struct {
	mu    sync.Mutex
	hits  map[string]int
	forms []string
}

func (f *fakeOpenLibrary) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func (f *fakeOpenLibrary) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/people/mek/books/{shelf}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.hits[r.URL.Path]++
		f.mu.Unlock()

		if r.PathValue("shelf") == "want-to-read.json" && r.URL.Query().Get("page") == "1" {
			fmt.Fprint(w, `{"numFound":1,"reading_log_entries":[
				{"work":{"key":"/works/OL1W","title":"Dune","author_names":["Frank Herbert"],"first_publish_year":1965},"logged_edition":"/books/OL1M","logged_date":"2023/06/19, 17:50:45"}]}`)
			return
		}
		fmt.Fprint(w, `{"numFound":0,"reading_log_entries":[]}`)
	})
	mux.HandleFunc("POST /works/{work}/bookshelves.json", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.mu.Lock()
		f.forms = append(f.forms, r.PostForm.Encode())
		f.mu.Unlock()
		fmt.Fprint(w, `{"works":[]}`)
	})
	mux.HandleFunc("/account/loans.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"loans":[{"ocaid":"dune00herb","book":"/books/OL1M"}]}`)
	})
	return mux
}

func setup(t *testing.T) *fakeOpenLibrary {
	t.Helper()
	fake := &fakeOpenLibrary{hits: make(map[string]int)}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	t.Setenv("READER_OL_BASE_URL", srv.URL)
	t.Setenv("READER_OL_USERNAME", "mek")
	t.Setenv("READER_OL_SESSION", "secret")
	t.Setenv("READER_OL_RPS", "1000")
	t.Setenv("READER_OL_MAX_RETRIES", "0")
	t.Setenv("READER_STORAGE_BACKEND", "file")
	t.Setenv("READER_DATA_DIR", t.TempDir())
	t.Setenv("READER_LOG_LEVEL", "error")
	return fake
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), err
}

func TestShelvesServedFromCacheOnSecondRun(t *testing.T) {
	fake := setup(t)

	out, err := runCLI(t, "shelves")
	require.NoError(t, err)
	assert.Contains(t, out, "want-to-read")
	assert.Contains(t, out, "Want to Read")
	assert.Equal(t, 1, fake.count("/people/mek/books/want-to-read.json"))

	_, err = runCLI(t, "shelves")
	require.NoError(t, err)
	assert.Equal(t, 1, fake.count("/people/mek/books/want-to-read.json"), "second run should hit the cache")

	_, err = runCLI(t, "shelves", "--refresh")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.count("/people/mek/books/want-to-read.json"))
}

func TestMovePatchesCache(t *testing.T) {
	fake := setup(t)

	_, err := runCLI(t, "shelves")
	require.NoError(t, err)

	out, err := runCLI(t, "move", "OL1W", "already-read")
	require.NoError(t, err)
	assert.Equal(t, "Moved OL1W to already-read\n", out)
	require.Len(t, fake.forms, 1)
	assert.Equal(t, "action=add&bookshelf_id=3&edition_id=%2Fbooks%2FOL1M", fake.forms[0])

	out, err = runCLI(t, "shelf", "already-read")
	require.NoError(t, err)
	assert.Contains(t, out, "Already Read: 1 books")
	assert.Contains(t, out, "Dune")

	out, err = runCLI(t, "shelf", "want-to-read")
	require.NoError(t, err)
	assert.Contains(t, out, "Want to Read: 0 books")
	assert.Equal(t, 1, fake.count("/people/mek/books/want-to-read.json"))
}

func TestSortAndVisibility(t *testing.T) {
	setup(t)

	_, err := runCLI(t, "sort", "want-to-read", "title")
	require.Error(t, err, "shelf not cached yet")

	_, err = runCLI(t, "shelves")
	require.NoError(t, err)

	out, err := runCLI(t, "sort", "want-to-read", "title", "--desc")
	require.NoError(t, err)
	assert.Contains(t, out, "sorted by title desc")

	_, err = runCLI(t, "sort", "want-to-read", "rating")
	assert.Error(t, err)

	out, err = runCLI(t, "visibility", "already-read", "off")
	require.NoError(t, err)
	assert.Equal(t, "Already Read is now hidden\n", out)

	out, err = runCLI(t, "shelves")
	require.NoError(t, err)
	assert.NotContains(t, out, "already-read")

	out, err = runCLI(t, "shelves", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "already-read")
}

func TestLoansAndLogout(t *testing.T) {
	fake := setup(t)

	out, err := runCLI(t, "loans")
	require.NoError(t, err)
	assert.Contains(t, out, "dune00herb")
	assert.Contains(t, out, "OL1M")

	_, err = runCLI(t, "shelves")
	require.NoError(t, err)

	out, err = runCLI(t, "logout")
	require.NoError(t, err)
	assert.Equal(t, "Local cache cleared\n", out)

	_, err = runCLI(t, "shelves")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.count("/people/mek/books/want-to-read.json"), "cache was cleared")
}

func TestListWithoutSelection(t *testing.T) {
	setup(t)

	_, err := runCLI(t, "list")
	assert.ErrorContains(t, err, "no list selected")
}

func TestArgumentValidation(t *testing.T) {
	setup(t)

	_, err := runCLI(t, "move", "OL1W")
	assert.Error(t, err)

	_, err = runCLI(t, "visibility", "already-read", "maybe")
	assert.Error(t, err)
}
