package openlibrary

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"reader/internal/apperr"
	"reader/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(Config{
		BaseURL:           srv.URL,
		Username:          "mek",
		Session:           "secret-session",
		UserAgent:         "reader-test",
		RequestsPerSecond: 1000,
		MaxRetries:        2,
		RetryBackoff:      time.Millisecond,
		PageSize:          2,
	}, zap.NewNop())
}

func TestClient_FetchSingleShelfPaginates(t *testing.T) {
	var pages []string
	mux := http.NewServeMux()
	mux.HandleFunc("/people/mek/books/want-to-read.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "reader-test", r.Header.Get("User-Agent"))
		if cookie, err := r.Cookie("session"); assert.NoError(t, err) {
			assert.Equal(t, "secret-session", cookie.Value)
		}
		assert.Equal(t, "2", r.URL.Query().Get("limit"))

		page := r.URL.Query().Get("page")
		pages = append(pages, page)
		switch page {
		case "1":
			fmt.Fprint(w, `{"numFound":3,"reading_log_entries":[
				{"work":{"key":"/works/OL1W","title":"Dune","author_names":["Frank Herbert"],"first_publish_year":1965,"cover_id":11},"logged_edition":"/books/OL1M","logged_date":"2023/06/19, 17:50:45"},
				{"work":{"key":"/works/OL2W","title":"Emma"},"logged_date":""}]}`)
		default:
			fmt.Fprint(w, `{"numFound":3,"reading_log_entries":[{"work":{"key":"/works/OL3W","title":"Ubik","cover_edition_key":"OL3M"}}]}`)
		}
	})
	client := newTestClient(t, mux)

	shelf, err := client.FetchSingleShelf(context.Background(), "want-to-read")
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2"}, pages)
	assert.Equal(t, "Want to Read", shelf.DisplayName)
	assert.Equal(t, 1, shelf.ProviderID)
	assert.Equal(t, 3, shelf.TotalCount)
	require.Len(t, shelf.Books, 3)

	dune := shelf.Books[0]
	assert.Equal(t, "OL1W", dune.WorkID)
	assert.Equal(t, "OL1M", dune.EditionID)
	assert.Equal(t, "1965", dune.PublishDate)
	assert.Equal(t, 11, dune.CoverImageID)
	require.NotNil(t, dune.AddedDate)
	assert.Equal(t, time.Date(2023, 6, 19, 17, 50, 45, 0, time.UTC), *dune.AddedDate)

	assert.Nil(t, shelf.Books[1].AddedDate)
	assert.Equal(t, "", shelf.Books[1].PublishDate)
	assert.Equal(t, "OL3M", shelf.Books[2].EditionID)
}

func TestClient_FetchSingleShelfStopsOnEmptyPage(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"numFound":10,"reading_log_entries":[]}`)
	}))

	shelf, err := client.FetchSingleShelf(context.Background(), "already-read")
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 10, shelf.TotalCount)
	assert.Empty(t, shelf.Books)
}

func TestClient_FetchShelvesKeepsKeyOrder(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"numFound":0,"reading_log_entries":[]}`)
	}))

	shelves, err := client.FetchShelves(context.Background(), []string{"already-read", "want-to-read"})
	require.NoError(t, err)
	require.Len(t, shelves, 2)
	assert.Equal(t, "already-read", shelves[0].Key)
	assert.Equal(t, 1, shelves[0].DisplayOrder)
	assert.Equal(t, "want-to-read", shelves[1].Key)
	assert.Equal(t, 2, shelves[1].DisplayOrder)
}

func TestClient_MoveBookPostsForm(t *testing.T) {
	var (
		method, path string
		form         url.Values
	)
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		method, path, form = r.Method, r.URL.Path, r.PostForm
		fmt.Fprint(w, `{"success":"bookshelf added"}`)
	}))

	require.NoError(t, client.MoveBook(context.Background(), "/works/OL1W", "OL1M", "currently-reading"))

	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "/works/OL1W/bookshelves.json", path)
	assert.Equal(t, "add", form.Get("action"))
	assert.Equal(t, "2", form.Get("bookshelf_id"))
	assert.Equal(t, "/books/OL1M", form.Get("edition_id"))
}

func TestClient_RemoveBookPostsForm(t *testing.T) {
	var form url.Values
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		form = r.PostForm
	}))

	require.NoError(t, client.RemoveBook(context.Background(), "OL1W"))
	assert.Equal(t, []string{"remove"}, form["action"])
	assert.Equal(t, []string{"-1"}, form["bookshelf_id"])
	assert.NotContains(t, form, "edition_id")
}

func TestClient_StatusErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		sentinel error
		kind     apperr.Kind
	}{
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized, apperr.KindAuth},
		{"forbidden", http.StatusForbidden, ErrUnauthorized, apperr.KindAuth},
		{"not found", http.StatusNotFound, ErrNotFound, apperr.KindNotFound},
		{"bad request", http.StatusBadRequest, nil, apperr.KindServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))

			_, err := client.FetchBookLists(context.Background())
			require.Error(t, err)
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}
			var statusErr *StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, tt.status, statusErr.Code)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
			assert.Equal(t, int32(1), calls.Load(), "4xx is not retried")
		})
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"entries":[]}`)
	}))

	lists, err := client.FetchBookLists(context.Background())
	require.NoError(t, err)
	assert.Empty(t, lists)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := client.FetchBookLists(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, apperr.KindServer, apperr.KindOf(err))
}

func TestClient_TransportErrorIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client := NewClient(Config{
		BaseURL:           srv.URL,
		Username:          "mek",
		RequestsPerSecond: 1000,
		RetryBackoff:      time.Millisecond,
	}, zap.NewNop())

	_, err := client.FetchBookLists(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.KindNetwork, apperr.KindOf(err))
}

func TestClient_MalformedPayload(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"size":3}`)
	}))

	_, err := client.FetchListSeeds(context.Background(), "/people/mek/lists/OL1L")
	var malformedErr *MalformedResponseError
	require.ErrorAs(t, err, &malformedErr)
	assert.Equal(t, "entries", malformedErr.Field)
	assert.Equal(t, apperr.KindServer, apperr.KindOf(err))
}

func TestClient_MissingCredentials(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1"}, zap.NewNop())
	ctx := context.Background()

	_, err := client.FetchSingleShelf(ctx, "want-to-read")
	assert.ErrorIs(t, err, ErrUnauthorized)

	err = client.RemoveBook(ctx, "OL1W")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = client.FetchUserLoans(ctx)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestClient_UnknownShelf(t *testing.T) {
	client := newTestClient(t, http.NotFoundHandler())

	_, err := client.FetchSingleShelf(context.Background(), "favourites")
	assert.ErrorIs(t, err, ErrNotFound)

	err = client.MoveBook(context.Background(), "OL1W", "", "favourites")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_ResolveSeeds(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/works/OL1W.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"key":"/works/OL1W","title":"Dune","covers":[5],"authors":[{"author":{"key":"/authors/OL1A"}}]}`)
	})
	mux.HandleFunc("/books/OL2M.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"key":"/books/OL2M","title":"Emma","works":[{"key":"/works/OL2W"}],"publishers":["Penguin"],"isbn_13":["9780141439587"],"publish_date":"2003"}`)
	})
	mux.HandleFunc("/authors/OL1A.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"key":"/authors/OL1A","name":"Frank Herbert","birth_date":"8 October 1920","photos":[42]}`)
	})
	client := newTestClient(t, mux)

	seeds := []models.Seed{
		{URL: "/works/OL1W", Type: models.SeedWork},
		{URL: "/subjects/science_fiction", Type: models.SeedSubject},
		{URL: "/authors/OL1A", Type: models.SeedAuthor},
		{URL: "/books/OL2M", Type: models.SeedEdition},
	}
	ctx := context.Background()

	books, err := client.FetchBooksFromSeeds(ctx, seeds)
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, "Dune", books[0].Title)
	assert.Equal(t, []string{"Frank Herbert"}, books[0].Authors)
	assert.Equal(t, 5, books[0].CoverImageID)
	assert.Equal(t, "OL2W", books[1].WorkID)
	assert.Equal(t, "OL2M", books[1].EditionID)
	assert.Equal(t, "Penguin", books[1].Publisher)

	authors, err := client.FetchAuthorsFromSeeds(ctx, seeds)
	require.NoError(t, err)
	require.Len(t, authors, 1)
	assert.Equal(t, models.Author{Key: "OL1A", Name: "Frank Herbert", BirthDate: "8 October 1920", PhotoID: 42}, authors[0])
}

func TestClient_ResolveSeedsFailsAsAWhole(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := client.FetchBooksFromSeeds(context.Background(), []models.Seed{{URL: "/works/OL1W", Type: models.SeedWork}})
	require.Error(t, err)
	var statusErr *StatusError
	assert.True(t, errors.As(err, &statusErr))
}

func TestClient_FetchUserLoans(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/account/loans.json", r.URL.Path)
		fmt.Fprint(w, `{"loans":[{"ocaid":"dune00herb","book":"/books/OL1M","expiry":"2024-03-01 10:00:00"},{"ocaid":"emma00aust"}]}`)
	}))

	loans, err := client.FetchUserLoans(context.Background())
	require.NoError(t, err)
	require.Len(t, loans, 2)
	assert.Equal(t, "OL1M", loans["dune00herb"].EditionID)
	require.NotNil(t, loans["dune00herb"].Expiry)
	assert.Nil(t, loans["emma00aust"].Expiry)
}

func TestClient_FetchListSeedsAcceptsAbsoluteURL(t *testing.T) {
	var path, session string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if c, err := r.Cookie("session"); err == nil {
			session = c.Value
		}
		fmt.Fprint(w, `{"entries":[{"url":"/works/OL1W","type":"work"},{"url":"/authors/OL1A"}]}`)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, Session: "secret-session", RequestsPerSecond: 1000}, zap.NewNop())
	seeds, err := client.FetchListSeeds(context.Background(), srv.URL+"/people/mek/lists/OL1L/")
	require.NoError(t, err)
	assert.Equal(t, "/people/mek/lists/OL1L/seeds.json", path)
	assert.Equal(t, "secret-session", session)
	require.Len(t, seeds, 2)
	assert.Equal(t, models.SeedAuthor, seeds[1].Type)
}

func TestClient_FetchListSeedsRejectsOtherHosts(t *testing.T) {
	var foreignHits atomic.Int32
	foreign := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		foreignHits.Add(1)
		fmt.Fprint(w, `{"entries":[]}`)
	}))
	defer foreign.Close()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"entries":[]}`)
	}))

	_, err := client.FetchListSeeds(context.Background(), foreign.URL+"/people/x/lists/OL1L")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrForeignURL)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Zero(t, foreignHits.Load())
}
