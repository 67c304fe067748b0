package openlibrary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"reader/internal/models"
)

const (
	defaultBaseURL = "https://openlibrary.org"
	maxBodySize    = 10 << 20
)

// Config holds the client settings
type Config struct {
	BaseURL           string
	Username          string
	Session           string
	UserAgent         string
	RequestsPerSecond int
	MaxRetries        int
	RetryBackoff      time.Duration
	Timeout           time.Duration
	PageSize          int
	MaxPages          int
	Concurrency       int
}

// Client talks to the Open Library web API on behalf of one signed-in user
type Client struct {
	httpClient  *http.Client
	baseURL     string
	baseHost    string
	username    string
	session     string
	userAgent   string
	limiter     *rate.Limiter
	maxRetries  int
	backoff     time.Duration
	pageSize    int
	maxPages    int
	concurrency int
	logger      *zap.Logger
}

// NewClient creates a client; zero config values fall back to defaults
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "reader/1.0"
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	var baseHost string
	if u, err := url.Parse(cfg.BaseURL); err == nil {
		baseHost = u.Host
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: &LoggingTransport{Logger: logger},
		},
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		baseHost:    baseHost,
		username:    cfg.Username,
		session:     cfg.Session,
		userAgent:   cfg.UserAgent,
		limiter:     rate.NewLimiter(rate.Every(time.Second/time.Duration(cfg.RequestsPerSecond)), 1),
		maxRetries:  cfg.MaxRetries,
		backoff:     cfg.RetryBackoff,
		pageSize:    cfg.PageSize,
		maxPages:    cfg.MaxPages,
		concurrency: cfg.Concurrency,
		logger:      logger,
	}
}

// # Reading log

// FetchShelves fetches every shelf in keys, preserving the order of keys
func (c *Client) FetchShelves(ctx context.Context, keys []string) ([]models.Shelf, error) {
	shelves := make([]models.Shelf, len(keys))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, key := range keys {
		g.Go(func() error {
			shelf, err := c.FetchSingleShelf(ctx, key)
			if err != nil {
				return err
			}
			shelf.DisplayOrder = i + 1
			shelves[i] = shelf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return shelves, nil
}

// FetchSingleShelf pages through one reading-log shelf
func (c *Client) FetchSingleShelf(ctx context.Context, key string) (models.Shelf, error) {
	def, ok := models.LookupShelf(key)
	if !ok {
		return models.Shelf{}, fmt.Errorf("unknown shelf %q: %w", key, ErrNotFound)
	}
	if c.username == "" {
		return models.Shelf{}, fmt.Errorf("no username configured: %w", ErrUnauthorized)
	}

	shelf := models.NewShelf(def, orderOf(key))
	for page := 1; page <= c.maxPages; page++ {
		path := fmt.Sprintf("/people/%s/books/%s.json?page=%d&limit=%d",
			url.PathEscape(c.username), def.ProviderName, page, c.pageSize)

		data, err := c.get(ctx, path)
		if err != nil {
			return models.Shelf{}, err
		}
		books, total, err := decodeReadingLog(data)
		if err != nil {
			return models.Shelf{}, err
		}

		shelf.Books = append(shelf.Books, books...)
		shelf.TotalCount = total
		if len(books) == 0 || len(shelf.Books) >= total {
			break
		}
	}
	shelf.Normalize()

	c.logger.Debug("Fetched shelf",
		zap.String("shelf", key),
		zap.Int("books", len(shelf.Books)),
		zap.Int("total", shelf.TotalCount))
	return shelf, nil
}

func orderOf(key string) int {
	for i, d := range models.DefaultShelves {
		if d.Key == key {
			return i + 1
		}
	}
	return len(models.DefaultShelves) + 1
}

// MoveBook puts the work on the target shelf; Open Library removes it from
// any other reading-log shelf
func (c *Client) MoveBook(ctx context.Context, workID, editionID, targetKey string) error {
	def, ok := models.LookupShelf(targetKey)
	if !ok {
		return fmt.Errorf("unknown shelf %q: %w", targetKey, ErrNotFound)
	}

	form := url.Values{}
	form.Set("action", "add")
	form.Set("bookshelf_id", strconv.Itoa(def.ProviderID))
	if editionID != "" {
		form.Set("edition_id", "/books/"+olid(editionID))
	}

	_, err := c.post(ctx, "/works/"+olid(workID)+"/bookshelves.json", form)
	return err
}

// RemoveBook takes the work off whichever reading-log shelf holds it
func (c *Client) RemoveBook(ctx context.Context, workID string) error {
	form := url.Values{}
	form.Set("action", "remove")
	form.Set("bookshelf_id", "-1")

	_, err := c.post(ctx, "/works/"+olid(workID)+"/bookshelves.json", form)
	return err
}

// # Lists

// FetchBookLists returns the user's curated lists
func (c *Client) FetchBookLists(ctx context.Context) ([]models.BookList, error) {
	if c.username == "" {
		return nil, fmt.Errorf("no username configured: %w", ErrUnauthorized)
	}
	data, err := c.get(ctx, fmt.Sprintf("/people/%s/lists.json?limit=100", url.PathEscape(c.username)))
	if err != nil {
		return nil, err
	}
	return decodeLists(data)
}

// FetchListSeeds returns the raw members of a list
func (c *Client) FetchListSeeds(ctx context.Context, listURL string) ([]models.Seed, error) {
	data, err := c.get(ctx, strings.TrimSuffix(listURL, "/")+"/seeds.json")
	if err != nil {
		return nil, err
	}
	return decodeSeeds(data)
}

// FetchBooksFromSeeds resolves work and edition seeds into books.
// Seeds of other types are skipped; results keep the seed order.
func (c *Client) FetchBooksFromSeeds(ctx context.Context, seeds []models.Seed) ([]models.Book, error) {
	results := make([]*models.Book, len(seeds))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, seed := range seeds {
		if !seed.IsBookLike() {
			continue
		}
		g.Go(func() error {
			book, err := c.fetchBook(ctx, seed)
			if err != nil {
				return err
			}
			results[i] = &book
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	books := make([]models.Book, 0, len(seeds))
	for _, b := range results {
		if b != nil {
			books = append(books, *b)
		}
	}
	return books, nil
}

func (c *Client) fetchBook(ctx context.Context, seed models.Seed) (models.Book, error) {
	var (
		book       models.Book
		authorKeys []string
	)
	switch seed.Type {
	case models.SeedWork:
		data, err := c.get(ctx, "/works/"+seed.OLID()+".json")
		if err != nil {
			return models.Book{}, err
		}
		if book, authorKeys, err = decodeWork(data); err != nil {
			return models.Book{}, err
		}
	default:
		data, err := c.get(ctx, "/books/"+seed.OLID()+".json")
		if err != nil {
			return models.Book{}, err
		}
		if book, authorKeys, err = decodeEdition(data); err != nil {
			return models.Book{}, err
		}
	}

	for _, key := range authorKeys {
		author, err := c.fetchAuthor(ctx, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return models.Book{}, err
		}
		book.Authors = append(book.Authors, author.Name)
	}
	return book, nil
}

// FetchAuthorsFromSeeds resolves author seeds; other seeds are skipped
func (c *Client) FetchAuthorsFromSeeds(ctx context.Context, seeds []models.Seed) ([]models.Author, error) {
	results := make([]*models.Author, len(seeds))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, seed := range seeds {
		if seed.Type != models.SeedAuthor {
			continue
		}
		g.Go(func() error {
			author, err := c.fetchAuthor(ctx, seed.URL)
			if err != nil {
				return err
			}
			results[i] = &author
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	authors := make([]models.Author, 0, len(seeds))
	for _, a := range results {
		if a != nil {
			authors = append(authors, *a)
		}
	}
	return authors, nil
}

func (c *Client) fetchAuthor(ctx context.Context, key string) (models.Author, error) {
	data, err := c.get(ctx, "/authors/"+olid(key)+".json")
	if err != nil {
		return models.Author{}, err
	}
	return decodeAuthor(data)
}

// # Loans

// FetchUserLoans returns the active Internet Archive loans keyed by IA identifier
func (c *Client) FetchUserLoans(ctx context.Context) (map[string]models.Loan, error) {
	if c.session == "" {
		return nil, fmt.Errorf("no session configured: %w", ErrUnauthorized)
	}
	data, err := c.get(ctx, "/account/loans.json")
	if err != nil {
		return nil, err
	}
	return decodeLoans(data)
}

// # Transport

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) post(ctx context.Context, path string, form url.Values) ([]byte, error) {
	if c.session == "" {
		return nil, fmt.Errorf("no session configured: %w", ErrUnauthorized)
	}
	return c.do(ctx, http.MethodPost, path, form)
}

// resolve accepts site-relative paths and absolute URLs on the Open Library
// host. Absolute URLs are rebased onto the configured base URL.
func (c *Client) resolve(path string) (string, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		u, err := url.Parse(path)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrForeignURL, err)
		}
		if !strings.EqualFold(u.Host, c.baseHost) {
			return "", fmt.Errorf("%w: %s", ErrForeignURL, u.Host)
		}
		path = u.RequestURI()
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path, nil
}

// do sends the request with rate limiting, retrying 429, 5xx and transport
// errors with exponential backoff
func (c *Client) do(ctx context.Context, method, path string, form url.Values) ([]byte, error) {
	target, err := c.resolve(path)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for i := 0; i <= c.maxRetries; i++ {
		if i > 0 {
			// Backoff: 1x, 2x, 4x...
			backoff := c.backoff * time.Duration(1<<uint(i-1))
			c.logger.Debug("Retrying Open Library request",
				zap.String("url", target),
				zap.Int("attempt", i+1),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}

		body, retry, err := c.attempt(ctx, method, target, form)
		if err == nil {
			return body, nil
		}
		if !retry {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("after %d retries: %w", c.maxRetries, lastErr)
}

func (c *Client) attempt(ctx context.Context, method, target string, form url.Values) ([]byte, bool, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, false, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	// The session only ever goes to the Open Library host
	if c.session != "" && strings.EqualFold(req.URL.Host, c.baseHost) {
		req.AddCookie(&http.Cookie{Name: "session", Value: c.session})
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, retry, &StatusError{Code: resp.StatusCode, Method: method, URL: target}
	}
	return data, false, nil
}
