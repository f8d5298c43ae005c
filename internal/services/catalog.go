package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/shelfshare/shelfshare/internal/database/queries"
	"github.com/shelfshare/shelfshare/internal/models"
)

const (
	defaultGoogleBooksBaseURL = "https://www.googleapis.com/books/v1"
	defaultOpenLibraryBaseURL = "https://openlibrary.org"

	// openLibraryPrefix marks external ids that resolve against Open
	// Library instead of Google Books.
	openLibraryPrefix = "OL_"

	metadataCacheKeyPrefix = "catalog:meta:"
)

// MetadataCache caches resolved external metadata so repeated references
// to the same external id do not refetch from the provider.
type MetadataCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

// bookMetadata is the provider-neutral shape both resolvers produce.
type bookMetadata struct {
	Title         string `json:"title"`
	Author        string `json:"author"`
	ISBN          string `json:"isbn,omitempty"`
	PublishedYear int32  `json:"published_year,omitempty"`
	CoverImageURL string `json:"cover_image_url,omitempty"`
	Description   string `json:"description,omitempty"`
}

// CatalogService resolves item references to local catalog rows. External
// ids are materialized on first use: metadata is fetched from Google Books
// or Open Library, cached in Redis, and inserted with an upsert so
// concurrent first-time resolutions converge.
type CatalogService struct {
	store    CirculationStore
	cache    MetadataCache
	client   *http.Client
	logger   *slog.Logger
	cacheTTL time.Duration

	googleBaseURL  string
	openLibBaseURL string
	googleBooksKey string
}

func NewCatalogService(store CirculationStore, cache MetadataCache, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		store:          store,
		cache:          cache,
		client:         &http.Client{Timeout: 10 * time.Second},
		logger:         logger,
		cacheTTL:       time.Hour,
		googleBaseURL:  defaultGoogleBooksBaseURL,
		openLibBaseURL: defaultOpenLibraryBaseURL,
	}
}

// WithProviderURLs overrides the metadata provider endpoints. Used by tests
// and by deployments that front the providers with a proxy.
func (s *CatalogService) WithProviderURLs(googleBooks, openLibrary string) *CatalogService {
	s.googleBaseURL = strings.TrimRight(googleBooks, "/")
	s.openLibBaseURL = strings.TrimRight(openLibrary, "/")
	return s
}

func (s *CatalogService) WithGoogleBooksKey(key string) *CatalogService {
	s.googleBooksKey = key
	return s
}

func (s *CatalogService) WithCacheTTL(ttl time.Duration) *CatalogService {
	if ttl > 0 {
		s.cacheTTL = ttl
	}
	return s
}

// Resolve maps an item reference to a local book id. The second return
// value reports whether the catalog row was created by this call.
func (s *CatalogService) Resolve(ctx context.Context, ref models.ItemRef) (int32, bool, error) {
	if ref.Kind == models.ItemRefLocal {
		if _, err := s.store.GetBookByID(ctx, ref.LocalID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return 0, false, models.ErrBookNotFound
			}
			return 0, false, fmt.Errorf("failed to look up book: %w", err)
		}
		return ref.LocalID, false, nil
	}

	book, err := s.store.GetBookByExternalID(ctx, ref.ExternalID)
	if err == nil {
		return book.ID, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("failed to look up external id: %w", err)
	}

	meta, err := s.fetchMetadata(ctx, ref.ExternalID)
	if err != nil {
		return 0, false, err
	}

	created, err := s.store.CreateBook(ctx, queries.CreateBookParams{
		ExternalID:    pgtype.Text{String: ref.ExternalID, Valid: true},
		Title:         meta.Title,
		Author:        meta.Author,
		Isbn:          optionalText(meta.ISBN),
		PublishedYear: optionalInt4(meta.PublishedYear),
		CoverImageUrl: optionalText(meta.CoverImageURL),
		Description:   optionalText(meta.Description),
	})
	if err != nil {
		return 0, false, fmt.Errorf("failed to create catalog entry: %w", err)
	}

	s.logger.Info("Catalog entry created from external id",
		"external_id", ref.ExternalID, "book_id", created.ID, "title", meta.Title)
	return created.ID, true, nil
}

// fetchMetadata resolves external metadata, consulting the Redis cache
// before hitting the provider. Cache failures degrade to a direct fetch.
func (s *CatalogService) fetchMetadata(ctx context.Context, externalID string) (*bookMetadata, error) {
	cacheKey := metadataCacheKeyPrefix + externalID
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey); err == nil {
			var meta bookMetadata
			if err := json.Unmarshal([]byte(cached), &meta); err == nil {
				return &meta, nil
			}
		}
	}

	var (
		meta *bookMetadata
		err  error
	)
	if strings.HasPrefix(externalID, openLibraryPrefix) {
		meta, err = s.fetchOpenLibrary(ctx, strings.TrimPrefix(externalID, openLibraryPrefix))
	} else {
		meta, err = s.fetchGoogleBooks(ctx, externalID)
	}
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if payload, merr := json.Marshal(meta); merr == nil {
			if cerr := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL); cerr != nil {
				s.logger.Warn("Failed to cache catalog metadata", "external_id", externalID, "error", cerr)
			}
		}
	}
	return meta, nil
}

type googleVolume struct {
	VolumeInfo struct {
		Title               string   `json:"title"`
		Authors             []string `json:"authors"`
		PublishedDate       string   `json:"publishedDate"`
		Description         string   `json:"description"`
		IndustryIdentifiers []struct {
			Type       string `json:"type"`
			Identifier string `json:"identifier"`
		} `json:"industryIdentifiers"`
		ImageLinks struct {
			Thumbnail string `json:"thumbnail"`
		} `json:"imageLinks"`
	} `json:"volumeInfo"`
}

func (s *CatalogService) fetchGoogleBooks(ctx context.Context, volumeID string) (*bookMetadata, error) {
	endpoint := fmt.Sprintf("%s/volumes/%s", s.googleBaseURL, url.PathEscape(volumeID))
	if s.googleBooksKey != "" {
		endpoint += "?key=" + url.QueryEscape(s.googleBooksKey)
	}

	var volume googleVolume
	if err := s.getJSON(ctx, endpoint, &volume); err != nil {
		return nil, err
	}
	if volume.VolumeInfo.Title == "" {
		return nil, fmt.Errorf("%w: google books volume %s has no title", models.ErrCatalogUnresolvable, volumeID)
	}

	meta := &bookMetadata{
		Title:         volume.VolumeInfo.Title,
		Author:        "Unknown Author",
		Description:   volume.VolumeInfo.Description,
		CoverImageURL: volume.VolumeInfo.ImageLinks.Thumbnail,
	}
	if len(volume.VolumeInfo.Authors) > 0 {
		meta.Author = strings.Join(volume.VolumeInfo.Authors, ", ")
	}
	for _, ident := range volume.VolumeInfo.IndustryIdentifiers {
		if ident.Type == "ISBN_13" {
			meta.ISBN = ident.Identifier
			break
		}
		if ident.Type == "ISBN_10" && meta.ISBN == "" {
			meta.ISBN = ident.Identifier
		}
	}
	if len(volume.VolumeInfo.PublishedDate) >= 4 {
		if year, err := strconv.Atoi(volume.VolumeInfo.PublishedDate[:4]); err == nil {
			meta.PublishedYear = int32(year)
		}
	}
	return meta, nil
}

type openLibraryWork struct {
	Title       string          `json:"title"`
	Description json.RawMessage `json:"description"`
	Covers      []int64         `json:"covers"`
	Authors     []struct {
		Author struct {
			Key string `json:"key"`
		} `json:"author"`
	} `json:"authors"`
}

func (s *CatalogService) fetchOpenLibrary(ctx context.Context, workID string) (*bookMetadata, error) {
	endpoint := fmt.Sprintf("%s/works/%s.json", s.openLibBaseURL, url.PathEscape(workID))

	var work openLibraryWork
	if err := s.getJSON(ctx, endpoint, &work); err != nil {
		return nil, err
	}
	if work.Title == "" {
		return nil, fmt.Errorf("%w: open library work %s has no title", models.ErrCatalogUnresolvable, workID)
	}

	meta := &bookMetadata{
		Title:       work.Title,
		Author:      "Unknown Author",
		Description: decodeOpenLibraryDescription(work.Description),
	}
	if len(work.Covers) > 0 && work.Covers[0] > 0 {
		meta.CoverImageURL = fmt.Sprintf("https://covers.openlibrary.org/b/id/%d-M.jpg", work.Covers[0])
	}
	if len(work.Authors) > 0 && work.Authors[0].Author.Key != "" {
		if name, err := s.fetchOpenLibraryAuthor(ctx, work.Authors[0].Author.Key); err == nil && name != "" {
			meta.Author = name
		}
	}
	return meta, nil
}

func (s *CatalogService) fetchOpenLibraryAuthor(ctx context.Context, authorKey string) (string, error) {
	endpoint := fmt.Sprintf("%s%s.json", s.openLibBaseURL, authorKey)
	var author struct {
		Name string `json:"name"`
	}
	if err := s.getJSON(ctx, endpoint, &author); err != nil {
		return "", err
	}
	return author.Name, nil
}

// decodeOpenLibraryDescription handles Open Library's two description
// encodings: a bare string or a {"type", "value"} object.
func decodeOpenLibraryDescription(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain
	}
	var typed struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &typed); err == nil {
		return typed.Value
	}
	return ""
}

func (s *CatalogService) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrCatalogUnresolvable, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrCatalogUnresolvable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: provider returned 404", models.ErrCatalogUnresolvable)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: provider returned %d", models.ErrCatalogUnresolvable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrCatalogUnresolvable, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", models.ErrCatalogUnresolvable, err)
	}
	return nil
}

func optionalText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

func optionalInt4(n int32) pgtype.Int4 {
	if n == 0 {
		return pgtype.Int4{}
	}
	return pgtype.Int4{Int32: n, Valid: true}
}
