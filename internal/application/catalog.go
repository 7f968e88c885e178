package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/ports"
)

// Catalog selection defaults.
const (
	DefaultPerProviderLimit = 5
	DefaultContextLength    = 4096
	DefaultCatalogTTL       = 10 * time.Minute

	catalogCacheKey = "catalog:openrouter:models"
)

// excludedSlugMarkers drop upstream models that do not fit single-word
// answering.
var excludedSlugMarkers = []string{":free", "vision", "instruct", "preview"}

// CatalogService keeps the model registry in step with the upstream catalog
// and answers registry queries for the API and CLI.
type CatalogService struct {
	source   ports.CatalogSource
	registry ports.ModelRegistry
	cache    ports.CacheStore
	cacheTTL time.Duration
	logger   *slog.Logger

	perProviderLimit int
	recommended      []RecommendedModel

	// sf collapses concurrent upstream fetches into one request.
	sf singleflight.Group
}

// CatalogOption customises a CatalogService.
type CatalogOption func(*CatalogService)

// WithCatalogCache caches upstream listings in cache for ttl.
func WithCatalogCache(cache ports.CacheStore, ttl time.Duration) CatalogOption {
	return func(c *CatalogService) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

// WithPerProviderLimit caps how many upstream models are kept per vendor.
func WithPerProviderLimit(n int) CatalogOption {
	return func(c *CatalogService) { c.perProviderLimit = n }
}

// WithRecommended replaces the recommended model list.
func WithRecommended(models []RecommendedModel) CatalogOption {
	return func(c *CatalogService) { c.recommended = models }
}

// WithCatalogLogger sets the logger.
func WithCatalogLogger(l *slog.Logger) CatalogOption {
	return func(c *CatalogService) { c.logger = l }
}

// NewCatalogService creates a catalog service. source may be nil, in which
// case Sync fails and registry queries still work.
func NewCatalogService(source ports.CatalogSource, registry ports.ModelRegistry, opts ...CatalogOption) *CatalogService {
	c := &CatalogService{
		source:           source,
		registry:         registry,
		cacheTTL:         DefaultCatalogTTL,
		logger:           slog.Default(),
		perProviderLimit: DefaultPerProviderLimit,
		recommended:      DefaultRecommendedModels(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// List returns every registered model ordered by provider, then name.
func (c *CatalogService) List(ctx context.Context) ([]domain.Model, error) {
	return c.registry.List(ctx)
}

// SetEnabled toggles a registered model.
func (c *CatalogService) SetEnabled(ctx context.Context, id string, enabled bool) (domain.Model, error) {
	if strings.TrimSpace(id) == "" {
		verr := domain.NewValidationError("model")
		verr.AddError("model id is required")
		return domain.Model{}, verr
	}
	return c.registry.SetEnabled(ctx, id, enabled)
}

// Sync fetches the upstream catalog, selects the models worth offering and
// upserts them. Existing models keep their enabled flag; new models start
// enabled. It returns the synced models in registry order.
//
// Sync always asks upstream and refreshes the cached listing.
func (c *CatalogService) Sync(ctx context.Context) ([]domain.Model, error) {
	return c.sync(ctx, true)
}

// SyncCached is Sync served from a cached upstream listing when one is
// fresh. It suits syncs that run implicitly before other work.
func (c *CatalogService) SyncCached(ctx context.Context) ([]domain.Model, error) {
	return c.sync(ctx, false)
}

func (c *CatalogService) sync(ctx context.Context, refresh bool) ([]domain.Model, error) {
	if c.source == nil {
		return nil, fmt.Errorf("%w: no catalog source configured", domain.ErrInvalidConfiguration)
	}

	entries, err := c.fetch(ctx, refresh)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}

	selected := SelectModels(entries, c.perProviderLimit, c.recommended)

	existing, err := c.registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list registry: %w", err)
	}
	enabled := make(map[string]bool, len(existing))
	for _, m := range existing {
		enabled[m.Slug] = m.Enabled
	}
	for i := range selected {
		if was, ok := enabled[selected[i].Slug]; ok {
			selected[i].Enabled = was
		}
	}

	if err := c.registry.Upsert(ctx, selected); err != nil {
		return nil, fmt.Errorf("upsert models: %w", err)
	}

	all, err := c.registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list registry: %w", err)
	}
	synced := make(map[string]struct{}, len(selected))
	for _, m := range selected {
		synced[m.Slug] = struct{}{}
	}
	out := make([]domain.Model, 0, len(selected))
	for _, m := range all {
		if _, ok := synced[m.Slug]; ok {
			out = append(out, m)
		}
	}

	c.logger.InfoContext(ctx, "catalog synced",
		"upstream", len(entries),
		"synced", len(out),
	)
	return out, nil
}

// fetch returns the upstream listing. Unless refresh is set it is served from
// the cache when possible. Concurrent callers with the same refresh setting
// share one upstream request.
func (c *CatalogService) fetch(ctx context.Context, refresh bool) ([]ports.CatalogEntry, error) {
	key := catalogCacheKey
	if refresh {
		key += ":refresh"
	}
	v, err, _ := c.sf.Do(key, func() (any, error) {
		if refresh {
			if err := c.InvalidateCache(ctx); err != nil {
				c.logger.WarnContext(ctx, "catalog cache invalidation failed", "error", err)
			}
		} else if entries, ok := c.cached(ctx); ok {
			return entries, nil
		}

		entries, err := c.source.ListModels(ctx)
		if err != nil {
			return nil, err
		}
		c.store(ctx, entries)
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]ports.CatalogEntry), nil
}

func (c *CatalogService) cached(ctx context.Context) ([]ports.CatalogEntry, bool) {
	if c.cache == nil {
		return nil, false
	}

	data, ok, err := c.cache.Get(ctx, catalogCacheKey)
	if err != nil {
		c.logger.WarnContext(ctx, "catalog cache read failed", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var entries []ports.CatalogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		c.logger.WarnContext(ctx, "discarding corrupt catalog cache entry",
			"error", ports.NewCacheError(catalogCacheKey, "decode", fmt.Errorf("%w: %v", ports.ErrCacheCorrupted, err)),
		)
		_ = c.cache.Delete(ctx, catalogCacheKey)
		return nil, false
	}
	return entries, true
}

func (c *CatalogService) store(ctx context.Context, entries []ports.CatalogEntry) {
	if c.cache == nil {
		return
	}

	data, err := json.Marshal(entries)
	if err != nil {
		c.logger.WarnContext(ctx, "catalog cache encode failed", "error", err)
		return
	}
	if err := c.cache.Set(ctx, catalogCacheKey, data, c.cacheTTL); err != nil {
		c.logger.WarnContext(ctx, "catalog cache write failed", "error", err)
	}
}

// InvalidateCache drops the cached upstream listing.
func (c *CatalogService) InvalidateCache(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Delete(ctx, catalogCacheKey)
}

// SelectModels turns upstream entries into registry models:
//   - slugs containing an excluded marker or lacking provider/name form are dropped;
//   - at most perProvider models are kept per vendor, in upstream order,
//     with vendors in order of first appearance;
//   - recommended models missing from the result are appended.
//
// Every returned model is enabled and has no registry ID.
func SelectModels(entries []ports.CatalogEntry, perProvider int, recommended []RecommendedModel) []domain.Model {
	if perProvider <= 0 {
		perProvider = DefaultPerProviderLimit
	}

	var vendors []string
	byVendor := make(map[string][]domain.Model)
	for _, e := range entries {
		vendor, name, ok := strings.Cut(e.Slug, "/")
		if !ok || vendor == "" || name == "" || isExcludedSlug(e.Slug) {
			continue
		}

		if _, seen := byVendor[vendor]; !seen {
			vendors = append(vendors, vendor)
			byVendor[vendor] = nil
		}
		if len(byVendor[vendor]) >= perProvider {
			continue
		}

		contextLength := e.ContextLength
		if contextLength <= 0 {
			contextLength = DefaultContextLength
		}
		byVendor[vendor] = append(byVendor[vendor], domain.Model{
			Slug:          e.Slug,
			Name:          FormatModelName(name),
			Provider:      FormatProvider(vendor),
			Enabled:       true,
			ContextLength: contextLength,
		})
	}

	models := make([]domain.Model, 0, len(entries)+len(recommended))
	present := make(map[string]struct{})
	for _, vendor := range vendors {
		for _, m := range byVendor[vendor] {
			models = append(models, m)
			present[m.Slug] = struct{}{}
		}
	}

	for _, r := range recommended {
		if _, ok := present[r.Slug]; ok {
			continue
		}
		present[r.Slug] = struct{}{}
		models = append(models, domain.Model{
			Slug:          r.Slug,
			Name:          r.Name,
			Provider:      r.Provider,
			Enabled:       true,
			ContextLength: r.ContextLength,
		})
	}

	return models
}

func isExcludedSlug(slug string) bool {
	lower := strings.ToLower(slug)
	for _, marker := range excludedSlugMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// FormatProvider turns a slug vendor into a display name by upper-casing its
// first letter: "openai" becomes "Openai".
func FormatProvider(vendor string) string {
	return upperFirst(vendor)
}

// FormatModelName turns the name half of a slug into a display name. Hyphen
// separated parts are joined with spaces, all-digit parts are kept and other
// parts have their first letter upper-cased: "claude-3-sonnet" becomes
// "Claude 3 Sonnet".
func FormatModelName(name string) string {
	parts := strings.Split(name, "-")
	for i, part := range parts {
		if isDigits(part) {
			continue
		}
		parts[i] = upperFirst(part)
	}
	return strings.Join(parts, " ")
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
