// Package discover paginates the portal's search results and yields a
// deduplicated stream of listing URLs.
package discover

import (
	"bytes"
	"context"
	"net/url"
	"strconv"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/uralstat/realty-cli/internal/fetcher"
	"github.com/uralstat/realty-cli/internal/model"
	"github.com/uralstat/realty-cli/internal/resilience"
)

// ErrPortalUnreachable is returned when the portal cannot be reached at all.
// It is the only discovery failure that aborts a run.
var ErrPortalUnreachable = eris.New("discover: portal unreachable")

// noNewStreakLimit stops pagination after this many consecutive pages yield no
// new listing IDs. Guards against pagination loops on unstable result sets.
const noNewStreakLimit = 3

// Fetcher fetches one page. Satisfied by *fetcher.Client.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetcher.Page, error)
}

// Discovered is one URL found on a search page. Duplicate marks a URL whose
// canonical ID was already yielded within this run; the coordinator records it
// as skipped without fetching.
type Discovered struct {
	Listing   model.ListingURL
	Duplicate bool
}

// Stats summarizes one discovery pass.
type Stats struct {
	PagesFetched int
	PagesFailed  int
	LastPage     int // last successfully discovered page, resume cursor
	Found        int // unique listings emitted
	Duplicates   int
}

// Discoverer paginates search result pages.
type Discoverer struct {
	fetch     Fetcher
	searchURL string
	maxPages  int
	startPage int
	retry     resilience.RetryConfig
	onPage    func(page int)
}

// Options configures a Discoverer.
type Options struct {
	SearchURL string
	MaxPages  int
	StartPage int // resume cursor; pages before it are assumed done
	Retry     resilience.RetryConfig

	// OnPage, if set, is called after each fully discovered page. The
	// coordinator uses it to persist the resume cursor.
	OnPage func(page int)
}

// New creates a Discoverer.
func New(fetch Fetcher, opts Options) *Discoverer {
	if opts.MaxPages <= 0 {
		opts.MaxPages = 25
	}
	if opts.StartPage <= 0 {
		opts.StartPage = 1
	}
	return &Discoverer{
		fetch:     fetch,
		searchURL: opts.SearchURL,
		maxPages:  opts.MaxPages,
		startPage: opts.StartPage,
		retry:     opts.Retry,
		onPage:    opts.OnPage,
	}
}

// Run walks search pages in order, sending every discovered URL on out.
// It stops on an empty results page, on reaching the page limit, or after
// three consecutive pages without new IDs. A page that exhausts its fetch
// retries is skipped; discovery continues from the next index. The caller
// owns the channel and closes it after Run returns.
func (d *Discoverer) Run(ctx context.Context, out chan<- Discovered) (*Stats, error) {
	stats := &Stats{}
	seen := make(map[string]struct{})
	noNewStreak := 0

	for page := d.startPage; page <= d.maxPages; page++ {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		pageURL, err := d.pageURL(page)
		if err != nil {
			return stats, err
		}

		log := zap.L().With(zap.Int("page", page), zap.String("url", pageURL))

		fetched, err := resilience.DoVal(ctx, d.retry, func(ctx context.Context) (*fetcher.Page, error) {
			return d.fetch.Fetch(ctx, pageURL)
		})
		if err != nil {
			stats.PagesFailed++
			// If we never reached the portal at all, the run cannot proceed.
			if stats.PagesFetched == 0 && resilience.IsTransient(err) {
				return stats, eris.Wrap(ErrPortalUnreachable, err.Error())
			}
			log.Warn("search page failed after retries, skipping", zap.Error(err))
			continue
		}
		stats.PagesFetched++

		links, err := parseOfferLinks(fetched)
		if err != nil {
			stats.PagesFailed++
			log.Warn("search page unparseable, skipping", zap.Error(err))
			continue
		}

		stats.LastPage = page

		if len(links) == 0 {
			log.Info("empty results page, discovery complete")
			if d.onPage != nil {
				d.onPage(page)
			}
			return stats, nil
		}

		newOnPage := 0
		for _, lu := range links {
			dup := false
			if _, ok := seen[lu.ID]; ok {
				dup = true
				stats.Duplicates++
			} else {
				seen[lu.ID] = struct{}{}
				newOnPage++
				stats.Found++
			}

			select {
			case out <- Discovered{Listing: lu, Duplicate: dup}:
			case <-ctx.Done():
				return stats, ctx.Err()
			}
		}

		// Cursor advances only after every link on the page was handed off.
		if d.onPage != nil {
			d.onPage(page)
		}

		if newOnPage == 0 {
			noNewStreak++
			if noNewStreak >= noNewStreakLimit {
				log.Info("no new listings for consecutive pages, stopping",
					zap.Int("streak", noNewStreak))
				return stats, nil
			}
		} else {
			noNewStreak = 0
		}

		log.Info("search page discovered",
			zap.Int("links", len(links)),
			zap.Int("new", newOnPage),
		)
	}

	return stats, nil
}

// pageURL builds the search URL for a page index. Page 1 is the bare search
// URL; later pages carry a page query parameter.
func (d *Discoverer) pageURL(page int) (string, error) {
	u, err := url.Parse(d.searchURL)
	if err != nil {
		return "", eris.Wrapf(err, "discover: parse search url %q", d.searchURL)
	}

	q := u.Query()
	if page <= 1 {
		q.Del("page")
	} else {
		q.Set("page", strconv.Itoa(page))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// parseOfferLinks extracts canonical listing URLs from a search results page.
// Order follows document order; within-page repeats of the same ID collapse
// to the first occurrence.
func parseOfferLinks(page *fetcher.Page) ([]model.ListingURL, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, eris.Wrap(err, "discover: parse html")
	}

	base, err := url.Parse(page.URL)
	if err != nil {
		return nil, eris.Wrapf(err, "discover: parse page url %q", page.URL)
	}

	var links []model.ListingURL
	onPage := make(map[string]struct{})

	doc.Find(`a[href*="/offer/"]`).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || !IsOfferLink(href) {
			return
		}

		ref, err := url.Parse(href)
		if err != nil {
			return
		}

		lu, err := Canonicalize(base.ResolveReference(ref).String())
		if err != nil {
			return
		}
		if _, dup := onPage[lu.ID]; dup {
			return
		}
		onPage[lu.ID] = struct{}{}
		links = append(links, lu)
	})

	return links, nil
}
