package yad2

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"vfm-car-finder/config"
	"vfm-car-finder/models"
	"vfm-car-finder/services"
	"vfm-car-finder/utils"
)

const (
	baseURL      = "https://www.yad2.co.il/"
	linkSelector = `a[href^='item/']`
)

// Scraper collects car ads from yad2 result pages.
type Scraper struct {
	cfg     *config.Config
	logger  *utils.Logger
	pool    *utils.WorkerPool
	seen    *utils.SeenSet
	retry   *utils.RetryConfig
	tracker *services.Tracker
}

// New creates a ready-to-use Scraper. tracker may be nil.
func New(cfg *config.Config, logger *utils.Logger, tracker *services.Tracker) *Scraper {
	if tracker == nil {
		tracker = services.NewTracker(0, nil)
	}
	return &Scraper{
		cfg:    cfg,
		logger: logger,
		pool:   utils.NewWorkerPool(cfg.MaxConcurrency, time.Duration(cfg.RateLimitMs)*time.Millisecond),
		seen:   utils.NewSeenSet(),
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   2 * time.Second,
			Logger:      logger,
		},
		tracker: tracker,
	}
}

// Scrape walks `pages` result pages of searchURL and scrapes every ad found.
// Page and ad failures are logged and skipped; whatever was collected is
// returned. It errors only when nothing at all could be scraped.
func (s *Scraper) Scrape(ctx context.Context, searchURL string, pages int) ([]*models.RawListing, error) {
	s.logger.Info("[yad2] Starting scrape: %d pages of %s", pages, searchURL)

	chromeBin := findChromeBinary(s.cfg.ChromeBin)
	s.logger.Info("[yad2] Using browser binary: %s", chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("lang", "he-IL"),
		chromedp.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...any) {}))
	defer cancelBrowser()

	// Step 1: collect ad links from every result page
	var links []string
	for page := 1; page <= pages; page++ {
		pageURL, err := withPage(searchURL, page)
		if err != nil {
			return nil, err
		}
		found, err := s.collectLinks(browserCtx, pageURL, page)
		if err != nil {
			s.logger.Error("[yad2] Page %d failed: %v", page, err)
			continue
		}
		fresh := 0
		for _, href := range found {
			abs := absoluteURL(href)
			if !s.seen.Add(abs) {
				continue
			}
			links = append(links, abs)
			fresh++
		}
		s.logger.Info("[yad2] Page %d: %d links (%d new)", page, len(found), fresh)
		if ctx.Err() != nil {
			break
		}
	}
	s.logger.Info("[yad2] Found %d unique listings", len(links))
	s.tracker.SetTotal(len(links))

	// Step 2: visit each ad through the rate-limited pool
	slots := make([]*models.RawListing, len(links))
	for i, link := range links {
		i, link := i, link
		s.pool.Submit(ctx, func(ctx context.Context) {
			defer s.tracker.Advance(1)
			raw, err := s.scrapeDetailPage(ctx, browserCtx, link)
			if err != nil {
				s.logger.Warn("[yad2] Detail page failed for %s: %v", link, err)
				return
			}
			slots[i] = raw
		})
	}
	s.pool.Wait()

	var listings []*models.RawListing
	for _, raw := range slots {
		if raw != nil {
			listings = append(listings, raw)
		}
	}

	s.logger.Info("[yad2] Scrape complete: %d of %d listings", len(listings), len(links))
	if len(listings) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("yad2: scrape: %w", err)
		}
		return nil, fmt.Errorf("yad2: scrape: %w", models.ErrNoListings)
	}
	return listings, nil
}

func (s *Scraper) collectLinks(browserCtx context.Context, pageURL string, page int) ([]string, error) {
	var hrefs []string
	err := s.retry.Do(browserCtx, "result-page-"+strconv.Itoa(page), func() error {
		tabCtx, cancel := chromedp.NewContext(browserCtx)
		defer cancel()
		tabCtx, cancelTimeout := context.WithTimeout(tabCtx, 45*time.Second)
		defer cancelTimeout()

		return chromedp.Run(tabCtx,
			chromedp.Navigate(pageURL),
			chromedp.WaitVisible(linkSelector, chromedp.ByQuery),
			chromedp.Evaluate(`Array.from(document.querySelectorAll("`+linkSelector+`")).map(e => e.getAttribute("href"))`, &hrefs),
		)
	})
	return hrefs, err
}

func (s *Scraper) scrapeDetailPage(ctx, browserCtx context.Context, link string) (*models.RawListing, error) {
	var raw *models.RawListing
	err := s.retry.Do(ctx, "detail-page", func() error {
		tabCtx, cancel := chromedp.NewContext(browserCtx)
		defer cancel()
		tabCtx, cancelTimeout := context.WithTimeout(tabCtx, 30*time.Second)
		defer cancelTimeout()

		var html string
		if err := chromedp.Run(tabCtx,
			chromedp.Navigate(link),
			chromedp.WaitReady("dd", chromedp.ByQuery),
			chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		); err != nil {
			return fmt.Errorf("chromedp detail: %w", err)
		}

		parsed, err := ParseDetail(strings.NewReader(html), link, time.Now())
		if err != nil {
			return err
		}
		raw = parsed
		return nil
	})
	return raw, err
}

// withPage sets the page query parameter of a result URL.
func withPage(searchURL string, page int) (string, error) {
	u, err := url.Parse(searchURL)
	if err != nil {
		return "", fmt.Errorf("yad2: bad search url %q: %w", searchURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("yad2: search url %q is not absolute", searchURL)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// absoluteURL resolves ad hrefs ("item/abc") against the site root.
func absoluteURL(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return baseURL + strings.TrimPrefix(href, "/")
}

// findChromeBinary locates Chrome/Chromium binary.
func findChromeBinary(configured string) string {
	if configured != "" {
		return configured
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
