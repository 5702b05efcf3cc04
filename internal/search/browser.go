package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/Yoriyari/e621-Tags-by-Year/internal/query"
)

// BrowserConfig configures the browser-driven client.
type BrowserConfig struct {
	// BaseURL is the site root. Default: the production site.
	BaseURL string

	// Headful runs a visible browser instead of headless Chrome.
	Headful bool

	// NavTimeout bounds each navigation. Default: 30s.
	NavTimeout time.Duration

	Logger *slog.Logger
}

func (c *BrowserConfig) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = query.DefaultBaseURL
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Browser drives a real page session through Chrome. One tab serves
// every query of a run; the age gate is passed once at startup.
type Browser struct {
	cfg     BrowserConfig
	browser *rod.Browser
	lnch    *launcher.Launcher
	page    *rod.Page
}

// NewBrowser launches Chrome, opens a stealth tab on the posts page,
// and clicks through the age gate.
func NewBrowser(ctx context.Context, cfg BrowserConfig) (*Browser, error) {
	cfg.defaults()

	l := launcher.New().
		Headless(!cfg.Headful).
		Set("disable-blink-features", "AutomationControlled")

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	rb := rod.New().ControlURL(u)
	if err := rb.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	page, err := stealth.Page(rb)
	if err != nil {
		rb.Close()
		l.Cleanup()
		return nil, fmt.Errorf("open tab: %w", err)
	}

	b := &Browser{cfg: cfg, browser: rb, lnch: l, page: page}

	if err := b.navigate(ctx, query.PostsURL(cfg.BaseURL, "")); err != nil {
		b.Close()
		return nil, err
	}
	b.passAgeGate(ctx)

	return b, nil
}

// Close shuts down the tab, the browser, and its launcher.
func (b *Browser) Close() error {
	if b.page != nil {
		b.page.Close()
		b.page = nil
	}
	if b.browser != nil {
		b.browser.Close()
		b.browser = nil
	}
	if b.lnch != nil {
		b.lnch.Cleanup()
		b.lnch = nil
	}
	return nil
}

// Count navigates to the search results for expr and reads the
// pagination total. Small result sets are counted exactly by visiting
// the last page; at or past the enumeration ceiling only the
// truncation signal comes back.
func (b *Browser) Count(ctx context.Context, expr string) (Result, error) {
	if err := b.navigate(ctx, query.PostsURL(b.cfg.BaseURL, expr)); err != nil {
		return Result{}, err
	}

	pages, err := b.pageTotal(ctx)
	if err != nil {
		return Result{}, err
	}
	if pages == 0 {
		return Result{}, nil
	}
	if pages >= PageCeiling {
		return Result{Truncated: true}, nil
	}

	if pages > 1 {
		if err := b.gotoLastPage(ctx); err != nil {
			return Result{}, err
		}
	}

	visible, err := b.visibleCount(ctx)
	if err != nil {
		return Result{}, err
	}
	return Result{Count: PostsPerPage*(pages-1) + visible}, nil
}

// TagPage reads the tag names linked from one page of the tag listing.
func (b *Browser) TagPage(ctx context.Context, page int) ([]string, error) {
	if err := b.navigate(ctx, query.TagListURL(b.cfg.BaseURL, page)); err != nil {
		return nil, err
	}

	res, err := b.page.Context(ctx).Eval(`() =>
		Array.from(document.querySelectorAll('a[href^="/posts?tags="]'))
			.map(a => a.textContent.trim())
			.filter(t => t.length > 0)`)
	if err != nil {
		return nil, fmt.Errorf("read tag listing page %d: %w", page, err)
	}

	var names []string
	for _, v := range res.Value.Arr() {
		names = append(names, v.Str())
	}
	return names, nil
}

func (b *Browser) navigate(ctx context.Context, pageURL string) error {
	navCtx, cancel := context.WithTimeout(ctx, b.cfg.NavTimeout)
	defer cancel()

	p := b.page.Context(navCtx)
	if err := p.Navigate(pageURL); err != nil {
		return fmt.Errorf("navigate %s: %w", pageURL, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("load %s: %w", pageURL, err)
	}
	return nil
}

// passAgeGate clicks the consent button when present. Absence is fine:
// a returning session keeps its consent cookie.
func (b *Browser) passAgeGate(ctx context.Context) {
	gateCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	el, err := b.page.Context(gateCtx).ElementR("button", "I agree and am over")
	if err != nil {
		b.cfg.Logger.Debug("no age gate shown")
		return
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		b.cfg.Logger.Warn("age gate click failed", "error", err)
	}
}

// pageTotal reads the data-total attribute of the pagination element,
// which carries the result page count up to the enumeration ceiling.
func (b *Browser) pageTotal(ctx context.Context) (int, error) {
	res, err := b.page.Context(ctx).Eval(`() => {
		const el = document.querySelector('[aria-label="Pagination"]');
		if (!el) return 0;
		return parseInt(el.getAttribute("data-total") || "0", 10);
	}`)
	if err != nil {
		return 0, fmt.Errorf("read pagination: %w", err)
	}
	return res.Value.Int(), nil
}

func (b *Browser) gotoLastPage(ctx context.Context) error {
	navCtx, cancel := context.WithTimeout(ctx, b.cfg.NavTimeout)
	defer cancel()

	p := b.page.Context(navCtx)
	el, err := p.Element(".page.last a")
	if err != nil {
		return fmt.Errorf("find last page link: %w", err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click last page: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("load last page: %w", err)
	}
	return nil
}

// visibleCount counts the posts on the current page. The anonymous
// blacklist is disabled first so filtered posts render; posts the site
// still hides are added back from the hidden-posts notice.
func (b *Browser) visibleCount(ctx context.Context) (int, error) {
	p := b.page.Context(ctx)

	_, err := p.Eval(`() => {
		const el = document.querySelector(".blacklist-toggle-all");
		if (el && el.textContent.trim() === "Disable All Filters") el.click();
	}`)
	if err != nil {
		b.cfg.Logger.Warn("blacklist toggle failed", "error", err)
	}

	res, err := p.Eval(`() => {
		let n = document.querySelectorAll("article.post-preview").length;
		const notice = document.querySelector(".info.hidden-posts-notice");
		if (notice) {
			const m = notice.textContent.trim().match(/^(\d+)/);
			if (m) n += parseInt(m[1], 10);
		}
		return n;
	}`)
	if err != nil {
		return 0, fmt.Errorf("count posts on page: %w", err)
	}
	return res.Value.Int(), nil
}
