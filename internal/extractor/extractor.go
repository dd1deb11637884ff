// Package extractor pulls the product description text out of a rendered
// product page.
package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Fetcher returns the rendered HTML of a page. selector is the element the
// fetcher should wait for.
type Fetcher interface {
	FetchHTML(ctx context.Context, url, selector string) (string, error)
}

type Extractor struct {
	fetcher Fetcher
	sites   Sites
	logger  *slog.Logger
}

func New(fetcher Fetcher, sites Sites) *Extractor {
	return &Extractor{
		fetcher: fetcher,
		sites:   sites,
		logger:  slog.Default().With("component", "extractor"),
	}
}

// Extract returns the description text of the product at rawURL. found is
// false when the shop has no config or selector, or the element is missing.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (text string, found bool, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false, fmt.Errorf("failed to parse url: %w", err)
	}

	site, ok := e.sites.SiteFor(u.Host)
	if !ok {
		e.logger.Info("no crawl config for domain", "domain", u.Host)
		return "", false, nil
	}
	if site.ProductSelector == "" {
		if site.Readability {
			return e.extractMainContent(ctx, u)
		}
		e.logger.Info("no product selector configured", "domain", site.Domain)
		return "", false, nil
	}

	page, err := e.fetcher.FetchHTML(ctx, rawURL, site.ProductSelector)
	if err != nil {
		return "", false, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}

	text, found, err = ExtractText(page, site.ProductSelector)
	if err != nil {
		return "", false, err
	}
	if !found {
		e.logger.Info("product element not found", "url", rawURL, "selector", site.ProductSelector)
		return "", false, nil
	}

	e.logger.Debug("extracted product text", "domain", u.Host, "chars", len(text))
	return text, true, nil
}

func (e *Extractor) extractMainContent(ctx context.Context, u *url.URL) (string, bool, error) {
	page, err := e.fetcher.FetchHTML(ctx, u.String(), "body")
	if err != nil {
		return "", false, fmt.Errorf("failed to fetch %s: %w", u, err)
	}

	text, found, err := ExtractMainContent(page, u)
	if err != nil {
		return "", false, err
	}
	if !found {
		e.logger.Info("no main content found", "url", u.String())
	}
	return text, found, nil
}

// ExtractMainContent runs readability over page and lists the resulting
// article the same way ExtractText lists a selected element.
func ExtractMainContent(page string, pageURL *url.URL) (string, bool, error) {
	parser := readability.NewParser()
	article, err := parser.Parse(strings.NewReader(page), pageURL)
	if err != nil {
		return "", false, fmt.Errorf("failed to extract main content: %w", err)
	}
	if strings.TrimSpace(article.Content) == "" {
		return "", false, nil
	}

	text, found, err := ExtractText(article.Content, "body")
	if err != nil || !found || text == "" {
		return "", false, err
	}
	return text, true, nil
}

// ExtractText finds the first element matching selector and lists its content
// in document order: the src of every image and every non-empty text node,
// one per line. Script and style content is skipped.
func ExtractText(page, selector string) (string, bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", false, fmt.Errorf("failed to parse html: %w", err)
	}

	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", false, nil
	}

	var lines []string
	for child := sel.Nodes[0].FirstChild; child != nil; child = child.NextSibling {
		lines = walk(child, lines)
	}
	return strings.Join(lines, "\n"), true, nil
}

func walk(n *html.Node, lines []string) []string {
	switch n.Type {
	case html.TextNode:
		if text := strings.TrimSpace(n.Data); text != "" {
			lines = append(lines, text)
		}
		return lines
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript:
			return lines
		case atom.Img:
			for _, attr := range n.Attr {
				if attr.Key == "src" && attr.Val != "" {
					lines = append(lines, attr.Val)
				}
			}
		}
	}

	for child := n.FirstChild; child != nil; child = child.NextSibling {
		lines = walk(child, lines)
	}
	return lines
}
