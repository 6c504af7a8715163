package ingestion

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"github.com/nextlevelbuilder/convoy/internal/model"
	"github.com/nextlevelbuilder/convoy/internal/objectstore"
)

// maxFetchBytes bounds how much of a remote document extraction will read.
const maxFetchBytes = 10 << 20 // 10MB

// FileStore is the narrow blob-storage dependency file-kind sources are
// downloaded from.
type FileStore interface {
	Get(ctx context.Context, key string) (io.ReadCloser, objectstore.ObjectAttrs, error)
}

// Extractor turns a KnowledgeSource's locator into plain text, dispatching
// by kind per the ingestion event's type.
type Extractor struct {
	HTTP  *http.Client
	Files FileStore
}

func NewExtractor(httpClient *http.Client, files FileStore) *Extractor {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Extractor{HTTP: httpClient, Files: files}
}

// Extract dispatches on src.Kind: url fetches and runs readability
// extraction, normalized to markdown; file downloads from blob storage and
// dispatches by extension; manual returns src.Text unchanged.
func (e *Extractor) Extract(ctx context.Context, src model.KnowledgeSource) (string, error) {
	switch src.Kind {
	case model.KnowledgeKindManual:
		return src.Text, nil
	case model.KnowledgeKindURL:
		return e.extractURL(ctx, src.URI)
	case model.KnowledgeKindFile:
		return e.extractFile(ctx, src.URI)
	default:
		return "", fmt.Errorf("ingestion: unknown knowledge kind %q", src.Kind)
	}
}

func (e *Extractor) extractURL(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("extract url: %w", err)
	}
	resp, err := e.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("extract url: fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("extract url: status %d", resp.StatusCode)
	}

	base, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("extract url: parse base: %w", err)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", fmt.Errorf("extract url: read body: %w", err)
	}

	article, rerr := readability.FromReader(strings.NewReader(string(raw)), base)
	if rerr == nil && strings.TrimSpace(article.Content) != "" {
		md, err := htmlToMarkdown(article.Content, base)
		if err != nil {
			return "", fmt.Errorf("extract url: html to markdown: %w", err)
		}
		if text := strings.TrimSpace(md); text != "" {
			return text, nil
		}
	}

	// Readability found nothing worth keeping (common for JS-shell pages
	// whose content never reaches the static fetch); fall back to a raw
	// tag-stripped read of the whole document rather than failing outright.
	text, err := stripHTMLTags(raw)
	if err != nil {
		return "", fmt.Errorf("extract url: strip html: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("extract url: no readable content")
	}
	return strings.TrimSpace(text), nil
}

func (e *Extractor) extractFile(ctx context.Context, key string) (string, error) {
	if e.Files == nil {
		return "", fmt.Errorf("extract file: no file store configured")
	}
	body, _, err := e.Files.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("extract file: %w", err)
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, maxFetchBytes))
	if err != nil {
		return "", fmt.Errorf("extract file: read: %w", err)
	}

	switch strings.ToLower(filepath.Ext(key)) {
	case ".html", ".htm":
		base, _ := url.Parse("file://" + key)
		article, err := readability.FromReader(strings.NewReader(string(data)), base)
		if err != nil {
			return "", fmt.Errorf("extract file: readability: %w", err)
		}
		md, err := htmlToMarkdown(article.Content, base)
		if err != nil {
			return "", fmt.Errorf("extract file: html to markdown: %w", err)
		}
		return strings.TrimSpace(md), nil
	case ".txt", ".md", ".markdown", "":
		return strings.TrimSpace(string(data)), nil
	default:
		// PDF/DOCX binary parsing is out of scope: no grounded parser
		// library is available, so unsupported extensions are rejected
		// rather than silently treated as plain text.
		return "", fmt.Errorf("extract file: unsupported extension %q", filepath.Ext(key))
	}
}

// htmlToMarkdown normalizes an HTML fragment to markdown, resolving
// relative links against base. Chunking and embedding both work better on
// markdown's flat text than on raw tag soup.
func htmlToMarkdown(articleHTML string, base *url.URL) (string, error) {
	domain := ""
	if base != nil {
		domain = base.Scheme + "://" + base.Host
	}
	return htmltomarkdown.ConvertString(articleHTML, converter.WithDomain(domain))
}

// stripHTMLTags walks the parsed document and concatenates text node
// content, used when readability extraction yields nothing.
func stripHTMLTags(raw []byte) (string, error) {
	doc, err := html.Parse(strings.NewReader(string(raw)))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				b.WriteString(t)
				b.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return b.String(), nil
}
