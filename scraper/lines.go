package scraper

import (
	"bytes"
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf16"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/saiset-co/dbus-service/types"
	"github.com/saiset-co/dbus-service/utils"
)

// linesLiteralStart finds the opening quote of the line catalog literal,
// e.g. `var lineas = JSON.parse('[{"text":"05 | Benta Berri",...}]');`.
var linesLiteralStart = regexp.MustCompile(`lineas\s*=\s*JSON\.parse\(\s*'`)

type rawLine struct {
	Text   string     `json:"text"`
	Enlace string     `json:"enlace"`
	Value  flexString `json:"value"`
}

// flexString accepts both JSON strings and numbers.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := utils.UnmarshalInto(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}

	if string(data) == "null" {
		*f = ""
		return nil
	}

	*f = flexString(data)
	return nil
}

type LineCatalog struct {
	cache   types.CacheStore
	client  types.HTTPClient
	baseURL string
	logger  types.Logger
	metrics types.MetricsManager
}

func NewLineCatalog(cache types.CacheStore, client types.HTTPClient, baseURL string, logger types.Logger, metrics types.MetricsManager) *LineCatalog {
	return &LineCatalog{
		cache:   cache,
		client:  client,
		baseURL: baseURL,
		logger:  logger,
		metrics: metrics,
	}
}

func (c *LineCatalog) GetBusLines(ctx context.Context) ([]types.Line, error) {
	var lines []types.Line
	if c.cache.Get(ctx, types.CacheKeyBusLines, &lines) {
		c.logger.Debug("Line catalog served from cache", zap.Int("count", len(lines)))
		return lines, nil
	}

	start := time.Now()
	lines, err := c.fetch(ctx)
	observeFetch(c.metrics, "lines", err, start)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, types.CacheKeyBusLines, lines); err != nil {
		return nil, err
	}

	c.logger.Info("Line catalog refreshed", zap.Int("count", len(lines)))
	return lines, nil
}

func (c *LineCatalog) fetch(ctx context.Context) ([]types.Line, error) {
	resp, err := c.client.Get(ctx, c.baseURL, map[string]string{"Accept": "text/html"})
	if err != nil {
		return nil, types.WrapError(err, "failed to fetch landing page")
	}

	if !resp.IsSuccess() {
		return nil, types.NewUpstreamHTTPError(c.baseURL, resp.StatusCode)
	}

	return ParseLineCatalog(resp.Body)
}

// ParseLineCatalog extracts the embedded line list from the landing page HTML.
func ParseLineCatalog(body []byte) ([]types.Line, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, types.Errorf(types.ErrUpstreamFormat, "landing page is not HTML: %v", err)
	}

	var (
		literal string
		found   bool
	)

	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		literal, found = extractQuotedLiteral(s.Text(), linesLiteralStart)
		return !found
	})

	if !found {
		return nil, types.Errorf(types.ErrUpstreamFormat, "line catalog literal not found in landing page")
	}

	decoded, err := unescapeJS(literal)
	if err != nil {
		return nil, types.Errorf(types.ErrUpstreamFormat, "line catalog literal: %v", err)
	}

	var raw []rawLine
	if err := utils.Unmarshal([]byte(decoded), &raw); err != nil {
		return nil, types.Errorf(types.ErrUpstreamFormat, "line catalog literal is not valid JSON: %v", err)
	}

	lines := make([]types.Line, 0, len(raw))
	for _, entry := range raw {
		code, name, ok := splitDisplay(entry.Text)
		if !ok {
			continue
		}

		lines = append(lines, types.Line{
			Code:       code,
			Name:       name,
			SourceURL:  strings.TrimSpace(entry.Enlace),
			InternalID: string(entry.Value),
		})
	}

	return lines, nil
}

// extractQuotedLiteral returns the raw body of the single-quoted string that
// begins right after start's match, up to the first unescaped quote.
func extractQuotedLiteral(text string, start *regexp.Regexp) (string, bool) {
	loc := start.FindStringIndex(text)
	if loc == nil {
		return "", false
	}

	body := text[loc[1]:]
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '\\':
			i++
		case '\'':
			return body[:i], true
		}
	}

	return "", false
}

// unescapeJS decodes the escapes allowed in a JavaScript string literal.
func unescapeJS(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}

	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}

		i++
		if i >= len(s) {
			return "", types.NewErrorf("dangling escape at end of literal")
		}

		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'v':
			b.WriteByte('\v')
		case '0':
			b.WriteByte(0)
		case 'x':
			if i+2 >= len(s) {
				return "", types.NewErrorf("short \\x escape at %d", i)
			}
			n, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
			if err != nil {
				return "", types.NewErrorf("bad \\x escape at %d", i)
			}
			b.WriteRune(rune(n))
			i += 2
		case 'u':
			r, width, err := decodeUnicodeEscape(s, i)
			if err != nil {
				return "", err
			}
			b.WriteRune(r)
			i += width
		case '\n':
			// line continuation
		default:
			b.WriteByte(s[i])
		}
	}

	return b.String(), nil
}

// decodeUnicodeEscape reads the XXXX after "\u" at s[i] ('u'), joining
// surrogate pairs. width is the number of bytes consumed after s[i].
func decodeUnicodeEscape(s string, i int) (rune, int, error) {
	r1, err := parseHex4(s, i+1)
	if err != nil {
		return 0, 0, err
	}

	if utf16.IsSurrogate(r1) && i+10 < len(s) && s[i+5] == '\\' && s[i+6] == 'u' {
		if r2, err := parseHex4(s, i+7); err == nil {
			if r := utf16.DecodeRune(r1, r2); r != unicode.ReplacementChar {
				return r, 10, nil
			}
		}
	}

	return r1, 4, nil
}

func parseHex4(s string, at int) (rune, error) {
	if at+4 > len(s) {
		return 0, types.NewErrorf("short \\u escape at %d", at)
	}

	n, err := strconv.ParseUint(s[at:at+4], 16, 32)
	if err != nil {
		return 0, types.NewErrorf("bad \\u escape at %d", at)
	}

	return rune(n), nil
}
