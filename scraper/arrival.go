package scraper

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/saiset-co/dbus-service/types"
)

const arrivalAction = "calcula_parada"

var (
	clockTimePattern = regexp.MustCompile(`(\d{1,2}):(\d{2})`)
	countdownPattern = regexp.MustCompile(`(\d+)\s*min`)
)

// Estimator answers "how many minutes until the next bus" with a live query.
// Results are never cached.
type Estimator struct {
	stops    StopLoader
	tokens   TokenProvider
	client   types.HTTPClient
	ajaxURL  string
	referer  string
	clock    Clock
	location *time.Location
	logger   types.Logger
	metrics  types.MetricsManager
}

func NewEstimator(stops StopLoader, tokens TokenProvider, client types.HTTPClient, ajaxURL, referer string, clock Clock, location *time.Location, logger types.Logger, metrics types.MetricsManager) *Estimator {
	return &Estimator{
		stops:    stops,
		tokens:   tokens,
		client:   client,
		ajaxURL:  ajaxURL,
		referer:  referer,
		clock:    clock,
		location: location,
		logger:   logger,
		metrics:  metrics,
	}
}

func (e *Estimator) GetArrivalMinutes(ctx context.Context, lineCode, stopCode string) (int, error) {
	stops, err := e.stops.GetLineStops(ctx, lineCode)
	if err != nil {
		return 0, err
	}

	stop, ok := findStop(stops, stopCode)
	if !ok {
		return 0, fmt.Errorf("stop with code %s on line %s %w", stopCode, lineCode, types.ErrNotFound)
	}

	token, ok := e.tokens.Token(ctx)
	if !ok {
		token, err = e.tokens.Refresh(ctx, lineCode)
		if err != nil {
			return 0, err
		}
	}

	now := e.clock.Now().In(e.location)

	start := time.Now()
	minutes, err := e.query(ctx, token, lineCode, stop, now)
	observeFetch(e.metrics, "arrival", err, start)
	if err != nil {
		e.logger.Warn("Arrival query failed",
			zap.String("line", lineCode),
			zap.String("stop", stopCode),
			zap.Error(err))
		return 0, err
	}

	e.logger.Debug("Arrival estimated",
		zap.String("line", lineCode),
		zap.String("stop", stopCode),
		zap.Int("minutes", minutes))

	return minutes, nil
}

func (e *Estimator) query(ctx context.Context, token, lineCode string, stop types.Stop, now time.Time) (int, error) {
	headers := map[string]string{"X-Requested-With": "XMLHttpRequest"}
	if e.referer != "" {
		headers["Referer"] = e.referer
	}

	resp, err := e.client.PostForm(ctx, e.ajaxURL, BuildArrivalForm(token, lineCode, stop.InternalID, now), headers)
	if err != nil {
		return 0, types.WrapError(err, "arrival query failed")
	}

	if !resp.IsSuccess() {
		return 0, types.NewUpstreamHTTPError(e.ajaxURL, resp.StatusCode)
	}

	return ParseArrival(resp.Body, lineCode, now)
}

// BuildArrivalForm encodes the query the operator's AJAX endpoint expects.
// Date and time fields are zero-padded to two digits.
func BuildArrivalForm(token, lineCode, stopID string, now time.Time) url.Values {
	return url.Values{
		"action":   {arrivalAction},
		"security": {token},
		"linea":    {lineCode},
		"parada":   {stopID},
		"dia":      {fmt.Sprintf("%02d", now.Day())},
		"mes":      {fmt.Sprintf("%02d", int(now.Month()))},
		"year":     {strconv.Itoa(now.Year())},
		"hora":     {fmt.Sprintf("%02d", now.Hour())},
		"minuto":   {fmt.Sprintf("%02d", now.Minute())},
	}
}

// ParseArrival finds the entry for lineCode in the reply fragment and converts
// it to minutes from now.
func ParseArrival(body []byte, lineCode string, now time.Time) (int, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return 0, types.Errorf(types.ErrUpstreamFormat, "arrival reply is not HTML: %v", err)
	}

	label := "Linea " + lineCode + ":"

	var (
		entry string
		found bool
	)

	doc.Find("#prox_lle ul li").EachWithBreak(func(_ int, item *goquery.Selection) bool {
		text := strings.TrimSpace(item.Text())
		if strings.Contains(text, label) {
			entry = text
			found = true
			return false
		}
		return true
	})

	if !found {
		return 0, types.Errorf(types.ErrTimeNotFound, "line %s", lineCode)
	}

	return MinutesUntil(entry[strings.Index(entry, label)+len(label):], now)
}

// MinutesUntil accepts either a clock time "HH:MM" or a countdown "N min".
//
// A clock time is placed on now's date; when that instant is not strictly
// after now it is moved to the next day. The difference is floored to whole
// minutes and never negative. A countdown is returned as written.
func MinutesUntil(text string, now time.Time) (int, error) {
	if match := clockTimePattern.FindStringSubmatch(text); match != nil {
		hour, _ := strconv.Atoi(match[1])
		minute, _ := strconv.Atoi(match[2])
		if hour > 23 || minute > 59 {
			return 0, types.Errorf(types.ErrParse, "invalid clock time %q", match[0])
		}

		target := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
		if !target.After(now) {
			target = target.AddDate(0, 0, 1)
		}

		minutes := int(target.Sub(now) / time.Minute)
		if minutes < 0 {
			minutes = 0
		}
		return minutes, nil
	}

	if match := countdownPattern.FindStringSubmatch(text); match != nil {
		minutes, err := strconv.Atoi(match[1])
		if err != nil {
			return 0, types.Errorf(types.ErrParse, "invalid countdown %q", match[0])
		}
		return minutes, nil
	}

	return 0, types.Errorf(types.ErrParse, "unrecognized arrival text %q", strings.TrimSpace(text))
}
