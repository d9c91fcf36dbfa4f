package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
)

// NotFoundError means no trips for the line ran inside the window; the API
// maps it to a 404.
type NotFoundError struct {
	LineNumber string
	Dates      DateRange
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("line %s not found between %s and %s",
		e.LineNumber, e.Dates.Start.Format(dateFormat), e.Dates.End.Format(dateFormat))
}

type rangeFields struct {
	LineNumber string `json:"line_number,omitempty"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
}

type maxDelayResponse struct {
	rangeFields
	MaxDelay      []StopDelay `json:"max_delay"`
	TripsAnalyzed int         `json:"trips_analyzed"`
}

type routeDelayResponse struct {
	rangeFields
	RouteDelay    []RouteDelay `json:"route_delay"`
	TripsAnalyzed int          `json:"trips_analyzed"`
}

type punctualityResponse struct {
	rangeFields
	TotalStops             int     `json:"total_stops"`
	OnTimeCount            int     `json:"on_time_count"`
	OnTimePercent          float64 `json:"on_time_percent"`
	SlightlyDelayedCount   int     `json:"slightly_delayed_count"`
	SlightlyDelayedPercent float64 `json:"slightly_delayed_percent"`
	DelayedCount           int     `json:"delayed_count"`
	DelayedPercent         float64 `json:"delayed_percent"`
}

type trendResponse struct {
	rangeFields
	Days []TrendDay `json:"days"`
}

type summaryResponse struct {
	rangeFields
	Lines []LineSummary `json:"lines"`
}

// Service renders the aggregate endpoints, with a redis response cache in
// front of the repository. A nil cache disables caching.
type Service struct {
	repo  Repository
	cache *ResponseCache
}

func NewService(repo Repository, cache *ResponseCache) *Service {
	return &Service{repo: repo, cache: cache}
}

func (s *Service) fields(lineNumber string, dates DateRange) rangeFields {
	return rangeFields{
		LineNumber: lineNumber,
		StartDate:  dates.Start.Format(dateFormat),
		EndDate:    dates.End.Format(dateFormat),
	}
}

func (s *Service) cached(ctx context.Context, endpoint string, lineNumber string, dates DateRange) []byte {
	if s.cache == nil {
		return nil
	}

	return s.cache.Get(ctx, endpoint, lineNumber, dates)
}

func (s *Service) render(ctx context.Context, endpoint string, lineNumber string, dates DateRange, response any) ([]byte, error) {
	payload, err := json.Marshal(response)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(ctx, endpoint, lineNumber, dates, payload)
	}

	return payload, nil
}

// checkLineRan guards the per-line endpoints: a line with no completed
// trips inside the window is indistinguishable from an unknown line.
func (s *Service) checkLineRan(ctx context.Context, lineNumber string, dates DateRange) (int, error) {
	trips, err := s.repo.TripsCount(ctx, lineNumber, dates)
	if err != nil {
		return 0, err
	}
	if trips == 0 {
		return 0, NotFoundError{LineNumber: lineNumber, Dates: dates}
	}

	return trips, nil
}

func (s *Service) MaxDelayBetweenStops(ctx context.Context, lineNumber string, dates DateRange) ([]byte, error) {
	if payload := s.cached(ctx, "max-delay", lineNumber, dates); payload != nil {
		return payload, nil
	}

	trips, err := s.checkLineRan(ctx, lineNumber, dates)
	if err != nil {
		return nil, err
	}

	rows, err := s.repo.MaxDelayBetweenStops(ctx, lineNumber, dates)
	if err != nil {
		return nil, err
	}

	return s.render(ctx, "max-delay", lineNumber, dates, maxDelayResponse{
		rangeFields:   s.fields(lineNumber, dates),
		MaxDelay:      rows,
		TripsAnalyzed: trips,
	})
}

func (s *Service) RouteDelay(ctx context.Context, lineNumber string, dates DateRange) ([]byte, error) {
	if payload := s.cached(ctx, "route-delay", lineNumber, dates); payload != nil {
		return payload, nil
	}

	trips, err := s.checkLineRan(ctx, lineNumber, dates)
	if err != nil {
		return nil, err
	}

	rows, err := s.repo.RouteDelay(ctx, lineNumber, dates)
	if err != nil {
		return nil, err
	}

	return s.render(ctx, "route-delay", lineNumber, dates, routeDelayResponse{
		rangeFields:   s.fields(lineNumber, dates),
		RouteDelay:    rows,
		TripsAnalyzed: trips,
	})
}

func (s *Service) Punctuality(ctx context.Context, lineNumber string, dates DateRange) ([]byte, error) {
	if payload := s.cached(ctx, "punctuality", lineNumber, dates); payload != nil {
		return payload, nil
	}

	if _, err := s.checkLineRan(ctx, lineNumber, dates); err != nil {
		return nil, err
	}

	row, err := s.repo.Punctuality(ctx, lineNumber, dates)
	if err != nil {
		return nil, err
	}

	return s.render(ctx, "punctuality", lineNumber, dates, punctualityResponse{
		rangeFields:            s.fields(lineNumber, dates),
		TotalStops:             row.Total,
		OnTimeCount:            row.OnTime,
		OnTimePercent:          percent(row.OnTime, row.Total),
		SlightlyDelayedCount:   row.SlightlyDelayed,
		SlightlyDelayedPercent: percent(row.SlightlyDelayed, row.Total),
		DelayedCount:           row.Delayed,
		DelayedPercent:         percent(row.Delayed, row.Total),
	})
}

func (s *Service) Trend(ctx context.Context, lineNumber string, dates DateRange) ([]byte, error) {
	if payload := s.cached(ctx, "trend", lineNumber, dates); payload != nil {
		return payload, nil
	}

	if _, err := s.checkLineRan(ctx, lineNumber, dates); err != nil {
		return nil, err
	}

	rows, err := s.repo.Trend(ctx, lineNumber, dates)
	if err != nil {
		return nil, err
	}

	return s.render(ctx, "trend", lineNumber, dates, trendResponse{
		rangeFields: s.fields(lineNumber, dates),
		Days:        rows,
	})
}

func (s *Service) Summary(ctx context.Context, dates DateRange) ([]byte, error) {
	if payload := s.cached(ctx, "summary", "", dates); payload != nil {
		return payload, nil
	}

	rows, err := s.repo.Summary(ctx, dates)
	if err != nil {
		return nil, err
	}

	return s.render(ctx, "summary", "", dates, summaryResponse{
		rangeFields: s.fields("", dates),
		Lines:       rows,
	})
}

func percent(part int, total int) float64 {
	if total == 0 {
		return 0
	}

	return math.Round(float64(part)/float64(total)*1000) / 10
}
