package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stoptrack/stoptrack/pkg/stats"
)

type fakeRepository struct {
	trips       int
	punctuality stats.Punctuality
}

func (r *fakeRepository) TripsCount(_ context.Context, _ string, _ stats.DateRange) (int, error) {
	return r.trips, nil
}

func (r *fakeRepository) MaxDelayBetweenStops(_ context.Context, _ string, _ stats.DateRange) ([]stats.StopDelay, error) {
	return []stats.StopDelay{
		{StopName: "Rondo Ofiar Katynia", StopSequence: 5, MaxDelayIncrease: 120, AvgDelayIncrease: 45},
	}, nil
}

func (r *fakeRepository) RouteDelay(_ context.Context, _ string, _ stats.DateRange) ([]stats.RouteDelay, error) {
	return nil, nil
}

func (r *fakeRepository) Punctuality(_ context.Context, _ string, _ stats.DateRange) (stats.Punctuality, error) {
	return r.punctuality, nil
}

func (r *fakeRepository) Trend(_ context.Context, _ string, _ stats.DateRange) ([]stats.TrendDay, error) {
	return nil, nil
}

func (r *fakeRepository) Summary(_ context.Context, _ stats.DateRange) ([]stats.LineSummary, error) {
	return []stats.LineSummary{
		{LineNumber: "139", Events: 12, AvgDelay: 40, MaxDelay: 300},
	}, nil
}

func newTestApp(repo stats.Repository) *Server {
	server := NewServer(stats.NewService(repo, nil), time.UTC)
	server.now = func() time.Time {
		return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	}

	return server
}

func doRequest(t *testing.T, server *Server, target string) (*http.Response, map[string]any) {
	t.Helper()

	request, err := http.NewRequest(http.MethodGet, target, nil)
	require.NoError(t, err)

	response, err := server.SetupApp().Test(request, -1)
	require.NoError(t, err)

	body, err := io.ReadAll(response.Body)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))

	return response, decoded
}

func TestMaxDelayBetweenStops(t *testing.T) {
	server := newTestApp(&fakeRepository{trips: 7})

	response, body := doRequest(t, server, "/v1/lines/139/stats/max-delay-between-stops?period=TODAY")

	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, "139", body["line_number"])
	assert.Equal(t, "2026-03-10", body["start_date"])
	assert.Equal(t, "2026-03-10", body["end_date"])
	assert.Equal(t, float64(7), body["trips_analyzed"])

	rows, ok := body["max_delay"].([]any)
	require.True(t, ok)
	require.Len(t, rows, 1)
}

func TestPunctualityPercentages(t *testing.T) {
	server := newTestApp(&fakeRepository{
		trips: 3,
		punctuality: stats.Punctuality{
			Total:           8,
			OnTime:          6,
			SlightlyDelayed: 1,
			Delayed:         1,
		},
	})

	response, body := doRequest(t, server, "/v1/lines/139/stats/punctuality")

	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, float64(8), body["total_stops"])
	assert.Equal(t, 75.0, body["on_time_percent"])
	assert.Equal(t, 12.5, body["slightly_delayed_percent"])
	assert.Equal(t, 12.5, body["delayed_percent"])
}

func TestUnknownLineReturnsNotFound(t *testing.T) {
	server := newTestApp(&fakeRepository{trips: 0})

	response, body := doRequest(t, server, "/v1/lines/999/stats/punctuality?period=WEEK")

	assert.Equal(t, http.StatusNotFound, response.StatusCode)
	assert.Contains(t, body["detail"], "line 999 not found")
}

func TestDateRangeValidation(t *testing.T) {
	server := newTestApp(&fakeRepository{trips: 7})

	testCases := []struct {
		name   string
		target string
	}{
		{"start after end", "/v1/lines/139/stats/trend?start_date=2026-03-10&end_date=2026-03-01"},
		{"range too long", "/v1/lines/139/stats/trend?start_date=2025-11-01&end_date=2026-03-01"},
		{"end in future", "/v1/lines/139/stats/trend?start_date=2026-03-01&end_date=2026-03-20"},
		{"half a range", "/v1/lines/139/stats/trend?start_date=2026-03-01"},
		{"unknown period", "/v1/lines/139/stats/trend?period=FORTNIGHT"},
		{"malformed date", "/v1/lines/139/stats/trend?start_date=yesterday&end_date=2026-03-01"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			response, body := doRequest(t, server, testCase.target)

			assert.Equal(t, http.StatusUnprocessableEntity, response.StatusCode)
			assert.NotEmpty(t, body["detail"])
		})
	}
}

func TestSummaryDoesNotRequireLine(t *testing.T) {
	server := newTestApp(&fakeRepository{trips: 0})

	response, body := doRequest(t, server, "/v1/lines/stats/summary")

	assert.Equal(t, http.StatusOK, response.StatusCode)

	lines, ok := body["lines"].([]any)
	require.True(t, ok)
	require.Len(t, lines, 1)

	_, hasLineNumber := body["line_number"]
	assert.False(t, hasLineNumber)
}
