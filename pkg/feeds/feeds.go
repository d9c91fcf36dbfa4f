package feeds

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/stoptrack/stoptrack/pkg/util"
)

// Feed describes one agency's GTFS endpoints.
type Feed struct {
	Agency      string `json:"agency"`
	StaticURL   string `json:"static_url"`
	RealtimeURL string `json:"realtime_url"`
	Timezone    string `json:"timezone"`
}

// Location resolves the agency timezone, defaulting to UTC.
func (f *Feed) Location() *time.Location {
	if f.Timezone == "" {
		return time.UTC
	}

	location, err := time.LoadLocation(f.Timezone)
	if err != nil {
		return time.UTC
	}

	return location
}

// GetRegisteredFeeds reads the agency feed definitions from the
// STOPTRACK_FEEDS environment variable (a JSON array).
func GetRegisteredFeeds() ([]Feed, error) {
	env := util.GetEnvironmentVariables()

	raw := env["STOPTRACK_FEEDS"]
	if raw == "" {
		return nil, errors.New("no feeds configured, set STOPTRACK_FEEDS")
	}

	var feedList []Feed
	if err := json.Unmarshal([]byte(raw), &feedList); err != nil {
		return nil, err
	}

	for _, feed := range feedList {
		if feed.Agency == "" {
			return nil, errors.New("feed definition is missing an agency identifier")
		}
	}

	return feedList, nil
}

// GetFeed returns the feed definition for a single agency.
func GetFeed(agency string) (Feed, error) {
	feedList, err := GetRegisteredFeeds()
	if err != nil {
		return Feed{}, err
	}

	for _, feed := range feedList {
		if feed.Agency == agency {
			return feed, nil
		}
	}

	return Feed{}, errors.New("feed could not be found for agency " + agency)
}
