package fitbit

import (
	"fmt"
	"regexp"
	"time"
)

// DateLayout is the date format used in Fitbit API paths
const DateLayout = "2006-01-02"

const (
	heartRateEndpoint = "1/user/-/activities/heart/date/%s/1d.json"
	stepsEndpoint     = "1/user/-/activities/steps/date/%s/1d.json"
	sleepEndpoint     = "1.2/user/-/sleep/date/%s.json"
	weightEndpoint    = "1/user/-/body/log/weight/date/%s.json"
	rangeEndpoint     = "1/user/-/%s/date/%s/%s.json"
)

// resourcePattern accepts resource paths such as "activities/steps", "body/weight" or
// "activities/tracker/minutesSedentary". Dots and empty segments are rejected.
var resourcePattern = regexp.MustCompile(`^[A-Za-z]+(/[A-Za-z]+)*$`)

// ValidDate reports whether s is a Fitbit path date: YYYY-MM-DD or "today"
func ValidDate(s string) bool {
	if s == "today" {
		return true
	}
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// ValidResource reports whether s is safe to place in a time-series path
func ValidResource(s string) bool {
	return resourcePattern.MatchString(s)
}

// dailyEndpoint fills a single-date template, defaulting to today's local date
func (l *Linker) dailyEndpoint(template, date string) (string, error) {
	if date == "" {
		date = l.now().Format(DateLayout)
	}
	if !ValidDate(date) {
		return "", fmt.Errorf("invalid date %q, expected %s", date, DateLayout)
	}
	return fmt.Sprintf(template, date), nil
}

func rangeEndpointFor(resource, startDate, endDate string) (string, error) {
	if !ValidResource(resource) {
		return "", fmt.Errorf("invalid resource %q", resource)
	}
	if !ValidDate(startDate) || !ValidDate(endDate) {
		return "", fmt.Errorf("invalid date range %q to %q", startDate, endDate)
	}
	return fmt.Sprintf(rangeEndpoint, resource, startDate, endDate), nil
}
