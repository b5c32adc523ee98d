package facts

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gatekeeper-api/utils"
)

// TimeEndpoints are the upstream bases used by TimeClient. Empty fields use the
// public defaults.
type TimeEndpoints struct {
	TimeAPI   string // https://timeapi.io
	OpenMeteo string // https://api.open-meteo.com
	Geocoding string // https://geocoding-api.open-meteo.com
}

// TimeClient resolves the local time at a place.
type TimeClient struct {
	ep   TimeEndpoints
	http *http.Client
	now  func() time.Time
}

func NewTimeClient(ep TimeEndpoints, httpClient *http.Client) *TimeClient {
	if ep.TimeAPI == "" {
		ep.TimeAPI = "https://timeapi.io"
	}
	if ep.OpenMeteo == "" {
		ep.OpenMeteo = "https://api.open-meteo.com"
	}
	if ep.Geocoding == "" {
		ep.Geocoding = "https://geocoding-api.open-meteo.com"
	}
	ep.TimeAPI = strings.TrimRight(ep.TimeAPI, "/")
	ep.OpenMeteo = strings.TrimRight(ep.OpenMeteo, "/")
	ep.Geocoding = strings.TrimRight(ep.Geocoding, "/")
	if httpClient == nil {
		httpClient = utils.FactHTTPClient
	}
	return &TimeClient{ep: ep, http: httpClient, now: time.Now}
}

// countryOffsets is standard-time UTC offset in minutes, by the most populous zone.
var countryOffsets = map[string]int{
	"US": -300, "CA": -300, "MX": -360, "BR": -180, "AR": -180, "CL": -240, "CO": -300, "PE": -300,
	"GB": 0, "IE": 0, "PT": 0, "IS": 0, "MA": 60,
	"FR": 60, "DE": 60, "ES": 60, "IT": 60, "NL": 60, "BE": 60, "CH": 60, "AT": 60,
	"SE": 60, "NO": 60, "DK": 60, "PL": 60, "CZ": 60, "HU": 60, "NG": 60,
	"GR": 120, "FI": 120, "UA": 120, "RO": 120, "EG": 120, "ZA": 120, "IL": 120,
	"TR": 180, "RU": 180, "SA": 180, "KE": 180,
	"IR": 210, "AE": 240, "AF": 270, "PK": 300, "IN": 330, "LK": 330, "NP": 345, "BD": 360,
	"TH": 420, "VN": 420, "ID": 420,
	"CN": 480, "SG": 480, "HK": 480, "PH": 480, "TW": 480, "MY": 480,
	"JP": 540, "KR": 540, "AU": 600, "NZ": 720,
}

type offsetBox struct {
	latMin, latMax, lonMin, lonMax float64
	offset                         int
}

// offsetBoxes are checked in order; the first containing box wins.
var offsetBoxes = []offsetBox{
	{49.5, 61, -8.5, 2, 0},     // UK & Ireland
	{36, 71, -9.5, 24, 60},     // central Europe
	{34, 42, 19, 30, 120},      // Greece and the Balkans south
	{26, 31, 80, 88.5, 345},    // Nepal
	{6, 36, 68, 97.5, 330},     // India
	{25, 40, 44, 63.5, 210},    // Iran
	{30, 46, 129, 146, 540},    // Japan
	{33, 39, 124, 130, 540},    // Korea
	{18, 54, 73, 135, 480},     // China
	{24, 50, -85, -66, -300},   // US Eastern
	{25, 50, -104, -85, -360},  // US Central
	{31, 49, -114, -104, -420}, // US Mountain
	{32, 49, -125, -114, -480}, // US Pacific
	{-44, -10, 141, 154, 600},  // eastern Australia
	{-34, 5, -74, -34, -180},   // Brazil
}

func boxOffset(lat, lon float64) (int, bool) {
	for _, b := range offsetBoxes {
		if lat >= b.latMin && lat <= b.latMax && lon >= b.lonMin && lon <= b.lonMax {
			return b.offset, true
		}
	}
	return 0, false
}

// longitudeOffset is solar time rounded to the hour.
func longitudeOffset(lon float64) int {
	return int(math.Round(lon/15)) * 60
}

// LocalTime reports the local wall-clock time at coordinates or a named city. It
// always answers: each upstream failure falls through to a coarser estimate.
func (p *Providers) LocalTime(ctx context.Context, lat, lon *float64, city string) Result {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	tc := p.Time
	now := time.Now
	if tc != nil {
		now = tc.now
	}

	hasCoords := lat != nil && lon != nil && !(*lat == 0 && *lon == 0)
	var la, lo float64
	if hasCoords {
		la, lo = *lat, *lon
	}
	country := ""
	resolvedCity := ""

	if !hasCoords && city != "" && tc != nil {
		g, err := tc.geocode(ctx, city)
		if err != nil {
			utils.Log.Warnf("⚠️ [TIME] geocode %q failed: %v", city, err)
		} else {
			la, lo, hasCoords = g.Latitude, g.Longitude, true
			country = strings.ToUpper(g.CountryCode)
			resolvedCity = g.Name
		}
	}

	utcNow := now().UTC()
	offset, source, zone := 0, "", ""

	if hasCoords && tc != nil {
		if off, tz, err := tc.timeAPIOffset(ctx, la, lo, utcNow); err == nil {
			offset, source, zone = off, "timeapi", tz
		} else {
			utils.Log.Debugf("[TIME] timeapi failed: %v", err)
			if off, tz, err := tc.meteoOffset(ctx, la, lo); err == nil {
				offset, source, zone = off, "open-meteo", tz
			} else {
				utils.Log.Debugf("[TIME] open-meteo failed: %v", err)
			}
		}
	}
	if source == "" && country != "" {
		if off, ok := countryOffsets[country]; ok {
			offset, source = off, "country_table"
		}
	}
	if source == "" && hasCoords {
		if off, ok := boxOffset(la, lo); ok {
			offset, source = off, "bounding_box"
		} else {
			offset, source = longitudeOffset(lo), "longitude"
		}
	}
	if source == "" {
		source = "utc_default"
	}

	local := utcNow.Add(time.Duration(offset) * time.Minute)
	out := Result{
		"local_hour":         local.Hour(),
		"local_minute":       local.Minute(),
		"local_time":         local.Format("15:04"),
		"local_weekday":      local.Weekday().String(),
		"utc_hour":           utcNow.Hour(),
		"utc_minute":         utcNow.Minute(),
		"utc_offset_minutes": offset,
		"source":             source,
	}
	if zone != "" {
		out["timezone"] = zone
	}
	if resolvedCity != "" {
		out["city"] = resolvedCity
	}
	return out
}

type geocodeHit struct {
	Name        string  `json:"name"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	CountryCode string  `json:"country_code"`
	Timezone    string  `json:"timezone"`
}

func (t *TimeClient) geocode(ctx context.Context, city string) (*geocodeHit, error) {
	q := url.Values{}
	q.Set("name", city)
	q.Set("count", "1")
	q.Set("language", "en")
	q.Set("format", "json")

	var body struct {
		Results []geocodeHit `json:"results"`
	}
	if err := t.getJSON(ctx, t.ep.Geocoding+"/v1/search?"+q.Encode(), &body); err != nil {
		return nil, err
	}
	if len(body.Results) == 0 {
		return nil, fmt.Errorf("no match for %q", city)
	}
	return &body.Results[0], nil
}

func (t *TimeClient) timeAPIOffset(ctx context.Context, lat, lon float64, utcNow time.Time) (int, string, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))

	var body struct {
		Hour     *int   `json:"hour"`
		Minute   *int   `json:"minute"`
		TimeZone string `json:"timeZone"`
	}
	if err := t.getJSON(ctx, t.ep.TimeAPI+"/api/Time/current/coordinate?"+q.Encode(), &body); err != nil {
		return 0, "", err
	}
	if body.Hour == nil || body.Minute == nil {
		return 0, "", fmt.Errorf("timeapi response missing hour/minute")
	}
	return offsetFromWallClock(*body.Hour, *body.Minute, utcNow), body.TimeZone, nil
}

// offsetFromWallClock infers the UTC offset from a reported local hour:minute,
// rounded to the nearest quarter hour and folded into [-12h, +14h].
func offsetFromWallClock(hour, minute int, utcNow time.Time) int {
	diff := float64((hour*60 + minute) - (utcNow.Hour()*60 + utcNow.Minute()))
	if diff > 14*60 {
		diff -= 24 * 60
	}
	if diff < -12*60 {
		diff += 24 * 60
	}
	return int(math.Round(diff/15)) * 15
}

func (t *TimeClient) meteoOffset(ctx context.Context, lat, lon float64) (int, string, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	q.Set("timezone", "auto")
	q.Set("current", "temperature_2m")

	var body struct {
		UTCOffsetSeconds *int   `json:"utc_offset_seconds"`
		Timezone         string `json:"timezone"`
	}
	if err := t.getJSON(ctx, t.ep.OpenMeteo+"/v1/forecast?"+q.Encode(), &body); err != nil {
		return 0, "", err
	}
	if body.UTCOffsetSeconds == nil {
		return 0, "", fmt.Errorf("open-meteo response missing utc_offset_seconds")
	}
	return *body.UTCOffsetSeconds / 60, body.Timezone, nil
}

func (t *TimeClient) getJSON(ctx context.Context, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := t.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, req.URL.Host)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
