// Package coords reads positions written as MGRS, UTM, degrees minutes
// seconds or decimal degrees.
package coords

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/akhenakh/mgrs"
	"github.com/paulmach/orb"
)

// Format is the notation a position was written in.
type Format int

const (
	FormatUnknown Format = iota
	FormatDecimal        // "lat, lon"
	FormatDMS            // degrees minutes seconds with hemisphere letters
	FormatMGRS           // Military Grid Reference System
	FormatUTM            // Universal Transverse Mercator
)

func (f Format) String() string {
	switch f {
	case FormatDecimal:
		return "decimal"
	case FormatDMS:
		return "dms"
	case FormatMGRS:
		return "mgrs"
	case FormatUTM:
		return "utm"
	default:
		return "unknown"
	}
}

// Position is a parsed WGS84 position.
type Position struct {
	Point  orb.Point `json:"point"` // lon, lat
	Format Format    `json:"-"`
	Input  string    `json:"input"`
}

// Lat returns the latitude in degrees.
func (p Position) Lat() float64 { return p.Point.Lat() }

// Lon returns the longitude in degrees.
func (p Position) Lon() float64 { return p.Point.Lon() }

var (
	// MGRS: Grid Zone Designator (1-60 + latitude band A-Z except I,O) + 100km square ID (2 letters) + numeric location
	// Examples: 47QNB8598697460, 18SUJ2337506519, 4QFJ12345678
	mgrsRegex = regexp.MustCompile(`(?i)^(\d{1,2})([C-HJ-NP-X])([A-HJ-NP-Z]{2})(\d{2,10})$`)

	// UTM: Zone + hemisphere + easting + northing
	// Examples: "47N 485986 2197460", "18T 234567 4567890"
	utmRegex = regexp.MustCompile(`(?i)^(\d{1,2})([A-Z])\s+(\d+)\s+(\d+)$`)

	// DMS: Degrees Minutes Seconds with direction
	// Examples: "19°51'22"N 99°48'59"E", "19d51m22sN 99d48m59sE"
	// Also handles: 19 51 22 N 99 48 59 E
	dmsRegex = regexp.MustCompile(`(?i)^(-?\d+)[°d\s]+(\d+)[′'m\s]+(\d+(?:\.\d+)?)[″"s]?\s*([NS])[\s,]+(-?\d+)[°d\s]+(\d+)[′'m\s]+(\d+(?:\.\d+)?)[″"s]?\s*([EW])$`)

	// Decimal degrees: lat, lon or lat lon
	// Examples: "19.856, 99.816", "19.856 99.816", "-33.8688, 151.2093"
	decimalRegex = regexp.MustCompile(`^(-?\d+\.?\d*)[,\s]+(-?\d+\.?\d*)$`)
)

// parsers are tried in order, most specific pattern first.
var parsers = []struct {
	format Format
	re     *regexp.Regexp
	parse  func(string) (*Position, error)
}{
	{FormatMGRS, mgrsRegex, ParseMGRS},
	{FormatUTM, utmRegex, ParseUTM},
	{FormatDMS, dmsRegex, ParseDMS},
	{FormatDecimal, decimalRegex, ParseDecimal},
}

// Parse detects the notation of input and converts it.
func Parse(input string) (*Position, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("empty coordinate string")
	}
	for _, p := range parsers {
		if pos, err := p.parse(input); err == nil {
			return pos, nil
		}
	}
	return nil, fmt.Errorf("unrecognized coordinate format: %q", input)
}

// DetectFormat reports which notation input looks like without
// converting it.
func DetectFormat(input string) Format {
	input = strings.TrimSpace(input)
	for _, p := range parsers {
		if p.re.MatchString(input) {
			return p.format
		}
	}
	return FormatUnknown
}

// IsCoordinate reports whether input looks like a position.
func IsCoordinate(input string) bool {
	return DetectFormat(input) != FormatUnknown
}

func position(lat, lon float64, f Format, input string) (*Position, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("%s %q converts to out of range lat=%f, lon=%f", f, input, lat, lon)
	}
	return &Position{Point: orb.Point{lon, lat}, Format: f, Input: input}, nil
}

// ParseMGRS parses a grid reference such as 47QME8598697460. The numeric
// part has an even number of digits, 2 for 10km down to 10 for 1m.
func ParseMGRS(input string) (*Position, error) {
	input = strings.TrimSpace(strings.ToUpper(input))
	if !mgrsRegex.MatchString(input) {
		return nil, fmt.Errorf("invalid MGRS format: %q", input)
	}
	lat, lon, err := mgrs.MGRSToLatLng(input)
	if err != nil {
		return nil, fmt.Errorf("MGRS conversion failed: %w", err)
	}
	return position(lat, lon, FormatMGRS, input)
}

// ParseUTM parses "zone band easting northing", e.g. "18T 234567 4567890".
// Bands N and above are north of the equator.
func ParseUTM(input string) (*Position, error) {
	input = strings.TrimSpace(strings.ToUpper(input))
	m := utmRegex.FindStringSubmatch(input)
	if m == nil {
		return nil, fmt.Errorf("invalid UTM format: %q", input)
	}

	zone, err := strconv.Atoi(m[1])
	if err != nil || zone < 1 || zone > 60 {
		return nil, fmt.Errorf("invalid UTM zone: %s", m[1])
	}
	easting, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid UTM easting: %s", m[3])
	}
	northing, err := strconv.ParseFloat(m[4], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid UTM northing: %s", m[4])
	}

	lat, lon := utmToLatLon(zone, easting, northing, m[2][0] >= 'N')
	return position(lat, lon, FormatUTM, input)
}

// ParseDMS parses forms such as 19°51'22"N 99°48'59"E, 19d51m22sN
// 99d48m59sE or 19 51 22 N 99 48 59 E.
func ParseDMS(input string) (*Position, error) {
	input = strings.TrimSpace(input)
	m := dmsRegex.FindStringSubmatch(input)
	if m == nil {
		return nil, fmt.Errorf("invalid DMS format: %q", input)
	}

	lat, err := dmsDegrees(m[1], m[2], m[3], 90)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude in %q: %w", input, err)
	}
	lon, err := dmsDegrees(m[5], m[6], m[7], 180)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude in %q: %w", input, err)
	}
	if strings.EqualFold(m[4], "S") {
		lat = -lat
	}
	if strings.EqualFold(m[8], "W") {
		lon = -lon
	}
	return position(lat, lon, FormatDMS, input)
}

func dmsDegrees(d, m, s string, max float64) (float64, error) {
	deg, _ := strconv.ParseFloat(d, 64)
	min, _ := strconv.ParseFloat(m, 64)
	sec, _ := strconv.ParseFloat(s, 64)
	if deg > max || min >= 60 || sec >= 60 {
		return 0, fmt.Errorf("%s %s %s out of range", d, m, s)
	}
	return deg + min/60 + sec/3600, nil
}

// ParseDecimal parses "lat, lon" or "lat lon".
func ParseDecimal(input string) (*Position, error) {
	input = strings.TrimSpace(input)
	m := decimalRegex.FindStringSubmatch(input)
	if m == nil {
		return nil, fmt.Errorf("invalid decimal format: %q", input)
	}
	lat, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude: %s", m[1])
	}
	lon, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude: %s", m[2])
	}
	return position(lat, lon, FormatDecimal, input)
}

// ToMGRS formats a position as a grid reference. Precision 1 to 5 gives
// 10km down to 1m; anything else means 1m.
func ToMGRS(lat, lon float64, precision int) (string, error) {
	if precision < 1 || precision > 5 {
		precision = 5
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return "", fmt.Errorf("coordinates out of range: lat=%f, lon=%f", lat, lon)
	}
	s, err := mgrs.LatLngToMGRS(lat, lon, precision)
	if err != nil {
		return "", fmt.Errorf("MGRS conversion failed: %w", err)
	}
	return s, nil
}

// utmToLatLon converts UTM coordinates to latitude/longitude (WGS84)
// Using the standard Karney algorithm
func utmToLatLon(zone int, easting, northing float64, isNorthern bool) (lat, lon float64) {
	// WGS84 ellipsoid parameters
	const (
		a  = 6378137.0         // Semi-major axis (meters)
		f  = 1 / 298.257223563 // Flattening
		k0 = 0.9996            // Scale factor
	)

	// Derived constants
	b := a * (1 - f)             // Semi-minor axis
	e2 := (a*a - b*b) / (a * a)  // First eccentricity squared
	ep2 := (a*a - b*b) / (b * b) // Second eccentricity squared
	e1 := (1 - math.Sqrt(1-e2)) / (1 + math.Sqrt(1-e2))

	// Remove false easting and northing
	x := easting - 500000.0
	y := northing
	if !isNorthern {
		y = y - 10000000.0
	}

	// Central meridian
	lon0 := float64((zone-1)*6-180+3) * math.Pi / 180.0

	// Footpoint latitude
	m := y / k0
	mu := m / (a * (1 - e2/4 - 3*e2*e2/64 - 5*e2*e2*e2/256))

	phi1 := mu +
		(3*e1/2-27*e1*e1*e1/32)*math.Sin(2*mu) +
		(21*e1*e1/16-55*e1*e1*e1*e1/32)*math.Sin(4*mu) +
		(151*e1*e1*e1/96)*math.Sin(6*mu) +
		(1097*e1*e1*e1*e1/512)*math.Sin(8*mu)

	// Calculate parameters at footpoint latitude
	sinPhi1 := math.Sin(phi1)
	cosPhi1 := math.Cos(phi1)
	tanPhi1 := math.Tan(phi1)

	n1 := a / math.Sqrt(1-e2*sinPhi1*sinPhi1)
	t1 := tanPhi1 * tanPhi1
	c1 := ep2 * cosPhi1 * cosPhi1
	r1 := a * (1 - e2) / math.Pow(1-e2*sinPhi1*sinPhi1, 1.5)
	d := x / (n1 * k0)

	// Calculate latitude (in radians)
	lat = phi1 - (n1*tanPhi1/r1)*(d*d/2-
		(5+3*t1+10*c1-4*c1*c1-9*ep2)*d*d*d*d/24+
		(61+90*t1+298*c1+45*t1*t1-252*ep2-3*c1*c1)*d*d*d*d*d*d/720)

	// Calculate longitude (in radians)
	lon = lon0 + (d-
		(1+2*t1+c1)*d*d*d/6+
		(5-2*c1+28*t1-3*c1*c1+8*ep2+24*t1*t1)*d*d*d*d*d/120)/cosPhi1

	// Convert to degrees
	lat = lat * 180 / math.Pi
	lon = lon * 180 / math.Pi

	return lat, lon
}
