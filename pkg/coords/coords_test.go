package coords

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		format  Format
		lat     float64
		lon     float64
		delta   float64
		wantErr bool
	}{
		{name: "decimal comma", input: "19.856, 99.816", format: FormatDecimal, lat: 19.856, lon: 99.816, delta: 1e-9},
		{name: "decimal space", input: "-33.8688 151.2093", format: FormatDecimal, lat: -33.8688, lon: 151.2093, delta: 1e-9},
		{name: "dms symbols", input: `19°51'22"N 99°49'0"E`, format: FormatDMS, lat: 19.856111, lon: 99.816667, delta: 0.001},
		{name: "dms letters", input: "19d51m22sN 99d49m0sE", format: FormatDMS, lat: 19.856111, lon: 99.816667, delta: 0.001},
		{name: "dms south west", input: `40°42'46"S 74°0'22"W`, format: FormatDMS, lat: -40.713, lon: -74.006, delta: 0.001},
		{name: "utm central meridian", input: "18N 500000 4500000", format: FormatUTM, lat: 40.651, lon: -75, delta: 0.02},
		{name: "utm south", input: "56H 500000 6250000", format: FormatUTM, lat: -33.89, lon: 153, delta: 0.02},
		{name: "mgrs", input: "18SUJ23370651", format: FormatMGRS, lat: 38.889, lon: -77.035, delta: 0.01},

		{name: "empty", input: "", wantErr: true},
		{name: "address", input: "10 Downing Street", wantErr: true},
		{name: "latitude range", input: "91.0, 0", wantErr: true},
		{name: "dms minutes", input: `45°60'0"N 90°0'0"E`, wantErr: true},
		{name: "utm zone", input: "61N 500000 5000000", wantErr: true},
		{name: "mgrs odd digits", input: "18SUJ123456789", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos, err := Parse(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.format, pos.Format)
			assert.InDelta(t, tt.lat, pos.Lat(), tt.delta)
			assert.InDelta(t, tt.lon, pos.Lon(), tt.delta)
		})
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		input string
		want  Format
	}{
		{"47QME8598697460", FormatMGRS},
		{"47N 485986 2197460", FormatUTM},
		{`19°51'22"N 99°48'59"E`, FormatDMS},
		{"19.856, 99.816", FormatDecimal},
		{"Chiang Rai", FormatUnknown},
		{"", FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFormat(tt.input))
			assert.Equal(t, tt.want != FormatUnknown, IsCoordinate(tt.input))
		})
	}
}

func TestMGRSRoundTrip(t *testing.T) {
	points := []struct {
		name     string
		lat, lon float64
	}{
		{"Chiang Rai", 19.856, 99.817},
		{"Washington", 38.889, -77.035},
		{"Sydney", -33.857, 151.215},
		{"Equator", 0, 0},
	}

	for _, p := range points {
		t.Run(p.name, func(t *testing.T) {
			s, err := ToMGRS(p.lat, p.lon, 5)
			require.NoError(t, err)

			pos, err := ParseMGRS(s)
			require.NoError(t, err)
			assert.InDelta(t, p.lat, pos.Lat(), 1e-4)
			assert.InDelta(t, p.lon, pos.Lon(), 1e-4)
		})
	}

	_, err := ToMGRS(100, 0, 5)
	assert.Error(t, err)
}

func TestFormatString(t *testing.T) {
	assert.Equal(t, "mgrs", FormatMGRS.String())
	assert.Equal(t, "unknown", Format(42).String())
}
