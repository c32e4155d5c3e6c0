package weather

// Default values used whenever no provider can produce a reading.
const (
	DefaultTemperature = 25.0
	DefaultHumidity    = 60.0
	DefaultRainfall    = 100.0
)

// HoursPerDay scales an hourly precipitation figure to a daily-equivalent rate.
// This is an approximation, not a physical model.
const HoursPerDay = 24.0

// Location is a point on the globe in decimal degrees.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the coordinates are within WGS84 bounds.
func (l Location) Valid() bool {
	return l.Lat >= -90 && l.Lat <= 90 && l.Lon >= -180 && l.Lon <= 180
}

// Reading is the environmental context used for a prediction.
// Rainfall is daily-equivalent millimetres. Readings are never persisted on their own.
type Reading struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Rainfall    float64 `json:"rainfall"`
}

// DefaultReading returns the fixed fallback reading.
func DefaultReading() Reading {
	return Reading{
		Temperature: DefaultTemperature,
		Humidity:    DefaultHumidity,
		Rainfall:    DefaultRainfall,
	}
}

// Source says where a Resolution's reading came from.
type Source string

const (
	SourceProvider Source = "provider"
	SourceDefault  Source = "default"
)

// FallbackReason explains why the default reading was used.
type FallbackReason string

const (
	ReasonNone               FallbackReason = ""
	ReasonNoProvider         FallbackReason = "no_provider_configured"
	ReasonProviderFailed     FallbackReason = "provider_failed"
	ReasonInvalidCoordinates FallbackReason = "invalid_coordinates"
)

// Resolution is the typed outcome of a weather lookup: either a provider reading
// or the default reading together with the reason for falling back.
type Resolution struct {
	Reading  Reading
	Source   Source
	Provider string
	Reason   FallbackReason
	// Errors holds one entry per provider that failed, in the order tried.
	Errors []error
}

// Fallback reports whether the default reading was used.
func (r Resolution) Fallback() bool {
	return r.Source == SourceDefault
}
