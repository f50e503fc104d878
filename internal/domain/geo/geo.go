// Package geo provides coordinate, distance, and slippy-map tile math.
package geo

import (
	"fmt"
	"math"
)

// EarthRadiusKm is the mean Earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0

// KmPerDegree is the flat-earth approximation used for small regional spans.
const KmPerDegree = 111.0

// Coordinate is a device location sample. Accuracy is in meters.
type Coordinate struct {
	Lat      float64 `json:"latitude"`
	Lon      float64 `json:"longitude"`
	Accuracy float64 `json:"accuracy"`
}

// BoundingBox is a south/north/west/east rectangle in degrees.
type BoundingBox struct {
	South float64 `json:"south"`
	North float64 `json:"north"`
	West  float64 `json:"west"`
	East  float64 `json:"east"`
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() (lat, lon float64) {
	return (b.South + b.North) / 2, (b.West + b.East) / 2
}

// DiagonalKm approximates the box diagonal with 111 km per degree of
// latitude and a cos(lat) correction for longitude.
func (b BoundingBox) DiagonalKm() float64 {
	centerLat, _ := b.Center()
	dLatKm := (b.North - b.South) * KmPerDegree
	dLonKm := (b.East - b.West) * KmPerDegree * math.Cos(centerLat*math.Pi/180)
	return math.Sqrt(dLatKm*dLatKm + dLonKm*dLonKm)
}

// TileKey identifies one raster tile in the global slippy-map scheme.
type TileKey struct {
	Zoom int `json:"zoom"`
	X    int `json:"x"`
	Y    int `json:"y"`
}

// String renders the key in the z_x_y form used for cache keys.
func (k TileKey) String() string {
	return fmt.Sprintf("%d_%d_%d", k.Zoom, k.X, k.Y)
}

// TileX projects a longitude onto the tile grid at the given zoom.
func TileX(lon float64, zoom int) int {
	return int(math.Floor((lon + 180) / 360 * math.Pow(2, float64(zoom))))
}

// TileY projects a latitude onto the tile grid at the given zoom.
// Undefined at the poles; callers stay within geocoded bounding boxes.
func TileY(lat float64, zoom int) int {
	latRad := lat * math.Pi / 180
	return int(math.Floor((1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * math.Pow(2, float64(zoom))))
}

// ProjectToTile maps a coordinate to its containing tile at the given zoom.
func ProjectToTile(lat, lon float64, zoom int) TileKey {
	return TileKey{Zoom: zoom, X: TileX(lon, zoom), Y: TileY(lat, zoom)}
}

// TileRange returns the inclusive tile-index rectangle covering the box at
// the given zoom. North maps to yMin because tile y grows southward.
func TileRange(b BoundingBox, zoom int) (xMin, xMax, yMin, yMax int) {
	return TileX(b.West, zoom), TileX(b.East, zoom), TileY(b.North, zoom), TileY(b.South, zoom)
}

// TileCount returns the number of tiles in the rectangle covering the box.
func TileCount(b BoundingBox, zoom int) int {
	xMin, xMax, yMin, yMax := TileRange(b, zoom)
	nx := xMax - xMin + 1
	ny := yMax - yMin + 1
	if nx < 0 {
		nx = 0
	}
	if ny < 0 {
		ny = 0
	}
	return nx * ny
}

// HaversineKm computes the great-circle distance between two points in km.
// NaN inputs propagate NaN.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// ValidateCoords reports whether a latitude/longitude pair is in range.
func ValidateCoords(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("invalid latitude: %f (must be between -90 and 90)", lat)
	}
	if lon < -180 || lon > 180 {
		return fmt.Errorf("invalid longitude: %f (must be between -180 and 180)", lon)
	}
	return nil
}

// SquareAround returns a bounding box spanning spanKm in each cardinal
// direction from the center, using the flat-earth degree approximation.
func SquareAround(center Coordinate, spanKm float64) BoundingBox {
	spanDeg := spanKm / KmPerDegree
	return BoundingBox{
		South: center.Lat - spanDeg,
		North: center.Lat + spanDeg,
		West:  center.Lon - spanDeg,
		East:  center.Lon + spanDeg,
	}
}
