// Package geohash implements the base-32 geohash spatial encoding used to
// scope discovery to a map cell. Pure functions, no I/O.
package geohash

import (
	"fmt"
	"strings"
)

const base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

// MaxPrecision is the longest hash we accept; 12 characters already resolves
// to centimeters.
const MaxPrecision = 12

var base32Index = func() map[byte]int {
	m := make(map[byte]int, len(base32))
	for i := 0; i < len(base32); i++ {
		m[base32[i]] = i
	}
	return m
}()

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Bounds is the rectangular cell a hash decodes to.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
}

// Contains reports whether p lies within b (inclusive edges).
func (b Bounds) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat &&
		p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}

// Center returns the midpoint of the cell.
func (b Bounds) Center() Point {
	return Point{
		Lat: (b.MinLat + b.MaxLat) / 2,
		Lon: (b.MinLon + b.MaxLon) / 2,
	}
}

// Valid reports whether p is a representable coordinate.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Encode returns the geohash cell containing (lat, lon) at the given
// precision (number of base-32 characters).
func Encode(lat, lon float64, precision int) string {
	if precision < 1 {
		precision = 1
	}
	if precision > MaxPrecision {
		precision = MaxPrecision
	}

	latMin, latMax := -90.0, 90.0
	lonMin, lonMax := -180.0, 180.0

	var sb strings.Builder
	sb.Grow(precision)

	bit := 0
	ch := 0
	even := true // even bits encode longitude

	for sb.Len() < precision {
		if even {
			mid := (lonMin + lonMax) / 2
			if lon >= mid {
				ch = ch<<1 | 1
				lonMin = mid
			} else {
				ch = ch << 1
				lonMax = mid
			}
		} else {
			mid := (latMin + latMax) / 2
			if lat >= mid {
				ch = ch<<1 | 1
				latMin = mid
			} else {
				ch = ch << 1
				latMax = mid
			}
		}
		even = !even
		bit++
		if bit == 5 {
			sb.WriteByte(base32[ch])
			bit = 0
			ch = 0
		}
	}
	return sb.String()
}

// Decode returns the center point and bounds of the cell named by hash.
func Decode(hash string) (Point, Bounds, error) {
	if hash == "" {
		return Point{}, Bounds{}, fmt.Errorf("empty geohash")
	}
	if len(hash) > MaxPrecision {
		return Point{}, Bounds{}, fmt.Errorf("geohash %q longer than %d characters", hash, MaxPrecision)
	}

	b := Bounds{MinLat: -90, MaxLat: 90, MinLon: -180, MaxLon: 180}
	even := true

	for i := 0; i < len(hash); i++ {
		cd, ok := base32Index[hash[i]]
		if !ok {
			return Point{}, Bounds{}, fmt.Errorf("invalid geohash character %q in %q", hash[i], hash)
		}
		for mask := 16; mask > 0; mask >>= 1 {
			if even {
				mid := (b.MinLon + b.MaxLon) / 2
				if cd&mask != 0 {
					b.MinLon = mid
				} else {
					b.MaxLon = mid
				}
			} else {
				mid := (b.MinLat + b.MaxLat) / 2
				if cd&mask != 0 {
					b.MinLat = mid
				} else {
					b.MaxLat = mid
				}
			}
			even = !even
		}
	}
	return b.Center(), b, nil
}
