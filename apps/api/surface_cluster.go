package main

import (
	"math"

	"github.com/paulmach/orb"
)

const (
	tileSize       = 256.0
	maxMercatorLat = 85.05112878
)

// projectPixel maps a (lng, lat) point to world pixel space at zoom.
func projectPixel(p orb.Point, zoom int) orb.Point {
	lng := math.Max(-180, math.Min(180, p.Lon()))
	lat := math.Max(-maxMercatorLat, math.Min(maxMercatorLat, p.Lat()))
	latRad := lat * math.Pi / 180
	scale := tileSize * math.Pow(2, float64(zoom))
	x := (lng + 180) / 360
	y := 0.5 - math.Log(math.Tan(latRad*0.5+math.Pi/4))/math.Pi*0.5
	return orb.Point{x * scale, y * scale}
}

// unprojectPixel is the inverse of projectPixel.
func unprojectPixel(p orb.Point, zoom int) orb.Point {
	scale := tileSize * math.Pow(2, float64(zoom))
	x := p.X() / scale
	y := p.Y() / scale
	lng := x*360 - 180
	lat := math.Atan(math.Sinh(math.Pi*(1-2*y))) * 180 / math.Pi
	return orb.Point{lng, lat}
}

// pixelCluster is one drawn icon: a lone marker or a collapsed group.
type pixelCluster struct {
	anchor    orb.Point
	sumX      float64
	sumY      float64
	markerIDs []string
}

func (c *pixelCluster) center(zoom int) orb.Point {
	n := float64(len(c.markerIDs))
	return unprojectPixel(orb.Point{c.sumX / n, c.sumY / n}, zoom)
}

type clusterInput struct {
	id       string
	position orb.Point
}

// clusterAtZoom greedily folds markers into clusters: each marker joins the
// first cluster whose anchor lies within radiusPx, in insertion order.
// Candidate clusters are found through a grid with radiusPx cells.
func clusterAtZoom(markers []clusterInput, zoom int, radiusPx float64) []*pixelCluster {
	if radiusPx <= 0 {
		radiusPx = 1
	}
	type cell struct{ x, y int }
	grid := make(map[cell][]*pixelCluster)
	clusters := make([]*pixelCluster, 0, len(markers))

	for _, m := range markers {
		px := projectPixel(m.position, zoom)
		cx := int(math.Floor(px.X() / radiusPx))
		cy := int(math.Floor(px.Y() / radiusPx))

		var target *pixelCluster
	search:
		for dx := -1; dx <= 1; dx++ {
			for dy := -1; dy <= 1; dy++ {
				for _, candidate := range grid[cell{cx + dx, cy + dy}] {
					ax, ay := candidate.anchor.X()-px.X(), candidate.anchor.Y()-px.Y()
					if ax*ax+ay*ay <= radiusPx*radiusPx {
						target = candidate
						break search
					}
				}
			}
		}

		if target == nil {
			target = &pixelCluster{anchor: px}
			grid[cell{cx, cy}] = append(grid[cell{cx, cy}], target)
			clusters = append(clusters, target)
		}
		target.sumX += px.X()
		target.sumY += px.Y()
		target.markerIDs = append(target.markerIDs, m.id)
	}
	return clusters
}
