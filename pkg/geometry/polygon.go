package geometry

import (
	"math"
	"sort"
)

// ConvexHull computes the convex hull of a set of points using a monotone
// chain. Returns the hull in counter-clockwise order (in a y-up frame).
func ConvexHull(points []Point2D) []Point2D {
	if len(points) < 3 {
		out := make([]Point2D, len(points))
		copy(out, points)
		return out
	}

	pts := make([]Point2D, len(points))
	copy(pts, points)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].X != pts[j].X {
			return pts[i].X < pts[j].X
		}
		return pts[i].Y < pts[j].Y
	})

	hull := make([]Point2D, 0, 2*len(pts))
	for _, p := range pts {
		for len(hull) >= 2 && crossProduct(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(pts) - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && crossProduct(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

// PolygonArea returns the signed area of a simple polygon (shoelace formula).
// Counter-clockwise polygons have positive area.
func PolygonArea(polygon []Point2D) float64 {
	n := len(polygon)
	if n < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += polygon[i].X*polygon[j].Y - polygon[j].X*polygon[i].Y
	}
	return sum / 2
}

// IsConvex returns true if the polygon vertices form a convex polygon.
// The polygon is assumed to be simple (non-self-intersecting).
func IsConvex(polygon []Point2D) bool {
	if len(polygon) < 3 {
		return false
	}

	n := len(polygon)
	var sign int

	for i := 0; i < n; i++ {
		cross := crossProduct(polygon[i], polygon[(i+1)%n], polygon[(i+2)%n])
		if cross == 0 {
			continue
		}
		current := 1
		if cross < 0 {
			current = -1
		}
		if sign == 0 {
			sign = current
		} else if current != sign {
			return false
		}
	}

	return true
}

// IntersectPolygons computes the intersection of two convex polygons using
// the Sutherland-Hodgman algorithm. Both polygons must be counter-clockwise.
// Returns nil if there is no intersection or if inputs are invalid.
func IntersectPolygons(subject, clip []Point2D) []Point2D {
	if len(subject) < 3 || len(clip) < 3 {
		return nil
	}

	output := make([]Point2D, len(subject))
	copy(output, subject)

	for i := 0; i < len(clip); i++ {
		if len(output) == 0 {
			return nil
		}
		output = clipPolygonByEdge(output, clip[i], clip[(i+1)%len(clip)])
	}

	if len(output) < 3 {
		return nil
	}
	return output
}

// clipPolygonByEdge clips a polygon against a single directed edge.
func clipPolygonByEdge(polygon []Point2D, edgeStart, edgeEnd Point2D) []Point2D {
	var clipped []Point2D

	for i := 0; i < len(polygon); i++ {
		current := polygon[i]
		next := polygon[(i+1)%len(polygon)]

		currentInside := crossProduct(edgeStart, edgeEnd, current) >= 0
		nextInside := crossProduct(edgeStart, edgeEnd, next) >= 0

		switch {
		case currentInside && nextInside:
			clipped = append(clipped, current)
		case currentInside:
			clipped = append(clipped, current)
			if p, ok := lineIntersection(current, next, edgeStart, edgeEnd); ok {
				clipped = append(clipped, p)
			}
		case nextInside:
			if p, ok := lineIntersection(current, next, edgeStart, edgeEnd); ok {
				clipped = append(clipped, p)
			}
		}
	}

	return clipped
}

// lineIntersection intersects segment p1-p2 with the infinite line e1-e2.
func lineIntersection(p1, p2, e1, e2 Point2D) (Point2D, bool) {
	denom := (p1.X-p2.X)*(e1.Y-e2.Y) - (p1.Y-p2.Y)*(e1.X-e2.X)
	if math.Abs(denom) < 1e-12 {
		return Point2D{}, false
	}

	t := ((p1.X-e1.X)*(e1.Y-e2.Y) - (p1.Y-e1.Y)*(e1.X-e2.X)) / denom
	return Point2D{
		X: p1.X + t*(p2.X-p1.X),
		Y: p1.Y + t*(p2.Y-p1.Y),
	}, true
}

// PointInPolygon tests if a point is inside a polygon using ray casting.
func PointInPolygon(p Point2D, polygon []Point2D) bool {
	if len(polygon) < 3 {
		return false
	}

	inside := false
	n := len(polygon)
	for i := 0; i < n; i++ {
		a, b := polygon[i], polygon[(i+1)%n]
		if (a.Y > p.Y) != (b.Y > p.Y) &&
			p.X < (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y)+a.X {
			inside = !inside
		}
	}
	return inside
}

// Collinear reports whether three points are (nearly) collinear. The test is
// scale-free: the sine of the angle at a must exceed eps.
func Collinear(a, b, c Point2D, eps float64) bool {
	ab := b.Sub(a)
	ac := c.Sub(a)
	lab := math.Hypot(ab.X, ab.Y)
	lac := math.Hypot(ac.X, ac.Y)
	if lab == 0 || lac == 0 {
		return true
	}
	cross := ab.X*ac.Y - ab.Y*ac.X
	return math.Abs(cross) <= eps*lab*lac
}

// AnyThreeCollinear reports whether any three of the given points are
// collinear under Collinear.
func AnyThreeCollinear(pts []Point2D, eps float64) bool {
	n := len(pts)
	for i := 0; i < n-2; i++ {
		for j := i + 1; j < n-1; j++ {
			for k := j + 1; k < n; k++ {
				if Collinear(pts[i], pts[j], pts[k], eps) {
					return true
				}
			}
		}
	}
	return false
}

// crossProduct computes the cross product of vectors OA and OB.
func crossProduct(o, a, b Point2D) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}
