package geo

import (
	"go.uber.org/zap"
)

// Resolver maps coordinates and addresses to district names. The district set
// and bounding box are immutable after construction; the cache is shared
// read-mostly state across concurrent workers.
type Resolver struct {
	districts []District
	bbox      BoundingBox
	cache     *Cache
}

// NewResolver creates a Resolver over a loaded district set. The cache may be
// nil, disabling address memoization.
func NewResolver(districts []District, bbox BoundingBox, cache *Cache) *Resolver {
	return &Resolver{districts: districts, bbox: bbox, cache: cache}
}

// Resolve returns the district for a listing's location, trying coordinates
// first and falling back to address text. It never guesses: when neither
// signal resolves, it returns ("", false). Deterministic for identical inputs.
func (r *Resolver) Resolve(lat, lon *float64, address string) (string, bool) {
	if lat != nil && lon != nil && r.bbox.Contains(*lat, *lon) {
		if name, ok := r.resolvePoint(*lat, *lon); ok {
			return name, ok
		}
	}

	if address != "" {
		return r.resolveAddress(address)
	}

	return "", false
}

// resolvePoint does point-in-polygon lookup. Polygons are assumed
// non-overlapping; if they do overlap, the first match in load order wins.
func (r *Resolver) resolvePoint(lat, lon float64) (string, bool) {
	for _, d := range r.districts {
		for _, p := range d.Polygons {
			if polygonContains(p, lon, lat) {
				return d.Name, true
			}
		}
	}
	return "", false
}

// resolveAddress matches known district and street names inside the address
// text, memoized by normalized address.
func (r *Resolver) resolveAddress(address string) (string, bool) {
	key := NormalizeAddress(address)
	if key == "" {
		return "", false
	}

	if r.cache != nil {
		if district, resolved, cached := r.cache.Lookup(key); cached {
			return district, resolved
		}
	}

	district, resolved := r.scanAddress(key)
	if !resolved {
		zap.L().Debug("address did not resolve to a district", zap.String("address", key))
	}

	if r.cache != nil {
		r.cache.Store(key, district, resolved)
	}
	return district, resolved
}

func (r *Resolver) scanAddress(normalized string) (string, bool) {
	for _, d := range r.districts {
		if containsFold(normalized, NormalizeAddress(d.Name)) {
			return d.Name, true
		}
	}
	for _, d := range r.districts {
		for _, street := range d.Streets {
			if containsFold(normalized, street) {
				return d.Name, true
			}
		}
	}
	return "", false
}
