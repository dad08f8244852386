package geometry

// PlanesVolume returns the volume in cm³ of a z-ordered plane stack sampled
// every dz mm. Each plane contributes its net area times dz; the first and
// last plane contribute half a slab.
func PlanesVolume(planes []Plane, dz float64) float64 {
	n := len(planes)
	if n == 0 || dz <= 0 {
		return 0
	}

	volume := 0.0
	for i, p := range planes {
		slab := dz
		if i == 0 || i == n-1 {
			slab = dz / 2
		}
		volume += NetArea(p.Contours) * slab
	}
	return volume / 1000
}

// SlabVolume returns the volume in cm³ of a z-ordered plane stack in which
// every plane spans half the gap to each neighbour. For evenly spaced planes
// it equals PlanesVolume at that spacing.
func SlabVolume(planes []Plane) float64 {
	n := len(planes)
	if n < 2 {
		return 0
	}

	volume := 0.0
	for i, p := range planes {
		slab := 0.0
		if i > 0 {
			slab += (p.Z - planes[i-1].Z) / 2
		}
		if i < n-1 {
			slab += (planes[i+1].Z - p.Z) / 2
		}
		volume += NetArea(p.Contours) * slab
	}
	return volume / 1000
}
