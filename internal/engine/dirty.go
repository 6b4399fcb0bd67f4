package engine

// Region returns the coordinates whose buildings must be re-evaluated after
// the tile at (x, y) changed: the tile itself plus its eight neighbors,
// clipped to the map bounds. The tick processor is the only consumer of the
// resulting dirty flags and clears them after recomputing.
func Region(x, y, width, height int) [][2]int {
	coords := make([][2]int, 0, 9)
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			nx, ny := x+dx, y+dy
			if nx < 0 || ny < 0 || nx >= width || ny >= height {
				continue
			}
			coords = append(coords, [2]int{nx, ny})
		}
	}
	return coords
}
