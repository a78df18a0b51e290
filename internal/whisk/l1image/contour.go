package l1image

// Contour is an ordered path of pixel offsets belonging to one object.
type Contour struct {
	Tour []int
	// IsBoundary is set when the object touches the image edge.
	IsBoundary bool
	// IsCon4 records 4-connectivity; false means 8-connected.
	IsCon4 bool
}

// Len returns the number of pixels on the tour.
func (c *Contour) Len() int { return len(c.Tour) }

// ObjectMap is the set of contours extracted from one image.
type ObjectMap struct {
	Width, Height int
	Contours      []Contour
}

var neighbours8 = [8][2]int{
	{-1, -1}, {0, -1}, {1, -1},
	{-1, 0}, {1, 0},
	{-1, 1}, {0, 1}, {1, 1},
}

// ExtractObjects labels 8-connected components of pixels darker than level
// and keeps those with at least minSize pixels. Each component's tour lists
// its pixels in breadth-first order from the first pixel met in raster
// order, and components are ordered the same way.
func ExtractObjects(im *Image, level float32, minSize int) *ObjectMap {
	om := &ObjectMap{Width: im.Width, Height: im.Height, Contours: []Contour{}}
	seen := make([]bool, len(im.Pix))
	var queue []int
	for start, v := range im.Pix {
		if seen[start] || v >= level {
			continue
		}
		seen[start] = true
		queue = append(queue[:0], start)
		boundary := false
		for head := 0; head < len(queue); head++ {
			p := queue[head]
			x, y := im.XY(p)
			if x == 0 || y == 0 || x == im.Width-1 || y == im.Height-1 {
				boundary = true
			}
			for _, d := range neighbours8 {
				nx, ny := x+d[0], y+d[1]
				if !im.In(nx, ny) {
					continue
				}
				q := im.Index(nx, ny)
				if seen[q] || im.Pix[q] >= level {
					continue
				}
				seen[q] = true
				queue = append(queue, q)
			}
		}
		if len(queue) < minSize {
			continue
		}
		tour := make([]int, len(queue))
		copy(tour, queue)
		om.Contours = append(om.Contours, Contour{Tour: tour, IsBoundary: boundary})
	}
	return om
}
