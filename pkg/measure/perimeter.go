package measure

import (
	"math"

	"ploidyanalysis/internal/models"
)

// Neighborhood selects the structuring element used to find border pixels.
type Neighborhood int

const (
	// Neighborhood4 erodes with the 3x3 cross
	Neighborhood4 Neighborhood = 4
	// Neighborhood8 erodes with the full 3x3 square
	Neighborhood8 Neighborhood = 8
)

// codeKernel encodes the border configuration around a pixel; the centre
// contributes 1, edge neighbours 2 and corner neighbours 10.
var codeKernel = [3][3]int{
	{10, 2, 10},
	{2, 1, 2},
	{10, 2, 10},
}

// perimeterWeights maps a border code to its boundary length contribution.
var perimeterWeights = func() [50]float64 {
	var w [50]float64
	for _, c := range []int{5, 7, 15, 17, 25, 27} {
		w[c] = 1
	}
	w[21] = math.Sqrt2
	w[33] = math.Sqrt2
	w[13] = (1 + math.Sqrt2) / 2
	w[23] = (1 + math.Sqrt2) / 2
	return w
}()

// perimeters estimates the boundary length of every label in img, keyed by id.
// A pixel is on the border of its region when erosion with the chosen
// neighbourhood removes it; pixels outside the grid count as foreign.
func perimeters(img *models.LabelImage, nb Neighborhood) map[uint32]float64 {
	w, h := img.Width, img.Height
	sameAt := func(x, y int, v uint32) bool {
		return x >= 0 && y >= 0 && x < w && y < h && img.Pix[y*w+x] == v
	}

	border := make([]bool, len(img.Pix))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := img.Pix[y*w+x]
			onBorder := !sameAt(x-1, y, v) || !sameAt(x+1, y, v) ||
				!sameAt(x, y-1, v) || !sameAt(x, y+1, v)
			if !onBorder && nb == Neighborhood8 {
				onBorder = !sameAt(x-1, y-1, v) || !sameAt(x+1, y-1, v) ||
					!sameAt(x-1, y+1, v) || !sameAt(x+1, y+1, v)
			}
			border[y*w+x] = onBorder
		}
	}

	result := make(map[uint32]float64)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := y*w + x
			v := img.Pix[idx]
			if _, ok := result[v]; !ok {
				result[v] = 0
			}
			if !border[idx] {
				continue
			}

			code := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if sameAt(nx, ny, v) && border[ny*w+nx] {
						code += codeKernel[dy+1][dx+1]
					}
				}
			}
			result[v] += perimeterWeights[code]
		}
	}

	return result
}
