package labels

import "ploidyanalysis/internal/models"

// CountFragments returns the number of non-zero labels whose pixels form more
// than one 4-connected component. Matching can split a nucleus between several
// marker ids, which leaves one id spread over disjoint pieces.
func CountFragments(img *models.LabelImage) int {
	w, h := img.Width, img.Height
	visited := make([]bool, len(img.Pix))
	components := make(map[uint32]int)
	stack := make([]int, 0, 64)

	for start, v := range img.Pix {
		if v == 0 || visited[start] {
			continue
		}
		components[v]++

		visited[start] = true
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := idx%w, idx/w

			neighbors := [4][2]int{{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1}}
			for _, nb := range neighbors {
				nx, ny := nb[0], nb[1]
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				n := ny*w + nx
				if !visited[n] && img.Pix[n] == v {
					visited[n] = true
					stack = append(stack, n)
				}
			}
		}
	}

	fragmented := 0
	for _, c := range components {
		if c > 1 {
			fragmented++
		}
	}
	return fragmented
}
