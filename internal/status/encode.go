// internal/status/encode.go
package status

// EncodeMatrix converts the LinkStatus matrix into wire bytes, row-major.
// No IO. No side effects.
func EncodeMatrix(m [][]Link) [][]uint8 {
	out := make([][]uint8, len(m))
	for i, row := range m {
		out[i] = make([]uint8, len(row))
		for j, l := range row {
			out[i][j] = uint8(l)
		}
	}
	return out
}

// DecodeMatrix converts wire bytes back into link values. Unknown values
// are treated as NoLink.
func DecodeMatrix(m [][]uint8) [][]Link {
	out := make([][]Link, len(m))
	for i, row := range m {
		out[i] = make([]Link, len(row))
		for j, v := range row {
			l := Link(v)
			if l > BadLink {
				l = NoLink
			}
			out[i][j] = l
		}
	}
	return out
}
