package vision

import (
	"sort"
	"strings"

	"github.com/weiqilab/katacore/internal/apperr"
	"github.com/weiqilab/katacore/internal/board"
)

// EmitPositionFile serialises a board size and its detected stones into
// the standard text position-record format: properties size, add-black,
// add-white, each stone rendered in the 'a'..'s' lowercase coordinate
// alphabet. Stones are deduplicated by coordinate and sorted for
// deterministic output; empty color lists omit their property block.
func EmitPositionFile(boardSize int, stones []Stone) string {
	blackSeen := make(map[board.Coord]bool)
	whiteSeen := make(map[board.Coord]bool)
	var black, white []board.Coord

	for _, s := range stones {
		switch s.Color {
		case board.Black:
			if !blackSeen[s.Coord] {
				blackSeen[s.Coord] = true
				black = append(black, s.Coord)
			}
		case board.White:
			if !whiteSeen[s.Coord] {
				whiteSeen[s.Coord] = true
				white = append(white, s.Coord)
			}
		}
	}

	sortCoords(black)
	sortCoords(white)

	var b strings.Builder
	b.WriteString("size[")
	b.WriteString(itoa(boardSize))
	b.WriteString("]\n")

	if len(black) > 0 {
		writePropertyBlock(&b, "add-black", black)
	}
	if len(white) > 0 {
		writePropertyBlock(&b, "add-white", white)
	}
	return b.String()
}

// ParsePositionFile parses the text format EmitPositionFile produces back
// into a board size and stone list.
func ParsePositionFile(text string) (int, []Stone, error) {
	boardSize := 0
	var stones []Stone

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, body, ok := splitProperty(line)
		if !ok {
			return 0, nil, apperr.New(apperr.LoadError, "vision: malformed position-file line: "+line)
		}
		switch name {
		case "size":
			n, err := parseInt(body)
			if err != nil {
				return 0, nil, apperr.Wrap(apperr.LoadError, "vision: malformed size property", err)
			}
			boardSize = n
		case "add-black", "add-white":
			color := board.Black
			if name == "add-white" {
				color = board.White
			}
			for _, sgf := range strings.Split(body, "][") {
				c, err := board.CoordFromSGF(sgf)
				if err != nil {
					return 0, nil, apperr.Wrap(apperr.LoadError, "vision: malformed coordinate in "+name, err)
				}
				stones = append(stones, Stone{Coord: c, Color: color})
			}
		}
	}
	if boardSize <= 0 {
		return 0, nil, apperr.New(apperr.LoadError, "vision: position file missing a size property")
	}
	return boardSize, stones, nil
}

func splitProperty(line string) (name, body string, ok bool) {
	open := strings.IndexByte(line, '[')
	if open < 0 || !strings.HasSuffix(line, "]") {
		return "", "", false
	}
	return line[:open], line[open+1 : len(line)-1], true
}

func parseInt(s string) (int, error) {
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if s == "" {
		return 0, apperr.New(apperr.LoadError, "vision: empty integer")
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, apperr.New(apperr.LoadError, "vision: non-digit in integer: "+s)
		}
		n = n*10 + int(r-'0')
	}
	if neg {
		n = -n
	}
	return n, nil
}

func writePropertyBlock(b *strings.Builder, name string, coords []board.Coord) {
	b.WriteString(name)
	b.WriteString("[")
	for i, c := range coords {
		if i > 0 {
			b.WriteString("][")
		}
		b.WriteString(c.SGF())
	}
	b.WriteString("]\n")
}

func sortCoords(c []board.Coord) {
	sort.Slice(c, func(i, j int) bool {
		if c[i].Row != c[j].Row {
			return c[i].Row < c[j].Row
		}
		return c[i].Col < c[j].Col
	})
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
