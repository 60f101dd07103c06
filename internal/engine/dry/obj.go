package dry

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/dropsim/internal/geom"
)

// meshInfo is what the dry driver needs from a Wavefront file: a name and
// the extent of its vertices.
type meshInfo struct {
	name     string
	bounds   geom.Box
	vertices int
}

// readOBJ scans vertex ("v") and object ("o") records; faces, normals and
// materials are ignored.
func readOBJ(path string) (meshInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return meshInfo{}, err
	}
	defer f.Close()

	info := meshInfo{bounds: geom.EmptyBox()}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "o":
			if info.name == "" && len(fields) > 1 {
				info.name = strings.Join(fields[1:], " ")
			}
		case "v":
			if len(fields) < 4 {
				return meshInfo{}, fmt.Errorf("%s:%d: vertex needs 3 coordinates", path, line)
			}
			var p mgl64.Vec3
			for i := 0; i < 3; i++ {
				p[i], err = strconv.ParseFloat(fields[i+1], 64)
				if err != nil {
					return meshInfo{}, fmt.Errorf("%s:%d: %w", path, line, err)
				}
			}
			info.bounds = info.bounds.Extend(p)
			info.vertices++
		}
	}
	if err := sc.Err(); err != nil {
		return meshInfo{}, err
	}
	if info.vertices == 0 {
		return meshInfo{}, fmt.Errorf("%s: no vertices", path)
	}
	if info.name == "" {
		info.name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return info, nil
}
