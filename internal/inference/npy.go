package inference

import (
	"archive/zip"
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/tphakala/ambient-go/internal/errors"
)

var npyMagic = []byte("\x93NUMPY")

var (
	npyDescrRe   = regexp.MustCompile(`'descr'\s*:\s*'([<>|=])([fi])(\d)'`)
	npyFortranRe = regexp.MustCompile(`'fortran_order'\s*:\s*(True|False)`)
	npyShapeRe   = regexp.MustCompile(`'shape'\s*:\s*\(([^)]*)\)`)
)

// npyArray is a dense numeric array decoded to float64 in C order.
type npyArray struct {
	shape []int
	data  []float64
}

// size returns the element count implied by shape.
func (a *npyArray) size() int {
	n := 1
	for _, d := range a.shape {
		n *= d
	}
	return n
}

type npyHeader struct {
	order   binary.ByteOrder
	kind    byte // 'f' or 'i'
	width   int  // bytes per element
	fortran bool
	shape   []int
}

// readNpy decodes a single .npy stream holding float32, float64, int32 or
// int64 data.
func readNpy(r io.Reader) (*npyArray, error) {
	br := bufio.NewReader(r)

	hdr, err := readNpyHeader(br)
	if err != nil {
		return nil, err
	}

	arr := &npyArray{shape: hdr.shape}
	n := arr.size()
	raw := make([]byte, n*hdr.width)
	if _, err := io.ReadFull(br, raw); err != nil {
		return nil, fmt.Errorf("npy: short data section: %w", err)
	}

	arr.data = make([]float64, n)
	for i := range arr.data {
		b := raw[i*hdr.width : (i+1)*hdr.width]
		switch {
		case hdr.kind == 'f' && hdr.width == 4:
			arr.data[i] = float64(math.Float32frombits(hdr.order.Uint32(b)))
		case hdr.kind == 'f' && hdr.width == 8:
			arr.data[i] = math.Float64frombits(hdr.order.Uint64(b))
		case hdr.kind == 'i' && hdr.width == 4:
			arr.data[i] = float64(int32(hdr.order.Uint32(b))) //nolint:gosec // G115: reinterpreting two's complement
		case hdr.kind == 'i' && hdr.width == 8:
			arr.data[i] = float64(int64(hdr.order.Uint64(b))) //nolint:gosec // G115: reinterpreting two's complement
		}
	}

	if hdr.fortran && len(arr.shape) == 2 {
		arr.data = transpose(arr.data, arr.shape[1], arr.shape[0])
	} else if hdr.fortran && len(arr.shape) > 2 {
		return nil, fmt.Errorf("npy: fortran order unsupported for %d dimensions", len(arr.shape))
	}

	return arr, nil
}

func readNpyHeader(r io.Reader) (*npyHeader, error) {
	prefix := make([]byte, len(npyMagic)+2)
	if _, err := io.ReadFull(r, prefix); err != nil {
		return nil, fmt.Errorf("npy: reading magic: %w", err)
	}
	if string(prefix[:len(npyMagic)]) != string(npyMagic) {
		return nil, fmt.Errorf("npy: bad magic")
	}

	var headerLen int
	switch major := prefix[len(npyMagic)]; major {
	case 1:
		var l uint16
		if err := binary.Read(r, binary.LittleEndian, &l); err != nil {
			return nil, fmt.Errorf("npy: reading header length: %w", err)
		}
		headerLen = int(l)
	case 2, 3:
		var l uint32
		if err := binary.Read(r, binary.LittleEndian, &l); err != nil {
			return nil, fmt.Errorf("npy: reading header length: %w", err)
		}
		headerLen = int(l)
	default:
		return nil, fmt.Errorf("npy: unsupported format version %d", major)
	}

	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("npy: reading header: %w", err)
	}
	return parseNpyHeader(string(header))
}

func parseNpyHeader(header string) (*npyHeader, error) {
	m := npyDescrRe.FindStringSubmatch(header)
	if m == nil {
		return nil, fmt.Errorf("npy: unsupported dtype in header %q", strings.TrimSpace(header))
	}

	hdr := &npyHeader{order: binary.LittleEndian, kind: m[2][0]}
	if m[1] == ">" {
		hdr.order = binary.BigEndian
	}
	hdr.width, _ = strconv.Atoi(m[3])
	if hdr.width != 4 && hdr.width != 8 {
		return nil, fmt.Errorf("npy: unsupported element width %d", hdr.width)
	}

	if f := npyFortranRe.FindStringSubmatch(header); f != nil {
		hdr.fortran = f[1] == "True"
	}

	s := npyShapeRe.FindStringSubmatch(header)
	if s == nil {
		return nil, fmt.Errorf("npy: missing shape")
	}
	for field := range strings.SplitSeq(s[1], ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		d, err := strconv.Atoi(field)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("npy: bad shape dimension %q", field)
		}
		hdr.shape = append(hdr.shape, d)
	}

	return hdr, nil
}

// transpose converts a rows×cols row-major slice to cols×rows.
func transpose(data []float64, rows, cols int) []float64 {
	out := make([]float64, len(data))
	for r := range rows {
		for c := range cols {
			out[c*rows+r] = data[r*cols+c]
		}
	}
	return out
}

// loadNpz reads the named arrays from a numpy .npz archive. Every name must
// be present.
func loadNpz(path string, names ...string) (map[string]*npyArray, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.New(err).
			Component("inference").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer func() { _ = zr.Close() }()

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}

	arrays := make(map[string]*npyArray, len(names))
	for _, f := range zr.File {
		name := strings.TrimSuffix(f.Name, ".npy")
		if !wanted[name] {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, errors.New(err).
				Component("inference").
				Category(errors.CategoryFileIO).
				Context("path", path).
				Context("entry", f.Name).
				Build()
		}
		arr, err := readNpy(rc)
		_ = rc.Close()
		if err != nil {
			return nil, errors.New(err).
				Component("inference").
				Category(errors.CategoryModelLoad).
				Context("path", path).
				Context("entry", f.Name).
				Build()
		}
		arrays[name] = arr
	}

	for _, n := range names {
		if _, ok := arrays[n]; !ok {
			return nil, errors.Newf("npz archive %s has no array %q", path, n).
				Component("inference").
				Category(errors.CategoryModelLoad).
				Context("path", path).
				Build()
		}
	}

	return arrays, nil
}
