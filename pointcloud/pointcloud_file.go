package pointcloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/edaniels/lidario"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/fieldwork/pcmeshfit/logging"
)

// PCDType is the format of a pcd file.
type PCDType int

const (
	// PCDAscii ascii format for pcd.
	PCDAscii PCDType = 0
	// PCDBinary binary format for pcd.
	PCDBinary PCDType = 1
	// PCDCompressed binary format for pcd.
	PCDCompressed PCDType = 2
)

// NewFromFile reads the points of a cloud from the given file, choosing the reader by extension.
func NewFromFile(fn string, logger logging.Logger) ([]r3.Vector, error) {
	switch strings.ToLower(filepath.Ext(fn)) {
	case ".las":
		return NewFromLASFile(fn, logger)
	case ".pcd":
		//nolint:gosec
		f, err := os.Open(fn)
		if err != nil {
			return nil, err
		}
		defer utils.UncheckedErrorFunc(f.Close)
		return ReadPCD(f)
	case ".xyz", ".txt", ".csv":
		//nolint:gosec
		f, err := os.Open(fn)
		if err != nil {
			return nil, err
		}
		defer utils.UncheckedErrorFunc(f.Close)
		return ReadXYZ(f)
	default:
		return nil, errors.Errorf("do not know how to read file %q", fn)
	}
}

// NewFromLASFile returns the points of a LAS file. Points outside the range a float64 can hold
// exactly are reported but not an error.
func NewFromLASFile(fn string, logger logging.Logger) ([]r3.Vector, error) {
	lf, err := lidario.NewLasFile(fn, "r")
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(lf.Close)

	points := make([]r3.Vector, 0, lf.Header.NumberPoints)
	for i := 0; i < lf.Header.NumberPoints; i++ {
		p, err := lf.LasPoint(i)
		if err != nil {
			return nil, err
		}
		data := p.PointData()
		if !preciseFloat(data.X) || !preciseFloat(data.Y) || !preciseFloat(data.Z) {
			logger.Warnw("potential floating point lossiness for LAS point",
				"index", i, "range", fmt.Sprintf("[%f,%f]", minPreciseFloat64, maxPreciseFloat64))
		}
		points = append(points, r3.Vector{X: data.X, Y: data.Y, Z: data.Z})
	}
	return points, nil
}

const (
	// the integer range a float64 represents without gaps
	maxPreciseFloat64 = float64(1 << 53)
	minPreciseFloat64 = -maxPreciseFloat64
)

func preciseFloat(v float64) bool {
	return v >= minPreciseFloat64 && v <= maxPreciseFloat64
}

// ReadXYZ reads whitespace or comma separated "x y z" rows. Extra columns are ignored, blank
// lines and lines starting with '#' are skipped.
func ReadXYZ(in io.Reader) ([]r3.Vector, error) {
	var points []r3.Vector
	scanner := bufio.NewScanner(in)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		fields, skip := splitRow(scanner.Text())
		if skip {
			continue
		}
		if len(fields) < 3 {
			return nil, errors.Errorf("line %d: expected at least 3 columns, got %d", lineNum, len(fields))
		}
		var xyz [3]float64
		for i := range xyz {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return nil, errors.Wrapf(err, "line %d", lineNum)
			}
			xyz[i] = v
		}
		points = append(points, r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

// ReadWeights reads one weight per row, using the first column of each row.
func ReadWeights(in io.Reader) ([]float64, error) {
	var weights []float64
	scanner := bufio.NewScanner(in)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		fields, skip := splitRow(scanner.Text())
		if skip {
			continue
		}
		w, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", lineNum)
		}
		weights = append(weights, w)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return weights, nil
}

func splitRow(line string) ([]string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil, true
	}
	return strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == ';'
	}), false
}

// WriteXYZ writes one "x y z" row per point.
func WriteXYZ(points []r3.Vector, out io.Writer) error {
	w := bufio.NewWriter(out)
	for _, p := range points {
		if _, err := fmt.Fprintf(w, "%g %g %g\n", p.X, p.Y, p.Z); err != nil {
			return err
		}
	}
	return w.Flush()
}

// ToPCD writes points as a version .7 pcd file with x y z fields.
func ToPCD(points []r3.Vector, out io.Writer, outputType PCDType) error {
	var data string
	switch outputType {
	case PCDAscii:
		data = "ascii"
	case PCDBinary:
		data = "binary"
	default:
		return errors.New("compressed PCD not yet implemented")
	}
	_, err := fmt.Fprintf(out, "VERSION .7\n"+
		"FIELDS x y z\n"+
		"SIZE 4 4 4\n"+
		"TYPE F F F\n"+
		"COUNT 1 1 1\n"+
		"WIDTH %d\n"+
		"HEIGHT 1\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n"+
		"DATA %s\n", len(points), len(points), data)
	if err != nil {
		return err
	}
	for _, p := range points {
		switch outputType {
		case PCDBinary:
			buf := make([]byte, 12)
			binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(p.X)))
			binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(float32(p.Y)))
			binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(float32(p.Z)))
			_, err = out.Write(buf)
		default:
			_, err = fmt.Fprintf(out, "%f %f %f\n", p.X, p.Y, p.Z)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

type pcdHeader struct {
	fields int
	size   []uint64
	types  []string
	width  uint64
	height uint64
	points uint64
	data   PCDType
}

const pcdCommentChar = "#"

var pcdHeaderFields = []string{"VERSION", "FIELDS", "SIZE", "TYPE", "COUNT", "WIDTH", "HEIGHT", "VIEWPOINT", "POINTS", "DATA"}

func parsePCDHeaderLine(line string, index int, header *pcdHeader) error {
	var err error
	name := pcdHeaderFields[index]
	field, value, _ := strings.Cut(line, " ")
	tokens := strings.Fields(value)
	if field != name {
		return errors.Errorf("line is supposed to start with %s but is %s", name, line)
	}

	switch name {
	case "VERSION":
		if value != ".7" && value != "0.7" {
			return errors.Errorf("unsupported pcd version %s", value)
		}
	case "FIELDS":
		if len(tokens) < 3 || tokens[0] != "x" || tokens[1] != "y" || tokens[2] != "z" {
			return errors.Errorf("unsupported pcd fields %s", value)
		}
		header.fields = len(tokens)
	case "SIZE":
		if len(tokens) != header.fields {
			return errors.New("unexpected number of fields in SIZE line")
		}
		header.size = make([]uint64, len(tokens))
		for i, token := range tokens {
			header.size[i], err = strconv.ParseUint(token, 10, 64)
			if err != nil {
				return errors.Errorf("invalid SIZE field %s", token)
			}
		}
	case "TYPE":
		if len(tokens) != header.fields {
			return errors.New("unexpected number of fields in TYPE line")
		}
		header.types = tokens
	case "COUNT":
		if len(tokens) != header.fields {
			return errors.New("unexpected number of fields in COUNT line")
		}
		for _, token := range tokens {
			if token != "1" {
				return errors.Errorf("unsupported COUNT field %s", token)
			}
		}
	case "WIDTH":
		header.width, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid WIDTH field %s", value)
		}
	case "HEIGHT":
		header.height, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid HEIGHT field %s", value)
		}
	case "VIEWPOINT":
		if len(tokens) != 7 {
			return errors.Errorf("unexpected number of fields in VIEWPOINT line. Expected 7, got %d", len(tokens))
		}
	case "POINTS":
		header.points, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid POINTS field %s", value)
		}
		if header.points != header.width*header.height {
			return errors.Errorf("POINTS field %d does not match WIDTH*HEIGHT %d", header.points, header.width*header.height)
		}
	case "DATA":
		switch value {
		case "ascii":
			header.data = PCDAscii
		case "binary":
			header.data = PCDBinary
		case "binary_compressed":
			header.data = PCDCompressed
		default:
			return errors.Errorf("unsupported pcd data %s", value)
		}
	}
	return nil
}

// ReadPCD reads the x y z fields of an ascii or binary pcd file. Any further fields are skipped.
func ReadPCD(inRaw io.Reader) ([]r3.Vector, error) {
	header := pcdHeader{}
	in := bufio.NewReader(inRaw)
	headerLineCount := 0
	for headerLineCount < len(pcdHeaderFields) {
		line, err := in.ReadString('\n')
		if err != nil {
			return nil, errors.Wrapf(err, "error reading header line %d", headerLineCount)
		}
		line, _, _ = strings.Cut(line, pcdCommentChar)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := parsePCDHeaderLine(line, headerLineCount, &header); err != nil {
			return nil, err
		}
		headerLineCount++
	}
	switch header.data {
	case PCDAscii:
		return readPCDAscii(in, header)
	case PCDBinary:
		return readPCDBinary(in, header)
	default:
		return nil, errors.New("compressed pcd not yet supported")
	}
}

func readPCDAscii(in *bufio.Reader, header pcdHeader) ([]r3.Vector, error) {
	points := make([]r3.Vector, 0, header.points)
	for i := 0; i < int(header.points); i++ {
		line, err := in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return nil, err
		}
		tokens := strings.Fields(line)
		if len(tokens) != header.fields {
			return nil, errors.Errorf("unexpected number of fields in point %d", i)
		}
		var xyz [3]float64
		for j := range xyz {
			xyz[j], err = strconv.ParseFloat(tokens[j], 64)
			if err != nil {
				return nil, errors.Errorf("invalid point %d field %s: %s", i, tokens[j], err)
			}
		}
		points = append(points, r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]})
	}
	return points, nil
}

func readPCDBinary(in *bufio.Reader, header pcdHeader) ([]r3.Vector, error) {
	for j := 0; j < 3; j++ {
		if header.types[j] != "F" || (header.size[j] != 4 && header.size[j] != 8) {
			return nil, errors.Errorf("unsupported binary type %s%d for coordinate %d", header.types[j], header.size[j], j)
		}
	}
	points := make([]r3.Vector, 0, header.points)
	for i := 0; i < int(header.points); i++ {
		var xyz [3]float64
		for j := 0; j < header.fields; j++ {
			buf := make([]byte, header.size[j])
			if _, err := io.ReadFull(in, buf); err != nil {
				return nil, errors.Wrapf(err, "reading point %d", i)
			}
			if j >= 3 {
				continue
			}
			if header.size[j] == 8 {
				xyz[j] = math.Float64frombits(binary.LittleEndian.Uint64(buf))
			} else {
				xyz[j] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf)))
			}
		}
		points = append(points, r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]})
	}
	return points, nil
}
