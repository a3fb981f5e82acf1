package export

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/openhep/tensorprep"
	"github.com/openhep/tensorprep/tensor"
)

// CSV layout: a "#Shape: (d0, d1, ...)" header line, then d0 lines of
// prod(d1...) comma-separated values. Values are formatted with the shortest
// representation that round-trips float64 exactly.

func writeCSVTensor(path string, t *tensor.Dense) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	dims := make([]string, len(t.Dims))
	for i, d := range t.Dims {
		dims[i] = strconv.Itoa(d)
	}
	fmt.Fprintf(w, "#Shape: (%s)\n", strings.Join(dims, ", "))

	rowLen := t.SampleLen()
	for r := 0; r < t.NumSamples(); r++ {
		row := t.Values[r*rowLen : (r+1)*rowLen]
		for i, v := range row {
			if i > 0 {
				if err := w.WriteByte(','); err != nil {
					return err
				}
			}
			if _, err := w.WriteString(strconv.FormatFloat(v, 'g', -1, 64)); err != nil {
				return err
			}
		}
		if err := w.WriteByte('\n'); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func readCSVTensor(path string) (*tensor.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, tensorprep.NotFoundf(path, "array file does not exist")
		}
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	if !sc.Scan() {
		return nil, tensorprep.Corruptf(path, "missing shape header")
	}
	dims, err := parseShapeHeader(sc.Text())
	if err != nil {
		return nil, tensorprep.Corruptf(path, "%v", err)
	}
	t := tensor.New(dims...)
	rowLen := t.SampleLen()
	row := 0
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if row >= t.NumSamples() {
			return nil, tensorprep.Corruptf(path, "more rows than the shape header declares")
		}
		fields := strings.Split(line, ",")
		if len(fields) != rowLen {
			return nil, tensorprep.Corruptf(path, "row %d has %d values, shape expects %d", row, len(fields), rowLen)
		}
		for i, field := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, tensorprep.Corruptf(path, "row %d value %d: %v", row, i, err)
			}
			t.Values[row*rowLen+i] = v
		}
		row++
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if row != t.NumSamples() {
		return nil, tensorprep.Corruptf(path, "got %d rows, shape header declares %d", row, t.NumSamples())
	}
	return t, nil
}

func parseShapeHeader(line string) ([]int, error) {
	line = strings.TrimSpace(line)
	const prefix = "#Shape:"
	if !strings.HasPrefix(line, prefix) {
		return nil, fmt.Errorf("bad shape header %q", line)
	}
	inner := strings.Trim(strings.TrimSpace(strings.TrimPrefix(line, prefix)), "()")
	parts := strings.Split(inner, ",")
	dims := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		d, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("bad dimension %q in shape header", p)
		}
		dims = append(dims, d)
	}
	if len(dims) == 0 {
		return nil, fmt.Errorf("empty shape header %q", line)
	}
	return dims, nil
}
