package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/fieldwork/pcmeshfit/fitting"
)

// histogramWidth is the width in characters of the longest printed histogram bar.
const histogramWidth = 40

// writeReport prints the error statistics and the fitted transform of res, followed by a text
// histogram of the errors when bins is positive.
func writeReport(out io.Writer, res *fitting.Result, bins int) error {
	t := table.NewWriter()
	t.SetTitle("Fit")
	t.AppendHeader(table.Row{"Status", "Evaluations", "RMSE", "Mean", "SD", "Median", "P95", "Max"})
	s := res.Summary
	t.AppendRow(table.Row{
		res.Status.String(),
		res.FuncEvals,
		formatError(s.RMSE),
		formatError(s.Mean),
		formatError(s.SD),
		formatError(s.Median),
		formatError(s.P95),
		formatError(s.Max),
	})
	if _, err := fmt.Fprintln(out, t.Render()); err != nil {
		return err
	}

	if _, err := fmt.Fprintln(out, transformTable(res.Transform).Render()); err != nil {
		return err
	}

	if bins <= 0 || len(res.Errors) == 0 {
		return nil
	}
	// a histogram needs a non-empty range
	lo, _ := stats.Min(res.Errors)
	hi, _ := stats.Max(res.Errors)
	if lo == hi {
		return nil
	}
	return histogram.Fprint(out, histogram.Hist(bins, res.Errors), histogram.Linear(histogramWidth))
}

func formatError(v float64) string {
	return fmt.Sprintf("%.6g", v)
}

func transformTable(tr fitting.Transform) table.Writer {
	t := table.NewWriter()
	t.SetTitle("Transform")
	header := table.Row{"tx", "ty", "tz", "rx", "ry", "rz"}
	if tr.FitScale {
		header = append(header, "s")
	}
	for i := range tr.ModeSDs {
		header = append(header, fmt.Sprintf("b%d", i))
	}
	row := table.Row{}
	for _, v := range tr.Params() {
		row = append(row, fmt.Sprintf("%.5g", v))
	}
	t.AppendHeader(header)
	t.AppendRow(row)
	return t
}

// plotErrors saves a histogram of the errors as an image, the format following the extension.
func plotErrors(path string, errs []float64, bins int) error {
	if bins <= 0 {
		bins = 10
	}
	p := plot.New()
	p.Title.Text = "Fitting errors"
	p.X.Label.Text = "error"
	p.Y.Label.Text = "count"
	h, err := plotter.NewHist(plotter.Values(errs), bins)
	if err != nil {
		return errors.Wrap(err, "building error histogram")
	}
	p.Add(h)
	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}

// resultFile is the JSON written for a fit result.
type resultFile struct {
	Transform []float64 `json:"transform"`
	FitScale  bool      `json:"fit_scale"`
	NumModes  int       `json:"num_modes"`
	RMSE      float64   `json:"rmse"`
	Mean      float64   `json:"mean"`
	SD        float64   `json:"sd"`
	Median    float64   `json:"median"`
	P95       float64   `json:"p95"`
	Max       float64   `json:"max"`
	Status    string    `json:"status"`
	FuncEvals int       `json:"func_evals"`
	Errors    []float64 `json:"errors"`
}

func newResultFile(res *fitting.Result) resultFile {
	return resultFile{
		Transform: res.Transform.Params(),
		FitScale:  res.Transform.FitScale,
		NumModes:  len(res.Transform.ModeSDs),
		RMSE:      res.Summary.RMSE,
		Mean:      res.Summary.Mean,
		SD:        res.Summary.SD,
		Median:    res.Summary.Median,
		P95:       res.Summary.P95,
		Max:       res.Summary.Max,
		Status:    res.Status.String(),
		FuncEvals: res.FuncEvals,
		Errors:    res.Errors,
	}
}

func writeResult(path string, res *fitting.Result) error {
	buf, err := json.MarshalIndent(newResultFile(res), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0o640)
}
