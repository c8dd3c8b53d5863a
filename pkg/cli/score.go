package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/mchmarny/asdscreen/pkg/auth"
	"github.com/mchmarny/asdscreen/pkg/net"
	"github.com/mchmarny/asdscreen/pkg/scoring"
	"github.com/mchmarny/asdscreen/pkg/sheet"
	urfave "github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

const (
	defaultServerURL   = "http://127.0.0.1:8080"
	defaultOutputFile  = "asd_predictions.xlsx"
	defaultPreviewRows = 10
	defaultConcurrency = 4
)

const (
	flagURL         = "url"
	flagToken       = "token"
	flagOutput      = "output"
	flagPreview     = "preview"
	flagConcurrency = "concurrency"
)

func newURLFlag() urfave.Flag {
	return &urfave.StringFlag{
		Name:    flagURL,
		Usage:   "Base URL of the prediction server",
		Value:   defaultServerURL,
		Sources: urfave.EnvVars("ASDSCREEN_URL"),
	}
}

func newTokenFlag() urfave.Flag {
	return &urfave.StringFlag{
		Name:    flagToken,
		Usage:   "Bearer token sent to the server (optional, default: token saved with login)",
		Sources: urfave.EnvVars("ASDSCREEN_TOKEN"),
	}
}

func newScoreCmd() *urfave.Command {
	return &urfave.Command{
		Name:      "score",
		Usage:     "Upload spreadsheets to the prediction server and save the predictions",
		ArgsUsage: "FILE [FILE...]",
		Action:    cmdScore,
		Flags: []urfave.Flag{
			newURLFlag(),
			newTokenFlag(),
			&urfave.StringFlag{
				Name:    flagOutput,
				Aliases: []string{"o"},
				Usage:   "Spreadsheet the predictions are saved to",
				Value:   defaultOutputFile,
			},
			&urfave.IntFlag{
				Name:  flagPreview,
				Usage: "Number of predictions printed per file",
				Value: defaultPreviewRows,
			},
			&urfave.IntFlag{
				Name:  flagConcurrency,
				Usage: "Maximum number of concurrent uploads",
				Value: defaultConcurrency,
			},
		},
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// ErrEmptyPredictions is returned when the server answers with no rows.
var ErrEmptyPredictions = errors.New("server returned no predictions")

func cmdScore(ctx context.Context, cmd *urfave.Command) error {
	files := cmd.Args().Slice()
	if len(files) == 0 {
		return errors.New("at least one spreadsheet file is required")
	}

	client, err := net.GetClient(ctx, resolveToken(cmd))
	if err != nil {
		return fmt.Errorf("creating HTTP client: %w", err)
	}

	url := endpoint(cmd.String(flagURL), "predict")
	results := make([]*scoring.Result, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, cmd.Int(flagConcurrency)))
	for i, path := range files {
		g.Go(func() error {
			res, err := scoreFile(gctx, client, url, path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	w := writer(cmd)
	output := cmd.String(flagOutput)
	for i, path := range files {
		printResult(w, path, results[i], cmd.Int(flagPreview))

		out := outputPath(output, path, len(files))
		if err := savePredictions(out, results[i]); err != nil {
			return err
		}
		fmt.Fprintf(w, "Predictions saved to %s\n", out)
	}
	return nil
}

// resolveToken prefers the --token flag over the token saved with login.
func resolveToken(cmd *urfave.Command) string {
	if t := cmd.String(flagToken); t != "" {
		return t
	}
	t, err := auth.NewTokenStore(getHomeDir()).Get()
	if err != nil {
		slog.Debug("no saved token", "error", err)
		return ""
	}
	return t
}

// endpoint appends path to base unless base already ends with it.
func endpoint(base, path string) string {
	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, "/"+path) {
		return base
	}
	return base + "/" + path
}

func scoreFile(ctx context.Context, client *http.Client, url, path string) (*scoring.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	slog.Debug("uploading", "file", path, "url", url)
	b, err := net.Upload(ctx, client, url, filepath.Base(path), f)
	if err != nil {
		return nil, err
	}
	return decodePredictions(b)
}

// decodePredictions parses the server reply, turning an error object into an error.
func decodePredictions(b []byte) (*scoring.Result, error) {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var e errorResponse
		if err := json.Unmarshal(b, &e); err != nil {
			return nil, fmt.Errorf("unexpected response: %w", err)
		}
		return nil, fmt.Errorf("server error: %s", e.Error)
	}

	var res scoring.Result
	if err := json.Unmarshal(b, &res); err != nil {
		return nil, fmt.Errorf("invalid predictions: %w", err)
	}
	if len(res.Rows) == 0 {
		return nil, ErrEmptyPredictions
	}
	return &res, nil
}

// outputPath adds the input file's name to output when several files are scored.
func outputPath(output, input string, n int) string {
	if n <= 1 {
		return output
	}
	ext := filepath.Ext(output)
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return strings.TrimSuffix(output, ext) + "_" + stem + ext
}

func savePredictions(path string, res *scoring.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}

	cols, rows := res.Records()
	if err := sheet.Write(f, cols, rows); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func printResult(w io.Writer, path string, res *scoring.Result, preview int) {
	fmt.Fprintf(w, "%s: %d predictions, %d high risk\n", path, len(res.Rows), res.HighRiskCount())

	cols, rows := res.Records()
	if preview > 0 {
		fmt.Fprintf(w, "\nFirst %d predictions:\n", min(preview, len(rows)))
		printRows(w, cols, rows[:min(preview, len(rows))])
	}

	high := make([][]any, 0)
	for i, r := range res.Rows {
		if r.Risk == scoring.HighRisk {
			high = append(high, rows[i])
		}
	}
	fmt.Fprintf(w, "\nHigh risk predictions:\n")
	if len(high) == 0 {
		fmt.Fprintln(w, "none")
	} else {
		printRows(w, cols, high)
	}
	fmt.Fprintln(w)
}

func printRows(w io.Writer, cols []string, rows [][]any) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(cols, "\t"))
	for _, r := range rows {
		cells := make([]string, len(r))
		for i, v := range r {
			cells[i] = cell(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush()
}

func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return "-"
	case float64:
		if math.IsNaN(t) {
			return "-"
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
