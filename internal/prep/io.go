package prep

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"image/color"
	"io"
	"log"
	"math"
	"os"
	"strconv"

	"github.com/evolbioinfo/gotree/io/newick"
	"github.com/evolbioinfo/gotree/io/nexus"
	"github.com/evolbioinfo/gotree/tree"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/UdeM-LBIT/profileNJ/internal/nj"
	rc "github.com/UdeM-LBIT/profileNJ/internal/recon"
	"github.com/UdeM-LBIT/profileNJ/internal/resolve"
)

var (
	ErrInvalidFile   = errors.New("invalid file")
	ErrInvalidFormat = errors.New("invalid format")
	ErrWritingFile   = errors.New("error writing file")

	plotLineColor  = color.RGBA{R: 37, G: 150, B: 190, A: 255}
	plotMarkerShap = draw.SquareGlyph{}
)

type Format int

const (
	Newick Format = iota
	Nexus

	plotH = 4 * vg.Inch
	plotW = 6 * vg.Inch

	maxTicks = 10
)

var ParseFormat = map[string]Format{
	"newick": Newick,
	"nexus":  Nexus,
}

func (f *Format) Set(s string) error {
	if format, ok := ParseFormat[s]; ok {
		*f = format
		return nil
	}
	return fmt.Errorf("\"%s\" is not a valid gene tree file format", s)
}

func (f Format) String() string {
	for s, fr := range ParseFormat {
		if fr == f {
			return s
		}
	}
	panic(fmt.Sprintf("format (%d) does not exist", f))
}

type GeneTrees struct {
	Trees []*tree.Tree // gene trees
	Names []string     // gene names
}

// Reads in and validates species tree and gene tree input files.
// Returns an error if the newick format is invalid, or the file is invalid for
// some other reason (e.g., more than one species tree)
func ReadInputFiles(treeFile, genetreesFile string, format Format) (*tree.Tree, *GeneTrees, error) {
	flags := log.Flags()
	lout := log.Writer()
	log.SetOutput(io.Discard) // don't log this bit as gotree can be noisy and lead to thousands of log messages
	defer func() {
		log.SetOutput(lout)
		log.SetFlags(flags)
	}()
	tre, err := readTreeFile(treeFile)
	if err != nil {
		return nil, nil, err
	}
	genetrees, err := readGeneTreesFile(genetreesFile, format)
	if err != nil {
		return nil, nil, err
	}
	return tre, genetrees, nil
}

// reads and validates species tree file
func readTreeFile(treeFile string) (*tree.Tree, error) {
	treBytes, err := os.ReadFile(treeFile)
	if err != nil {
		return nil, fmt.Errorf("error reading tree file: %w", err)
	}
	treBytes = bytes.TrimSpace(treBytes)
	if bytes.Count(treBytes, []byte{byte('\n')}) != 0 || len(treBytes) == 0 {
		return nil, fmt.Errorf("%w, there should only be exactly one newick tree in tree file %s",
			ErrInvalidFile, treeFile)
	}
	tre, err := newick.NewParser(bytes.NewReader(treBytes)).Parse()
	if err != nil {
		return nil, fmt.Errorf("%w, error parsing tree newick string from %s: %s",
			ErrInvalidFormat, treeFile, err.Error())
	}
	tre.ClearLengths(true, true)
	tre.ClearComments()
	tre.ClearSupports()
	return tre, nil
}

// reads and validates gene tree file
func readGeneTreesFile(genetreesFile string, format Format) (*GeneTrees, error) {
	file, err := os.Open(genetreesFile)
	if err != nil {
		return nil, fmt.Errorf("error opening %s, %w", genetreesFile, err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			panic(fmt.Sprintf("could not close file %s, %s", genetreesFile, err))
		}
	}()
	geneTreeList := make([]*tree.Tree, 0)
	geneTreeNames := make([]string, 0)
	switch format {
	case Newick:
		scanner := bufio.NewScanner(file)
		for i := 0; scanner.Scan(); i++ {
			line := bytes.TrimSpace(scanner.Bytes())
			if line != nil {
				genetree, err := newick.NewParser(bytes.NewReader(line)).Parse()
				if err != nil {
					return nil, fmt.Errorf("%w, error reading gene tree on line %d in %s: %s",
						ErrInvalidFormat, i, genetreesFile, err.Error())
				}
				geneTreeList = append(geneTreeList, genetree)
			}
		}
		if len(geneTreeList) < 1 {
			return nil, fmt.Errorf("%w, empty gene tree file %s", ErrInvalidFile, genetreesFile)
		}
		geneTreeNames = make([]string, 0)
		for i := 0; i < len(geneTreeList); i++ {
			geneTreeNames = append(geneTreeNames, strconv.Itoa(i+1))
		}
	case Nexus:
		nex, err := nexus.NewParser(file).Parse()
		if err != nil {
			return nil, fmt.Errorf("%w, error reading gene tree nexus file %s: %s",
				ErrInvalidFormat, genetreesFile, err.Error())
		}
		nex.IterateTrees(func(s string, t *tree.Tree) {
			geneTreeList = append(geneTreeList, t)
			geneTreeNames = append(geneTreeNames, s)
		})
	default:
		return nil, fmt.Errorf("%w, not a valid file format", ErrInvalidFile)
	}
	return &GeneTrees{Trees: geneTreeList, Names: geneTreeNames}, nil
}

// Reads a distance matrix csv file. The expected layout is a header row
// ",taxon1,taxon2,..." followed by one row per taxon "taxon,d1,d2,...";
// the matrix must be square, symmetric, non-negative, with zero diagonal.
func ReadDistanceMatrix(path string) (*nj.DistanceMatrix, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening %s, %w", path, err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			panic(fmt.Sprintf("could not close file %s, %s", path, err))
		}
	}()
	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w, error reading distance matrix csv %s: %s", ErrInvalidFormat, path, err.Error())
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%w, distance matrix %s has no data rows", ErrInvalidFile, path)
	}
	taxa := records[0][1:]
	n := len(taxa)
	if len(records) != n+1 {
		return nil, fmt.Errorf("%w, distance matrix %s has %d taxa but %d rows",
			ErrInvalidFile, path, n, len(records)-1)
	}
	d := mat.NewSymDense(n, nil)
	for i, row := range records[1:] {
		if len(row) != n+1 {
			return nil, fmt.Errorf("%w, row %d of %s has %d columns, expected %d",
				ErrInvalidFile, i+2, path, len(row), n+1)
		}
		if row[0] != taxa[i] {
			return nil, fmt.Errorf("%w, row %d of %s is labeled %q, expected %q",
				ErrInvalidFile, i+2, path, row[0], taxa[i])
		}
		for j, field := range row[1:] {
			dist, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%w, bad distance at row %d column %d of %s: %s",
					ErrInvalidFormat, i+2, j+2, path, err.Error())
			}
			switch {
			case j == i && dist != 0:
				return nil, fmt.Errorf("%w, nonzero diagonal d(%s,%s) = %f in %s",
					ErrInvalidFile, taxa[i], taxa[j], dist, path)
			case j < i && d.At(i, j) != dist:
				return nil, fmt.Errorf("%w, asymmetric distances d(%s,%s) in %s",
					ErrInvalidFile, taxa[i], taxa[j], path)
			case j > i:
				d.SetSym(i, j, dist)
			}
		}
	}
	dm, err := nj.NewDistanceMatrix(taxa, d)
	if err != nil {
		return nil, fmt.Errorf("%w, %s: %s", ErrInvalidFile, path, err.Error())
	}
	return dm, nil
}

// Write per-gene resolution stats csv file to writer.
//
// Columns: "gene", "duplications", "losses", "polytomies", "ties_broken",
// "fallbacks", "truncated". Skipped trees (nil results) are omitted.
func WriteResolveStatsToCSV(results []*resolve.Result, names []string, w io.Writer) (err error) {
	if len(results) != len(names) {
		panic(fmt.Sprintf("there should be a name for every result, %d results %d names", len(results), len(names)))
	}
	data := make([][]string, 0, len(results)+1)
	data = append(data, []string{"gene", "duplications", "losses", "polytomies", "ties_broken", "fallbacks", "truncated"})
	for i, res := range results {
		if res == nil {
			continue
		}
		ties, fallbacks, truncated := 0, 0, 0
		for _, ps := range res.Polytomies {
			if ps.TieBroken {
				ties++
			}
			if ps.Fallback {
				fallbacks++
			}
			if ps.Truncated {
				truncated++
			}
		}
		data = append(data, []string{
			names[i],
			strconv.Itoa(res.Cost.Duplications),
			strconv.Itoa(res.Cost.Losses),
			strconv.Itoa(len(res.Polytomies)),
			strconv.Itoa(ties),
			strconv.Itoa(fallbacks),
			strconv.Itoa(truncated),
		})
	}
	writer := csv.NewWriter(w)
	defer func() {
		writer.Flush()
		if err == nil {
			err = writer.Error()
		} else if writer.Error() != nil {
			log.Printf("error when flushing output csv, %s", writer.Error())
		}
	}()
	if err = writer.WriteAll(data); err != nil {
		err = fmt.Errorf("%w, %s", ErrWritingFile, err)
		return
	}
	return
}

// Write csv file containing per-gene duplication/loss costs to writer.
func WriteScoresToCSV(costs []rc.Cost, names []string, weights rc.Weights, w io.Writer) error {
	if len(costs) != len(names) {
		panic(fmt.Sprintf("there should be a name for every cost, %d costs %d names", len(costs), len(names)))
	}
	data := make([][]string, len(costs)+1)
	data[0] = []string{"gene", "duplications", "losses", "weighted_cost"}
	for i, c := range costs {
		data[i+1] = []string{
			names[i],
			strconv.Itoa(c.Duplications),
			strconv.Itoa(c.Losses),
			strconv.FormatFloat(c.Weighted(weights), 'f', -1, 64),
		}
	}
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.WriteAll(data); err != nil {
		return fmt.Errorf("error writing csv file: %s", err)
	}
	return nil
}

// WriteCostsLineplot renders the weighted reconciliation cost of each
// resolved gene tree as a lineplot png.
func WriteCostsLineplot(costs []float64, prefix string) error {
	p := plot.New()
	p.X.Label.Text = "Gene Tree"
	p.Y.Label.Text = "Reconciliation Cost"
	p.X.Min = 1
	p.X.Max = float64(len(costs))
	p.X.Tick.Marker = plot.TickerFunc(func(_, max float64) []plot.Tick {
		step := 1
		if int(max) > maxTicks {
			step = int(math.Ceil(max / maxTicks))
		}
		ticks := make([]plot.Tick, 0, int(max)/step+2)
		for i := 1; i <= int(max); i++ {
			if i%step == 0 {
				ticks = append(ticks, plot.Tick{Value: float64(i), Label: fmt.Sprintf("%d", i)})
			} else {
				ticks = append(ticks, plot.Tick{Value: float64(i)})
			}
		}
		return ticks
	})
	p.Y.Min = 0
	pts := make(plotter.XYs, len(costs))
	for i, cost := range costs {
		pts[i].X = float64(i + 1)
		pts[i].Y = cost
	}
	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return err
	}
	line.Color = plotLineColor
	line.Dashes = []vg.Length{vg.Points(6), vg.Points(3)}
	points.Color = plotLineColor
	points.Shape = plotMarkerShap
	points.Radius = vg.Points(4)
	p.Add(line, points)
	return p.Save(plotW, plotH, fmt.Sprintf("%s.png", prefix))
}
