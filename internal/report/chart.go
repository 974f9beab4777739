package report

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"retail-analytics/internal/models"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// ErrNoChartData is returned when either chart panel would be empty
var ErrNoChartData = errors.New("no data available for plotting")

const (
	chartWidth  = 15 * vg.Inch
	chartHeight = 5 * vg.Inch
	chartDPI    = 150
)

// RenderSalesChart draws the monthly revenue trend next to the top countries
// by revenue and returns the PNG bytes
func RenderSalesChart(monthly []models.MonthlyRevenue, countries []models.CountryRevenue) ([]byte, error) {
	if len(monthly) == 0 || len(countries) == 0 {
		return nil, ErrNoChartData
	}

	trend, err := monthlyTrendPlot(monthly)
	if err != nil {
		return nil, err
	}
	top, err := topCountriesPlot(countries)
	if err != nil {
		return nil, err
	}

	img := vgimg.NewWith(vgimg.UseWH(chartWidth, chartHeight), vgimg.UseDPI(chartDPI))
	dc := draw.New(img)

	tiles := draw.Tiles{
		Rows:      1,
		Cols:      2,
		PadX:      vg.Millimeter * 10,
		PadTop:    vg.Millimeter * 4,
		PadBottom: vg.Millimeter * 4,
		PadLeft:   vg.Millimeter * 4,
		PadRight:  vg.Millimeter * 4,
	}
	canvases := plot.Align([][]*plot.Plot{{trend, top}}, tiles, dc)
	trend.Draw(canvases[0][0])
	top.Draw(canvases[0][1])

	var buf bytes.Buffer
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode chart: %w", err)
	}
	return buf.Bytes(), nil
}

func monthlyTrendPlot(monthly []models.MonthlyRevenue) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Monthly Revenue Trend"
	p.Y.Label.Text = "Revenue"

	pts := make(plotter.XYs, len(monthly))
	labels := make([]string, len(monthly))
	for i, m := range monthly {
		pts[i].X = float64(i)
		pts[i].Y = m.Revenue.InexactFloat64()
		labels[i] = m.Month.Format("Jan 2006")
	}

	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return nil, fmt.Errorf("failed to build revenue line: %w", err)
	}
	line.Width = vg.Points(2)
	p.Add(plotter.NewGrid(), line, points)

	p.NominalX(labels...)
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = draw.XRight
	p.X.Tick.Label.YAlign = draw.YCenter
	return p, nil
}

func topCountriesPlot(countries []models.CountryRevenue) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Top %d Countries by Revenue", len(countries))
	p.X.Label.Text = "Revenue"

	// highest revenue drawn at the top
	n := len(countries)
	values := make(plotter.Values, n)
	names := make([]string, n)
	for i, c := range countries {
		values[n-1-i] = c.Revenue.InexactFloat64()
		names[n-1-i] = c.Country
	}

	bars, err := plotter.NewBarChart(values, vg.Points(14))
	if err != nil {
		return nil, fmt.Errorf("failed to build country bars: %w", err)
	}
	bars.Horizontal = true
	bars.LineStyle.Width = 0
	p.Add(bars)
	p.NominalY(names...)
	return p, nil
}
