// Slice charts: power heatmap and color rendering
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package export

import (
	"fmt"
	"html/template"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"radscan-go-migration/pkg/scan"
)

// writeCharts renders power.html (heatmap of the integrated power per
// pixel) and color.html (the sRGB rendering of each pixel's spectrum).
func (w *Writer) writeCharts(dir string, session *scan.Session) error {
	if err := w.writePowerHeatmap(dir, session); err != nil {
		return err
	}
	return w.writeColorGrid(dir, session)
}

func (w *Writer) writePowerHeatmap(dir string, session *scan.Session) error {
	power, _, _, _, _, _ := session.Results()
	n := session.Size

	min, max := power[0], power[0]
	for _, v := range power {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	var data []opts.HeatMapData
	labels := make([]string, n)
	for i := 0; i < n; i++ {
		labels[i] = fmt.Sprintf("%d", i)
	}
	for idx, v := range power {
		data = append(data, opts.HeatMapData{
			Value: [3]interface{}{idx % n, idx / n, v},
		})
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("%s - received power", session.Name),
			Subtitle: fmt.Sprintf("z = %.2f cm, int_time = %.4f", session.ZPos, session.IntTime),
		}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: labels}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Min: float32(min),
			Max: float32(max),
		}),
	)
	hm.SetXAxis(labels).AddSeries("power", data)

	f, err := os.Create(filepath.Join(dir, "power.html"))
	if err != nil {
		return err
	}
	defer f.Close()
	return hm.Render(f)
}

var colorGridTmpl = template.Must(template.New("colorgrid").Parse(`<!DOCTYPE html>
<html><head><title>{{.Title}}</title></head><body>
<h3>{{.Title}}</h3>
<table style="border-collapse:collapse">
{{range .Rows}}<tr>{{range .}}<td style="width:24px;height:24px;background:{{.}}"></td>{{end}}</tr>
{{end}}</table>
</body></html>
`))

func (w *Writer) writeColorGrid(dir string, session *scan.Session) error {
	_, _, _, _, _, color := session.Results()
	n := session.Size

	rows := make([][]template.CSS, n)
	for row := 0; row < n; row++ {
		rows[row] = make([]template.CSS, n)
		for col := 0; col < n; col++ {
			c := color[row*n+col]
			rows[row][col] = template.CSS(fmt.Sprintf("rgb(%d,%d,%d)",
				clamp255(c[0]), clamp255(c[1]), clamp255(c[2])))
		}
	}

	f, err := os.Create(filepath.Join(dir, "color.html"))
	if err != nil {
		return err
	}
	defer f.Close()

	return colorGridTmpl.Execute(f, struct {
		Title string
		Rows  [][]template.CSS
	}{
		Title: fmt.Sprintf("%s - color rendering (z = %.2f cm)", session.Name, session.ZPos),
		Rows:  rows,
	})
}

func clamp255(v float64) int {
	n := int(v * 255)
	if n < 0 {
		return 0
	}
	if n > 255 {
		return 255
	}
	return n
}
