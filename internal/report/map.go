package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/habitat.report/internal/habitat"
)

var methodSymbols = map[string]string{
	MethodRaw:        "triangle",
	MethodPredicted:  "circle",
	MethodMostLikely: "diamond",
}

// RenderMap writes an HTML scatter of the raw and predicted positions
// with one series per method and category. Most-likely labels are drawn
// at the predicted position.
func RenderMap(w io.Writer, title string, ordering habitat.Ordering, rows []FixRow) error {
	ordering = ordering.Normalize()
	if len(rows) == 0 {
		return fmt.Errorf("no fixes to map")
	}

	minLon, maxLon, minLat, maxLat := rows[0].Lon, rows[0].Lon, rows[0].Lat, rows[0].Lat
	grow := func(lon, lat float64) {
		minLon, maxLon = min(minLon, lon), max(maxLon, lon)
		minLat, maxLat = min(minLat, lat), max(maxLat, lat)
	}

	type key struct {
		method string
		cat    habitat.Category
	}
	series := make(map[key][]opts.ScatterData)
	add := func(method string, c habitat.Category, lon, lat float64, name string) {
		if c == "" {
			return
		}
		k := key{method, c}
		series[k] = append(series[k], opts.ScatterData{
			Name:       name,
			Value:      []interface{}{lon, lat},
			Symbol:     methodSymbols[method],
			SymbolSize: 8,
		})
	}
	for _, r := range rows {
		grow(r.Lon, r.Lat)
		grow(r.PredLon, r.PredLat)
		name := fmt.Sprintf("%s #%d", r.FixID, r.Index)
		add(MethodRaw, r.Raw, r.Lon, r.Lat, name)
		add(MethodPredicted, r.Predicted, r.PredLon, r.PredLat, name)
		add(MethodMostLikely, r.Majority, r.PredLon, r.PredLat, name)
	}
	pad := 0.05 * max(maxLon-minLon, maxLat-minLat, 0.01)

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "1000px", Height: "800px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("fixes=%d", len(rows))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Bottom: "0"}),
		charts.WithXAxisOpts(opts.XAxis{Min: minLon - pad, Max: maxLon + pad, Name: "Longitude", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: minLat - pad, Max: maxLat + pad, Name: "Latitude", NameLocation: "middle", NameGap: 40}),
	)
	for _, method := range []string{MethodRaw, MethodPredicted, MethodMostLikely} {
		for _, c := range ordering {
			data := series[key{method, c}]
			if len(data) == 0 {
				continue
			}
			scatter.AddSeries(fmt.Sprintf("%s: %s", method, c), data)
		}
	}
	return scatter.Render(w)
}
