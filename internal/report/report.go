// Package report 将评估结果渲染成自包含的 HTML 报表。
// 只生成静态页面，不依赖无头浏览器截图。
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"gridbt/internal/eval"
)

const (
	colorBackground = "#060c1b"
	colorText       = "#eceff4"
	colorTextDim    = "#9ca3af"
	colorBenchmark  = "#fbbf24"

	chartWidthPx  = 1400
	chartHeightPx = 520
)

var seriesColors = []string{"#3b82f6", "#34d399", "#f472b6", "#22d3ee", "#a78bfa", "#fb7185", "#facc15", "#4ade80"}

// WriteHTML 渲染 IS/OOS 两段的权益对比图并写入 path。
// 组合曲线取 OOS 通过者中综合得分最高的 topN 条，基准曲线始终绘制。
func WriteHTML(path, symbol string, rep *eval.Report, topN int) error {
	if rep == nil {
		return fmt.Errorf("report 不能为空")
	}
	if topN <= 0 {
		topN = 5
	}
	top := rep.TopRows(topN)

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.PageTitle = fmt.Sprintf("%s %s 回测报表", strings.ToUpper(symbol), rep.Timeframe)

	isChart := equityChart(
		fmt.Sprintf("%s %s In-Sample (%d bars)", strings.ToUpper(symbol), rep.Timeframe, rep.InsampleCut),
		benchmarkSubtitle(rep),
		rep.BenchmarkIS, top, phaseIS,
	)
	page.AddCharts(isChart)

	if len(rep.BenchmarkOOS.Equity) > 0 {
		oosChart := equityChart(
			fmt.Sprintf("%s %s Out-of-Sample (%d bars)", strings.ToUpper(symbol), rep.Timeframe, rep.Bars-rep.InsampleCut),
			benchmarkSubtitle(rep),
			rep.BenchmarkOOS, top, phaseOOS,
		)
		page.AddCharts(oosChart)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return page.Render(f)
}

type phaseKind int

const (
	phaseIS phaseKind = iota
	phaseOOS
)

func pickPhase(row eval.Row, kind phaseKind) *eval.Phase {
	if kind == phaseIS {
		return row.IS
	}
	return row.OOS
}

func benchmarkSubtitle(rep *eval.Report) string {
	return fmt.Sprintf("run=%s combos=%d is_passed=%d passed=%d",
		rep.RunID, len(rep.Rows), rep.ISPassed, rep.Passed)
}

func equityChart(title, subtitle string, benchmark eval.Phase, top []eval.Row, kind phaseKind) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", chartHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:         title,
			Subtitle:      subtitle,
			Left:          "left",
			TitleStyle:    &opts.TextStyle{Color: colorText, FontSize: 16},
			SubtitleStyle: &opts.TextStyle{Color: colorTextDim},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "40", TextStyle: &opts.TextStyle{Color: colorText}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextDim},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextDim},
		}),
	)

	xAxis := make([]string, len(benchmark.Equity))
	for i := range xAxis {
		xAxis[i] = fmt.Sprintf("%d", i)
	}
	line.SetXAxis(xAxis)
	line.AddSeries("Benchmark", toLineData(benchmark.Equity),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorBenchmark, Width: 2}))

	for i, row := range top {
		phase := pickPhase(row, kind)
		if phase == nil {
			continue
		}
		color := seriesColors[i%len(seriesColors)]
		line.AddSeries(row.Label, toLineData(phase.Equity),
			charts.WithLineStyleOpts(opts.LineStyle{Color: color, Width: 2}))
	}
	return line
}

func toLineData(values []float64) []opts.LineData {
	data := make([]opts.LineData, len(values))
	for i, v := range values {
		data[i] = opts.LineData{Value: v}
	}
	return data
}
