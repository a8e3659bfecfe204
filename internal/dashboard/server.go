package dashboard

import (
	"context"
	"io"
	"net/http"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	"github.com/sirupsen/logrus"

	"github.com/qepting91/reddit-promo-scout/internal/domain"
	"github.com/qepting91/reddit-promo-scout/internal/storage"
)

// RecentPosts is how many stored posts feed the signal chart.
const RecentPosts = 1000

// Source is the read side of the storage gateway the dashboard needs.
type Source interface {
	QueryPosts(ctx context.Context, filter storage.PostFilter) ([]domain.ClassifiedPost, error)
	Stats(ctx context.Context) (*storage.Stats, error)
}

// Handler renders the chart page on every request.
func Handler(src Source, logger logrus.FieldLogger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats, err := src.Stats(r.Context())
		if err != nil {
			logger.WithError(err).Error("dashboard stats failed")
			http.Error(w, "dashboard unavailable", http.StatusInternalServerError)
			return
		}
		posts, err := src.QueryPosts(r.Context(), storage.PostFilter{Limit: RecentPosts})
		if err != nil {
			logger.WithError(err).Error("dashboard query failed")
			http.Error(w, "dashboard unavailable", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := Render(w, stats, posts); err != nil {
			logger.WithError(err).Error("dashboard render failed")
		}
	})
}

// Render writes a page with the classification mix, top communities and signal frequency.
func Render(w io.Writer, stats *storage.Stats, posts []domain.ClassifiedPost) error {
	// 1. Classification mix
	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Classification Mix"}),
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros}),
	)
	var pieItems []opts.PieData
	for _, c := range domain.Classifications {
		pieItems = append(pieItems, opts.PieData{Name: string(c), Value: stats.ByClassification[c]})
	}
	pie.AddSeries("Posts", pieItems)

	// 2. Community dominance
	communities := charts.NewBar()
	communities.SetGlobalOptions(charts.WithTitleOpts(opts.Title{Title: "Top Communities"}))
	var subX []string
	var subY []opts.BarData
	for _, cc := range stats.TopCommunities {
		subX = append(subX, cc.Community)
		subY = append(subY, opts.BarData{Value: cc.Posts})
	}
	communities.SetXAxis(subX).AddSeries("Posts", subY)

	// 3. Signal velocity
	signals := charts.NewBar()
	signals.SetGlobalOptions(charts.WithTitleOpts(opts.Title{
		Title:    "Signal Frequency",
		Subtitle: "most recent stored posts",
	}))
	var sigX []string
	var sigY []opts.BarData
	for _, sc := range signalCounts(posts) {
		sigX = append(sigX, string(sc.signal))
		sigY = append(sigY, opts.BarData{Value: sc.n})
	}
	signals.SetXAxis(sigX).AddSeries("Hits", sigY)

	page := components.NewPage()
	page.PageTitle = "Promo Scout"
	page.AddCharts(pie, communities, signals)
	return page.Render(w)
}

type signalCount struct {
	signal domain.Signal
	n      int
}

// signalCounts tallies signals, most frequent first.
func signalCounts(posts []domain.ClassifiedPost) []signalCount {
	counts := map[domain.Signal]int{}
	for _, p := range posts {
		for _, s := range p.Signals {
			counts[s]++
		}
	}
	out := make([]signalCount, 0, len(counts))
	for s, n := range counts {
		out = append(out, signalCount{s, n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].n != out[j].n {
			return out[i].n > out[j].n
		}
		return out[i].signal < out[j].signal
	})
	return out
}
