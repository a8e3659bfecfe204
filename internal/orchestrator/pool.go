package orchestrator

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/qepting91/reddit-promo-scout/internal/domain"
)

// outcome is what one fan-out target produced.
type outcome struct {
	target  string
	posts   []domain.Post
	err     error
	settled bool
}

// fanOut runs one fetch per target on a bounded worker pool. It returns when
// every target settled or ctx expired, whichever comes first; targets still in
// flight at that point come back unsettled.
func (o *Orchestrator) fanOut(ctx context.Context, req domain.SearchRequest, targets []string, budgets []int) ([]outcome, bool) {
	results := make([]outcome, len(targets))
	for i, t := range targets {
		results[i].target = t
	}

	var mu sync.Mutex
	jobQueue := make(chan int)
	var workerWg sync.WaitGroup

	workers := o.cfg.Workers
	if workers > len(targets) {
		workers = len(targets)
	}
	for w := 0; w < workers; w++ {
		workerWg.Add(1)
		go func(id int) {
			defer workerWg.Done()
			for i := range jobQueue {
				params := domain.FetchParams{
					Community:  targets[i],
					Keywords:   req.Keywords,
					Sort:       req.Sort,
					TimeWindow: req.TimeWindow,
					Limit:      budgets[i],
				}
				posts, err := o.collector.Fetch(ctx, params)
				log := o.logger.WithFields(logrus.Fields{"worker": id, "target": targets[i]})
				if err != nil {
					log.WithError(err).Warn("fetch failed")
				} else {
					log.WithField("count", len(posts)).Debug("fetch complete")
				}

				mu.Lock()
				results[i].posts, results[i].err, results[i].settled = posts, err, true
				mu.Unlock()
			}
		}(w)
	}

	go func() {
		defer close(jobQueue)
		for i := range targets {
			select {
			case jobQueue <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		workerWg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}

	mu.Lock()
	snapshot := make([]outcome, len(results))
	copy(snapshot, results)
	mu.Unlock()

	timedOut := false
	for i := range snapshot {
		if !snapshot[i].settled {
			snapshot[i].err = ctx.Err()
			timedOut = true
		}
	}
	return snapshot, timedOut
}
