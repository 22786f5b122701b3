// Package learner is the cold path: a scheduled batch that reads flagged
// events, consults the model, and publishes rulebook mutations.
package learner

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/wardenhq/warden/internal/events"
	"github.com/wardenhq/warden/internal/llm"
	"github.com/wardenhq/warden/internal/metrics"
	"github.com/wardenhq/warden/internal/rulebook"
)

const weakenFactor = 0.8

// Learner runs batch learning cycles. A cycle that fails at any point keeps
// the last-run marker in place, so the next tick re-examines the same
// window.
type Learner struct {
	gateway    llm.Gateway
	store      events.Store
	rules      *rulebook.Store
	marker     *marker
	minFlagged int

	cron    *cron.Cron
	entryID cron.EntryID

	now func() time.Time
}

// Options configures a Learner. MarkerPath is where the last-run timestamp
// is persisted; MinFlagged is the batch threshold.
type Options struct {
	MarkerPath string
	MinFlagged int
}

func New(gateway llm.Gateway, store events.Store, rules *rulebook.Store, opts Options) (*Learner, error) {
	m, err := newMarker(opts.MarkerPath)
	if err != nil {
		return nil, err
	}

	minFlagged := opts.MinFlagged
	if minFlagged <= 0 {
		minFlagged = 10
	}

	return &Learner{
		gateway:    gateway,
		store:      store,
		rules:      rules,
		marker:     m,
		minFlagged: minFlagged,
		now:        time.Now,
	}, nil
}

// Start schedules RunBatch at the given interval until Stop is called.
func (l *Learner) Start(interval time.Duration) error {
	if l.cron != nil {
		return fmt.Errorf("learner already started")
	}

	c := cron.New()
	id, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		if err := l.RunBatch(context.Background()); err != nil {
			log.Error().Err(err).Msg("learner batch failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule learner: %w", err)
	}

	l.cron = c
	l.entryID = id
	c.Start()

	log.Info().Dur("interval", interval).Msg("learner scheduler started")
	return nil
}

// Stop halts the scheduler and waits for a running batch to finish.
func (l *Learner) Stop() {
	if l.cron == nil {
		return
	}
	<-l.cron.Stop().Done()
}

// RunBatch executes one learning cycle. The last-run marker only advances
// when the cycle fully succeeds (or is skipped for lack of data); any
// failure leaves the window to be retried on the next tick.
func (l *Learner) RunBatch(ctx context.Context) error {
	start := l.now().Unix()
	lastRun := l.marker.read(start)

	flagged, err := l.store.FlaggedSince(ctx, lastRun)
	if err != nil {
		metrics.LearnerRuns.WithLabelValues("error").Inc()
		return fmt.Errorf("fetch flagged events: %w", err)
	}

	log.Info().Int("flagged", len(flagged)).Int64("since", lastRun).Msg("learner batch started")

	if len(flagged) < l.minFlagged {
		log.Info().
			Int("flagged", len(flagged)).
			Int("threshold", l.minFlagged).
			Msg("not enough flagged requests, skipping batch")
		if err := l.marker.write(start); err != nil {
			log.Warn().Err(err).Msg("failed to persist last-run marker")
		}
		metrics.LearnerRuns.WithLabelValues("skipped").Inc()
		return nil
	}

	snapshot := l.rules.Snapshot()

	output, err := l.gateway.LearnRules(ctx, snapshot, flagged)
	if err != nil {
		metrics.LearnerRuns.WithLabelValues("error").Inc()
		return fmt.Errorf("learn rules: %w", err)
	}

	for _, rationale := range output.Rationales {
		log.Info().Str("rationale", rationale).Msg("learner rationale")
	}

	if output.Empty() {
		log.Info().Msg("learner suggested no changes")
		if err := l.marker.write(start); err != nil {
			log.Warn().Err(err).Msg("failed to persist last-run marker")
		}
		metrics.LearnerRuns.WithLabelValues("no_changes").Inc()
		return nil
	}

	mutated := applyChanges(snapshot, output)

	if err := l.rules.Publish(mutated); err != nil {
		metrics.LearnerRuns.WithLabelValues("error").Inc()
		return fmt.Errorf("publish rulebook: %w", err)
	}

	if err := l.marker.write(start); err != nil {
		log.Warn().Err(err).Msg("failed to persist last-run marker")
	}

	log.Info().
		Int("rules", len(mutated.Rules)).
		Int("was", len(snapshot.Rules)).
		Msg("rulebook updated by learner")
	metrics.LearnerRuns.WithLabelValues("published").Inc()
	return nil
}
