package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultLookbackMinutes is the number of minutes before the observed last
// trip at which predictions are scored.
const DefaultLookbackMinutes = 30

// Observer receives progress from an evaluation.
type Observer interface {
	MinuteScanned()
	Scored(r Result)
	DateEvaluated(found bool)
}

type nopObserver struct{}

func (nopObserver) MinuteScanned()     {}
func (nopObserver) Scored(Result)      {}
func (nopObserver) DateEvaluated(bool) {}

func orNop(o Observer) Observer {
	if o == nil {
		return nopObserver{}
	}
	return o
}

// Schedule returns the trip the static schedule expects to be last.
type Schedule interface {
	ScheduledLastTrip(ctx context.Context, routeID string, directionID int, stopID string, date time.Time) (tripID, departure string, err error)
}

// Row is the evaluation of one service date. When Found is false the last
// trip was not observed, Actual is zero and all tallies are zero.
type Row struct {
	Date               time.Time
	Accurate           int
	FalsePositive      int
	FalseNegative      int
	ScheduledTripID    string
	ScheduledDeparture string
	Found              bool
	Actual             ObservedLastTrip
}

// Total is the number of scored minutes.
func (r Row) Total() int { return r.Accurate + r.FalsePositive + r.FalseNegative }

// Evaluator compares schedule, observed and predicted last trips.
type Evaluator struct {
	schedule Schedule
	finder   *Finder
	scorer   *Scorer
	lookback int
	observer Observer
	logger   *slog.Logger
}

// NewEvaluator creates an Evaluator. A non-positive lookback selects
// DefaultLookbackMinutes.
func NewEvaluator(schedule Schedule, finder *Finder, scorer *Scorer, lookback int, logger *slog.Logger) *Evaluator {
	if lookback <= 0 {
		lookback = DefaultLookbackMinutes
	}
	return &Evaluator{
		schedule: schedule,
		finder:   finder,
		scorer:   scorer,
		lookback: lookback,
		observer: nopObserver{},
		logger:   logger,
	}
}

// SetObserver installs o on the evaluator, its finder and its scorer.
func (e *Evaluator) SetObserver(o Observer) {
	e.observer = orNop(o)
	e.finder.SetObserver(o)
	e.scorer.SetObserver(o)
}

// EvaluateDate evaluates one service date. A missing schedule baseline is an
// error; an unobserved last trip is a row with Found false.
func (e *Evaluator) EvaluateDate(ctx context.Context, t Target, date time.Time) (Row, error) {
	row := Row{Date: date}

	var err error
	row.ScheduledTripID, row.ScheduledDeparture, err = e.schedule.ScheduledLastTrip(ctx, t.RouteID, t.DirectionID, t.StopID, date)
	if err != nil {
		return Row{}, fmt.Errorf("evaluate %s: %w", date.Format("2006-01-02"), err)
	}

	actual, found, err := e.finder.Find(ctx, t, date)
	if err != nil {
		return Row{}, fmt.Errorf("evaluate %s: %w", date.Format("2006-01-02"), err)
	}
	e.observer.DateEvaluated(found)
	if !found {
		return row, nil
	}
	row.Found = true
	row.Actual = actual

	for n := 1; n <= e.lookback; n++ {
		minute := actual.Minute.Add(-time.Duration(n) * time.Minute)
		result, err := e.scorer.Score(ctx, row.ScheduledTripID, actual.TripID, actual.VehicleID, t.StopID, minute)
		if err != nil {
			return Row{}, fmt.Errorf("evaluate %s: %w", date.Format("2006-01-02"), err)
		}
		switch result {
		case Accurate:
			row.Accurate++
		case FalsePositive:
			row.FalsePositive++
		case FalseNegative:
			row.FalseNegative++
		}
	}

	e.logger.Info("date evaluated",
		"date", date.Format("2006-01-02"),
		"scheduled", row.ScheduledTripID,
		"actual", actual.TripID,
		"accurate", row.Accurate,
		"false_positive", row.FalsePositive,
		"false_negative", row.FalseNegative,
	)
	return row, nil
}

// Evaluate runs EvaluateDate for each date in order, handing every row to
// onRow (when non-nil) as soon as it is ready. The first error stops the
// run; rows completed before it are returned with it.
func (e *Evaluator) Evaluate(ctx context.Context, t Target, dates []time.Time, onRow func(Row) error) ([]Row, error) {
	rows := make([]Row, 0, len(dates))
	for _, date := range dates {
		row, err := e.EvaluateDate(ctx, t, date)
		if err != nil {
			return rows, err
		}
		rows = append(rows, row)
		if onRow != nil {
			if err := onRow(row); err != nil {
				return rows, err
			}
		}
	}
	return rows, nil
}
