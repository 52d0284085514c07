// Package seed generates a realistic synthetic run log for demos and local
// development. Generation is deterministic for a given seed value, so demo
// environments always show the same numbers.
package seed

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/arclight-ai/opsdeck/internal/model"
)

// Options controls the shape of the generated data set.
type Options struct {
	Rows  int
	Start time.Time
	End   time.Time
	Seed  int64
}

// DefaultOptions spans six and a half weeks of activity at demo scale.
func DefaultOptions() Options {
	return Options{
		Rows:  220,
		Start: time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 2, 14, 17, 0, 0, 0, time.UTC),
		Seed:  42,
	}
}

var taskWeights = []weighted[model.TaskType]{
	{model.TaskLeadSummary, 0.35},
	{model.TaskFollowUp, 0.25},
	{model.TaskRiskAnalysis, 0.25},
	{model.TaskDataHygiene, 0.15},
}

var leadSources = []string{
	"Inbound - Webinar", "Inbound - Demo Request", "Inbound - Whitepaper",
	"Inbound - Website", "Outbound - Cold", "Outbound - Enterprise",
	"Event - Summit", "Event - Workshop", "Partner Referral", "PLG - Free Trial",
}

var crmStageWeights = []weighted[string]{
	{"MQL", 0.18},
	{"SAL", 0.12},
	{"SQL", 0.14},
	{"Discovery", 0.16},
	{"Technical Validation", 0.12},
	{"Value/Impact", 0.10},
	{"Negotiation", 0.08},
	{"Closed Won", 0.06},
	{"Closed Lost", 0.04},
}

var promptVersions = []string{"v1.0", "v1.1", "v1.2", "v2.0"}

type weighted[T any] struct {
	value  T
	weight float64
}

func pick[T any](rng *rand.Rand, choices []weighted[T]) T {
	total := 0.0
	for _, c := range choices {
		total += c.weight
	}
	r := rng.Float64() * total
	for _, c := range choices {
		r -= c.weight
		if r < 0 {
			return c.value
		}
	}
	return choices[len(choices)-1].value
}

// Generate produces a sorted-by-timestamp synthetic record set. Version "A"
// is the deliberately stronger agent: faster, better accepted, and with a
// lower error rate, so the A/B report has a visible winner.
func Generate(opts Options) []model.Record {
	rng := rand.New(rand.NewSource(opts.Seed))

	timestamps := make([]time.Time, opts.Rows)
	for i := range timestamps {
		timestamps[i] = businessTimestamp(rng, opts.Start, opts.End)
	}
	sortTimes(timestamps)

	userIDs := make([]string, 30)
	for i := range userIDs {
		userIDs[i] = fmt.Sprintf("USR%03d", 101+i)
	}

	records := make([]model.Record, 0, opts.Rows)
	for i := 0; i < opts.Rows; i++ {
		task := pick(rng, taskWeights)

		version := "B"
		if rng.Float64() < 0.70 {
			version = "A"
		}

		// Later runs skew toward newer prompt revisions.
		dayRatio := float64(i) / float64(opts.Rows)
		var prompt string
		switch {
		case dayRatio < 0.25:
			prompt = pick(rng, []weighted[string]{{promptVersions[0], 0.6}, {promptVersions[1], 0.4}})
		case dayRatio < 0.60:
			prompt = pick(rng, []weighted[string]{{promptVersions[1], 0.4}, {promptVersions[2], 0.6}})
		default:
			prompt = pick(rng, []weighted[string]{{promptVersions[2], 0.4}, {promptVersions[3], 0.6}})
		}

		var resolution float64
		var acceptance, errorRate float64
		if version == "A" {
			resolution = rng.NormFloat64()*0.8 + 3.5
			acceptance = 0.90
			errorRate = 0.03
		} else {
			resolution = rng.NormFloat64()*1.2 + 5.2
			acceptance = 0.72
			errorRate = 0.08
		}
		resolution = clamp(resolution, 1.0, 12.0)

		accepted := rng.Float64() < acceptance
		rating := ratingFor(rng, accepted)

		abstained := rng.Float64() < 0.05
		if abstained {
			accepted = false
			rating = 2 + rng.Intn(2)
		}
		errored := rng.Float64() < errorRate
		if errored {
			accepted = false
			rating = 1
		}

		crmStage := pick(rng, crmStageWeights)

		records = append(records, model.Record{
			RunID:            fmt.Sprintf("RUN%03d", i+1),
			Timestamp:        timestamps[i],
			UserID:           userIDs[rng.Intn(len(userIDs))],
			TaskType:         task,
			AgentVersion:     version,
			ResolutionTime:   round2(resolution),
			UserAccepted:     accepted,
			UserRating:       rating,
			Abstained:        abstained,
			ErrorOccurred:    errored,
			LeadSource:       leadSources[rng.Intn(len(leadSources))],
			CRMStage:         crmStage,
			OpportunityValue: opportunityValue(rng, crmStage, task),
			WorkflowStage:    model.DeriveWorkflowStage(task),
			TimeSavedMinutes: timeSaved(rng, task),
			PromptVersion:    prompt,
		})
	}
	return records
}

// businessTimestamp picks a weekday instant between start and end, clamped to
// business hours.
func businessTimestamp(rng *rand.Rand, start, end time.Time) time.Time {
	span := int64(end.Sub(start).Seconds())
	dt := start.Add(time.Duration(rng.Int63n(span)) * time.Second)
	for dt.Weekday() == time.Saturday || dt.Weekday() == time.Sunday {
		dt = dt.AddDate(0, 0, 1)
	}
	return time.Date(dt.Year(), dt.Month(), dt.Day(),
		8+rng.Intn(10), rng.Intn(60), rng.Intn(60), 0, time.UTC)
}

func ratingFor(rng *rand.Rand, accepted bool) int {
	if accepted {
		return pick(rng, []weighted[int]{{3, 0.1}, {4, 0.35}, {5, 0.55}})
	}
	return pick(rng, []weighted[int]{{1, 0.3}, {2, 0.5}, {3, 0.2}})
}

// opportunityValue sizes the deal by CRM stage. Early-funnel lead summaries
// carry no value yet.
func opportunityValue(rng *rand.Rand, crmStage string, task model.TaskType) float64 {
	between := func(lo, hi int) float64 {
		return float64(lo + rng.Intn(hi-lo+1))
	}
	switch {
	case task == model.TaskLeadSummary && (crmStage == "MQL" || crmStage == "SAL"):
		return 0
	case crmStage == "Closed Lost":
		if rng.Intn(2) == 0 {
			return 0
		}
		return between(10000, 200000)
	case crmStage == "Closed Won":
		return between(25000, 600000)
	case crmStage == "Negotiation" || crmStage == "Value/Impact":
		return between(50000, 500000)
	case crmStage == "Technical Validation":
		return between(30000, 350000)
	case crmStage == "Discovery" || crmStage == "SQL":
		return between(10000, 150000)
	default:
		if rng.Intn(2) == 0 {
			return 0
		}
		return between(5000, 50000)
	}
}

// timeSaved draws from the task's manual-effort range rather than using the
// fixed midpoint, so the synthetic data has realistic spread.
func timeSaved(rng *rand.Rand, task model.TaskType) float64 {
	lo, hi := model.TimeSavedRange(task)
	return round1(lo + rng.Float64()*(hi-lo))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round2(v float64) float64 { return float64(int(v*100+0.5)) / 100 }
func round1(v float64) float64 { return float64(int(v*10+0.5)) / 10 }

func sortTimes(ts []time.Time) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
}
