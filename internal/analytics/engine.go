// Package analytics aggregates the lines of a single log file into level
// counts, per-id breakdowns, inter-event timing, topics and error ratios.
//
// Every aggregation is a pure function of the line set, so the Engine is safe
// for concurrent use and Analyze runs all of them in parallel.
package analytics

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/tareqmamari/logs-ratio-server/internal/logrecord"
)

// AverageKey is the reserved per-topic key holding the mean across ids.
const AverageKey = "Average"

// Correlation id positions used by each analysis.
const (
	levelIDIndex    = logrecord.FieldPrimaryID
	intervalIDIndex = logrecord.FieldSecondaryID
	topicIDIndex    = logrecord.FieldPrimaryID
	ratioIDIndex    = logrecord.FieldPrimaryID
)

var (
	startedPattern = regexp.MustCompile(`(?i)started`)
	endedPattern   = regexp.MustCompile(`(?i)ended`)
)

// ErrorRatioReport holds per-id error ratios and their mean.
type ErrorRatioReport struct {
	Ratios  map[string]float64 `json:"ratios"`
	Average float64            `json:"average"`
}

// Report combines every analysis of one file.
type Report struct {
	FileName         string                        `json:"file_name,omitempty"`
	LineCount        int                           `json:"line_count"`
	LevelCounts      map[string]int                `json:"level_counts"`
	LevelCountsPerID map[string]map[string]int     `json:"level_counts_per_id"`
	MeanIntervals    map[string]float64            `json:"mean_intervals"`
	Topics           map[string][]string           `json:"topics"`
	TopicIntervals   map[string]map[string]float64 `json:"topic_intervals"`
	ErrorRatios      ErrorRatioReport              `json:"error_ratios"`
}

// Engine runs the aggregations for an ordered set of levels.
type Engine struct {
	levels []logrecord.Level
}

// NewEngine creates an engine. An empty level set falls back to the defaults.
func NewEngine(levels []logrecord.Level) *Engine {
	if len(levels) == 0 {
		levels = logrecord.DefaultLevels
	}
	return &Engine{levels: append([]logrecord.Level(nil), levels...)}
}

// Levels returns the configured level order.
func (e *Engine) Levels() []logrecord.Level {
	return append([]logrecord.Level(nil), e.levels...)
}

// CountLevels classifies each whole line by the first configured level keyword
// it contains. Every configured level is present in the result.
func (e *Engine) CountLevels(lines []string) map[string]int {
	counts := e.zeroCounts()
	for _, line := range lines {
		if level, ok := logrecord.ClassifyLine(line, e.levels); ok {
			counts[level.String()]++
		}
	}
	return counts
}

// CountLevelsPerID counts the LEVEL: prefix of each line per correlation id.
// Lines whose prefix is not a configured level are ignored.
func (e *Engine) CountLevelsPerID(lines []string) map[string]map[string]int {
	ids := newSpellings()
	result := make(map[string]map[string]int)

	for _, line := range lines {
		fields, ok := logrecord.Split(line)
		if !ok || !logrecord.IsValidCorrelationID(fields[levelIDIndex]) {
			continue
		}
		level, ok := logrecord.ParseLevel(logrecord.LevelPrefix(fields[logrecord.FieldBody]))
		if !ok || !e.hasLevel(level) {
			continue
		}

		id := ids.canonical(fields[levelIDIndex])
		counts, exists := result[id]
		if !exists {
			counts = e.zeroCounts()
			result[id] = counts
		}
		counts[level.String()]++
	}
	return result
}

// MeanIntervalPerID returns, per id, the mean gap in seconds between
// consecutive timestamps. Ids with fewer than two timestamps are omitted.
func (e *Engine) MeanIntervalPerID(lines []string) map[string]float64 {
	ids := newSpellings()
	times := make(map[string][]time.Time)

	for _, line := range lines {
		rec, ok := logrecord.Parse(line, intervalIDIndex)
		if !ok {
			continue
		}
		id := ids.canonical(rec.CorrelationID)
		times[id] = append(times[id], rec.Timestamp)
	}

	result := make(map[string]float64)
	for id, ts := range times {
		if mean, ok := meanDelta(ts); ok {
			result[id] = mean
		}
	}
	return result
}

// TopicsPerID returns the sorted set of topics seen per id. A topic is the
// first token of the message body, delimited by whitespace or '('.
func (e *Engine) TopicsPerID(lines []string) map[string][]string {
	ids := newSpellings()
	sets := make(map[string]*topicSet)

	for _, line := range lines {
		fields, ok := logrecord.Split(line)
		if !ok || !logrecord.IsValidCorrelationID(fields[topicIDIndex]) {
			continue
		}
		_, message, ok := logrecord.Body(fields[logrecord.FieldBody])
		if !ok {
			continue
		}

		id := ids.canonical(fields[topicIDIndex])
		set, exists := sets[id]
		if !exists {
			set = newTopicSet()
			sets[id] = set
		}
		if topic := leadingToken(message); topic != "" {
			set.add(topic)
		}
	}

	result := make(map[string][]string, len(sets))
	for id, set := range sets {
		result[id] = set.sorted()
	}
	return result
}

// TopicIntervals groups timestamps by (topic, id) after stripping the words
// "started" and "ended" from the message, and reports each group's mean gap
// rounded to 3 decimals plus the mean across ids under AverageKey.
func (e *Engine) TopicIntervals(lines []string) map[string]map[string]float64 {
	topics := newSpellings()
	ids := newSpellings()
	groups := make(map[string]map[string][]time.Time)

	for _, line := range lines {
		fields, ok := logrecord.Split(line)
		if !ok || !logrecord.IsValidCorrelationID(fields[topicIDIndex]) {
			continue
		}
		_, message, ok := logrecord.Body(fields[logrecord.FieldBody])
		if !ok {
			continue
		}

		message = startedPattern.ReplaceAllString(message, "")
		message = endedPattern.ReplaceAllString(message, "")
		tokens := strings.FieldsFunc(message, isTopicDelimiter)
		if len(tokens) == 0 {
			continue
		}

		ts, ok := logrecord.ParseTimestamp(fields[logrecord.FieldTimestamp])
		if !ok {
			continue
		}

		topic := topics.canonical(tokens[0])
		id := ids.canonical(fields[topicIDIndex])
		if groups[topic] == nil {
			groups[topic] = make(map[string][]time.Time)
		}
		groups[topic][id] = append(groups[topic][id], ts)
	}

	result := make(map[string]map[string]float64, len(groups))
	for topic, byID := range groups {
		diffs := make(map[string]float64, len(byID)+1)
		var total float64
		var count int
		for id, ts := range byID {
			mean, ok := meanDelta(ts)
			if !ok {
				continue
			}
			diffs[id] = Round(mean, 3)
			total += mean
			count++
		}
		diffs[AverageKey] = 0
		if count > 0 {
			diffs[AverageKey] = Round(total/float64(count), 3)
		}
		result[topic] = diffs
	}
	return result
}

// ErrorRatios returns, per id, the share of its lines whose body mentions
// ERROR, rounded to 4 decimals, and the mean of the unrounded ratios.
func (e *Engine) ErrorRatios(lines []string) ErrorRatioReport {
	type tally struct{ errors, total int }

	ids := newSpellings()
	tallies := make(map[string]*tally)

	for _, line := range lines {
		fields, ok := logrecord.Split(line)
		if !ok || !logrecord.IsValidCorrelationID(fields[ratioIDIndex]) {
			continue
		}
		id := ids.canonical(fields[ratioIDIndex])
		t, exists := tallies[id]
		if !exists {
			t = &tally{}
			tallies[id] = t
		}
		t.total++
		if strings.Contains(strings.ToUpper(fields[logrecord.FieldBody]), "ERROR") {
			t.errors++
		}
	}

	report := ErrorRatioReport{Ratios: make(map[string]float64, len(tallies))}
	if len(tallies) == 0 {
		return report
	}

	var sum float64
	for id, t := range tallies {
		ratio := float64(t.errors) / float64(t.total)
		report.Ratios[id] = Round(ratio, 4)
		sum += ratio
	}
	report.Average = Round(sum/float64(len(tallies)), 4)
	return report
}

// Analyze runs every aggregation over lines concurrently.
func (e *Engine) Analyze(ctx context.Context, lines []string) (*Report, error) {
	report := &Report{LineCount: len(lines)}
	g, ctx := errgroup.WithContext(ctx)

	run := func(fn func()) {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn()
			return nil
		})
	}

	run(func() { report.LevelCounts = e.CountLevels(lines) })
	run(func() { report.LevelCountsPerID = e.CountLevelsPerID(lines) })
	run(func() { report.MeanIntervals = e.MeanIntervalPerID(lines) })
	run(func() { report.Topics = e.TopicsPerID(lines) })
	run(func() { report.TopicIntervals = e.TopicIntervals(lines) })
	run(func() { report.ErrorRatios = e.ErrorRatios(lines) })

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return report, nil
}

// Round rounds v to the given number of decimals, halves away from zero.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

func (e *Engine) zeroCounts() map[string]int {
	counts := make(map[string]int, len(e.levels))
	for _, level := range e.levels {
		counts[level.String()] = 0
	}
	return counts
}

func (e *Engine) hasLevel(level logrecord.Level) bool {
	for _, l := range e.levels {
		if l == level {
			return true
		}
	}
	return false
}

// meanDelta sorts ts in place and returns the mean consecutive gap in seconds.
func meanDelta(ts []time.Time) (float64, bool) {
	if len(ts) < 2 {
		return 0, false
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })

	var total float64
	for i := 1; i < len(ts); i++ {
		total += ts[i].Sub(ts[i-1]).Seconds()
	}
	return total / float64(len(ts)-1), true
}

func isTopicDelimiter(r rune) bool {
	return r == '(' || unicode.IsSpace(r)
}

// leadingToken returns the text before the first delimiter, which is empty
// when the message starts with one.
func leadingToken(message string) string {
	if idx := strings.IndexFunc(message, isTopicDelimiter); idx >= 0 {
		return message[:idx]
	}
	return message
}

// spellings maps case-folded keys to the first spelling seen.
type spellings map[string]string

func newSpellings() spellings {
	return make(spellings)
}

func (s spellings) canonical(v string) string {
	folded := logrecord.FoldID(v)
	if first, ok := s[folded]; ok {
		return first
	}
	s[folded] = v
	return v
}

type topicSet struct {
	names spellings
}

func newTopicSet() *topicSet {
	return &topicSet{names: newSpellings()}
}

func (t *topicSet) add(topic string) {
	t.names.canonical(topic)
}

func (t *topicSet) sorted() []string {
	out := make([]string, 0, len(t.names))
	for _, name := range t.names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
