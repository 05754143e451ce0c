package behavioral

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
)

// Report size limits
const (
	TopCommands      = 20 // failing and permission-denied command rankings
	TopSessions      = 10 // sessions ranked by error rate
	TopRetrySessions = 5  // sessions ranked by retry loops
	MaxSamples       = 5  // samples kept per category or pattern
)

// tally is an exact count plus the first MaxSamples samples seen
type tally struct {
	count   int
	samples []string
}

func (t *tally) add(sample string) {
	t.count++
	if len(t.samples) < MaxSamples {
		t.samples = append(t.samples, sample)
	}
}

func (t *tally) clone() *tally {
	return &tally{count: t.count, samples: copySamples(t.samples)}
}

func (t *tally) merge(o *tally) {
	t.count += o.count
	for _, s := range o.samples {
		if len(t.samples) >= MaxSamples {
			break
		}
		t.samples = append(t.samples, s)
	}
}

type commandTally struct {
	count       int
	sampleError string // first non-empty error seen
}

type denialTally struct {
	count    int
	expected bool // most recently observed value
}

// Aggregator folds SessionStats into a Report. Add and Merge are safe for
// concurrent use. Counts do not depend on the order sessions are added;
// only which samples are kept does.
type Aggregator struct {
	mu sync.Mutex

	sessions  int
	toolCalls int
	errors    int
	projects  map[string]struct{}

	categories   map[string]*tally
	failing      map[string]*commandTally
	denials      map[string]*denialTally
	retryByTool  map[string]int
	retryTotal   int
	misbehaviors map[string]*tally

	errorRanking *topN[SessionErrorRank]
	retryRanking *topN[SessionRetryRank]

	earliest time.Time
	latest   time.Time
}

// NewAggregator creates an empty Aggregator
func NewAggregator() *Aggregator {
	return &Aggregator{
		projects:     make(map[string]struct{}),
		categories:   make(map[string]*tally),
		failing:      make(map[string]*commandTally),
		denials:      make(map[string]*denialTally),
		retryByTool:  make(map[string]int),
		misbehaviors: make(map[string]*tally),
		errorRanking: newTopN(TopSessions, errorRankBefore),
		retryRanking: newTopN(TopRetrySessions, retryRankBefore),
	}
}

// Aggregate folds stats into a fresh Aggregator and returns its report
func Aggregate(days int, stats ...*SessionStats) *Report {
	agg := NewAggregator()
	for _, s := range stats {
		agg.Add(s)
	}
	return agg.Report(days)
}

// Sessions returns the number of sessions folded in so far
func (a *Aggregator) Sessions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessions
}

// Add folds one session into the aggregate
func (a *Aggregator) Add(s *SessionStats) {
	if s == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.sessions++
	a.toolCalls += s.TotalToolCalls
	a.errors += s.TotalErrors
	a.projects[s.Project] = struct{}{}
	a.observeModTime(s.ModTime)

	for _, d := range s.PermissionDenials {
		a.category(CategoryPermissionDenied).add(d.Sample)
	}
	for _, r := range s.UserRejections {
		a.category(CategoryUserRejected).add(r.Sample)
	}
	for _, f := range s.CommandFailures {
		a.category(CategoryCommandFailed).add(f.Error)
		if f.Command == "" {
			continue
		}
		ct, ok := a.failing[f.Command]
		if !ok {
			ct = &commandTally{}
			a.failing[f.Command] = ct
		}
		ct.count++
		if ct.sampleError == "" {
			ct.sampleError = f.Error
		}
	}
	for _, f := range s.FileNotFound {
		a.category(CategoryFileNotFound).add(f.Sample)
	}
	for _, f := range s.Interrupted {
		a.category(CategoryInterrupted).add(f.Sample)
	}
	for _, f := range s.HookBlocks {
		a.category(CategoryHookBlocked).add(f.Sample)
	}

	for _, d := range s.PermissionDenials {
		key := d.Command
		if key == "" {
			key = d.Tool
		}
		dt, ok := a.denials[key]
		if !ok {
			dt = &denialTally{}
			a.denials[key] = dt
		}
		dt.count++
		dt.expected = d.Expected
	}

	for _, r := range s.RetryLoops {
		a.retryTotal++
		a.retryByTool[r.Tool] += r.Count
	}

	for _, m := range s.Misbehaviors {
		t, ok := a.misbehaviors[m.Pattern]
		if !ok {
			t = &tally{}
			a.misbehaviors[m.Pattern] = t
		}
		t.add(m.Sample)
	}

	a.errorRanking.offer(SessionErrorRank{
		SessionID: s.SessionID,
		Project:   s.Project,
		ErrorRate: roundRate(s.ErrorRate()),
		Errors:    s.TotalErrors,
		ToolCalls: s.TotalToolCalls,
	})
	if len(s.RetryLoops) > 0 {
		a.retryRanking.offer(SessionRetryRank{
			SessionID:  s.SessionID,
			Project:    s.Project,
			RetryLoops: len(s.RetryLoops),
		})
	}
}

// ObserveSource widens the date range with a source that was discovered but
// not folded in, such as an unreadable file
func (a *Aggregator) ObserveSource(src SessionSource) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observeModTime(src.ModTime)
}

// Merge folds a partial aggregate into a. The other aggregator is treated as
// later in fold order, so its denial flags win.
func (a *Aggregator) Merge(o *Aggregator) {
	if o == nil || o == a {
		return
	}
	// Only one lock is held at a time, so a.Merge(b) and b.Merge(a) can run
	// concurrently.
	o = o.snapshot()

	a.mu.Lock()
	defer a.mu.Unlock()

	a.sessions += o.sessions
	a.toolCalls += o.toolCalls
	a.errors += o.errors
	for p := range o.projects {
		a.projects[p] = struct{}{}
	}
	a.observeModTime(o.earliest)
	a.observeModTime(o.latest)

	for name, t := range o.categories {
		a.category(name).merge(t)
	}
	for cmd, ot := range o.failing {
		ct, ok := a.failing[cmd]
		if !ok {
			ct = &commandTally{}
			a.failing[cmd] = ct
		}
		ct.count += ot.count
		if ct.sampleError == "" {
			ct.sampleError = ot.sampleError
		}
	}
	for key, od := range o.denials {
		dt, ok := a.denials[key]
		if !ok {
			dt = &denialTally{}
			a.denials[key] = dt
		}
		dt.count += od.count
		dt.expected = od.expected
	}
	for tool, n := range o.retryByTool {
		a.retryByTool[tool] += n
	}
	a.retryTotal += o.retryTotal
	for pattern, t := range o.misbehaviors {
		mt, ok := a.misbehaviors[pattern]
		if !ok {
			mt = &tally{}
			a.misbehaviors[pattern] = mt
		}
		mt.merge(t)
	}
	for _, r := range o.errorRanking.items {
		a.errorRanking.offer(r)
	}
	for _, r := range o.retryRanking.items {
		a.retryRanking.offer(r)
	}
}

// snapshot returns a deep copy of a taken under its lock
func (a *Aggregator) snapshot() *Aggregator {
	a.mu.Lock()
	defer a.mu.Unlock()

	c := NewAggregator()
	c.sessions = a.sessions
	c.toolCalls = a.toolCalls
	c.errors = a.errors
	for p := range a.projects {
		c.projects[p] = struct{}{}
	}
	for name, t := range a.categories {
		c.categories[name] = t.clone()
	}
	for cmd, ct := range a.failing {
		cp := *ct
		c.failing[cmd] = &cp
	}
	for key, dt := range a.denials {
		cp := *dt
		c.denials[key] = &cp
	}
	for tool, n := range a.retryByTool {
		c.retryByTool[tool] = n
	}
	c.retryTotal = a.retryTotal
	for pattern, t := range a.misbehaviors {
		c.misbehaviors[pattern] = t.clone()
	}
	c.errorRanking.items = a.errorRanking.list()
	c.retryRanking.items = a.retryRanking.list()
	c.earliest = a.earliest
	c.latest = a.latest
	return c
}

// Report builds the ranked, sample-bounded report. The aggregator can keep
// accepting sessions afterwards.
func (a *Aggregator) Report(days int) *Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	report := EmptyReport(days)
	report.Meta.SessionsScanned = a.sessions
	report.Meta.Projects = len(a.projects)
	report.Meta.TotalToolCalls = a.toolCalls
	report.Meta.TotalErrors = a.errors
	report.Meta.DateRange = a.dateRange()

	names := lo.Keys(a.projects)
	sort.Strings(names)
	report.Meta.ProjectNames = names

	for name, t := range a.categories {
		report.ErrorSummary.ByCategory[name] = CategorySummary{
			Count:   t.count,
			Samples: copySamples(t.samples),
		}
	}

	failingCounts := lo.MapValues(a.failing, func(t *commandTally, _ string) int { return t.count })
	report.TopFailingCommands = lo.Map(rankByCount(failingCounts, TopCommands), func(cmd string, _ int) FailingCommand {
		return FailingCommand{
			Command:     cmd,
			Count:       a.failing[cmd].count,
			SampleError: a.failing[cmd].sampleError,
		}
	})

	denialCounts := lo.MapValues(a.denials, func(t *denialTally, _ string) int { return t.count })
	report.PermissionDeniedCommands = lo.Map(rankByCount(denialCounts, TopCommands), func(key string, _ int) DeniedCommand {
		return DeniedCommand{
			Command:  key,
			Count:    a.denials[key].count,
			Expected: a.denials[key].expected,
		}
	})

	report.RetryLoops.Total = a.retryTotal
	for tool, n := range a.retryByTool {
		report.RetryLoops.ByTool[tool] = n
	}
	report.RetryLoops.WorstSessions = a.retryRanking.list()
	report.ProblematicSessions = a.errorRanking.list()

	patternCounts := lo.MapValues(a.misbehaviors, func(t *tally, _ string) int { return t.count })
	report.MisbehaviorPatterns = lo.Map(rankByCount(patternCounts, 0), func(pattern string, _ int) PatternSummary {
		return PatternSummary{
			Pattern: pattern,
			Count:   a.misbehaviors[pattern].count,
			Samples: copySamples(a.misbehaviors[pattern].samples),
		}
	})

	return report
}

func (a *Aggregator) category(name string) *tally {
	t, ok := a.categories[name]
	if !ok {
		t = &tally{}
		a.categories[name] = t
	}
	return t
}

func (a *Aggregator) observeModTime(t time.Time) {
	if t.IsZero() {
		return
	}
	if a.earliest.IsZero() || t.Before(a.earliest) {
		a.earliest = t
	}
	if a.latest.IsZero() || t.After(a.latest) {
		a.latest = t
	}
}

func (a *Aggregator) dateRange() string {
	if a.earliest.IsZero() {
		return DateRangeUnknown
	}
	return fmt.Sprintf("%s to %s", a.earliest.Format("2006-01-02"), a.latest.Format("2006-01-02"))
}

func copySamples(samples []string) []string {
	out := make([]string, len(samples))
	copy(out, samples)
	return out
}
