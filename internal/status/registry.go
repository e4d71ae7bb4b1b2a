package status

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/AsabiAlgo/masterdashboard/internal/logging"
)

var registryLog = logging.ForComponent(logging.CompRegistry)

// StatusPattern is a single classification rule as supplied by a category
// source. The expression is compiled eagerly at registration.
type StatusPattern struct {
	ID       string     `toml:"id"`
	Name     string     `toml:"name"`
	Shell    ShellScope `toml:"shell"`
	Pattern  string     `toml:"pattern"`
	Status   Status     `toml:"status"`
	Priority int        `toml:"priority"`
	Enabled  bool       `toml:"enabled"`
}

// Rule is a compiled, registered pattern. Immutable after snapshot publish;
// toggling enabled produces a new snapshot with a replaced Rule value.
type Rule struct {
	StatusPattern
	re  *regexp.Regexp
	seq int // registration order, tie-breaker for equal priority
}

// Match reports whether the rule's expression matches the window content.
func (r *Rule) Match(window []byte) bool {
	return r.re.Match(window)
}

// snapshot is the immutable registry state served to matchers. Readers load
// it via an atomic pointer and never take a lock.
type snapshot struct {
	rules  []*Rule          // sorted: priority desc, seq asc
	byID   map[string]*Rule // includes disabled rules
	bySeq  []*Rule          // registration order, for rebuilds
	nextSq int
}

// Registry holds the ordered, validated rule set. Writers serialize on mu
// and publish whole snapshots; RulesFor never blocks on writers.
type Registry struct {
	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.snap.Store(&snapshot{byID: map[string]*Rule{}})
	return r
}

// Register validates and compiles a single rule, then publishes a new
// snapshot. On any error the previous snapshot stays in effect untouched.
func (r *Registry) Register(p StatusPattern) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	rule, err := compileRule(p, cur, cur.nextSq)
	if err != nil {
		return err
	}
	r.snap.Store(rebuild(append(copyRules(cur.bySeq), rule), cur.nextSq+1))
	registryLog.Debug("pattern_registered",
		slog.String("id", p.ID),
		slog.String("shell", string(p.Shell)),
		slog.Int("priority", p.Priority))
	return nil
}

// LoadCategory merges a versioned rule category. The whole category is
// validated and compiled first; readers observe either none or all of it.
func (r *Registry) LoadCategory(name string, rules []StatusPattern) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	staged := copyRules(cur.bySeq)
	seq := cur.nextSq
	seen := make(map[string]*Rule, len(rules))
	for _, p := range rules {
		// Every rule id must live under the category's prefix, or the
		// category-wide operations (hot reload) could not find it again.
		if categoryOf(p.ID) != name {
			return fmt.Errorf("category %q: pattern id %q outside category", name, p.ID)
		}
		rule, err := compileRule(p, cur, seq)
		if err != nil {
			return fmt.Errorf("category %q: %w", name, err)
		}
		if seen[p.ID] != nil {
			return fmt.Errorf("category %q: duplicate pattern id %q", name, p.ID)
		}
		seen[p.ID] = rule
		rule.seq = seq
		staged = append(staged, rule)
		seq++
	}
	r.snap.Store(rebuild(staged, seq))
	registryLog.Info("category_loaded",
		slog.String("category", name),
		slog.Int("rules", len(rules)))
	return nil
}

// ReplaceCategory atomically swaps every rule whose id is present in the new
// category (matched by id prefix "category/") for hot reload. Rules outside
// the category are untouched; the swap is one snapshot publish.
func (r *Registry) ReplaceCategory(name string, rules []StatusPattern) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	// Stage replacements against a view without the old category so the
	// duplicate-id check does not trip on the rules being replaced.
	kept := make([]*Rule, 0, len(cur.bySeq))
	for _, rule := range cur.bySeq {
		if categoryOf(rule.ID) != name {
			kept = append(kept, copyRule(rule))
		}
	}
	base := rebuild(kept, cur.nextSq)
	seq := base.nextSq
	for _, p := range rules {
		if categoryOf(p.ID) != name {
			return fmt.Errorf("category %q: pattern id %q outside category", name, p.ID)
		}
		rule, err := compileRule(p, base, seq)
		if err != nil {
			return fmt.Errorf("category %q: %w", name, err)
		}
		base = rebuild(append(base.bySeq, rule), seq+1)
		seq++
	}
	r.snap.Store(base)
	registryLog.Info("category_replaced",
		slog.String("category", name),
		slog.Int("rules", len(rules)))
	return nil
}

// Enable marks the rule enabled. Returns ErrNotFound for unknown ids.
func (r *Registry) Enable(id string) error { return r.setEnabled(id, true) }

// Disable skips the rule during matching without removing it.
func (r *Registry) Disable(id string) error { return r.setEnabled(id, false) }

func (r *Registry) setEnabled(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	if cur.byID[id] == nil {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	staged := make([]*Rule, 0, len(cur.bySeq))
	for _, rule := range cur.bySeq {
		c := copyRule(rule)
		if c.ID == id {
			c.Enabled = enabled
		}
		staged = append(staged, c)
	}
	r.snap.Store(rebuild(staged, cur.nextSq))
	return nil
}

// RulesFor returns the enabled rules applicable to the session scope,
// priority descending then registration order ascending. This ordering is
// the single source of truth for match resolution.
func (r *Registry) RulesFor(session ShellScope) []*Rule {
	snap := r.snap.Load()
	out := make([]*Rule, 0, len(snap.rules))
	for _, rule := range snap.rules {
		if rule.Enabled && rule.Shell.Applies(session) {
			out = append(out, rule)
		}
	}
	return out
}

// Len returns the number of registered rules, disabled included.
func (r *Registry) Len() int {
	return len(r.snap.Load().bySeq)
}

// Get returns the registered pattern for id, for diagnostics.
func (r *Registry) Get(id string) (StatusPattern, bool) {
	rule := r.snap.Load().byID[id]
	if rule == nil {
		return StatusPattern{}, false
	}
	return rule.StatusPattern, true
}

func compileRule(p StatusPattern, cur *snapshot, seq int) (*Rule, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("pattern id is required")
	}
	if cur.byID[p.ID] != nil {
		return nil, fmt.Errorf("duplicate pattern id %q", p.ID)
	}
	if !ValidStatus(p.Status) {
		return nil, fmt.Errorf("pattern %q: unknown status %q", p.ID, p.Status)
	}
	if !ValidScope(p.Shell) {
		return nil, fmt.Errorf("pattern %q: unknown shell scope %q", p.ID, p.Shell)
	}
	re, err := regexp.Compile(p.Pattern)
	if err != nil {
		return nil, &CompileError{PatternID: p.ID, Expr: p.Pattern, Err: err}
	}
	return &Rule{StatusPattern: p, re: re, seq: seq}, nil
}

func rebuild(bySeq []*Rule, nextSq int) *snapshot {
	sort.Slice(bySeq, func(i, j int) bool { return bySeq[i].seq < bySeq[j].seq })
	ordered := make([]*Rule, len(bySeq))
	copy(ordered, bySeq)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return ordered[i].seq < ordered[j].seq
	})
	byID := make(map[string]*Rule, len(bySeq))
	for _, rule := range bySeq {
		byID[rule.ID] = rule
	}
	return &snapshot{rules: ordered, byID: byID, bySeq: bySeq, nextSq: nextSq}
}

func copyRules(rules []*Rule) []*Rule {
	out := make([]*Rule, 0, len(rules))
	for _, rule := range rules {
		out = append(out, copyRule(rule))
	}
	return out
}

func copyRule(rule *Rule) *Rule {
	c := *rule
	return &c
}

// categoryOf extracts the category prefix from a rule id like
// "version-control/merge-conflict". Ids without a slash have no category.
func categoryOf(id string) string {
	for i := 0; i < len(id); i++ {
		if id[i] == '/' {
			return id[:i]
		}
	}
	return ""
}
