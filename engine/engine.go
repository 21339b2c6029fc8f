// Package engine orchestrates one end-to-end TopDown run: loading input,
// building the geographic tree, measuring, estimating, synthesizing
// microdata, and checkpointing so an interrupted run can resume.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	log "github.com/golang/glog"

	"github.com/synthcensus/topdown/basis"
	"github.com/synthcensus/topdown/checkpoint"
	"github.com/synthcensus/topdown/distance"
	"github.com/synthcensus/topdown/estimate"
	"github.com/synthcensus/topdown/internal/config"
	"github.com/synthcensus/topdown/internal/csvio"
	"github.com/synthcensus/topdown/measurement"
	"github.com/synthcensus/topdown/microdata"
	"github.com/synthcensus/topdown/solve"
	"github.com/synthcensus/topdown/topderr"
	"github.com/synthcensus/topdown/tree"
)

const phase = "engine"

// Engine holds the configuration and solver for one run.
type Engine struct {
	Config *config.Config
	Solver solve.Solver
}

// New builds an Engine from a loaded configuration, defaulting to the
// water-filling solver.
func New(cfg *config.Config) *Engine {
	return &Engine{Config: cfg, Solver: solve.NewWaterfillSolver()}
}

// Run executes a fresh run from scratch: it does not consult or write an
// existing checkpoint at start, but still checkpoints its own progress so
// a later crash can be resumed with ResumeRun.
func (e *Engine) Run(ctx context.Context) error {
	records, b, err := e.loadAndBuildBasis()
	if err != nil {
		return err
	}
	t, err := tree.Build(records, e.Config.GeoColumns, b, e.Config.ProcessUntil)
	if err != nil {
		return err
	}
	return e.runFrom(ctx, t, b, checkpoint.PhaseBuilt)
}

// ResumeRun loads a checkpoint written by an earlier interrupted run and
// continues from the phase it recorded. If no checkpoint exists, it
// behaves exactly like Run.
func (e *Engine) ResumeRun(ctx context.Context) error {
	cpPath := e.checkpointPath()
	state, err := checkpoint.Load(cpPath)
	if err != nil {
		return err
	}
	if state == nil {
		log.Infof("engine: no checkpoint found at %s, starting a fresh run", cpPath)
		return e.Run(ctx)
	}

	b, err := basis.New(state.QueryAttrs, state.Domains)
	if err != nil {
		return err
	}
	records, err := csvio.LoadRecords(e.Config.DataPath, e.Config.GeoColumns, e.Config.Queries)
	if err != nil {
		return err
	}
	t := tree.Restore(state.Root, state.GeoAttrs, b, state.Depth, records)

	log.Infof("engine: resuming run from checkpoint phase %v at depth %d", state.Phase, state.Depth)

	resumeFrom := state.Phase
	if e.Config.ProcessUntil > t.Depth {
		if state.Phase != checkpoint.PhaseBuilt {
			return topderr.New(topderr.ConfigError, phase, nil,
				"process_until cannot be increased on a checkpoint that already has noisy or estimated values")
		}
		log.Infof("engine: extending tree from depth %d to %d", t.Depth, e.Config.ProcessUntil)
		if err := t.Extend(e.Config.ProcessUntil); err != nil {
			return err
		}
	} else if e.Config.ProcessUntil < t.Depth {
		return topderr.New(topderr.ConfigError, phase, nil,
			"process_until cannot be decreased on an existing checkpoint")
	}

	return e.runFrom(ctx, t, b, resumeFrom)
}

func (e *Engine) runFrom(ctx context.Context, t *tree.Tree, b *basis.Basis, from checkpoint.Phase) error {
	if from <= checkpoint.PhaseBuilt {
		if err := e.measure(ctx, t); err != nil {
			return err
		}
		if err := e.checkpointSave(t, b, checkpoint.PhaseMeasured); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		log.Warningf("engine: cancelled after measurement, checkpoint preserved: %v", err)
		return topderr.Wrap(topderr.StateError, phase, nil, "run cancelled after measurement", err)
	}

	if from <= checkpoint.PhaseMeasured {
		if err := e.estimate(t); err != nil {
			return err
		}
		if err := e.checkpointSave(t, b, checkpoint.PhaseEstimated); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		log.Warningf("engine: cancelled after estimation, checkpoint preserved: %v", err)
		return topderr.Wrap(topderr.StateError, phase, nil, "run cancelled after estimation", err)
	}

	return e.finish(t, b)
}

func (e *Engine) loadAndBuildBasis() ([]tree.Record, *basis.Basis, error) {
	records, err := csvio.LoadRecords(e.Config.DataPath, e.Config.GeoColumns, e.Config.Queries)
	if err != nil {
		return nil, nil, err
	}
	domains := deriveDomains(records, len(e.Config.Queries))
	b, err := basis.New(e.Config.Queries, domains)
	if err != nil {
		return nil, nil, err
	}
	return records, b, nil
}

// deriveDomains collects the sorted set of distinct values observed in
// each query attribute column across records, matching the original
// implementation's approach of taking the basis from the data itself
// rather than a declared schema.
func deriveDomains(records []tree.Record, numQueries int) [][]string {
	seen := make([]map[string]bool, numQueries)
	for i := range seen {
		seen[i] = make(map[string]bool)
	}
	for _, r := range records {
		for i, v := range r.QueryTuple {
			seen[i][v] = true
		}
	}
	domains := make([][]string, numQueries)
	for i, set := range seen {
		vals := make([]string, 0, len(set))
		for v := range set {
			vals = append(vals, v)
		}
		sort.Strings(vals)
		domains[i] = vals
	}
	return domains
}

func (e *Engine) measure(ctx context.Context, t *tree.Tree) error {
	rootExempt := e.Config.RootTotal != nil || len(e.Config.RootConstraints) > 0 || len(e.Config.RootConstraintRows) > 0

	budgets := make([]measurement.Budget, len(e.Config.PrivacyParameters)+1)
	for i, lb := range e.Config.PrivacyParameters {
		budgets[i+1] = measurement.Budget{Epsilon: lb.Epsilon, Rho: lb.Rho}
	}
	if !rootExempt && e.Config.RootPrivacyParameter != nil {
		budgets[0] = measurement.Budget{
			Epsilon: e.Config.RootPrivacyParameter.Epsilon,
			Rho:     e.Config.RootPrivacyParameter.Rho,
		}
	}

	mechanism := measurement.DiscreteLaplace
	if e.Config.Mechanism == config.DiscreteGaussian {
		mechanism = measurement.DiscreteGaussian
	}
	params := measurement.Params{
		Mechanism:    mechanism,
		LevelBudgets: budgets,
		RootExempt:   rootExempt,
		Sensitivity:  1,
		Parallel:     4,
	}
	log.Infof("engine: measuring %d tree nodes with mechanism %v, root exempt: %v", len(t.TraverseBFS()), mechanism, rootExempt)
	return measurement.Run(ctx, t, params)
}

func (e *Engine) estimate(t *tree.Tree) error {
	enforce := make([]bool, len(e.Config.GeoColumns)+1)
	levelConstraints := make([][]solve.Constraint, len(e.Config.GeoColumns)+1)
	for i, lb := range e.Config.PrivacyParameters {
		if i+1 >= len(enforce) {
			continue
		}
		enforce[i+1] = lb.EnforceParentSum
		rows, err := resolveConstraintRows(t.Basis, lb.GeoConstraints)
		if err != nil {
			return topderr.Wrap(topderr.ConfigError, phase, nil,
				fmt.Sprintf("privacy_parameters[%d].geo_constraints", i), err)
		}
		levelConstraints[i+1] = rows
	}

	rootFixed := make(map[int]float64, len(e.Config.RootConstraints))
	for key, val := range e.Config.RootConstraints {
		idx, err := t.Basis.Index(splitTupleKey(key))
		if err != nil {
			return topderr.Wrap(topderr.ConfigError, phase, nil, "root_constraints key does not match a basis tuple", err)
		}
		rootFixed[idx] = val
	}
	rootRows, err := resolveConstraintRows(t.Basis, e.Config.RootConstraintRows)
	if err != nil {
		return topderr.Wrap(topderr.ConfigError, phase, nil, "root_constraint_rows", err)
	}

	params := estimate.Params{
		RootTotal:        e.Config.RootTotal,
		RootFixed:        rootFixed,
		RootConstraints:  rootRows,
		EnforceParentSum: enforce,
		LevelConstraints: levelConstraints,
	}
	log.Infof("engine: estimating tree with %d root-fixed components, %d general root constraints", len(rootFixed), len(rootRows))
	return estimate.Run(t, e.Solver, params)
}

// resolveConstraintRows turns each ConstraintRow's tuple-keyed
// coefficients into a solve.Constraint over basis indices, and its sense
// string into a solve.Sense.
func resolveConstraintRows(b *basis.Basis, rows []config.ConstraintRow) ([]solve.Constraint, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	out := make([]solve.Constraint, len(rows))
	for i, row := range rows {
		coeffs := make([]float64, b.Len())
		for key, c := range row.Coefficients {
			idx, err := b.Index(splitTupleKey(key))
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
			coeffs[idx] = c
		}
		sense, err := resolveSense(row.Sense)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = solve.Constraint{Coefficients: coeffs, Sense: sense, RHS: row.RHS}
	}
	return out, nil
}

func resolveSense(s string) (solve.Sense, error) {
	switch s {
	case "=":
		return solve.Eq, nil
	case "<=":
		return solve.Le, nil
	case ">=":
		return solve.Ge, nil
	default:
		return 0, fmt.Errorf("unknown sense %q", s)
	}
}

func (e *Engine) finish(t *tree.Tree, b *basis.Basis) error {
	records := microdata.Expand(t, b)
	outPath := filepath.Join(e.Config.OutputPath, e.Config.OutputFile)
	if err := os.MkdirAll(e.Config.OutputPath, 0o755); err != nil {
		return topderr.Wrap(topderr.StateError, phase, nil, "could not create output directory", err)
	}
	if err := csvio.WriteMicrodata(outPath, e.Config.GeoColumns, e.Config.Queries, records); err != nil {
		return err
	}
	log.Infof("engine: wrote %d synthetic records to %s", len(records), outPath)

	e.logDistances(t)
	return nil
}

func (e *Engine) logDistances(t *tree.Tree) {
	if e.Config.DistanceMetric == "" || e.Config.DistanceMetric == config.DistanceNone {
		return
	}
	var total float64
	leaves := t.Leaves()
	for _, leaf := range leaves {
		switch e.Config.DistanceMetric {
		case config.DistanceManhattan:
			total += distance.Manhattan(leaf.True, leaf.Est)
		case config.DistanceEuclidean:
			total += distance.Euclidean(leaf.True, leaf.Est)
		case config.DistanceCosine:
			total += distance.Cosine(leaf.True, leaf.Est)
		}
	}
	if len(leaves) > 0 {
		log.Infof("engine: mean %s distance across %d leaves: %v", e.Config.DistanceMetric, len(leaves), total/float64(len(leaves)))
	}
}

func (e *Engine) checkpointPath() string {
	return filepath.Join(e.Config.OutputPath, e.Config.CheckpointFile)
}

func (e *Engine) checkpointSave(t *tree.Tree, b *basis.Basis, p checkpoint.Phase) error {
	if err := os.MkdirAll(e.Config.OutputPath, 0o755); err != nil {
		return topderr.Wrap(topderr.StateError, phase, nil, "could not create output directory for checkpoint", err)
	}
	state := &checkpoint.State{
		Phase:      p,
		GeoAttrs:   t.GeoAttrs,
		QueryAttrs: b.Attrs(),
		Domains:    domainsOf(b),
		Depth:      t.Depth,
		Root:       t.Root,
	}
	return checkpoint.Save(e.checkpointPath(), state)
}

func domainsOf(b *basis.Basis) [][]string {
	attrs := b.Attrs()
	seen := make([]map[string]bool, len(attrs))
	for i := range seen {
		seen[i] = make(map[string]bool)
	}
	for i := 0; i < b.Len(); i++ {
		tup := b.Tuple(i)
		for j, v := range tup {
			seen[j][v] = true
		}
	}
	domains := make([][]string, len(attrs))
	for i, set := range seen {
		vals := make([]string, 0, len(set))
		for v := range set {
			vals = append(vals, v)
		}
		sort.Strings(vals)
		domains[i] = vals
	}
	return domains
}

func splitTupleKey(key string) []string {
	var parts []string
	cur := ""
	for _, r := range key {
		if r == '|' {
			parts = append(parts, cur)
			cur = ""
			continue
		}
		cur += string(r)
	}
	parts = append(parts, cur)
	return parts
}
