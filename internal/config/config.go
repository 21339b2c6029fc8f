// Package config loads the YAML run configuration a TopDown invocation is
// driven by: which geographic and query attributes to use, how far down
// the geographic hierarchy to process, the privacy budget assigned to
// each level, and where to read input and write output.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/synthcensus/topdown/topderr"
)

// Mechanism names the noise distribution a run uses.
type Mechanism string

const (
	DiscreteLaplace  Mechanism = "discrete_laplace"
	DiscreteGaussian Mechanism = "discrete_gaussian"
)

// DistanceMetric names the quality-validation distance computed between
// the true and estimated leaf vectors after a run.
type DistanceMetric string

const (
	DistanceNone      DistanceMetric = "none"
	DistanceManhattan DistanceMetric = "manhattan"
	DistanceEuclidean DistanceMetric = "euclidean"
	DistanceCosine    DistanceMetric = "cosine"
)

// ConstraintRow is one user-declared linear constraint: a row of
// coefficients keyed by query tuple (as "|"-joined strings matching
// Queries order, the same key format RootConstraints uses), a comparison
// sense, and a right-hand side. It is the YAML surface of solve.Constraint
// — engine.estimate resolves Coefficients' keys against the run's basis
// before handing the row to the solver.
type ConstraintRow struct {
	Coefficients map[string]float64 `yaml:"coefficients"`
	Sense        string             `yaml:"sense"`
	RHS          float64            `yaml:"rhs"`
}

// LevelBudget is the privacy budget registered for one geographic level.
type LevelBudget struct {
	// Epsilon is read when the run's Mechanism is discrete_laplace.
	Epsilon float64 `yaml:"epsilon"`
	// Rho is read when the run's Mechanism is discrete_gaussian.
	Rho float64 `yaml:"rho"`
	// EnforceParentSum requires this level's nodes to jointly reconcile
	// to their parent's estimate during estimation. Levels with it
	// unset estimate independently of their parent and siblings.
	EnforceParentSum bool `yaml:"enforce_parent_sum"`
	// GeoConstraints lists additional linear constraints applied to every
	// node at this level during Stage A/B, on top of whatever
	// EnforceParentSum already requires. A level cannot set both
	// EnforceParentSum and GeoConstraints: reconciling a general
	// constraint row, which can mix components within one node's own
	// vector, against an equality that couples every sibling's value for
	// each component individually needs a single joint solve over the
	// whole sibling group that this solver does not implement; Validate
	// rejects the combination with a ConfigError rather than silently
	// dropping one half of it. Registering GeoConstraints on a level
	// without EnforceParentSum is fully supported: each node at that
	// level is solved on its own, and GeoConstraints becomes ordinary
	// solve.Constraint rows over that one vector.
	GeoConstraints []ConstraintRow `yaml:"geo_constraints"`
}

// Config is the full set of parameters for one run, loaded from YAML.
type Config struct {
	// DataPath is the input CSV's location.
	DataPath string `yaml:"data_path"`
	// OutputPath is the directory synthetic microdata and checkpoints are written to.
	OutputPath string `yaml:"output_path"`
	// OutputFile names the synthetic microdata CSV within OutputPath.
	OutputFile string `yaml:"output_file"`
	// CheckpointFile names the checkpoint file within OutputPath.
	CheckpointFile string `yaml:"checkpoint_file"`

	// GeoColumns is the ordered list of geographic attribute column
	// names, from coarsest to finest.
	GeoColumns []string `yaml:"geo_columns"`
	// ProcessUntil is the index into GeoColumns (1-based: 1 means
	// process down to GeoColumns[0]) a run stops building the tree at.
	ProcessUntil int `yaml:"process_until"`
	// Queries is the ordered list of query attribute column names.
	Queries []string `yaml:"queries"`

	// Mechanism selects the noise distribution.
	Mechanism Mechanism `yaml:"mechanism"`
	// PrivacyParameters gives one LevelBudget per geographic level below
	// the root, in the same coarsest-to-finest order as GeoColumns.
	PrivacyParameters []LevelBudget `yaml:"privacy_parameters"`
	// RootPrivacyParameter is the root's own budget. It is required only
	// when the root is not noise-exempt, i.e. when neither RootTotal nor
	// RootConstraints registers a fixed root; when the root is fixed,
	// this field is ignored.
	RootPrivacyParameter *LevelBudget `yaml:"root_privacy_parameter"`

	// RootConstraints pins the root's estimated vector on specific
	// query tuples (as "|"-joined strings matching Queries order) to
	// known totals. Registering either this or RootTotal makes the root
	// noise-exempt: its noisy vector is taken to equal its true vector
	// rather than being measured. This is the single-component special
	// case of RootConstraintRows; the two may be registered together.
	RootConstraints map[string]float64 `yaml:"root_constraints"`
	// RootConstraintRows lists general linear constraints over the
	// root's vector (coefficients spanning more than one query tuple,
	// and/or an inequality sense), resolved against the basis the same
	// way RootConstraints is. Registering a non-empty RootConstraintRows
	// also makes the root noise-exempt, like RootConstraints and
	// RootTotal.
	RootConstraintRows []ConstraintRow `yaml:"root_constraint_rows"`
	// RootTotal, if set, pins the sum of the root's estimated vector and
	// makes the root noise-exempt (see RootConstraints).
	RootTotal *float64 `yaml:"root_total"`

	// DistanceMetric selects the post-run quality-validation distance.
	DistanceMetric DistanceMetric `yaml:"distance_metric"`
}

// Load reads and validates a Config from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, topderr.Wrap(topderr.ConfigError, "config.Load", nil, "could not read configuration file", err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, topderr.Wrap(topderr.ConfigError, "config.Load", nil, "could not parse configuration YAML", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that a Config is internally consistent.
func (c *Config) Validate() error {
	if c.DataPath == "" {
		return topderr.New(topderr.ConfigError, "config.Validate", nil, "data_path is required")
	}
	if len(c.GeoColumns) == 0 {
		return topderr.New(topderr.ConfigError, "config.Validate", nil, "geo_columns must not be empty")
	}
	if len(c.Queries) == 0 {
		return topderr.New(topderr.ConfigError, "config.Validate", nil, "queries must not be empty")
	}
	if c.ProcessUntil < 0 || c.ProcessUntil > len(c.GeoColumns) {
		return topderr.New(topderr.ConfigError, "config.Validate", nil,
			fmt.Sprintf("process_until %d is out of range for %d geo_columns", c.ProcessUntil, len(c.GeoColumns)))
	}
	switch c.Mechanism {
	case DiscreteLaplace, DiscreteGaussian:
	default:
		return topderr.New(topderr.ConfigError, "config.Validate", nil,
			fmt.Sprintf("unknown mechanism %q", c.Mechanism))
	}
	if len(c.PrivacyParameters) < c.ProcessUntil {
		return topderr.New(topderr.ConfigError, "config.Validate", nil,
			fmt.Sprintf("privacy_parameters has %d entries, need at least %d", len(c.PrivacyParameters), c.ProcessUntil))
	}
	for i, lb := range c.PrivacyParameters {
		if c.Mechanism == DiscreteLaplace && lb.Epsilon <= 0 {
			return topderr.New(topderr.ConfigError, "config.Validate", nil,
				fmt.Sprintf("privacy_parameters[%d].epsilon must be positive for discrete_laplace", i))
		}
		if c.Mechanism == DiscreteGaussian && lb.Rho <= 0 {
			return topderr.New(topderr.ConfigError, "config.Validate", nil,
				fmt.Sprintf("privacy_parameters[%d].rho must be positive for discrete_gaussian", i))
		}
		if lb.EnforceParentSum && len(lb.GeoConstraints) > 0 {
			return topderr.New(topderr.ConfigError, "config.Validate", nil,
				fmt.Sprintf("privacy_parameters[%d] sets both enforce_parent_sum and geo_constraints, which this solver cannot reconcile jointly; register geo_constraints on a level with enforce_parent_sum unset instead", i))
		}
		for j, row := range lb.GeoConstraints {
			if _, err := parseSense(row.Sense); err != nil {
				return topderr.New(topderr.ConfigError, "config.Validate", nil,
					fmt.Sprintf("privacy_parameters[%d].geo_constraints[%d].sense: %v", i, j, err))
			}
			if len(row.Coefficients) == 0 {
				return topderr.New(topderr.ConfigError, "config.Validate", nil,
					fmt.Sprintf("privacy_parameters[%d].geo_constraints[%d].coefficients must not be empty", i, j))
			}
		}
	}
	for i, row := range c.RootConstraintRows {
		if _, err := parseSense(row.Sense); err != nil {
			return topderr.New(topderr.ConfigError, "config.Validate", nil,
				fmt.Sprintf("root_constraint_rows[%d].sense: %v", i, err))
		}
		if len(row.Coefficients) == 0 {
			return topderr.New(topderr.ConfigError, "config.Validate", nil,
				fmt.Sprintf("root_constraint_rows[%d].coefficients must not be empty", i))
		}
	}
	if c.RootTotal == nil && len(c.RootConstraints) == 0 && len(c.RootConstraintRows) == 0 {
		if c.RootPrivacyParameter == nil {
			return topderr.New(topderr.ConfigError, "config.Validate", nil,
				"root_privacy_parameter is required when no root_total or root_constraints registers a fixed root")
		}
		if c.Mechanism == DiscreteLaplace && c.RootPrivacyParameter.Epsilon <= 0 {
			return topderr.New(topderr.ConfigError, "config.Validate", nil,
				"root_privacy_parameter.epsilon must be positive for discrete_laplace")
		}
		if c.Mechanism == DiscreteGaussian && c.RootPrivacyParameter.Rho <= 0 {
			return topderr.New(topderr.ConfigError, "config.Validate", nil,
				"root_privacy_parameter.rho must be positive for discrete_gaussian")
		}
	}
	switch c.DistanceMetric {
	case "", DistanceNone, DistanceManhattan, DistanceEuclidean, DistanceCosine:
	default:
		return topderr.New(topderr.ConfigError, "config.Validate", nil,
			fmt.Sprintf("unknown distance_metric %q", c.DistanceMetric))
	}
	if c.OutputFile == "" {
		c.OutputFile = "synthetic.csv"
	}
	if c.CheckpointFile == "" {
		c.CheckpointFile = "checkpoint.gob"
	}
	return nil
}

// parseSense validates a ConstraintRow's Sense string at load time, so a
// typo is reported as a ConfigError up front rather than surfacing later
// from engine.estimate's own, equivalent parse into solve.Sense.
func parseSense(s string) (string, error) {
	switch s {
	case "=", "<=", ">=":
		return s, nil
	default:
		return "", fmt.Errorf("unknown sense %q, want one of \"=\", \"<=\", \">=\"", s)
	}
}
