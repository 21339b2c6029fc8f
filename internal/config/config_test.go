package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("os.WriteFile: unexpected error: %v", err)
	}
	return path
}

const validYAML = `
data_path: data.csv
output_path: out
geo_columns: [region, province]
process_until: 2
queries: [sex]
mechanism: discrete_laplace
privacy_parameters:
  - epsilon: 1.0
  - epsilon: 2.0
root_privacy_parameter:
  epsilon: 1.0
`

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, validYAML)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: unexpected error: %v", err)
	}
	if c.OutputFile != "synthetic.csv" {
		t.Errorf("OutputFile = %q, want default %q", c.OutputFile, "synthetic.csv")
	}
	if c.CheckpointFile != "checkpoint.gob" {
		t.Errorf("CheckpointFile = %q, want default %q", c.CheckpointFile, "checkpoint.gob")
	}
}

func TestLoadMissingDataPath(t *testing.T) {
	path := writeConfig(t, `
geo_columns: [region]
queries: [sex]
mechanism: discrete_laplace
privacy_parameters:
  - epsilon: 1.0
`)
	if _, err := Load(path); err == nil {
		t.Error("Load with no data_path: got no error, want one")
	}
}

func TestLoadUnknownMechanism(t *testing.T) {
	path := writeConfig(t, `
data_path: data.csv
geo_columns: [region]
queries: [sex]
mechanism: quantum_noise
privacy_parameters:
  - epsilon: 1.0
`)
	if _, err := Load(path); err == nil {
		t.Error("Load with an unknown mechanism: got no error, want one")
	}
}

func TestLoadInsufficientBudgets(t *testing.T) {
	path := writeConfig(t, `
data_path: data.csv
geo_columns: [region, province]
process_until: 2
queries: [sex]
mechanism: discrete_laplace
privacy_parameters:
  - epsilon: 1.0
`)
	if _, err := Load(path); err == nil {
		t.Error("Load with fewer privacy_parameters than process_until: got no error, want one")
	}
}

func TestLoadMissingRootPrivacyParameter(t *testing.T) {
	path := writeConfig(t, `
data_path: data.csv
geo_columns: [region]
queries: [sex]
mechanism: discrete_laplace
privacy_parameters:
  - epsilon: 1.0
`)
	if _, err := Load(path); err == nil {
		t.Error("Load with no root_total, root_constraints, or root_privacy_parameter: got no error, want one")
	}
}

func TestLoadRootTotalExemptsRootFromPrivacyParameter(t *testing.T) {
	path := writeConfig(t, `
data_path: data.csv
geo_columns: [region]
queries: [sex]
mechanism: discrete_laplace
privacy_parameters:
  - epsilon: 1.0
root_total: 100
`)
	if _, err := Load(path); err != nil {
		t.Errorf("Load with root_total set but no root_privacy_parameter: unexpected error: %v", err)
	}
}

func TestLoadRejectsGeoConstraintsWithEnforceParentSum(t *testing.T) {
	path := writeConfig(t, `
data_path: data.csv
geo_columns: [region]
queries: [sex]
mechanism: discrete_laplace
privacy_parameters:
  - epsilon: 1.0
    enforce_parent_sum: true
    geo_constraints:
      - coefficients: {"M": 1}
        sense: "<="
        rhs: 100
root_total: 100
`)
	if _, err := Load(path); err == nil {
		t.Error("Load with both enforce_parent_sum and geo_constraints on one level: got no error, want one")
	}
}

func TestLoadAcceptsGeoConstraintsWithoutEnforceParentSum(t *testing.T) {
	path := writeConfig(t, `
data_path: data.csv
geo_columns: [region]
queries: [sex]
mechanism: discrete_laplace
privacy_parameters:
  - epsilon: 1.0
    geo_constraints:
      - coefficients: {"M": 1}
        sense: "<="
        rhs: 100
root_total: 100
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: unexpected error: %v", err)
	}
	if len(c.PrivacyParameters[0].GeoConstraints) != 1 {
		t.Errorf("len(GeoConstraints) = %d, want 1", len(c.PrivacyParameters[0].GeoConstraints))
	}
}

func TestLoadRejectsUnknownConstraintSense(t *testing.T) {
	path := writeConfig(t, `
data_path: data.csv
geo_columns: [region]
queries: [sex]
mechanism: discrete_laplace
privacy_parameters:
  - epsilon: 1.0
    geo_constraints:
      - coefficients: {"M": 1}
        sense: "!="
        rhs: 100
root_total: 100
`)
	if _, err := Load(path); err == nil {
		t.Error("Load with an unknown constraint sense: got no error, want one")
	}
}

func TestLoadNonPositiveEpsilon(t *testing.T) {
	path := writeConfig(t, `
data_path: data.csv
geo_columns: [region]
queries: [sex]
mechanism: discrete_laplace
privacy_parameters:
  - epsilon: 0
`)
	if _, err := Load(path); err == nil {
		t.Error("Load with epsilon <= 0: got no error, want one")
	}
}
