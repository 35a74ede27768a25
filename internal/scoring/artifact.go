package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Model kinds understood by LoadModel.
const (
	KindRandomForest       = "random_forest"
	KindLogisticRegression = "logistic_regression"
)

// artifact is the on-disk JSON export of a trained classifier.
type artifact struct {
	Kind         string         `json:"kind"`
	NFeaturesIn  int            `json:"n_features_in"`
	FeatureNames []string       `json:"feature_names"`
	Trees        []treeArtifact `json:"trees"`
	Coef         []float64      `json:"coef"`
	Intercept    float64        `json:"intercept"`
}

type treeArtifact struct {
	ChildrenLeft  []int       `json:"children_left"`
	ChildrenRight []int       `json:"children_right"`
	Feature       []int       `json:"feature"`
	Threshold     []float64   `json:"threshold"`
	Value         [][]float64 `json:"value"`
}

const leaf = -1

// Model is a loaded classifier. It is immutable once loaded.
type Model struct {
	kind         string
	nFeatures    int
	featureNames []string
	trees        []treeArtifact
	coef         []float64
	intercept    float64
}

// LoadModel reads and validates a model artifact. Every failure wraps ErrStartup.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read model file %s: %v", ErrStartup, path, err)
	}
	m, err := ParseModel(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// ParseModel decodes a model artifact from JSON.
func ParseModel(data []byte) (*Model, error) {
	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: failed to decode model: %v", ErrStartup, err)
	}
	if a.NFeaturesIn < 0 {
		return nil, fmt.Errorf("%w: n_features_in must not be negative", ErrStartup)
	}
	if len(a.FeatureNames) > 0 && a.NFeaturesIn > 0 && len(a.FeatureNames) != a.NFeaturesIn {
		return nil, fmt.Errorf("%w: %d feature names for n_features_in=%d", ErrStartup, len(a.FeatureNames), a.NFeaturesIn)
	}

	switch a.Kind {
	case KindRandomForest:
		if len(a.Trees) == 0 {
			return nil, fmt.Errorf("%w: random forest has no trees", ErrStartup)
		}
		for i := range a.Trees {
			if err := a.Trees[i].validate(a.NFeaturesIn); err != nil {
				return nil, fmt.Errorf("%w: tree %d: %v", ErrStartup, i, err)
			}
		}
	case KindLogisticRegression:
		if len(a.Coef) == 0 {
			return nil, fmt.Errorf("%w: logistic regression has no coefficients", ErrStartup)
		}
		if a.NFeaturesIn > 0 && len(a.Coef) != a.NFeaturesIn {
			return nil, fmt.Errorf("%w: %d coefficients for n_features_in=%d", ErrStartup, len(a.Coef), a.NFeaturesIn)
		}
	default:
		return nil, fmt.Errorf("%w: unknown model kind %q", ErrStartup, a.Kind)
	}

	return &Model{
		kind:         a.Kind,
		nFeatures:    a.NFeaturesIn,
		featureNames: a.FeatureNames,
		trees:        a.Trees,
		coef:         a.Coef,
		intercept:    a.Intercept,
	}, nil
}

func (t *treeArtifact) validate(nFeatures int) error {
	n := len(t.ChildrenLeft)
	if n == 0 {
		return fmt.Errorf("empty tree")
	}
	if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
		return fmt.Errorf("node arrays have different lengths")
	}
	for node := 0; node < n; node++ {
		left, right := t.ChildrenLeft[node], t.ChildrenRight[node]
		if left == leaf || right == leaf {
			if left != right {
				return fmt.Errorf("node %d has a single child", node)
			}
			if len(t.Value[node]) < 2 {
				return fmt.Errorf("leaf %d needs two class counts", node)
			}
			continue
		}
		// Children always come after their parent, so traversal terminates.
		if left <= node || left >= n || right <= node || right >= n {
			return fmt.Errorf("node %d has out-of-range children %d/%d", node, left, right)
		}
		if t.Feature[node] < 0 || (nFeatures > 0 && t.Feature[node] >= nFeatures) {
			return fmt.Errorf("node %d splits on invalid feature %d", node, t.Feature[node])
		}
	}
	return nil
}

func (t *treeArtifact) predict(x []float64) (float64, error) {
	node := 0
	for t.ChildrenLeft[node] != leaf {
		f := t.Feature[node]
		if f >= len(x) {
			return 0, fmt.Errorf("tree splits on feature %d but vector has %d values", f, len(x))
		}
		if x[f] <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
	}
	counts := t.Value[node]
	var total float64
	for _, c := range counts {
		total += c
	}
	if total <= 0 {
		return 0, nil
	}
	return counts[1] / total, nil
}

// Kind returns the model kind.
func (m *Model) Kind() string {
	return m.kind
}

// ExpectedFeatures implements FeatureCounter.
func (m *Model) ExpectedFeatures() (int, bool) {
	return m.nFeatures, m.nFeatures > 0
}

// FeatureNames implements FeatureNamer.
func (m *Model) FeatureNames() []string {
	out := make([]string, len(m.featureNames))
	copy(out, m.featureNames)
	return out
}

// PredictProba implements Scorer.
func (m *Model) PredictProba(_ context.Context, x []float64) (float64, error) {
	switch m.kind {
	case KindRandomForest:
		var sum float64
		for i := range m.trees {
			p, err := m.trees[i].predict(x)
			if err != nil {
				return 0, fmt.Errorf("tree %d: %w", i, err)
			}
			sum += p
		}
		return sum / float64(len(m.trees)), nil
	default:
		if len(x) != len(m.coef) {
			return 0, fmt.Errorf("model has %d coefficients but vector has %d values", len(m.coef), len(x))
		}
		z := m.intercept
		for i, c := range m.coef {
			z += c * x[i]
		}
		return 1 / (1 + math.Exp(-z)), nil
	}
}
