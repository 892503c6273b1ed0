package model

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/couchcryptid/outbreak-forecast/internal/domain"
)

// KindLogistic identifies a logistic-regression artifact.
const KindLogistic = "logistic"

// Artifact is the serialized form of a locally evaluated classifier.
type Artifact struct {
	Kind          string             `json:"kind"`
	Version       string             `json:"version"`
	SchemaVersion string             `json:"schema_version"`
	Features      []string           `json:"features"`
	Intercept     float64            `json:"intercept"`
	Coefficients  map[string]float64 `json:"coefficients"`
}

// ParseArtifact decodes and validates an artifact. Coefficients naming a
// feature outside Features are rejected.
func ParseArtifact(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parse model artifact: %w", err)
	}
	if a.Kind != KindLogistic {
		return nil, fmt.Errorf("unsupported model kind %q", a.Kind)
	}
	if a.Version == "" {
		return nil, fmt.Errorf("model artifact has no version")
	}
	if a.SchemaVersion == "" {
		a.SchemaVersion = domain.DefaultSchemaVersion
	}
	if len(a.Features) == 0 {
		return nil, &domain.SchemaMismatchError{Reason: "model artifact lists no features"}
	}

	known := make(map[string]struct{}, len(a.Features))
	for _, f := range a.Features {
		if _, dup := known[f]; dup {
			return nil, &domain.SchemaMismatchError{Reason: fmt.Sprintf("feature %q listed twice", f)}
		}
		known[f] = struct{}{}
	}
	for name := range a.Coefficients {
		if _, ok := known[name]; !ok {
			return nil, &domain.SchemaMismatchError{Reason: fmt.Sprintf("coefficient for unlisted feature %q", name)}
		}
	}
	return &a, nil
}

// LogisticClassifier evaluates a logistic model in process. It never fails
// transiently.
type LogisticClassifier struct {
	info      domain.ModelInfo
	intercept float64
	weights   []float64
}

// NewLogisticClassifier builds a classifier from a parsed artifact.
func NewLogisticClassifier(a *Artifact) *LogisticClassifier {
	weights := make([]float64, len(a.Features))
	for i, f := range a.Features {
		weights[i] = a.Coefficients[f]
	}
	features := make([]string, len(a.Features))
	copy(features, a.Features)
	return &LogisticClassifier{
		info: domain.ModelInfo{
			Kind:          a.Kind,
			Version:       a.Version,
			SchemaVersion: a.SchemaVersion,
			Features:      features,
		},
		intercept: a.Intercept,
		weights:   weights,
	}
}

// Info describes the artifact.
func (c *LogisticClassifier) Info() domain.ModelInfo { return c.info }

// PredictProbability returns σ(intercept + w·x). The vector must carry
// exactly the artifact's feature order.
func (c *LogisticClassifier) PredictProbability(_ context.Context, v domain.FeatureVector) (float64, error) {
	if len(v.Values) != len(c.weights) || len(v.Names) != len(c.info.Features) {
		return 0, &domain.SchemaMismatchError{Expected: c.info.Features, Got: v.Names}
	}
	for i, name := range v.Names {
		if name != c.info.Features[i] {
			return 0, &domain.SchemaMismatchError{Expected: c.info.Features, Got: v.Names}
		}
	}

	z := c.intercept
	for i, x := range v.Values {
		z += c.weights[i] * x
	}
	return 1 / (1 + math.Exp(-z)), nil
}
