package domain

import "context"

// ModelInfo describes a loaded classifier artifact.
type ModelInfo struct {
	Kind          string   `json:"kind"`
	Version       string   `json:"version"`
	SchemaVersion string   `json:"schema_version"`
	Features      []string `json:"features"`
}

// Classifier scores a feature vector. Implementations must be safe for
// concurrent use. Transient failures should be reported as
// *ClassifierUnavailableError.
type Classifier interface {
	// PredictProbability returns the positive-class probability.
	PredictProbability(ctx context.Context, v FeatureVector) (float64, error)

	// Info describes the artifact, including the feature order it was fitted on.
	Info() ModelInfo
}

// Pinger is implemented by classifiers backed by a remote service.
type Pinger interface {
	Ping(ctx context.Context) error
}
