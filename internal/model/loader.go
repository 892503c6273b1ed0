package model

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/couchcryptid/outbreak-forecast/internal/domain"
)

// ClassifierLoader produces a classifier for a new bundle. It is called on
// startup and on every reload.
type ClassifierLoader interface {
	LoadClassifier(ctx context.Context) (domain.Classifier, error)
}

// ClassifierLoaderFunc adapts a function to ClassifierLoader.
type ClassifierLoaderFunc func(ctx context.Context) (domain.Classifier, error)

// LoadClassifier calls f.
func (f ClassifierLoaderFunc) LoadClassifier(ctx context.Context) (domain.Classifier, error) {
	return f(ctx)
}

// FileLoader reads a logistic artifact from disk, or the embedded baseline
// when Path is empty. The file is re-read on every load.
type FileLoader struct {
	Path   string
	Logger *slog.Logger
}

// LoadClassifier parses the artifact.
func (l FileLoader) LoadClassifier(_ context.Context) (domain.Classifier, error) {
	data := baselineArtifact
	source := "embedded baseline"
	if l.Path != "" {
		var err error
		data, err = os.ReadFile(l.Path)
		if err != nil {
			return nil, fmt.Errorf("read model artifact: %w", err)
		}
		source = l.Path
	}

	a, err := ParseArtifact(data)
	if err != nil {
		return nil, err
	}
	if l.Logger != nil {
		l.Logger.Info("model artifact loaded", "source", source, "version", a.Version, "schema_version", a.SchemaVersion)
	}
	return NewLogisticClassifier(a), nil
}

// LoadLocations reads the location table at path, or the embedded default when
// path is empty.
func LoadLocations(path string) (*domain.LocationTable, error) {
	if path == "" {
		return domain.ParseLocationTable(defaultLocations)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read location table: %w", err)
	}
	return domain.ParseLocationTable(data)
}
