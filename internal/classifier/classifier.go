package classifier

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/BTreeMap/FocusLoop/internal/models"
)

// Training data bounds.
const (
	// MaxTrainingVectors bounds labeled vectors kept per pattern label.
	MaxTrainingVectors = 200
	// MaxNormalVectors bounds the anomaly detector's baseline set.
	MaxNormalVectors = 50
	// DefaultAnomalyMultiple is the z-score beyond which a feature is
	// anomalous.
	DefaultAnomalyMultiple = 3.0
	// MinVectorsToClassify is the minimum labeled vectors before the
	// classifier emits anything.
	MinVectorsToClassify = 5
)

var (
	// ErrNotTrained is returned when classification is requested before
	// enough training data exists.
	ErrNotTrained = errors.New("classifier has insufficient training data")
	// ErrDimensionMismatch is returned for vectors of the wrong length.
	ErrDimensionMismatch = errors.New("feature vector has wrong dimension")
)

// Classification is a corroborating (never authoritative) pattern call.
type Classification struct {
	PatternType models.PatternType `json:"pattern_type"`
	Confidence  float64            `json:"confidence"`
	Distance    float64            `json:"distance"`
}

// Classifier is a nearest-centroid pattern classifier with a z-score
// anomaly detector over a baseline of "normal" vectors.
type Classifier struct {
	anomalyMultiple float64

	mu        sync.RWMutex
	labeled   map[models.PatternType][][]float64
	centroids map[models.PatternType][]float64
	normal    [][]float64
	normMean  []float64
	normStd   []float64
}

// NewClassifier creates an untrained classifier.
func NewClassifier() *Classifier {
	return &Classifier{
		anomalyMultiple: DefaultAnomalyMultiple,
		labeled:         make(map[models.PatternType][][]float64),
		centroids:       make(map[models.PatternType][]float64),
	}
}

// AddLabeled records a labeled training vector, evicting the oldest when the
// per-label bound is hit. Centroids are refreshed on Retrain.
func (c *Classifier) AddLabeled(pt models.PatternType, vector []float64) error {
	if len(vector) != FeatureDim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), FeatureDim)
	}
	if !models.IsValidPatternType(pt) {
		return models.ErrInvalidPattern
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	vectors := append(c.labeled[pt], vector)
	if len(vectors) > MaxTrainingVectors {
		vectors = vectors[len(vectors)-MaxTrainingVectors:]
	}
	c.labeled[pt] = vectors
	return nil
}

// AddNormal records a baseline vector for anomaly detection, evicting the
// oldest past the bound.
func (c *Classifier) AddNormal(vector []float64) error {
	if len(vector) != FeatureDim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), FeatureDim)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.normal = append(c.normal, vector)
	if len(c.normal) > MaxNormalVectors {
		c.normal = c.normal[len(c.normal)-MaxNormalVectors:]
	}
	c.refreshBaselineLocked()
	return nil
}

// Classify returns the nearest-centroid call for the vector. Confidence
// decays with distance; callers treat the result as corroboration only.
func (c *Classifier) Classify(vector []float64) (*Classification, error) {
	if len(vector) != FeatureDim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), FeatureDim)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	var total int
	for _, vectors := range c.labeled {
		total += len(vectors)
	}
	if total < MinVectorsToClassify || len(c.centroids) == 0 {
		return nil, ErrNotTrained
	}

	best := models.PatternType("")
	bestDist := math.Inf(1)
	for pt, centroid := range c.centroids {
		d := euclidean(vector, centroid)
		if d < bestDist {
			best = pt
			bestDist = d
		}
	}

	// Max possible distance in the unit hypercube is sqrt(FeatureDim).
	confidence := models.ClampUnit(1 - bestDist/math.Sqrt(FeatureDim))
	return &Classification{PatternType: best, Confidence: confidence, Distance: bestDist}, nil
}

// Anomalous reports whether any feature deviates from the normal baseline
// by more than the configured z-score multiple. It is the crisis signal:
// a true result recommends immediate simplification regardless of pattern
// classification. Returns false when the baseline is too small to judge.
func (c *Classifier) Anomalous(vector []float64) (bool, float64, error) {
	if len(vector) != FeatureDim {
		return false, 0, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), FeatureDim)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.normal) < MinVectorsToClassify {
		return false, 0, nil
	}

	var maxZ float64
	for n := range vector {
		if c.normStd[n] == 0 {
			continue
		}
		z := math.Abs(vector[n]-c.normMean[n]) / c.normStd[n]
		if z > maxZ {
			maxZ = z
		}
	}
	return maxZ > c.anomalyMultiple, maxZ, nil
}

// Retrain recomputes all centroids from the retained labeled vectors and
// refreshes the anomaly baseline. Safe to call concurrently with Classify.
func (c *Classifier) Retrain() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	centroids := make(map[models.PatternType][]float64, len(c.labeled))
	for pt, vectors := range c.labeled {
		if len(vectors) == 0 {
			continue
		}
		centroid := make([]float64, FeatureDim)
		column := make([]float64, len(vectors))
		for dim := 0; dim < FeatureDim; dim++ {
			for n, v := range vectors {
				column[n] = v[dim]
			}
			centroid[dim] = stat.Mean(column, nil)
		}
		centroids[pt] = centroid
	}
	c.centroids = centroids
	c.refreshBaselineLocked()

	slog.Info("Classifier.Retrain: centroids recomputed", "labels", len(centroids), "normal_vectors", len(c.normal))
	return nil
}

// TrainingSize returns the total labeled vector count.
func (c *Classifier) TrainingSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var total int
	for _, vectors := range c.labeled {
		total += len(vectors)
	}
	return total
}

// refreshBaselineLocked recomputes the per-dimension mean and stddev of the
// normal set. Caller must hold the write lock.
func (c *Classifier) refreshBaselineLocked() {
	c.normMean = make([]float64, FeatureDim)
	c.normStd = make([]float64, FeatureDim)
	if len(c.normal) < 2 {
		return
	}
	column := make([]float64, len(c.normal))
	for dim := 0; dim < FeatureDim; dim++ {
		for n, v := range c.normal {
			column[n] = v[dim]
		}
		c.normMean[dim] = stat.Mean(column, nil)
		c.normStd[dim] = stat.StdDev(column, nil)
	}
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for n := range a {
		d := a[n] - b[n]
		sum += d * d
	}
	return math.Sqrt(sum)
}
