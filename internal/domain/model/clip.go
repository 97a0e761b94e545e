// Package model contains domain models passed between layers.
package model

// Keypoint is a single 2D body keypoint. Coordinates are caller-supplied and
// not range-checked.
type Keypoint struct {
	X float64
	Y float64
}

// Clip is an ordered, time-major sequence of keypoints.
type Clip []Keypoint

// Score is the bounded result of scoring one clip.
type Score struct {
	Score       int     // composite score in [0, 100]
	Symmetry    float64 // [0, 1]
	Power       float64 // [0, 1]
	Consistency float64 // [0, 1]
}

// Handle is a loaded inference graph. Run must be safe for concurrent use;
// borrowers never call Close.
type Handle interface {
	// InputWidth is the declared flattened input width, or 0 when dynamic.
	InputWidth() int
	// Run executes the graph on a single flattened sample and returns the
	// first output flattened.
	Run(input []float32) ([]float32, error)
	Close() error
}
