// Package metrics provides custom Prometheus metrics for the ambient-go pipeline.
package metrics

// Pipeline stage names used as the "stage" label.
const (
	StageFeatures  = "features"
	StageEmbedding = "embedding"
	StageWhitening = "whitening"
	StageAggregate = "aggregate"
	StageRanking   = "ranking"
	StageTotal     = "total"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusEmpty   = "empty"
)

// Model label values.
const (
	ModelEmbedding  = "embedding"
	ModelClassifier = "classifier"
	ModelPCA        = "pca"
	ModelLabels     = "labels"
)
