// Package robust supplies the outlier-detection primitives shared by every
// detector: median/MAD scaling, robust z-scores, rank thresholds, and
// trimmed estimators. All detectors classify outliers through this package
// so the pipeline carries a single notion of "outlier".
//
// Location and scale are always estimated robustly (median and scaled
// median absolute deviation) because artifact contamination is exactly what
// would bias mean/standard-deviation estimates. Every function is
// deterministic; none consults a randomness source.
package robust
