// Package model holds the trainable pieces of the pipeline: the one-hot
// encoder, the regressor behind the Regressor interface, the train/test
// split, evaluation metrics, and the Pipeline artifact that binds a fitted
// encoder and regressor to the feature schema they were trained on.
package model
