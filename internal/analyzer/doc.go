// Package analyzer provides LayoutAnalyzer implementations: a vision model
// reached through langchaingo, and a mock that returns a fixed layout for
// demos and for deployments without a model key.
package analyzer
