// Package types defines the diary entity types, the Engine and Repository
// interfaces, configuration, and the standard error types for the food
// diary data engine.
package types
