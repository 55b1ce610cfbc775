// Package logging builds the zap logger used by the smdfu command and
// adapts it to the Logger interface of the dfu and transport packages.
package logging
