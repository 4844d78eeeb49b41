// Package logging provides the application-wide logging facility.
//
// It wraps log/slog with a subsystem tag so log lines can be attributed
// to the component that produced them (OAuth, IRC, Helix, Bot, ...).
// Levels follow the usual Debug/Info/Warn/Error ladder; the minimum level
// is chosen once at startup via Init, typically from the --debug flag.
//
// Token values and other credentials must never be passed to this
// package; callers log metadata (expiry, scope counts) instead.
package logging
