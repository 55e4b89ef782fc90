// Package diffutil provides character-level prefix, suffix and
// intermediate-diff helpers shared by every tool-call parser dialect.
//
// All functions operate on Unicode code points rather than bytes, since a
// multi-byte rune split at the wrong boundary would corrupt the streamed
// JSON fragments.
package diffutil
