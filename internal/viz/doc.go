// Package viz renders actuator test runs in the terminal.
//
// Static plots draw commanded and measured position for a recorded
// [harness.Series] with asciigraph, and [ComparisonPlot] overlays the
// measured traces of an aligned sim/real pair. [Summary] formats a run
// report with lipgloss.
//
// The live view is a Bubble Tea program fed by a [Feed], which plugs
// into the scheduler as an observer and streams samples into the UI
// while a test is running.
package viz
