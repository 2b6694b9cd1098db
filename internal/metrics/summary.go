package metrics

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/stratabench/stratabench/pkg/types"
)

// WriteSummary renders a human-readable run summary: per-encoding storage
// footprint, the fastest configuration per workload, and the failure list.
func WriteSummary(w io.Writer, trials []types.Trial) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "========== BENCHMARK SUMMARY ==========")

	if len(trials) == 0 {
		fmt.Fprintln(w, "no trials recorded")
		return
	}

	var succeeded, failed []types.Trial
	for _, t := range trials {
		if t.Status == types.TrialSuccess {
			succeeded = append(succeeded, t)
		} else {
			failed = append(failed, t)
		}
	}
	fmt.Fprintf(w, "trials: %d total, %d succeeded, %d failed\n",
		len(trials), len(succeeded), len(failed))

	writeStorageSection(w, succeeded)
	writeTimingSection(w, succeeded)

	if len(failed) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "failures:")
		for _, t := range failed {
			fmt.Fprintf(w, "  %-45s %s\n", t.Cell(), t.ErrorKind)
		}
	}
	fmt.Fprintln(w, "=======================================")
}

func writeStorageSection(w io.Writer, trials []types.Trial) {
	sizes := make(map[types.Encoding]int64)
	for _, t := range trials {
		if t.StorageBytes > sizes[t.Encoding] {
			sizes[t.Encoding] = t.StorageBytes
		}
	}
	if len(sizes) == 0 {
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "storage footprint:")
	for _, enc := range types.AllEncodings() {
		if size, ok := sizes[enc]; ok {
			fmt.Fprintf(w, "  %-10s %s\n", enc, FormatBytes(size))
		}
	}
}

func writeTimingSection(w io.Writer, trials []types.Trial) {
	type cellTime struct {
		cell    types.CellID
		elapsed time.Duration
	}
	byWorkload := make(map[string][]cellTime)
	for _, t := range trials {
		byWorkload[t.Workload] = append(byWorkload[t.Workload],
			cellTime{cell: t.Cell(), elapsed: t.Elapsed})
	}
	if len(byWorkload) == 0 {
		return
	}

	workloads := make([]string, 0, len(byWorkload))
	for name := range byWorkload {
		workloads = append(workloads, name)
	}
	sort.Strings(workloads)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "fastest per workload:")
	for _, name := range workloads {
		cells := byWorkload[name]
		best := cells[0]
		for _, c := range cells[1:] {
			if c.elapsed < best.elapsed {
				best = c
			}
		}
		fmt.Fprintf(w, "  %-16s %-45s %s\n", name, best.cell, FormatDuration(best.elapsed))
	}
}

// FormatDuration renders a duration in the log's human form.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.2fs", d.Seconds())
	default:
		return fmt.Sprintf("%dm%.1fs", int(d.Minutes()), d.Seconds()-60*float64(int(d.Minutes())))
	}
}

// FormatBytes renders a byte count with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
