// Package sizefmt renders byte counts for log lines and reports.
package sizefmt

import "fmt"

var units = []string{"B", "KB", "MB", "GB", "TB"}

// Format scales n by 1024 until it drops below 1024 and prints it with two
// decimals, e.g. 1536 -> "1.50 KB". Anything past TB is printed in PB.
func Format(n int64) string {
	f := float64(n)
	for _, u := range units {
		if f < 1024.0 {
			return fmt.Sprintf("%.2f %s", f, u)
		}
		f /= 1024.0
	}
	return fmt.Sprintf("%.2f PB", f)
}
