package proto

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// PPSize pretty prints the size response
func PPSize(size *QueueSizeResponse) string {
	var buf strings.Builder
	buf.WriteString("Size {")
	_, _ = fmt.Fprintf(&buf, " Timestamp: %s", size.Timestamp)
	_, _ = fmt.Fprintf(&buf, " ActivePartitionFiles: %d", size.ActivePartitionFiles)
	if size.IncludesItems {
		_, _ = fmt.Fprintf(&buf, " TotalItems: %d", size.TotalItems)
		_, _ = fmt.Fprintf(&buf, " TotalRequests: %d", size.TotalRequests)
		_, _ = fmt.Fprintf(&buf, " TotalPending: %d", size.TotalPending)
	}
	buf.WriteString(" }")
	return buf.String()
}

// SizeTable renders the size response as an aligned, human friendly table
func SizeTable(name string, size *QueueSizeResponse) string {
	rows := [][2]string{
		{"Queue", name},
		{"Timestamp", size.Timestamp},
		{"Partition Files", humanize.Comma(int64(size.ActivePartitionFiles))},
	}
	if size.IncludesItems {
		rows = append(rows,
			[2]string{"Items", humanize.Comma(int64(size.TotalItems))},
			[2]string{"Requested", humanize.Comma(int64(size.TotalRequests))},
			[2]string{"Pending", humanize.Comma(int64(size.TotalPending))},
		)
	}

	var width int
	for _, r := range rows {
		if len(r[0]) > width {
			width = len(r[0])
		}
	}

	var buf strings.Builder
	for _, r := range rows {
		_, _ = fmt.Fprintf(&buf, "%-*s  %s\n", width, r[0], r[1])
	}
	return buf.String()
}
