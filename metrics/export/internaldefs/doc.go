// Package internaldefs holds the metric names, help strings and histogram
// bounds used by the exporters. Renaming a metric here renames it everywhere.
package internaldefs
