// Package urls provides the documentation links printed in hints and
// troubleshooting output.
//
// Usage:
//
//	import "github.com/muurk/apkdrop/internal/urls"
//
//	fmt.Printf("For more information, see: %s\n", urls.ADB)
package urls
