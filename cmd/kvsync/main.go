// Command kvsync inspects, edits and watches a synced key-value store.
package main

import "github.com/mesh-intelligence/kvsync/internal/cli"

func main() {
	cli.Execute()
}
