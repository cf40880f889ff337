// Command pharmaimport runs spreadsheet imports from the command line.
package main

import (
	_ "github.com/JonMunkholm/pharmaimport/internal/core/kinds" // Register import kinds
)

func main() {
	Execute()
}
