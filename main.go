// Talos walks a photo site's search pages sequentially and archives every
// discovered image with its metadata, building durable state so that an
// interrupted run resumes exactly where it stopped.
package main

import (
	"fmt"
	"os"

	"github.com/internetarchive/Talos/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
