// markerservo watches a camera for ArUco markers and swings a servo:
// to 0° when a marker appears, back to 90° when it leaves.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
