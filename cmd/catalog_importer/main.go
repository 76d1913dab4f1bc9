package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sweepvault/spinwheel-server/catalog"
)

// catalog_importer loads a wheel.json bundle into the local catalog store
// used by the file-backed server. With -validate-only it just reports
// validation issues and exits nonzero when any are found.
func main() {
	filePath := flag.String("file", "", "Path to a wheel.json bundle")
	dataDir := flag.String("data-dir", "data", "Server data directory (holds wheels.json)")
	wheelID := flag.String("wheel-id", "", "Override the wheel id from the bundle")
	validateOnly := flag.Bool("validate-only", false, "Validate the bundle without storing it")
	flag.Parse()

	if *filePath == "" {
		fmt.Fprintln(os.Stderr, "missing required -file argument")
		os.Exit(1)
	}

	if err := run(*filePath, *dataDir, *wheelID, *validateOnly); err != nil {
		fmt.Fprintf(os.Stderr, "import failed: %v\n", err)
		os.Exit(1)
	}
}

func run(filePath, dataDir, wheelID string, validateOnly bool) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("read bundle: %w", err)
	}
	cat, err := catalog.ParseWheelFile(data)
	if err != nil {
		return fmt.Errorf("parse bundle: %w", err)
	}
	if wheelID != "" {
		cat.WheelID = wheelID
	}
	if cat.WheelID == "" {
		return fmt.Errorf("bundle has no wheel_id; pass -wheel-id")
	}

	v := cat.Validate()
	for _, issue := range v.Issues {
		fmt.Printf("issue: %s\n", issue)
	}
	fmt.Printf("wheel %q: %d rewards, total weight %.2f\n", cat.WheelID, len(cat.Rewards), v.TotalWeight)

	if validateOnly {
		if !v.Valid {
			return fmt.Errorf("validation failed with %d issue(s)", len(v.Issues))
		}
		return nil
	}

	store := catalog.NewStore(dataDir)
	if err := store.Register(cat); err != nil {
		return fmt.Errorf("store catalog: %w", err)
	}
	fmt.Printf("Imported wheel %q into %s\n", cat.WheelID, dataDir)
	return nil
}
